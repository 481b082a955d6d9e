package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teamhive/collab-api/internal/config"
	"github.com/teamhive/collab-api/internal/handler"
	"github.com/teamhive/collab-api/internal/middleware"
	"github.com/teamhive/collab-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChatHandler         *handler.ChatHandler
	NotificationHandler *handler.NotificationHandler
	MemberHandler       *handler.MemberHandler
	UploadHandler       *handler.UploadHandler
	RealtimeHandler     *handler.RealtimeHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.ChatHandler != nil {
		chats := api.Group("/chats", jwtMiddleware,
			middleware.RateLimit("chats", cfg.RateLimitPerSecond, time.Second))
		deps.ChatHandler.Register(chats)
	}

	projects := api.Group("/projects", jwtMiddleware)
	tasks := api.Group("/tasks", jwtMiddleware)
	if deps.ChatHandler != nil {
		deps.ChatHandler.RegisterProjectChat(projects, tasks)
	}
	if deps.MemberHandler != nil {
		deps.MemberHandler.RegisterProjects(projects)
		deps.MemberHandler.RegisterTasks(tasks)
		invitations := api.Group("/invitations", jwtMiddleware)
		deps.MemberHandler.RegisterInvitations(invitations)
	}

	if deps.NotificationHandler != nil {
		notifications := api.Group("/notifications", jwtMiddleware)
		deps.NotificationHandler.Register(notifications)
	}

	if deps.UploadHandler != nil {
		uploads := api.Group("/uploads", jwtMiddleware,
			middleware.RateLimit("uploads", cfg.RateLimitPerSecond, time.Second))
		deps.UploadHandler.Register(uploads)
	}

	if deps.RealtimeHandler != nil {
		realtime := api.Group("/ws", jwtMiddleware)
		deps.RealtimeHandler.Register(realtime)
	}
}
