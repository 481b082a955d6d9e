package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/teamhive/collab-api/internal/config"
	"github.com/teamhive/collab-api/internal/database"
	"github.com/teamhive/collab-api/internal/handler"
	"github.com/teamhive/collab-api/internal/middleware"
	"github.com/teamhive/collab-api/internal/repository"
	"github.com/teamhive/collab-api/internal/router"
	"github.com/teamhive/collab-api/internal/service"
	cloud "github.com/teamhive/collab-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not configured, cross-node relay over redis disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	} else {
		logger.Warn().Msg("nats url not configured, cross-node relay over nats disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	chatRepo := repository.NewChatRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	userRepo := repository.NewUserRepository(db)

	synchronizer := service.NewMembershipSynchronizer(chatRepo, logger)
	chatService := service.NewChatService(chatRepo, messageRepo, membershipRepo, synchronizer, validate, logger)
	notificationService := service.NewNotificationService(notificationRepo, validate, logger)
	membershipService := service.NewMembershipService(membershipRepo, chatRepo, synchronizer, notificationService, logger)
	mentionService := service.NewMentionService(userRepo, chatRepo, notificationService, logger)

	presence := service.NewPresenceRegistry()
	realtimeService := service.NewRealtimeService(chatService, mentionService, membershipRepo, presence,
		redisClient, cfg.EventChannelBase, natsConn, logger)
	notificationService.SetPusher(realtimeService)

	sweeper := service.NewNotificationSweeper(notificationRepo, cfg.SweepInterval, cfg.SweepRetention, logger)

	deps := router.Dependencies{
		ChatHandler:         handler.NewChatHandler(chatService, realtimeService, mentionService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger),
		MemberHandler:       handler.NewMemberHandler(membershipService, logger),
		RealtimeHandler:     handler.NewRealtimeHandler(realtimeService, logger),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	}

	if cfg.CloudinaryCloudName != "" {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		uploadService := service.NewUploadService(uploader, cfg.UploadMaxSizeMB, logger)
		deps.UploadHandler = handler.NewUploadHandler(uploadService, logger)
	} else {
		logger.Warn().Msg("cloudinary not configured, attachment uploads disabled")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, deps)

	runCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	realtimeService.Start(runCtx)
	sweeper.Start(runCtx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
