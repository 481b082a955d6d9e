package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/teamhive/collab-api/internal/apperr"
	"github.com/teamhive/collab-api/internal/middleware"
	"github.com/teamhive/collab-api/internal/utils"
)

func userIDFromContext(c *fiber.Ctx) string {
	return middleware.UserID(c)
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseIDParam(c *fiber.Ctx, key string) (uint, error) {
	parsed, err := strconv.ParseUint(c.Params(key), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(parsed), nil
}

// requestContext derives the request context carrying the correlation ID.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// respondError maps the service error taxonomy onto HTTP statuses. Store
// failures hide their cause from clients.
func respondError(c *fiber.Ctx, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return utils.SendError(c, fiber.StatusBadRequest, errorMessage(err))
	case apperr.KindNotFound:
		return utils.SendError(c, fiber.StatusNotFound, errorMessage(err))
	case apperr.KindForbidden:
		return utils.SendError(c, fiber.StatusForbidden, errorMessage(err))
	case apperr.KindConflict:
		return utils.SendError(c, fiber.StatusConflict, errorMessage(err))
	default:
		return utils.SendError(c, fiber.StatusInternalServerError, "internal error")
	}
}

func errorMessage(err error) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
