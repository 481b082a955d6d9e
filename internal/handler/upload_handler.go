package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/teamhive/collab-api/internal/service"
	"github.com/teamhive/collab-api/internal/utils"
)

// UploadHandler accepts chat attachment uploads.
type UploadHandler struct {
	service service.UploadService
	logger  zerolog.Logger
}

// NewUploadHandler constructs a handler instance.
func NewUploadHandler(uploads service.UploadService, logger zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		service: uploads,
		logger:  logger.With().Str("component", "upload_handler").Logger(),
	}
}

// Register binds the upload route.
func (h *UploadHandler) Register(router fiber.Router) {
	router.Post("/", h.upload)
}

func (h *UploadHandler) upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	result, err := h.service.Upload(requestContext(c), userIDFromContext(c), file)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Msg("attachment upload rejected")
		return respondError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "attachment stored", result)
}
