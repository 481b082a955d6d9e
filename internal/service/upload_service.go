package service

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/teamhive/collab-api/internal/apperr"
	"github.com/teamhive/collab-api/internal/dto"
	"github.com/teamhive/collab-api/pkg/cloudinary"
)

// AttachmentStorage abstracts the upload destination.
type AttachmentStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (cloudinary.Asset, error)
}

// allowedAttachmentTypes is the sniffed-MIME allowlist for chat attachments.
var allowedAttachmentTypes = map[string]struct{}{
	"image/png":       {},
	"image/jpeg":      {},
	"image/gif":       {},
	"image/webp":      {},
	"application/pdf": {},
	"text/plain":      {},
	"application/zip": {},
}

// UploadService validates and stores chat attachments.
type UploadService interface {
	Upload(ctx context.Context, userID string, file *multipart.FileHeader) (dto.UploadResponse, error)
}

type uploadService struct {
	storage AttachmentStorage
	logger  zerolog.Logger
	maxSize int64
	tracer  trace.Tracer
}

// NewUploadService constructs an upload service.
func NewUploadService(storage AttachmentStorage, maxSizeMB int, logger zerolog.Logger) UploadService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &uploadService{
		storage: storage,
		logger:  logger.With().Str("component", "upload_service").Logger(),
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		tracer:  otel.Tracer("github.com/teamhive/collab-api/internal/service/upload"),
	}
}

// Upload size-checks and MIME-sniffs the file before handing it to storage.
// The type decision trusts the sniffed bytes, never the client-supplied
// filename or Content-Type.
func (s *uploadService) Upload(ctx context.Context, userID string, file *multipart.FileHeader) (dto.UploadResponse, error) {
	if file == nil {
		return dto.UploadResponse{}, apperr.Validation("file is required")
	}

	ctx, span := s.tracer.Start(ctx, "upload.store", trace.WithAttributes(
		attribute.String("upload.user_id", userID),
		attribute.Int64("upload.request_size", file.Size),
	))
	defer span.End()

	if file.Size > s.maxSize {
		return dto.UploadResponse{}, apperr.Validation("file exceeds maximum allowed size")
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		return dto.UploadResponse{}, apperr.Store(err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		return dto.UploadResponse{}, apperr.Store(err)
	}
	if int64(buf.Len()) > s.maxSize {
		return dto.UploadResponse{}, apperr.Validation("file exceeds maximum allowed size")
	}

	detected := normalizeMime(mimetype.Detect(buf.Bytes()).String())
	span.SetAttributes(attribute.String("upload.detected_mime", detected))
	if _, ok := allowedAttachmentTypes[detected]; !ok {
		return dto.UploadResponse{}, apperr.Validation("file type not allowed")
	}

	asset, err := s.storage.Upload(ctx, sanitizeFileName(file.Filename), bytes.NewReader(buf.Bytes()))
	if err != nil {
		span.RecordError(err)
		s.logger.Error().Err(err).Str("user_id", userID).Msg("attachment storage failed")
		return dto.UploadResponse{}, apperr.Store(err)
	}

	return dto.UploadResponse{ID: asset.PublicID, URL: asset.URL}, nil
}

func normalizeMime(value string) string {
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = value[:idx]
	}
	return strings.TrimSpace(strings.ToLower(value))
}

func sanitizeFileName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, base)
	if base == "" || base == "." {
		return "attachment"
	}
	return base
}
