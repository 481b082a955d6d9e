package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/teamhive/collab-api/internal/repository"
)

// NotificationSweeper periodically deletes read notifications older than the
// retention window. Unread notifications are never touched.
type NotificationSweeper struct {
	notifications repository.NotificationRepository
	interval      time.Duration
	retention     time.Duration
	logger        zerolog.Logger
	now           func() time.Time
}

// NewNotificationSweeper constructs the sweeper.
func NewNotificationSweeper(notifications repository.NotificationRepository, interval, retention time.Duration, logger zerolog.Logger) *NotificationSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &NotificationSweeper{
		notifications: notifications,
		interval:      interval,
		retention:     retention,
		logger:        logger.With().Str("component", "notification_sweeper").Logger(),
		now:           time.Now,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (s *NotificationSweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepOnce(ctx)
			}
		}
	}()
}

// SweepOnce performs a single retention pass.
func (s *NotificationSweeper) SweepOnce(ctx context.Context) {
	cutoff := s.now().Add(-s.retention)
	deleted, err := s.notifications.DeleteRead(ctx, "", cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("notification sweep failed")
		return
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("read notifications swept")
	}
}
