package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mechlink/marketplace-api/internal/models"
	"github.com/mechlink/marketplace-api/pkg/config"
	appErrors "github.com/mechlink/marketplace-api/pkg/errors"
)

type reaperStore interface {
	ListExpiredPending(ctx context.Context, now time.Time, grace, asapTTL time.Duration, limit int) ([]models.Appointment, error)
}

type appointmentCanceller interface {
	Cancel(ctx context.Context, appointmentID string, actor models.CancelActor, actorID, reason string) error
}

// ReaperService expires abandoned pending appointments on a fixed interval.
// It drives the same transitions a customer cancellation would, through the
// lifecycle service, so all side effects stay in one place. Sweeps are
// idempotent and race-tolerant: a per-appointment INVALID_STATE or
// CONCURRENCY_CONFLICT means another actor won and is dropped silently;
// storage failures are surfaced to the operator-facing metrics.
type ReaperService struct {
	repo    reaperStore
	appts   appointmentCanceller
	metrics *MetricsService
	cfg     config.ReaperConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewReaperService constructs the service.
func NewReaperService(repo reaperStore, appts appointmentCanceller, metrics *MetricsService, cfg config.ReaperConfig, logger *zap.Logger) *ReaperService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReaperService{
		repo:    repo,
		appts:   appts,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start boots the periodic sweep until the context is cancelled.
func (s *ReaperService) Start(ctx context.Context) {
	if !s.cfg.Enabled || s.cfg.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Sweep(ctx); err != nil {
					s.logger.Sugar().Warnw("expiry sweep failed", "error", err)
				}
			}
		}
	}()
}

// Sweep cancels every pending appointment past its deadline. Returns an error
// only for storage-layer failures; lost races are not errors.
func (s *ReaperService) Sweep(ctx context.Context) error {
	now := s.now()
	expired, err := s.repo.ListExpiredPending(ctx, now, s.cfg.Grace, s.cfg.ASAPTTL, s.cfg.BatchSize)
	if err != nil {
		s.metrics.ObserveSweep(0, true, now)
		return err
	}

	cancelled := 0
	for _, appt := range expired {
		err := s.appts.Cancel(ctx, appt.ID, models.CancelActorSystem, "", models.CancelReasonExpired)
		if err == nil {
			cancelled++
			continue
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			switch appErr.Code {
			case appErrors.ErrInvalidState.Code, appErrors.ErrConflict.Code, appErrors.ErrNotFound.Code:
				// Another actor moved the appointment first; drop it.
				continue
			}
		}
		s.metrics.ObserveSweep(cancelled, true, now)
		return err
	}

	if cancelled > 0 {
		s.logger.Sugar().Infow("expired pending appointments", "count", cancelled)
	}
	s.metrics.ObserveSweep(cancelled, false, now)
	return nil
}
