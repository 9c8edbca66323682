package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mechlink/marketplace-api/internal/models"
	"github.com/mechlink/marketplace-api/pkg/config"
	appErrors "github.com/mechlink/marketplace-api/pkg/errors"
)

const (
	availabilityKeyPrefix   = "availability:mechanic:"
	availabilityEpochPrefix = "availability:epoch:mechanic:"
	availabilityEpochAll    = "availability:epoch:all"
)

type availabilityStore interface {
	ListAvailableForMechanic(ctx context.Context, mechanicID string, now time.Time, grace, asapTTL time.Duration) ([]models.AppointmentSummary, error)
}

type availabilityCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AvailabilityService serves each mechanic's feed of quotable appointments.
// Every write path that changes a feed invalidates it, and a cache fill is
// discarded when an invalidation landed while the feed was being read from
// storage, so a mechanic is never shown an appointment they already quoted or
// skipped past the storage layer's own commit latency.
type AvailabilityService struct {
	repo      availabilityStore
	cache     availabilityCache
	reaperCfg config.ReaperConfig
	cacheTTL  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewAvailabilityService constructs the service.
func NewAvailabilityService(repo availabilityStore, cache availabilityCache, reaperCfg config.ReaperConfig, availCfg config.AvailabilityConfig, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		repo:      repo,
		cache:     cache,
		reaperCfg: reaperCfg,
		cacheTTL:  availCfg.CacheTTL,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ListForMechanic returns the mechanic's current feed.
func (s *AvailabilityService) ListForMechanic(ctx context.Context, mechanicID string) ([]models.AppointmentSummary, error) {
	key := availabilityKeyPrefix + mechanicID
	if s.cache != nil {
		var cached []models.AppointmentSummary
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Sugar().Warnw("availability cache read failed", "mechanic_id", mechanicID, "error", err)
		}
	}

	epochBefore, epochOK := s.feedEpoch(ctx, mechanicID)

	summaries, err := s.repo.ListAvailableForMechanic(ctx, mechanicID, s.now(), s.reaperCfg.Grace, s.reaperCfg.ASAPTTL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available appointments")
	}
	if summaries == nil {
		summaries = []models.AppointmentSummary{}
	}

	if s.cache != nil && s.cacheTTL > 0 && epochOK {
		// An invalidation that ran between the epoch snapshot and here means
		// the list just read may predate the write that triggered it. Serve
		// it, but do not cache it.
		if epochAfter, ok := s.feedEpoch(ctx, mechanicID); ok && epochAfter == epochBefore {
			if err := s.cache.Set(ctx, key, summaries, s.cacheTTL); err != nil {
				s.logger.Sugar().Warnw("availability cache write failed", "mechanic_id", mechanicID, "error", err)
			}
		}
	}
	return summaries, nil
}

// feedEpoch reads the mechanic's invalidation epoch plus the global one. A
// missing key reads as empty; any other cache failure disables caching for
// this request.
func (s *AvailabilityService) feedEpoch(ctx context.Context, mechanicID string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	epoch := ""
	for _, key := range []string{availabilityEpochPrefix + mechanicID, availabilityEpochAll} {
		var v string
		err := s.cache.Get(ctx, key, &v)
		if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
			return "", false
		}
		epoch += v + "|"
	}
	return epoch, true
}

// InvalidateMechanic drops one mechanic's cached feed. The epoch must move
// before the feed key does, so an in-flight read that started earlier fails
// its epoch re-check and discards its fill.
func (s *AvailabilityService) InvalidateMechanic(ctx context.Context, mechanicID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, availabilityEpochPrefix+mechanicID, uuid.NewString(), 0); err != nil {
		s.logger.Sugar().Warnw("availability epoch bump failed", "mechanic_id", mechanicID, "error", err)
	}
	if err := s.cache.Delete(ctx, availabilityKeyPrefix+mechanicID); err != nil {
		s.logger.Sugar().Warnw("availability invalidation failed", "mechanic_id", mechanicID, "error", err)
	}
}

// InvalidateAll drops every cached feed. Used when an appointment changes in a
// way that affects all mechanics (create, cancel, cascade, selection).
func (s *AvailabilityService) InvalidateAll(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, availabilityEpochAll, uuid.NewString(), 0); err != nil {
		s.logger.Sugar().Warnw("availability epoch bump failed", "error", err)
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("%s*", availabilityKeyPrefix)); err != nil {
		s.logger.Sugar().Warnw("availability bulk invalidation failed", "error", err)
	}
}
