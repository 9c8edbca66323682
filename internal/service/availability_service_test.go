package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mechlink/marketplace-api/internal/models"
	"github.com/mechlink/marketplace-api/pkg/config"
	appErrors "github.com/mechlink/marketplace-api/pkg/errors"
)

type availabilityStoreStub struct {
	summaries []models.AppointmentSummary
	err       error
	calls     int
	onList    func()
}

func (s *availabilityStoreStub) ListAvailableForMechanic(ctx context.Context, mechanicID string, now time.Time, grace, asapTTL time.Duration) ([]models.AppointmentSummary, error) {
	s.calls++
	out := s.summaries
	if s.onList != nil {
		s.onList()
	}
	return out, s.err
}

type cacheStub struct {
	values   map[string]interface{}
	getErr   error
	sets     map[string]interface{}
	deleted  []string
	patterns []string
}

func newCacheStub() *cacheStub {
	return &cacheStub{
		values: map[string]interface{}{},
		sets:   map[string]interface{}{},
	}
}

func (c *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	if c.getErr != nil {
		return c.getErr
	}
	cached, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	switch d := dest.(type) {
	case *[]models.AppointmentSummary:
		*d = cached.([]models.AppointmentSummary)
	case *string:
		*d = cached.(string)
	}
	return nil
}

func (c *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.values[key] = value
	c.sets[key] = value
	return nil
}

func (c *cacheStub) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.values, key)
	}
	c.deleted = append(c.deleted, keys...)
	return nil
}

func (c *cacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	c.patterns = append(c.patterns, pattern)
	return nil
}

func newTestAvailabilityService(store *availabilityStoreStub, cache *cacheStub) *AvailabilityService {
	return NewAvailabilityService(store, cache,
		config.ReaperConfig{Grace: time.Hour, ASAPTTL: 4 * time.Hour},
		config.AvailabilityConfig{CacheTTL: 30 * time.Second},
		zap.NewNop())
}

func TestAvailabilityServiceCacheMissFillsCache(t *testing.T) {
	store := &availabilityStoreStub{summaries: []models.AppointmentSummary{{ID: "appt-1"}}}
	cache := newCacheStub()
	svc := newTestAvailabilityService(store, cache)

	feed, err := svc.ListForMechanic(context.Background(), "mech-1")
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, 1, store.calls)
	assert.Contains(t, cache.sets, "availability:mechanic:mech-1")
}

func TestAvailabilityServiceCacheHitSkipsStorage(t *testing.T) {
	store := &availabilityStoreStub{}
	cache := newCacheStub()
	cache.values["availability:mechanic:mech-1"] = []models.AppointmentSummary{{ID: "appt-cached"}}
	svc := newTestAvailabilityService(store, cache)

	feed, err := svc.ListForMechanic(context.Background(), "mech-1")
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "appt-cached", feed[0].ID)
	assert.Equal(t, 0, store.calls)
}

func TestAvailabilityServiceCacheFailureFallsThrough(t *testing.T) {
	store := &availabilityStoreStub{summaries: []models.AppointmentSummary{{ID: "appt-1"}}}
	cache := newCacheStub()
	cache.getErr = errors.New("redis down")
	svc := newTestAvailabilityService(store, cache)

	feed, err := svc.ListForMechanic(context.Background(), "mech-1")
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, 1, store.calls)
}

func TestAvailabilityServiceEmptyFeedIsNotNil(t *testing.T) {
	store := &availabilityStoreStub{}
	svc := newTestAvailabilityService(store, newCacheStub())

	feed, err := svc.ListForMechanic(context.Background(), "mech-1")
	require.NoError(t, err)
	require.NotNil(t, feed)
	assert.Empty(t, feed)
}

func TestAvailabilityServiceInvalidation(t *testing.T) {
	cache := newCacheStub()
	svc := newTestAvailabilityService(&availabilityStoreStub{}, cache)

	svc.InvalidateMechanic(context.Background(), "mech-1")
	assert.Equal(t, []string{"availability:mechanic:mech-1"}, cache.deleted)
	assert.Contains(t, cache.sets, "availability:epoch:mechanic:mech-1")

	svc.InvalidateAll(context.Background())
	assert.Equal(t, []string{"availability:mechanic:*"}, cache.patterns)
	assert.Contains(t, cache.sets, "availability:epoch:all")
}

// A feed read that loads storage before a quote commits must not write its
// stale result back into the cache after the quote's invalidation ran.
func TestAvailabilityServiceStaleFillDiscardedAfterInvalidation(t *testing.T) {
	ctx := context.Background()
	store := &availabilityStoreStub{summaries: []models.AppointmentSummary{{ID: "appt-1"}}}
	cache := newCacheStub()
	svc := newTestAvailabilityService(store, cache)

	// While the first read holds its pre-commit snapshot, the quote lands and
	// the write path invalidates the mechanic's feed.
	store.onList = func() {
		store.onList = nil
		svc.InvalidateMechanic(ctx, "mech-1")
		store.summaries = nil
	}

	feed, err := svc.ListForMechanic(ctx, "mech-1")
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.NotContains(t, cache.values, "availability:mechanic:mech-1")

	feed, err = svc.ListForMechanic(ctx, "mech-1")
	require.NoError(t, err)
	assert.Empty(t, feed)
	assert.Equal(t, 2, store.calls)
}
