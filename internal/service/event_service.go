package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mechlink/marketplace-api/internal/models"
	"github.com/mechlink/marketplace-api/pkg/config"
	"github.com/mechlink/marketplace-api/pkg/jobs"
)

type eventPublisher interface {
	Publish(ctx context.Context, channel string, value interface{}) error
}

// EventService fans engine events out to the realtime channel. Delivery is
// best-effort with retries; the engine's correctness never depends on it.
type EventService struct {
	publisher eventPublisher
	channel   string
	queue     *jobs.Queue
	logger    *zap.Logger
}

// NewEventService constructs the service and its dispatch queue.
func NewEventService(publisher eventPublisher, cfg config.EventsConfig, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &EventService{
		publisher: publisher,
		channel:   cfg.Channel,
		logger:    logger,
	}
	svc.queue = jobs.NewQueue("events", svc.publish, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return svc
}

// Start boots the dispatch workers.
func (s *EventService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *EventService) Stop() {
	s.queue.Stop()
}

// Emit queues an event for publication. Failures are logged, never returned:
// a dropped realtime notification must not fail the state transition that
// already committed.
func (s *EventService) Emit(event models.AppointmentEvent) {
	if err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(event.Type),
		Payload: event,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to enqueue event", "appointment_id", event.AppointmentID, "type", event.Type, "error", err)
	}
}

func (s *EventService) publish(ctx context.Context, job jobs.Job) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.Publish(ctx, s.channel, job.Payload)
}
