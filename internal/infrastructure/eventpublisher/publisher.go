package eventpublisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

// EventPublisher relays committed wallet events from the outbox.
type EventPublisher struct {
	outboxRepo usecase.OutboxRepository
	publisher  Publisher
	recorder   Recorder
	clock      domain.Clock
	logger     zerolog.Logger
	batchSize  int
	interval   time.Duration
	retention  time.Duration
	lastPurge  time.Time
}

// Publisher defines the interface for publishing events to external systems.
type Publisher interface {
	Publish(ctx context.Context, event *domain.OutboxEvent) error
}

// Recorder receives publishing metrics.
type Recorder interface {
	RecordOutboxBatch(size int)
	RecordOutboxPublish(err error)
}

// Config for EventPublisher.
type Config struct {
	OutboxRepo usecase.OutboxRepository
	Publisher  Publisher
	Recorder   Recorder
	Clock      domain.Clock
	Logger     zerolog.Logger
	BatchSize  int           // Number of events to fetch per batch
	Interval   time.Duration // Polling interval
	Retention  time.Duration // How long published rows are kept; 0 keeps them forever
}

// NewEventPublisher creates a new EventPublisher.
func NewEventPublisher(cfg Config) *EventPublisher {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = domain.SystemClock{}
	}

	return &EventPublisher{
		outboxRepo: cfg.OutboxRepo,
		publisher:  cfg.Publisher,
		recorder:   cfg.Recorder,
		clock:      cfg.Clock,
		logger:     cfg.Logger.With().Str("component", "event_publisher").Logger(),
		batchSize:  cfg.BatchSize,
		interval:   cfg.Interval,
		retention:  cfg.Retention,
	}
}

// Start begins the event publishing worker.
// It runs continuously until the context is cancelled.
func (ep *EventPublisher) Start(ctx context.Context) error {
	ep.logger.Info().
		Int("batch_size", ep.batchSize).
		Dur("interval", ep.interval).
		Msg("event publisher started")

	ticker := time.NewTicker(ep.interval)
	defer ticker.Stop()

	// Process immediately on start
	ep.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			ep.logger.Info().Msg("event publisher shutting down")
			return ctx.Err()
		case <-ticker.C:
			ep.tick(ctx)
		}
	}
}

func (ep *EventPublisher) tick(ctx context.Context) {
	if err := ep.processEvents(ctx); err != nil && ctx.Err() == nil {
		ep.logger.Error().Err(err).Msg("error processing events")
	}
	if err := ep.purge(ctx); err != nil && ctx.Err() == nil {
		ep.logger.Error().Err(err).Msg("error purging published events")
	}
}

// processEvents fetches and publishes a batch of unpublished events. A
// failure holds back the rest of that wallet's events so consumers see each
// wallet's events in version order.
func (ep *EventPublisher) processEvents(ctx context.Context) error {
	events, err := ep.outboxRepo.GetUnpublished(ctx, ep.batchSize)
	if err != nil {
		return err
	}

	if ep.recorder != nil {
		ep.recorder.RecordOutboxBatch(len(events))
	}

	if len(events) == 0 {
		return nil
	}

	ep.logger.Debug().Int("count", len(events)).Msg("processing events")

	blocked := make(map[string]bool)
	for _, event := range events {
		if blocked[event.AggregateID] {
			continue
		}

		err := ep.publisher.Publish(ctx, event)
		if ep.recorder != nil {
			ep.recorder.RecordOutboxPublish(err)
		}
		if err != nil {
			blocked[event.AggregateID] = true
			ep.logger.Error().Err(err).
				Str("event_id", event.ID).
				Str("event_type", event.EventType).
				Str("wallet_id", event.AggregateID).
				Msg("failed to publish event")
			continue
		}

		if err := ep.outboxRepo.MarkPublished(ctx, event.ID, ep.clock.Now()); err != nil {
			// The event will be published again on the next poll.
			blocked[event.AggregateID] = true
			ep.logger.Error().Err(err).
				Str("event_id", event.ID).
				Msg("failed to mark event as published")
		}
	}

	return nil
}

// purge deletes published rows older than the retention window, at most once
// per hour.
func (ep *EventPublisher) purge(ctx context.Context) error {
	if ep.retention <= 0 {
		return nil
	}
	now := ep.clock.Now()
	if !ep.lastPurge.IsZero() && now.Sub(ep.lastPurge) < time.Hour {
		return nil
	}
	ep.lastPurge = now
	return ep.outboxRepo.DeletePublished(ctx, now.Add(-ep.retention))
}

// LogPublisher writes events to the log instead of a broker.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a new LogPublisher.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	p.logger.Info().
		Str("event_id", event.ID).
		Str("event_type", event.EventType).
		Str("aggregate_type", event.AggregateType).
		Str("wallet_id", event.AggregateID).
		Int64("version", event.Version).
		RawJSON("payload", payload).
		Msg("event published")

	return nil
}
