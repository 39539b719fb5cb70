package eventpublisher

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

func TestProcessEventsPublishesAndMarks(t *testing.T) {
	repo := &stubOutboxRepo{
		events: []*domain.OutboxEvent{{ID: "evt-1", AggregateID: "w1", EventType: domain.EventKindMoneyDeposited}},
	}
	pub := &stubPublisher{}
	rec := &stubRecorder{}
	ep := newTestPublisher(repo, pub)
	ep.recorder = rec

	if err := ep.processEvents(context.Background()); err != nil {
		t.Fatalf("processEvents failed: %v", err)
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected one published event, got %d", len(pub.published))
	}
	if len(repo.marked) != 1 || repo.marked[0] != "evt-1" {
		t.Fatalf("expected event to be marked published, got %#v", repo.marked)
	}
	if rec.batch != 1 || rec.ok != 1 {
		t.Fatalf("expected metrics to be recorded, got %+v", rec)
	}
}

func TestProcessEventsHoldsBackFailedWallet(t *testing.T) {
	repo := &stubOutboxRepo{
		events: []*domain.OutboxEvent{
			{ID: "evt-1", AggregateID: "w1", EventType: "type"},
			{ID: "evt-2", AggregateID: "w2", EventType: "type"},
			{ID: "evt-3", AggregateID: "w1", EventType: "type"},
		},
	}
	pub := &stubPublisher{
		errorsByID: map[string]error{"evt-1": errors.New("fail")},
	}
	ep := newTestPublisher(repo, pub)

	if err := ep.processEvents(context.Background()); err != nil {
		t.Fatalf("processEvents returned error: %v", err)
	}

	if len(pub.published) != 1 || pub.published[0].ID != "evt-2" {
		t.Fatalf("expected only evt-2 to be published, got %#v", pub.published)
	}
	if len(repo.marked) != 1 || repo.marked[0] != "evt-2" {
		t.Fatalf("expected only evt-2 to be marked, got %#v", repo.marked)
	}
}

func TestProcessEventsFetchError(t *testing.T) {
	repo := &stubOutboxRepo{fetchErr: domain.ErrStorage}
	ep := newTestPublisher(repo, &stubPublisher{})

	if err := ep.processEvents(context.Background()); !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestPurgeRespectsRetentionAndInterval(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := &manualClock{now: now}
	repo := &stubOutboxRepo{}
	ep := newTestPublisher(repo, &stubPublisher{})
	ep.clock = clock
	ep.retention = 24 * time.Hour

	if err := ep.purge(context.Background()); err != nil {
		t.Fatalf("purge: %v", err)
	}
	clock.now = now.Add(10 * time.Minute)
	if err := ep.purge(context.Background()); err != nil {
		t.Fatalf("purge: %v", err)
	}

	if len(repo.purgedBefore) != 1 {
		t.Fatalf("expected a single purge within the hour, got %d", len(repo.purgedBefore))
	}
	if !repo.purgedBefore[0].Equal(now.Add(-24 * time.Hour)) {
		t.Fatalf("unexpected cutoff %v", repo.purgedBefore[0])
	}
}

func TestStartStopsOnContextCancellation(t *testing.T) {
	repo := &stubOutboxRepo{}
	pub := &stubPublisher{}
	ep := newTestPublisher(repo, pub)
	ep.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ep.Start(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop after cancel")
	}
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))

	err := p.Publish(context.Background(), &domain.OutboxEvent{
		ID:          "evt-1",
		AggregateID: "w1",
		EventType:   domain.EventKindWalletCreated,
		Version:     1,
		Payload:     map[string]any{"owner_id": "o"},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !strings.Contains(buf.String(), `"payload":{"owner_id":"o"}`) {
		t.Fatalf("expected payload in log line, got %q", buf.String())
	}
}

func newTestPublisher(repo *stubOutboxRepo, pub *stubPublisher) *EventPublisher {
	return NewEventPublisher(Config{
		OutboxRepo: repo,
		Publisher:  pub,
		Logger:     zerolog.Nop(),
		BatchSize:  10,
		Interval:   5 * time.Millisecond,
	})
}

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

type stubOutboxRepo struct {
	events       []*domain.OutboxEvent
	marked       []string
	purgedBefore []time.Time
	fetchErr     error
}

func (s *stubOutboxRepo) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	return nil
}

func (s *stubOutboxRepo) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if len(s.events) <= limit {
		return append([]*domain.OutboxEvent(nil), s.events...), nil
	}
	return append([]*domain.OutboxEvent(nil), s.events[:limit]...), nil
}

func (s *stubOutboxRepo) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	s.marked = append(s.marked, id)
	return nil
}

func (s *stubOutboxRepo) DeletePublished(ctx context.Context, before time.Time) error {
	s.purgedBefore = append(s.purgedBefore, before)
	return nil
}

type stubPublisher struct {
	published  []*domain.OutboxEvent
	errorsByID map[string]error
}

func (s *stubPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	if err := s.errorsByID[event.ID]; err != nil {
		return err
	}
	s.published = append(s.published, event)
	return nil
}

type stubRecorder struct {
	batch, ok, failed int
}

func (r *stubRecorder) RecordOutboxBatch(size int) { r.batch = size }

func (r *stubRecorder) RecordOutboxPublish(err error) {
	if err != nil {
		r.failed++
		return
	}
	r.ok++
}
