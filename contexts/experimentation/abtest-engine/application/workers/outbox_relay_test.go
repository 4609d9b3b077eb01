package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"newsfinder/contexts/experimentation/abtest-engine/adapters/memory"
	"newsfinder/contexts/experimentation/abtest-engine/ports"
)

type capturingPublisher struct {
	topics []string
	fail   map[string]error
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	if err := p.fail[event.EventID]; err != nil {
		return err
	}
	p.topics = append(p.topics, topic)
	return nil
}

func appendEvent(t *testing.T, store *memory.Store, eventID string, eventType string, at time.Time) {
	t.Helper()
	if err := store.AppendOutbox(context.Background(), ports.EventEnvelope{
		EventID:      eventID,
		EventType:    eventType,
		OccurredAt:   at,
		PartitionKey: "home_layout",
		Data:         []byte(`{"campaign_id":"home_layout"}`),
	}); err != nil {
		t.Fatalf("append outbox %s: %v", eventID, err)
	}
}

func TestOutboxRelayPublishesInOrderAndMarksRows(t *testing.T) {
	store := memory.NewStore(nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	appendEvent(t, store, "evt-2", "abtest.outcome.recorded", base.Add(time.Second))
	appendEvent(t, store, "evt-1", "abtest.assignment.created", base)

	publisher := &capturingPublisher{}
	relay := OutboxRelay{Outbox: store, Publisher: publisher, Clock: store}
	published, err := relay.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if published != 2 {
		t.Fatalf("expected 2 published, got %d", published)
	}
	if len(publisher.topics) != 2 || publisher.topics[0] != "abtest.assignment.created" || publisher.topics[1] != "abtest.outcome.recorded" {
		t.Fatalf("unexpected publish order %v", publisher.topics)
	}

	again, err := relay.RunOnce(context.Background())
	if err != nil || again != 0 {
		t.Fatalf("expected empty second cycle, got %d %v", again, err)
	}
}

func TestOutboxRelayStopsAtFirstPublishFailure(t *testing.T) {
	store := memory.NewStore(nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	appendEvent(t, store, "evt-1", "abtest.assignment.created", base)
	appendEvent(t, store, "evt-2", "abtest.assignment.created", base.Add(time.Second))

	busDown := errors.New("bus unavailable")
	publisher := &capturingPublisher{fail: map[string]error{"evt-1": busDown}}
	relay := OutboxRelay{Outbox: store, Publisher: publisher, BatchSize: 10}
	published, err := relay.RunOnce(context.Background())
	if !errors.Is(err, busDown) || published != 0 {
		t.Fatalf("expected bus failure with nothing published, got %d %v", published, err)
	}
	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil || len(pending) != 2 {
		t.Fatalf("expected both rows pending, got %d %v", len(pending), err)
	}

	publisher.fail = nil
	published, err = relay.RunOnce(context.Background())
	if err != nil || published != 2 {
		t.Fatalf("expected recovery cycle to publish 2, got %d %v", published, err)
	}
}

func TestOutboxRelayRunStopsOnCancel(t *testing.T) {
	store := memory.NewStore(nil)
	appendEvent(t, store, "evt-1", "abtest.assignment.created", time.Now().UTC())
	publisher := &capturingPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- OutboxRelay{Outbox: store, Publisher: publisher}.Run(ctx, 5*time.Millisecond)
	}()
	deadline := time.After(2 * time.Second)
	for {
		pending, _ := store.ListPendingOutbox(context.Background(), 10)
		if len(pending) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("relay never drained the outbox")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}
