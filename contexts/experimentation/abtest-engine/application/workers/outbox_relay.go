package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "newsfinder/contexts/experimentation/abtest-engine/application"
	"newsfinder/contexts/experimentation/abtest-engine/ports"
)

const defaultRelayBatchSize = 100

// OutboxRelay publishes pending experiment events to the bus.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce publishes one bounded batch in creation order. A row is marked
// published only after the bus accepts it, and the cycle stops at the first
// failure so the next cycle resumes from that row.
func (r OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = defaultRelayBatchSize
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("abtest outbox list failed",
			"event", "abtest_outbox_list_failed",
			"module", "experimentation/abtest-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}
	if len(pending) == 0 {
		logger.Debug("abtest outbox relay found no pending rows",
			"event", "abtest_outbox_relay_noop",
			"module", "experimentation/abtest-engine",
			"layer", "worker",
			"batch_size", limit,
		)
		return 0, nil
	}

	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}

	published := 0
	for _, row := range pending {
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			logger.Error("abtest outbox decode failed",
				"event", "abtest_outbox_decode_failed",
				"module", "experimentation/abtest-engine",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return published, err
		}
		topic := event.EventType
		if topic == "" {
			topic = row.EventType
		}
		if err := r.Publisher.Publish(ctx, topic, event); err != nil {
			logger.Error("abtest outbox publish failed",
				"event", "abtest_outbox_publish_failed",
				"module", "experimentation/abtest-engine",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_type", event.EventType,
				"error", err.Error(),
			)
			return published, err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
			logger.Error("abtest outbox mark published failed",
				"event", "abtest_outbox_mark_published_failed",
				"module", "experimentation/abtest-engine",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return published, err
		}
		published++
	}

	logger.Info("abtest outbox relay cycle completed",
		"event", "abtest_outbox_relay_completed",
		"module", "experimentation/abtest-engine",
		"layer", "worker",
		"published_count", published,
	)
	return published, nil
}

// Run repeats RunOnce every interval until ctx is cancelled. Cycle failures
// are logged by RunOnce and retried on the next tick.
func (r OutboxRelay) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_, _ = r.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
