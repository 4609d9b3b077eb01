package ports

import (
	"context"
	"time"

	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	"newsfinder/internal/shared/events"
	"newsfinder/internal/shared/outbox"
)

// AssignmentStore is the single source of truth for sticky assignments.
// CreateAssignment is a conditional insert-if-absent. It reports true only
// when this call wrote the row. Writing the value that already exists is a
// no-op reported as false; writing a different one fails with
// ErrAlreadyAssigned.
type AssignmentStore interface {
	LookupAssignment(ctx context.Context, campaignID string, userID string) (string, bool, error)
	CreateAssignment(ctx context.Context, assignment entities.Assignment) (bool, error)
	ListAssignments(ctx context.Context, campaignID string) ([]entities.Assignment, error)
}

// OutcomeUpdate routes one outcome to a variant's model. Initial is the model
// to start from when the variant has no persisted row yet.
type OutcomeUpdate struct {
	CampaignID string
	VariantID  string
	Success    bool
	EventID    string
	Initial    entities.BetaModel
}

// ModelRepository persists per-variant Beta models. ApplyOutcome must be an
// atomic read-modify-write against the latest persisted parameters.
type ModelRepository interface {
	GetModel(ctx context.Context, campaignID string, variantID string) (entities.BetaModel, bool, error)
	SeedModel(ctx context.Context, campaignID string, variantID string, initial entities.BetaModel) error
	ApplyOutcome(ctx context.Context, update OutcomeUpdate) (entities.BetaModel, bool, error)
}

// VariantRegistry is the read view policies need.
type VariantRegistry interface {
	VariantsOf(campaignID string) ([]string, error)
	ModelOf(ctx context.Context, campaignID string, variantID string) (entities.BetaModel, error)
}

// Event types appended to the outbox; the relay publishes each on the topic
// of the same name.
const (
	EventAssignmentCreated = "abtest.assignment.created"
	EventOutcomeRecorded   = "abtest.outcome.recorded"
)

type EventEnvelope = events.Envelope

type OutboxMessage = outbox.Message

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

// DeliveryObserver is told about every relayed event a consumer handled.
type DeliveryObserver interface {
	EventDelivered(eventType string, campaignID string, lag time.Duration)
}

// Observer receives engine decisions for metrics. Implementations must not
// block.
type Observer interface {
	AssignmentResolved(campaignID string, variantID string, resolution string)
	OutcomeRecorded(campaignID string, variantID string, success bool, replayed bool)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
