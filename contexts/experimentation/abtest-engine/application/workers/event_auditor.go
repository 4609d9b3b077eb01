package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "newsfinder/contexts/experimentation/abtest-engine/application"
	"newsfinder/contexts/experimentation/abtest-engine/ports"
)

// AuditedTopics are the topics EventAuditor consumes.
var AuditedTopics = []string{ports.EventAssignmentCreated, ports.EventOutcomeRecorded}

// EventAuditor consumes relayed experiment events and writes one audit log
// line per event. Observer, when set, is told about each delivery.
type EventAuditor struct {
	Observer ports.DeliveryObserver
	Clock    ports.Clock
	Logger   *slog.Logger
}

type auditedPayload struct {
	CampaignID string `json:"campaign_id"`
	UserID     string `json:"user_id"`
	VariantID  string `json:"variant_id"`
	Policy     string `json:"policy"`
	Success    *bool  `json:"success"`
}

// Run handles events until ctx is cancelled or the stream is closed.
func (a EventAuditor) Run(ctx context.Context, stream <-chan ports.EventEnvelope) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-stream:
			if !ok {
				return nil
			}
			a.Handle(event)
		}
	}
}

// Handle audits a single event. Payloads that fail to decode are still
// counted under the envelope's partition key.
func (a EventAuditor) Handle(event ports.EventEnvelope) {
	logger := application.ResolveLogger(a.Logger)
	var payload auditedPayload
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			logger.Warn("abtest event payload undecodable",
				"event", "abtest_event_audit_decode_failed",
				"module", "experimentation/abtest-engine",
				"layer", "worker",
				"event_id", event.EventID,
				"event_type", event.EventType,
				"error", err.Error(),
			)
		}
	}
	campaignID := payload.CampaignID
	if campaignID == "" {
		campaignID = event.PartitionKey
	}

	now := time.Now().UTC()
	if a.Clock != nil {
		now = a.Clock.Now().UTC()
	}
	var lag time.Duration
	if !event.OccurredAt.IsZero() && now.After(event.OccurredAt) {
		lag = now.Sub(event.OccurredAt)
	}

	attrs := []any{
		"event", "abtest_event_audited",
		"module", "experimentation/abtest-engine",
		"layer", "worker",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"campaign_id", campaignID,
		"user_id", payload.UserID,
		"variant_id", payload.VariantID,
		"delivery_lag_ms", lag.Milliseconds(),
	}
	if payload.Policy != "" {
		attrs = append(attrs, "policy", payload.Policy)
	}
	if payload.Success != nil {
		attrs = append(attrs, "success", *payload.Success)
	}
	logger.Info("abtest event audited", attrs...)

	if a.Observer != nil {
		a.Observer.EventDelivered(event.EventType, campaignID, lag)
	}
}
