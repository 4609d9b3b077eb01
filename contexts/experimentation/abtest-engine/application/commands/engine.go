package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "newsfinder/contexts/experimentation/abtest-engine/application"
	"newsfinder/contexts/experimentation/abtest-engine/application/policy"
	"newsfinder/contexts/experimentation/abtest-engine/application/queries"
	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	domainerrors "newsfinder/contexts/experimentation/abtest-engine/domain/errors"
	"newsfinder/contexts/experimentation/abtest-engine/ports"
)

const (
	ResolutionExisting = "existing"
	ResolutionCreated  = "created"
	ResolutionRaceLost = "race_lost"
	ResolutionFallback = "fallback"
)

// CampaignRegistry is the registry surface the engine depends on.
type CampaignRegistry interface {
	ports.VariantRegistry
	Campaign(campaignID string) (entities.Campaign, error)
}

type AssignCommand struct {
	CampaignID string
	UserID     string
}

// AssignResult carries the served variant. Fallback marks a fail-safe answer
// that was not persisted; callers should not cache it.
type AssignResult struct {
	CampaignID string
	UserID     string
	VariantID  string
	Policy     entities.PolicyName
	Created    bool
	RaceLost   bool
	Fallback   bool
}

type RecordOutcomeCommand struct {
	CampaignID string
	UserID     string
	Success    bool
	EventID    string
}

type OutcomeResult struct {
	CampaignID string
	UserID     string
	VariantID  string
	Model      entities.BetaModel
	Replayed   bool
}

// ExperimentEngine resolves sticky assignments and feeds outcomes into the
// assigned variant's model. It holds no mutable state of its own: stickiness
// and model parameters live behind Assignments and Models.
type ExperimentEngine struct {
	Registry    CampaignRegistry
	Assignments ports.AssignmentStore
	Models      ports.ModelRepository
	Policies    policy.Set
	Outbox      ports.OutboxWriter
	Observer    ports.Observer
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	FailSafe    bool
	Logger      *slog.Logger
}

// Assign returns the user's variant, creating the assignment on first view.
// Concurrent first views converge on whichever create won at the store.
func (e ExperimentEngine) Assign(ctx context.Context, cmd AssignCommand) (AssignResult, error) {
	logger := application.ResolveLogger(e.Logger)
	campaignID := strings.TrimSpace(cmd.CampaignID)
	userID := strings.TrimSpace(cmd.UserID)
	if campaignID == "" || userID == "" {
		logger.Warn("assignment validation failed",
			"event", "abtest_assign_validation_failed",
			"module", "experimentation/abtest-engine",
			"layer", "application",
			"campaign_id", campaignID,
			"user_id", userID,
		)
		return AssignResult{}, domainerrors.ErrInvalidInput
	}
	campaign, err := e.Registry.Campaign(campaignID)
	if err != nil {
		logger.Warn("assignment for unknown campaign",
			"event", "abtest_assign_unknown_campaign",
			"module", "experimentation/abtest-engine",
			"layer", "application",
			"campaign_id", campaignID,
			"user_id", userID,
		)
		return AssignResult{}, err
	}

	existing, found, err := e.Assignments.LookupAssignment(ctx, campaignID, userID)
	if err != nil {
		return e.failSafe(campaign, userID, "lookup", err)
	}
	if found {
		e.observeAssignment(campaignID, existing, ResolutionExisting)
		return AssignResult{
			CampaignID: campaignID,
			UserID:     userID,
			VariantID:  existing,
		}, nil
	}

	selected, err := e.Policies.Resolve(campaign.Policy)
	if err != nil {
		logger.Error("assignment policy resolution failed",
			"event", "abtest_assign_policy_unknown",
			"module", "experimentation/abtest-engine",
			"layer", "application",
			"campaign_id", campaignID,
			"policy", string(campaign.Policy),
		)
		return AssignResult{}, err
	}
	chosen, err := selected.Choose(ctx, e.Registry, campaignID)
	if err != nil {
		if domainerrors.IsDomain(err) {
			logger.Error("assignment policy rejected campaign",
				"event", "abtest_assign_policy_failed",
				"module", "experimentation/abtest-engine",
				"layer", "application",
				"campaign_id", campaignID,
				"policy", string(selected.Name()),
				"error", err.Error(),
			)
			return AssignResult{}, err
		}
		return e.failSafe(campaign, userID, "choose", err)
	}

	assignment := entities.Assignment{
		CampaignID: campaignID,
		UserID:     userID,
		VariantID:  chosen,
		Policy:     selected.Name(),
		AssignedAt: e.now(),
	}
	inserted, err := e.Assignments.CreateAssignment(ctx, assignment)
	switch {
	case errors.Is(err, domainerrors.ErrAlreadyAssigned):
		// Another request won the conditional create; its decision stands.
		winner, found, lookupErr := e.Assignments.LookupAssignment(ctx, campaignID, userID)
		if lookupErr != nil {
			logger.Error("assignment race re-read failed",
				"event", "abtest_assign_race_reread_failed",
				"module", "experimentation/abtest-engine",
				"layer", "application",
				"campaign_id", campaignID,
				"user_id", userID,
				"error", lookupErr.Error(),
			)
			return AssignResult{}, lookupErr
		}
		if !found {
			return AssignResult{}, domainerrors.ErrConflict
		}
		logger.Info("assignment race lost; serving winner",
			"event", "abtest_assign_race_lost",
			"module", "experimentation/abtest-engine",
			"layer", "application",
			"campaign_id", campaignID,
			"user_id", userID,
			"discarded_variant_id", chosen,
			"variant_id", winner,
		)
		e.observeAssignment(campaignID, winner, ResolutionRaceLost)
		return AssignResult{
			CampaignID: campaignID,
			UserID:     userID,
			VariantID:  winner,
			RaceLost:   true,
		}, nil
	case err != nil:
		return e.failSafe(campaign, userID, "create", err)
	case !inserted:
		// The same variant was already stored; whoever wrote it owns the event.
		logger.Info("assignment already stored",
			"event", "abtest_assign_already_stored",
			"module", "experimentation/abtest-engine",
			"layer", "application",
			"campaign_id", campaignID,
			"user_id", userID,
			"variant_id", chosen,
		)
		e.observeAssignment(campaignID, chosen, ResolutionExisting)
		return AssignResult{
			CampaignID: campaignID,
			UserID:     userID,
			VariantID:  chosen,
		}, nil
	}

	e.appendEvent(ctx, ports.EventAssignmentCreated, campaignID, assignment.AssignedAt, map[string]any{
		"campaign_id": campaignID,
		"user_id":     userID,
		"variant_id":  chosen,
		"policy":      string(selected.Name()),
		"assigned_at": assignment.AssignedAt.Format(time.RFC3339Nano),
	})
	e.observeAssignment(campaignID, chosen, ResolutionCreated)
	logger.Info("assignment created",
		"event", "abtest_assign_created",
		"module", "experimentation/abtest-engine",
		"layer", "application",
		"campaign_id", campaignID,
		"user_id", userID,
		"variant_id", chosen,
		"policy", string(selected.Name()),
	)
	return AssignResult{
		CampaignID: campaignID,
		UserID:     userID,
		VariantID:  chosen,
		Policy:     selected.Name(),
		Created:    true,
	}, nil
}

// Lookup reports an existing assignment without creating one.
func (e ExperimentEngine) Lookup(ctx context.Context, campaignID string, userID string) (string, bool, error) {
	campaignID = strings.TrimSpace(campaignID)
	userID = strings.TrimSpace(userID)
	if campaignID == "" || userID == "" {
		return "", false, domainerrors.ErrInvalidInput
	}
	if _, err := e.Registry.Campaign(campaignID); err != nil {
		return "", false, err
	}
	return e.Assignments.LookupAssignment(ctx, campaignID, userID)
}

// RecordOutcome applies one outcome to the variant the user was assigned.
// Outcomes for users that were never assigned are rejected.
func (e ExperimentEngine) RecordOutcome(ctx context.Context, cmd RecordOutcomeCommand) (OutcomeResult, error) {
	logger := application.ResolveLogger(e.Logger)
	campaignID := strings.TrimSpace(cmd.CampaignID)
	userID := strings.TrimSpace(cmd.UserID)
	eventID := strings.TrimSpace(cmd.EventID)
	if campaignID == "" || userID == "" {
		logger.Warn("outcome validation failed",
			"event", "abtest_outcome_validation_failed",
			"module", "experimentation/abtest-engine",
			"layer", "application",
			"campaign_id", campaignID,
			"user_id", userID,
		)
		return OutcomeResult{}, domainerrors.ErrInvalidInput
	}
	campaign, err := e.Registry.Campaign(campaignID)
	if err != nil {
		return OutcomeResult{}, err
	}

	variantID, found, err := e.Assignments.LookupAssignment(ctx, campaignID, userID)
	if err != nil {
		logger.Error("outcome assignment lookup failed",
			"event", "abtest_outcome_lookup_failed",
			"module", "experimentation/abtest-engine",
			"layer", "application",
			"campaign_id", campaignID,
			"user_id", userID,
			"error", err.Error(),
		)
		return OutcomeResult{}, err
	}
	if !found {
		logger.Warn("outcome reported before assignment",
			"event", "abtest_outcome_without_assignment",
			"module", "experimentation/abtest-engine",
			"layer", "application",
			"campaign_id", campaignID,
			"user_id", userID,
		)
		return OutcomeResult{}, domainerrors.ErrNoAssignment
	}
	variant, ok := campaign.Variant(variantID)
	if !ok {
		logger.Error("assignment references variant outside campaign",
			"event", "abtest_outcome_unknown_variant",
			"module", "experimentation/abtest-engine",
			"layer", "application",
			"campaign_id", campaignID,
			"user_id", userID,
			"variant_id", variantID,
		)
		return OutcomeResult{}, domainerrors.ErrUnknownVariant
	}

	model, replayed, err := e.Models.ApplyOutcome(ctx, ports.OutcomeUpdate{
		CampaignID: campaignID,
		VariantID:  variantID,
		Success:    cmd.Success,
		EventID:    eventID,
		Initial:    campaign.InitialModel(variant),
	})
	if err != nil {
		logger.Error("outcome model update failed",
			"event", "abtest_outcome_update_failed",
			"module", "experimentation/abtest-engine",
			"layer", "application",
			"campaign_id", campaignID,
			"user_id", userID,
			"variant_id", variantID,
			"error", err.Error(),
		)
		return OutcomeResult{}, err
	}
	if e.Observer != nil {
		e.Observer.OutcomeRecorded(campaignID, variantID, cmd.Success, replayed)
	}
	if replayed {
		logger.Info("outcome replayed",
			"event", "abtest_outcome_replayed",
			"module", "experimentation/abtest-engine",
			"layer", "application",
			"campaign_id", campaignID,
			"variant_id", variantID,
			"outcome_event_id", eventID,
		)
	} else {
		occurredAt := e.now()
		e.appendEvent(ctx, ports.EventOutcomeRecorded, campaignID, occurredAt, map[string]any{
			"campaign_id":      campaignID,
			"user_id":          userID,
			"variant_id":       variantID,
			"success":          cmd.Success,
			"outcome_event_id": eventID,
			"alpha":            model.Alpha,
			"beta":             model.Beta,
			"occurred_at":      occurredAt.Format(time.RFC3339Nano),
		})
		logger.Info("outcome recorded",
			"event", "abtest_outcome_recorded",
			"module", "experimentation/abtest-engine",
			"layer", "application",
			"campaign_id", campaignID,
			"variant_id", variantID,
			"success", cmd.Success,
			"alpha", model.Alpha,
			"beta", model.Beta,
		)
	}
	return OutcomeResult{
		CampaignID: campaignID,
		UserID:     userID,
		VariantID:  variantID,
		Model:      model,
		Replayed:   replayed,
	}, nil
}

// Estimate reports every variant's posterior. Read-only.
func (e ExperimentEngine) Estimate(ctx context.Context, campaignID string) (entities.CampaignEstimate, error) {
	return queries.EstimateUseCase{Campaigns: e.Registry}.Estimate(ctx, campaignID)
}

// failSafe serves the control variant when the store cannot answer, so the
// page still renders. Nothing is persisted: the next view retries the real
// assignment.
func (e ExperimentEngine) failSafe(
	campaign entities.Campaign,
	userID string,
	stage string,
	cause error,
) (AssignResult, error) {
	logger := application.ResolveLogger(e.Logger)
	control, ok := campaign.Control()
	if !e.FailSafe || !ok {
		logger.Error("assignment failed",
			"event", "abtest_assign_failed",
			"module", "experimentation/abtest-engine",
			"layer", "application",
			"campaign_id", campaign.CampaignID,
			"user_id", userID,
			"stage", stage,
			"error", cause.Error(),
		)
		return AssignResult{}, cause
	}
	logger.Error("assignment failed; serving control variant",
		"event", "abtest_assign_fallback",
		"module", "experimentation/abtest-engine",
		"layer", "application",
		"campaign_id", campaign.CampaignID,
		"user_id", userID,
		"stage", stage,
		"variant_id", control.VariantID,
		"error", cause.Error(),
	)
	e.observeAssignment(campaign.CampaignID, control.VariantID, ResolutionFallback)
	return AssignResult{
		CampaignID: campaign.CampaignID,
		UserID:     userID,
		VariantID:  control.VariantID,
		Fallback:   true,
	}, nil
}

func (e ExperimentEngine) observeAssignment(campaignID string, variantID string, resolution string) {
	if e.Observer != nil {
		e.Observer.AssignmentResolved(campaignID, variantID, resolution)
	}
}

// appendEvent writes to the outbox when one is wired. The state change has
// already committed, so a failed append is logged rather than surfaced.
func (e ExperimentEngine) appendEvent(
	ctx context.Context,
	eventType string,
	campaignID string,
	occurredAt time.Time,
	data map[string]any,
) {
	if e.Outbox == nil || e.IDGen == nil {
		return
	}
	logger := application.ResolveLogger(e.Logger)
	eventID, err := e.IDGen.NewID(ctx)
	if err == nil {
		var envelope ports.EventEnvelope
		envelope, err = newExperimentEnvelope(eventID, eventType, campaignID, occurredAt, data)
		if err == nil {
			err = e.Outbox.AppendOutbox(ctx, envelope)
		}
	}
	if err != nil {
		logger.Warn("experiment event append failed",
			"event", "abtest_outbox_append_failed",
			"module", "experimentation/abtest-engine",
			"layer", "application",
			"event_type", eventType,
			"campaign_id", campaignID,
			"error", err.Error(),
		)
	}
}

func (e ExperimentEngine) now() time.Time {
	now := time.Now().UTC()
	if e.Clock != nil {
		now = e.Clock.Now().UTC()
	}
	return now
}
