package httpadapter

import (
	"context"
	"log/slog"

	application "newsfinder/contexts/experimentation/abtest-engine/application"
	"newsfinder/contexts/experimentation/abtest-engine/application/commands"
	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	domainerrors "newsfinder/contexts/experimentation/abtest-engine/domain/errors"
	httptransport "newsfinder/contexts/experimentation/abtest-engine/transport/http"
)

// CampaignCatalog lists the static campaign definitions.
type CampaignCatalog interface {
	Campaigns() []entities.Campaign
	Campaign(campaignID string) (entities.Campaign, error)
}

type Handler struct {
	Engine    commands.ExperimentEngine
	Campaigns CampaignCatalog
	Logger    *slog.Logger
}

// ListCampaignsHandler godoc
// @Summary List experiment campaigns
// @Description Returns the static campaign definitions with their variants.
// @Tags abtest-engine
// @Produce json
// @Success 200 {object} httptransport.CampaignListResponse
// @Router /v1/abtest/campaigns [get]
func (h Handler) ListCampaignsHandler(_ context.Context) httptransport.CampaignListResponse {
	campaigns := h.Campaigns.Campaigns()
	items := make([]httptransport.CampaignDefinition, 0, len(campaigns))
	for _, campaign := range campaigns {
		items = append(items, mapCampaign(campaign))
	}
	return httptransport.CampaignListResponse{Items: items}
}

// AssignHandler godoc
// @Summary Resolve a user's variant
// @Description Returns the sticky variant for the user, assigning one on first view.
// @Tags abtest-engine
// @Accept json
// @Produce json
// @Param campaign_id path string true "Campaign id"
// @Param X-User-Id header string false "User id when the body omits it"
// @Param request body httptransport.AssignRequest false "Assignment request"
// @Success 200 {object} httptransport.AssignmentResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/abtest/campaigns/{campaign_id}/assignments [post]
func (h Handler) AssignHandler(
	ctx context.Context,
	campaignID string,
	req httptransport.AssignRequest,
) (httptransport.AssignmentResponse, error) {
	result, err := h.Engine.Assign(ctx, commands.AssignCommand{
		CampaignID: campaignID,
		UserID:     req.UserID,
	})
	if err != nil {
		application.ResolveLogger(h.Logger).Warn("assign request failed",
			"event", "http_abtest_assign_failed",
			"module", "experimentation/abtest-engine",
			"layer", "transport",
			"campaign_id", campaignID,
			"error", err.Error(),
		)
		return httptransport.AssignmentResponse{}, err
	}
	return httptransport.AssignmentResponse{
		CampaignID: result.CampaignID,
		UserID:     result.UserID,
		VariantID:  result.VariantID,
		Template:   h.templateOf(result.CampaignID, result.VariantID),
		Created:    result.Created,
		Fallback:   result.Fallback,
	}, nil
}

// GetAssignmentHandler godoc
// @Summary Read an existing assignment
// @Tags abtest-engine
// @Produce json
// @Param campaign_id path string true "Campaign id"
// @Param user_id path string true "User id"
// @Success 200 {object} httptransport.AssignmentResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/abtest/campaigns/{campaign_id}/assignments/{user_id} [get]
func (h Handler) GetAssignmentHandler(
	ctx context.Context,
	campaignID string,
	userID string,
) (httptransport.AssignmentResponse, error) {
	variantID, found, err := h.Engine.Lookup(ctx, campaignID, userID)
	if err != nil {
		return httptransport.AssignmentResponse{}, err
	}
	if !found {
		return httptransport.AssignmentResponse{}, domainerrors.ErrNoAssignment
	}
	return httptransport.AssignmentResponse{
		CampaignID: campaignID,
		UserID:     userID,
		VariantID:  variantID,
		Template:   h.templateOf(campaignID, variantID),
	}, nil
}

// RecordOutcomeHandler godoc
// @Summary Record a binary outcome
// @Description Updates the posterior of the variant the user was assigned.
// @Tags abtest-engine
// @Accept json
// @Produce json
// @Param campaign_id path string true "Campaign id"
// @Param Idempotency-Key header string false "Outcome event id; repeats are applied once"
// @Param request body httptransport.RecordOutcomeRequest true "Outcome"
// @Success 200 {object} httptransport.OutcomeResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/abtest/campaigns/{campaign_id}/outcomes [post]
func (h Handler) RecordOutcomeHandler(
	ctx context.Context,
	campaignID string,
	idempotencyKey string,
	req httptransport.RecordOutcomeRequest,
) (httptransport.OutcomeResponse, error) {
	if req.Success == nil {
		return httptransport.OutcomeResponse{}, domainerrors.ErrInvalidInput
	}
	result, err := h.Engine.RecordOutcome(ctx, commands.RecordOutcomeCommand{
		CampaignID: campaignID,
		UserID:     req.UserID,
		Success:    *req.Success,
		EventID:    idempotencyKey,
	})
	if err != nil {
		return httptransport.OutcomeResponse{}, err
	}
	return httptransport.OutcomeResponse{
		CampaignID: result.CampaignID,
		UserID:     result.UserID,
		VariantID:  result.VariantID,
		Alpha:      result.Model.Alpha,
		Beta:       result.Model.Beta,
		Replayed:   result.Replayed,
	}, nil
}

// EstimateHandler godoc
// @Summary Campaign posterior estimate
// @Description Per-variant posterior summary plus a pairwise comparison.
// @Tags abtest-engine
// @Produce json
// @Param campaign_id path string true "Campaign id"
// @Success 200 {object} httptransport.EstimateResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/abtest/campaigns/{campaign_id}/estimate [get]
func (h Handler) EstimateHandler(ctx context.Context, campaignID string) (httptransport.EstimateResponse, error) {
	estimate, err := h.Engine.Estimate(ctx, campaignID)
	if err != nil {
		return httptransport.EstimateResponse{}, err
	}
	response := httptransport.EstimateResponse{
		CampaignID: estimate.CampaignID,
		Variants:   make([]httptransport.VariantEstimateResponse, 0, len(estimate.Variants)),
	}
	for _, variant := range estimate.Variants {
		response.Variants = append(response.Variants, httptransport.VariantEstimateResponse{
			VariantID:     variant.VariantID,
			Alpha:         variant.Alpha,
			Beta:          variant.Beta,
			Mean:          variant.Mean,
			Observations:  variant.Observations,
			CredibleLow:   variant.CredibleLow,
			CredibleHigh:  variant.CredibleHigh,
			CredibleLevel: variant.CredibleLevel,
		})
	}
	if comparison := estimate.Comparison; comparison != nil {
		response.Comparison = &httptransport.ComparisonResponse{
			VariantA:          comparison.VariantA,
			VariantB:          comparison.VariantB,
			ProbabilityABeatB: comparison.ProbabilityABeatB,
			ProbabilityBBeatA: comparison.ProbabilityBBeatA,
			ExpectedLossA:     comparison.ExpectedLossA,
			ExpectedLossB:     comparison.ExpectedLossB,
			LiftOfB:           comparison.LiftOfB,
		}
	}
	return response, nil
}

func (h Handler) templateOf(campaignID string, variantID string) string {
	campaign, err := h.Campaigns.Campaign(campaignID)
	if err != nil {
		return ""
	}
	variant, ok := campaign.Variant(variantID)
	if !ok {
		return ""
	}
	return variant.Template
}

func mapCampaign(campaign entities.Campaign) httptransport.CampaignDefinition {
	definition := httptransport.CampaignDefinition{
		CampaignID:  campaign.CampaignID,
		Name:        campaign.Name,
		Description: campaign.Description,
		Policy:      string(campaign.Policy),
		PriorAlpha:  campaign.Prior.Alpha,
		PriorBeta:   campaign.Prior.Beta,
		Variants:    make([]httptransport.VariantDefinition, 0, len(campaign.Variants)),
	}
	for _, variant := range campaign.Variants {
		definition.Variants = append(definition.Variants, httptransport.VariantDefinition{
			VariantID:     variant.VariantID,
			Name:          variant.Name,
			Template:      variant.Template,
			SeedSuccesses: variant.SeedSuccesses,
			SeedFailures:  variant.SeedFailures,
		})
	}
	return definition
}
