package queries

import (
	"context"
	"strings"

	"newsfinder/contexts/experimentation/abtest-engine/domain/analysis"
	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
)

const credibleLevel = 0.95

// CampaignReader is the registry view estimates are computed from.
type CampaignReader interface {
	Campaign(campaignID string) (entities.Campaign, error)
	ModelOf(ctx context.Context, campaignID string, variantID string) (entities.BetaModel, error)
}

// EstimateUseCase reports posterior summaries. It never mutates state.
type EstimateUseCase struct {
	Campaigns CampaignReader
}

func (uc EstimateUseCase) Estimate(ctx context.Context, campaignID string) (entities.CampaignEstimate, error) {
	campaign, err := uc.Campaigns.Campaign(strings.TrimSpace(campaignID))
	if err != nil {
		return entities.CampaignEstimate{}, err
	}

	estimate := entities.CampaignEstimate{
		CampaignID: campaign.CampaignID,
		Variants:   make([]entities.VariantEstimate, 0, len(campaign.Variants)),
	}
	models := make([]entities.BetaModel, 0, len(campaign.Variants))
	for _, variant := range campaign.Variants {
		model, err := uc.Campaigns.ModelOf(ctx, campaign.CampaignID, variant.VariantID)
		if err != nil {
			return entities.CampaignEstimate{}, err
		}
		models = append(models, model)
		low, high := model.CredibleInterval(credibleLevel)
		estimate.Variants = append(estimate.Variants, entities.VariantEstimate{
			VariantID:     variant.VariantID,
			Alpha:         model.Alpha,
			Beta:          model.Beta,
			Mean:          model.Mean(),
			Observations:  model.Observations(campaign.Prior),
			CredibleLow:   low,
			CredibleHigh:  high,
			CredibleLevel: credibleLevel,
		})
	}

	// Pairwise comparison is only defined for A/B campaigns.
	if len(models) == 2 {
		a, b := models[0], models[1]
		estimate.Comparison = &entities.PairwiseComparison{
			VariantA:          campaign.Variants[0].VariantID,
			VariantB:          campaign.Variants[1].VariantID,
			ProbabilityABeatB: analysis.ProbabilityGreater(a, b),
			ProbabilityBBeatA: analysis.ProbabilityGreater(b, a),
			ExpectedLossA:     analysis.ExpectedLoss(a, b),
			ExpectedLossB:     analysis.ExpectedLoss(b, a),
			LiftOfB:           analysis.RelativeLift(a, b),
		}
	}
	return estimate, nil
}
