package registry

import (
	"context"
	"fmt"
	"strings"

	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	domainerrors "newsfinder/contexts/experimentation/abtest-engine/domain/errors"
	"newsfinder/contexts/experimentation/abtest-engine/ports"
)

// Registry maps campaigns to their fixed variants. Definitions are copied at
// construction and never mutated, so a Registry is safe for concurrent use
// without locking. Model parameters are always read through Models.
type Registry struct {
	campaigns map[string]entities.Campaign
	order     []string
	models    ports.ModelRepository
}

func New(campaigns []entities.Campaign, models ports.ModelRepository) (*Registry, error) {
	r := &Registry{
		campaigns: make(map[string]entities.Campaign, len(campaigns)),
		order:     make([]string, 0, len(campaigns)),
		models:    models,
	}
	for _, campaign := range campaigns {
		campaign.CampaignID = strings.TrimSpace(campaign.CampaignID)
		if campaign.CampaignID == "" {
			return nil, fmt.Errorf("campaign id is required: %w", domainerrors.ErrInvalidInput)
		}
		if _, exists := r.campaigns[campaign.CampaignID]; exists {
			return nil, fmt.Errorf("duplicate campaign %q: %w", campaign.CampaignID, domainerrors.ErrInvalidInput)
		}
		if !campaign.Prior.Valid() {
			return nil, fmt.Errorf("campaign %q: %w", campaign.CampaignID, domainerrors.ErrInvalidPrior)
		}
		variants := make([]entities.Variant, 0, len(campaign.Variants))
		seen := make(map[string]struct{}, len(campaign.Variants))
		for _, variant := range campaign.Variants {
			variant.VariantID = strings.TrimSpace(variant.VariantID)
			if variant.VariantID == "" {
				return nil, fmt.Errorf("campaign %q has a variant without id: %w", campaign.CampaignID, domainerrors.ErrInvalidInput)
			}
			if _, dup := seen[variant.VariantID]; dup {
				return nil, fmt.Errorf("campaign %q repeats variant %q: %w", campaign.CampaignID, variant.VariantID, domainerrors.ErrInvalidInput)
			}
			seen[variant.VariantID] = struct{}{}
			variants = append(variants, variant)
		}
		campaign.Variants = variants
		r.campaigns[campaign.CampaignID] = campaign
		r.order = append(r.order, campaign.CampaignID)
	}
	return r, nil
}

func (r *Registry) Campaign(campaignID string) (entities.Campaign, error) {
	campaign, ok := r.campaigns[strings.TrimSpace(campaignID)]
	if !ok {
		return entities.Campaign{}, domainerrors.ErrUnknownCampaign
	}
	return campaign, nil
}

func (r *Registry) Campaigns() []entities.Campaign {
	items := make([]entities.Campaign, 0, len(r.order))
	for _, id := range r.order {
		items = append(items, r.campaigns[id])
	}
	return items
}

func (r *Registry) VariantsOf(campaignID string) ([]string, error) {
	campaign, err := r.Campaign(campaignID)
	if err != nil {
		return nil, err
	}
	return campaign.VariantIDs(), nil
}

func (r *Registry) InitialModel(campaignID string, variantID string) (entities.BetaModel, error) {
	campaign, err := r.Campaign(campaignID)
	if err != nil {
		return entities.BetaModel{}, err
	}
	variant, ok := campaign.Variant(strings.TrimSpace(variantID))
	if !ok {
		return entities.BetaModel{}, domainerrors.ErrUnknownVariant
	}
	return campaign.InitialModel(variant), nil
}

// ModelOf reads the variant's current model from the store. Variants that
// have not seen any outcome report their initial model.
func (r *Registry) ModelOf(ctx context.Context, campaignID string, variantID string) (entities.BetaModel, error) {
	initial, err := r.InitialModel(campaignID, variantID)
	if err != nil {
		return entities.BetaModel{}, err
	}
	model, found, err := r.models.GetModel(ctx, strings.TrimSpace(campaignID), strings.TrimSpace(variantID))
	if err != nil {
		return entities.BetaModel{}, err
	}
	if !found {
		return initial, nil
	}
	return model, nil
}

// Seed persists every variant's initial model if no model exists yet.
// Learned state is never overwritten.
func (r *Registry) Seed(ctx context.Context) error {
	for _, campaign := range r.Campaigns() {
		for _, variant := range campaign.Variants {
			if err := r.models.SeedModel(ctx, campaign.CampaignID, variant.VariantID, campaign.InitialModel(variant)); err != nil {
				return fmt.Errorf("seed %s/%s: %w", campaign.CampaignID, variant.VariantID, err)
			}
		}
	}
	return nil
}

var _ ports.VariantRegistry = (*Registry)(nil)
