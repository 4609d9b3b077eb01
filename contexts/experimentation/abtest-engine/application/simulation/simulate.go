package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	application "newsfinder/contexts/experimentation/abtest-engine/application"
	"newsfinder/contexts/experimentation/abtest-engine/application/commands"
	"newsfinder/contexts/experimentation/abtest-engine/application/policy"
	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	domainerrors "newsfinder/contexts/experimentation/abtest-engine/domain/errors"
)

const defaultConversionRate = 0.5

// Engine is the slice of the experiment engine a simulation drives.
type Engine interface {
	Assign(ctx context.Context, cmd commands.AssignCommand) (commands.AssignResult, error)
	RecordOutcome(ctx context.Context, cmd commands.RecordOutcomeCommand) (commands.OutcomeResult, error)
	Estimate(ctx context.Context, campaignID string) (entities.CampaignEstimate, error)
}

type SimulationInput struct {
	CampaignID string
	Visits     int
	// ConversionRates maps variant id to its true conversion rate. Missing
	// variants convert at 0.5.
	ConversionRates map[string]float64
	UserPrefix      string
}

type VariantTally struct {
	VariantID   string
	Impressions int
	Conversions int
}

type SimulationResult struct {
	CampaignID string
	Visits     int
	Tallies    []VariantTally
	Estimate   entities.CampaignEstimate
}

// Simulator replays synthetic page visits through the engine: every visit is
// a fresh user that is assigned and then converts with its variant's rate.
type Simulator struct {
	Engine Engine
	Random *policy.Random
	Logger *slog.Logger
}

func (s Simulator) Run(ctx context.Context, input SimulationInput) (SimulationResult, error) {
	logger := application.ResolveLogger(s.Logger)
	campaignID := strings.TrimSpace(input.CampaignID)
	if campaignID == "" || input.Visits < 0 {
		return SimulationResult{}, domainerrors.ErrInvalidInput
	}
	for variantID, rate := range input.ConversionRates {
		if rate < 0 || rate > 1 {
			return SimulationResult{}, fmt.Errorf("conversion rate for %q out of [0,1]: %w", variantID, domainerrors.ErrInvalidInput)
		}
	}
	prefix := strings.TrimSpace(input.UserPrefix)
	if prefix == "" {
		prefix = "sim"
	}
	random := s.Random
	if random == nil {
		random = policy.NewSeededRandom(1)
	}

	tallies := make(map[string]*VariantTally)
	for visit := 0; visit < input.Visits; visit++ {
		if err := ctx.Err(); err != nil {
			return SimulationResult{}, err
		}
		userID := fmt.Sprintf("%s-%d", prefix, visit)
		assigned, err := s.Engine.Assign(ctx, commands.AssignCommand{CampaignID: campaignID, UserID: userID})
		if err != nil {
			return SimulationResult{}, err
		}
		if assigned.Fallback {
			// Unpersisted answers cannot take outcomes.
			continue
		}
		tally, ok := tallies[assigned.VariantID]
		if !ok {
			tally = &VariantTally{VariantID: assigned.VariantID}
			tallies[assigned.VariantID] = tally
		}
		tally.Impressions++

		rate, ok := input.ConversionRates[assigned.VariantID]
		if !ok {
			rate = defaultConversionRate
		}
		converted := random.Float64() < rate
		if converted {
			tally.Conversions++
		}
		if _, err := s.Engine.RecordOutcome(ctx, commands.RecordOutcomeCommand{
			CampaignID: campaignID,
			UserID:     userID,
			Success:    converted,
			EventID:    userID,
		}); err != nil {
			return SimulationResult{}, err
		}
	}

	estimate, err := s.Engine.Estimate(ctx, campaignID)
	if err != nil {
		return SimulationResult{}, err
	}
	result := SimulationResult{
		CampaignID: campaignID,
		Visits:     input.Visits,
		Tallies:    make([]VariantTally, 0, len(tallies)),
		Estimate:   estimate,
	}
	for _, tally := range tallies {
		result.Tallies = append(result.Tallies, *tally)
	}
	sort.Slice(result.Tallies, func(i, j int) bool {
		return result.Tallies[i].VariantID < result.Tallies[j].VariantID
	})
	logger.Info("simulation completed",
		"event", "abtest_simulation_completed",
		"module", "experimentation/abtest-engine",
		"layer", "application",
		"campaign_id", campaignID,
		"visits", input.Visits,
	)
	return result, nil
}
