package simulation

import (
	"context"
	"errors"
	"testing"

	"newsfinder/contexts/experimentation/abtest-engine/adapters/memory"
	"newsfinder/contexts/experimentation/abtest-engine/application/commands"
	"newsfinder/contexts/experimentation/abtest-engine/application/policy"
	"newsfinder/contexts/experimentation/abtest-engine/application/registry"
	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	domainerrors "newsfinder/contexts/experimentation/abtest-engine/domain/errors"
)

func newSimulator(t *testing.T, seed uint64) Simulator {
	t.Helper()
	store := memory.NewStore(nil)
	r, err := registry.New([]entities.Campaign{{
		CampaignID: "home_layout",
		Prior:      entities.UniformPrior,
		Variants:   []entities.Variant{{VariantID: "a"}, {VariantID: "b"}},
	}}, store)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	random := policy.NewSeededRandom(seed)
	policies, err := policy.NewStandardSet(entities.PolicyThompsonSampling, random, 0.1)
	if err != nil {
		t.Fatalf("policy set: %v", err)
	}
	return Simulator{
		Engine: commands.ExperimentEngine{
			Registry:    r,
			Assignments: store,
			Models:      store,
			Policies:    policies,
		},
		Random: random,
	}
}

func TestSimulatorShiftsTrafficTowardTheBetterVariant(t *testing.T) {
	result, err := newSimulator(t, 21).Run(context.Background(), SimulationInput{
		CampaignID:      "home_layout",
		Visits:          2000,
		ConversionRates: map[string]float64{"a": 0.05, "b": 0.25},
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if len(result.Tallies) != 2 || result.Tallies[0].VariantID != "a" || result.Tallies[1].VariantID != "b" {
		t.Fatalf("unexpected tallies %+v", result.Tallies)
	}
	a, b := result.Tallies[0], result.Tallies[1]
	if a.Impressions+b.Impressions != 2000 {
		t.Fatalf("impressions do not add up: %+v", result.Tallies)
	}
	if b.Impressions <= a.Impressions {
		t.Fatalf("expected b to receive most traffic: %+v", result.Tallies)
	}

	// Every visit fed exactly one outcome into its variant.
	for i, variant := range result.Estimate.Variants {
		tally := result.Tallies[i]
		if int(variant.Observations) != tally.Impressions {
			t.Fatalf("variant %s: %f observations for %d impressions", variant.VariantID, variant.Observations, tally.Impressions)
		}
		if int(variant.Alpha)-1 != tally.Conversions {
			t.Fatalf("variant %s: alpha %f for %d conversions", variant.VariantID, variant.Alpha, tally.Conversions)
		}
	}
	if result.Estimate.Comparison == nil || result.Estimate.Comparison.ProbabilityBBeatA < 0.95 {
		t.Fatalf("expected b to be the clear winner: %+v", result.Estimate.Comparison)
	}
}

func TestSimulatorIsReproducibleForAFixedSeed(t *testing.T) {
	input := SimulationInput{
		CampaignID:      "home_layout",
		Visits:          300,
		ConversionRates: map[string]float64{"a": 0.1, "b": 0.12},
	}
	first, err := newSimulator(t, 8).Run(context.Background(), input)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := newSimulator(t, 8).Run(context.Background(), input)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	for i := range first.Tallies {
		if first.Tallies[i] != second.Tallies[i] {
			t.Fatalf("runs diverged: %+v vs %+v", first.Tallies, second.Tallies)
		}
	}
}

func TestSimulatorRejectsInvalidInput(t *testing.T) {
	sim := newSimulator(t, 1)
	for name, input := range map[string]SimulationInput{
		"missing campaign": {Visits: 10},
		"negative visits":  {CampaignID: "home_layout", Visits: -1},
		"rate above one":   {CampaignID: "home_layout", Visits: 1, ConversionRates: map[string]float64{"a": 1.5}},
	} {
		if _, err := sim.Run(context.Background(), input); !errors.Is(err, domainerrors.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
	if _, err := sim.Run(context.Background(), SimulationInput{CampaignID: "checkout", Visits: 1}); !errors.Is(err, domainerrors.ErrUnknownCampaign) {
		t.Fatalf("expected ErrUnknownCampaign, got %v", err)
	}
}
