package entities

import "time"

type PolicyName string

const (
	PolicyThompsonSampling PolicyName = "thompson"
	PolicyUniformRandom    PolicyName = "uniform"
	PolicyEpsilonGreedy    PolicyName = "egreedy"
	PolicyUCB1             PolicyName = "ucb1"
)

// Variant is one layout alternative. Seed counts are historical outcomes
// supplied with the static campaign definition.
type Variant struct {
	VariantID     string
	Name          string
	Template      string
	SeedSuccesses int64
	SeedFailures  int64
}

// Campaign is an immutable experiment definition. Variant order is the
// declaration order; the first variant is the control.
type Campaign struct {
	CampaignID  string
	Name        string
	Description string
	Policy      PolicyName
	Prior       BetaModel
	Variants    []Variant
}

func (c Campaign) VariantIDs() []string {
	ids := make([]string, 0, len(c.Variants))
	for _, variant := range c.Variants {
		ids = append(ids, variant.VariantID)
	}
	return ids
}

func (c Campaign) Variant(variantID string) (Variant, bool) {
	for _, variant := range c.Variants {
		if variant.VariantID == variantID {
			return variant, true
		}
	}
	return Variant{}, false
}

// Control is the fail-safe variant served when assignment cannot be resolved.
func (c Campaign) Control() (Variant, bool) {
	if len(c.Variants) == 0 {
		return Variant{}, false
	}
	return c.Variants[0], true
}

// InitialModel is the prior with the variant's seed counts folded in.
func (c Campaign) InitialModel(variant Variant) BetaModel {
	return c.Prior.WithCounts(variant.SeedSuccesses, variant.SeedFailures)
}

// Assignment is the sticky (campaign, user) -> variant mapping. It is created
// at most once and never updated.
type Assignment struct {
	CampaignID string
	UserID     string
	VariantID  string
	Policy     PolicyName
	AssignedAt time.Time
}

// OutcomeEvent is one observed binary outcome for an assigned user. EventID
// is optional; when set it makes the update replay-safe.
type OutcomeEvent struct {
	CampaignID string
	UserID     string
	Success    bool
	EventID    string
}

type VariantEstimate struct {
	VariantID     string
	Alpha         float64
	Beta          float64
	Mean          float64
	Observations  float64
	CredibleLow   float64
	CredibleHigh  float64
	CredibleLevel float64
}

// PairwiseComparison summarises a two-variant campaign. A is the control
// (first declared variant) and B the challenger.
type PairwiseComparison struct {
	VariantA          string
	VariantB          string
	ProbabilityABeatB float64
	ProbabilityBBeatA float64
	ExpectedLossA     float64
	ExpectedLossB     float64
	LiftOfB           float64
}

type CampaignEstimate struct {
	CampaignID string
	Variants   []VariantEstimate
	Comparison *PairwiseComparison
}
