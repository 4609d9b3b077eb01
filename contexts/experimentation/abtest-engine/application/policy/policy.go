package policy

import (
	"context"
	"math"

	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	domainerrors "newsfinder/contexts/experimentation/abtest-engine/domain/errors"
	"newsfinder/contexts/experimentation/abtest-engine/ports"
)

// Policy picks the variant for a user who has no assignment yet. Choose never
// mutates model parameters.
type Policy interface {
	Name() entities.PolicyName
	Choose(ctx context.Context, registry ports.VariantRegistry, campaignID string) (string, error)
}

// ThompsonSampling draws once from every variant's posterior and serves the
// highest draw.
type ThompsonSampling struct {
	Random *Random
}

func (ThompsonSampling) Name() entities.PolicyName { return entities.PolicyThompsonSampling }

func (p ThompsonSampling) Choose(ctx context.Context, registry ports.VariantRegistry, campaignID string) (string, error) {
	ids, models, err := pairWithModels(ctx, registry, campaignID)
	if err != nil {
		return "", err
	}
	src := resolveRandom(p.Random)
	draws := make([]float64, len(models))
	for i, model := range models {
		draws[i] = model.SampleDraw(src)
	}
	return argmax(ids, draws), nil
}

// UniformRandom ignores the models entirely.
type UniformRandom struct {
	Random *Random
}

func (UniformRandom) Name() entities.PolicyName { return entities.PolicyUniformRandom }

func (p UniformRandom) Choose(_ context.Context, registry ports.VariantRegistry, campaignID string) (string, error) {
	ids, err := pairOf(registry, campaignID)
	if err != nil {
		return "", err
	}
	return ids[resolveRandom(p.Random).IntN(len(ids))], nil
}

// EpsilonGreedy explores uniformly with probability Epsilon and otherwise
// exploits the highest posterior mean.
type EpsilonGreedy struct {
	Epsilon float64
	Random  *Random
}

func (EpsilonGreedy) Name() entities.PolicyName { return entities.PolicyEpsilonGreedy }

func (p EpsilonGreedy) Choose(ctx context.Context, registry ports.VariantRegistry, campaignID string) (string, error) {
	ids, models, err := pairWithModels(ctx, registry, campaignID)
	if err != nil {
		return "", err
	}
	src := resolveRandom(p.Random)
	if src.Float64() < p.Epsilon {
		return ids[src.IntN(len(ids))], nil
	}
	means := make([]float64, len(models))
	for i, model := range models {
		means[i] = model.Mean()
	}
	return argmax(ids, means), nil
}

// UCB1 adds an exploration bonus that shrinks with each variant's pseudo-count.
type UCB1 struct{}

func (UCB1) Name() entities.PolicyName { return entities.PolicyUCB1 }

func (UCB1) Choose(ctx context.Context, registry ports.VariantRegistry, campaignID string) (string, error) {
	ids, models, err := pairWithModels(ctx, registry, campaignID)
	if err != nil {
		return "", err
	}
	total := 0.0
	for _, model := range models {
		total += model.Alpha + model.Beta
	}
	scores := make([]float64, len(models))
	for i, model := range models {
		scores[i] = model.Mean() + math.Sqrt(2*math.Log(total)/(model.Alpha+model.Beta))
	}
	return argmax(ids, scores), nil
}

func pairOf(registry ports.VariantRegistry, campaignID string) ([]string, error) {
	ids, err := registry.VariantsOf(campaignID)
	if err != nil {
		return nil, err
	}
	if len(ids) != 2 {
		return nil, domainerrors.ErrUnsupportedVariantCount
	}
	return ids, nil
}

func pairWithModels(
	ctx context.Context,
	registry ports.VariantRegistry,
	campaignID string,
) ([]string, []entities.BetaModel, error) {
	ids, err := pairOf(registry, campaignID)
	if err != nil {
		return nil, nil, err
	}
	models := make([]entities.BetaModel, len(ids))
	for i, id := range ids {
		model, err := registry.ModelOf(ctx, campaignID, id)
		if err != nil {
			return nil, nil, err
		}
		models[i] = model
	}
	return ids, models, nil
}

// argmax breaks exact ties toward the lexicographically lowest variant id.
func argmax(ids []string, scores []float64) string {
	best := 0
	for i := 1; i < len(ids); i++ {
		if scores[i] > scores[best] || (scores[i] == scores[best] && ids[i] < ids[best]) {
			best = i
		}
	}
	return ids[best]
}
