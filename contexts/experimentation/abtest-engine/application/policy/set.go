package policy

import (
	"strings"

	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	domainerrors "newsfinder/contexts/experimentation/abtest-engine/domain/errors"
)

// Set resolves campaign policy names to implementations.
type Set struct {
	policies    map[entities.PolicyName]Policy
	defaultName entities.PolicyName
}

func NewSet(defaultName entities.PolicyName, policies ...Policy) (Set, error) {
	set := Set{
		policies:    make(map[entities.PolicyName]Policy, len(policies)),
		defaultName: defaultName,
	}
	for _, p := range policies {
		set.policies[p.Name()] = p
	}
	if _, ok := set.policies[defaultName]; !ok {
		return Set{}, domainerrors.ErrUnknownPolicy
	}
	return set, nil
}

// NewStandardSet registers every built-in policy over one shared source.
func NewStandardSet(defaultName entities.PolicyName, random *Random, epsilon float64) (Set, error) {
	return NewSet(defaultName,
		ThompsonSampling{Random: random},
		UniformRandom{Random: random},
		EpsilonGreedy{Epsilon: epsilon, Random: random},
		UCB1{},
	)
}

func (s Set) Default() entities.PolicyName {
	return s.defaultName
}

// Resolve returns the named policy, or the default for an empty name.
func (s Set) Resolve(name entities.PolicyName) (Policy, error) {
	if strings.TrimSpace(string(name)) == "" {
		name = s.defaultName
	}
	p, ok := s.policies[name]
	if !ok {
		return nil, domainerrors.ErrUnknownPolicy
	}
	return p, nil
}

// ParseName accepts the canonical names plus the aliases used by older
// clients ("thompson_sampling", "e_greedy", "ucb").
func ParseName(raw string) (entities.PolicyName, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "thompson", "thompson_sampling", "thompsonsampling":
		return entities.PolicyThompsonSampling, nil
	case "uniform", "uniform_random", "uniformrandom", "random":
		return entities.PolicyUniformRandom, nil
	case "egreedy", "e_greedy", "epsilon_greedy":
		return entities.PolicyEpsilonGreedy, nil
	case "ucb1", "ucb":
		return entities.PolicyUCB1, nil
	default:
		return "", domainerrors.ErrUnknownPolicy
	}
}
