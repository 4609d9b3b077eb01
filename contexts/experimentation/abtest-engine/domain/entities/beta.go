package entities

import (
	"math"
	"math/rand/v2"

	domainerrors "newsfinder/contexts/experimentation/abtest-engine/domain/errors"

	"gonum.org/v1/gonum/stat/distuv"
)

// BetaModel is one variant's posterior belief about its conversion rate.
// Alpha counts successes and Beta counts failures on top of the prior.
type BetaModel struct {
	Alpha float64
	Beta  float64
}

// UniformPrior is Beta(1, 1).
var UniformPrior = BetaModel{Alpha: 1, Beta: 1}

func NewBetaModel(alpha float64, beta float64) (BetaModel, error) {
	model := BetaModel{Alpha: alpha, Beta: beta}
	if !model.Valid() {
		return BetaModel{}, domainerrors.ErrInvalidPrior
	}
	return model, nil
}

func (m BetaModel) Valid() bool {
	return m.Alpha > 0 && m.Beta > 0 &&
		!math.IsInf(m.Alpha, 0) && !math.IsInf(m.Beta, 0) &&
		!math.IsNaN(m.Alpha) && !math.IsNaN(m.Beta)
}

// Update applies exactly one Bernoulli outcome. Callers own deduplication.
func (m BetaModel) Update(success bool) BetaModel {
	if success {
		m.Alpha++
	} else {
		m.Beta++
	}
	return m
}

// WithCounts folds aggregate seed counts into the model.
func (m BetaModel) WithCounts(successes int64, failures int64) BetaModel {
	if successes > 0 {
		m.Alpha += float64(successes)
	}
	if failures > 0 {
		m.Beta += float64(failures)
	}
	return m
}

func (m BetaModel) Mean() float64 {
	return m.Alpha / (m.Alpha + m.Beta)
}

func (m BetaModel) Variance() float64 {
	sum := m.Alpha + m.Beta
	return (m.Alpha * m.Beta) / (sum * sum * (sum + 1))
}

// Observations is the number of outcomes absorbed since the given prior.
func (m BetaModel) Observations(prior BetaModel) float64 {
	return (m.Alpha + m.Beta) - (prior.Alpha + prior.Beta)
}

// SampleDraw draws one value from Beta(Alpha, Beta) using src.
func (m BetaModel) SampleDraw(src rand.Source) float64 {
	return m.distribution(src).Rand()
}

// CredibleInterval returns the equal-tailed interval holding mass of the
// posterior, computed from the inverse regularized incomplete beta.
func (m BetaModel) CredibleInterval(mass float64) (float64, float64) {
	if mass <= 0 || mass >= 1 {
		mass = 0.95
	}
	tail := (1 - mass) / 2
	dist := m.distribution(nil)
	return dist.Quantile(tail), dist.Quantile(1 - tail)
}

func (m BetaModel) distribution(src rand.Source) distuv.Beta {
	return distuv.Beta{Alpha: m.Alpha, Beta: m.Beta, Src: src}
}
