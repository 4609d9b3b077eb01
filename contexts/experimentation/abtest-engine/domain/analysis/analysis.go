// Package analysis holds closed-form comparisons between two Beta posteriors.
// Nothing here samples; every value is computed analytically or by fixed
// Gauss-Legendre quadrature when no series form applies.
package analysis

import (
	"math"

	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	quadratureNodes = 256
	// maxSeriesTerms bounds the closed-form series; larger alphas integrate.
	maxSeriesTerms = 10000
	// tailMass is the probability left outside the integration interval on
	// each side.
	tailMass = 1e-12
)

// ProbabilityGreater returns P(X > Y) for X ~ x and Y ~ y.
func ProbabilityGreater(x entities.BetaModel, y entities.BetaModel) float64 {
	xIntegral := seriesEligible(x.Alpha)
	yIntegral := seriesEligible(y.Alpha)
	switch {
	case xIntegral && yIntegral:
		if x.Alpha <= y.Alpha {
			return clampProbability(seriesGreater(x, y))
		}
		return clampProbability(1 - seriesGreater(y, x))
	case xIntegral:
		return clampProbability(seriesGreater(x, y))
	case yIntegral:
		return clampProbability(1 - seriesGreater(y, x))
	default:
		return clampProbability(quadratureGreater(x, y))
	}
}

// ExpectedLoss is E[max(Y - X, 0)]: the conversion rate given up by choosing
// X when Y is actually better.
func ExpectedLoss(x entities.BetaModel, y entities.BetaModel) float64 {
	yShifted := entities.BetaModel{Alpha: y.Alpha + 1, Beta: y.Beta}
	xShifted := entities.BetaModel{Alpha: x.Alpha + 1, Beta: x.Beta}
	loss := y.Mean()*ProbabilityGreater(yShifted, x) - x.Mean()*ProbabilityGreater(y, xShifted)
	if loss < 0 {
		return 0
	}
	return loss
}

// RelativeLift is (mean(challenger) - mean(control)) / mean(control).
func RelativeLift(control entities.BetaModel, challenger entities.BetaModel) float64 {
	base := control.Mean()
	if base == 0 {
		return 0
	}
	return (challenger.Mean() - base) / base
}

// seriesGreater evaluates P(X > Y) with the finite series over i < x.Alpha.
// x.Alpha must be a positive integer no larger than maxSeriesTerms.
func seriesGreater(x entities.BetaModel, y entities.BetaModel) float64 {
	terms := int(math.Round(x.Alpha))
	base := mathext.Lbeta(y.Alpha, y.Beta)
	total := 0.0
	for i := 0; i < terms; i++ {
		fi := float64(i)
		total += math.Exp(
			mathext.Lbeta(y.Alpha+fi, y.Beta+x.Beta) -
				math.Log(x.Beta+fi) -
				mathext.Lbeta(1+fi, x.Beta) -
				base,
		)
	}
	return total
}

// quadratureGreater integrates pdf_x * cdf_y over the central interval of X.
// Large posteriors are narrow, so integrating over [0, 1] would leave only a
// few nodes under the density.
func quadratureGreater(x entities.BetaModel, y entities.BetaModel) float64 {
	density := distuv.Beta{Alpha: x.Alpha, Beta: x.Beta}
	cumulative := distuv.Beta{Alpha: y.Alpha, Beta: y.Beta}
	lo, hi := centralInterval(density)
	return quad.Fixed(func(v float64) float64 {
		return density.Prob(v) * cumulative.CDF(v)
	}, lo, hi, quadratureNodes, nil, 0)
}

func centralInterval(density distuv.Beta) (float64, float64) {
	lo := density.Quantile(tailMass)
	hi := density.Quantile(1 - tailMass)
	if math.IsNaN(lo) || lo < 0 {
		lo = 0
	}
	if math.IsNaN(hi) || hi > 1 || hi <= lo {
		hi = 1
	}
	return lo, hi
}

func seriesEligible(value float64) bool {
	return value >= 1 && value <= maxSeriesTerms && math.Abs(value-math.Round(value)) < 1e-9
}

func clampProbability(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return 0.5
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
