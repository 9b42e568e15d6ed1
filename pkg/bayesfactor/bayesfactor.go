// Package bayesfactor combines two marginal likelihood estimates into a
// Bayes factor with a propagated uncertainty measure. The combinator is
// direction-agnostic: null-interval or directional hypotheses are
// realized upstream by fitting a model with a truncated, renormalized
// prior and comparing it here like any other pair.
package bayesfactor

import (
	"math"

	"github.com/vandenman/bridgesampling/pkg/bridge"
)

// Result labels one model's estimation output. Err may be nil when no
// uncertainty propagation is wanted.
type Result struct {
	Model    string
	Estimate *bridge.Estimate
	Err      *bridge.ErrorMeasure
}

// BayesFactor is the evidential ratio of two models. LogBF is
// authoritative; BF may overflow to +Inf for overwhelming evidence.
type BayesFactor struct {
	Numerator   string
	Denominator string
	LogBF       float64
	BF          float64
	// RelativeMSE and Percentage propagate the two per-model relative
	// errors under independence; both are zero when either input came
	// without an error measure.
	RelativeMSE float64
	Percentage  float64
}

// New computes the Bayes factor of numerator over denominator.
func New(numerator, denominator Result) BayesFactor {
	bf := BayesFactor{
		Numerator:   numerator.Model,
		Denominator: denominator.Model,
		LogBF:       numerator.Estimate.LogML - denominator.Estimate.LogML,
	}
	bf.BF = math.Exp(bf.LogBF)
	if numerator.Err != nil && denominator.Err != nil {
		// relative MSEs of independent estimates add under the ratio
		bf.RelativeMSE = numerator.Err.RelativeMSE + denominator.Err.RelativeMSE
		bf.Percentage = 100 * math.Sqrt(bf.RelativeMSE)
	}
	return bf
}
