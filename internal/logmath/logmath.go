// Package logmath provides scalar log-domain arithmetic helpers.
// Slice reductions use gonum's floats.LogSumExp; these cover the
// pairwise cases the reductions do not.
package logmath

import "math"

// threshold below which the smaller term contributes less than float64
// precision (exp(-36) ~ 2.3e-16)
const logAddCutoff = -36.0

// LogAdd returns log(exp(a) + exp(b)) without leaving the log domain.
func LogAdd(a, b float64) float64 {
	if a < b {
		a, b = b, a
	}
	if math.IsInf(b, -1) {
		return a
	}
	d := b - a
	if d < logAddCutoff {
		return a
	}
	return a + math.Log1p(math.Exp(d))
}

// LogSigmoid returns log(1/(1+exp(-x))) for any real x.
func LogSigmoid(x float64) float64 {
	if x >= 0 {
		return -math.Log1p(math.Exp(-x))
	}
	return x - math.Log1p(math.Exp(x))
}
