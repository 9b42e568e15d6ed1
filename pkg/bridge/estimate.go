package bridge

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/vandenman/bridgesampling/internal/logmath"
)

// Estimate is the immutable result of one estimation run. LogML is the
// log marginal likelihood in the original parameter space; Converged
// reports whether the fixed point met the tolerance within its budget,
// and is informational rather than fatal.
type Estimate struct {
	LogML      float64
	Iterations int
	Converged  bool
	N1         int
	N2         int

	// cached log weights for the error measure
	ess float64
	l1  []float64
	l2  []float64
}

// ErrorMeasure is the approximate accuracy of a marginal likelihood
// estimate: the relative mean-squared error of the (non-log) estimate
// and the same figure as a percentage of the estimate.
type ErrorMeasure struct {
	RelativeMSE float64
	Percentage  float64
}

// ErrorMeasure computes the asymptotic relative mean-squared error of
// the estimate from the two importance-weight vectors. The posterior
// side of the variance uses the effective sample size supplied at
// configuration time, so correlated chains do not understate the error.
func (est *Estimate) ErrorMeasure() ErrorMeasure {
	n1, n2 := float64(len(est.l1)), float64(len(est.l2))
	logTot := math.Log(n1 + n2)
	ls1 := math.Log(n1) - logTot
	ls2 := math.Log(n2) - logTot

	// f1 over proposal draws: p/(s1 p + s2 g), normalized by the estimate
	f1 := make([]float64, len(est.l2))
	for j, l := range est.l2 {
		le := l - est.LogML
		f1[j] = math.Exp(le - logmath.LogAdd(ls1+le, ls2))
	}
	// f2 over posterior draws: g/(s1 p + s2 g)
	f2 := make([]float64, len(est.l1))
	for i, l := range est.l1 {
		le := l - est.LogML
		f2[i] = math.Exp(-logmath.LogAdd(ls1+le, ls2))
	}

	m1, v1 := stat.Mean(f1, nil), stat.Variance(f1, nil)
	m2, v2 := stat.Mean(f2, nil), stat.Variance(f2, nil)
	relMSE := v1/(n2*m1*m1) + v2/(est.ess*m2*m2)
	return ErrorMeasure{
		RelativeMSE: relMSE,
		Percentage:  100 * math.Sqrt(relMSE),
	}
}
