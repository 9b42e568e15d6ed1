package bridge

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/vandenman/bridgesampling/internal/logmath"
)

// iterResult is the outcome of the fixed-point loop: the log ratio
// relative to the stabilizing shift, the iterations spent and whether
// the tolerance was met.
type iterResult struct {
	logR       float64
	shift      float64
	iterations int
	converged  bool
}

// iterate runs the Meng-Wong fixed point on the two log-weight vectors
// l1 (posterior draws) and l2 (proposal draws), where each entry is
// log unnormalized target minus log proposal density at that draw.
// Everything stays in the log domain; the raw density values can be
// hundreds of orders of magnitude apart.
func iterate(l1, l2 []float64, tol float64, maxIter int) iterResult {
	n1, n2 := len(l1), len(l2)
	// shifting by the median of l1 keeps the exponentials near 1
	shift := median(l1)
	if math.IsInf(shift, 0) || math.IsNaN(shift) {
		shift = 0
	}

	logN1 := math.Log(float64(n1))
	logN2 := math.Log(float64(n2))
	logTot := math.Log(float64(n1 + n2))
	ls1 := logN1 - logTot
	ls2 := logN2 - logTot

	a := make([]float64, n2)
	for j, l := range l2 {
		a[j] = l - shift
	}
	b := make([]float64, n1)
	for i, l := range l1 {
		b[i] = l - shift
	}

	num := make([]float64, n2)
	den := make([]float64, n1)
	logR := 0.0
	for t := 1; t <= maxIter; t++ {
		for j := range a {
			num[j] = a[j] - logmath.LogAdd(ls1+a[j], ls2+logR)
		}
		for i := range b {
			den[i] = -logmath.LogAdd(ls1+b[i], ls2+logR)
		}
		next := (floats.LogSumExp(num) - logN2) - (floats.LogSumExp(den) - logN1)
		if math.IsInf(next, -1) {
			// the proposal draws see no target mass at all
			return iterResult{logR: next, shift: shift, iterations: t, converged: true}
		}
		if math.IsNaN(next) {
			return iterResult{logR: logR, shift: shift, iterations: t, converged: false}
		}
		if math.Abs(next-logR) < tol {
			return iterResult{logR: next, shift: shift, iterations: t, converged: true}
		}
		logR = next
	}
	return iterResult{logR: logR, shift: shift, iterations: maxIter, converged: false}
}

// median returns the sample median of v without mutating it.
func median(v []float64) float64 {
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return 0.5 * (s[n/2-1] + s[n/2])
}
