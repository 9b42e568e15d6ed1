package e2e

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/samplemv"

	"github.com/vandenman/bridgesampling/pkg/bayesfactor"
	"github.com/vandenman/bridgesampling/pkg/bridge"
	"github.com/vandenman/bridgesampling/pkg/transform"
)

// One-sample design: n = 10 difference scores. The null model has only
// a scale sigma (half-Cauchy prior); the alternative adds a
// standardized effect delta with a Cauchy(0, 1/sqrt 2) prior, so
// y_i ~ N(delta*sigma, sigma^2). Posterior draws come from a
// random-walk Metropolis chain; the reference Bayes factor is computed
// by direct quadrature over the same priors.
var _ = Describe("Two-model difference-score scenario", func() {
	y := []float64{0.27, 1.31, 0.42, 1.16, -0.14, 0.91, 0.48, 1.10, 0.29, 0.20}
	n := float64(len(y))
	var sy, sy2 float64
	for _, v := range y {
		sy += v
		sy2 += v * v
	}

	const cauchyScale = 1 / math.Sqrt2

	logPriorDelta := func(delta float64) float64 {
		return -math.Log(math.Pi*cauchyScale) - math.Log1p(delta*delta/(cauchyScale*cauchyScale))
	}
	logPriorSigma := func(sigma float64) float64 {
		if sigma <= 0 {
			return math.Inf(-1)
		}
		return math.Log(2) - math.Log(math.Pi) - math.Log1p(sigma*sigma)
	}
	logLik := func(delta, sigma float64) float64 {
		mu := delta * sigma
		return -n*math.Log(sigma) - 0.5*n*math.Log(2*math.Pi) -
			(sy2-2*mu*sy+n*mu*mu)/(2*sigma*sigma)
	}

	h1LogPost := func(delta, sigma float64) float64 {
		if sigma <= 0 {
			return math.Inf(-1)
		}
		return logLik(delta, sigma) + logPriorDelta(delta) + logPriorSigma(sigma)
	}
	h0LogPost := func(sigma float64) float64 {
		if sigma <= 0 {
			return math.Inf(-1)
		}
		return logLik(0, sigma) + logPriorSigma(sigma)
	}

	// quadrature reference over the same priors
	referenceLogBF := func() float64 {
		const (
			sigMax = 6.0
			sigN   = 1200
			delMin = -4.0
			delMax = 4.0
			delN   = 800
		)
		hs := sigMax / sigN
		hd := (delMax - delMin) / delN

		m0 := 0.0
		for i := 1; i <= sigN; i++ {
			m0 += math.Exp(h0LogPost(0 + float64(i)*hs))
		}
		m0 *= hs

		m1 := 0.0
		for i := 1; i <= sigN; i++ {
			sigma := float64(i) * hs
			row := 0.0
			for j := 0; j <= delN; j++ {
				row += math.Exp(h1LogPost(delMin+float64(j)*hd, sigma))
			}
			m1 += row * hd
		}
		m1 *= hs

		return math.Log(m1) - math.Log(m0)
	}

	// mhSample runs a random-walk Metropolis chain over the given log
	// posterior and returns nDraws thinned rows.
	mhSample := func(logProb func([]float64) float64, initial []float64, stepVar []float64, nDraws int, seed uint64) *mat.Dense {
		dim := len(initial)
		sigma := mat.NewSymDense(dim, nil)
		for i, v := range stepVar {
			sigma.SetSym(i, i, v)
		}
		prop, ok := samplemv.NewProposalNormal(sigma, rand.NewSource(seed))
		Expect(ok).To(BeTrue())

		mh := samplemv.MetropolisHastingser{
			Initial:  initial,
			Target:   logProber(logProb),
			Proposal: prop,
			Src:      rand.NewSource(seed + 1),
			BurnIn:   5000,
			Rate:     5,
		}
		batch := mat.NewDense(nDraws, dim, nil)
		mh.Sample(batch)
		return batch
	}

	It("favors the alternative and matches the quadrature reference", func() {
		const nDraws = 20000

		h1Draws := mhSample(func(x []float64) float64 { return h1LogPost(x[0], x[1]) },
			[]float64{1.0, 0.5}, []float64{0.09, 0.0225}, nDraws, 101)
		h0Draws := mhSample(func(x []float64) float64 { return h0LogPost(x[0]) },
			[]float64{0.6}, []float64{0.0225}, nDraws, 202)

		h1Opts := bridge.DefaultOptions([]transform.ParameterSpec{
			{Name: "delta", Kind: transform.KindUnbounded},
			{Name: "sigma", Kind: transform.KindPositive},
		})
		h1Opts.Seed = 1
		// random-walk chains are heavily autocorrelated; a conservative
		// effective sample size keeps the error measure honest
		h1Opts.EffectiveSampleSize = nDraws / 10
		h1Est, err := mustRun(h1Draws, func(p []float64, _ any) float64 { return h1LogPost(p[0], p[1]) }, h1Opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(h1Est.Converged).To(BeTrue())

		h0Opts := bridge.DefaultOptions([]transform.ParameterSpec{
			{Name: "sigma", Kind: transform.KindPositive},
		})
		h0Opts.Seed = 2
		h0Opts.EffectiveSampleSize = nDraws / 10
		h0Est, err := mustRun(h0Draws, func(p []float64, _ any) float64 { return h0LogPost(p[0]) }, h0Opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(h0Est.Converged).To(BeTrue())

		h1Err := h1Est.ErrorMeasure()
		h0Err := h0Est.ErrorMeasure()
		bf := bayesfactor.New(
			bayesfactor.Result{Model: "H1", Estimate: h1Est, Err: &h1Err},
			bayesfactor.Result{Model: "H0", Estimate: h0Est, Err: &h0Err},
		)

		Expect(bf.BF).To(BeNumerically(">", 1), "data with a clear effect must favor H1")

		ref := referenceLogBF()
		// ~5 percent relative error on the Bayes factor at this draw count
		Expect(bf.LogBF).To(BeNumerically("~", ref, 0.08))

		// combinator symmetry on real estimates
		rev := bayesfactor.New(
			bayesfactor.Result{Model: "H0", Estimate: h0Est},
			bayesfactor.Result{Model: "H1", Estimate: h1Est},
		)
		Expect(rev.LogBF).To(Equal(-bf.LogBF))
	})
})

// logProber adapts a plain function to the distmv.LogProber interface
// consumed by samplemv.
type logProber func([]float64) float64

func (f logProber) LogProb(x []float64) float64 { return f(x) }
