// Package bridge estimates the log marginal likelihood of a Bayesian
// model from a posterior sample and an unnormalized log posterior
// evaluator, using the iterative bridge sampling estimator, and derives
// an asymptotic error measure for the estimate.
package bridge

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/vandenman/bridgesampling/internal/logging"
	"github.com/vandenman/bridgesampling/internal/metrics"
	"github.com/vandenman/bridgesampling/pkg/proposal"
	"github.com/vandenman/bridgesampling/pkg/transform"
)

// Estimator runs one bridge sampling estimation over an immutable
// posterior sample and evaluator. Construct with New, execute with Run.
type Estimator struct {
	draws   mat.Matrix
	logPost LogDensity
	opts    Options
	plan    *transform.Plan
	n1      int
	n2      int
	ess     float64
	workers int
	log     logr.Logger
}

// New validates the configuration against the sample shape and prepares
// an estimation run. All fatal input conditions except domain violations
// of individual draws are detected here; those are caught by Run before
// any density evaluation.
func New(draws mat.Matrix, logPost LogDensity, opts Options) (*Estimator, error) {
	if draws == nil {
		return nil, fmt.Errorf("%w: nil posterior sample", ErrInvalidOptions)
	}
	if logPost == nil {
		return nil, fmt.Errorf("%w: nil log density evaluator", ErrInvalidOptions)
	}
	plan, err := transform.NewPlan(opts.Specs)
	if err != nil {
		return nil, err
	}
	n1, cols := draws.Dims()
	if cols != plan.NativeDim() {
		return nil, fmt.Errorf("%w: sample has %d columns, specs declare %d",
			ErrInvalidOptions, cols, plan.NativeDim())
	}
	if opts.Tolerance < 0 {
		return nil, fmt.Errorf("%w: negative tolerance %v", ErrInvalidOptions, opts.Tolerance)
	}
	if opts.MaxIterations < 0 || opts.ProposalSampleSize < 0 || opts.Workers < 0 {
		return nil, fmt.Errorf("%w: negative iteration, proposal size or worker count", ErrInvalidOptions)
	}
	if opts.Tolerance == 0 {
		opts.Tolerance = DefaultOptions(nil).Tolerance
	}
	if opts.MaxIterations == 0 {
		opts.MaxIterations = DefaultOptions(nil).MaxIterations
	}

	e := &Estimator{
		draws:   draws,
		logPost: logPost,
		opts:    opts,
		plan:    plan,
		n1:      n1,
		n2:      opts.ProposalSampleSize,
		ess:     opts.EffectiveSampleSize,
		workers: opts.Workers,
		log:     opts.Logger,
	}
	if e.log.GetSink() == nil {
		e.log = logr.Discard()
	}
	if e.n2 == 0 {
		e.n2 = n1
	}
	if e.workers == 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}

	free := plan.FreeDim()
	if n1 < free+2 {
		return nil, fmt.Errorf("%w: %d draws cannot support a %d-dimensional proposal",
			ErrDegenerateSample, n1, free)
	}
	if n1 < 2*free {
		e.log.Info("posterior sample is small for its dimensionality",
			"draws", n1, "dimensions", free)
	}

	switch {
	case e.ess == 0:
		// the caller asserts i.i.d. draws
		e.ess = float64(n1)
	case e.ess < 1 || e.ess > float64(n1):
		return nil, fmt.Errorf("%w: effective sample size %v outside [1, %d]",
			ErrInvalidOptions, e.ess, n1)
	}
	return e, nil
}

// Run executes the estimation: validate and transform the sample, fit
// the proposal, draw the fresh proposal sample, evaluate the two
// log-weight vectors and iterate the fixed point. Non-convergence is
// reported on the Estimate, never as an error.
func (e *Estimator) Run(ctx context.Context) (*Estimate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// phase 1: domain validation and transform to unconstrained space
	if err := e.plan.Calibrate(e.draws); err != nil {
		return nil, err
	}
	ts, err := e.plan.Transform(e.draws)
	if err != nil {
		return nil, err
	}

	// phase 2: moment-matched proposal and a fresh seeded draw from it
	src := rand.NewSource(e.opts.Seed)
	prop, err := proposal.Fit(ts.U, e.opts.Proposal, src)
	if err != nil {
		return nil, err
	}
	propDraws := prop.Sample(e.n2)
	e.log.V(logging.DEBUG).Info("proposal fitted",
		"dimensions", prop.Dim(), "posteriorDraws", e.n1, "proposalDraws", e.n2)

	// phase 3: log weights at both samples, fanned out across workers
	l1 := make([]float64, e.n1)
	err = e.parallelRange(ctx, e.n1, func(start, end int) error {
		native := make([]float64, e.plan.NativeDim())
		for i := start; i < end; i++ {
			if i%512 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			for j := range native {
				native[j] = e.draws.At(i, j)
			}
			lp := e.logPost(native, e.opts.Data)
			if math.IsNaN(lp) || math.IsInf(lp, 1) {
				return fmt.Errorf("%w: %v at posterior draw %d", ErrInvalidEvaluator, lp, i)
			}
			l1[i] = lp + ts.LogJac[i] - prop.LogProb(ts.U.RawRowView(i))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l2 := make([]float64, e.n2)
	err = e.parallelRange(ctx, e.n2, func(start, end int) error {
		native := make([]float64, e.plan.NativeDim())
		for j := start; j < end; j++ {
			if j%512 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			freeRow := propDraws.RawRowView(j)
			logJac := e.plan.Inverse(freeRow, native)
			lp := e.logPost(native, e.opts.Data)
			if math.IsNaN(lp) || math.IsInf(lp, 1) {
				return fmt.Errorf("%w: %v at proposal draw %d", ErrInvalidEvaluator, lp, j)
			}
			l2[j] = lp + logJac - prop.LogProb(freeRow)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// phase 4: fixed point, strictly sequential
	res := iterate(l1, l2, e.opts.Tolerance, e.opts.MaxIterations)

	est := &Estimate{
		LogML:      res.logR + res.shift,
		Iterations: res.iterations,
		Converged:  res.converged,
		N1:         e.n1,
		N2:         e.n2,
		ess:        e.ess,
		l1:         l1,
		l2:         l2,
	}
	metrics.ObserveRun(est.Iterations, est.Converged)
	if !est.Converged {
		e.log.Info("fixed point did not reach tolerance, returning flagged estimate",
			"iterations", est.Iterations, "logml", est.LogML)
	} else {
		e.log.V(logging.DEBUG).Info("estimate converged",
			"iterations", est.Iterations, "logml", est.LogML)
	}
	return est, nil
}

// parallelRange splits [0, n) into one contiguous chunk per worker;
// each worker writes only its own output rows, so no locking is needed.
func (e *Estimator) parallelRange(ctx context.Context, n int, fn func(start, end int) error) error {
	w := e.workers
	if w > n {
		w = n
	}
	if w <= 1 {
		return fn(0, n)
	}
	chunk := (n + w - 1) / w
	errs := make([]error, w)
	var wg sync.WaitGroup
	for k := 0; k < w; k++ {
		start := k * chunk
		end := min(start+chunk, n)
		if start >= end {
			break
		}
		wg.Add(1)
		go func(k, start, end int) {
			defer wg.Done()
			errs[k] = fn(start, end)
		}(k, start, end)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
