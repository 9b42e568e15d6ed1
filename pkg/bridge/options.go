package bridge

import (
	"errors"

	"github.com/go-logr/logr"

	"github.com/vandenman/bridgesampling/pkg/proposal"
	"github.com/vandenman/bridgesampling/pkg/transform"
)

var (
	// ErrDegenerateSample is returned when the posterior sample is too
	// small relative to the dimensionality to fit a stable proposal.
	ErrDegenerateSample = errors.New("degenerate sample")
	// ErrInvalidEvaluator is returned when the log density evaluator
	// produces NaN or +Inf for an in-domain point.
	ErrInvalidEvaluator = errors.New("invalid evaluator output")
	// ErrInvalidOptions is returned when the per-call configuration is
	// inconsistent.
	ErrInvalidOptions = errors.New("invalid options")
)

// LogDensity is the caller-owned unnormalized log posterior evaluator.
// It receives a native-coordinate parameter vector together with the
// optional data payload from Options, and must be deterministic and
// side-effect free. A return of -Inf denotes a zero-density point;
// NaN and +Inf are contract violations.
type LogDensity func(params []float64, data any) float64

// Options is the per-call configuration surface of one estimation run.
type Options struct {
	// Specs declares the constraint geometry of each sample column, in
	// column order.
	Specs []transform.ParameterSpec
	// Data is passed through to every evaluator call.
	Data any
	// ProposalSampleSize is the number of fresh proposal draws N2.
	// Zero defaults to the posterior sample size.
	ProposalSampleSize int
	// Tolerance is the convergence threshold on |delta log r|.
	Tolerance float64
	// MaxIterations bounds the fixed-point loop. Exhausting it flags the
	// result as non-converged but is not an error.
	MaxIterations int
	// Seed drives the proposal draw generation; identical inputs and
	// seed reproduce the estimate exactly.
	Seed uint64
	// EffectiveSampleSize replaces the raw posterior sample size in the
	// error measure for correlated chains. Zero asserts i.i.d. draws.
	EffectiveSampleSize float64
	// Proposal configures the covariance ridge escalation.
	Proposal proposal.Config
	// Workers bounds the density-evaluation fan-out. Zero defaults to
	// GOMAXPROCS.
	Workers int
	// Logger receives progress at DEBUG/TRACE verbosity. The zero value
	// discards.
	Logger logr.Logger
}

// DefaultOptions returns the default configuration for the given specs.
func DefaultOptions(specs []transform.ParameterSpec) Options {
	return Options{
		Specs:         specs,
		Tolerance:     1e-10,
		MaxIterations: 1000,
		Proposal:      proposal.DefaultConfig(),
	}
}
