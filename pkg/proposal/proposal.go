// Package proposal fits the tractable multivariate normal density used
// as the second sample of the bridge identity. The fit is a moment
// match: sample mean and covariance of the transformed posterior draws,
// with a ridge escalated on the diagonal when the covariance is close
// to singular.
package proposal

import (
	"errors"
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
)

// ErrSingularCovariance is returned when no positive-definite covariance
// can be produced, even after ridge escalation.
var ErrSingularCovariance = errors.New("singular covariance")

// Config holds the fitting knobs.
type Config struct {
	// Ridge is the initial diagonal inflation applied when the raw
	// covariance fails its Cholesky factorization. It is escalated by
	// factors of 10 up to MaxRidge before giving up.
	Ridge    float64
	MaxRidge float64
}

// DefaultConfig returns the default fitting configuration.
func DefaultConfig() Config {
	return Config{Ridge: 1e-8, MaxRidge: 1e-2}
}

// Model is a fitted proposal density over unconstrained coordinates.
// It is owned by one estimation run and read-only after fitting.
type Model struct {
	dist *distmv.Normal
	mean []float64
	cov  *mat.SymDense
	src  rand.Source
}

// Fit computes the sample mean and covariance of u (rows are draws) and
// constructs a multivariate normal with direct sampling driven by src.
// Dimensionality 1 degenerates to a univariate normal.
func Fit(u *mat.Dense, cfg Config, src rand.Source) (*Model, error) {
	if cfg.Ridge <= 0 {
		cfg.Ridge = DefaultConfig().Ridge
	}
	if cfg.MaxRidge < cfg.Ridge {
		cfg.MaxRidge = DefaultConfig().MaxRidge
	}
	rows, dim := u.Dims()
	if rows < 2 || dim < 1 {
		return nil, fmt.Errorf("%w: need at least 2 draws and 1 dimension, got %dx%d",
			ErrSingularCovariance, rows, dim)
	}

	mean := make([]float64, dim)
	col := make([]float64, rows)
	for j := 0; j < dim; j++ {
		mat.Col(col, j, u)
		mean[j] = stat.Mean(col, nil)
	}

	cov := mat.NewSymDense(dim, nil)
	stat.CovarianceMatrix(cov, u, nil)

	ridge := 0.0
	for {
		trial := mat.NewSymDense(dim, nil)
		trial.CopySym(cov)
		if ridge > 0 {
			for j := 0; j < dim; j++ {
				trial.SetSym(j, j, trial.At(j, j)+ridge)
			}
		}
		if dist, ok := distmv.NewNormal(mean, trial, src); ok {
			return &Model{dist: dist, mean: mean, cov: trial, src: src}, nil
		}
		switch {
		case ridge == 0:
			ridge = cfg.Ridge
		case ridge < cfg.MaxRidge:
			ridge *= 10
		default:
			return nil, fmt.Errorf("%w: %d dimensions, ridge exhausted at %v",
				ErrSingularCovariance, dim, ridge)
		}
	}
}

// Dim returns the dimensionality of the proposal.
func (m *Model) Dim() int { return len(m.mean) }

// Mean returns a copy of the fitted mean vector.
func (m *Model) Mean() []float64 {
	return append([]float64(nil), m.mean...)
}

// Covariance returns a copy of the fitted (possibly ridged) covariance.
func (m *Model) Covariance() *mat.SymDense {
	out := mat.NewSymDense(len(m.mean), nil)
	out.CopySym(m.cov)
	return out
}

// LogProb evaluates the normalized log density at x.
func (m *Model) LogProb(x []float64) float64 {
	return m.dist.LogProb(x)
}

// Sample draws n independent points from the proposal using the source
// supplied at fit time.
func (m *Model) Sample(n int) *mat.Dense {
	out := mat.NewDense(n, len(m.mean), nil)
	for i := 0; i < n; i++ {
		m.dist.Rand(out.RawRowView(i))
	}
	return out
}
