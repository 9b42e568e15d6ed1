// Package transform maps constrained parameter vectors to unconstrained
// real coordinates and back, tracking the log absolute Jacobian
// determinant of the map. A compiled Plan is calibrated against one
// posterior sample and is read-only afterwards.
package transform

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/vandenman/bridgesampling/internal/logmath"
)

// Kind identifies the constraint geometry of one parameter.
type Kind string

const (
	// KindUnbounded is the identity map over the real line.
	KindUnbounded Kind = "unbounded"
	// KindPositive is a shifted log map over (Lower, +Inf); Lower defaults to 0.
	KindPositive Kind = "positive"
	// KindBounded is a logit map over the open interval (Lower, Upper).
	KindBounded Kind = "bounded"
	// KindSimplex marks one member of the single stick-breaking group.
	KindSimplex Kind = "simplex"
	// KindCircular is an angle in [0, 2pi): the offset from the sample
	// circular mean is opened onto the real line by a logit map of
	// (-pi, pi), so the cut point avoids the posterior mass.
	KindCircular Kind = "circular"
)

var (
	// ErrInvalidSpec is returned when a ParameterSpec list is structurally
	// malformed (inverted bounds, more than one simplex group, ...).
	ErrInvalidSpec = errors.New("invalid parameter spec")
	// ErrInvalidParameterValue is returned when a draw violates the domain
	// declared for its column.
	ErrInvalidParameterValue = errors.New("invalid parameter value")
)

// simplexSumTolerance bounds |sum - 1| for a valid simplex draw.
const simplexSumTolerance = 1e-6

const twoPi = 2 * math.Pi

// ParameterSpec declares the constraint of one sample column. Lower and
// Upper are consumed by bounded (both) and positive (Lower as optional
// shift); they are ignored for simplex and circular columns. Group tags
// simplex members; all members must share one group value.
type ParameterSpec struct {
	Name  string
	Kind  Kind
	Lower float64
	Upper float64
	Group int
}

// Plan is a compiled transform for one ParameterSpec list. It must be
// calibrated against the posterior sample before use; calibration
// validates every draw and fixes the circular cut points.
type Plan struct {
	specs      []ParameterSpec
	simplex    []int     // native column indices of the simplex group, in order
	freePos    []int     // native column -> free coordinate index, -1 for the dropped member
	center     []float64 // circular recentering offset per native column
	nativeDim  int
	freeDim    int
	calibrated bool
}

// NewPlan validates the spec list structurally and compiles the
// column layout of the unconstrained space.
func NewPlan(specs []ParameterSpec) (*Plan, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: empty spec list", ErrInvalidSpec)
	}
	p := &Plan{
		specs:     append([]ParameterSpec(nil), specs...),
		nativeDim: len(specs),
		center:    make([]float64, len(specs)),
	}
	groups := make(map[int][]int)
	for j, s := range specs {
		switch s.Kind {
		case KindUnbounded, KindCircular:
		case KindPositive:
			if math.IsNaN(s.Lower) || math.IsInf(s.Lower, 0) {
				return nil, fmt.Errorf("%w: column %d: positive shift must be finite", ErrInvalidSpec, j)
			}
		case KindBounded:
			if math.IsNaN(s.Lower) || math.IsNaN(s.Upper) ||
				math.IsInf(s.Lower, 0) || math.IsInf(s.Upper, 0) || s.Lower >= s.Upper {
				return nil, fmt.Errorf("%w: column %d: bounds [%v, %v] are not a finite ordered interval",
					ErrInvalidSpec, j, s.Lower, s.Upper)
			}
		case KindSimplex:
			groups[s.Group] = append(groups[s.Group], j)
		default:
			return nil, fmt.Errorf("%w: column %d: unknown kind %q", ErrInvalidSpec, j, s.Kind)
		}
	}
	if len(groups) > 1 {
		return nil, fmt.Errorf("%w: %d simplex groups declared, only one is supported per run",
			ErrInvalidSpec, len(groups))
	}
	for _, members := range groups {
		if len(members) < 2 {
			return nil, fmt.Errorf("%w: simplex group needs at least 2 members, got %d",
				ErrInvalidSpec, len(members))
		}
		p.simplex = members
	}

	// lay out free coordinates in native column order, dropping the last
	// simplex member (the stick-breaking remainder)
	p.freePos = make([]int, p.nativeDim)
	dropped := -1
	if len(p.simplex) > 0 {
		dropped = p.simplex[len(p.simplex)-1]
	}
	next := 0
	for j := range specs {
		if j == dropped {
			p.freePos[j] = -1
			continue
		}
		p.freePos[j] = next
		next++
	}
	p.freeDim = next
	return p, nil
}

// NativeDim returns the number of native parameter columns.
func (p *Plan) NativeDim() int { return p.nativeDim }

// FreeDim returns the dimensionality of the unconstrained space. A
// simplex group of k members contributes k-1 coordinates.
func (p *Plan) FreeDim() int { return p.freeDim }

// Calibrate validates every draw against its declared domain and fixes
// the circular cut points at the antipode of each angle's sample
// circular mean. It must run before Forward, Inverse or Transform and
// before any density evaluation, so invalid inputs fail fast.
func (p *Plan) Calibrate(draws mat.Matrix) error {
	rows, cols := draws.Dims()
	if cols != p.nativeDim {
		return fmt.Errorf("%w: sample has %d columns, spec declares %d", ErrInvalidSpec, cols, p.nativeDim)
	}
	if rows == 0 {
		return fmt.Errorf("%w: empty sample", ErrInvalidSpec)
	}
	sinSum := make([]float64, p.nativeDim)
	cosSum := make([]float64, p.nativeDim)
	for i := 0; i < rows; i++ {
		for j, s := range p.specs {
			x := draws.At(i, j)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return p.valueErr(i, j, x, "not finite")
			}
			switch s.Kind {
			case KindPositive:
				if x <= s.Lower {
					return p.valueErr(i, j, x, fmt.Sprintf("must exceed lower bound %v", s.Lower))
				}
			case KindBounded:
				if x <= s.Lower || x >= s.Upper {
					return p.valueErr(i, j, x, fmt.Sprintf("outside open interval (%v, %v)", s.Lower, s.Upper))
				}
			case KindSimplex:
				if x <= 0 || x >= 1 {
					return p.valueErr(i, j, x, "simplex member must lie strictly inside (0, 1); stick-breaking is undefined at the endpoints")
				}
			case KindCircular:
				if x < 0 || x >= twoPi {
					return p.valueErr(i, j, x, "angle outside [0, 2pi)")
				}
				sinSum[j] += math.Sin(x)
				cosSum[j] += math.Cos(x)
			}
		}
		if len(p.simplex) > 0 {
			sum := 0.0
			for _, j := range p.simplex {
				sum += draws.At(i, j)
			}
			if math.Abs(sum-1) > simplexSumTolerance {
				return fmt.Errorf("%w: row %d: simplex group sums to %v, want 1 within %v",
					ErrInvalidParameterValue, i, sum, simplexSumTolerance)
			}
		}
	}
	for j, s := range p.specs {
		if s.Kind == KindCircular {
			// atan2(0,0) = 0 keeps a degenerate direction usable
			p.center[j] = math.Atan2(sinSum[j], cosSum[j])
		}
	}
	p.calibrated = true
	return nil
}

// Forward maps one native draw into free (unconstrained) coordinates.
// It returns the log absolute determinant of dx/du at the mapped point,
// the additive correction that turns the native-space target density
// into the unconstrained-space target.
func (p *Plan) Forward(native, free []float64) (float64, error) {
	if err := p.checkReady(len(native), len(free)); err != nil {
		return 0, err
	}
	logJac := 0.0
	for j, s := range p.specs {
		x := native[j]
		switch s.Kind {
		case KindUnbounded:
			free[p.freePos[j]] = x
		case KindPositive:
			v := x - s.Lower
			if v <= 0 {
				return 0, p.valueErr(-1, j, x, fmt.Sprintf("must exceed lower bound %v", s.Lower))
			}
			u := math.Log(v)
			free[p.freePos[j]] = u
			logJac += u
		case KindBounded:
			if x <= s.Lower || x >= s.Upper {
				return 0, p.valueErr(-1, j, x, fmt.Sprintf("outside open interval (%v, %v)", s.Lower, s.Upper))
			}
			u := math.Log(x-s.Lower) - math.Log(s.Upper-x)
			free[p.freePos[j]] = u
			logJac += math.Log(s.Upper-s.Lower) + logmath.LogSigmoid(u) + logmath.LogSigmoid(-u)
		case KindCircular:
			if x < 0 || x >= twoPi {
				return 0, p.valueErr(-1, j, x, "angle outside [0, 2pi)")
			}
			// recenter so the cut sits at the antipode of the mass, then
			// open (-pi, pi) onto the real line; a plain wrapped offset
			// would let proposal mass beyond the cut alias onto the
			// periodic extension of the target
			phi := wrapToPi(x - p.center[j])
			if phi == math.Pi {
				phi = math.Nextafter(math.Pi, 0)
			}
			u := math.Log(math.Pi+phi) - math.Log(math.Pi-phi)
			free[p.freePos[j]] = u
			logJac += math.Log(twoPi) + logmath.LogSigmoid(u) + logmath.LogSigmoid(-u)
		case KindSimplex:
			// handled as a group below
		}
	}
	if len(p.simplex) > 0 {
		rem := 1.0
		for _, j := range p.simplex[:len(p.simplex)-1] {
			x := native[j]
			z := x / rem
			if x <= 0 || z <= 0 || z >= 1 {
				return 0, p.valueErr(-1, j, x, fmt.Sprintf("stick-breaking ratio %v outside the open unit interval", z))
			}
			free[p.freePos[j]] = math.Log(z) - math.Log1p(-z)
			logJac += math.Log(rem) + math.Log(z) + math.Log1p(-z)
			rem -= x
		}
	}
	return logJac, nil
}

// Inverse maps free coordinates back to native parameter values,
// returning the same log |dx/du| convention as Forward. It is defined
// for every real input: proposal draws always land in the native domain.
func (p *Plan) Inverse(free, native []float64) float64 {
	logJac := 0.0
	for j, s := range p.specs {
		switch s.Kind {
		case KindUnbounded:
			native[j] = free[p.freePos[j]]
		case KindPositive:
			u := free[p.freePos[j]]
			native[j] = math.Exp(u) + s.Lower
			logJac += u
		case KindBounded:
			u := free[p.freePos[j]]
			ls, lms := logmath.LogSigmoid(u), logmath.LogSigmoid(-u)
			native[j] = s.Lower + (s.Upper-s.Lower)*math.Exp(ls)
			logJac += math.Log(s.Upper-s.Lower) + ls + lms
		case KindCircular:
			u := free[p.freePos[j]]
			ls, lms := logmath.LogSigmoid(u), logmath.LogSigmoid(-u)
			phi := -math.Pi + twoPi*math.Exp(ls)
			native[j] = wrapToTwoPi(phi + p.center[j])
			logJac += math.Log(twoPi) + ls + lms
		case KindSimplex:
		}
	}
	if len(p.simplex) > 0 {
		rem := 1.0
		for _, j := range p.simplex[:len(p.simplex)-1] {
			u := free[p.freePos[j]]
			ls, lms := logmath.LogSigmoid(u), logmath.LogSigmoid(-u)
			z := math.Exp(ls)
			native[j] = z * rem
			logJac += math.Log(rem) + ls + lms
			rem *= math.Exp(lms)
		}
		native[p.simplex[len(p.simplex)-1]] = rem
	}
	return logJac
}

// Sample is a transformed posterior sample: unconstrained coordinates
// plus the per-draw log-Jacobian contribution. Derived per estimation
// run and never mutated after creation.
type Sample struct {
	U      *mat.Dense
	LogJac []float64
}

// Transform maps every draw through Forward.
func (p *Plan) Transform(draws mat.Matrix) (*Sample, error) {
	rows, cols := draws.Dims()
	if cols != p.nativeDim {
		return nil, fmt.Errorf("%w: sample has %d columns, spec declares %d", ErrInvalidSpec, cols, p.nativeDim)
	}
	out := &Sample{
		U:      mat.NewDense(rows, p.freeDim, nil),
		LogJac: make([]float64, rows),
	}
	native := make([]float64, p.nativeDim)
	for i := 0; i < rows; i++ {
		for j := range native {
			native[j] = draws.At(i, j)
		}
		lj, err := p.Forward(native, out.U.RawRowView(i))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out.LogJac[i] = lj
	}
	return out, nil
}

func (p *Plan) checkReady(nativeLen, freeLen int) error {
	if !p.calibrated {
		return fmt.Errorf("%w: plan is not calibrated", ErrInvalidSpec)
	}
	if nativeLen != p.nativeDim || freeLen != p.freeDim {
		return fmt.Errorf("%w: vector lengths %d/%d, want %d/%d",
			ErrInvalidSpec, nativeLen, freeLen, p.nativeDim, p.freeDim)
	}
	return nil
}

func (p *Plan) valueErr(row, col int, x float64, why string) error {
	name := p.specs[col].Name
	if name == "" {
		name = fmt.Sprintf("column %d", col)
	}
	if row >= 0 {
		return fmt.Errorf("%w: row %d, %s: %v %s", ErrInvalidParameterValue, row, name, x, why)
	}
	return fmt.Errorf("%w: %s: %v %s", ErrInvalidParameterValue, name, x, why)
}

// wrapToPi wraps an offset angle into (-pi, pi].
func wrapToPi(d float64) float64 {
	d = math.Mod(d, twoPi)
	if d <= -math.Pi {
		d += twoPi
	} else if d > math.Pi {
		d -= twoPi
	}
	return d
}

// wrapToTwoPi wraps an angle into [0, 2pi).
func wrapToTwoPi(a float64) float64 {
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	return a
}
