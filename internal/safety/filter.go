// Package safety filters desired actions through a control barrier
// constraint. The filter solves, per step,
//
//	min ||u - ud||^2 + p * s^2
//	s.t. grad(B)(x) . u <= -alpha * B(x) + s
//	     ||u|| <= umax,  s >= 0
//
// where the safe set is the non-positive sublevel set of B. The slack
// keeps the program feasible when the barrier constraint and actuation
// limit collide; the penalty makes using it expensive.
package safety

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/x0rium/robust-semantic-agent/internal/domain"
)

const (
	DefaultAlpha        = 0.5
	DefaultSlackPenalty = 1000.0
	DefaultMaxIter      = 50
	DefaultTolerance    = 1e-6
)

// Result reports what the filter did to one action.
type Result struct {
	Action        []float64
	Slack         float64
	Modified      bool
	Iterations    int
	Relaxed       bool
	EmergencyStop bool
}

// Filter enforces the barrier constraint on desired actions.
type Filter struct {
	logger  *zap.Logger
	barrier domain.Barrier

	// failLog throttles failure warnings; a broken barrier would
	// otherwise warn every step.
	failLog rate.Sometimes

	Alpha        float64
	SlackPenalty float64
	UMax         float64
	MaxIter      int
	Tolerance    float64
}

func NewFilter(barrier domain.Barrier, uMax float64, logger *zap.Logger) *Filter {
	return &Filter{
		logger:       logger,
		barrier:      barrier,
		failLog:      rate.Sometimes{First: 3, Interval: 10 * time.Second},
		Alpha:        DefaultAlpha,
		SlackPenalty: DefaultSlackPenalty,
		UMax:         uMax,
		MaxIter:      DefaultMaxIter,
		Tolerance:    DefaultTolerance,
	}
}

type problem struct {
	a    []float64 // barrier gradient at x
	c    float64   // alpha * B(x)
	ud   []float64
	umax float64
}

type solution struct {
	u     []float64
	slack float64
	iters int
}

// Apply filters the desired action at state x. On solver failure it
// relaxes once (double iteration budget, ten times the tolerance);
// only if that also fails does it return a zero action with
// EmergencyStop set and an error wrapping ErrSolverFailure. The caller
// keeps running either way.
func (f *Filter) Apply(x, desired []float64) (Result, error) {
	p, err := f.formulate(x, desired)
	if err != nil {
		f.failLog.Do(func() {
			f.logger.Warn("safety filter could not formulate, stopping",
				zap.Error(err),
			)
		})
		return Result{Action: make([]float64, len(desired)), EmergencyStop: true}, err
	}

	sol, ok := solve(p, f.SlackPenalty, f.MaxIter, f.Tolerance)
	relaxed := false
	if !ok {
		relaxed = true
		sol, ok = solve(p, f.SlackPenalty, 2*f.MaxIter, 10*f.Tolerance)
	}
	if !ok {
		err := fmt.Errorf("barrier program did not converge in %d iterations: %w",
			3*f.MaxIter, domain.ErrSolverFailure)
		f.failLog.Do(func() {
			f.logger.Warn("safety filter solver failed, stopping", zap.Error(err))
		})
		return Result{
			Action:        make([]float64, len(desired)),
			Iterations:    sol.iters,
			Relaxed:       true,
			EmergencyStop: true,
		}, err
	}

	modified := sol.slack > 1e-9
	for i := range desired {
		if math.Abs(sol.u[i]-desired[i]) > 1e-9 {
			modified = true
			break
		}
	}
	if modified && f.logger.Core().Enabled(zap.DebugLevel) {
		f.logger.Debug("safety filter modified action",
			zap.Float64("slack", sol.slack),
			zap.Int("iterations", sol.iters),
			zap.Bool("relaxed", relaxed),
		)
	}

	return Result{
		Action:     sol.u,
		Slack:      sol.slack,
		Modified:   modified,
		Iterations: sol.iters,
		Relaxed:    relaxed,
	}, nil
}

func (f *Filter) formulate(x, desired []float64) (problem, error) {
	if f.UMax <= 0 || f.Alpha <= 0 {
		return problem{}, fmt.Errorf("invalid filter parameters (umax %v, alpha %v): %w",
			f.UMax, f.Alpha, domain.ErrSolverFailure)
	}
	if len(x) != len(desired) {
		return problem{}, fmt.Errorf("state dim %d does not match action dim %d: %w",
			len(x), len(desired), domain.ErrSolverFailure)
	}
	for _, v := range x {
		if !isFinite(v) {
			return problem{}, fmt.Errorf("non-finite state: %w", domain.ErrSolverFailure)
		}
	}
	for _, v := range desired {
		if !isFinite(v) {
			return problem{}, fmt.Errorf("non-finite desired action: %w", domain.ErrSolverFailure)
		}
	}

	b := f.barrier.Value(x)
	grad := f.barrier.Gradient(x)
	if !isFinite(b) {
		return problem{}, fmt.Errorf("non-finite barrier value: %w", domain.ErrSolverFailure)
	}
	for _, g := range grad {
		if !isFinite(g) {
			return problem{}, fmt.Errorf("non-finite barrier gradient: %w", domain.ErrSolverFailure)
		}
	}

	return problem{a: grad, c: f.Alpha * b, ud: desired, umax: f.UMax}, nil
}

// solve works the program analytically. The optimal slack given u is
// max(0, a.u + c), so u minimises a piecewise quadratic. Off the
// actuation ball the minimiser is closed-form; on the ball the
// KKT multiplier mu is found by bracketing and bisecting ||u(mu)||,
// which decreases to zero as mu grows.
func solve(p problem, penalty float64, maxIter int, tol float64) (solution, bool) {
	aa := dot(p.a, p.a)

	// Unconstrained minimiser of ||u-ud||^2 + penalty*max(0, a.u+c)^2.
	t := dot(p.a, p.ud) + p.c
	var u []float64
	slack := 0.0
	if t <= 0 {
		u = clone(p.ud)
	} else {
		slack = t / (1 + penalty*aa)
		u = axpy(p.ud, p.a, -penalty*slack)
	}
	if norm(u) <= p.umax {
		return solution{u: u, slack: slack}, true
	}

	// Actuation ball is active: u(mu) = (ud - penalty*s(mu)*a)/(1+mu)
	// with s(mu) = max(0, (a.ud + c(1+mu)) / (1+mu+penalty*aa)).
	eval := func(mu float64) ([]float64, float64) {
		s := (dot(p.a, p.ud) + p.c*(1+mu)) / (1 + mu + penalty*aa)
		if s < 0 {
			s = 0
		}
		v := axpy(p.ud, p.a, -penalty*s)
		for i := range v {
			v[i] /= 1 + mu
		}
		return v, s
	}

	iters := 0
	lo, hi := 0.0, 1.0
	for {
		if iters >= maxIter {
			return solution{iters: iters}, false
		}
		iters++
		v, _ := eval(hi)
		if norm(v) <= p.umax {
			break
		}
		lo = hi
		hi *= 2
		if math.IsInf(hi, 1) {
			return solution{iters: iters}, false
		}
	}

	for {
		if iters >= maxIter {
			return solution{iters: iters}, false
		}
		iters++
		mid := 0.5 * (lo + hi)
		v, s := eval(mid)
		n := norm(v)
		if math.Abs(n-p.umax) <= tol*p.umax {
			if n > p.umax {
				scale := p.umax / n
				for i := range v {
					v[i] *= scale
				}
			}
			// Report the violation actually absorbed at the final u.
			s = dot(p.a, v) + p.c
			if s < 0 {
				s = 0
			}
			return solution{u: v, slack: s, iters: iters}, true
		}
		if n > p.umax {
			lo = mid
		} else {
			hi = mid
		}
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}

func clone(a []float64) []float64 {
	out := make([]float64, len(a))
	copy(out, a)
	return out
}

// axpy returns a + scale*b without touching its inputs.
func axpy(a, b []float64, scale float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + scale*b[i]
	}
	return out
}
