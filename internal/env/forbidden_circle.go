// Package env provides the forbidden-circle navigation world: a 2D
// single integrator that must reach a goal region while never entering
// a circular obstacle, observed only through Gaussian position noise.
package env

import (
	"fmt"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/x0rium/robust-semantic-agent/internal/domain"
	"github.com/x0rium/robust-semantic-agent/internal/semantics"
)

const (
	DefaultObstacleRadius = 0.3
	DefaultGoalRadius     = 0.1
	DefaultObsNoise       = 0.1
	DefaultMaxAction      = 0.15
	DefaultDt             = 0.1
	DefaultHorizon        = 50

	// DefaultSafetyMargin inflates the barrier handed to the safety
	// filter. The filter constrains the belief mean, not the true
	// state; the margin covers the estimation error between them.
	DefaultSafetyMargin = 0.1

	DefaultGossipProb = 0.1
	DefaultBeaconProb = 0.0

	GoalBonus        = 10.0
	ViolationPenalty = 10.0
)

// CircleBarrier is positive inside the circle and non-positive
// outside, so the safe set is the outside.
type CircleBarrier struct {
	Radius float64
	Center []float64
}

func (cb *CircleBarrier) Value(x []float64) float64 {
	d := 0.0
	for i := range x {
		diff := x[i] - cb.Center[i]
		d += diff * diff
	}
	return cb.Radius*cb.Radius - d
}

func (cb *CircleBarrier) Gradient(x []float64) []float64 {
	grad := make([]float64, len(x))
	for i := range x {
		grad[i] = -2 * (x[i] - cb.Center[i])
	}
	return grad
}

// ForbiddenCircle is the world the controller is evaluated in.
// Alongside observations it emits claims: a gossip source that
// contradicts itself about which half-plane the agent is in, and an
// optional beacon giving scored evidence about the agent's side of the
// meridian.
type ForbiddenCircle struct {
	logger *zap.Logger
	rng    *rand.Rand

	ObstacleRadius float64
	ObstacleCenter []float64
	Goal           []float64
	GoalRadius     float64
	ObsNoise       float64
	MaxAction      float64
	Dt             float64
	Horizon        int
	SafetyMargin   float64

	GossipProb float64
	BeaconProb float64

	state    []float64
	timestep int
}

func NewForbiddenCircle(rng *rand.Rand, logger *zap.Logger) *ForbiddenCircle {
	return &ForbiddenCircle{
		logger:         logger,
		rng:            rng,
		ObstacleRadius: DefaultObstacleRadius,
		ObstacleCenter: []float64{0, 0},
		Goal:           []float64{0.8, 0.8},
		GoalRadius:     DefaultGoalRadius,
		ObsNoise:       DefaultObsNoise,
		MaxAction:      DefaultMaxAction,
		Dt:             DefaultDt,
		Horizon:        DefaultHorizon,
		SafetyMargin:   DefaultSafetyMargin,
		GossipProb:     DefaultGossipProb,
		BeaconProb:     DefaultBeaconProb,
	}
}

// Reset draws a start position on an annulus clear of the obstacle and
// returns the first noisy observation.
func (e *ForbiddenCircle) Reset() []float64 {
	for {
		angle := e.rng.Float64() * 2 * math.Pi
		radius := 0.5 + 0.5*e.rng.Float64()
		e.state = []float64{radius * math.Cos(angle), radius * math.Sin(angle)}
		if !e.InObstacle(e.state) {
			break
		}
	}
	e.timestep = 0
	return e.Observe(e.ObsNoise)
}

// Step clips the action per component, integrates the dynamics and
// scores the transition. A violation is penalised but does not end the
// episode; reaching the goal or the horizon does.
func (e *ForbiddenCircle) Step(action []float64) (domain.StepOutcome, error) {
	if e.state == nil {
		return domain.StepOutcome{}, fmt.Errorf("step before reset: %w", domain.ErrInvalidInput)
	}
	if len(action) != len(e.state) {
		return domain.StepOutcome{}, fmt.Errorf("action dim %d, state dim %d: %w",
			len(action), len(e.state), domain.ErrInvalidInput)
	}
	for _, v := range action {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.StepOutcome{}, fmt.Errorf("non-finite action: %w", domain.ErrInvalidInput)
		}
	}

	for i := range e.state {
		u := action[i]
		if u > e.MaxAction {
			u = e.MaxAction
		}
		if u < -e.MaxAction {
			u = -e.MaxAction
		}
		e.state[i] += u * e.Dt
	}
	e.timestep++

	out := domain.StepOutcome{
		Reward: -e.distToGoal(e.state),
		State:  append([]float64(nil), e.state...),
	}

	if e.AtGoal(e.state) {
		out.Done = true
		out.GoalReached = true
		out.Reward += GoalBonus
	}
	if e.InObstacle(e.state) {
		out.Violated = true
		out.Reward -= ViolationPenalty
	}
	if e.timestep >= e.Horizon {
		out.Done = true
	}

	out.Observation = e.Observe(e.ObsNoise)
	out.Claims = e.emitClaims()
	return out, nil
}

// Observe returns the true state corrupted by Gaussian noise of the
// given standard deviation. Query answers use a smaller noise than the
// per-step observations.
func (e *ForbiddenCircle) Observe(noise float64) []float64 {
	obs := make([]float64, len(e.state))
	for i := range obs {
		obs[i] = e.state[i] + e.rng.NormFloat64()*noise
	}
	return obs
}

// State exposes the true state for episode records.
func (e *ForbiddenCircle) State() []float64 {
	return append([]float64(nil), e.state...)
}

// Barrier returns the obstacle barrier inflated by the safety margin.
func (e *ForbiddenCircle) Barrier() domain.Barrier {
	return &CircleBarrier{
		Radius: e.ObstacleRadius + e.SafetyMargin,
		Center: append([]float64(nil), e.ObstacleCenter...),
	}
}

func (e *ForbiddenCircle) InObstacle(x []float64) bool {
	d := 0.0
	for i := range x {
		diff := x[i] - e.ObstacleCenter[i]
		d += diff * diff
	}
	return math.Sqrt(d) < e.ObstacleRadius
}

func (e *ForbiddenCircle) AtGoal(x []float64) bool {
	return e.distToGoal(x) <= e.GoalRadius
}

func (e *ForbiddenCircle) distToGoal(x []float64) float64 {
	d := 0.0
	for i := range x {
		diff := x[i] - e.Goal[i]
		d += diff * diff
	}
	return math.Sqrt(d)
}

func (e *ForbiddenCircle) emitClaims() []domain.Claim {
	var claims []domain.Claim

	if e.GossipProb > 0 && e.rng.Float64() < e.GossipProb {
		claims = append(claims, domain.NewClaim(
			"location_north", "gossip", semantics.Both,
			func(x []float64) bool { return x[1] > 0 },
		))
	}

	if e.BeaconProb > 0 && e.rng.Float64() < e.BeaconProb {
		claims = append(claims, e.beaconClaim())
	}
	return claims
}

// beaconClaim emits scored evidence about which side of the meridian
// the agent is on. Scores are noisy but informative, so calibrated
// thresholds can be learned from episode logs.
func (e *ForbiddenCircle) beaconClaim() domain.Claim {
	east := e.state[0] > 0
	var support, counter float64
	if east {
		support = 0.7 + 0.25*e.rng.Float64()
		counter = 0.05 + 0.25*e.rng.Float64()
	} else {
		support = 0.05 + 0.25*e.rng.Float64()
		counter = 0.7 + 0.25*e.rng.Float64()
	}
	return domain.NewScoredClaim(
		"east_of_meridian", "beacon", support, counter,
		func(x []float64) bool { return x[0] > 0 },
	)
}
