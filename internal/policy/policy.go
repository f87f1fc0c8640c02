// Package policy holds the action-selection strategies. Policies see
// only the state estimate the controller hands them; when a
// contradiction is active that estimate is already the conservative
// credal mean, so policies stay oblivious to how it was formed.
package policy

import (
	"math"

	"github.com/x0rium/robust-semantic-agent/internal/domain"
)

const DefaultGain = 1.0

// deadband below which the estimate counts as already on target.
const deadband = 1e-6

// GoalSeeker steers proportionally toward a fixed goal.
type GoalSeeker struct {
	Goal []float64
	Gain float64
}

func NewGoalSeeker(goal []float64) *GoalSeeker {
	g := make([]float64, len(goal))
	copy(g, goal)
	return &GoalSeeker{Goal: g, Gain: DefaultGain}
}

func (p *GoalSeeker) Action(est domain.StateEstimate) []float64 {
	return steer(est.Mean, p.Goal, p.Gain)
}

// Hostile steers straight at a target regardless of safety. It exists
// to pressure-test the safety filter: with a hostile policy in the
// loop every step of progress toward the target must be bought from
// the filter.
type Hostile struct {
	Target []float64
	Gain   float64
}

func NewHostile(target []float64) *Hostile {
	t := make([]float64, len(target))
	copy(t, target)
	return &Hostile{Target: t, Gain: DefaultGain}
}

func (p *Hostile) Action(est domain.StateEstimate) []float64 {
	return steer(est.Mean, p.Target, p.Gain)
}

// steer returns a gain-scaled unit vector from the estimate toward the
// target, or zeros inside the deadband.
func steer(from, to []float64, gain float64) []float64 {
	action := make([]float64, len(from))
	sum := 0.0
	for i := range from {
		action[i] = to[i] - from[i]
		sum += action[i] * action[i]
	}
	distance := math.Sqrt(sum)
	if distance < deadband {
		for i := range action {
			action[i] = 0
		}
		return action
	}
	for i := range action {
		action[i] = gain * action[i] / distance
	}
	return action
}
