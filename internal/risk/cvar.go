// Package risk scores outcome distributions by their worst tail
// rather than their mean. CVaR@alpha is the expected value of the
// worst alpha-fraction of outcomes; lower values are worse throughout.
package risk

import (
	"math"
	"math/rand/v2"
	"sort"

	"go.uber.org/zap"

	"github.com/x0rium/robust-semantic-agent/internal/belief"
)

const (
	DefaultAlpha          = 0.1
	DefaultGamma          = 0.98
	DefaultBellmanSamples = 100
)

// CVaR computes the conditional value at risk of empirical samples by
// sort-and-average: the mean of the worst ceil(alpha*n) outcomes.
// Alpha must lie in (0, 1].
func CVaR(values []float64, alpha float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	cutoff := int(math.Ceil(alpha * float64(n)))
	if cutoff < 1 {
		cutoff = 1
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted[:cutoff] {
		sum += v
	}
	return sum / float64(cutoff)
}

// CVaRWeighted computes CVaR over log-weighted particles. Particles
// are sorted by value; the tail is every particle whose cumulative
// weight is at most alpha, floored to one particle so the worst
// outcome always counts. Falls back to the single worst value when the
// tail weight underflows.
func CVaRWeighted(logWeights, values []float64, alpha float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}

	w := belief.LinearWeights(logWeights)

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	cutoff := 0
	cum := 0.0
	for _, j := range idx {
		cum += w[j]
		if cum > alpha {
			break
		}
		cutoff++
	}
	if cutoff == 0 {
		cutoff = 1
	}

	tailWeight := 0.0
	tailSum := 0.0
	for _, j := range idx[:cutoff] {
		tailWeight += w[j]
		tailSum += w[j] * values[j]
	}
	if tailWeight > 1e-12 {
		return tailSum / tailWeight
	}
	return values[idx[0]]
}

// Evaluator turns a belief and a per-state utility into a single
// risk-adjusted value: the CVaR of the utility across particles. A
// belief whose mass sits safely near the goal scores high; a belief
// with even a small mass in a bad region is pulled down by its tail.
type Evaluator struct {
	logger *zap.Logger
	Alpha  float64
}

func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{logger: logger, Alpha: DefaultAlpha}
}

// BeliefValue scores a belief under the utility function.
func (e *Evaluator) BeliefValue(b *belief.Belief, utility func(x []float64) float64) float64 {
	values := make([]float64, b.N())
	for i := range values {
		values[i] = utility(b.At(i))
	}
	return CVaRWeighted(b.LogW, values, e.Alpha)
}

// Bellman is the risk-aware Bellman backup: the CVaR over sampled
// one-step returns r + gamma * V(next).
type Bellman struct {
	rng *rand.Rand

	Alpha   float64
	Gamma   float64
	Samples int
}

func NewBellman(rng *rand.Rand) *Bellman {
	return &Bellman{
		rng:     rng,
		Alpha:   DefaultAlpha,
		Gamma:   DefaultGamma,
		Samples: DefaultBellmanSamples,
	}
}

// Backup samples particles from the belief proportionally to their
// weights and returns the CVaR of the sampled returns for the action.
func (rb *Bellman) Backup(
	b *belief.Belief,
	action []float64,
	reward func(x, u []float64) float64,
	transition func(x, u []float64) []float64,
	value func(x []float64) float64,
) float64 {
	cum := b.Cumulative()
	returns := make([]float64, rb.Samples)
	for s := range returns {
		i := belief.SampleIndex(cum, rb.rng.Float64())
		x := b.At(i)
		next := transition(x, action)
		returns[s] = reward(x, action) + rb.Gamma*value(next)
	}
	return CVaR(returns, rb.Alpha)
}
