// Package query implements the active information acquisition rule:
// pay a fixed cost for one sharper observation when the expected value
// of information clears a threshold.
package query

import (
	"context"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/x0rium/robust-semantic-agent/internal/belief"
)

const (
	DefaultSamples     = 50
	DefaultCost        = 0.2
	DefaultDeltaStar   = 0.15
	DefaultNoiseFactor = 0.5
)

// ValueFunc scores a belief; EVI compares posterior scores to the
// current one.
type ValueFunc func(b *belief.Belief) float64

// Engine computes the expected value of information for a belief.
type Engine struct {
	logger  *zap.Logger
	rng     *rand.Rand
	tracker *belief.Tracker

	Samples     int
	Cost        float64
	DeltaStar   float64
	NoiseFactor float64
}

func NewEngine(tracker *belief.Tracker, rng *rand.Rand, logger *zap.Logger) *Engine {
	return &Engine{
		logger:      logger,
		rng:         rng,
		tracker:     tracker,
		Samples:     DefaultSamples,
		Cost:        DefaultCost,
		DeltaStar:   DefaultDeltaStar,
		NoiseFactor: DefaultNoiseFactor,
	}
}

// QueryNoise is the observation noise a query would be answered at.
func (e *Engine) QueryNoise(baseNoise float64) float64 {
	return baseNoise * e.NoiseFactor
}

// EVI estimates E_o[V(posterior(o))] - V(current) by simulating query
// answers: sample states from the belief, corrupt them at the query
// noise, fold each answer into a cloned posterior and score it. A
// positive result means a query is expected to improve the value
// before its cost is considered.
func (e *Engine) EVI(ctx context.Context, b *belief.Belief, value ValueFunc, queryNoise float64) (float64, error) {
	current := value(b)
	cum := b.Cumulative()

	obs := make([]float64, b.Dim)
	sum := 0.0
	for s := 0; s < e.Samples; s++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		state := b.At(belief.SampleIndex(cum, e.rng.Float64()))
		for d := range obs {
			obs[d] = state[d] + e.rng.NormFloat64()*queryNoise
		}

		posterior := b.Clone()
		// A degenerate update resets the clone to uniform; that
		// posterior is still worth scoring.
		_ = e.tracker.UpdateObservationNoise(posterior, obs, queryNoise)
		sum += value(posterior)
	}

	evi := sum/float64(e.Samples) - current
	e.logger.Debug("evi computed",
		zap.Float64("evi", evi),
		zap.Float64("current_value", current),
		zap.Int("samples", e.Samples),
	)
	return evi, nil
}

// ShouldQuery applies the decision rule EVI >= delta*.
func (e *Engine) ShouldQuery(evi float64) bool {
	return evi >= e.DeltaStar
}
