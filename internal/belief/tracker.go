package belief

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/x0rium/robust-semantic-agent/internal/domain"
	"github.com/x0rium/robust-semantic-agent/internal/semantics"
)

const (
	DefaultParticles         = 5000
	DefaultResampleThreshold = 0.5
	DefaultObsNoise          = 0.1
	DefaultJitter            = 0.01
	DefaultInitSpread        = 0.5
)

const log2Pi = 1.8378770664093453

// Tracker owns the particle-filter update rules: observation
// likelihood weighting, claim multipliers, and systematic resampling.
// All randomness flows through the injected generator so runs are
// reproducible from a seed.
type Tracker struct {
	logger *zap.Logger
	rng    *rand.Rand

	ObsNoise          float64
	ResampleThreshold float64
	Jitter            float64

	degenerateLog rate.Sometimes
}

func NewTracker(rng *rand.Rand, logger *zap.Logger) *Tracker {
	return &Tracker{
		logger:            logger,
		rng:               rng,
		ObsNoise:          DefaultObsNoise,
		ResampleThreshold: DefaultResampleThreshold,
		Jitter:            DefaultJitter,
		degenerateLog:     rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
}

// Scatter spreads particles around the origin with the given standard
// deviation and resets weights to uniform.
func (t *Tracker) Scatter(b *Belief, spread float64) {
	for i := range b.Positions {
		b.Positions[i] = t.rng.NormFloat64() * spread
	}
	logUniform := -math.Log(float64(b.N()))
	for i := range b.LogW {
		b.LogW[i] = logUniform
	}
}

// UpdateObservation reweights particles by the Gaussian likelihood of
// the observation at the tracker's nominal noise level.
func (t *Tracker) UpdateObservation(b *Belief, obs []float64) error {
	return t.UpdateObservationNoise(b, obs, t.ObsNoise)
}

// UpdateObservationNoise reweights particles by the Gaussian
// likelihood of the observation at an explicit noise level. Query
// answers arrive through here at a fraction of the nominal noise.
// Rejects the observation before touching any weight, so a failed
// update leaves the belief intact.
func (t *Tracker) UpdateObservationNoise(b *Belief, obs []float64, noise float64) error {
	if len(obs) != b.Dim {
		return fmt.Errorf("observation dimension %d, want %d: %w", len(obs), b.Dim, domain.ErrInvalidInput)
	}
	for _, v := range obs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite observation: %w", domain.ErrInvalidInput)
		}
	}

	logNorm := -math.Log(noise) - 0.5*log2Pi
	for i := range b.LogW {
		row := b.At(i)
		ll := 0.0
		for d := 0; d < b.Dim; d++ {
			z := (obs[d] - row[d]) / noise
			ll += -0.5*z*z + logNorm
		}
		b.LogW[i] += ll
	}

	if !NormalizeLogWeights(b.LogW) {
		t.warnDegenerate("observation update collapsed weights")
		return fmt.Errorf("observation update: %w", domain.ErrNumericDegeneracy)
	}
	return nil
}

// ApplyClaim folds a claim into the belief as a soft-likelihood
// multiplier. A true claim adds the reliability logit inside the claim
// region and subtracts it outside, a false claim mirrors that, and
// contradictory or uninformative claims leave the base weights alone
// (contradictions are handled by credal expansion, not here).
func (t *Tracker) ApplyClaim(b *Belief, c domain.Claim, reliabilityLogit float64) error {
	switch c.Status {
	case semantics.True:
		t.applyRegionMultiplier(b, c.Region, reliabilityLogit)
	case semantics.False:
		t.applyRegionMultiplier(b, c.Region, -reliabilityLogit)
	case semantics.Neither, semantics.Both:
		// Neutral multiplier on the base belief.
	}

	if !NormalizeLogWeights(b.LogW) {
		t.warnDegenerate("claim update collapsed weights")
		return fmt.Errorf("claim %q: %w", c.Statement, domain.ErrNumericDegeneracy)
	}
	return nil
}

func (t *Tracker) applyRegionMultiplier(b *Belief, region domain.RegionFunc, lambda float64) {
	for i := range b.LogW {
		if region(b.At(i)) {
			b.LogW[i] += lambda
		} else {
			b.LogW[i] -= lambda
		}
	}
}

// MaybeResample resamples when the effective sample size drops below
// the configured fraction of the particle count.
func (t *Tracker) MaybeResample(b *Belief) bool {
	if b.ESS() < t.ResampleThreshold*float64(b.N()) {
		t.Resample(b)
		return true
	}
	return false
}

// Resample performs low-variance systematic resampling: one uniform
// offset, evenly strided targets through the weight CDF, then a small
// positional jitter to keep particle diversity.
func (t *Tracker) Resample(b *Belief) {
	n := b.N()
	cum := b.Cumulative()
	u := t.rng.Float64()

	next := make([]float64, len(b.Positions))
	j := 0
	for i := 0; i < n; i++ {
		target := (float64(i) + u) / float64(n)
		for j < n-1 && cum[j] < target {
			j++
		}
		copy(next[i*b.Dim:(i+1)*b.Dim], b.At(j))
	}

	for i := range next {
		next[i] += t.rng.NormFloat64() * t.Jitter
	}
	b.Positions = next

	logUniform := -math.Log(float64(n))
	for i := range b.LogW {
		b.LogW[i] = logUniform
	}
}

func (t *Tracker) warnDegenerate(msg string) {
	t.degenerateLog.Do(func() {
		t.logger.Warn(msg, zap.String("recovery", "weights reset to uniform"))
	})
}
