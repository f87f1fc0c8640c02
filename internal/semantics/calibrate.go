package semantics

import (
	"errors"

	"go.uber.org/zap"
)

const (
	DefaultCalibrationBins = 10
	DefaultGridPoints      = 20
	DefaultCostWeight      = 0.1

	gridTauLow       = 0.55
	gridTauHigh      = 0.95
	gridTauPrimeLow  = 0.05
	gridTauPrimeHigh = 0.45
)

var ErrNoSamples = errors.New("no calibration samples")

// Sample is one labelled claim outcome: the evidence scores the engine
// saw and whether the claim turned out to hold.
type Sample struct {
	Support float64 `json:"support"`
	Counter float64 `json:"counter"`
	Outcome bool    `json:"outcome"`
}

// ECE is the expected calibration error of probabilistic forecasts:
// forecasts are bucketed into equal-width bins and the per-bin gap
// between mean forecast and empirical frequency is averaged, weighted
// by bin occupancy.
func ECE(predictions []float64, outcomes []bool, bins int) float64 {
	if len(predictions) == 0 || bins <= 0 {
		return 0
	}

	binConf := make([]float64, bins)
	binHits := make([]float64, bins)
	binN := make([]float64, bins)

	for i, p := range predictions {
		idx := int(p * float64(bins))
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		binConf[idx] += p
		if outcomes[i] {
			binHits[idx]++
		}
		binN[idx]++
	}

	n := float64(len(predictions))
	ece := 0.0
	for b := 0; b < bins; b++ {
		if binN[b] == 0 {
			continue
		}
		acc := binHits[b] / binN[b]
		conf := binConf[b] / binN[b]
		gap := acc - conf
		if gap < 0 {
			gap = -gap
		}
		ece += (binN[b] / n) * gap
	}
	return ece
}

// Brier is the mean squared error between forecasts and outcomes.
func Brier(predictions []float64, outcomes []bool) float64 {
	if len(predictions) == 0 {
		return 0
	}
	sum := 0.0
	for i, p := range predictions {
		o := 0.0
		if outcomes[i] {
			o = 1.0
		}
		d := p - o
		sum += d * d
	}
	return sum / float64(len(predictions))
}

// Calibrator tunes status thresholds against labelled claim outcomes.
type Calibrator struct {
	logger *zap.Logger

	GridPoints        int
	Bins              int
	CostWeight        float64
	FalsePositiveCost float64
	FalseNegativeCost float64
}

func NewCalibrator(logger *zap.Logger) *Calibrator {
	return &Calibrator{
		logger:            logger,
		GridPoints:        DefaultGridPoints,
		Bins:              DefaultCalibrationBins,
		CostWeight:        DefaultCostWeight,
		FalsePositiveCost: 1.0,
		FalseNegativeCost: 1.0,
	}
}

type CalibrationResult struct {
	Thresholds Thresholds `json:"thresholds"`
	ECEBefore  float64    `json:"ece_before"`
	ECEAfter   float64    `json:"ece_after"`
	Brier      float64    `json:"brier"`
	Samples    int        `json:"samples"`
}

// Calibrate grid-searches (tau, tau') pairs and returns the pair
// minimising ECE plus cost-weighted misclassification rate. The
// reported ECEBefore is measured at thresholds (0.7, 0.3).
func (c *Calibrator) Calibrate(samples []Sample) (CalibrationResult, error) {
	if len(samples) == 0 {
		return CalibrationResult{}, ErrNoSamples
	}

	outcomes := make([]bool, len(samples))
	for i, s := range samples {
		outcomes[i] = s.Outcome
	}

	before := Thresholds{Tau: 0.7, TauPrime: 0.3}
	eceBefore := ECE(c.predict(samples, before), outcomes, c.Bins)

	best := before
	bestObjective := 0.0
	bestECE := 0.0
	first := true

	for i := 0; i < c.GridPoints; i++ {
		tau := gridTauLow + (gridTauHigh-gridTauLow)*float64(i)/float64(c.GridPoints-1)
		for j := 0; j < c.GridPoints; j++ {
			tauPrime := gridTauPrimeLow + (gridTauPrimeHigh-gridTauPrimeLow)*float64(j)/float64(c.GridPoints-1)

			cand := Thresholds{Tau: tau, TauPrime: tauPrime}
			if !cand.Valid() {
				continue
			}

			predictions := c.predict(samples, cand)
			ece := ECE(predictions, outcomes, c.Bins)

			falsePos, falseNeg := 0.0, 0.0
			for k, p := range predictions {
				predicted := p > 0.5
				if predicted && !outcomes[k] {
					falsePos++
				}
				if !predicted && outcomes[k] {
					falseNeg++
				}
			}
			cost := c.FalsePositiveCost*falsePos + c.FalseNegativeCost*falseNeg
			objective := ece + c.CostWeight*cost/float64(len(samples))

			if first || objective < bestObjective {
				first = false
				bestObjective = objective
				bestECE = ece
				best = cand
			}
		}
	}

	result := CalibrationResult{
		Thresholds: best,
		ECEBefore:  eceBefore,
		ECEAfter:   bestECE,
		Brier:      Brier(c.predict(samples, best), outcomes),
		Samples:    len(samples),
	}

	c.logger.Info("thresholds calibrated",
		zap.Float64("tau", best.Tau),
		zap.Float64("tau_prime", best.TauPrime),
		zap.Float64("ece_before", eceBefore),
		zap.Float64("ece_after", bestECE),
		zap.Int("samples", len(samples)))

	return result, nil
}

func (c *Calibrator) predict(samples []Sample, t Thresholds) []float64 {
	predictions := make([]float64, len(samples))
	for i, s := range samples {
		predictions[i] = AssignStatus(s.Support, s.Counter, t).Probability()
	}
	return predictions
}
