package semantics

import (
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"
)

func TestECE_PerfectlyCalibrated(t *testing.T) {
	// 10 forecasts of 0.9 with 9 hits: bin confidence equals bin accuracy.
	predictions := make([]float64, 10)
	outcomes := make([]bool, 10)
	for i := range predictions {
		predictions[i] = 0.9
		outcomes[i] = i < 9
	}

	ece := ECE(predictions, outcomes, 10)
	if ece > 1e-9 {
		t.Errorf("ECE = %f, want ~0 for perfectly calibrated forecasts", ece)
	}
}

func TestECE_MaximallyMiscalibrated(t *testing.T) {
	// Confident forecasts that are always wrong.
	predictions := []float64{0.95, 0.95, 0.95, 0.95}
	outcomes := []bool{false, false, false, false}

	ece := ECE(predictions, outcomes, 10)
	if math.Abs(ece-0.95) > 1e-9 {
		t.Errorf("ECE = %f, want 0.95", ece)
	}
}

func TestECE_HandComputed(t *testing.T) {
	// Bin 9 holds {0.9, 0.95} with one hit: |0.5 - 0.925| = 0.425, weight 1/2.
	// Bin 1 holds {0.1, 0.15} with no hits: |0 - 0.125| = 0.125, weight 1/2.
	predictions := []float64{0.9, 0.95, 0.1, 0.15}
	outcomes := []bool{true, false, false, false}

	want := 0.5*0.425 + 0.5*0.125
	ece := ECE(predictions, outcomes, 10)
	if math.Abs(ece-want) > 1e-9 {
		t.Errorf("ECE = %f, want %f", ece, want)
	}
}

func TestECE_Empty(t *testing.T) {
	if got := ECE(nil, nil, 10); got != 0 {
		t.Errorf("ECE of empty input = %f, want 0", got)
	}
}

func TestBrier(t *testing.T) {
	predictions := []float64{0.9, 0.1, 0.6}
	outcomes := []bool{true, false, true}

	want := (0.01 + 0.01 + 0.16) / 3
	got := Brier(predictions, outcomes)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Brier = %f, want %f", got, want)
	}
}

func TestCalibrator_Calibrate_Empty(t *testing.T) {
	c := NewCalibrator(zap.NewNop())
	_, err := c.Calibrate(nil)
	if !errors.Is(err, ErrNoSamples) {
		t.Fatalf("expected ErrNoSamples, got %v", err)
	}
}

func TestCalibrator_Calibrate_WellSeparated(t *testing.T) {
	c := NewCalibrator(zap.NewNop())

	// Evidence so far from the grid boundaries that every candidate pair
	// classifies identically: true claims near (1, 0), false near (0, 1).
	var samples []Sample
	for i := 0; i < 100; i++ {
		samples = append(samples, Sample{Support: 0.97, Counter: 0.02, Outcome: true})
		samples = append(samples, Sample{Support: 0.03, Counter: 0.98, Outcome: false})
	}

	result, err := c.Calibrate(samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Thresholds.Valid() {
		t.Errorf("calibrated thresholds %+v violate tau' < 0.5 < tau", result.Thresholds)
	}
	if result.ECEAfter > result.ECEBefore+1e-9 {
		t.Errorf("ECE after (%f) worse than before (%f)", result.ECEAfter, result.ECEBefore)
	}
	// Every sample lands in a 0.9 or 0.1 bin with a consistent outcome.
	if result.ECEAfter > 0.11 {
		t.Errorf("ECE after = %f, want near 0.1", result.ECEAfter)
	}
	if result.Samples != len(samples) {
		t.Errorf("Samples = %d, want %d", result.Samples, len(samples))
	}
}

func TestCalibrator_Calibrate_GridStaysInRange(t *testing.T) {
	c := NewCalibrator(zap.NewNop())

	// Noisy mid-range evidence pushes the search around the grid; the
	// winner must still respect the threshold ordering.
	var samples []Sample
	vals := []float64{0.2, 0.4, 0.6, 0.8}
	for i, v := range vals {
		for j, w := range vals {
			samples = append(samples, Sample{Support: v, Counter: w, Outcome: (i+j)%2 == 0})
		}
	}

	result, err := c.Calibrate(samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Thresholds.Tau < gridTauLow || result.Thresholds.Tau > gridTauHigh {
		t.Errorf("tau %f outside grid range", result.Thresholds.Tau)
	}
	if result.Thresholds.TauPrime < gridTauPrimeLow || result.Thresholds.TauPrime > gridTauPrimeHigh {
		t.Errorf("tau' %f outside grid range", result.Thresholds.TauPrime)
	}
	if !result.Thresholds.Valid() {
		t.Errorf("calibrated thresholds %+v invalid", result.Thresholds)
	}
}
