package risk

import (
	"math"
	"math/rand/v2"
	"testing"

	"go.uber.org/zap"

	"github.com/x0rium/robust-semantic-agent/internal/belief"
)

func uniformLogW(n int) []float64 {
	lw := make([]float64, n)
	v := -math.Log(float64(n))
	for i := range lw {
		lw[i] = v
	}
	return lw
}

func TestCVaRHandComputed(t *testing.T) {
	values := []float64{-10, -5, -3, -1, 0, 2, 5, 10}

	cases := []struct {
		name  string
		alpha float64
		want  float64
	}{
		{"worst quarter", 0.25, -7.5},
		{"single worst", 0.01, -10},
		{"full distribution is the mean", 1.0, -0.25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CVaR(values, tc.alpha); math.Abs(got-tc.want) > 1e-12 {
				t.Errorf("CVaR@%v = %v, want %v", tc.alpha, got, tc.want)
			}
		})
	}
}

func TestCVaRMonotoneInAlpha(t *testing.T) {
	values := []float64{-9, -4, -1, 0, 3, 8}
	prev := math.Inf(-1)
	for _, alpha := range []float64{0.05, 0.1, 0.2, 0.34, 0.5, 0.75, 1.0} {
		got := CVaR(values, alpha)
		if got < prev-1e-12 {
			t.Fatalf("CVaR decreased at alpha %v: %v after %v", alpha, got, prev)
		}
		prev = got
	}
}

func TestCVaRStandardNormal(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	n := 100000
	values := make([]float64, n)
	for i := range values {
		values[i] = rng.NormFloat64()
	}

	// Analytic CVaR@0.05 of a standard normal: -phi(z_0.05)/0.05. The
	// estimate must land within 1% of the closed form at this n.
	want := -2.0627
	if got := CVaR(values, 0.05); math.Abs(got-want) > 0.02 {
		t.Errorf("standard normal CVaR@0.05 = %v, want %v", got, want)
	}
}

func TestCVaRUniform(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	n := 50000
	values := make([]float64, n)
	for i := range values {
		values[i] = rng.Float64() * 10
	}

	// Worst 5% of U(0, 10) averages 0.25, within 5% relative error.
	if got := CVaR(values, 0.05); math.Abs(got-0.25) > 0.0125 {
		t.Errorf("uniform CVaR@0.05 = %v, want 0.25", got)
	}
}

func TestCVaRWeightedMatchesUnweightedOnUniform(t *testing.T) {
	values := []float64{3, -7, 1, 0, -2, 9, -4, 5}
	lw := uniformLogW(len(values))

	got := CVaRWeighted(lw, values, 0.25)
	want := CVaR(values, 0.25)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("uniform-weight CVaR = %v, want %v", got, want)
	}
}

func TestCVaRWeightedTailSelection(t *testing.T) {
	values := []float64{-10, 0}
	lw := []float64{math.Log(0.05), math.Log(0.95)}

	// At alpha 0.05 only the worst particle fits in the tail.
	if got := CVaRWeighted(lw, values, 0.05); math.Abs(got-(-10)) > 1e-9 {
		t.Errorf("CVaR@0.05 = %v, want -10", got)
	}
	// The full distribution recovers the weighted mean.
	if got := CVaRWeighted(lw, values, 1.0); math.Abs(got-(-0.5)) > 1e-9 {
		t.Errorf("CVaR@1.0 = %v, want -0.5", got)
	}
}

func TestCVaRWeightedFallbackOnUnderflow(t *testing.T) {
	values := []float64{-5, 1}
	lw := []float64{-2000, 0}

	if got := CVaRWeighted(lw, values, 0.1); got != -5 {
		t.Errorf("underflowed tail should fall back to the worst value, got %v", got)
	}
}

func TestCVaREmptyInput(t *testing.T) {
	if !math.IsNaN(CVaR(nil, 0.1)) {
		t.Error("CVaR of no samples should be NaN")
	}
	if !math.IsNaN(CVaRWeighted(nil, nil, 0.1)) {
		t.Error("weighted CVaR of no samples should be NaN")
	}
}

func TestEvaluatorBeliefValue(t *testing.T) {
	b := belief.New(2, 1)
	b.Positions[0] = 1
	b.Positions[1] = -1

	e := NewEvaluator(zap.NewNop())
	utility := func(x []float64) float64 { return x[0] }

	e.Alpha = 0.5
	if got := e.BeliefValue(b, utility); math.Abs(got-(-1)) > 1e-9 {
		t.Errorf("tail value = %v, want -1", got)
	}

	e.Alpha = 1.0
	if got := e.BeliefValue(b, utility); math.Abs(got) > 1e-9 {
		t.Errorf("full value = %v, want 0", got)
	}
}

func TestBellmanDeterministicBackup(t *testing.T) {
	b := belief.New(10, 1)
	for i := 0; i < b.N(); i++ {
		b.At(i)[0] = 2
	}

	rb := NewBellman(rand.New(rand.NewPCG(1, 2)))
	got := rb.Backup(b, []float64{-1},
		func(x, u []float64) float64 { return -math.Abs(x[0]) },
		func(x, u []float64) []float64 { return []float64{x[0] + u[0]} },
		func(x []float64) float64 { return -math.Abs(x[0]) },
	)

	// Every sample sees r = -2 and V(next) = -1.
	want := -2 + DefaultGamma*(-1)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("backup = %v, want %v", got, want)
	}
}

func TestBellmanIsRiskAverse(t *testing.T) {
	b := belief.New(100, 1)
	for i := 50; i < 100; i++ {
		b.At(i)[0] = 10
	}

	reward := func(x, u []float64) float64 { return -x[0] }
	transition := func(x, u []float64) []float64 { return x }
	value := func(x []float64) float64 { return 0 }

	tail := NewBellman(rand.New(rand.NewPCG(3, 4)))
	tail.Alpha = 0.1
	mean := NewBellman(rand.New(rand.NewPCG(3, 4)))
	mean.Alpha = 1.0

	tailValue := tail.Backup(b, nil, reward, transition, value)
	meanValue := mean.Backup(b, nil, reward, transition, value)

	if tailValue > -9.99 {
		t.Errorf("tail backup = %v, want -10", tailValue)
	}
	if meanValue < -7 || meanValue > -3 {
		t.Errorf("mean backup = %v, want near -5", meanValue)
	}
	if tailValue >= meanValue {
		t.Errorf("CVaR backup should be below the mean backup: %v vs %v", tailValue, meanValue)
	}
}
