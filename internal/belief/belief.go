package belief

import (
	"math"
	"sort"
)

// Belief is a particle-filter posterior over the hidden state:
// particle positions stored flat (n*dim, row per particle) with
// log-space weights kept normalised by log-sum-exp.
type Belief struct {
	Positions []float64
	LogW      []float64
	Dim       int
}

// New returns a belief with n particles at the origin and uniform
// weights. Scatter the particles before first use.
func New(n, dim int) *Belief {
	b := &Belief{
		Positions: make([]float64, n*dim),
		LogW:      make([]float64, n),
		Dim:       dim,
	}
	logUniform := -math.Log(float64(n))
	for i := range b.LogW {
		b.LogW[i] = logUniform
	}
	return b
}

func (b *Belief) N() int {
	return len(b.LogW)
}

// At returns the i-th particle position as a subslice of the backing
// array. Callers must not retain it across mutations.
func (b *Belief) At(i int) []float64 {
	return b.Positions[i*b.Dim : (i+1)*b.Dim]
}

func (b *Belief) Clone() *Belief {
	c := &Belief{
		Positions: make([]float64, len(b.Positions)),
		LogW:      make([]float64, len(b.LogW)),
		Dim:       b.Dim,
	}
	copy(c.Positions, b.Positions)
	copy(c.LogW, b.LogW)
	return c
}

// Weights materialises normalised linear weights from the log weights.
func (b *Belief) Weights() []float64 {
	return LinearWeights(b.LogW)
}

// Cumulative returns the running sum of normalised weights, for
// inverse-CDF sampling.
func (b *Belief) Cumulative() []float64 {
	w := b.Weights()
	sum := 0.0
	for i, v := range w {
		sum += v
		w[i] = sum
	}
	return w
}

// SampleIndex maps a uniform draw in [0, 1) to a particle index using
// a cumulative weight array.
func SampleIndex(cum []float64, u float64) int {
	idx := sort.SearchFloat64s(cum, u)
	if idx >= len(cum) {
		idx = len(cum) - 1
	}
	return idx
}

// ESS is the effective sample size 1 / sum(w_i^2), between 1 and N.
func (b *Belief) ESS() float64 {
	w := b.Weights()
	sum := 0.0
	for _, v := range w {
		sum += v * v
	}
	if sum == 0 {
		return 0
	}
	return 1.0 / sum
}

// Mean is the weighted particle mean.
func (b *Belief) Mean() []float64 {
	w := b.Weights()
	mean := make([]float64, b.Dim)
	for i, wi := range w {
		row := b.At(i)
		for d := 0; d < b.Dim; d++ {
			mean[d] += wi * row[d]
		}
	}
	return mean
}

// Covariance is the weighted particle covariance matrix.
func (b *Belief) Covariance() [][]float64 {
	w := b.Weights()
	mean := b.Mean()

	cov := make([][]float64, b.Dim)
	for d := range cov {
		cov[d] = make([]float64, b.Dim)
	}

	diff := make([]float64, b.Dim)
	for i, wi := range w {
		row := b.At(i)
		for d := 0; d < b.Dim; d++ {
			diff[d] = row[d] - mean[d]
		}
		for r := 0; r < b.Dim; r++ {
			for c := 0; c < b.Dim; c++ {
				cov[r][c] += wi * diff[r] * diff[c]
			}
		}
	}
	return cov
}

// WeightEntropy is the Shannon entropy of the weight distribution in
// nats. It is maximal (log N) right after a resample and shrinks as
// evidence concentrates the posterior.
func (b *Belief) WeightEntropy() float64 {
	w := b.Weights()
	h := 0.0
	for _, v := range w {
		if v > 1e-12 {
			h -= v * math.Log(v)
		}
	}
	return h
}

// Expectation is the weighted mean of f over particles.
func (b *Belief) Expectation(f func(x []float64) float64) float64 {
	w := b.Weights()
	sum := 0.0
	for i, wi := range w {
		sum += wi * f(b.At(i))
	}
	return sum
}

// LinearWeights exponentiates and normalises a log-weight vector,
// falling back to uniform when every entry is degenerate.
func LinearWeights(logW []float64) []float64 {
	w := make([]float64, len(logW))
	maxLog := math.Inf(-1)
	for _, lw := range logW {
		if lw > maxLog {
			maxLog = lw
		}
	}
	if math.IsInf(maxLog, -1) || math.IsNaN(maxLog) {
		uniform := 1.0 / float64(len(logW))
		for i := range w {
			w[i] = uniform
		}
		return w
	}

	sum := 0.0
	for i, lw := range logW {
		w[i] = math.Exp(lw - maxLog)
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// NormalizeLogWeights rescales log weights so they sum to one in
// linear space. Reports false when the distribution has collapsed
// (all weights underflowed or went non-finite), in which case the
// weights are reset to uniform.
func NormalizeLogWeights(logW []float64) bool {
	maxLog := math.Inf(-1)
	for _, lw := range logW {
		if math.IsNaN(lw) {
			maxLog = math.NaN()
			break
		}
		if lw > maxLog {
			maxLog = lw
		}
	}

	if math.IsNaN(maxLog) || math.IsInf(maxLog, -1) {
		logUniform := -math.Log(float64(len(logW)))
		for i := range logW {
			logW[i] = logUniform
		}
		return false
	}

	sum := 0.0
	for _, lw := range logW {
		sum += math.Exp(lw - maxLog)
	}
	logSum := maxLog + math.Log(sum)
	for i := range logW {
		logW[i] -= logSum
	}
	return true
}
