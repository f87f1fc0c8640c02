// Package credal represents contradictory evidence as a small set of
// candidate posteriors instead of a single one. A claim with status
// both cannot be folded into one weight vector without pretending to
// know which side is right; the credal set keeps one member per
// hypothetical reliability logit and decisions take the worst case
// over members.
package credal

import (
	"math"

	"go.uber.org/zap"

	"github.com/x0rium/robust-semantic-agent/internal/belief"
	"github.com/x0rium/robust-semantic-agent/internal/domain"
)

const DefaultMembers = 5

// Placement chooses where member logits sit in [-lambda, +lambda].
type Placement string

const (
	// PlacementEven spreads members evenly across the interval.
	PlacementEven Placement = "even"

	// PlacementExtremal keeps only the two endpoint members. The set
	// is coarser but its lower expectations are the same for
	// monotone-in-logit payoffs, at a fraction of the memory.
	PlacementExtremal Placement = "extremal"
)

func ValidPlacement(p Placement) bool {
	switch p {
	case PlacementEven, PlacementExtremal:
		return true
	}
	return false
}

// logits returns the member reliability logits for a contradiction of
// magnitude lambda.
func (p Placement) logits(lambda float64, members int) []float64 {
	if members <= 1 {
		return []float64{0}
	}
	if p == PlacementExtremal {
		return []float64{-lambda, lambda}
	}
	out := make([]float64, members)
	for k := 0; k < members; k++ {
		out[k] = -lambda + 2*lambda*float64(k)/float64(members-1)
	}
	return out
}

// Member is one candidate posterior: the shared particle positions
// reweighted as if the contradictory claim had the given logit.
type Member struct {
	Logit float64
	LogW  []float64
}

// Set is a finite credal set over a shared particle cloud.
type Set struct {
	Positions []float64
	Dim       int
	Members   []Member
}

func (s *Set) N() int {
	if s.Dim == 0 {
		return 0
	}
	return len(s.Positions) / s.Dim
}

func (s *Set) Size() int {
	return len(s.Members)
}

func (s *Set) at(i int) []float64 {
	return s.Positions[i*s.Dim : (i+1)*s.Dim]
}

func (s *Set) memberExpectation(m *Member, f func(x []float64) float64) float64 {
	w := belief.LinearWeights(m.LogW)
	sum := 0.0
	for i, wi := range w {
		sum += wi * f(s.at(i))
	}
	return sum
}

// LowerExpectation is the minimum of E[f] over members: the value a
// worst-case planner can actually count on.
func (s *Set) LowerExpectation(f func(x []float64) float64) float64 {
	low := math.Inf(1)
	for i := range s.Members {
		if e := s.memberExpectation(&s.Members[i], f); e < low {
			low = e
		}
	}
	if math.IsInf(low, 1) {
		return 0
	}
	return low
}

// UpperExpectation is the maximum of E[f] over members.
func (s *Set) UpperExpectation(f func(x []float64) float64) float64 {
	high := math.Inf(-1)
	for i := range s.Members {
		if e := s.memberExpectation(&s.Members[i], f); e > high {
			high = e
		}
	}
	if math.IsInf(high, -1) {
		return 0
	}
	return high
}

// Mean is the conservative state estimate: the per-dimension lower
// expectation of the coordinate.
func (s *Set) Mean() []float64 {
	mean := make([]float64, s.Dim)
	for d := 0; d < s.Dim; d++ {
		dd := d
		mean[d] = s.LowerExpectation(func(x []float64) float64 { return x[dd] })
	}
	return mean
}

// UpperVariance is the per-dimension worst-case variance over members.
func (s *Set) UpperVariance() []float64 {
	out := make([]float64, s.Dim)
	for i := range s.Members {
		m := &s.Members[i]
		w := belief.LinearWeights(m.LogW)
		for d := 0; d < s.Dim; d++ {
			mean := 0.0
			for j, wj := range w {
				mean += wj * s.at(j)[d]
			}
			v := 0.0
			for j, wj := range w {
				diff := s.at(j)[d] - mean
				v += wj * diff * diff
			}
			if v > out[d] {
				out[d] = v
			}
		}
	}
	return out
}

// Manager owns the active credal set for a controller and reuses its
// buffers across expansions to avoid per-contradiction allocation.
type Manager struct {
	logger *zap.Logger

	Members   int
	Placement Placement

	active *Set

	posBuf  []float64
	logwBuf [][]float64
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger:    logger,
		Members:   DefaultMembers,
		Placement: PlacementEven,
	}
}

// Expand builds a credal set from the base belief and a contradictory
// claim region, replacing any previously active set. The magnitude of
// lambda comes from the source's reliability logit.
func (m *Manager) Expand(b *belief.Belief, region domain.RegionFunc, lambda float64) *Set {
	logits := m.Placement.logits(lambda, m.Members)
	n := b.N()

	if cap(m.posBuf) < len(b.Positions) {
		m.posBuf = make([]float64, len(b.Positions))
	}
	pos := m.posBuf[:len(b.Positions)]
	copy(pos, b.Positions)

	if len(m.logwBuf) < len(logits) {
		m.logwBuf = append(m.logwBuf, make([][]float64, len(logits)-len(m.logwBuf))...)
	}

	members := make([]Member, len(logits))
	for k, logit := range logits {
		if cap(m.logwBuf[k]) < n {
			m.logwBuf[k] = make([]float64, n)
		}
		lw := m.logwBuf[k][:n]
		copy(lw, b.LogW)
		for i := 0; i < n; i++ {
			if region(b.At(i)) {
				lw[i] += logit
			} else {
				lw[i] -= logit
			}
		}
		belief.NormalizeLogWeights(lw)
		members[k] = Member{Logit: logit, LogW: lw}
	}

	m.active = &Set{Positions: pos, Dim: b.Dim, Members: members}
	m.logger.Debug("credal set expanded",
		zap.Int("members", len(members)),
		zap.Float64("lambda", lambda),
		zap.String("placement", string(m.Placement)),
	)
	return m.active
}

// Active reports whether a contradiction is currently unresolved.
func (m *Manager) Active() bool {
	return m.active != nil
}

// ActiveSet returns the current set, or nil.
func (m *Manager) ActiveSet() *Set {
	return m.active
}

// Collapse drops the active set. Called once the step that raised the
// contradiction has been acted on.
func (m *Manager) Collapse() {
	m.active = nil
}
