// Package trust keeps per-source reliability as Beta pseudo-counts.
// Claim integration scales with the source's reliability logit, so a
// source that keeps lying loses its ability to move the belief.
package trust

import (
	"math"
	"sort"

	"go.uber.org/zap"
)

const (
	DefaultPriorAlpha = 7.0
	DefaultPriorBeta  = 3.0

	// DefaultForgetting of 1 keeps the original pure-count behaviour.
	// Values below 1 discount old evidence geometrically so sources
	// can rehabilitate or be re-burned.
	DefaultForgetting = 1.0

	// DefaultFloor bounds each pseudo-count away from zero so a long
	// streak cannot freeze the posterior.
	DefaultFloor = 0.5
)

// logitClip keeps reliabilities away from 0 and 1 so the logit stays
// finite.
const logitClip = 1e-6

type counts struct {
	alpha float64
	beta  float64
}

// Book tracks reliability per source name. It is not safe for
// concurrent use; each controller owns its own book.
type Book struct {
	logger *zap.Logger

	PriorAlpha float64
	PriorBeta  float64
	Forgetting float64
	Floor      float64

	sources map[string]*counts
}

func NewBook(logger *zap.Logger) *Book {
	return &Book{
		logger:     logger,
		PriorAlpha: DefaultPriorAlpha,
		PriorBeta:  DefaultPriorBeta,
		Forgetting: DefaultForgetting,
		Floor:      DefaultFloor,
		sources:    make(map[string]*counts),
	}
}

func (bk *Book) get(name string) *counts {
	c, ok := bk.sources[name]
	if !ok {
		c = &counts{alpha: bk.PriorAlpha, beta: bk.PriorBeta}
		bk.sources[name] = c
	}
	return c
}

// Reliability returns the posterior mean alpha / (alpha + beta).
func (bk *Book) Reliability(name string) float64 {
	c := bk.get(name)
	return c.alpha / (c.alpha + c.beta)
}

// Logit returns the clipped log-odds of the source's reliability. This
// is the weight a claim from the source carries in the belief update.
func (bk *Book) Logit(name string) float64 {
	return Logit(bk.Reliability(name))
}

// Update records one verified outcome for the source.
func (bk *Book) Update(name string, ok bool) {
	bk.UpdateWeighted(name, ok, 1.0)
}

// UpdateWeighted records an outcome with a fractional evidence weight.
// Forgetting is applied first, then the outcome count, then the floor.
func (bk *Book) UpdateWeighted(name string, ok bool, weight float64) {
	c := bk.get(name)
	c.alpha *= bk.Forgetting
	c.beta *= bk.Forgetting
	if ok {
		c.alpha += weight
	} else {
		c.beta += weight
	}
	c.alpha = math.Max(c.alpha, bk.Floor)
	c.beta = math.Max(c.beta, bk.Floor)

	bk.logger.Debug("source trust updated",
		zap.String("source", name),
		zap.Bool("ok", ok),
		zap.Float64("reliability", c.alpha/(c.alpha+c.beta)),
	)
}

// Counts exposes the raw pseudo-counts, mainly for reporting.
func (bk *Book) Counts(name string) (alpha, beta float64) {
	c := bk.get(name)
	return c.alpha, c.beta
}

// Sources lists known source names in sorted order.
func (bk *Book) Sources() []string {
	names := make([]string, 0, len(bk.sources))
	for name := range bk.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Logit is the clipped log-odds transform used for claim weighting.
func Logit(r float64) float64 {
	if r < logitClip {
		r = logitClip
	}
	if r > 1-logitClip {
		r = 1 - logitClip
	}
	return math.Log(r / (1 - r))
}
