// Package agent wires the decision core together: per step it folds
// the observation and any claims into the belief, decides whether to
// buy a sharper observation, asks the policy for a nominal action and
// forces that action through the safety filter.
package agent

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/x0rium/robust-semantic-agent/internal/belief"
	"github.com/x0rium/robust-semantic-agent/internal/credal"
	"github.com/x0rium/robust-semantic-agent/internal/domain"
	"github.com/x0rium/robust-semantic-agent/internal/query"
	"github.com/x0rium/robust-semantic-agent/internal/risk"
	"github.com/x0rium/robust-semantic-agent/internal/safety"
	"github.com/x0rium/robust-semantic-agent/internal/semantics"
	"github.com/x0rium/robust-semantic-agent/internal/trust"
)

const (
	// trustStrength is the pseudo-count mass behind the initial
	// reliability, so TrustInit 0.7 becomes Beta(7, 3).
	trustStrength = 10.0

	// particleWarnCeiling is where particle counts start costing more
	// than they buy.
	particleWarnCeiling = 100000
)

// Config carries every tunable of the decision core. Zero values are
// not usable; start from DefaultConfig.
type Config struct {
	StateDim          int
	Particles         int
	ResampleThreshold float64
	ObsNoise          float64
	InitSpread        float64
	Jitter            float64

	Thresholds semantics.Thresholds

	TrustInit       float64
	TrustForgetting float64
	TrustFloor      float64

	CredalMembers   int
	CredalPlacement credal.Placement

	RiskAlpha float64

	QueryEnabled     bool
	QueryCost        float64
	DeltaStar        float64
	QuerySamples     int
	QueryNoiseFactor float64

	SafetyEnabled bool
	BarrierAlpha  float64
	SlackPenalty  float64
	SolverBudget  int
	MaxAction     float64

	Goal []float64
}

func DefaultConfig() Config {
	return Config{
		StateDim:          2,
		Particles:         belief.DefaultParticles,
		ResampleThreshold: belief.DefaultResampleThreshold,
		ObsNoise:          belief.DefaultObsNoise,
		InitSpread:        belief.DefaultInitSpread,
		Jitter:            belief.DefaultJitter,
		Thresholds:        semantics.DefaultThresholds(),
		TrustInit:         0.7,
		TrustForgetting:   trust.DefaultForgetting,
		TrustFloor:        trust.DefaultFloor,
		CredalMembers:     credal.DefaultMembers,
		CredalPlacement:   credal.PlacementEven,
		RiskAlpha:         risk.DefaultAlpha,
		QueryEnabled:      true,
		QueryCost:         query.DefaultCost,
		DeltaStar:         query.DefaultDeltaStar,
		QuerySamples:      query.DefaultSamples,
		QueryNoiseFactor:  query.DefaultNoiseFactor,
		SafetyEnabled:     true,
		BarrierAlpha:      safety.DefaultAlpha,
		SlackPenalty:      safety.DefaultSlackPenalty,
		SolverBudget:      safety.DefaultMaxIter,
		MaxAction:         0.15,
		Goal:              []float64{0.8, 0.8},
	}
}

// Validate rejects configurations that cannot run. Suspicious but
// workable values are only warned about.
func (c Config) Validate(logger *zap.Logger) error {
	if c.StateDim < 1 {
		return fmt.Errorf("state dim %d: %w", c.StateDim, domain.ErrInvalidInput)
	}
	if c.Particles < 100 {
		return fmt.Errorf("%d particles is below the working minimum of 100: %w",
			c.Particles, domain.ErrInvalidInput)
	}
	if c.Particles > particleWarnCeiling {
		logger.Warn("very large particle count, steps will be slow",
			zap.Int("particles", c.Particles))
	}
	if c.ResampleThreshold < 0.1 || c.ResampleThreshold > 0.9 {
		return fmt.Errorf("resample threshold %v outside [0.1, 0.9]: %w",
			c.ResampleThreshold, domain.ErrInvalidInput)
	}
	if c.ObsNoise <= 0 {
		return fmt.Errorf("observation noise %v must be positive: %w",
			c.ObsNoise, domain.ErrInvalidInput)
	}
	if c.InitSpread <= 0 || c.Jitter < 0 {
		return fmt.Errorf("invalid belief spread %v or jitter %v: %w",
			c.InitSpread, c.Jitter, domain.ErrInvalidInput)
	}
	if !c.Thresholds.Valid() {
		return fmt.Errorf("thresholds tau %v, tau' %v: %w",
			c.Thresholds.Tau, c.Thresholds.TauPrime, domain.ErrInvalidInput)
	}
	if c.TrustInit <= 0 || c.TrustInit >= 1 {
		return fmt.Errorf("trust init %v outside (0, 1): %w", c.TrustInit, domain.ErrInvalidInput)
	}
	if c.TrustForgetting <= 0 || c.TrustForgetting > 1 {
		return fmt.Errorf("trust forgetting %v outside (0, 1]: %w",
			c.TrustForgetting, domain.ErrInvalidInput)
	}
	if c.TrustFloor <= 0 {
		return fmt.Errorf("trust floor %v must be positive: %w", c.TrustFloor, domain.ErrInvalidInput)
	}
	if c.CredalMembers < 1 {
		return fmt.Errorf("credal members %d: %w", c.CredalMembers, domain.ErrInvalidInput)
	}
	if !credal.ValidPlacement(c.CredalPlacement) {
		return fmt.Errorf("credal placement %q: %w", c.CredalPlacement, domain.ErrInvalidInput)
	}
	if c.RiskAlpha <= 0 || c.RiskAlpha > 1 {
		return fmt.Errorf("risk alpha %v outside (0, 1]: %w", c.RiskAlpha, domain.ErrInvalidInput)
	}
	if c.QueryEnabled {
		if c.QueryCost < 0 {
			return fmt.Errorf("query cost %v must be non-negative: %w",
				c.QueryCost, domain.ErrInvalidInput)
		}
		if c.DeltaStar <= 0 {
			return fmt.Errorf("delta star %v must be positive: %w",
				c.DeltaStar, domain.ErrInvalidInput)
		}
		if c.QuerySamples < 1 {
			return fmt.Errorf("query samples %d: %w", c.QuerySamples, domain.ErrInvalidInput)
		}
		if c.QueryNoiseFactor <= 0 || c.QueryNoiseFactor > 1 {
			return fmt.Errorf("query noise factor %v outside (0, 1]: %w",
				c.QueryNoiseFactor, domain.ErrInvalidInput)
		}
	}
	if c.SafetyEnabled {
		if c.BarrierAlpha <= 0 {
			return fmt.Errorf("barrier alpha %v must be positive: %w",
				c.BarrierAlpha, domain.ErrInvalidInput)
		}
		if c.SolverBudget < 1 {
			return fmt.Errorf("solver budget %d: %w", c.SolverBudget, domain.ErrInvalidInput)
		}
		if c.SlackPenalty < 1 {
			logger.Warn("low slack penalty softens the safety constraint",
				zap.Float64("slack_penalty", c.SlackPenalty))
		}
	}
	if c.MaxAction <= 0 {
		return fmt.Errorf("max action %v must be positive: %w", c.MaxAction, domain.ErrInvalidInput)
	}
	if len(c.Goal) != c.StateDim {
		return fmt.Errorf("goal dim %d, state dim %d: %w",
			len(c.Goal), c.StateDim, domain.ErrInvalidInput)
	}
	return nil
}

// Controller runs the per-step decision cycle. It owns the belief and
// the trust book; the policy, barrier and oracle are supplied. Not
// safe for concurrent use.
type Controller struct {
	cfg    Config
	logger *zap.Logger

	tracker *belief.Tracker
	state   *belief.Belief
	credal  *credal.Manager
	trust   *trust.Book
	risk    *risk.Evaluator
	query   *query.Engine
	filter  *safety.Filter
	policy  domain.Policy
	oracle  domain.Oracle

	timestep int
}

// NewController validates the configuration and assembles the decision
// core. A nil barrier disables the safety filter even when enabled in
// the configuration; a nil oracle disables queries the same way.
func NewController(
	cfg Config,
	pol domain.Policy,
	barrier domain.Barrier,
	oracle domain.Oracle,
	rng *rand.Rand,
	logger *zap.Logger,
) (*Controller, error) {
	if err := cfg.Validate(logger); err != nil {
		return nil, fmt.Errorf("controller config: %w", err)
	}
	if pol == nil {
		return nil, fmt.Errorf("policy is required: %w", domain.ErrInvalidInput)
	}

	tracker := belief.NewTracker(rng, logger)
	tracker.ObsNoise = cfg.ObsNoise
	tracker.ResampleThreshold = cfg.ResampleThreshold
	tracker.Jitter = cfg.Jitter

	book := trust.NewBook(logger)
	book.PriorAlpha = trustStrength * cfg.TrustInit
	book.PriorBeta = trustStrength * (1 - cfg.TrustInit)
	book.Forgetting = cfg.TrustForgetting
	book.Floor = cfg.TrustFloor

	credalMgr := credal.NewManager(logger)
	credalMgr.Members = cfg.CredalMembers
	credalMgr.Placement = cfg.CredalPlacement

	evaluator := risk.NewEvaluator(logger)
	evaluator.Alpha = cfg.RiskAlpha

	engine := query.NewEngine(tracker, rng, logger)
	engine.Samples = cfg.QuerySamples
	engine.Cost = cfg.QueryCost
	engine.DeltaStar = cfg.DeltaStar
	engine.NoiseFactor = cfg.QueryNoiseFactor

	var filter *safety.Filter
	if cfg.SafetyEnabled && barrier != nil {
		filter = safety.NewFilter(barrier, cfg.MaxAction, logger)
		filter.Alpha = cfg.BarrierAlpha
		filter.SlackPenalty = cfg.SlackPenalty
		filter.MaxIter = cfg.SolverBudget
	}

	c := &Controller{
		cfg:     cfg,
		logger:  logger,
		tracker: tracker,
		credal:  credalMgr,
		trust:   book,
		risk:    evaluator,
		query:   engine,
		filter:  filter,
		policy:  pol,
		oracle:  oracle,
	}
	c.Reset()
	return c, nil
}

// Reset starts a fresh episode: the belief is re-scattered and the
// step counter cleared. The trust book survives; sources keep their
// earned reputations across episodes.
func (c *Controller) Reset() {
	c.state = belief.New(c.cfg.Particles, c.cfg.StateDim)
	c.tracker.Scatter(c.state, c.cfg.InitSpread)
	c.credal.Collapse()
	c.timestep = 0
}

// QueryCost is the price the simulator charges when a step queries.
func (c *Controller) QueryCost() float64 {
	return c.query.Cost
}

// RecordClaimOutcome feeds a verified claim outcome back into the
// source's reliability.
func (c *Controller) RecordClaimOutcome(source string, ok bool) {
	c.trust.Update(source, ok)
}

// SourceReliability exposes the current trust in a source.
func (c *Controller) SourceReliability(source string) float64 {
	return c.trust.Reliability(source)
}

// Step runs one full decision cycle. Invalid inputs fail fast before
// any belief mutation. Solver failures and numeric degeneracies are
// recovered within the step and reported through the diagnostics; the
// returned error is reserved for invalid input and context
// cancellation.
func (c *Controller) Step(ctx context.Context, obs []float64, claims []domain.Claim) ([]float64, domain.StepDiagnostics, error) {
	diag := domain.StepDiagnostics{Step: c.timestep}

	if err := c.validateInputs(obs, claims); err != nil {
		return nil, diag, err
	}

	if err := c.tracker.UpdateObservation(c.state, obs); err != nil {
		diag.Degenerate = true
		diag.Failure = domain.FailureDegeneracy
	}

	for _, cl := range claims {
		c.integrateClaim(cl, &diag)
	}

	diag.Resampled = c.tracker.MaybeResample(c.state)

	if c.cfg.QueryEnabled && c.oracle != nil {
		if err := c.maybeQuery(ctx, &diag); err != nil {
			return nil, diag, err
		}
	}

	est := c.estimate()
	diag.CredalActive = est.CredalActive
	if est.CredalActive {
		diag.CredalSize = c.credal.ActiveSet().Size()
	}
	diag.BeliefMean = est.Mean
	diag.ESS = c.state.ESS()
	diag.RiskScore = c.risk.BeliefValue(c.state, c.goalUtility)

	desired := c.policy.Action(est)
	diag.Desired = append([]float64(nil), desired...)

	action := desired
	if c.filter != nil {
		res, ferr := c.filter.Apply(est.Mean, desired)
		diag.FilterActive = res.Modified || res.EmergencyStop
		diag.Slack = res.Slack
		diag.SolverIterations = res.Iterations
		diag.Relaxed = res.Relaxed
		diag.EmergencyStop = res.EmergencyStop
		action = res.Action
		if ferr != nil {
			diag.Failure = domain.FailureSolver
			c.logger.Warn("safety filter failed, emergency stop",
				zap.Int("step", c.timestep),
				zap.Error(ferr),
			)
		}
	}

	for i, v := range action {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			c.logger.Error("non-finite action clamped to zero",
				zap.Int("step", c.timestep),
				zap.Int("component", i),
			)
			action = make([]float64, len(action))
			diag.Failure = domain.FailureSolver
			diag.EmergencyStop = true
			break
		}
	}

	c.credal.Collapse()
	c.timestep++
	return action, diag, nil
}

func (c *Controller) validateInputs(obs []float64, claims []domain.Claim) error {
	if obs == nil {
		return fmt.Errorf("nil observation: %w", domain.ErrInvalidInput)
	}
	if len(obs) != c.cfg.StateDim {
		return fmt.Errorf("observation dim %d, want %d: %w",
			len(obs), c.cfg.StateDim, domain.ErrInvalidInput)
	}
	for _, v := range obs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite observation: %w", domain.ErrInvalidInput)
		}
	}
	for _, cl := range claims {
		if cl.Region == nil {
			return fmt.Errorf("claim %q has no region: %w", cl.Statement, domain.ErrInvalidInput)
		}
		if cl.Scored {
			if !scoreValid(cl.Support) || !scoreValid(cl.Counter) {
				return fmt.Errorf("claim %q scores (%v, %v) outside [0, 1]: %w",
					cl.Statement, cl.Support, cl.Counter, domain.ErrInvalidInput)
			}
		} else if !semantics.ValidTruthValue(string(cl.Status)) {
			return fmt.Errorf("claim %q status %q: %w", cl.Statement, cl.Status, domain.ErrInvalidInput)
		}
	}
	return nil
}

func (c *Controller) integrateClaim(cl domain.Claim, diag *domain.StepDiagnostics) {
	status := cl.Status
	if cl.Scored {
		status = semantics.AssignStatus(cl.Support, cl.Counter, c.cfg.Thresholds)
	}
	lambda := c.trust.Logit(cl.Source)

	switch status {
	case semantics.True, semantics.False:
		applied := cl
		applied.Status = status
		if err := c.tracker.ApplyClaim(c.state, applied, lambda); err != nil {
			diag.Degenerate = true
			diag.Failure = domain.FailureDegeneracy
		}
	case semantics.Both:
		// Contradictions never touch the base belief; they open a
		// credal set spanning both readings of the claim.
		c.credal.Expand(c.state, cl.Region, lambda)
	case semantics.Neither:
	}
	diag.ClaimsSeen++
}

func (c *Controller) maybeQuery(ctx context.Context, diag *domain.StepDiagnostics) error {
	diag.EntropyBefore = c.state.WeightEntropy()

	queryNoise := c.query.QueryNoise(c.cfg.ObsNoise)
	evi, err := c.query.EVI(ctx, c.state, c.beliefValue, queryNoise)
	if err != nil {
		return err
	}
	diag.EVI = evi

	if !c.query.ShouldQuery(evi) {
		return nil
	}

	answer := c.oracle.Observe(queryNoise)
	if err := c.tracker.UpdateObservationNoise(c.state, answer, queryNoise); err != nil {
		diag.Degenerate = true
		diag.Failure = domain.FailureDegeneracy
	}
	diag.Queried = true
	// Entropy is read before any resample; resampling resets weights
	// to uniform and would hide the reduction the query bought.
	diag.EntropyAfter = c.state.WeightEntropy()
	if c.tracker.MaybeResample(c.state) {
		diag.Resampled = true
	}
	return nil
}

func (c *Controller) estimate() domain.StateEstimate {
	if c.credal.Active() {
		return domain.StateEstimate{
			Mean:         c.credal.ActiveSet().Mean(),
			Covariance:   c.state.Covariance(),
			CredalActive: true,
		}
	}
	return domain.StateEstimate{
		Mean:       c.state.Mean(),
		Covariance: c.state.Covariance(),
	}
}

func (c *Controller) beliefValue(b *belief.Belief) float64 {
	return c.risk.BeliefValue(b, c.goalUtility)
}

func (c *Controller) goalUtility(x []float64) float64 {
	sum := 0.0
	for i := range x {
		d := x[i] - c.cfg.Goal[i]
		sum += d * d
	}
	return -math.Sqrt(sum)
}

func scoreValid(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
