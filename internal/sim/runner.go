// Package sim drives controller episodes against an environment,
// settles claim outcomes against ground truth and aggregates episode
// logs for offline analysis.
package sim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/x0rium/robust-semantic-agent/internal/agent"
	"github.com/x0rium/robust-semantic-agent/internal/domain"
	"github.com/x0rium/robust-semantic-agent/internal/semantics"
)

const DefaultDiscount = 0.98

// Distinct PCG streams keep the environment and the controller on
// independent random sequences derived from one episode seed.
const (
	streamEnv        = 1
	streamController = 2
)

// Runner executes episodes. The environment emits claims about its
// own state; the runner is the only party that sees ground truth, so
// claim verification and the resulting trust updates live here rather
// than in the controller.
type Runner struct {
	logger *zap.Logger

	Discount float64
}

func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{logger: logger, Discount: DefaultDiscount}
}

// verdict is a settled claim waiting to be fed back into source trust.
// Settlement is delayed by one step so a claim never influences the
// trust weight of its own integration.
type verdict struct {
	source string
	ok     bool
}

// RunEpisode plays one episode to completion. Query costs are charged
// here: the controller reports that it queried, the runner subtracts
// the price from the environment reward.
func (r *Runner) RunEpisode(ctx context.Context, env domain.Environment, ctrl *agent.Controller, id string, seed uint64) (*domain.EpisodeRecord, error) {
	ctrl.Reset()
	obs := env.Reset()

	ep := &domain.EpisodeRecord{ID: id, Seed: seed}
	var claims []domain.Claim
	var pending []verdict
	discount := 1.0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		action, diag, err := ctrl.Step(ctx, obs, claims)
		if err != nil {
			return nil, fmt.Errorf("controller step %d: %w", diag.Step, err)
		}

		for _, v := range pending {
			ctrl.RecordClaimOutcome(v.source, v.ok)
		}
		pending = pending[:0]

		outcome, err := env.Step(action)
		if err != nil {
			return nil, fmt.Errorf("environment step %d: %w", diag.Step, err)
		}

		reward := outcome.Reward
		if diag.Queried {
			reward -= ctrl.QueryCost()
			ep.Queries++
		}
		if diag.FilterActive {
			ep.FilterActivations++
		}
		if diag.EmergencyStop {
			ep.EmergencyStops++
		}
		if outcome.Violated {
			ep.Violations++
		}
		if outcome.GoalReached {
			ep.GoalReached = true
		}

		ep.Steps = append(ep.Steps, domain.StepRecord{
			Step:        diag.Step,
			State:       outcome.State,
			Action:      action,
			Observation: obs,
			Reward:      reward,
			Diagnostics: diag,
		})
		ep.Return += reward
		ep.DiscountedReturn += discount * reward
		discount *= r.Discount

		if outcome.Done {
			break
		}

		pending = r.settleClaims(ep, outcome)
		claims = outcome.Claims
		obs = outcome.Observation
	}

	ep.Length = len(ep.Steps)
	r.logger.Debug("episode finished",
		zap.String("id", ep.ID),
		zap.Int("length", ep.Length),
		zap.Float64("return", ep.Return),
		zap.Bool("goal", ep.GoalReached),
		zap.Int("violations", ep.Violations),
	)
	return ep, nil
}

// settleClaims judges freshly emitted claims against the true state.
// Scored claims become calibration samples; claims with a definite
// status become trust verdicts. Both and Neither assert nothing
// checkable, so they feed neither.
func (r *Runner) settleClaims(ep *domain.EpisodeRecord, outcome domain.StepOutcome) []verdict {
	var pending []verdict
	for _, cl := range outcome.Claims {
		truth := cl.Region(outcome.State)
		switch {
		case cl.Scored:
			ep.ClaimOutcomes = append(ep.ClaimOutcomes, domain.ClaimOutcome{
				Statement: cl.Statement,
				Source:    cl.Source,
				Support:   cl.Support,
				Counter:   cl.Counter,
				Truth:     truth,
			})
		case cl.Status == semantics.True:
			pending = append(pending, verdict{source: cl.Source, ok: truth})
		case cl.Status == semantics.False:
			pending = append(pending, verdict{source: cl.Source, ok: !truth})
		}
	}
	return pending
}

// EnvFactory builds a fresh environment on the given random source.
type EnvFactory func(rng *rand.Rand) domain.Environment

// ControllerFactory builds a fresh controller wired to the episode's
// environment, which supplies the barrier and answers queries.
type ControllerFactory func(env domain.Environment, rng *rand.Rand) (*agent.Controller, error)

// BatchConfig sizes a batch run.
type BatchConfig struct {
	Episodes int
	Workers  int
	BaseSeed uint64
}

// RunBatch plays Episodes independent episodes across Workers
// goroutines. Episode e runs on seed BaseSeed+e, so a batch is
// reproducible regardless of scheduling; results come back sorted by
// seed. The recorder, when present, is written from a single
// goroutine.
func (r *Runner) RunBatch(ctx context.Context, cfg BatchConfig, newEnv EnvFactory, newCtrl ControllerFactory, rec domain.Recorder) ([]domain.EpisodeRecord, error) {
	if cfg.Episodes <= 0 {
		return nil, nil
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > cfg.Episodes {
		workers = cfg.Episodes
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)
	results := make(chan domain.EpisodeRecord)

	g.Go(func() error {
		defer close(jobs)
		for e := 0; e < cfg.Episodes; e++ {
			select {
			case jobs <- e:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for e := range jobs {
				seed := cfg.BaseSeed + uint64(e)
				env := newEnv(rand.New(rand.NewPCG(seed, streamEnv)))
				ctrl, err := newCtrl(env, rand.New(rand.NewPCG(seed, streamController)))
				if err != nil {
					return fmt.Errorf("episode %d controller: %w", e, err)
				}
				ep, err := r.RunEpisode(gctx, env, ctrl, uuid.NewString(), seed)
				if err != nil {
					return fmt.Errorf("episode %d: %w", e, err)
				}
				select {
				case results <- *ep:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// Progress lines are throttled so large batches do not flood the log.
	progress := rate.NewLimiter(rate.Every(time.Second), 1)

	var records []domain.EpisodeRecord
	var recErr error
	for ep := range results {
		if rec != nil && recErr == nil {
			recErr = rec.Record(&ep)
		}
		records = append(records, ep)
		if progress.Allow() {
			r.logger.Info("batch progress",
				zap.Int("done", len(records)),
				zap.Int("total", cfg.Episodes),
			)
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if recErr != nil {
		return nil, fmt.Errorf("record episode: %w", recErr)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Seed < records[j].Seed })
	r.logger.Info("batch finished",
		zap.Int("episodes", len(records)),
		zap.Int("workers", workers),
	)
	return records, nil
}
