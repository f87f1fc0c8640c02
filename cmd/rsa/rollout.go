package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/x0rium/robust-semantic-agent/internal/agent"
	"github.com/x0rium/robust-semantic-agent/internal/domain"
	"github.com/x0rium/robust-semantic-agent/internal/episode"
	"github.com/x0rium/robust-semantic-agent/internal/policy"
	"github.com/x0rium/robust-semantic-agent/internal/sim"
)

var (
	flagEpisodes int
	flagWorkers  int
	flagSeed     uint64
	flagOut      string
	flagHostile  bool
	flagQueries  bool

	rolloutCmd = &cobra.Command{
		Use:   "rollout",
		Short: "Run a batch of episodes and log them",
		RunE:  runRollout,
	}
)

func init() {
	rolloutCmd.Flags().IntVar(&flagEpisodes, "episodes", 0, "episode count (default from config)")
	rolloutCmd.Flags().IntVar(&flagWorkers, "workers", 0, "parallel workers (default from config)")
	rolloutCmd.Flags().Uint64Var(&flagSeed, "seed", 0, "base seed (default from config)")
	rolloutCmd.Flags().StringVar(&flagOut, "out", "", "episode log path (default from config)")
	rolloutCmd.Flags().BoolVar(&flagHostile, "hostile", false, "drive the nominal policy straight at the obstacle")
	rolloutCmd.Flags().BoolVar(&flagQueries, "queries", true, "allow oracle queries (overrides config)")
	rootCmd.AddCommand(rolloutCmd)
}

func runRollout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagEpisodes > 0 {
		cfg.Episodes = flagEpisodes
	}
	if flagWorkers > 0 {
		cfg.Workers = flagWorkers
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = flagSeed
	}
	if flagOut != "" {
		cfg.EpisodeLog = flagOut
	}
	if cmd.Flags().Changed("queries") {
		cfg.Agent.QueryEnabled = flagQueries
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var writer *episode.Writer
	var rec domain.Recorder
	if cfg.EpisodeLog != "" {
		writer, err = episode.NewWriter(cfg.EpisodeLog, logger)
		if err != nil {
			return err
		}
		rec = writer
	}

	newEnv := func(rng *rand.Rand) domain.Environment {
		return cfg.NewEnvironment(rng, logger)
	}
	newCtrl := func(world domain.Environment, rng *rand.Rand) (*agent.Controller, error) {
		var pol domain.Policy
		if flagHostile {
			pol = policy.NewHostile([]float64{0, 0})
		} else {
			pol = policy.NewGoalSeeker(cfg.Goal)
		}
		return agent.NewController(cfg.AgentConfig(), pol, world.Barrier(), world, rng, logger)
	}

	runner := sim.NewRunner(logger)
	runner.Discount = cfg.Discount

	logger.Info("rollout starting",
		zap.Int("episodes", cfg.Episodes),
		zap.Int("workers", cfg.Workers),
		zap.Uint64("seed", cfg.Seed),
		zap.Bool("hostile", flagHostile),
	)
	records, runErr := runner.RunBatch(ctx,
		sim.BatchConfig{Episodes: cfg.Episodes, Workers: cfg.Workers, BaseSeed: cfg.Seed},
		newEnv, newCtrl, rec)
	if writer != nil {
		if cerr := writer.Close(); cerr != nil && runErr == nil {
			runErr = cerr
		}
	}
	if runErr != nil {
		return runErr
	}

	stats := sim.Summarize(records)
	logger.Info("rollout complete",
		zap.Int("episodes", stats.Episodes),
		zap.Float64("mean_return", stats.MeanReturn),
		zap.Float64("goal_rate", stats.GoalRate),
		zap.Int("violations", stats.Violations),
		zap.Float64("filter_active_rate", stats.FilterActiveRate),
	)

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
