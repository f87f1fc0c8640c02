package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/x0rium/robust-semantic-agent/internal/episode"
	"github.com/x0rium/robust-semantic-agent/internal/semantics"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate [episode-log]",
	Short: "Fit acceptance thresholds to logged claim outcomes",
	Long: `Calibrate replays the scored claims from an episode log against
their settled outcomes and grid-searches the acceptance thresholds
(tau, tau') minimising calibration error. Feed the result back into the
agent.tau and agent.tau_prime config keys.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.EpisodeLog
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no episode log: pass a path or set episode_log in the config")
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	records, err := episode.ReadRecords(path)
	if err != nil {
		return err
	}
	samples := episode.Samples(records)

	result, err := semantics.NewCalibrator(logger).Calibrate(samples)
	if errors.Is(err, semantics.ErrNoSamples) {
		return fmt.Errorf("%s has no scored claims: run rollout with env.beacon_prob > 0", path)
	}
	if err != nil {
		return err
	}

	logger.Info("calibration complete",
		zap.Int("samples", result.Samples),
		zap.Float64("tau", result.Thresholds.Tau),
		zap.Float64("tau_prime", result.Thresholds.TauPrime),
		zap.Float64("ece_before", result.ECEBefore),
		zap.Float64("ece_after", result.ECEAfter),
	)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
