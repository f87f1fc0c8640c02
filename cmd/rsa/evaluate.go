package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/x0rium/robust-semantic-agent/internal/episode"
	"github.com/x0rium/robust-semantic-agent/internal/risk"
	"github.com/x0rium/robust-semantic-agent/internal/sim"
)

// cvarAlphas is the tail-severity sweep reported by evaluate; alpha 1
// recovers the plain mean return.
var cvarAlphas = []float64{0.05, 0.1, 0.25, 0.5, 1.0}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [episode-log]",
	Short: "Summarize an episode log with tail-risk metrics",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
}

// cvarPoint is one point of the return-CVaR curve.
type cvarPoint struct {
	Alpha float64 `json:"alpha"`
	Value float64 `json:"value"`
}

// evalReport is the JSON document evaluate prints.
type evalReport struct {
	Log        string      `json:"log"`
	Stats      sim.Stats   `json:"stats"`
	ReturnCVaR []cvarPoint `json:"return_cvar"`
}

func runEvaluate(cmd *cobra.Command, args []string) error {
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
	if len(records) == 0 {
		return fmt.Errorf("no episodes in %s: run rollout first", path)
	}

	returns := make([]float64, len(records))
	for i, rec := range records {
		returns[i] = rec.Return
	}

	report := evalReport{
		Log:   path,
		Stats: sim.Summarize(records),
	}
	for _, alpha := range cvarAlphas {
		report.ReturnCVaR = append(report.ReturnCVaR, cvarPoint{
			Alpha: alpha,
			Value: risk.CVaR(returns, alpha),
		})
	}

	logger.Info("evaluated episode log",
		zap.String("path", path),
		zap.Int("episodes", report.Stats.Episodes),
		zap.Float64("mean_return", report.Stats.MeanReturn),
		zap.Float64("cvar_10", report.ReturnCVaR[1].Value),
	)

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
