package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/x0rium/robust-semantic-agent/internal/config"
)

var (
	flagConfig   string
	flagLogLevel string

	rootCmd = &cobra.Command{
		Use:   "rsa",
		Short: "Robust semantic agent experiment runner",
		Long: `rsa drives a risk-aware agent through the forbidden-circle world:
a particle filter tracks the hidden state, claims from unreliable
sources are folded in under four-valued semantics, information can be
bought through queries and every action passes a control barrier
safety filter. Episodes are logged as JSON Lines for evaluation and
threshold calibration.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override the log level (debug, info, warn, error)")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return config.Config{}, err
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
