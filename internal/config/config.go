// Package config loads the experiment configuration: compiled-in
// defaults, overlaid by an optional YAML file, overlaid by environment
// variables. The env file named by RSA_ENV (default .env) is loaded
// first so containerised runs can ship overrides next to the binary.
package config

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/x0rium/robust-semantic-agent/internal/agent"
	"github.com/x0rium/robust-semantic-agent/internal/credal"
	"github.com/x0rium/robust-semantic-agent/internal/env"
	"github.com/x0rium/robust-semantic-agent/internal/semantics"
	"github.com/x0rium/robust-semantic-agent/internal/sim"
)

var validate = validator.New()

// Config is the full experiment configuration.
type Config struct {
	Seed     uint64  `yaml:"seed"`
	Episodes int     `yaml:"episodes" validate:"gte=1"`
	Workers  int     `yaml:"workers" validate:"gte=1"`
	Discount float64 `yaml:"discount" validate:"gt=0,lte=1"`

	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`
	EpisodeLog  string `yaml:"episode_log"`
	Development bool   `yaml:"development"`

	// Goal is shared by the environment and the goal-seeking policy.
	Goal []float64 `yaml:"goal" validate:"min=1"`

	Agent AgentConfig `yaml:"agent"`
	Env   EnvConfig   `yaml:"env"`
}

// AgentConfig mirrors the controller tunables.
type AgentConfig struct {
	StateDim          int     `yaml:"state_dim" validate:"gte=1"`
	Particles         int     `yaml:"particles" validate:"gte=100"`
	ResampleThreshold float64 `yaml:"resample_threshold" validate:"gte=0.1,lte=0.9"`
	ObsNoise          float64 `yaml:"obs_noise" validate:"gt=0"`
	InitSpread        float64 `yaml:"init_spread" validate:"gt=0"`
	Jitter            float64 `yaml:"jitter" validate:"gte=0"`

	Tau      float64 `yaml:"tau" validate:"gt=0.5,lt=1"`
	TauPrime float64 `yaml:"tau_prime" validate:"gt=0,lt=0.5"`

	TrustInit       float64 `yaml:"trust_init" validate:"gt=0,lt=1"`
	TrustForgetting float64 `yaml:"trust_forgetting" validate:"gt=0,lte=1"`
	TrustFloor      float64 `yaml:"trust_floor" validate:"gt=0"`

	CredalMembers   int    `yaml:"credal_members" validate:"gte=1"`
	CredalPlacement string `yaml:"credal_placement" validate:"oneof=even extremal"`

	RiskAlpha float64 `yaml:"risk_alpha" validate:"gt=0,lte=1"`

	QueryEnabled     bool    `yaml:"query_enabled"`
	QueryCost        float64 `yaml:"query_cost" validate:"gte=0"`
	DeltaStar        float64 `yaml:"delta_star" validate:"gt=0"`
	QuerySamples     int     `yaml:"query_samples" validate:"gte=1"`
	QueryNoiseFactor float64 `yaml:"query_noise_factor" validate:"gt=0,lte=1"`

	SafetyEnabled bool    `yaml:"safety_enabled"`
	BarrierAlpha  float64 `yaml:"barrier_alpha" validate:"gt=0"`
	SlackPenalty  float64 `yaml:"slack_penalty" validate:"gt=0"`
	SolverBudget  int     `yaml:"solver_budget" validate:"gte=1"`
	MaxAction     float64 `yaml:"max_action" validate:"gt=0"`
}

// EnvConfig mirrors the environment tunables. The environment observes
// with the same noise the agent models, and its actuation limit is the
// agent's MaxAction.
type EnvConfig struct {
	ObstacleRadius float64 `yaml:"obstacle_radius" validate:"gt=0"`
	GoalRadius     float64 `yaml:"goal_radius" validate:"gt=0"`
	Dt             float64 `yaml:"dt" validate:"gt=0"`
	Horizon        int     `yaml:"horizon" validate:"gte=1"`
	SafetyMargin   float64 `yaml:"safety_margin" validate:"gte=0"`
	GossipProb     float64 `yaml:"gossip_prob" validate:"gte=0,lte=1"`
	BeaconProb     float64 `yaml:"beacon_prob" validate:"gte=0,lte=1"`
}

// Default returns the canonical configuration.
func Default() Config {
	ac := agent.DefaultConfig()
	return Config{
		Seed:     42,
		Episodes: 100,
		Workers:  4,
		Discount: sim.DefaultDiscount,
		LogLevel: "info",
		Goal:     ac.Goal,
		Agent: AgentConfig{
			StateDim:          ac.StateDim,
			Particles:         ac.Particles,
			ResampleThreshold: ac.ResampleThreshold,
			ObsNoise:          ac.ObsNoise,
			InitSpread:        ac.InitSpread,
			Jitter:            ac.Jitter,
			Tau:               ac.Thresholds.Tau,
			TauPrime:          ac.Thresholds.TauPrime,
			TrustInit:         ac.TrustInit,
			TrustForgetting:   ac.TrustForgetting,
			TrustFloor:        ac.TrustFloor,
			CredalMembers:     ac.CredalMembers,
			CredalPlacement:   string(ac.CredalPlacement),
			RiskAlpha:         ac.RiskAlpha,
			QueryEnabled:      ac.QueryEnabled,
			QueryCost:         ac.QueryCost,
			DeltaStar:         ac.DeltaStar,
			QuerySamples:      ac.QuerySamples,
			QueryNoiseFactor:  ac.QueryNoiseFactor,
			SafetyEnabled:     ac.SafetyEnabled,
			BarrierAlpha:      ac.BarrierAlpha,
			SlackPenalty:      ac.SlackPenalty,
			SolverBudget:      ac.SolverBudget,
			MaxAction:         ac.MaxAction,
		},
		Env: EnvConfig{
			ObstacleRadius: env.DefaultObstacleRadius,
			GoalRadius:     env.DefaultGoalRadius,
			Dt:             env.DefaultDt,
			Horizon:        env.DefaultHorizon,
			SafetyMargin:   env.DefaultSafetyMargin,
			GossipProb:     env.DefaultGossipProb,
			BeaconProb:     env.DefaultBeaconProb,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path
// (skipped when empty) and environment overrides, then validates it.
func Load(path string) (Config, error) {
	envFile := os.Getenv("RSA_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides the operational knobs that change between runs
// without touching the experiment definition.
func applyEnv(cfg *Config) {
	if v, err := strconv.ParseUint(os.Getenv("RSA_SEED"), 10, 64); err == nil {
		cfg.Seed = v
	}
	if v, err := strconv.Atoi(os.Getenv("RSA_EPISODES")); err == nil && v > 0 {
		cfg.Episodes = v
	}
	if v, err := strconv.Atoi(os.Getenv("RSA_WORKERS")); err == nil && v > 0 {
		cfg.Workers = v
	}
	if v := os.Getenv("RSA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RSA_EPISODE_LOG"); v != "" {
		cfg.EpisodeLog = v
	}
}

// Validate checks field constraints and cross-field consistency.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if len(c.Goal) != c.Agent.StateDim {
		return fmt.Errorf("config validation: goal has %d components, state dim is %d",
			len(c.Goal), c.Agent.StateDim)
	}
	return nil
}

// AgentConfig converts to the controller's own configuration type.
func (c Config) AgentConfig() agent.Config {
	a := c.Agent
	return agent.Config{
		StateDim:          a.StateDim,
		Particles:         a.Particles,
		ResampleThreshold: a.ResampleThreshold,
		ObsNoise:          a.ObsNoise,
		InitSpread:        a.InitSpread,
		Jitter:            a.Jitter,
		Thresholds:        semantics.Thresholds{Tau: a.Tau, TauPrime: a.TauPrime},
		TrustInit:         a.TrustInit,
		TrustForgetting:   a.TrustForgetting,
		TrustFloor:        a.TrustFloor,
		CredalMembers:     a.CredalMembers,
		CredalPlacement:   credal.Placement(a.CredalPlacement),
		RiskAlpha:         a.RiskAlpha,
		QueryEnabled:      a.QueryEnabled,
		QueryCost:         a.QueryCost,
		DeltaStar:         a.DeltaStar,
		QuerySamples:      a.QuerySamples,
		QueryNoiseFactor:  a.QueryNoiseFactor,
		SafetyEnabled:     a.SafetyEnabled,
		BarrierAlpha:      a.BarrierAlpha,
		SlackPenalty:      a.SlackPenalty,
		SolverBudget:      a.SolverBudget,
		MaxAction:         a.MaxAction,
		Goal:              append([]float64(nil), c.Goal...),
	}
}

// NewEnvironment builds the forbidden-circle world on this
// configuration.
func (c Config) NewEnvironment(rng *rand.Rand, logger *zap.Logger) *env.ForbiddenCircle {
	world := env.NewForbiddenCircle(rng, logger)
	world.ObstacleRadius = c.Env.ObstacleRadius
	world.Goal = append([]float64(nil), c.Goal...)
	world.GoalRadius = c.Env.GoalRadius
	world.ObsNoise = c.Agent.ObsNoise
	world.MaxAction = c.Agent.MaxAction
	world.Dt = c.Env.Dt
	world.Horizon = c.Env.Horizon
	world.SafetyMargin = c.Env.SafetyMargin
	world.GossipProb = c.Env.GossipProb
	world.BeaconProb = c.Env.BeaconProb
	return world
}
