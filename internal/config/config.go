// Package config provides Viper-based configuration loading for the combat effect engine.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// Outputs are zap sink URLs or file paths. Empty means stderr.
	Outputs []string `mapstructure:"outputs"`
}

// EngineConfig holds the adaptive dispatch thresholds of the effect manager.
// A collection larger than its threshold is ticked in concurrent batches of
// the matching batch size; otherwise it is ticked sequentially.
type EngineConfig struct {
	DOTParallelThreshold      int `mapstructure:"dot_parallel_threshold"`
	DOTBatchSize              int `mapstructure:"dot_batch_size"`
	ModifierParallelThreshold int `mapstructure:"modifier_parallel_threshold"`
	ModifierBatchSize         int `mapstructure:"modifier_batch_size"`
	PassiveParallelThreshold  int `mapstructure:"passive_parallel_threshold"`
	PassiveBatchSize          int `mapstructure:"passive_batch_size"`
}

// EventBusConfig holds event bus delivery settings.
type EventBusConfig struct {
	// AsyncYield is the pause inserted between subscribers by EmitAsync.
	AsyncYield time.Duration `mapstructure:"async_yield"`
	// BatchQueueHint is the initial capacity of the batched-emission queue.
	BatchQueueHint int `mapstructure:"batch_queue_hint"`
}

// ContentConfig holds paths to data-driven content. Empty paths fall back to
// built-in defaults (or disable the feature, for scripts).
type ContentConfig struct {
	DiminishingReturns string `mapstructure:"diminishing_returns"`
	PassivesDir        string `mapstructure:"passives_dir"`
	DamageTypesDir     string `mapstructure:"damage_types_dir"`
	ScriptsDir         string `mapstructure:"scripts_dir"`
}

// BattleConfig holds settings for the reference battle orchestrator.
type BattleConfig struct {
	// TurnInterval is the pause between turns; 0 runs turns back to back.
	TurnInterval time.Duration `mapstructure:"turn_interval"`
	// MaxTurns bounds the length of a battle.
	MaxTurns int `mapstructure:"max_turns"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Engine   EngineConfig   `mapstructure:"engine"`
	EventBus EventBusConfig `mapstructure:"eventbus"`
	Content  ContentConfig  `mapstructure:"content"`
	Battle   BattleConfig   `mapstructure:"battle"`
}

// DefaultEngineConfig returns the standard dispatch thresholds.
//
// Postcondition: the returned value passes validation.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DOTParallelThreshold:      20,
		DOTBatchSize:              50,
		ModifierParallelThreshold: 15,
		ModifierBatchSize:         30,
		PassiveParallelThreshold:  15,
		PassiveBatchSize:          20,
	}
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateEngine(c.Engine); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateEventBus(c.EventBus); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateBattle(c.Battle); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	for i, out := range l.Outputs {
		if strings.TrimSpace(out) == "" {
			return fmt.Errorf("logging.outputs[%d] must not be blank", i)
		}
	}
	return nil
}

func validateEngine(e EngineConfig) error {
	var errs []string
	pairs := []struct {
		name  string
		value int
		min   int
	}{
		{"engine.dot_parallel_threshold", e.DOTParallelThreshold, 0},
		{"engine.dot_batch_size", e.DOTBatchSize, 1},
		{"engine.modifier_parallel_threshold", e.ModifierParallelThreshold, 0},
		{"engine.modifier_batch_size", e.ModifierBatchSize, 1},
		{"engine.passive_parallel_threshold", e.PassiveParallelThreshold, 0},
		{"engine.passive_batch_size", e.PassiveBatchSize, 1},
	}
	for _, p := range pairs {
		if p.value < p.min {
			errs = append(errs, fmt.Sprintf("%s must be >= %d, got %d", p.name, p.min, p.value))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateEventBus(b EventBusConfig) error {
	var errs []string
	if b.AsyncYield <= 0 {
		errs = append(errs, fmt.Sprintf("eventbus.async_yield must be > 0, got %s", b.AsyncYield))
	}
	if b.BatchQueueHint < 0 {
		errs = append(errs, fmt.Sprintf("eventbus.batch_queue_hint must be >= 0, got %d", b.BatchQueueHint))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateBattle(b BattleConfig) error {
	var errs []string
	if b.TurnInterval < 0 {
		errs = append(errs, "battle.turn_interval must not be negative")
	}
	if b.MaxTurns < 1 {
		errs = append(errs, fmt.Sprintf("battle.max_turns must be >= 1, got %d", b.MaxTurns))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with COMBATFX_ prefix
	v.SetEnvPrefix("COMBATFX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewViper returns a Viper instance preloaded with every default. Useful for
// callers and tests that build configuration without a file.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputs", []string{"stderr"})

	eng := DefaultEngineConfig()
	v.SetDefault("engine.dot_parallel_threshold", eng.DOTParallelThreshold)
	v.SetDefault("engine.dot_batch_size", eng.DOTBatchSize)
	v.SetDefault("engine.modifier_parallel_threshold", eng.ModifierParallelThreshold)
	v.SetDefault("engine.modifier_batch_size", eng.ModifierBatchSize)
	v.SetDefault("engine.passive_parallel_threshold", eng.PassiveParallelThreshold)
	v.SetDefault("engine.passive_batch_size", eng.PassiveBatchSize)

	v.SetDefault("eventbus.async_yield", "2ms")
	v.SetDefault("eventbus.batch_queue_hint", 256)

	v.SetDefault("content.diminishing_returns", "")
	v.SetDefault("content.passives_dir", "")
	v.SetDefault("content.damage_types_dir", "")
	v.SetDefault("content.scripts_dir", "")

	v.SetDefault("battle.turn_interval", "0s")
	v.SetDefault("battle.max_turns", 50)
}
