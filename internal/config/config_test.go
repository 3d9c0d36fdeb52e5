package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: DefaultEngineConfig(),
		EventBus: EventBusConfig{
			AsyncYield:     2 * time.Millisecond,
			BatchQueueHint: 256,
		},
		Battle: BattleConfig{
			TurnInterval: 0,
			MaxTurns:     50,
		},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestDefaultsValidate(t *testing.T) {
	cfg, err := LoadFromViper(NewViper())
	require.NoError(t, err)
	assert.Equal(t, DefaultEngineConfig(), cfg.Engine)
	assert.Equal(t, 2*time.Millisecond, cfg.EventBus.AsyncYield)
	assert.Equal(t, 50, cfg.Battle.MaxTurns)
	assert.Equal(t, []string{"stderr"}, cfg.Logging.Outputs)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	err := os.WriteFile(path, []byte(`
logging:
  level: debug
  format: console
engine:
  dot_parallel_threshold: 5
  dot_batch_size: 10
eventbus:
  async_yield: 5ms
content:
  passives_dir: content/passives
battle:
  turn_interval: 250ms
  max_turns: 12
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Engine.DOTParallelThreshold)
	assert.Equal(t, 10, cfg.Engine.DOTBatchSize)
	// untouched keys keep their defaults
	assert.Equal(t, 15, cfg.Engine.ModifierParallelThreshold)
	assert.Equal(t, 5*time.Millisecond, cfg.EventBus.AsyncYield)
	assert.Equal(t, "content/passives", cfg.Content.PassivesDir)
	assert.Equal(t, 250*time.Millisecond, cfg.Battle.TurnInterval)
	assert.Equal(t, 12, cfg.Battle.MaxTurns)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n  format: json\n"), 0644))
	t.Setenv("COMBATFX_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestValidateLoggingLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		assert.NoError(t, cfg.Validate(), "level %q should be valid", level)
	}
	cfg := validConfig()
	cfg.Logging.Level = "trace"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestValidateBatchSizeZero(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.DOTBatchSize = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Engine.PassiveBatchSize = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateAsyncYield(t *testing.T) {
	cfg := validConfig()
	cfg.EventBus.AsyncYield = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateBlankLogOutput(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Outputs = []string{"stderr", " "}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.outputs[1]")
}

func TestValidateReportsAllViolations(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "trace"
	cfg.Battle.MaxTurns = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
	assert.Contains(t, err.Error(), "battle.max_turns")
}

// Property-based tests

func TestPropertyPositiveBatchSizesAccepted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := validConfig()
		cfg.Engine.DOTBatchSize = rapid.IntRange(1, 1000).Draw(t, "dot_batch")
		cfg.Engine.ModifierBatchSize = rapid.IntRange(1, 1000).Draw(t, "mod_batch")
		cfg.Engine.DOTParallelThreshold = rapid.IntRange(0, 1000).Draw(t, "dot_threshold")
		if err := cfg.Validate(); err != nil {
			t.Fatalf("valid engine config rejected: %v", err)
		}
	})
}

func TestPropertyNegativeThresholdRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := validConfig()
		cfg.Engine.PassiveParallelThreshold = rapid.IntRange(-1000, -1).Draw(t, "threshold")
		if cfg.Validate() == nil {
			t.Fatalf("negative threshold %d accepted", cfg.Engine.PassiveParallelThreshold)
		}
	})
}
