// Package observability builds the structured logger shared by the effect
// engine, the event bus and the battle driver.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/combatfx/internal/config"
)

// RootName is the name every logger built by NewLogger starts from.
const RootName = "combatfx"

// NewLogger creates a structured logger from the given logging configuration.
// Sampling is disabled: a battle repeats the same tick messages many times
// per second and each one carries different effect ids.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig, opts ...zap.Option) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         cfg.Format,
		OutputPaths:      outputs(cfg.Outputs),
		ErrorOutputPaths: []string{"stderr"},
	}
	switch cfg.Format {
	case "json":
		zapCfg.EncoderConfig = zap.NewProductionEncoderConfig()
	case "console":
		zapCfg.Development = true
		zapCfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	logger, err := zapCfg.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger.Named(RootName), nil
}

func outputs(paths []string) []string {
	if len(paths) == 0 {
		return []string{"stderr"}
	}
	return append([]string(nil), paths...)
}

// OrNop returns logger, or a no-op logger when logger is nil.
//
// Postcondition: Returns a non-nil logger.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// Component returns logger named for one engine component, tolerating nil.
func Component(logger *zap.Logger, name string) *zap.Logger {
	return OrNop(logger).Named(name)
}
