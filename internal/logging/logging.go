package logging

import (
	"fmt"

	"github.com/ppiankov/truthcast/internal/model"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger from the log configuration.
// "console" format uses the development encoder; anything else logs JSON.
func New(cfg model.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "ts"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = level
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named("truthcast"), nil
}

// Must is New for command setup, falling back to a production logger on error
func Must(cfg model.LogConfig) *zap.Logger {
	logger, err := New(cfg)
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Warn("invalid log configuration, using defaults", zap.Error(err))
		return fallback
	}
	return logger
}
