package config

import (
	"fmt"

	"go.uber.org/zap"
)

// InitLogger builds a zap logger. Format "json" yields the production
// encoder; anything else yields the human-readable development encoder.
func InitLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl

	return cfg.Build()
}
