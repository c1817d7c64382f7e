package config

import (
	"fmt"
	"os"
	"time"

	"github.com/flagscore/gate/internal/limiter"
	"gopkg.in/yaml.v2"
)

// PresetFile is the YAML document read from RATE_LIMIT_PRESETS_FILE.
//
//	gates:
//	  strict:
//	    window: 30s
//	    max_requests: 10
//	    message: "Trop de requêtes"
//	  search:
//	    window: 1m
//	    max_requests: 120
//	    algorithm: token_bucket
type PresetFile struct {
	Gates map[string]PresetEntry `yaml:"gates"`
}

// PresetEntry is one named gate configuration.
type PresetEntry struct {
	Window      string `yaml:"window"`
	MaxRequests int    `yaml:"max_requests"`
	Message     string `yaml:"message,omitempty"`
	Algorithm   string `yaml:"algorithm,omitempty"`
}

// LoadPresets returns the built-in presets merged with the gates declared in
// path. Entries in the file replace built-ins of the same name. An empty path
// returns the built-ins only.
func LoadPresets(path string) (map[string]limiter.LimitConfig, error) {
	presets := limiter.Presets()
	if path == "" {
		return presets, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets file: %w", err)
	}

	overrides, err := ParsePresets(data)
	if err != nil {
		return nil, fmt.Errorf("parse presets file %s: %w", path, err)
	}

	for name, cfg := range overrides {
		presets[name] = cfg
	}

	return presets, nil
}

// ParsePresets decodes and validates a PresetFile document.
func ParsePresets(data []byte) (map[string]limiter.LimitConfig, error) {
	var file PresetFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, err
	}

	out := make(map[string]limiter.LimitConfig, len(file.Gates))
	for name, entry := range file.Gates {
		if name == "" {
			return nil, fmt.Errorf("gate name must not be empty")
		}

		window, err := time.ParseDuration(entry.Window)
		if err != nil {
			return nil, fmt.Errorf("gate %s: invalid window %q: %w", name, entry.Window, err)
		}

		cfg := limiter.LimitConfig{
			Window:      window,
			MaxRequests: entry.MaxRequests,
			Message:     entry.Message,
			Algorithm:   entry.Algorithm,
		}
		if cfg.Message == "" {
			cfg.Message = limiter.DefaultMessage
		}

		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("gate %s: %w", name, err)
		}

		out[name] = cfg
	}

	return out, nil
}

// MarshalPresets renders presets in the PresetFile format.
func MarshalPresets(presets map[string]limiter.LimitConfig) ([]byte, error) {
	file := PresetFile{Gates: make(map[string]PresetEntry, len(presets))}
	for name, cfg := range presets {
		algorithm := cfg.Algorithm
		if algorithm == "" {
			algorithm = limiter.AlgorithmFixedWindow
		}
		file.Gates[name] = PresetEntry{
			Window:      cfg.Window.String(),
			MaxRequests: cfg.MaxRequests,
			Message:     cfg.Message,
			Algorithm:   algorithm,
		}
	}
	return yaml.Marshal(file)
}
