package limiter

import (
	"sort"
	"time"
)

// Preset names
const (
	PresetStrict   = "strict"
	PresetStandard = "standard"
	PresetLenient  = "lenient"
	PresetTest     = "test"
)

// DefaultMessage is returned to clients rejected by the built-in presets.
const DefaultMessage = "Trop de requêtes, veuillez réessayer plus tard"

// TestMessage is returned to clients rejected by the test preset.
const TestMessage = "Rate limit atteint pour le test"

var presets = map[string]LimitConfig{
	PresetStrict: {
		Window:      time.Minute,
		MaxRequests: 5,
		Message:     DefaultMessage,
	},
	PresetStandard: {
		Window:      time.Minute,
		MaxRequests: 60,
		Message:     DefaultMessage,
	},
	PresetLenient: {
		Window:      time.Minute,
		MaxRequests: 300,
		Message:     DefaultMessage,
	},
	PresetTest: {
		Window:      10 * time.Second,
		MaxRequests: 3,
		Message:     TestMessage,
	},
}

// Presets returns a copy of the built-in named configurations.
func Presets() map[string]LimitConfig {
	out := make(map[string]LimitConfig, len(presets))
	for name, cfg := range presets {
		out[name] = cfg
	}
	return out
}

// Preset returns the built-in configuration registered under name.
func Preset(name string) (LimitConfig, bool) {
	cfg, ok := presets[name]
	return cfg, ok
}

// PresetNames returns the names of the given configurations in sorted order.
func PresetNames(configs map[string]LimitConfig) []string {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
