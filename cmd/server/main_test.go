package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/flagscore/gate/internal/config"
	"github.com/flagscore/gate/internal/limiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetsCommand_PrintsBuiltins(t *testing.T) {
	t.Setenv("RATE_LIMIT_PRESETS_FILE", "")

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"presets", "--dotenv=false"})

	require.NoError(t, root.Execute())

	parsed, err := config.ParsePresets(out.Bytes())
	require.NoError(t, err)
	assert.Len(t, parsed, len(limiter.Presets()))
	assert.Equal(t, limiter.TestMessage, parsed[limiter.PresetTest].Message)
}

func TestPresetsCommand_MergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gates:\n  upload:\n    window: 1h\n    max_requests: 10\n"), 0o600))

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"presets", "--dotenv=false", "--file", path})

	require.NoError(t, root.Execute())

	parsed, err := config.ParsePresets(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 10, parsed["upload"].MaxRequests)
	assert.Contains(t, parsed, limiter.PresetStrict)
}

func TestCheckCommand_RequiresKey(t *testing.T) {
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"check", "--dotenv=false"})

	assert.Error(t, root.Execute())
}
