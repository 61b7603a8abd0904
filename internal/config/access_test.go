package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPath(t *testing.T) {
	cfg := Defaults()
	cfg.Workers["progress"] = WorkerConf{
		Config:  map[string]any{"steps": 5},
		Timeout: 10 * time.Second,
	}

	tests := []struct {
		name    string
		path    string
		want    any
		wantErr bool
	}{
		{name: "root field", path: "plugins_dir", want: "./plugins"},
		{name: "nested field", path: "run.worker", want: "progress"},
		{name: "bool field", path: "history.enabled", want: false},
		{name: "worker config", path: "workers.progress.config.steps", want: 5},
		{name: "duration", path: "workers.progress.timeout", want: "10s"},
		{name: "missing key", path: "run.missing", wantErr: true},
		{name: "through scalar", path: "run.worker.name", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cfg.GetPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writeAccessConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestSetPath(t *testing.T) {
	path := writeAccessConfig(t, "run:\n  worker: progress\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	t.Run("existing field", func(t *testing.T) {
		require.NoError(t, cfg.SetPath("run.worker", "spinner"))
		reloaded, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "spinner", reloaded.Run.Worker)
	})

	t.Run("creates nested keys", func(t *testing.T) {
		require.NoError(t, cfg.SetPath("workers.progress.config.steps", "3"))
		reloaded, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 3, reloaded.Workers["progress"].Config["steps"])
	})

	t.Run("bool tag", func(t *testing.T) {
		require.NoError(t, cfg.SetPath("run.color", "true"))
		reloaded, err := Load(path)
		require.NoError(t, err)
		assert.True(t, reloaded.Run.Color)
	})

	t.Run("invalid value rolls back", func(t *testing.T) {
		before, err := os.ReadFile(path)
		require.NoError(t, err)

		err = cfg.SetPath("run.renderer", "fancy")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation failed")

		after, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, string(before), string(after))
	})
}

func TestSetPathRefreshesChecksums(t *testing.T) {
	path := writeAccessConfig(t, "run:\n  worker: progress\n")
	_, err := GenerateChecksums(path)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.SetPath("parse.worker", "display"))

	_, err = Load(path)
	assert.NoError(t, err)
}

func TestSetPathWithoutSourceFile(t *testing.T) {
	err := Defaults().SetPath("run.worker", "x")
	assert.Error(t, err)
}

func TestGuessTag(t *testing.T) {
	assert.Equal(t, "!!bool", guessTag("false"))
	assert.Equal(t, "!!int", guessTag("-12"))
	assert.Equal(t, "!!str", guessTag("-"))
	assert.Equal(t, "!!str", guessTag("5s"))
}
