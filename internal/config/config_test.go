package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName+".toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func load(t *testing.T, dir string) (*Manager, error) {
	t.Helper()
	m, err := NewManager(Options{Dirs: []string{dir}, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return m, m.Load()
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "webview backend", mutate: func(c *Config) { c.Backend = BackendWebview }},
		{name: "unknown backend", mutate: func(c *Config) { c.Backend = "qt" }, wantErr: "backend"},
		{name: "negative threads", mutate: func(c *Config) { c.Threads = -1 }, wantErr: "threads"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
		{name: "zero width", mutate: func(c *Config) { c.Window.Width = 0 }, wantErr: "window.width"},
		{name: "negative height", mutate: func(c *Config) { c.Window.Height = -5 }, wantErr: "window.height"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	m, err := load(t, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), m.Config())
	assert.Empty(t, m.File())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
backend = "Webview"
debug = true
threads = 4

[logging]
level = "WARNING"
format = "json"

[window]
title = "demo"
width = 1024
`)

	m, err := load(t, dir)
	require.NoError(t, err)

	cfg := m.Config()
	assert.Equal(t, BackendWebview, cfg.Backend)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "demo", cfg.Window.Title)
	assert.Equal(t, 1024, cfg.Window.Width)
	assert.Equal(t, defaultHeight, cfg.Window.Height)
	assert.Equal(t, path, m.File())
}

func TestLoadExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`threads = 3`), 0o600))

	m, err := NewManager(Options{File: path, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, m.Load())
	assert.Equal(t, 3, m.Config().Threads)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `backend = "qt"`)

	_, err := load(t, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("GLAZEJS_LOG_LEVEL", "debug")
	t.Setenv("GLAZEJS_BACKEND", "webview")
	t.Setenv("GLAZEJS_WINDOW_WIDTH", "1280")

	m, err := load(t, t.TempDir())
	require.NoError(t, err)

	cfg := m.Config()
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, BackendWebview, cfg.Backend)
	assert.Equal(t, 1280, cfg.Window.Width)
}

func TestSetOverridesAndValidates(t *testing.T) {
	m, err := load(t, t.TempDir())
	require.NoError(t, err)

	require.NoError(t, m.Set("debug", true))
	assert.True(t, m.Config().Debug)

	require.Error(t, m.Set("threads", -2))
	assert.Equal(t, 0, m.Config().Threads, "a rejected override keeps the previous config")
}

func TestSchema(t *testing.T) {
	data, err := Schema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "glazejs configuration", doc["title"])
	assert.Contains(t, string(data), `"backend"`)
	assert.Contains(t, string(data), `"webview"`)
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `threads = 1`)

	m, err := load(t, dir)
	require.NoError(t, err)

	changed := make(chan *Config, 4)
	m.OnChange(func(c *Config) { changed <- c })
	m.Watch()

	require.NoError(t, os.WriteFile(path, []byte(`threads = 2`), 0o600))

	// An editor may truncate before writing, so intermediate reloads can
	// be observed first.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.Threads == 2 {
				assert.Equal(t, 2, m.Config().Threads)
				return
			}
		case <-timeout:
			t.Fatal("config change not observed")
		}
	}
}
