package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 2*time.Hour, cfg.Session.ClassroomCodeExpiration)
	assert.Equal(t, 15*time.Minute, cfg.Session.ClassroomCodeCleanupInterval)
	assert.Equal(t, 30*time.Second, cfg.Session.HealthCheckInterval)
	assert.Equal(t, 10*time.Minute, cfg.Session.StudentDrainGrace)
	assert.Equal(t, 90*time.Second, cfg.WebSocket.ReadTimeout)
	assert.Equal(t, 100, cfg.WebSocket.BufferSize)
	assert.Equal(t, 100, cfg.WebSocket.RateLimitPerMinute)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"zero buffer", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"zero rate limit", func(c *Config) { c.WebSocket.RateLimitPerMinute = 0 }},
		{"zero code expiration", func(c *Config) { c.Session.ClassroomCodeExpiration = 0 }},
		{"zero drain grace", func(c *Config) { c.Session.StudentDrainGrace = 0 }},
		{"zero speech timeout", func(c *Config) { c.Speech.Timeout = 0 }},
		{"zero token ttl", func(c *Config) { c.Auth.TokenTTL = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CLASSRELAY_HTTP_PORT", "9090")
	t.Setenv("CLASSRELAY_CODE_EXPIRATION", "1h")
	t.Setenv("CLASSRELAY_SPEECH_ENDPOINT", "http://speech.local")
	t.Setenv("CLASSRELAY_HTTP_READ_TIMEOUT", "not-a-duration")

	cfg := LoadFromEnv()
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, time.Hour, cfg.Session.ClassroomCodeExpiration)
	assert.Equal(t, "http://speech.local", cfg.Speech.Endpoint)
	// Unparsable values keep the default.
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"http": {"port": 9999},
		"session": {"student_drain_grace": "5m"},
		"websocket": {"rate_limit_per_minute": 50}
	}`), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Minute, cfg.Session.StudentDrainGrace)
	assert.Equal(t, 50, cfg.WebSocket.RateLimitPerMinute)
	// Untouched sections keep defaults.
	assert.Equal(t, 2*time.Hour, cfg.Session.ClassroomCodeExpiration)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadWithPrecedence(t *testing.T) {
	t.Setenv("CLASSRELAY_HTTP_PORT", "9090")

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"http": {"port": 9999}}`), 0o600))

	// File wins over environment.
	cfg := LoadWithPrecedence(path)
	assert.Equal(t, 9999, cfg.HTTP.Port)

	// Missing file falls back to the environment layer.
	cfg = LoadWithPrecedence(filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, 9090, cfg.HTTP.Port)

	// No file at all.
	cfg = LoadWithPrecedence("")
	assert.Equal(t, 9090, cfg.HTTP.Port)
}
