// Package config loads relay configuration with precedence
// file > environment > defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the complete runtime configuration.
type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	Database  *DatabaseConfig  `json:"database"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Session   *SessionConfig   `json:"session"`
	Speech    *SpeechConfig    `json:"speech"`
	Auth      *AuthConfig      `json:"auth"`
}

// HTTPConfig covers the listener shared by /ws, the API and /metrics.
type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// DatabaseConfig covers the SQLite store.
type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// WebSocketConfig tunes the per-connection transport.
type WebSocketConfig struct {
	ReadTimeout        time.Duration `json:"read_timeout"`
	WriteTimeout       time.Duration `json:"write_timeout"`
	BufferSize         int           `json:"buffer_size"`
	RateLimitPerMinute int           `json:"rate_limit_per_minute"`
}

// SessionConfig tunes classroom codes, heartbeats and drain handling.
type SessionConfig struct {
	ClassroomCodeExpiration      time.Duration `json:"classroom_code_expiration"`
	ClassroomCodeCleanupInterval time.Duration `json:"classroom_code_cleanup_interval"`
	HealthCheckInterval          time.Duration `json:"health_check_interval"`
	StudentDrainGrace            time.Duration `json:"student_drain_grace"`
}

// SpeechConfig points at the external translation/TTS service.
type SpeechConfig struct {
	Endpoint string        `json:"endpoint"`
	APIKey   string        `json:"api_key"`
	Timeout  time.Duration `json:"timeout"`
}

// AuthConfig tunes teacher bearer tokens.
type AuthConfig struct {
	TokenTTL time.Duration `json:"token_ttl"`
}

// DefaultConfig returns the documented defaults: codes expire after 2h and
// are swept every 15m, heartbeats run every 30s, drained sessions get a 10m
// grace window.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: &DatabaseConfig{
			Path:    "./data/classrelay.db",
			Timeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			ReadTimeout:        90 * time.Second,
			WriteTimeout:       10 * time.Second,
			BufferSize:         100,
			RateLimitPerMinute: 100,
		},
		Session: &SessionConfig{
			ClassroomCodeExpiration:      2 * time.Hour,
			ClassroomCodeCleanupInterval: 15 * time.Minute,
			HealthCheckInterval:          30 * time.Second,
			StudentDrainGrace:            10 * time.Minute,
		},
		Speech: &SpeechConfig{
			Endpoint: "",
			Timeout:  15 * time.Second,
		},
		Auth: &AuthConfig{
			TokenTTL: 12 * time.Hour,
		},
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.HTTP == nil || c.Database == nil || c.WebSocket == nil || c.Session == nil || c.Speech == nil || c.Auth == nil {
		return fmt.Errorf("all configuration sections are required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket timeouts must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.RateLimitPerMinute <= 0 {
		return fmt.Errorf("WebSocket rate limit must be positive")
	}
	if c.Session.ClassroomCodeExpiration <= 0 {
		return fmt.Errorf("classroom code expiration must be positive")
	}
	if c.Session.ClassroomCodeCleanupInterval <= 0 {
		return fmt.Errorf("classroom code cleanup interval must be positive")
	}
	if c.Session.HealthCheckInterval <= 0 {
		return fmt.Errorf("health check interval must be positive")
	}
	if c.Session.StudentDrainGrace <= 0 {
		return fmt.Errorf("student drain grace must be positive")
	}
	if c.Speech.Timeout <= 0 {
		return fmt.Errorf("speech timeout must be positive")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token TTL must be positive")
	}
	return nil
}

// LoadFromEnv returns defaults overridden by CLASSRELAY_* environment
// variables. Invalid values fall back silently to the default.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	setString(&cfg.HTTP.Host, "CLASSRELAY_HTTP_HOST")
	setInt(&cfg.HTTP.Port, "CLASSRELAY_HTTP_PORT")
	setDuration(&cfg.HTTP.ReadTimeout, "CLASSRELAY_HTTP_READ_TIMEOUT")
	setDuration(&cfg.HTTP.WriteTimeout, "CLASSRELAY_HTTP_WRITE_TIMEOUT")

	setString(&cfg.Database.Path, "CLASSRELAY_DATABASE_PATH")
	setDuration(&cfg.Database.Timeout, "CLASSRELAY_DATABASE_TIMEOUT")

	setDuration(&cfg.WebSocket.ReadTimeout, "CLASSRELAY_WEBSOCKET_READ_TIMEOUT")
	setDuration(&cfg.WebSocket.WriteTimeout, "CLASSRELAY_WEBSOCKET_WRITE_TIMEOUT")
	setInt(&cfg.WebSocket.BufferSize, "CLASSRELAY_WEBSOCKET_BUFFER_SIZE")
	setInt(&cfg.WebSocket.RateLimitPerMinute, "CLASSRELAY_WEBSOCKET_RATE_LIMIT")

	setDuration(&cfg.Session.ClassroomCodeExpiration, "CLASSRELAY_CODE_EXPIRATION")
	setDuration(&cfg.Session.ClassroomCodeCleanupInterval, "CLASSRELAY_CODE_CLEANUP_INTERVAL")
	setDuration(&cfg.Session.HealthCheckInterval, "CLASSRELAY_HEALTH_CHECK_INTERVAL")
	setDuration(&cfg.Session.StudentDrainGrace, "CLASSRELAY_STUDENT_DRAIN_GRACE")

	setString(&cfg.Speech.Endpoint, "CLASSRELAY_SPEECH_ENDPOINT")
	setString(&cfg.Speech.APIKey, "CLASSRELAY_SPEECH_API_KEY")
	setDuration(&cfg.Speech.Timeout, "CLASSRELAY_SPEECH_TIMEOUT")

	setDuration(&cfg.Auth.TokenTTL, "CLASSRELAY_AUTH_TOKEN_TTL")

	return cfg
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// fileConfig mirrors Config with string durations for JSON parsing.
type fileConfig struct {
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	Database *struct {
		Path    string `json:"path"`
		Timeout string `json:"timeout"`
	} `json:"database"`
	WebSocket *struct {
		ReadTimeout        string `json:"read_timeout"`
		WriteTimeout       string `json:"write_timeout"`
		BufferSize         int    `json:"buffer_size"`
		RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	} `json:"websocket"`
	Session *struct {
		ClassroomCodeExpiration      string `json:"classroom_code_expiration"`
		ClassroomCodeCleanupInterval string `json:"classroom_code_cleanup_interval"`
		HealthCheckInterval          string `json:"health_check_interval"`
		StudentDrainGrace            string `json:"student_drain_grace"`
	} `json:"session"`
	Speech *struct {
		Endpoint string `json:"endpoint"`
		APIKey   string `json:"api_key"`
		Timeout  string `json:"timeout"`
	} `json:"speech"`
	Auth *struct {
		TokenTTL string `json:"token_ttl"`
	} `json:"auth"`
}

// LoadFromFile parses a JSON config file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg := DefaultConfig()

	if fc.HTTP != nil {
		if fc.HTTP.Host != "" {
			cfg.HTTP.Host = fc.HTTP.Host
		}
		if fc.HTTP.Port > 0 {
			cfg.HTTP.Port = fc.HTTP.Port
		}
		parseDuration(&cfg.HTTP.ReadTimeout, fc.HTTP.ReadTimeout)
		parseDuration(&cfg.HTTP.WriteTimeout, fc.HTTP.WriteTimeout)
	}
	if fc.Database != nil {
		if fc.Database.Path != "" {
			cfg.Database.Path = fc.Database.Path
		}
		parseDuration(&cfg.Database.Timeout, fc.Database.Timeout)
	}
	if fc.WebSocket != nil {
		if fc.WebSocket.BufferSize > 0 {
			cfg.WebSocket.BufferSize = fc.WebSocket.BufferSize
		}
		if fc.WebSocket.RateLimitPerMinute > 0 {
			cfg.WebSocket.RateLimitPerMinute = fc.WebSocket.RateLimitPerMinute
		}
		parseDuration(&cfg.WebSocket.ReadTimeout, fc.WebSocket.ReadTimeout)
		parseDuration(&cfg.WebSocket.WriteTimeout, fc.WebSocket.WriteTimeout)
	}
	if fc.Session != nil {
		parseDuration(&cfg.Session.ClassroomCodeExpiration, fc.Session.ClassroomCodeExpiration)
		parseDuration(&cfg.Session.ClassroomCodeCleanupInterval, fc.Session.ClassroomCodeCleanupInterval)
		parseDuration(&cfg.Session.HealthCheckInterval, fc.Session.HealthCheckInterval)
		parseDuration(&cfg.Session.StudentDrainGrace, fc.Session.StudentDrainGrace)
	}
	if fc.Speech != nil {
		if fc.Speech.Endpoint != "" {
			cfg.Speech.Endpoint = fc.Speech.Endpoint
		}
		if fc.Speech.APIKey != "" {
			cfg.Speech.APIKey = fc.Speech.APIKey
		}
		parseDuration(&cfg.Speech.Timeout, fc.Speech.Timeout)
	}
	if fc.Auth != nil {
		parseDuration(&cfg.Auth.TokenTTL, fc.Auth.TokenTTL)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

func parseDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}

// LoadWithPrecedence resolves configuration as file > environment > defaults.
// A missing or broken file is ignored; the environment layer still applies.
func LoadWithPrecedence(path string) *Config {
	cfg := LoadFromEnv()
	if path != "" {
		if fileCfg, err := LoadFromFile(path); err == nil {
			cfg = fileCfg
		}
	}
	return cfg
}
