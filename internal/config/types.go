// Package config provides configuration for schemagraph.
//
// Values are layered with koanf: defaults, then schemagraph.yaml, then
// SCHEMAGRAPH_* environment variables, then explicitly set CLI flags.
package config

import "time"

// Config holds all configuration options.
type Config struct {
	AppPrefix    string         `koanf:"app_prefix"`
	StatePath    string         `koanf:"state_path"`
	PlanTier     string         `koanf:"plan_tier"`
	Language     string         `koanf:"language"`
	Verbose      bool           `koanf:"verbose"`
	LogFormat    string         `koanf:"log_format"`
	OutputFormat string         `koanf:"output"`
	Provider     ProviderConfig `koanf:"provider"`
	Cloud        CloudConfig    `koanf:"cloud"`
	Auth         AuthConfig     `koanf:"auth"`
	History      HistoryConfig  `koanf:"history"`
	UI           UIConfig       `koanf:"ui"`
}

// ProviderConfig configures the schema provider API.
type ProviderConfig struct {
	BaseURL   string        `koanf:"base_url"`
	Version   string        `koanf:"version"`
	PageSize  int           `koanf:"page_size"`
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"`
	Burst     int           `koanf:"burst"`
	// Token is used by CLI commands that fetch a schema without a session.
	Token string `koanf:"token"`
}

// CloudConfig configures the cloud sync backend.
type CloudConfig struct {
	BaseURL string `koanf:"base_url"`
	AnonKey string `koanf:"anon_key"`
	// DatabaseURL enables the direct Postgres write path. Empty means REST only.
	DatabaseURL    string        `koanf:"database_url"`
	Table          string        `koanf:"table"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	RefreshTimeout time.Duration `koanf:"refresh_timeout"`
}

// Enabled reports whether a cloud backend is configured.
func (c CloudConfig) Enabled() bool {
	return c.BaseURL != ""
}

// AuthConfig configures session token handling.
type AuthConfig struct {
	// JWTSecret enables HS256 verification. Empty trusts the backend to verify.
	JWTSecret string `koanf:"jwt_secret"`
}

// HistoryConfig tunes undo history.
type HistoryConfig struct {
	Debounce time.Duration `koanf:"debounce"`
	Limit    int           `koanf:"limit"`
}

// UIConfig holds configuration for the HTTP server.
type UIConfig struct {
	Port           int      `koanf:"port"`
	SessionSecret  string   `koanf:"session_secret"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}
