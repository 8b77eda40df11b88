package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// Validate checks the configuration and clamps the provider page size.
func (c *Config) Validate() error {
	var errs []error

	if _, err := core.ParsePlanTier(c.PlanTier); err != nil {
		errs = append(errs, fmt.Errorf("plan_tier: %w", err))
	}
	if c.AppPrefix == "" {
		errs = append(errs, errors.New("app_prefix is required"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	switch c.OutputFormat {
	case "auto", "table", "json", "yaml":
	default:
		errs = append(errs, fmt.Errorf("output must be auto, table, json or yaml, got %q", c.OutputFormat))
	}

	if c.Provider.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("provider.page_size must be positive, got %d", c.Provider.PageSize))
	} else if c.Provider.PageSize > DefaultPageSize {
		c.Provider.PageSize = DefaultPageSize
	}

	for name, d := range map[string]int64{
		"provider.timeout":      int64(c.Provider.Timeout),
		"cloud.write_timeout":   int64(c.Cloud.WriteTimeout),
		"cloud.read_timeout":    int64(c.Cloud.ReadTimeout),
		"cloud.refresh_timeout": int64(c.Cloud.RefreshTimeout),
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.History.Debounce < 0 {
		errs = append(errs, errors.New("history.debounce must not be negative"))
	}
	if c.History.Limit <= 0 {
		errs = append(errs, fmt.Errorf("history.limit must be positive, got %d", c.History.Limit))
	}
	if c.UI.Port < 0 || c.UI.Port > 65535 {
		errs = append(errs, fmt.Errorf("ui.port out of range: %d", c.UI.Port))
	}

	return errors.Join(errs...)
}

// Tier returns the parsed plan tier. Call after Validate.
func (c *Config) Tier() core.PlanTier {
	tier, _ := core.ParsePlanTier(c.PlanTier)
	return tier
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandSecrets expands environment variables in secret fields.
func (c *Config) expandSecrets() {
	c.Provider.Token = expandEnvVars(c.Provider.Token)
	c.Cloud.AnonKey = expandEnvVars(c.Cloud.AnonKey)
	c.Cloud.DatabaseURL = expandEnvVars(c.Cloud.DatabaseURL)
	c.Auth.JWTSecret = expandEnvVars(c.Auth.JWTSecret)
	c.UI.SessionSecret = expandEnvVars(c.UI.SessionSecret)
}
