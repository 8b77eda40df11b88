package config

// Default configuration values.
const (
	DefaultAppPrefix       = "schemagraph"
	DefaultStateFile       = ".schemagraph/state.db"
	DefaultPlanTier        = "free"
	DefaultLanguage        = "en"
	DefaultLogFormat       = "text"
	DefaultOutput          = "auto" // Auto-detect: TTY=table, non-TTY=json
	DefaultProviderURL     = "https://api.notion.com/v1"
	DefaultProviderVersion = "2022-06-28"
	DefaultPageSize        = 100
	DefaultCloudTable      = "user_graph_data"
	DefaultPort            = 8765
)

// defaults returns the flattened default values loaded first by LoadConfig.
func defaults() map[string]any {
	return map[string]any{
		"app_prefix":            DefaultAppPrefix,
		"state_path":            DefaultStateFile,
		"plan_tier":             DefaultPlanTier,
		"language":              DefaultLanguage,
		"verbose":               false,
		"log_format":            DefaultLogFormat,
		"output":                DefaultOutput,
		"provider.base_url":     DefaultProviderURL,
		"provider.version":      DefaultProviderVersion,
		"provider.page_size":    DefaultPageSize,
		"provider.timeout":      "10s",
		"provider.rate_limit":   3.0,
		"provider.burst":        3,
		"cloud.table":           DefaultCloudTable,
		"cloud.write_timeout":   "4s",
		"cloud.read_timeout":    "3s",
		"cloud.refresh_timeout": "3s",
		"history.debounce":      "500ms",
		"history.limit":         50,
		"ui.port":               DefaultPort,
	}
}
