package commands

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/schemagraph/internal/cli/output"
	"github.com/leapstack-labs/schemagraph/internal/cloudsync"
	"github.com/leapstack-labs/schemagraph/internal/config"
	"github.com/leapstack-labs/schemagraph/internal/engine"
	"github.com/leapstack-labs/schemagraph/internal/localstore"
	"github.com/leapstack-labs/schemagraph/internal/provider"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext reads config and logger from the command context and
// builds a renderer for the configured output mode.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig(cmd)
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}
}

// getConfig returns the loaded configuration, or defaults when the command
// runs without the root command's config loading.
func getConfig(cmd *cobra.Command) *config.Config {
	if cfg := config.FromContext(cmd.Context()); cfg != nil {
		return cfg
	}
	cfg, _, err := config.LoadConfig("", nil)
	if err != nil {
		return &config.Config{
			AppPrefix:    config.DefaultAppPrefix,
			StatePath:    config.DefaultStateFile,
			PlanTier:     config.DefaultPlanTier,
			Language:     config.DefaultLanguage,
			OutputFormat: config.DefaultOutput,
		}
	}
	return cfg
}

// newSchemaClient builds the schema provider client from config.
func newSchemaClient(cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) *provider.Client {
	opts := []provider.Option{
		provider.WithBaseURL(cfg.Provider.BaseURL),
		provider.WithVersion(cfg.Provider.Version),
		provider.WithPageSize(cfg.Provider.PageSize),
		provider.WithLanguage(cfg.Language),
		provider.WithHTTPClient(&http.Client{Timeout: cfg.Provider.Timeout}),
		provider.WithRateLimit(cfg.Provider.RateLimit, cfg.Provider.Burst),
		provider.WithLogger(logger),
	}
	if reg != nil {
		opts = append(opts, provider.WithRegisterer(reg))
	}
	return provider.NewClient(opts...)
}

// cloudParts are the cloud sync pieces built from config.
type cloudParts struct {
	client    *cloudsync.Client
	refresher *cloudsync.TokenRefresher
	primary   *cloudsync.SQLPrimary
}

func (p *cloudParts) close() {
	if p != nil && p.primary != nil {
		_ = p.primary.Close()
	}
}

// newCloud builds the cloud sync client. It returns nil when no cloud
// backend is configured.
func newCloud(cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (*cloudParts, error) {
	if !cfg.Cloud.Enabled() {
		return nil, nil
	}

	httpClient := &http.Client{Timeout: cfg.Cloud.WriteTimeout + cfg.Cloud.RefreshTimeout}
	rest := cloudsync.NewREST(cfg.Cloud.BaseURL, cfg.Cloud.AnonKey, cfg.Cloud.Table, httpClient)
	refresher := cloudsync.NewTokenRefresher(cfg.Cloud.BaseURL, cfg.Cloud.AnonKey, httpClient)

	opts := []cloudsync.Option{
		cloudsync.WithRefresher(refresher),
		cloudsync.WithTimeouts(cfg.Cloud.WriteTimeout, cfg.Cloud.ReadTimeout, cfg.Cloud.RefreshTimeout),
		cloudsync.WithLogger(logger),
	}
	if reg != nil {
		opts = append(opts, cloudsync.WithMetrics(cloudsync.NewMetrics(reg)))
	}

	parts := &cloudParts{refresher: refresher}
	if cfg.Cloud.DatabaseURL != "" {
		primary, err := cloudsync.OpenSQLPrimary(cfg.Cloud.DatabaseURL, cfg.Cloud.Table)
		if err != nil {
			return nil, fmt.Errorf("failed to open cloud database: %w", err)
		}
		parts.primary = primary
		opts = append(opts, cloudsync.WithPrimary(primary))
	}

	parts.client = cloudsync.NewClient(rest, opts...)
	return parts, nil
}

// engineOptions tune createEngine.
type engineOptions struct {
	registry prometheus.Registerer
	onChange func(userID string)
}

// createEngine wires the provider, cloud client and local store into an
// engine. The returned cleanup closes everything it opened.
func createEngine(cfg *config.Config, logger *slog.Logger, opts engineOptions) (*engine.Engine, *cloudParts, func(), error) {
	if err := ensureStateDir(cfg.StatePath); err != nil {
		return nil, nil, nil, err
	}

	cloud, err := newCloud(cfg, opts.registry, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	engCfg := engine.Config{
		StatePath:       cfg.StatePath,
		AppPrefix:       cfg.AppPrefix,
		Schema:          newSchemaClient(cfg, opts.registry, logger),
		HistoryDebounce: cfg.History.Debounce,
		HistoryLimit:    cfg.History.Limit,
		OnChange:        opts.onChange,
		Logger:          logger,
	}
	if cloud != nil {
		engCfg.Cloud = cloud.client
	}

	eng, err := engine.New(engCfg)
	if err != nil {
		cloud.close()
		return nil, nil, nil, fmt.Errorf("failed to create engine: %w", err)
	}

	cleanup := func() {
		_ = eng.Close()
		cloud.close()
	}
	return eng, cloud, cleanup, nil
}

// openLocalStore opens the local store without an engine.
func openLocalStore(cfg *config.Config, logger *slog.Logger) (*localstore.SQLiteKV, *localstore.Store, error) {
	if err := ensureStateDir(cfg.StatePath); err != nil {
		return nil, nil, err
	}
	kv := localstore.NewSQLiteKV(logger)
	if err := kv.Open(cfg.StatePath); err != nil {
		return nil, nil, fmt.Errorf("failed to open local store: %w", err)
	}
	return kv, localstore.New(kv, cfg.AppPrefix, logger), nil
}

// ensureStateDir creates the directory holding the state file.
func ensureStateDir(statePath string) error {
	if statePath == "" || statePath == ":memory:" {
		return nil
	}
	stateDir := filepath.Dir(statePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return nil
}
