// Package engine ties the graph components together into per-user sessions.
//
// An Engine owns the shared dependencies (local store, schema fetcher, cloud
// client). Each user gets a Session holding the live graph state; a Manager
// hands sessions out by user id.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/schemagraph/internal/cloudsync"
	"github.com/leapstack-labs/schemagraph/internal/history"
	"github.com/leapstack-labs/schemagraph/internal/localstore"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// DefaultAppPrefix namespaces local keys.
const DefaultAppPrefix = "schemagraph"

// SchemaFetcher loads tables and relations for a provider token.
type SchemaFetcher interface {
	FetchSchema(ctx context.Context, providerToken string) (*core.Schema, error)
}

// CloudSyncer persists and restores the cloud copy of a session.
type CloudSyncer interface {
	SyncToCloud(ctx context.Context, creds cloudsync.Credentials, rec core.CloudSyncRecord) (cloudsync.Credentials, error)
	FetchCloudState(ctx context.Context, creds cloudsync.Credentials, userID string) *core.CloudSyncRecord
}

// Engine holds what every session shares.
type Engine struct {
	kv       *localstore.SQLiteKV
	store    *localstore.Store
	schema   SchemaFetcher
	cloud    CloudSyncer
	history  []history.Option
	clock    func() time.Time
	onChange func(userID string)
	logger   *slog.Logger
	sessions *Manager
}

// Config holds engine configuration.
type Config struct {
	// StatePath is the SQLite file for the local store. ":memory:" is allowed.
	StatePath string
	// AppPrefix namespaces local keys. Defaults to DefaultAppPrefix.
	AppPrefix string
	// Schema fetches real tables. Nil keeps every session on demo data.
	Schema SchemaFetcher
	// Cloud mirrors sessions remotely. Nil means local-only.
	Cloud CloudSyncer
	// HistoryDebounce and HistoryLimit tune undo history. Zero keeps defaults.
	HistoryDebounce time.Duration
	HistoryLimit    int
	// Clock is used for history debounce and sync timestamps.
	Clock func() time.Time
	// OnChange is called with the user id after any session state change.
	OnChange func(userID string)
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New opens the local store and creates an engine.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.StatePath == "" {
		cfg.StatePath = ":memory:"
	}
	if cfg.AppPrefix == "" {
		cfg.AppPrefix = DefaultAppPrefix
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	logger.Debug("initializing engine", "state_path", cfg.StatePath, "app_prefix", cfg.AppPrefix)

	kv := localstore.NewSQLiteKV(logger)
	if err := kv.Open(cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	opts := []history.Option{history.WithClock(cfg.Clock)}
	if cfg.HistoryDebounce > 0 {
		opts = append(opts, history.WithDebounce(cfg.HistoryDebounce))
	}
	if cfg.HistoryLimit > 0 {
		opts = append(opts, history.WithLimit(cfg.HistoryLimit))
	}

	e := &Engine{
		kv:       kv,
		store:    localstore.New(kv, cfg.AppPrefix, logger),
		schema:   cfg.Schema,
		cloud:    cfg.Cloud,
		history:  opts,
		clock:    cfg.Clock,
		onChange: cfg.OnChange,
		logger:   logger,
	}
	e.sessions = newManager(e)
	return e, nil
}

// Close releases the local store.
func (e *Engine) Close() error {
	return e.kv.Close()
}

// Sessions returns the session manager.
func (e *Engine) Sessions() *Manager {
	return e.sessions
}

// Store returns the scoped local store.
func (e *Engine) Store() *localstore.Store {
	return e.store
}

// LocalKeys lists the physical local keys stored for userID.
func (e *Engine) LocalKeys(userID string) ([]string, error) {
	return e.kv.Keys(e.store.Scope(userID).Key(""))
}

func (e *Engine) notify(userID string) {
	if e.onChange != nil {
		e.onChange(userID)
	}
}
