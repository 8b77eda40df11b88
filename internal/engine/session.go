package engine

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/leapstack-labs/schemagraph/internal/cloudsync"
	"github.com/leapstack-labs/schemagraph/internal/filter"
	"github.com/leapstack-labs/schemagraph/internal/graph"
	"github.com/leapstack-labs/schemagraph/internal/history"
	"github.com/leapstack-labs/schemagraph/internal/localstore"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// ErrNoSchemaProvider is returned by schema syncs when the engine has no fetcher.
var ErrNoSchemaProvider = errors.New("no schema provider configured")

// Session is one user's live graph state.
//
// All methods are safe for concurrent use. Network calls run without the
// session lock held, so a slow sync never blocks reads or other mutations.
// Mutators return core.ErrSessionNotReady until Start has applied the cloud
// record.
type Session struct {
	eng    *Engine
	scope  *localstore.Scoped
	logger *slog.Logger

	mu            sync.Mutex
	sc            core.SessionContext
	creds         cloudsync.Credentials
	ready         bool
	demo          bool
	tables        []core.RawTable
	relations     []core.RawRelation
	positions     map[core.TableID]core.Position
	filters       *filter.State
	history       *history.History
	providerToken string
	dirty         bool
	version       uint64
	lastSaved     time.Time
	lastErr       error
}

func newSession(e *Engine, sc core.SessionContext, creds cloudsync.Credentials) *Session {
	demo := DemoSchema()
	return &Session{
		eng:       e,
		scope:     e.store.Scope(sc.UserID),
		logger:    e.logger.With(slog.String("user_id", sc.UserID)),
		sc:        sc,
		creds:     creds,
		demo:      true,
		tables:    demo.Tables,
		relations: demo.Relations,
		positions: make(map[core.TableID]core.Position),
		filters:   filter.NewState(),
		history:   history.New(e.history...),
	}
}

func (s *Session) refresh(tier core.PlanTier, creds cloudsync.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tier != "" {
		s.sc.Tier = tier
	}
	if creds.AccessToken != "" {
		s.creds = creds
	}
}

// UserID returns the session's user.
func (s *Session) UserID() string {
	return s.sc.UserID
}

// Ready reports whether the initial load barrier has passed.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Credentials returns the current backend tokens, which change after a refresh.
func (s *Session) Credentials() cloudsync.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

// Start loads local state, then applies the cloud record on top of it. Once
// the cloud read has finished the session is ready. If a provider token is
// known while demo data is shown, the schema is synced without marking the
// session dirty; a failure of that sync is returned but the session stays
// usable.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.ready {
		s.mu.Unlock()
		return nil
	}
	local := s.scope.Load()
	s.positions = local.Positions
	s.filters = filter.Restore(local.Filters, local.HiddenDBs, local.HideIsolated, local.CustomColors)
	if local.ProviderToken != nil {
		s.providerToken = *local.ProviderToken
	}
	creds := s.creds
	s.mu.Unlock()

	var rec *core.CloudSyncRecord
	if s.eng.cloud != nil {
		rec = s.eng.cloud.FetchCloudState(ctx, creds, s.sc.UserID)
	}

	s.mu.Lock()
	if rec != nil {
		s.applyCloud(rec)
	}
	s.ready = true
	resume := s.demo && s.providerToken != "" && s.eng.schema != nil
	s.seedHistory()
	s.mu.Unlock()

	s.logger.Debug("session started", slog.Bool("cloud_record", rec != nil), slog.Bool("resume", resume))
	s.eng.notify(s.sc.UserID)

	if resume {
		return s.syncSchema(ctx, false)
	}
	return nil
}

// applyCloud overwrites local and in-memory state with every non-nil field.
func (s *Session) applyCloud(rec *core.CloudSyncRecord) {
	if rec.Positions != nil {
		s.positions = maps.Clone(rec.Positions)
		s.persist("positions", s.scope.SetPositions(s.positions))
	}
	if rec.CustomColors != nil {
		s.filters.ApplyColors(rec.CustomColors)
		s.persist("custom_colors", s.scope.SetCustomColors(rec.CustomColors))
	}
	if rec.Filters != nil {
		s.filters.ApplyFilters(rec.Filters)
		s.persist("filters", s.scope.SetFilters(rec.Filters))
	}
	if rec.HiddenDBs != nil {
		s.filters.ApplyHidden(rec.HiddenDBs)
		s.persist("hidden_dbs", s.scope.SetHiddenDBs(rec.HiddenDBs))
	}
	if rec.HideIsolated != nil {
		s.filters.ApplyHideIsolated(*rec.HideIsolated)
		s.persist("hide_isolated", s.scope.SetHideIsolated(*rec.HideIsolated))
	}
	if rec.NotionToken != nil {
		s.providerToken = *rec.NotionToken
		s.persist("provider_token", s.scope.SetProviderToken(*rec.NotionToken))
	}
}

// SyncSchema refetches the schema with the stored provider token.
func (s *Session) SyncSchema(ctx context.Context) error {
	return s.syncSchema(ctx, true)
}

func (s *Session) syncSchema(ctx context.Context, userInitiated bool) error {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return core.ErrSessionNotReady
	}
	token := s.providerToken
	s.mu.Unlock()

	if s.eng.schema == nil {
		return ErrNoSchemaProvider
	}
	if token == "" {
		return &core.SyncError{Kind: core.KindInvalidCredential, Message: core.InvalidCredentialMessage}
	}

	schema, err := s.eng.schema.FetchSchema(ctx, token)

	s.mu.Lock()
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		s.logger.Warn("schema sync failed", slog.String("error", err.Error()))
		s.eng.notify(s.sc.UserID)
		return err
	}
	if s.providerToken != token {
		// disconnected or reconnected while the fetch was in flight
		s.mu.Unlock()
		return nil
	}
	s.tables = schema.Tables
	s.relations = schema.Relations
	s.demo = false
	s.lastErr = nil
	s.seedHistory()
	if userInitiated {
		s.version++
	}
	s.mu.Unlock()

	s.logger.Info("schema synced", slog.Int("tables", len(schema.Tables)), slog.Int("relations", len(schema.Relations)))
	s.eng.notify(s.sc.UserID)
	return nil
}

// ConnectProvider stores token and loads the real schema. An invalid token is
// forgotten again; other failures keep it for a manual retry.
func (s *Session) ConnectProvider(ctx context.Context, token string) error {
	if token == "" {
		return &core.SyncError{Kind: core.KindInvalidCredential, Message: core.InvalidCredentialMessage}
	}
	if err := s.mutate(func() error {
		s.providerToken = token
		s.dirty = true
		s.persist("provider_token", s.scope.SetProviderToken(token))
		return nil
	}); err != nil {
		return err
	}

	err := s.syncSchema(ctx, true)
	if errors.Is(err, core.ErrInvalidCredential) {
		s.mu.Lock()
		if s.providerToken == token {
			s.providerToken = ""
			s.persist("provider_token", s.scope.SetProviderToken(""))
		}
		s.mu.Unlock()
	}
	return err
}

// DisconnectProvider forgets the provider token and returns to demo data.
func (s *Session) DisconnectProvider() error {
	return s.mutate(func() error {
		demo := DemoSchema()
		s.providerToken = ""
		s.tables = demo.Tables
		s.relations = demo.Relations
		s.demo = true
		s.dirty = true
		s.seedHistory()
		s.persist("provider_token", s.scope.SetProviderToken(""))
		return nil
	})
}

// Graph builds the full graph from current state.
func (s *Session) Graph() core.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graphLocked()
}

func (s *Session) graphLocked() core.Graph {
	return graph.Build(s.tables, s.relations, s.positions, s.filters.Colors())
}

// VisibleIDs returns the ids that survive the filter pipeline.
func (s *Session) VisibleIDs() core.IDSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleLocked()
}

func (s *Session) visibleLocked() core.IDSet {
	return filter.ComputeVisible(s.tables, s.relations, s.filters.Visibility(), s.sc.Tier, s.connectedLocked())
}

// connectedLocked reports whether real provider data is shown.
func (s *Session) connectedLocked() bool {
	return !s.demo && s.providerToken != ""
}

// VisibleGraph returns the graph restricted to visible tables.
func (s *Session) VisibleGraph() core.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return graph.Filter(s.graphLocked(), s.visibleLocked())
}

// Tables returns the current tables.
func (s *Session) Tables() []core.RawTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.RawTable(nil), s.tables...)
}

// PropertyTypes returns the distinct property types across all tables.
func (s *Session) PropertyTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	for _, t := range s.tables {
		for _, p := range t.Properties {
			seen[p.Type] = struct{}{}
		}
	}
	return core.SortedKeys(seen)
}

// Visibility returns a copy of the current filter choices.
func (s *Session) Visibility() core.VisibilityState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters.Visibility()
}

// Status summarizes the session for display.
type Status struct {
	UserID         string        `json:"userId"`
	Tier           core.PlanTier `json:"tier"`
	Ready          bool          `json:"ready"`
	Demo           bool          `json:"demo"`
	Connected      bool          `json:"connected"`
	Dirty          bool          `json:"dirty"`
	Tables         int           `json:"tables"`
	Visible        int           `json:"visible"`
	Capped         bool          `json:"capped"`
	CanUndo        bool          `json:"canUndo"`
	CanRedo        bool          `json:"canRedo"`
	OnboardingSeen bool          `json:"onboardingSeen"`
	LastSavedAt    *time.Time    `json:"lastSavedAt,omitempty"`
	LastError      string        `json:"lastError,omitempty"`
	LastErrorKind  string        `json:"lastErrorKind,omitempty"`
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		UserID:         s.sc.UserID,
		Tier:           s.sc.Tier,
		Ready:          s.ready,
		Demo:           s.demo,
		Connected:      s.connectedLocked(),
		Dirty:          s.dirty || s.filters.Dirty(),
		Tables:         len(s.tables),
		Visible:        len(s.visibleLocked()),
		Capped:         filter.IsCapped(len(s.tables), s.sc.Tier, s.connectedLocked()),
		CanUndo:        s.history.CanUndo(),
		CanRedo:        s.history.CanRedo(),
		OnboardingSeen: s.scope.OnboardingSeen(),
	}
	if !s.lastSaved.IsZero() {
		t := s.lastSaved
		st.LastSavedAt = &t
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
		if k, ok := core.KindOf(s.lastErr); ok {
			st.LastErrorKind = k.String()
		}
	}
	return st
}

// MoveNodes sets positions and records an undo snapshot. Snapshots arriving
// within the history debounce window are dropped, the move itself is not.
func (s *Session) MoveNodes(moved map[core.TableID]core.Position) error {
	return s.mutate(func() error {
		for id, p := range moved {
			s.positions[id] = p
		}
		s.history.SaveState(s.graphLocked().Nodes)
		s.dirty = true
		s.persist("positions", s.scope.SetPositions(s.positions))
		return nil
	})
}

// Undo restores the previous snapshot. It reports false at the boundary.
func (s *Session) Undo() (bool, error) {
	return s.travel((*history.History).Undo)
}

// Redo restores the next snapshot. It reports false at the boundary.
func (s *Session) Redo() (bool, error) {
	return s.travel((*history.History).Redo)
}

func (s *Session) travel(move func(*history.History) (history.Snapshot, bool)) (bool, error) {
	moved := false
	err := s.mutate(func() error {
		snap, ok := move(s.history)
		if !ok {
			return nil
		}
		for id, p := range snap.Positions() {
			s.positions[id] = p
		}
		moved = true
		s.dirty = true
		s.persist("positions", s.scope.SetPositions(s.positions))
		return nil
	})
	return moved, err
}

// SetColor overrides a table's color.
func (s *Session) SetColor(id core.TableID, color string) error {
	return s.mutate(func() error {
		s.filters.SetColor(id, color)
		s.persist("custom_colors", s.scope.SetCustomColors(s.filters.Colors()))
		return nil
	})
}

// ResetColor drops a table's color override.
func (s *Session) ResetColor(id core.TableID) error {
	return s.SetColor(id, "")
}

// ToggleFilter flips one property type in the filter set.
func (s *Session) ToggleFilter(propertyType string) error {
	return s.mutate(func() error {
		s.filters.ToggleFilter(propertyType)
		s.persist("filters", s.scope.SetFilters(s.filters.Filters()))
		return nil
	})
}

// ToggleHiddenTable flips one table's manual hidden flag.
func (s *Session) ToggleHiddenTable(id core.TableID) error {
	return s.mutate(func() error {
		s.filters.ToggleHiddenTable(id)
		s.persist("hidden_dbs", s.scope.SetHiddenDBs(s.filters.Hidden()))
		return nil
	})
}

// ToggleHideIsolated flips the isolation filter.
func (s *Session) ToggleHideIsolated() error {
	return s.mutate(func() error {
		s.filters.ToggleHideIsolated()
		s.persist("hide_isolated", s.scope.SetHideIsolated(s.filters.HideIsolated()))
		return nil
	})
}

// ClearFilters resets property filters and isolation. Hidden tables stay.
func (s *Session) ClearFilters() error {
	return s.mutate(func() error {
		s.filters.ClearFilters()
		s.persist("filters", s.scope.SetFilters(s.filters.Filters()))
		s.persist("hide_isolated", s.scope.SetHideIsolated(s.filters.HideIsolated()))
		return nil
	})
}

// OnboardingSeen reports whether onboarding was dismissed on this device.
func (s *Session) OnboardingSeen() bool {
	return s.scope.OnboardingSeen()
}

// MarkOnboardingSeen records the dismissal. It is local only.
func (s *Session) MarkOnboardingSeen() error {
	return s.scope.MarkOnboardingSeen()
}

// SaveNow writes the state as it is at the moment of the call, locally and
// to the cloud. The session becomes clean only if nothing changed while the
// cloud write was in flight.
func (s *Session) SaveNow(ctx context.Context) error {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return core.ErrSessionNotReady
	}
	rec, local := s.snapshotLocked()
	version := s.version
	creds := s.creds
	if err := s.scope.SaveAll(local); err != nil {
		s.logger.Warn("local save failed", slog.String("error", err.Error()))
	}
	s.mu.Unlock()

	var err error
	if s.eng.cloud != nil {
		creds, err = s.eng.cloud.SyncToCloud(ctx, creds, rec)
	}

	s.mu.Lock()
	if creds.AccessToken != "" {
		s.creds = creds
	}
	s.lastErr = err
	if err == nil {
		s.lastSaved = s.eng.clock()
		if s.version == version {
			s.dirty = false
			s.filters.MarkClean()
		}
	}
	s.mu.Unlock()

	s.eng.notify(s.sc.UserID)
	return err
}

func (s *Session) snapshotLocked() (core.CloudSyncRecord, localstore.Snapshot) {
	hide := s.filters.HideIsolated()
	rec := core.CloudSyncRecord{
		ID:           s.sc.UserID,
		Positions:    maps.Clone(s.positions),
		CustomColors: s.filters.Colors(),
		Filters:      s.filters.Filters(),
		HiddenDBs:    s.filters.Hidden(),
		HideIsolated: &hide,
	}
	if rec.Positions == nil {
		rec.Positions = map[core.TableID]core.Position{}
	}
	local := localstore.Snapshot{
		Positions:    rec.Positions,
		CustomColors: rec.CustomColors,
		Filters:      rec.Filters,
		HiddenDBs:    rec.HiddenDBs,
		HideIsolated: hide,
	}
	if s.providerToken != "" {
		tok := s.providerToken
		rec.NotionToken = &tok
		local.ProviderToken = &tok
	}
	return rec, local
}

// mutate runs fn under the lock once the session is ready and bumps the
// version on success.
func (s *Session) mutate(fn func() error) error {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return core.ErrSessionNotReady
	}
	err := fn()
	if err == nil {
		s.version++
	}
	s.mu.Unlock()

	if err == nil {
		s.eng.notify(s.sc.UserID)
	}
	return err
}

// seedHistory restarts undo history from the current layout.
func (s *Session) seedHistory() {
	s.history.Clear()
	s.history.SaveState(s.graphLocked().Nodes)
}

// persist logs local write failures. The in-memory state stays authoritative.
func (s *Session) persist(what string, err error) {
	if err != nil {
		s.logger.Warn("local write failed", slog.String("key", what), slog.String("error", err.Error()))
	}
}
