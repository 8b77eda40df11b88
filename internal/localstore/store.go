// Package localstore persists one user's graph customizations on this device.
//
// Keys are namespaced as {prefix}_{userID}_{logicalKey} so that several
// users sharing one device never collide. Typed getters fail soft: a missing
// or unparsable value yields the type's empty value.
package localstore

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// Logical keys.
const (
	KeyPositions      = "node-positions"
	KeyFilters        = "property-filters"
	KeyHiddenDBs      = "hidden-dbs"
	KeyHideIsolated   = "hide-isolated"
	KeyProviderToken  = "notion-token"
	KeyCustomColors   = "custom-colors"
	KeyOnboardingSeen = "onboarding-seen"
)

// LogicalKeys lists every key a scope may hold.
var LogicalKeys = []string{
	KeyPositions, KeyFilters, KeyHiddenDBs, KeyHideIsolated,
	KeyProviderToken, KeyCustomColors, KeyOnboardingSeen,
}

// KV is the raw string storage behind a Store.
type KV interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	Apply(set map[string]string, del []string) error
}

// Store hands out per-user scopes over one KV.
type Store struct {
	kv     KV
	prefix string
	logger *slog.Logger
}

// New creates a Store. If logger is nil, a discard logger is used.
func New(kv KV, prefix string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{kv: kv, prefix: prefix, logger: logger}
}

// Scope returns the view of one user's keys.
func (s *Store) Scope(userID string) *Scoped {
	return &Scoped{
		kv:     s.kv,
		base:   fmt.Sprintf("%s_%s_", s.prefix, userID),
		logger: s.logger.With(slog.String("user_id", userID)),
	}
}

// Snapshot is everything SaveAll writes in one go.
type Snapshot struct {
	Positions    map[core.TableID]core.Position
	CustomColors map[core.TableID]string
	Filters      []string
	HiddenDBs    []core.TableID
	HideIsolated bool
	// ProviderToken nil removes the stored token.
	ProviderToken *string
}

// Scoped reads and writes one user's keys.
type Scoped struct {
	kv     KV
	base   string
	logger *slog.Logger
}

// Key returns the physical key for a logical key.
func (s *Scoped) Key(logical string) string {
	return s.base + logical
}

// Positions returns saved node positions.
func (s *Scoped) Positions() map[core.TableID]core.Position {
	out := make(map[core.TableID]core.Position)
	s.decode(KeyPositions, &out)
	if out == nil {
		out = make(map[core.TableID]core.Position)
	}
	return out
}

// Filters returns the selected property types.
func (s *Scoped) Filters() []string {
	var out []string
	s.decode(KeyFilters, &out)
	if out == nil {
		out = []string{}
	}
	return out
}

// HiddenDBs returns the manually hidden table ids.
func (s *Scoped) HiddenDBs() []core.TableID {
	var out []core.TableID
	s.decode(KeyHiddenDBs, &out)
	if out == nil {
		out = []core.TableID{}
	}
	return out
}

// CustomColors returns color overrides keyed by table id.
func (s *Scoped) CustomColors() map[core.TableID]string {
	out := make(map[core.TableID]string)
	s.decode(KeyCustomColors, &out)
	if out == nil {
		out = make(map[core.TableID]string)
	}
	return out
}

// HideIsolated returns the isolation toggle. Only the literal "true" is true.
func (s *Scoped) HideIsolated() bool {
	v, _ := s.kv.Get(s.Key(KeyHideIsolated))
	return v == "true"
}

// ProviderToken returns the stored provider token, or "".
func (s *Scoped) ProviderToken() string {
	v, _ := s.kv.Get(s.Key(KeyProviderToken))
	return v
}

// OnboardingSeen reports whether the onboarding flow was dismissed.
func (s *Scoped) OnboardingSeen() bool {
	v, _ := s.kv.Get(s.Key(KeyOnboardingSeen))
	return v == "true"
}

// SetPositions stores node positions.
func (s *Scoped) SetPositions(p map[core.TableID]core.Position) error {
	return s.encode(KeyPositions, p)
}

// SetFilters stores the selected property types.
func (s *Scoped) SetFilters(types []string) error {
	return s.encode(KeyFilters, nonNil(types))
}

// SetHiddenDBs stores the hidden table ids.
func (s *Scoped) SetHiddenDBs(ids []core.TableID) error {
	return s.encode(KeyHiddenDBs, nonNil(ids))
}

// SetCustomColors stores color overrides.
func (s *Scoped) SetCustomColors(c map[core.TableID]string) error {
	return s.encode(KeyCustomColors, c)
}

// SetHideIsolated stores the isolation toggle.
func (s *Scoped) SetHideIsolated(v bool) error {
	return s.kv.Set(s.Key(KeyHideIsolated), boolString(v))
}

// SetProviderToken stores the token. An empty token removes the key.
func (s *Scoped) SetProviderToken(token string) error {
	if token == "" {
		return s.kv.Delete(s.Key(KeyProviderToken))
	}
	return s.kv.Set(s.Key(KeyProviderToken), token)
}

// MarkOnboardingSeen records that onboarding was dismissed.
func (s *Scoped) MarkOnboardingSeen() error {
	return s.kv.Set(s.Key(KeyOnboardingSeen), "true")
}

// Load reads every persisted customization.
func (s *Scoped) Load() Snapshot {
	snap := Snapshot{
		Positions:    s.Positions(),
		CustomColors: s.CustomColors(),
		Filters:      s.Filters(),
		HiddenDBs:    s.HiddenDBs(),
		HideIsolated: s.HideIsolated(),
	}
	if tok := s.ProviderToken(); tok != "" {
		snap.ProviderToken = &tok
	}
	return snap
}

// SaveAll persists positions, colors, filters, hidden set, isolation flag
// and provider token together. A nil ProviderToken removes the stored token.
func (s *Scoped) SaveAll(snap Snapshot) error {
	set := make(map[string]string, 6)
	var del []string

	for key, v := range map[string]any{
		KeyPositions:    nonNilMap(snap.Positions),
		KeyCustomColors: nonNilMap(snap.CustomColors),
		KeyFilters:      nonNil(snap.Filters),
		KeyHiddenDBs:    nonNil(snap.HiddenDBs),
	} {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		set[s.Key(key)] = string(raw)
	}
	set[s.Key(KeyHideIsolated)] = boolString(snap.HideIsolated)

	if snap.ProviderToken == nil || *snap.ProviderToken == "" {
		del = append(del, s.Key(KeyProviderToken))
	} else {
		set[s.Key(KeyProviderToken)] = *snap.ProviderToken
	}

	return s.kv.Apply(set, del)
}

// Clear removes every key of this scope.
func (s *Scoped) Clear() error {
	keys := make([]string, 0, len(LogicalKeys))
	for _, k := range LogicalKeys {
		keys = append(keys, s.Key(k))
	}
	return s.kv.Apply(nil, keys)
}

// decode unmarshals a JSON value into dst, leaving dst untouched on any failure.
func (s *Scoped) decode(logical string, dst any) {
	raw, ok := s.kv.Get(s.Key(logical))
	if !ok || raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.logger.Warn("ignoring malformed local value", slog.String("key", logical), slog.String("error", err.Error()))
		// a partial decode may have filled dst; callers reset nil results
		resetEmpty(dst)
	}
}

func (s *Scoped) encode(logical string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", logical, err)
	}
	return s.kv.Set(s.Key(logical), string(raw))
}

// resetEmpty clears whatever a failed decode left behind.
func resetEmpty(dst any) {
	switch d := dst.(type) {
	case *map[core.TableID]core.Position:
		*d = make(map[core.TableID]core.Position)
	case *map[core.TableID]string:
		*d = make(map[core.TableID]string)
	case *[]string:
		*d = []string{}
	}
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nonNilMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}
	return m
}
