// Package features provides shared test utilities for UI feature tests.
package features

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/schemagraph/internal/cloudsync"
	"github.com/leapstack-labs/schemagraph/internal/engine"
	"github.com/leapstack-labs/schemagraph/internal/palette"
	"github.com/leapstack-labs/schemagraph/internal/testutil"
	"github.com/leapstack-labs/schemagraph/internal/ui/notifier"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// TestSecret signs tokens minted by Token.
const TestSecret = "test-jwt-secret"

// FakeSchema is a SchemaFetcher returning a fixed schema or error.
type FakeSchema struct {
	mu     sync.Mutex
	Schema *core.Schema
	Err    error
	Tokens []string
}

// FetchSchema records the token and returns the configured result.
func (f *FakeSchema) FetchSchema(_ context.Context, token string) (*core.Schema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Tokens = append(f.Tokens, token)
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Schema, nil
}

// FakeCloud is a CloudSyncer recording writes.
type FakeCloud struct {
	mu      sync.Mutex
	Record  *core.CloudSyncRecord
	Err     error
	Rotated *cloudsync.Credentials
	Writes  []core.CloudSyncRecord
}

// SyncToCloud records rec and returns the configured result.
func (f *FakeCloud) SyncToCloud(_ context.Context, creds cloudsync.Credentials, rec core.CloudSyncRecord) (cloudsync.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return creds, f.Err
	}
	f.Writes = append(f.Writes, rec)
	if f.Rotated != nil {
		return *f.Rotated, nil
	}
	return creds, nil
}

// FetchCloudState returns the configured record.
func (f *FakeCloud) FetchCloudState(context.Context, cloudsync.Credentials, string) *core.CloudSyncRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Record
}

// WriteCount returns the number of successful writes.
func (f *FakeCloud) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Writes)
}

// TestFixture holds all dependencies needed for UI handler tests.
type TestFixture struct {
	Engine       *engine.Engine
	Schema       *FakeSchema
	Cloud        *FakeCloud
	Notifier     *notifier.Notifier
	SessionStore *sessions.CookieStore
	Clock        *testutil.Clock
}

// SetupTestFixture creates an in-memory engine wired to fake schema and
// cloud backends. Engine changes ping the fixture notifier.
func SetupTestFixture(t *testing.T) *TestFixture {
	t.Helper()

	f := &TestFixture{
		Schema:       &FakeSchema{Schema: ChainSchema(3)},
		Cloud:        &FakeCloud{},
		Notifier:     notifier.New(),
		SessionStore: NewTestSessionStore(),
		Clock:        testutil.NewClock(),
	}

	eng, err := engine.New(engine.Config{
		StatePath: ":memory:",
		Schema:    f.Schema,
		Cloud:     f.Cloud,
		Clock:     f.Clock.Now,
		OnChange:  f.Notifier.Broadcast,
		Logger:    testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	f.Engine = eng
	return f
}

// ChainSchema returns n tables t0 -> t1 -> ... each with a title property.
func ChainSchema(n int) *core.Schema {
	s := &core.Schema{}
	for i := 0; i < n; i++ {
		id := core.TableID(string(rune('a'+i)) + "-table")
		props := []core.Property{{Name: "Name", Type: "title", Kind: core.KindTitle}}
		if i+1 < n {
			target := core.TableID(string(rune('a'+i+1)) + "-table")
			props = append(props, core.Property{Name: "Next", Type: "relation", Kind: core.KindRelation, RelationTarget: target})
			s.Relations = append(s.Relations, core.RawRelation{Source: id, Target: target, Label: "Next"})
		}
		s.Tables = append(s.Tables, core.RawTable{
			ID:         id,
			Title:      string(rune('A'+i)) + " table",
			Properties: props,
			Color:      palette.ForIndex(i),
		})
	}
	return s
}

// Token mints an HS256 session token for userID signed with TestSecret.
func Token(t *testing.T, userID, plan string, expires time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": expires.Unix(),
	}
	if plan != "" {
		claims["app_metadata"] = map[string]any{"plan": plan}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TestSecret))
	require.NoError(t, err)
	return signed
}

// RequestWithPathParam wraps a request with chi URL params.
func RequestWithPathParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// NewTestSessionStore creates a session store for testing.
func NewTestSessionStore() *sessions.CookieStore {
	return sessions.NewCookieStore([]byte("test-secret-key-32-bytes-long!!"))
}
