package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/schemagraph/internal/cloudsync"
	"github.com/leapstack-labs/schemagraph/internal/palette"
	"github.com/leapstack-labs/schemagraph/internal/testutil"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

type fakeSchema struct {
	mu     sync.Mutex
	schema *core.Schema
	err    error
	tokens []string
}

func (f *fakeSchema) FetchSchema(_ context.Context, token string) (*core.Schema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, f.err
	}
	return f.schema, nil
}

func (f *fakeSchema) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

type fakeCloud struct {
	mu       sync.Mutex
	record   *core.CloudSyncRecord
	writeErr error
	refresh  *cloudsync.Credentials
	writes   []core.CloudSyncRecord
	reads    int
	gate     chan struct{}
	onWrite  func()
}

func (f *fakeCloud) SyncToCloud(_ context.Context, creds cloudsync.Credentials, rec core.CloudSyncRecord) (cloudsync.Credentials, error) {
	if f.onWrite != nil {
		f.onWrite()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, rec)
	if f.refresh != nil {
		creds = *f.refresh
	}
	return creds, f.writeErr
}

func (f *fakeCloud) FetchCloudState(context.Context, cloudsync.Credentials, string) *core.CloudSyncRecord {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.record
}

func (f *fakeCloud) lastWrite() core.CloudSyncRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[len(f.writes)-1]
}

// realSchema returns n connected tables, each related to the next.
func realSchema(n int) *core.Schema {
	s := &core.Schema{}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("db-%d", i+1)
		props := []core.Property{{Name: "Name", Type: "title", Kind: core.KindTitle}}
		if i+1 < n {
			target := fmt.Sprintf("db-%d", i+2)
			props = append(props, core.Property{Name: "Next", Type: "relation", Kind: core.KindRelation, RelationTarget: target})
			s.Relations = append(s.Relations, core.RawRelation{Source: id, Target: target, Label: "Next"})
		}
		s.Tables = append(s.Tables, core.RawTable{ID: id, Title: id, Properties: props, Color: palette.ForIndex(i)})
	}
	return s
}

type harness struct {
	eng    *Engine
	schema *fakeSchema
	cloud  *fakeCloud
	clock  *testutil.Clock
	events chan string
}

func newHarness(t *testing.T, cloud *fakeCloud) *harness {
	t.Helper()
	h := &harness{
		schema: &fakeSchema{schema: realSchema(5)},
		cloud:  cloud,
		clock:  testutil.NewClock(),
		events: make(chan string, 64),
	}
	cfg := Config{
		StatePath: ":memory:",
		Schema:    h.schema,
		Clock:     h.clock.Now,
		OnChange: func(userID string) {
			select {
			case h.events <- userID:
			default:
			}
		},
		Logger: testutil.NewTestLogger(t),
	}
	if cloud != nil {
		cfg.Cloud = cloud
	}
	eng, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	h.eng = eng
	return h
}

func (h *harness) session(userID string, tier core.PlanTier) *Session {
	return h.eng.Sessions().Session(
		core.SessionContext{UserID: userID, Tier: tier},
		cloudsync.Credentials{AccessToken: "access", RefreshToken: "refresh"},
	)
}

func (h *harness) started(t *testing.T, userID string, tier core.PlanTier) *Session {
	t.Helper()
	s := h.session(userID, tier)
	require.NoError(t, h.eng.Sessions().Start(context.Background(), userID))
	h.clock.Advance(time.Second)
	return s
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }
