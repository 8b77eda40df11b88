package cloudsync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/schemagraph/pkg/core"
)

type fakePrimary struct {
	upsertErr error
	fetchErr  error
	block     bool
	record    *core.CloudSyncRecord
	upserts   int
}

func (f *fakePrimary) Upsert(ctx context.Context, _ core.CloudSyncRecord) error {
	f.upserts++
	if f.block {
		time.Sleep(200 * time.Millisecond)
		return nil
	}
	return f.upsertErr
}

func (f *fakePrimary) Fetch(context.Context, string) (*core.CloudSyncRecord, error) {
	if f.block {
		time.Sleep(200 * time.Millisecond)
	}
	return f.record, f.fetchErr
}

// storage mocks the REST endpoint and the auth refresh endpoint.
type storage struct {
	mu          sync.Mutex
	validToken  string
	writes      []core.CloudSyncRecord
	auths       []string
	refreshes   int
	refreshFail bool
	row         string
}

func (s *storage) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch r.URL.Path {
		case "/auth/v1/token":
			s.refreshes++
			if s.refreshFail {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = io.WriteString(w, `{"access_token":"fresh","refresh_token":"r2"}`)
		case "/rest/v1/user_graph_data":
			auth := r.Header.Get("Authorization")
			s.auths = append(s.auths, auth)
			if auth != "Bearer "+s.validToken {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"message":"JWT expired"}`)
				return
			}
			if r.Method == http.MethodGet {
				_, _ = io.WriteString(w, s.row)
				return
			}
			var rec core.CloudSyncRecord
			if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
				t.Errorf("decode write body: %v", err)
			}
			s.writes = append(s.writes, rec)
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (s *storage) getWrites() []core.CloudSyncRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.CloudSyncRecord(nil), s.writes...)
}

func (s *storage) getAuths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.auths...)
}

func (s *storage) getRefreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

func setupClient(t *testing.T, st *storage, opts ...Option) (*Client, *[]State) {
	t.Helper()
	srv := httptest.NewServer(st.handler(t))
	t.Cleanup(srv.Close)

	var states []State
	base := []Option{
		WithRefresher(NewTokenRefresher(srv.URL, "anon", nil)),
		WithTransitionHook(func(_, to State) { states = append(states, to) }),
		WithTimeouts(50*time.Millisecond, 50*time.Millisecond, 50*time.Millisecond),
	}
	return NewClient(NewREST(srv.URL, "anon", "", nil), append(base, opts...)...), &states
}

func testRecord() core.CloudSyncRecord {
	hide := true
	return core.CloudSyncRecord{
		ID:           "u1",
		Positions:    map[core.TableID]core.Position{"a": {X: 1, Y: 2}},
		CustomColors: map[core.TableID]string{},
		Filters:      []string{"relation"},
		HiddenDBs:    []core.TableID{},
		HideIsolated: &hide,
	}
}

func TestSyncToCloud_PrimarySuccess(t *testing.T) {
	st := &storage{validToken: "t"}
	primary := &fakePrimary{}
	c, states := setupClient(t, st, WithPrimary(primary))

	_, err := c.SyncToCloud(context.Background(), Credentials{AccessToken: "t"}, testRecord())
	require.NoError(t, err)

	assert.Equal(t, 1, primary.upserts)
	assert.Empty(t, st.getWrites())
	assert.Equal(t, []State{StateDone}, *states)
}

func TestSyncToCloud_FallbackOnPrimaryError(t *testing.T) {
	st := &storage{validToken: "t"}
	c, states := setupClient(t, st, WithPrimary(&fakePrimary{upsertErr: assert.AnError}))

	rec := testRecord()
	_, err := c.SyncToCloud(context.Background(), Credentials{AccessToken: "t"}, rec)
	require.NoError(t, err)

	require.Len(t, st.getWrites(), 1)
	assert.Equal(t, rec.Positions, st.getWrites()[0].Positions)
	assert.Equal(t, rec.Filters, st.getWrites()[0].Filters)
	assert.Equal(t, []string{"Bearer t"}, st.getAuths())
	assert.Equal(t, []State{StateREST, StateDone}, *states)
}

func TestSyncToCloud_FallbackOnPrimaryTimeout(t *testing.T) {
	st := &storage{validToken: "t"}
	c, states := setupClient(t, st, WithPrimary(&fakePrimary{block: true}))

	_, err := c.SyncToCloud(context.Background(), Credentials{AccessToken: "t"}, testRecord())
	require.NoError(t, err)

	assert.Len(t, st.getWrites(), 1)
	assert.Equal(t, []State{StateREST, StateDone}, *states)
}

func TestSyncToCloud_RefreshAndRetry(t *testing.T) {
	st := &storage{validToken: "fresh"}
	c, states := setupClient(t, st)

	creds, err := c.SyncToCloud(context.Background(), Credentials{AccessToken: "stale", RefreshToken: "r1"}, testRecord())
	require.NoError(t, err)

	assert.Equal(t, Credentials{AccessToken: "fresh", RefreshToken: "r2"}, creds)
	assert.Equal(t, 1, st.getRefreshes())
	assert.Equal(t, []string{"Bearer stale", "Bearer fresh"}, st.getAuths())
	assert.Equal(t, []State{StateREST, StateRefresh, StateRESTRetry, StateDone}, *states)
}

func TestSyncToCloud_RefreshFails(t *testing.T) {
	st := &storage{validToken: "fresh", refreshFail: true}
	c, states := setupClient(t, st)

	_, err := c.SyncToCloud(context.Background(), Credentials{AccessToken: "stale", RefreshToken: "r1"}, testRecord())
	require.Error(t, err)

	assert.ErrorIs(t, err, core.ErrSessionExpired)
	assert.Contains(t, err.Error(), core.SessionExpiredMessage)
	assert.Empty(t, st.getWrites())
	assert.Equal(t, []State{StateREST, StateRefresh, StateFailed}, *states)
}

func TestSyncToCloud_RetryStillExpired(t *testing.T) {
	st := &storage{validToken: "never"}
	c, states := setupClient(t, st)

	_, err := c.SyncToCloud(context.Background(), Credentials{AccessToken: "stale", RefreshToken: "r1"}, testRecord())
	assert.ErrorIs(t, err, core.ErrSessionExpired)

	// exactly one refresh and one retry
	assert.Equal(t, 1, st.getRefreshes())
	assert.Len(t, st.getAuths(), 2)
	assert.Equal(t, []State{StateREST, StateRefresh, StateRESTRetry, StateFailed}, *states)
}

func TestSyncToCloud_NoRefreshToken(t *testing.T) {
	st := &storage{validToken: "fresh"}
	c, _ := setupClient(t, st)

	_, err := c.SyncToCloud(context.Background(), Credentials{AccessToken: "stale"}, testRecord())
	assert.ErrorIs(t, err, core.ErrSessionExpired)
	assert.Equal(t, 0, st.getRefreshes())
}

func TestSyncToCloud_OtherFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, "duplicate")
	}))
	defer srv.Close()

	c := NewClient(NewREST(srv.URL, "anon", "", nil))
	_, err := c.SyncToCloud(context.Background(), Credentials{AccessToken: "t"}, testRecord())

	var se *core.SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, core.KindSyncFailed, se.Kind)
	assert.Equal(t, http.StatusConflict, se.Status)
	assert.Equal(t, "duplicate", se.Message)
}

func TestSyncToCloud_RequiresUserID(t *testing.T) {
	c := NewClient(NewREST("http://unused", "", "", nil))
	_, err := c.SyncToCloud(context.Background(), Credentials{}, core.CloudSyncRecord{})
	assert.ErrorIs(t, err, core.ErrSyncFailed)
}

func TestFetchCloudState(t *testing.T) {
	row := `[{"id":"u1","filters":["date"]}]`

	t.Run("primary", func(t *testing.T) {
		want := &core.CloudSyncRecord{ID: "u1"}
		c, _ := setupClient(t, &storage{validToken: "t", row: row}, WithPrimary(&fakePrimary{record: want}))
		assert.Same(t, want, c.FetchCloudState(context.Background(), Credentials{AccessToken: "t"}, "u1"))
	})

	t.Run("primary has no row", func(t *testing.T) {
		c, _ := setupClient(t, &storage{validToken: "t", row: row}, WithPrimary(&fakePrimary{}))
		assert.Nil(t, c.FetchCloudState(context.Background(), Credentials{AccessToken: "t"}, "u1"))
	})

	t.Run("fallback on primary error", func(t *testing.T) {
		c, _ := setupClient(t, &storage{validToken: "t", row: row}, WithPrimary(&fakePrimary{fetchErr: assert.AnError}))
		rec := c.FetchCloudState(context.Background(), Credentials{AccessToken: "t"}, "u1")
		require.NotNil(t, rec)
		assert.Equal(t, []string{"date"}, rec.Filters)
	})

	t.Run("fallback on primary timeout", func(t *testing.T) {
		c, _ := setupClient(t, &storage{validToken: "t", row: row}, WithPrimary(&fakePrimary{block: true}))
		rec := c.FetchCloudState(context.Background(), Credentials{AccessToken: "t"}, "u1")
		require.NotNil(t, rec)
	})

	t.Run("everything fails degrades to nil", func(t *testing.T) {
		c, _ := setupClient(t, &storage{validToken: "other", row: row}, WithPrimary(&fakePrimary{fetchErr: assert.AnError}))
		assert.Nil(t, c.FetchCloudState(context.Background(), Credentials{AccessToken: "t"}, "u1"))
	})
}

func TestMetrics_RecordTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	st := &storage{validToken: "fresh"}
	c, _ := setupClient(t, st, WithMetrics(m))

	_, err := c.SyncToCloud(context.Background(), Credentials{AccessToken: "stale", RefreshToken: "r"}, testRecord())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("rest", "refresh")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Refreshes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attempts.WithLabelValues("write", "rest", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attempts.WithLabelValues("write", "rest", "ok")))
}
