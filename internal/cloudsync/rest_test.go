package cloudsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/schemagraph/pkg/core"
)

func TestREST_WriteHeadersAndBody(t *testing.T) {
	var got *http.Request
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	rest := NewREST(srv.URL+"/", "anon", "", nil)
	err := rest.Write(context.Background(), "session-jwt", core.CloudSyncRecord{ID: "u1", Filters: []string{"title"}})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/rest/v1/user_graph_data", got.URL.Path)
	assert.Equal(t, "Bearer session-jwt", got.Header.Get("Authorization"))
	assert.Equal(t, "anon", got.Header.Get("apikey"))
	assert.Equal(t, "resolution=merge-duplicates", got.Header.Get("Prefer"))

	var rec core.CloudSyncRecord
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.Equal(t, "u1", rec.ID)
	assert.Equal(t, []string{"title"}, rec.Filters)
}

func TestREST_AnonKeyWithoutSession(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	require.NoError(t, NewREST(srv.URL, "anon", "", nil).Write(context.Background(), "", core.CloudSyncRecord{ID: "u1"}))
	assert.Equal(t, "Bearer anon", auth)
}

func TestREST_WriteErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		expired    bool
		kind       core.ErrorKind
		wantStatus int
	}{
		{name: "expired jwt", status: 401, body: `{"code":"PGRST301","message":"JWT expired"}`, expired: true},
		{name: "plain unauthorized", status: 401, body: `{"message":"invalid key"}`, kind: core.KindSyncFailed, wantStatus: 401},
		{name: "server error", status: 500, body: "boom", kind: core.KindSyncFailed, wantStatus: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			err := NewREST(srv.URL, "anon", "", nil).Write(context.Background(), "t", core.CloudSyncRecord{ID: "u1"})
			require.Error(t, err)
			if tt.expired {
				assert.ErrorIs(t, err, errTokenExpired)
				return
			}
			var se *core.SyncError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.kind, se.Kind)
			assert.Equal(t, tt.wantStatus, se.Status)
			assert.Equal(t, tt.body, se.Message)
		})
	}
}

func TestREST_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewREST(url, "", "", nil).Write(context.Background(), "t", core.CloudSyncRecord{ID: "u1"})
	assert.ErrorIs(t, err, core.ErrNetwork)
}

func TestREST_Read(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		if r.URL.Query().Get("id") == "eq.missing" {
			_, _ = io.WriteString(w, `[]`)
			return
		}
		_, _ = io.WriteString(w, `[{"id":"u1","filters":["select"],"hide_isolated":true,"notion_token":null}]`)
	}))
	defer srv.Close()

	rest := NewREST(srv.URL, "anon", "", nil)

	rec, err := rest.Read(context.Background(), "t", "u1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"select"}, rec.Filters)
	require.NotNil(t, rec.HideIsolated)
	assert.True(t, *rec.HideIsolated)
	assert.Nil(t, rec.NotionToken)
	assert.Nil(t, rec.Positions)
	assert.Contains(t, query, "select=id%2Cpositions%2Ccustom_colors")

	rec, err = rest.Read(context.Background(), "t", "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestTokenRefresher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["refresh_token"] != "good" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"new-access","refresh_token":"new-refresh"}`)
	}))
	defer srv.Close()

	r := NewTokenRefresher(srv.URL, "anon", nil)

	creds, err := r.Refresh(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, Credentials{AccessToken: "new-access", RefreshToken: "new-refresh"}, creds)

	_, err = r.Refresh(context.Background(), "bad")
	assert.ErrorIs(t, err, core.ErrSyncFailed)

	_, err = r.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}
