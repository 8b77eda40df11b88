package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/schemagraph/internal/engine"
	"github.com/leapstack-labs/schemagraph/internal/testutil"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"invalid credential", &core.SyncError{Kind: core.KindInvalidCredential, Status: 401}, http.StatusUnauthorized, "invalid_credential"},
		{"session expired", fmt.Errorf("save: %w", &core.SyncError{Kind: core.KindSessionExpired}), http.StatusUnauthorized, "session_expired"},
		{"network", core.NewNetworkError(errors.New("dial tcp")), http.StatusServiceUnavailable, "network_error"},
		{"sync failed", core.NewSyncFailed(500, "boom"), http.StatusBadGateway, "sync_failed"},
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{"bad request", fmt.Errorf("%w: empty", ErrBadRequest), http.StatusBadRequest, "bad_request"},
		{"not ready", core.ErrSessionNotReady, http.StatusConflict, "not_ready"},
		{"no provider", engine.ErrNoSchemaProvider, http.StatusNotImplemented, "no_provider"},
		{"other", errors.New("disk full"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, kind := StatusFor(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestWriteError(t *testing.T) {
	t.Run("uses the user-facing message", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, nil, &core.SyncError{Kind: core.KindSessionExpired, Status: 401, Message: core.SessionExpiredMessage})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var body ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, core.SessionExpiredMessage, body.Error)
		assert.Equal(t, "session_expired", body.Kind)
	})

	t.Run("masks internal errors", func(t *testing.T) {
		logger, logs := testutil.NewCaptureLogger()
		rec := httptest.NewRecorder()
		WriteError(rec, logger, errors.New("secret path /var/lib"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "/var/lib")
		assert.True(t, logs.Contains("/var/lib"), "the masked error is still logged")
	})
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Token string `json:"token"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"token":"abc"}`))
	require.NoError(t, DecodeJSON(req, &v))
	assert.Equal(t, "abc", v.Token)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	err := DecodeJSON(req, &v)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadRequest)
}
