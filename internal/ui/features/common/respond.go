// Package common provides response helpers shared by the UI features.
package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/leapstack-labs/schemagraph/internal/engine"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// maxBodyBytes bounds request bodies decoded by DecodeJSON.
const maxBodyBytes = 1 << 20

// ErrUnauthenticated means the request carries no usable session token.
var ErrUnauthenticated = errors.New("not signed in")

// ErrBadRequest marks malformed request input.
var ErrBadRequest = errors.New("bad request")

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a JSON request body into v.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// StatusFor maps an error to its HTTP status and kind label.
func StatusFor(err error) (int, string) {
	if kind, ok := core.KindOf(err); ok {
		switch kind {
		case core.KindInvalidCredential, core.KindSessionExpired:
			return http.StatusUnauthorized, kind.String()
		case core.KindNetwork:
			return http.StatusServiceUnavailable, kind.String()
		default:
			return http.StatusBadGateway, kind.String()
		}
	}
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, core.ErrSessionNotReady):
		return http.StatusConflict, "not_ready"
	case errors.Is(err, engine.ErrNoSchemaProvider):
		return http.StatusNotImplemented, "no_provider"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// WriteError writes err as an ErrorResponse. Classified errors carry their
// user-facing message; internal errors are logged and masked.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, kind := StatusFor(err)
	msg := err.Error()

	var se *core.SyncError
	if errors.As(err, &se) && se.Message != "" {
		msg = se.Message
	}
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed", slog.String("error", err.Error()))
		}
		msg = http.StatusText(status)
	}
	WriteJSON(w, status, ErrorResponse{Error: msg, Kind: kind})
}
