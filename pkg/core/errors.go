package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the schema adapter and the cloud
// sync client. The caller decides how to present each kind.
type ErrorKind int

// Error kinds.
const (
	// KindSyncFailed means the server rejected the request for a reason other
	// than credentials. Status and Message carry the raw diagnosis.
	KindSyncFailed ErrorKind = iota
	// KindInvalidCredential means the provider token is bad or expired and
	// the user must re-enter it.
	KindInvalidCredential
	// KindSessionExpired means the backend session is stale and the user must
	// sign in again.
	KindSessionExpired
	// KindNetwork is a transient transport failure. Safe to retry manually.
	KindNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidCredential:
		return "invalid_credential"
	case KindSessionExpired:
		return "session_expired"
	case KindNetwork:
		return "network_error"
	default:
		return "sync_failed"
	}
}

// SyncError is the single error type for classified failures.
type SyncError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *SyncError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *SyncError) Unwrap() error { return e.Err }

// Is matches another *SyncError by kind, so the sentinels below work with errors.Is.
func (e *SyncError) Is(target error) bool {
	var t *SyncError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Status == 0 && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is. They match any SyncError of the same kind.
var (
	ErrInvalidCredential = &SyncError{Kind: KindInvalidCredential}
	ErrSessionExpired    = &SyncError{Kind: KindSessionExpired}
	ErrNetwork           = &SyncError{Kind: KindNetwork}
	ErrSyncFailed        = &SyncError{Kind: KindSyncFailed}
)

// ErrSessionNotReady is returned by session mutators before the initial load completes.
var ErrSessionNotReady = errors.New("session is still loading")

// SessionExpiredMessage is the user-facing text for KindSessionExpired.
const SessionExpiredMessage = "Your session has expired. Please sign in again."

// InvalidCredentialMessage is the user-facing text for KindInvalidCredential.
const InvalidCredentialMessage = "The workspace token is invalid or has been revoked. Please reconnect your workspace."

// NewSyncFailed builds a KindSyncFailed error carrying status and body.
func NewSyncFailed(status int, message string) *SyncError {
	return &SyncError{Kind: KindSyncFailed, Status: status, Message: message}
}

// NewNetworkError wraps a transport error.
func NewNetworkError(err error) *SyncError {
	return &SyncError{Kind: KindNetwork, Err: err}
}

// KindOf returns the kind of the first SyncError in err's chain.
// The boolean is false when err carries no classification.
func KindOf(err error) (ErrorKind, bool) {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}
