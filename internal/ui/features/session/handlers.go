// Package session provides sign-in and the authentication middleware.
//
// Backend tokens live in an encrypted cookie. Each request resolves its
// token to a user id, refreshing an expired token once when a refresh token
// is available, and attaches that user's started engine session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"

	"github.com/leapstack-labs/schemagraph/internal/auth"
	"github.com/leapstack-labs/schemagraph/internal/cloudsync"
	"github.com/leapstack-labs/schemagraph/internal/engine"
	"github.com/leapstack-labs/schemagraph/internal/ui/features/common"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// CookieName is the gorilla session holding backend tokens.
const CookieName = "schemagraph"

const (
	accessKey  = "access_token"
	refreshKey = "refresh_token"
)

type sessionKey struct{}

// Handlers provides HTTP handlers for the session feature.
type Handlers struct {
	engine       *engine.Engine
	sessionStore sessions.Store
	verifier     *auth.Verifier
	refresher    cloudsync.Refresher
	tier         core.PlanTier
	logger       *slog.Logger
}

// NewHandlers creates a new Handlers instance. tier applies to tokens that
// carry no plan claim. refresher may be nil.
func NewHandlers(
	eng *engine.Engine,
	sessionStore sessions.Store,
	verifier *auth.Verifier,
	refresher cloudsync.Refresher,
	tier core.PlanTier,
	logger *slog.Logger,
) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if verifier == nil {
		verifier = auth.NewVerifier("")
	}
	return &Handlers{
		engine:       eng,
		sessionStore: sessionStore,
		verifier:     verifier,
		refresher:    refresher,
		tier:         tier,
		logger:       logger,
	}
}

// FromContext returns the engine session attached by Middleware.
func FromContext(ctx context.Context) (*engine.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*engine.Session)
	return s, ok
}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *engine.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// Middleware rejects requests without a valid session and attaches the
// user's engine session to the request context.
func (h *Handlers) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds := h.credentials(r)
		if creds.AccessToken == "" {
			common.WriteError(w, h.logger, common.ErrUnauthenticated)
			return
		}
		sess, err := h.open(w, r, creds)
		if err != nil {
			common.WriteError(w, h.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

type signInRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// SignIn stores the posted tokens and starts the user's session.
func (h *Handlers) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	if req.AccessToken == "" {
		common.WriteError(w, h.logger, fmt.Errorf("%w: accessToken is required", common.ErrBadRequest))
		return
	}

	creds := cloudsync.Credentials{AccessToken: req.AccessToken, RefreshToken: req.RefreshToken}
	if err := h.Remember(w, r, creds); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	sess, err := h.open(w, r, creds)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, sess.Status())
}

// Current returns the status of the signed-in session.
func (h *Handlers) Current(w http.ResponseWriter, r *http.Request) {
	sess, _ := FromContext(r.Context())
	common.WriteJSON(w, http.StatusOK, sess.Status())
}

// SignOut drops the cookie and the in-memory session. Unsaved changes are
// kept in the local store only.
func (h *Handlers) SignOut(w http.ResponseWriter, r *http.Request) {
	creds := h.credentials(r)
	if creds.AccessToken != "" {
		if claims, err := h.verifier.Parse(creds.AccessToken); claims != nil && (err == nil || errors.Is(err, auth.ErrExpired)) {
			h.engine.Sessions().Remove(claims.UserID())
		}
	}

	cookie, _ := h.sessionStore.Get(r, CookieName)
	if cookie != nil {
		delete(cookie.Values, accessKey)
		delete(cookie.Values, refreshKey)
		cookie.Options.MaxAge = -1
		if err := cookie.Save(r, w); err != nil {
			h.logger.Warn("failed to clear session cookie", slog.String("error", err.Error()))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Remember writes creds to the session cookie. A bearer-authenticated
// request has no cookie to update and is left alone.
func (h *Handlers) Remember(w http.ResponseWriter, r *http.Request, creds cloudsync.Credentials) error {
	if bearer(r) != "" {
		return nil
	}
	cookie, err := h.sessionStore.Get(r, CookieName)
	if err != nil && cookie == nil {
		return fmt.Errorf("failed to load session cookie: %w", err)
	}
	cookie.Values[accessKey] = creds.AccessToken
	cookie.Values[refreshKey] = creds.RefreshToken
	if err := cookie.Save(r, w); err != nil {
		return fmt.Errorf("failed to save session cookie: %w", err)
	}
	return nil
}

// credentials reads tokens from the Authorization header or the cookie.
func (h *Handlers) credentials(r *http.Request) cloudsync.Credentials {
	if tok := bearer(r); tok != "" {
		return cloudsync.Credentials{AccessToken: tok}
	}
	cookie, err := h.sessionStore.Get(r, CookieName)
	if err != nil || cookie == nil {
		return cloudsync.Credentials{}
	}
	access, _ := cookie.Values[accessKey].(string)
	refresh, _ := cookie.Values[refreshKey].(string)
	return cloudsync.Credentials{AccessToken: access, RefreshToken: refresh}
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// open verifies creds, refreshing once if expired, then returns the user's
// started session.
func (h *Handlers) open(w http.ResponseWriter, r *http.Request, creds cloudsync.Credentials) (*engine.Session, error) {
	ctx := r.Context()

	claims, err := h.verifier.Parse(creds.AccessToken)
	if errors.Is(err, auth.ErrExpired) {
		creds, claims, err = h.refresh(ctx, creds)
		if err == nil {
			if rerr := h.Remember(w, r, creds); rerr != nil {
				h.logger.Warn("failed to store refreshed tokens", slog.String("error", rerr.Error()))
			}
		}
	} else if err != nil {
		err = fmt.Errorf("%w: %v", common.ErrUnauthenticated, err)
	}
	if err != nil {
		return nil, err
	}

	userID := claims.UserID()
	sess := h.engine.Sessions().Session(core.SessionContext{
		UserID: userID,
		Tier:   claims.Tier(h.tier),
	}, creds)
	if err := h.engine.Sessions().Start(ctx, userID); err != nil {
		// A failed schema resume leaves the session usable; it shows in Status.
		if _, classified := core.KindOf(err); !classified {
			return nil, err
		}
		h.logger.Warn("session resume failed", slog.String("user_id", userID), slog.String("error", err.Error()))
	}
	return sess, nil
}

func (h *Handlers) refresh(ctx context.Context, creds cloudsync.Credentials) (cloudsync.Credentials, *auth.Claims, error) {
	if h.refresher == nil || creds.RefreshToken == "" {
		return creds, nil, sessionExpired(nil)
	}
	next, err := h.refresher.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		h.logger.Info("token refresh failed", slog.String("error", err.Error()))
		return creds, nil, sessionExpired(err)
	}
	claims, err := h.verifier.Parse(next.AccessToken)
	if err != nil {
		return creds, nil, sessionExpired(err)
	}
	return next, claims, nil
}

func sessionExpired(err error) error {
	return &core.SyncError{
		Kind:    core.KindSessionExpired,
		Status:  http.StatusUnauthorized,
		Message: core.SessionExpiredMessage,
		Err:     err,
	}
}
