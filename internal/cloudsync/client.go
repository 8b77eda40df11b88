// Package cloudsync mirrors a user's graph customizations to a remote row.
//
// Writes run a small state machine:
//
//	primary -> rest -> refresh -> rest_retry
//
// The primary path is optional. A 401 carrying an "expired" signal from the
// REST path triggers exactly one session refresh and one retry; any failure
// after that surfaces core.ErrSessionExpired. Reads try the same two paths
// and degrade to nil instead of failing.
package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// Default timeouts for each network suspension point.
const (
	DefaultWriteTimeout   = 4 * time.Second
	DefaultReadTimeout    = 3 * time.Second
	DefaultRefreshTimeout = 3 * time.Second
)

// State is a step of the write state machine.
type State int

// Write states.
const (
	StatePrimary State = iota
	StateREST
	StateRefresh
	StateRESTRetry
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePrimary:
		return "primary"
	case StateREST:
		return "rest"
	case StateRefresh:
		return "refresh"
	case StateRESTRetry:
		return "rest_retry"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Client is the cloud sync client shared by all sessions.
type Client struct {
	primary        Primary
	rest           *REST
	refresher      Refresher
	metrics        *Metrics
	logger         *slog.Logger
	writeTimeout   time.Duration
	readTimeout    time.Duration
	refreshTimeout time.Duration
	onTransition   func(from, to State)
}

// Option configures a Client.
type Option func(*Client)

// WithPrimary sets the managed path tried before REST.
func WithPrimary(p Primary) Option {
	return func(c *Client) { c.primary = p }
}

// WithRefresher sets the session refresher used after an expired-token 401.
func WithRefresher(r Refresher) Option {
	return func(c *Client) { c.refresher = r }
}

// WithMetrics records attempts and transitions.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTimeouts overrides the default timeouts. Zero keeps the default.
func WithTimeouts(write, read, refresh time.Duration) Option {
	return func(c *Client) {
		if write > 0 {
			c.writeTimeout = write
		}
		if read > 0 {
			c.readTimeout = read
		}
		if refresh > 0 {
			c.refreshTimeout = refresh
		}
	}
}

// WithTransitionHook is called on every write state change.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(c *Client) { c.onTransition = fn }
}

// NewClient creates a Client around the REST fallback.
func NewClient(rest *REST, opts ...Option) *Client {
	c := &Client{
		rest:           rest,
		logger:         slog.New(slog.DiscardHandler),
		writeTimeout:   DefaultWriteTimeout,
		readTimeout:    DefaultReadTimeout,
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SyncToCloud writes the complete record for rec.ID. It returns the
// credentials to keep using, which differ from creds after a refresh.
func (c *Client) SyncToCloud(ctx context.Context, creds Credentials, rec core.CloudSyncRecord) (Credentials, error) {
	if rec.ID == "" {
		return creds, core.NewSyncFailed(0, "cloud record has no user id")
	}

	w := &write{c: c, creds: creds, rec: rec}
	state := StatePrimary
	for state != StateDone && state != StateFailed {
		next := w.step(ctx, state)
		c.metrics.transition(state, next)
		if c.onTransition != nil {
			c.onTransition(state, next)
		}
		state = next
	}

	if w.err != nil {
		c.logger.Warn("cloud sync failed",
			slog.String("user_id", rec.ID),
			slog.String("kind", kindLabel(w.err)),
			slog.String("error", w.err.Error()))
		return w.creds, w.err
	}
	c.logger.Debug("cloud sync complete", slog.String("user_id", rec.ID))
	return w.creds, nil
}

// write carries one SyncToCloud call through the state machine.
type write struct {
	c     *Client
	creds Credentials
	rec   core.CloudSyncRecord
	err   error
}

func (w *write) step(ctx context.Context, s State) State {
	c := w.c
	switch s {
	case StatePrimary:
		if c.primary == nil {
			return StateREST
		}
		err := c.timed(ctx, c.writeTimeout, "write", "primary", func(ctx context.Context) error {
			return c.primary.Upsert(ctx, w.rec)
		})
		if err == nil {
			return StateDone
		}
		c.logger.Warn("primary cloud write failed, falling back to REST",
			slog.String("user_id", w.rec.ID), slog.String("error", err.Error()))
		return StateREST

	case StateREST:
		err := c.restWrite(ctx, w.creds.AccessToken, w.rec)
		switch {
		case err == nil:
			return StateDone
		case errors.Is(err, errTokenExpired):
			return StateRefresh
		default:
			w.err = err
			return StateFailed
		}

	case StateRefresh:
		if c.refresher == nil {
			w.err = sessionExpired(errTokenExpired)
			return StateFailed
		}
		rctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
		creds, err := c.refresher.Refresh(rctx, w.creds.RefreshToken)
		cancel()
		c.metrics.refresh(err)
		if err != nil {
			w.err = sessionExpired(err)
			return StateFailed
		}
		w.creds = creds
		return StateRESTRetry

	case StateRESTRetry:
		if err := c.restWrite(ctx, w.creds.AccessToken, w.rec); err != nil {
			w.err = sessionExpired(err)
			return StateFailed
		}
		return StateDone
	}
	return StateFailed
}

func (c *Client) restWrite(ctx context.Context, token string, rec core.CloudSyncRecord) error {
	return c.timed(ctx, c.writeTimeout, "write", "rest", func(ctx context.Context) error {
		return c.rest.Write(ctx, token, rec)
	})
}

// FetchCloudState reads the user's row. It never fails: any error on both
// paths is logged and reported as nil.
func (c *Client) FetchCloudState(ctx context.Context, creds Credentials, userID string) *core.CloudSyncRecord {
	if userID == "" {
		return nil
	}

	if c.primary != nil {
		var rec *core.CloudSyncRecord
		err := c.timed(ctx, c.readTimeout, "read", "primary", func(ctx context.Context) error {
			var err error
			rec, err = c.primary.Fetch(ctx, userID)
			return err
		})
		if err == nil {
			return rec
		}
		c.logger.Warn("primary cloud read failed, falling back to REST",
			slog.String("user_id", userID), slog.String("error", err.Error()))
	}

	var rec *core.CloudSyncRecord
	err := c.timed(ctx, c.readTimeout, "read", "rest", func(ctx context.Context) error {
		var err error
		rec, err = c.rest.Read(ctx, creds.AccessToken, userID)
		return err
	})
	if err != nil {
		c.logger.Warn("cloud read failed, continuing without cloud state",
			slog.String("user_id", userID), slog.String("error", err.Error()))
		return nil
	}
	return rec
}

// timed races fn against a timeout and records the outcome. A call that
// outlives the deadline is abandoned and reported as a network error, so
// callers take the fallback path even if fn ignores its context.
func (c *Client) timed(ctx context.Context, d time.Duration, op, path string, fn func(context.Context) error) error {
	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(tctx) }()

	var err error
	select {
	case err = <-done:
	case <-tctx.Done():
		err = core.NewNetworkError(fmt.Errorf("%s via %s: %w", op, path, tctx.Err()))
	}
	c.metrics.observe(op, path, start, err)
	return err
}

func sessionExpired(cause error) error {
	return &core.SyncError{
		Kind:    core.KindSessionExpired,
		Status:  401,
		Message: core.SessionExpiredMessage,
		Err:     cause,
	}
}

func kindLabel(err error) string {
	if k, ok := core.KindOf(err); ok {
		return k.String()
	}
	return "unclassified"
}
