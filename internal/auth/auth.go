// Package auth reads the identity carried by a backend session token.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// ErrExpired is returned together with the claims of an expired token, so a
// caller can still identify the user and attempt a refresh.
var ErrExpired = errors.New("session token has expired")

// AppMetadata is the server-controlled part of the claims.
type AppMetadata struct {
	Plan string `json:"plan,omitempty"`
}

// Claims are the session token claims the engine cares about.
type Claims struct {
	Email       string      `json:"email,omitempty"`
	Role        string      `json:"role,omitempty"`
	AppMetadata AppMetadata `json:"app_metadata"`
	jwt.RegisteredClaims
}

// UserID returns the subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// Tier returns the plan tier in the claims, or fallback when absent or unknown.
func (c *Claims) Tier(fallback core.PlanTier) core.PlanTier {
	if c.AppMetadata.Plan == "" {
		return fallback
	}
	tier, err := core.ParsePlanTier(c.AppMetadata.Plan)
	if err != nil {
		return fallback
	}
	return tier
}

// IsExpired reports whether the token has expired at now.
func (c *Claims) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Time.Before(now)
}

// Verifier parses session tokens. With an empty secret it trusts the
// signature and only decodes; the storage backend verifies on every call.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a Verifier. An empty secret disables signature checks.
func NewVerifier(secret string) *Verifier {
	v := &Verifier{now: time.Now}
	if secret != "" {
		v.secret = []byte(secret)
	}
	return v
}

// Parse decodes token and returns its claims. An expired token returns the
// claims and an error wrapping ErrExpired.
func (v *Verifier) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, errors.New("session token is required")
	}

	claims := &Claims{}
	if v.secret == nil {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("failed to parse token: %w", err)
		}
	} else {
		parser := jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(v.now),
		)
		_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
			return v.secret, nil
		})
		if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("failed to parse token: %w", err)
		}
	}

	if claims.Subject == "" {
		return nil, errors.New("session token has no subject")
	}
	if claims.IsExpired(v.now()) {
		return claims, ErrExpired
	}
	return claims, nil
}
