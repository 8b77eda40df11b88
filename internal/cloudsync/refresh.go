package cloudsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// Credentials are the backend session tokens of one user.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Refresher exchanges a refresh token for a fresh session.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Credentials, error)
}

// ErrNoRefreshToken is returned when a refresh is needed but none is stored.
var ErrNoRefreshToken = errors.New("no refresh token available")

// TokenRefresher calls the auth service's refresh-token grant.
type TokenRefresher struct {
	baseURL string
	anonKey string
	client  *http.Client
}

// NewTokenRefresher creates a refresher. A nil httpClient means http.DefaultClient.
func NewTokenRefresher(baseURL, anonKey string, httpClient *http.Client) *TokenRefresher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenRefresher{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		client:  httpClient,
	}
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Refresh implements Refresher.
func (t *TokenRefresher) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	if refreshToken == "" {
		return Credentials{}, ErrNoRefreshToken
	}

	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return Credentials{}, fmt.Errorf("encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/auth/v1/token?grant_type=refresh_token", bytes.NewReader(body))
	if err != nil {
		return Credentials{}, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.anonKey != "" {
		req.Header.Set("apikey", t.anonKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return Credentials{}, core.NewNetworkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Credentials{}, responseError(resp)
	}

	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Credentials{}, fmt.Errorf("decode refresh response: %w", err)
	}
	if out.AccessToken == "" {
		return Credentials{}, errors.New("refresh response carried no access token")
	}
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return Credentials{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}, nil
}
