package cloudsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// errTokenExpired marks a 401 whose body says the bearer token expired.
var errTokenExpired = errors.New("session token expired")

// maxErrorBody caps how much of an error response is kept for diagnosis.
const maxErrorBody = 4 << 10

// REST is the storage REST endpoint used as the write/read fallback.
type REST struct {
	baseURL string
	anonKey string
	table   string
	client  *http.Client
}

// NewREST creates a REST client for baseURL. A nil httpClient means
// http.DefaultClient; an empty table means DefaultTable.
func NewREST(baseURL, anonKey, table string, httpClient *http.Client) *REST {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if table == "" {
		table = DefaultTable
	}
	return &REST{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		table:   table,
		client:  httpClient,
	}
}

func (r *REST) endpoint() string {
	return r.baseURL + "/rest/v1/" + r.table
}

// bearer falls back to the anonymous key when there is no session token.
func (r *REST) bearer(sessionToken string) string {
	if sessionToken != "" {
		return sessionToken
	}
	return r.anonKey
}

func (r *REST) setHeaders(req *http.Request, sessionToken string) {
	req.Header.Set("Authorization", "Bearer "+r.bearer(sessionToken))
	if r.anonKey != "" {
		req.Header.Set("apikey", r.anonKey)
	}
	req.Header.Set("Accept", "application/json")
}

// Write upserts rec with merge-duplicates semantics.
func (r *REST) Write(ctx context.Context, sessionToken string, rec core.CloudSyncRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode cloud record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build cloud write request: %w", err)
	}
	r.setHeaders(req, sessionToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates")

	resp, err := r.client.Do(req)
	if err != nil {
		return core.NewNetworkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return responseError(resp)
}

// Read fetches the user's row, or nil when none exists.
func (r *REST) Read(ctx context.Context, sessionToken, userID string) (*core.CloudSyncRecord, error) {
	q := url.Values{}
	q.Set("id", "eq."+userID)
	q.Set("select", core.CloudColumns)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint()+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build cloud read request: %w", err)
	}
	r.setHeaders(req, sessionToken)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, core.NewNetworkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp)
	}

	var rows []core.CloudSyncRecord
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, core.NewSyncFailed(resp.StatusCode, "malformed cloud response: "+err.Error())
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	body := strings.TrimSpace(string(raw))
	if resp.StatusCode == http.StatusUnauthorized && strings.Contains(strings.ToLower(body), "expired") {
		return fmt.Errorf("%w: %s", errTokenExpired, body)
	}
	return core.NewSyncFailed(resp.StatusCode, body)
}
