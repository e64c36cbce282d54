// Package irm provides a Go client for Grafana IRM-compatible incident
// APIs.
//
// Auth: a service account bearer token, supplied by the caller.
// Requests are POST JSON against the IRM app resource endpoints
// (IncidentsService.*, ActivityService.*) with cursor pagination.
package irm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

const (
	apiBase = "/api/plugins/grafana-irm-app/resources/api/v1/"

	endpointQueryPreviews = "IncidentsService.QueryIncidentPreviews"
	endpointGetIncident   = "IncidentsService.GetIncident"
	endpointQueryActivity = "ActivityService.QueryActivity"

	defaultPageLimit = 100

	// MarkerEmpty is the probe result when a query matches no records.
	MarkerEmpty = "empty"
)

// Client is an incident API client with bounded retries.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Retry      RetryPolicy
	Logger     *slog.Logger

	token string
	calls atomic.Int64
}

// New creates a client for the given instance URL and service account
// token.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Retry:      DefaultRetryPolicy(),
		Logger:     slog.Default(),
		token:      token,
	}
}

// Calls returns how many HTTP requests this client has issued.
func (c *Client) Calls() int64 { return c.calls.Load() }

// FetchRaw returns every raw incident record matching q, following the
// upstream cursor until it reports no further pages. Records are
// concatenated in the order the upstream returned them, so cached
// payloads replay identically.
func (c *Client) FetchRaw(ctx context.Context, q Query) ([]json.RawMessage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	req := previewRequest{
		Query: previewQuery{
			Limit:          limit,
			OrderDirection: "DESC",
			OrderBy:        "createdAt",
			Statuses:       q.Statuses,
		},
		IncludeMembershipPreview: true,
	}
	if !q.DateFrom.IsZero() {
		req.Query.DateFrom = q.DateFrom.UTC().Format(time.RFC3339)
	}
	if !q.DateTo.IsZero() {
		req.Query.DateTo = q.DateTo.UTC().Format(time.RFC3339)
	}

	var all []json.RawMessage
	pages := 0
	for {
		data, err := c.post(ctx, endpointQueryPreviews, req)
		if err != nil {
			return nil, err
		}
		var resp previewResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("parse previews response: %w", err)
		}
		all = append(all, resp.records()...)
		pages++

		if !resp.Cursor.HasMore || resp.Cursor.NextValue == "" {
			break
		}
		req.Cursor = &pageCursor{NextValue: resp.Cursor.NextValue}
	}
	if pages > 1 {
		c.Logger.Debug("paginated incident fetch", "records", len(all), "pages", pages)
	}
	return all, nil
}

// FetchIncidents fetches and normalizes in one step for callers that
// bypass the cache. The int is the dropped-record count.
func (c *Client) FetchIncidents(ctx context.Context, q Query, slaDays map[string]int) ([]Incident, int, error) {
	records, err := c.FetchRaw(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	incidents, dropped := Normalize(records, slaDays, c.Logger)
	return incidents, dropped, nil
}

// CurrentMarker probes the newest modification stamp for q using a
// single one-record page ordered by modifiedAt. The disk cache compares
// this against its stored marker to detect staleness without a full
// fetch. Returns MarkerEmpty when nothing matches the query.
func (c *Client) CurrentMarker(ctx context.Context, q Query) (string, error) {
	req := previewRequest{
		Query: previewQuery{
			Limit:          1,
			OrderDirection: "DESC",
			OrderBy:        "modifiedAt",
			Statuses:       q.Statuses,
		},
	}
	if !q.DateFrom.IsZero() {
		req.Query.DateFrom = q.DateFrom.UTC().Format(time.RFC3339)
	}
	if !q.DateTo.IsZero() {
		req.Query.DateTo = q.DateTo.UTC().Format(time.RFC3339)
	}

	data, err := c.post(ctx, endpointQueryPreviews, req)
	if err != nil {
		return "", err
	}
	var resp previewResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse marker response: %w", err)
	}
	records := resp.records()
	if len(records) == 0 {
		return MarkerEmpty, nil
	}

	flat, err := flatten(records[0])
	if err != nil {
		return "", fmt.Errorf("parse marker record: %w", err)
	}
	marker := stringField(flat, "modifiedTime", "updatedAt", "createdAt", "createdTime")
	if marker == "" {
		return MarkerEmpty, nil
	}
	return marker, nil
}

// GetIncident fetches full details for one incident as a raw record.
func (c *Client) GetIncident(ctx context.Context, incidentID string) (json.RawMessage, error) {
	data, err := c.post(ctx, endpointGetIncident, map[string]string{"incidentID": incidentID})
	if err != nil {
		return nil, fmt.Errorf("get incident %s: %w", incidentID, err)
	}
	return json.RawMessage(data), nil
}

// FetchActivityRaw returns every raw activity item for an incident,
// newest first, following the cursor across pages.
func (c *Client) FetchActivityRaw(ctx context.Context, incidentID string) ([]json.RawMessage, error) {
	req := activityRequest{
		Query: activityQuery{
			IncidentID:     incidentID,
			Limit:          defaultPageLimit,
			OrderDirection: "DESC",
		},
	}

	var all []json.RawMessage
	for {
		data, err := c.post(ctx, endpointQueryActivity, req)
		if err != nil {
			return nil, fmt.Errorf("activity for %s: %w", incidentID, err)
		}
		var resp activityResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("parse activity response: %w", err)
		}
		all = append(all, resp.records()...)

		if !resp.Cursor.HasMore || resp.Cursor.NextValue == "" {
			break
		}
		req.Query.Cursor = resp.Cursor.NextValue
	}
	return all, nil
}

// post issues one authenticated POST with the shared retry policy.
// Transient faults (network errors, 5xx, 429) are retried with
// exponential backoff; 429 honors a Retry-After hint. Auth failures and
// other 4xx surface immediately.
func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		data, err := c.do(ctx, endpoint, body)
		if err == nil {
			return data, nil
		}

		var re *retryableError
		if !errors.As(err, &re) {
			return nil, err
		}
		lastErr = re.err

		if attempt+1 >= c.Retry.MaxAttempts {
			break
		}
		delay := c.Retry.Delay(attempt, re.hint)
		c.Logger.Warn("transient upstream failure, retrying",
			"endpoint", endpoint, "attempt", attempt+1, "delay", delay, "err", re.err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, &TransientError{Attempts: c.Retry.MaxAttempts, Err: lastErr}
}

// do performs a single request attempt and classifies the outcome.
func (c *Client) do(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	n := c.calls.Add(1)
	url := c.BaseURL + apiBase + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &retryableError{err: fmt.Errorf("request %s: %w", endpoint, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("read response: %w", err)}
	}
	c.Logger.Debug("api call", "n", n, "endpoint", endpoint, "status", resp.StatusCode, "elapsed", time.Since(start))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Status: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &retryableError{
			err:  fmt.Errorf("HTTP 429: rate limited"),
			hint: retryAfter(resp.Header),
		}
	case resp.StatusCode >= 500:
		return nil, &retryableError{err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(data, 300))}
	default:
		return nil, &UpstreamError{Status: resp.StatusCode, Body: truncate(data, 300)}
	}
}

func truncate(b []byte, max int) string {
	s := string(b)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
