package irm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Incident is the engine's normalized incident entity. It is built once
// from raw upstream JSON and never mutated afterward; raw records (not
// Incidents) are what the disk cache persists.
type Incident struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Severity    string     `json:"severity"`
	Status      string     `json:"status"`
	Labels      []string   `json:"labels,omitempty"`
	OpenedAt    time.Time  `json:"openedAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"` // nil while active
	ModifiedAt  time.Time  `json:"modifiedAt"`
	Assignee    string     `json:"assignee,omitempty"` // first name of the first human assignee
	HasAssignee bool       `json:"hasAssignee"`
	SLADeadline *time.Time `json:"slaDeadline,omitempty"` // OpenedAt + severity SLA, nil for unknown severities
	LastUpdate  *time.Time `json:"lastUpdate,omitempty"`  // most recent human activity, set by enrichment
}

// Active reports whether the incident was still open at instant t.
func (in Incident) Active(t time.Time) bool {
	return in.ResolvedAt == nil || !in.ResolvedAt.Before(t)
}

// Age returns how long the incident had been open at instant t.
func (in Incident) Age(t time.Time) time.Duration {
	return t.Sub(in.OpenedAt)
}

// ActivityUpdate is the most recent human-authored activity item on an
// incident.
type ActivityUpdate struct {
	Time time.Time
	Kind string
	Body string
}

// Query describes one incident listing request. The zero value lists
// everything.
type Query struct {
	DateFrom time.Time // createdAt lower bound, inclusive; zero = unbounded
	DateTo   time.Time // createdAt upper bound, exclusive; zero = unbounded
	Statuses []string  // e.g. "active", "resolved"; empty = all
	Limit    int       // page size; defaults to 100
}

// Fingerprint returns a stable cache key for the query. The endpoint,
// time range and status filters all participate, so distinct queries
// never share an entry.
func (q Query) Fingerprint() string {
	var b strings.Builder
	b.WriteString(endpointQueryPreviews)
	b.WriteByte('|')
	if !q.DateFrom.IsZero() {
		b.WriteString(q.DateFrom.UTC().Format(time.RFC3339))
	}
	b.WriteByte('|')
	if !q.DateTo.IsZero() {
		b.WriteString(q.DateTo.UTC().Format(time.RFC3339))
	}
	b.WriteByte('|')
	b.WriteString(strings.Join(q.Statuses, ","))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

// ActivityFingerprint returns the cache key for one incident's activity
// feed.
func ActivityFingerprint(incidentID string) string {
	sum := sha256.Sum256([]byte(endpointQueryActivity + "|" + incidentID))
	return hex.EncodeToString(sum[:16])
}

// --- wire shapes ---

type previewQuery struct {
	Limit          int      `json:"limit"`
	OrderDirection string   `json:"orderDirection"`
	OrderBy        string   `json:"orderBy"`
	DateFrom       string   `json:"dateFrom,omitempty"`
	DateTo         string   `json:"dateTo,omitempty"`
	Statuses       []string `json:"status,omitempty"`
}

type pageCursor struct {
	NextValue string `json:"nextValue"`
}

type previewRequest struct {
	Query                    previewQuery `json:"query"`
	IncludeMembershipPreview bool         `json:"includeMembershipPreview"`
	Cursor                   *pageCursor  `json:"cursor,omitempty"`
}

// previewResponse keeps records raw: the cache persists them as
// returned, and normalization happens after cache retrieval.
type previewResponse struct {
	IncidentPreviews []json.RawMessage `json:"incidentPreviews"`
	Previews         []json.RawMessage `json:"previews"` // older field name
	Cursor           struct {
		HasMore   bool   `json:"hasMore"`
		NextValue string `json:"nextValue"`
	} `json:"cursor"`
}

func (r *previewResponse) records() []json.RawMessage {
	if len(r.IncidentPreviews) > 0 {
		return r.IncidentPreviews
	}
	return r.Previews
}

type activityQuery struct {
	IncidentID     string `json:"incidentID"`
	Limit          int    `json:"limit"`
	OrderDirection string `json:"orderDirection"`
	Cursor         string `json:"cursor,omitempty"`
}

type activityRequest struct {
	Query activityQuery `json:"query"`
}

type activityResponse struct {
	ActivityItems []json.RawMessage `json:"activityItems"`
	Items         []json.RawMessage `json:"items"`
	Activities    []json.RawMessage `json:"activities"`
	Cursor        struct {
		HasMore   bool   `json:"hasMore"`
		NextValue string `json:"nextValue"`
	} `json:"cursor"`
}

func (r *activityResponse) records() []json.RawMessage {
	switch {
	case len(r.ActivityItems) > 0:
		return r.ActivityItems
	case len(r.Items) > 0:
		return r.Items
	default:
		return r.Activities
	}
}

// EncodeRecords serializes raw records into a cacheable payload.
func EncodeRecords(records []json.RawMessage) ([]byte, error) {
	if records == nil {
		records = []json.RawMessage{}
	}
	return json.Marshal(records)
}

// DecodeRecords is the inverse of EncodeRecords.
func DecodeRecords(payload []byte) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, err
	}
	return records, nil
}
