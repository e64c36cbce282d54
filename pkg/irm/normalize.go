package irm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// timestampFormats covers the stamp shapes the upstream emits: RFC3339
// with and without fractional seconds or numeric offsets, plus the
// zone-less forms some older records carry (read as UTC).
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTimestamp normalizes a heterogeneous upstream timestamp into a
// UTC instant.
func parseTimestamp(s string) (time.Time, error) {
	for _, f := range timestampFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q", s)
}

// Normalize converts raw upstream records into Incident entities.
// Records arrive as preview rows or as nested {incident|incidentPreview|
// data} wrappers; both shapes flatten to the same field set. A record
// with no usable opened-at stamp is dropped and counted, never fatal.
// slaDays maps severity to resolution SLA in days; severities outside
// the map get no deadline.
func Normalize(records []json.RawMessage, slaDays map[string]int, logger *slog.Logger) ([]Incident, int) {
	if logger == nil {
		logger = slog.Default()
	}

	incidents := make([]Incident, 0, len(records))
	dropped := 0
	for _, raw := range records {
		flat, err := flatten(raw)
		if err != nil {
			dropped++
			logger.Warn("dropping unparseable incident record", "err", err)
			continue
		}

		inc, err := normalizeOne(flat, slaDays)
		if err != nil {
			dropped++
			logger.Warn("dropping incident record", "id", stringField(flat, "incidentID", "id"), "err", err)
			continue
		}
		incidents = append(incidents, inc)
	}
	return incidents, dropped
}

func normalizeOne(flat map[string]any, slaDays map[string]int) (Incident, error) {
	openedStr := stringField(flat, "createdAt", "createdTime")
	if openedStr == "" {
		return Incident{}, fmt.Errorf("record has no opened-at timestamp")
	}
	opened, err := parseTimestamp(openedStr)
	if err != nil {
		return Incident{}, fmt.Errorf("opened-at: %w", err)
	}

	inc := Incident{
		ID:       stringField(flat, "incidentID", "id"),
		Title:    stringField(flat, "title"),
		Status:   stringField(flat, "status"),
		Severity: severityField(flat),
		OpenedAt: opened,
		Labels:   labelsField(flat),
	}

	if s := stringField(flat, "closedTime", "resolvedAt"); s != "" {
		if t, err := parseTimestamp(s); err == nil {
			inc.ResolvedAt = &t
		}
	}
	if s := stringField(flat, "modifiedTime", "updatedAt"); s != "" {
		if t, err := parseTimestamp(s); err == nil {
			inc.ModifiedAt = t
		}
	}
	if inc.ModifiedAt.IsZero() {
		inc.ModifiedAt = opened
	}

	inc.Assignee, inc.HasAssignee = membership(flat)

	if days, ok := slaDays[inc.Severity]; ok && days > 0 {
		deadline := opened.Add(time.Duration(days) * 24 * time.Hour)
		inc.SLADeadline = &deadline
	}
	return inc, nil
}

// flatten merges the nested wrappers some endpoints use ({incident:…},
// {incidentPreview:…}, {data:…}) into one flat field map. Top-level
// fields win over nested ones.
func flatten(raw json.RawMessage) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(m))
	for _, wrapper := range []string{"incident", "incidentPreview", "data"} {
		if sub, ok := m[wrapper].(map[string]any); ok {
			for k, v := range sub {
				merged[k] = v
			}
		}
	}
	for k, v := range m {
		switch k {
		case "incident", "incidentPreview", "data":
			continue
		}
		merged[k] = v
	}
	return merged, nil
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case float64:
			// IDs sometimes arrive numeric
			return strings.TrimSuffix(fmt.Sprintf("%v", v), ".0")
		}
	}
	return ""
}

// severityField prefers severity and falls back to severityLabel, which
// preview rows use instead.
func severityField(m map[string]any) string {
	if s := stringField(m, "severity"); s != "" {
		return s
	}
	return stringField(m, "severityLabel")
}

func labelsField(m map[string]any) []string {
	raw, ok := m["labels"].([]any)
	if !ok {
		return nil
	}
	var labels []string
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			labels = append(labels, v)
		case map[string]any:
			if s, ok := v["label"].(string); ok && s != "" {
				labels = append(labels, s)
			}
		}
	}
	return labels
}

// membership derives the assignee display name (first name of the first
// human assignee) and whether the incident counts as assigned. A team
// assignment counts; bots and service accounts do not.
func membership(m map[string]any) (string, bool) {
	members, _ := m["incidentMembership"].(map[string]any)
	if members == nil {
		if preview, ok := m["incidentMembershipPreview"].(map[string]any); ok {
			if important, ok := preview["importantAssignments"].([]any); ok && len(important) > 0 {
				members = map[string]any{"assignments": important}
			}
		}
	}
	if members == nil {
		return "", false
	}

	assignments, _ := members["users"].([]any)
	if assignments == nil {
		assignments, _ = members["assignments"].([]any)
	}
	teams, _ := members["teams"].([]any)

	hasAssignee := len(teams) > 0
	assignee := ""
	for _, a := range assignments {
		entry, ok := a.(map[string]any)
		if !ok {
			continue
		}
		user, _ := entry["user"].(map[string]any)
		if user == nil {
			user = entry
		}
		if !IsHumanUser(user) {
			continue
		}
		hasAssignee = true
		if assignee == "" {
			name, _ := user["name"].(string)
			if parts := strings.Fields(name); len(parts) > 0 {
				assignee = parts[0]
			}
		}
	}
	return assignee, hasAssignee
}

// IsHumanUser reports whether an activity or assignment author is a
// person rather than a bot or service account.
func IsHumanUser(user map[string]any) bool {
	if user == nil {
		return false
	}
	name, _ := user["name"].(string)
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	if strings.HasPrefix(name, "service account") {
		return false
	}
	if strings.Contains(name, "bot") {
		return false
	}
	return true
}

// LastHumanUpdate scans raw activity items (newest first) and returns
// the first human-authored one, or nil when every item is automated.
func LastHumanUpdate(items []json.RawMessage) *ActivityUpdate {
	for _, raw := range items {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		author, _ := m["user"].(map[string]any)
		if author == nil {
			author, _ = m["createdBy"].(map[string]any)
		}
		if !IsHumanUser(author) {
			continue
		}

		stamp := stringField(m, "eventTime", "createdTime")
		if stamp == "" {
			continue
		}
		t, err := parseTimestamp(stamp)
		if err != nil {
			continue
		}
		return &ActivityUpdate{
			Time: t,
			Kind: stringField(m, "activityKind", "eventType"),
			Body: stringField(m, "body", "text"),
		}
	}
	return nil
}

// NewestMarker derives the modification marker a set of fetched records
// corresponds to: the lexically greatest modification stamp across
// them. Stamps share one wire format, so string order is time order.
// The result matches what CurrentMarker would have probed at fetch
// time, which is what makes stored entries validate on the next run.
func NewestMarker(records []json.RawMessage) string {
	newest := ""
	for _, raw := range records {
		flat, err := flatten(raw)
		if err != nil {
			continue
		}
		stamp := stringField(flat, "modifiedTime", "updatedAt", "createdAt", "createdTime")
		if stamp > newest {
			newest = stamp
		}
	}
	if newest == "" {
		return MarkerEmpty
	}
	return newest
}
