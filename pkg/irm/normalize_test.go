package irm

import (
	"encoding/json"
	"testing"
	"time"
)

// samplePreviewJSON mirrors a real QueryIncidentPreviews row: preview
// fields nested under incidentPreview, membership as a preview block.
const samplePreviewJSON = `{
  "incidentPreview": {
    "incidentID": "482",
    "title": "API latency above threshold in payments",
    "severityLabel": "Critical",
    "status": "active",
    "createdTime": "2025-10-21T04:10:09.809561Z",
    "modifiedTime": "2025-10-21T09:44:13Z",
    "labels": [{"label": "payments"}, {"label": "latency"}]
  },
  "incidentMembershipPreview": {
    "importantAssignments": [
      {"user": {"userID": "svc-1", "name": "Grafana Bot"}},
      {"user": {"userID": "u-311", "name": "Siriwat Kittichai"}}
    ]
  }
}`

var testSLA = map[string]int{"Critical": 1, "Major": 2, "Minor": 3}

func TestNormalizePreviewRecord(t *testing.T) {
	incidents, dropped := Normalize([]json.RawMessage{json.RawMessage(samplePreviewJSON)}, testSLA, nil)
	if dropped != 0 {
		t.Fatalf("dropped = %d, want 0", dropped)
	}
	if len(incidents) != 1 {
		t.Fatalf("incidents = %d, want 1", len(incidents))
	}
	inc := incidents[0]

	if inc.ID != "482" {
		t.Errorf("ID = %q, want %q", inc.ID, "482")
	}
	if inc.Title != "API latency above threshold in payments" {
		t.Errorf("Title = %q", inc.Title)
	}
	if inc.Severity != "Critical" {
		t.Errorf("Severity = %q, want Critical (from severityLabel)", inc.Severity)
	}
	if inc.Status != "active" {
		t.Errorf("Status = %q, want active", inc.Status)
	}
	wantOpened := time.Date(2025, 10, 21, 4, 10, 9, 809561000, time.UTC)
	if !inc.OpenedAt.Equal(wantOpened) {
		t.Errorf("OpenedAt = %v, want %v", inc.OpenedAt, wantOpened)
	}
	if inc.ResolvedAt != nil {
		t.Errorf("ResolvedAt = %v, want nil for an active incident", inc.ResolvedAt)
	}
	wantModified := time.Date(2025, 10, 21, 9, 44, 13, 0, time.UTC)
	if !inc.ModifiedAt.Equal(wantModified) {
		t.Errorf("ModifiedAt = %v, want %v", inc.ModifiedAt, wantModified)
	}
	if len(inc.Labels) != 2 || inc.Labels[0] != "payments" || inc.Labels[1] != "latency" {
		t.Errorf("Labels = %v, want [payments latency]", inc.Labels)
	}
	if !inc.HasAssignee {
		t.Error("HasAssignee = false, want true (human assignee present)")
	}
	if inc.Assignee != "Siriwat" {
		t.Errorf("Assignee = %q, want %q (first name of first human)", inc.Assignee, "Siriwat")
	}
	if inc.SLADeadline == nil {
		t.Fatal("SLADeadline = nil, want opened+1d for Critical")
	}
	if want := wantOpened.Add(24 * time.Hour); !inc.SLADeadline.Equal(want) {
		t.Errorf("SLADeadline = %v, want %v", inc.SLADeadline, want)
	}
}

func TestNormalizeResolvedIncident(t *testing.T) {
	raw := json.RawMessage(`{
		"incidentID": "77",
		"title": "Disk pressure on build agents",
		"severity": "Minor",
		"status": "resolved",
		"createdAt": "2025-10-20T08:00:00Z",
		"closedTime": "2025-10-20T11:30:00Z"
	}`)
	incidents, dropped := Normalize([]json.RawMessage{raw}, testSLA, nil)
	if dropped != 0 || len(incidents) != 1 {
		t.Fatalf("got %d incidents, %d dropped", len(incidents), dropped)
	}
	inc := incidents[0]
	if inc.ResolvedAt == nil {
		t.Fatal("ResolvedAt = nil, want parsed closedTime")
	}
	want := time.Date(2025, 10, 20, 11, 30, 0, 0, time.UTC)
	if !inc.ResolvedAt.Equal(want) {
		t.Errorf("ResolvedAt = %v, want %v", inc.ResolvedAt, want)
	}
	// No modifiedTime in the record: falls back to opened-at.
	if !inc.ModifiedAt.Equal(inc.OpenedAt) {
		t.Errorf("ModifiedAt = %v, want OpenedAt %v", inc.ModifiedAt, inc.OpenedAt)
	}
	if inc.HasAssignee {
		t.Error("HasAssignee = true, want false (no membership data)")
	}
}

func TestNormalizeDropsMissingOpenedAt(t *testing.T) {
	records := []json.RawMessage{
		json.RawMessage(`{"incidentID": "1", "title": "ok", "createdAt": "2025-10-20T08:00:00Z"}`),
		json.RawMessage(`{"incidentID": "2", "title": "no opened-at", "status": "active"}`),
		json.RawMessage(`{"incidentID": "3", "createdAt": "not a timestamp"}`),
	}
	incidents, dropped := Normalize(records, testSLA, nil)
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	if len(incidents) != 1 {
		t.Fatalf("incidents = %d, want 1", len(incidents))
	}
	if incidents[0].ID != "1" {
		t.Errorf("surviving ID = %q, want 1", incidents[0].ID)
	}
}

func TestNormalizeUnknownSeverityHasNoDeadline(t *testing.T) {
	raw := json.RawMessage(`{"incidentID": "9", "severity": "Pending", "createdAt": "2025-10-20T08:00:00Z"}`)
	incidents, _ := Normalize([]json.RawMessage{raw}, testSLA, nil)
	if len(incidents) != 1 {
		t.Fatalf("incidents = %d, want 1", len(incidents))
	}
	if incidents[0].SLADeadline != nil {
		t.Errorf("SLADeadline = %v, want nil for severity outside the SLA table", incidents[0].SLADeadline)
	}
}

func TestParseTimestampFormats(t *testing.T) {
	want := time.Date(2025, 10, 21, 4, 10, 9, 0, time.UTC)
	cases := []string{
		"2025-10-21T04:10:09Z",
		"2025-10-21T04:10:09.000000Z",
		"2025-10-21T11:10:09+07:00",
		"2025-10-21T04:10:09",
		"2025-10-21 04:10:09",
	}
	for _, s := range cases {
		got, err := parseTimestamp(s)
		if err != nil {
			t.Errorf("parseTimestamp(%q): %v", s, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", s, got, want)
		}
	}

	if _, err := parseTimestamp("yesterday-ish"); err == nil {
		t.Error("parseTimestamp accepted garbage input")
	}
}

func TestIsHumanUser(t *testing.T) {
	cases := []struct {
		name string
		user map[string]any
		want bool
	}{
		{"human", map[string]any{"name": "Siriwat Kittichai"}, true},
		{"nil user", nil, false},
		{"empty name", map[string]any{"name": "  "}, false},
		{"service account", map[string]any{"name": "Service Account IRM Sync"}, false},
		{"bot substring", map[string]any{"name": "PagerBot"}, false},
	}
	for _, tc := range cases {
		if got := IsHumanUser(tc.user); got != tc.want {
			t.Errorf("%s: IsHumanUser = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestLastHumanUpdateSkipsAutomation(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(`{"user": {"name": "Grafana Bot"}, "eventTime": "2025-10-21T10:00:00Z", "activityKind": "incidentUpdated"}`),
		json.RawMessage(`{"user": {"name": "Siriwat Kittichai"}, "eventTime": "2025-10-21T09:00:00Z", "activityKind": "userNote", "body": "rolled back the deploy"}`),
		json.RawMessage(`{"user": {"name": "Arthit Noom"}, "eventTime": "2025-10-21T08:00:00Z", "activityKind": "userNote"}`),
	}
	up := LastHumanUpdate(items)
	if up == nil {
		t.Fatal("LastHumanUpdate = nil, want the first human item")
	}
	want := time.Date(2025, 10, 21, 9, 0, 0, 0, time.UTC)
	if !up.Time.Equal(want) {
		t.Errorf("Time = %v, want %v", up.Time, want)
	}
	if up.Kind != "userNote" {
		t.Errorf("Kind = %q, want userNote", up.Kind)
	}
	if up.Body != "rolled back the deploy" {
		t.Errorf("Body = %q", up.Body)
	}
}

func TestLastHumanUpdateAllBots(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(`{"user": {"name": "AlertBot"}, "eventTime": "2025-10-21T10:00:00Z"}`),
	}
	if up := LastHumanUpdate(items); up != nil {
		t.Errorf("LastHumanUpdate = %+v, want nil when every author is automated", up)
	}
}

func TestQueryFingerprint(t *testing.T) {
	base := Query{
		DateTo:   time.Date(2025, 10, 27, 17, 0, 0, 0, time.UTC),
		Statuses: []string{"active"},
	}
	if a, b := base.Fingerprint(), base.Fingerprint(); a != b {
		t.Errorf("fingerprint not stable: %q vs %q", a, b)
	}

	shifted := base
	shifted.DateTo = base.DateTo.Add(7 * 24 * time.Hour)
	if base.Fingerprint() == shifted.Fingerprint() {
		t.Error("different date ranges share a fingerprint")
	}

	filtered := base
	filtered.Statuses = nil
	if base.Fingerprint() == filtered.Fingerprint() {
		t.Error("different status filters share a fingerprint")
	}
}

func TestActivityFingerprint(t *testing.T) {
	a, b := ActivityFingerprint("incident-482"), ActivityFingerprint("incident-482")
	if a != b {
		t.Errorf("fingerprint not stable: %q vs %q", a, b)
	}
	if ActivityFingerprint("incident-482") == ActivityFingerprint("incident-483") {
		t.Error("different incidents share a fingerprint")
	}
}

func TestNewestMarker(t *testing.T) {
	records := []json.RawMessage{
		json.RawMessage(`{"incidentID": "1", "modifiedTime": "2025-10-21T09:00:00Z"}`),
		json.RawMessage(`{"incident": {"incidentID": "2", "modifiedTime": "2025-10-22T11:30:00Z"}}`),
		json.RawMessage(`{"incidentID": "3", "createdTime": "2025-10-20T08:00:00Z"}`),
	}
	if got, want := NewestMarker(records), "2025-10-22T11:30:00Z"; got != want {
		t.Errorf("NewestMarker = %q, want %q", got, want)
	}
	if got := NewestMarker(nil); got != MarkerEmpty {
		t.Errorf("NewestMarker(nil) = %q, want %q", got, MarkerEmpty)
	}
}
