package filter

import (
	"testing"
	"time"

	"github.com/ormasoftchile/sitrep/pkg/irm"
)

var filterNow = time.Date(2025, 10, 27, 17, 0, 0, 0, time.UTC)

func sample() []irm.Incident {
	deadline := filterNow.Add(-2 * time.Hour)
	return []irm.Incident{
		{ID: "1", Title: "API latency spike", Severity: "Critical", Status: "active",
			Labels: []string{"payments", "latency"}, HasAssignee: true, Assignee: "Siriwat",
			OpenedAt: filterNow.Add(-72 * time.Hour), SLADeadline: &deadline},
		{ID: "2", Title: "Stale dashboard", Severity: "Minor", Status: "active",
			OpenedAt: filterNow.Add(-6 * time.Hour)},
		{ID: "3", Title: "DB failover", Severity: "Major", Status: "resolved",
			Labels: []string{"database"}, HasAssignee: true, Assignee: "Anna",
			OpenedAt: filterNow.Add(-30 * time.Hour), ResolvedAt: &filterNow},
	}
}

func TestCompileEmptyMatchesAll(t *testing.T) {
	f, err := Compile("  ")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if f != nil {
		t.Fatalf("Compile(blank) = %v, want nil filter", f)
	}
	if kept := f.Apply(sample(), filterNow); len(kept) != 3 {
		t.Errorf("kept = %d, want all 3", len(kept))
	}
}

func TestFilterExpressions(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{`severity == "Critical"`, []string{"1"}},
		{`"payments" in labels`, []string{"1"}},
		{`!hasAssignee`, []string{"2"}},
		{`ageDays > 1`, []string{"1", "3"}},
		{`overSLA`, []string{"1"}},
		{`resolved`, []string{"3"}},
		{`status == "active" && severity != "Critical"`, []string{"2"}},
		{`assignee == "Anna" || id == "2"`, []string{"2", "3"}},
	}

	for _, tt := range tests {
		f, err := Compile(tt.expr)
		if err != nil {
			t.Fatalf("Compile(%q): %v", tt.expr, err)
		}
		kept := f.Apply(sample(), filterNow)
		var got []string
		for _, in := range kept {
			got = append(got, in.ID)
		}
		if len(got) != len(tt.want) {
			t.Errorf("%q kept %v, want %v", tt.expr, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%q kept %v, want %v", tt.expr, got, tt.want)
				break
			}
		}
	}
}

func TestCompileRejectsBadExpressions(t *testing.T) {
	for _, src := range []string{
		`severity ==`,     // syntax error
		`nonexistent > 3`, // unknown field
		`severity + "x"`,  // not boolean
	} {
		if _, err := Compile(src); err == nil {
			t.Errorf("Compile(%q) succeeded, want error", src)
		}
	}
}

func TestApplyTreatsRuntimeFaultAsNonMatch(t *testing.T) {
	// Type-checks fine, but indexing past the label list fails at eval
	// time. That drops the incident, it never aborts the run.
	f, err := Compile(`labels[9] == "payments"`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if kept := f.Apply(sample(), filterNow); len(kept) != 0 {
		t.Errorf("kept = %d, want 0", len(kept))
	}
}

func TestFilterString(t *testing.T) {
	f, err := Compile(`severity == "Major"`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got := f.String(); got != `severity == "Major"` {
		t.Errorf("String() = %q", got)
	}
	var nilFilter *Filter
	if got := nilFilter.String(); got != "" {
		t.Errorf("nil String() = %q, want empty", got)
	}
}
