package tui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ormasoftchile/sitrep/pkg/irm"
	"github.com/ormasoftchile/sitrep/pkg/render"
	"github.com/ormasoftchile/sitrep/pkg/window"
)

// renderDetail builds a markdown document for one incident from its
// normalized fields plus whatever the full record carries, then renders
// it for the terminal.
func renderDetail(in irm.Incident, raw json.RawMessage, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s #%s %s\n\n", severityGlyph(in.Severity), in.ID, in.Title)

	fmt.Fprintf(&b, "- **Severity:** %s\n", orDash(in.Severity))
	fmt.Fprintf(&b, "- **Status:** %s\n", orDash(in.Status))
	fmt.Fprintf(&b, "- **Age:** %s (opened %s)\n",
		render.HumanDuration(in.Age(now)), in.OpenedAt.In(window.Anchor).Format("2 Jan 2006 15:04"))

	owner := "unassigned"
	if in.HasAssignee {
		owner = "team"
		if in.Assignee != "" {
			owner = in.Assignee
		}
	}
	fmt.Fprintf(&b, "- **Owner:** %s\n", owner)

	if in.SLADeadline != nil {
		if now.After(*in.SLADeadline) {
			fmt.Fprintf(&b, "- **SLA:** ⚠️ %s over\n", render.HumanDuration(now.Sub(*in.SLADeadline)))
		} else {
			fmt.Fprintf(&b, "- **SLA:** %s remaining\n", render.HumanDuration(in.SLADeadline.Sub(now)))
		}
	}
	if len(in.Labels) > 0 {
		fmt.Fprintf(&b, "- **Labels:** %s\n", strings.Join(in.Labels, ", "))
	}
	if in.LastUpdate != nil {
		fmt.Fprintf(&b, "- **Last update:** %s ago\n", render.HumanDuration(now.Sub(*in.LastUpdate)))
	}

	if summary := recordText(raw, "summary", "description"); summary != "" {
		b.WriteString("\n## Summary\n\n")
		b.WriteString(summary)
		b.WriteString("\n")
	}

	return render.Terminal(b.String())
}

func orDash(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// recordText pulls the first non-empty string field out of a raw
// record, looking at the top level and inside an incident wrapper.
func recordText(raw json.RawMessage, keys ...string) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	if sub, ok := m["incident"].(map[string]any); ok {
		for k, v := range sub {
			if _, exists := m[k]; !exists {
				m[k] = v
			}
		}
	}
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
