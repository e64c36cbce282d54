// Package render turns computed reports into presentation forms:
// Markdown documents, terminal output, and chat message sections. It
// never fetches or aggregates; everything it needs is on the Report.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/sitrep/pkg/irm"
	"github.com/ormasoftchile/sitrep/pkg/report"
	"github.com/ormasoftchile/sitrep/pkg/window"
)

// titleWidth caps incident titles in list lines. Width is measured in
// terminal cells, not bytes, so CJK titles truncate cleanly.
const titleWidth = 65

// Options tunes Markdown output.
type Options struct {
	// MaxActive caps the active incident list; 0 lists everything.
	MaxActive int
}

var severityGlyph = map[string]string{
	"Critical": "🔴",
	"Major":    "🟠",
	"Minor":    "🟡",
	"Pending":  "⚪",
}

func glyph(severity string) string {
	if g, ok := severityGlyph[severity]; ok {
		return g
	}
	return "❓"
}

var kindTitle = map[window.Kind]string{
	window.Daily:   "Daily",
	window.Weekly:  "Weekly",
	window.Monthly: "Monthly",
}

// Markdown renders the full report document.
func Markdown(r *report.Report, opts Options) string {
	var b strings.Builder
	now := r.GeneratedAt

	fmt.Fprintf(&b, "# 📊 Incident Report (%s)\n\n", kindTitle[r.Window.Kind])
	fmt.Fprintf(&b, "**Period:** %s\n\n", r.Window.Label)

	// Current status
	b.WriteString("## 🔥 Current Status\n\n")
	fmt.Fprintf(&b, "- **Active incidents:** %d", r.Totals.Active)
	if r.Totals.CarryOver > 0 {
		fmt.Fprintf(&b, " (%d carried over from before this period)", r.Totals.CarryOver)
	}
	b.WriteString("\n")
	if r.OldestAge != nil {
		fmt.Fprintf(&b, "- **Oldest active:** %s\n", HumanDuration(*r.OldestAge))
	}
	if line := severityLine(r.BySeverity); line != "" {
		fmt.Fprintf(&b, "- **By severity:** %s\n", line)
	}
	b.WriteString("\n")

	// Activity
	b.WriteString("## 📈 Activity\n\n")
	fmt.Fprintf(&b, "- **Opened:** %d\n", r.Totals.Opened)
	fmt.Fprintf(&b, "- **Resolved:** %d\n", r.Totals.Resolved)
	fmt.Fprintf(&b, "- **Net change:** %s\n\n", signed(r.Totals.NetChange))

	// Performance
	b.WriteString("## ⏱️ Performance\n\n")
	if r.MTTR != nil {
		fmt.Fprintf(&b, "- **MTTR:** %s\n", HumanDuration(*r.MTTR))
	} else {
		b.WriteString("- **MTTR:** n/a (nothing resolved this period)\n")
	}
	fmt.Fprintf(&b, "- **Over SLA:** %d\n", r.Attention.OverSLA)
	fmt.Fprintf(&b, "- **SLA posture:** %d on track, %d at risk, %d overdue, %d without deadline\n\n",
		r.AgeBuckets.OnTrack, r.AgeBuckets.AtRisk, r.AgeBuckets.Overdue, r.AgeBuckets.NoDeadline)

	// Attention
	if n := r.Attention.WithoutAssignee + r.Attention.WithoutSeverity + r.Attention.MissingUpdate; n > 0 {
		b.WriteString("## 🚨 Needs Attention\n\n")
		if r.Attention.WithoutAssignee > 0 {
			fmt.Fprintf(&b, "- %d without assignee\n", r.Attention.WithoutAssignee)
		}
		if r.Attention.WithoutSeverity > 0 {
			fmt.Fprintf(&b, "- %d without severity\n", r.Attention.WithoutSeverity)
		}
		if r.Attention.MissingUpdate > 0 {
			fmt.Fprintf(&b, "- %d with no update in %s\n", r.Attention.MissingUpdate, HumanDuration(report.StaleUpdateAfter))
		}
		b.WriteString("\n")
	}

	// Daily breakdown
	b.WriteString("## 📅 Daily Breakdown\n\n")
	b.WriteString("| Day | Date | Opened | Resolved |\n")
	b.WriteString("|-----|------|-------:|---------:|\n")
	for _, d := range r.PerDay {
		fmt.Fprintf(&b, "| %s | %s | %d | %d |\n",
			d.Date.Format("Mon"), d.Date.Format(time.DateOnly), d.Opened, d.Resolved)
	}
	b.WriteString("\n")

	// Incident lists
	if len(r.Active) > 0 {
		b.WriteString("## 🔴 Active Incidents\n\n")
		shown := r.Active
		if opts.MaxActive > 0 && len(shown) > opts.MaxActive {
			shown = shown[:opts.MaxActive]
		}
		for _, in := range shown {
			writeActiveLine(&b, in, now)
		}
		if hidden := len(r.Active) - len(shown); hidden > 0 {
			fmt.Fprintf(&b, "\n_...and %d more_\n", hidden)
		}
		b.WriteString("\n")
	}

	if len(r.Opened) > 0 {
		b.WriteString("## 🆕 Opened This Period\n\n")
		for _, in := range r.Opened {
			fmt.Fprintf(&b, "- %s **#%s** %s (%s)\n",
				glyph(in.Severity), in.ID, truncateTitle(in.Title), in.OpenedAt.In(window.Anchor).Format("Mon 2 Jan"))
		}
		b.WriteString("\n")
	}

	if len(r.Resolved) > 0 {
		b.WriteString("## ✅ Resolved This Period\n\n")
		for _, in := range r.Resolved {
			fmt.Fprintf(&b, "- ✅ **#%s** %s (resolved in %s)\n",
				in.ID, truncateTitle(in.Title), HumanDuration(in.ResolvedAt.Sub(in.OpenedAt)))
		}
		b.WriteString("\n")
	}

	// Footer
	b.WriteString("---\n")
	fmt.Fprintf(&b, "_Generated %s_", now.In(window.Anchor).Format("2006-01-02 15:04 MST"))
	if r.DroppedRecords > 0 {
		fmt.Fprintf(&b, " _· %d records dropped during normalization_", r.DroppedRecords)
	}
	b.WriteString("\n")
	return b.String()
}

// writeActiveLine emits one active incident with its age, owner and
// SLA standing, plus a sub-line for the latest human update when known.
func writeActiveLine(b *strings.Builder, in irm.Incident, now time.Time) {
	owner := "unassigned"
	if in.HasAssignee {
		owner = "team"
		if in.Assignee != "" {
			owner = in.Assignee
		}
	}
	fmt.Fprintf(b, "- %s **#%s** %s (%s, %s)",
		glyph(in.Severity), in.ID, truncateTitle(in.Title), HumanDuration(in.Age(now)), owner)
	if in.SLADeadline != nil && now.After(*in.SLADeadline) {
		fmt.Fprintf(b, " ⚠️ %s over SLA", HumanDuration(now.Sub(*in.SLADeadline)))
	}
	b.WriteString("\n")
	if in.LastUpdate != nil {
		fmt.Fprintf(b, "  - Latest update %s ago\n", HumanDuration(now.Sub(*in.LastUpdate)))
	}
}

// severityLine orders the histogram most urgent first.
func severityLine(bySeverity map[string]int) string {
	var parts []string
	for _, sev := range []string{"Critical", "Major", "Minor", "Pending"} {
		if n := bySeverity[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d %s", glyph(sev), n, sev))
		}
	}
	known := map[string]bool{"Critical": true, "Major": true, "Minor": true, "Pending": true}
	for sev, n := range bySeverity {
		if !known[sev] && n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d %s", glyph(sev), n, sev))
		}
	}
	return strings.Join(parts, ", ")
}

// HumanDuration formats a duration with at most two units, the way a
// report reader thinks about incident ages.
func HumanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return "0m"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		h := int(d.Hours())
		m := int(d.Minutes()) - h*60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh %dm", h, m)
	default:
		days := int(d.Hours()) / 24
		h := int(d.Hours()) - days*24
		if h == 0 {
			return fmt.Sprintf("%dd", days)
		}
		return fmt.Sprintf("%dd %dh", days, h)
	}
}

func signed(n int) string {
	if n > 0 {
		return fmt.Sprintf("+%d", n)
	}
	return fmt.Sprintf("%d", n)
}

func truncateTitle(s string) string {
	return runewidth.Truncate(s, titleWidth, "…")
}

// Filename names a saved report after its window: one date for daily,
// a start/end pair for weekly, year-month for monthly.
func Filename(win window.Window) string {
	switch win.Kind {
	case window.Daily:
		return fmt.Sprintf("REPORT_DAILY_%s.md", win.LocalStart().Format(time.DateOnly))
	case window.Monthly:
		return fmt.Sprintf("REPORT_MONTHLY_%s.md", win.LocalStart().Format("2006-01"))
	default:
		lastDay := win.LocalEnd().AddDate(0, 0, -1)
		return fmt.Sprintf("REPORT_WEEKLY_%s_%s.md",
			win.LocalStart().Format(time.DateOnly), lastDay.Format(time.DateOnly))
	}
}
