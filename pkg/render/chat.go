package render

import (
	"fmt"
	"strings"

	"github.com/ormasoftchile/sitrep/pkg/report"
	"github.com/ormasoftchile/sitrep/pkg/window"
)

// chatMaxActive caps the incident list in chat messages; the full list
// lives in the Markdown report, chat gets the headline.
const chatMaxActive = 5

// Chat condenses a report into a title and paragraph sections for a
// Google Chat card. Text uses the simple HTML subset chat cards accept
// (<b>, <i>, <br>).
func Chat(r *report.Report) (title string, sections []string) {
	title = fmt.Sprintf("📊 %s Incident Report · %s", kindTitle[r.Window.Kind], r.Window.Label)

	var status strings.Builder
	fmt.Fprintf(&status, "<b>Active:</b> %d", r.Totals.Active)
	if r.OldestAge != nil {
		fmt.Fprintf(&status, " (oldest %s)", HumanDuration(*r.OldestAge))
	}
	fmt.Fprintf(&status, "<br><b>Opened:</b> %d · <b>Resolved:</b> %d · <b>Net:</b> %s",
		r.Totals.Opened, r.Totals.Resolved, signed(r.Totals.NetChange))
	if r.MTTR != nil {
		fmt.Fprintf(&status, "<br><b>MTTR:</b> %s", HumanDuration(*r.MTTR))
	}
	if r.Attention.OverSLA > 0 {
		fmt.Fprintf(&status, "<br><b>⚠️ Over SLA:</b> %d", r.Attention.OverSLA)
	}
	sections = append(sections, status.String())

	if len(r.Active) > 0 {
		var list strings.Builder
		now := r.GeneratedAt
		shown := r.Active
		if len(shown) > chatMaxActive {
			shown = shown[:chatMaxActive]
		}
		for i, in := range shown {
			if i > 0 {
				list.WriteString("<br>")
			}
			fmt.Fprintf(&list, "%s <b>#%s</b> %s (%s)",
				glyph(in.Severity), in.ID, truncateTitle(in.Title), HumanDuration(in.Age(now)))
		}
		if hidden := len(r.Active) - len(shown); hidden > 0 {
			fmt.Fprintf(&list, "<br><i>...and %d more</i>", hidden)
		}
		sections = append(sections, list.String())
	}

	sections = append(sections, fmt.Sprintf("<i>Generated %s</i>",
		r.GeneratedAt.In(window.Anchor).Format("2006-01-02 15:04 MST")))
	return title, sections
}
