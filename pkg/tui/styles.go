// Package tui implements the interactive active-incident browser. It
// fetches through the same engine as the report commands, so browsing
// shares the disk cache, and renders a Bubble Tea list with a markdown
// detail view.
package tui

import "github.com/charmbracelet/lipgloss"

// Severity glyphs match the report renderer so both surfaces read the
// same.
const (
	GlyphCritical = "🔴"
	GlyphMajor    = "🟠"
	GlyphMinor    = "🟡"
	GlyphPending  = "⚪"
	GlyphUnknown  = "❓"
)

// Palette adapts to terminal capabilities via lipgloss.
var (
	colorRed    = lipgloss.Color("196")
	colorOrange = lipgloss.Color("214")
	colorYellow = lipgloss.Color("226")
	colorCyan   = lipgloss.Color("51")
	colorGreen  = lipgloss.Color("42")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var countBadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(colorOrange).
	Padding(0, 1)

// --- Incident list styles ---

var (
	rowNormal = lipgloss.NewStyle().
			Foreground(colorWhite)

	rowSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	rowDim = lipgloss.NewStyle().
		Faint(true)

	breachStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	onTrackStyle = lipgloss.NewStyle().
			Foreground(colorGreen)
)

// --- Detail panel styles ---

var panelBorder = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorDim).
	Padding(0, 1)

// --- Key bar styles ---

var (
	keyStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	keyDescStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	keyBarStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

var errorStyle = lipgloss.NewStyle().
	Foreground(colorRed).
	Bold(true)

var spinnerStyle = lipgloss.NewStyle().
	Foreground(colorYellow)

// severityGlyph picks the list glyph for a severity label.
func severityGlyph(severity string) string {
	switch severity {
	case "Critical":
		return GlyphCritical
	case "Major":
		return GlyphMajor
	case "Minor":
		return GlyphMinor
	case "Pending", "":
		return GlyphPending
	default:
		return GlyphUnknown
	}
}
