package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/sitrep/pkg/engine"
	"github.com/ormasoftchile/sitrep/pkg/irm"
	"github.com/ormasoftchile/sitrep/pkg/render"
)

// --- Tea messages ---

// incidentsMsg delivers a refreshed active incident list.
type incidentsMsg struct {
	incidents []irm.Incident
	err       error
}

// detailMsg delivers one rendered incident detail.
type detailMsg struct {
	id       string
	rendered string
	err      error
}

// viewState selects what the browser is showing.
type viewState int

const (
	stateLoading viewState = iota
	stateList
	stateDetail
)

// fetchTimeout bounds each upstream call issued from the UI loop.
const fetchTimeout = 60 * time.Second

// Model is the Bubble Tea model for the incident browser.
type Model struct {
	engine  *engine.Engine
	spinner spinner.Model

	state     viewState
	incidents []irm.Incident
	selected  int
	now       time.Time

	detailID   string
	detailBody []string
	detailTop  int

	width  int
	height int
	err    error
}

// NewModel creates a browser model bound to an engine.
func NewModel(eng *engine.Engine) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return Model{
		engine:  eng,
		spinner: sp,
		state:   stateLoading,
		now:     eng.Now(),
	}
}

// Run starts the browser in the alternate screen and blocks until quit.
func Run(eng *engine.Engine) error {
	_, err := tea.NewProgram(NewModel(eng), tea.WithAltScreen()).Run()
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadIncidents())
}

func (m Model) loadIncidents() tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		incidents, err := eng.ActiveIncidents(ctx)
		return incidentsMsg{incidents: incidents, err: err}
	}
}

func (m Model) loadDetail(in irm.Incident) tea.Cmd {
	eng := m.engine
	now := m.now
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		raw, err := eng.IncidentDetail(ctx, in.ID)
		if err != nil {
			return detailMsg{id: in.ID, err: err}
		}
		return detailMsg{id: in.ID, rendered: renderDetail(in, raw, now)}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Up):
			if m.state == stateDetail {
				m.scrollDetail(-1)
			} else if m.selected > 0 {
				m.selected--
			}

		case key.Matches(msg, keys.Down):
			if m.state == stateDetail {
				m.scrollDetail(1)
			} else if m.selected < len(m.incidents)-1 {
				m.selected++
			}

		case key.Matches(msg, keys.PgUp):
			if m.state == stateDetail {
				m.scrollDetail(-m.pageSize())
			}

		case key.Matches(msg, keys.PgDown):
			if m.state == stateDetail {
				m.scrollDetail(m.pageSize())
			}

		case key.Matches(msg, keys.Open):
			if m.state == stateList && len(m.incidents) > 0 {
				in := m.incidents[m.selected]
				m.state = stateDetail
				m.detailID = in.ID
				m.detailBody = nil
				m.detailTop = 0
				return m, tea.Batch(m.spinner.Tick, m.loadDetail(in))
			}

		case key.Matches(msg, keys.Back):
			if m.state == stateDetail {
				m.state = stateList
			}

		case key.Matches(msg, keys.Refresh):
			if m.state == stateList {
				m.state = stateLoading
				m.err = nil
				return m, tea.Batch(m.spinner.Tick, m.loadIncidents())
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		if m.state == stateLoading || (m.state == stateDetail && m.detailBody == nil) {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case incidentsMsg:
		m.now = m.engine.Now()
		m.state = stateList
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.incidents = msg.incidents
		if m.selected >= len(m.incidents) {
			m.selected = max(len(m.incidents)-1, 0)
		}

	case detailMsg:
		// A response for an incident the user already backed out of is
		// dropped.
		if m.state != stateDetail || msg.id != m.detailID {
			return m, nil
		}
		if msg.err != nil {
			m.err = msg.err
			m.state = stateList
			return m, nil
		}
		m.detailBody = strings.Split(msg.rendered, "\n")
	}

	return m, nil
}

func (m *Model) scrollDetail(delta int) {
	maxTop := max(len(m.detailBody)-m.pageSize(), 0)
	m.detailTop = min(max(m.detailTop+delta, 0), maxTop)
}

// pageSize is the detail panel height in lines.
func (m Model) pageSize() int {
	if m.height <= 8 {
		return 20
	}
	return m.height - 8
}

// listHeight is how many incident rows fit on screen.
func (m Model) listHeight() int {
	if m.height <= 6 {
		return 30
	}
	return m.height - 6
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	title := headerStyle.Render("sitrep · active incidents")
	if m.state != stateLoading {
		title += " " + countBadgeStyle.Render(fmt.Sprintf("%d", len(m.incidents)))
	}
	b.WriteString(title + "\n\n")

	switch m.state {
	case stateLoading:
		b.WriteString("  " + m.spinner.View() + " fetching active incidents...\n")
	case stateDetail:
		b.WriteString(m.viewDetail())
	default:
		b.WriteString(m.viewList())
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("  error: "+m.err.Error()) + "\n")
	}

	b.WriteString("\n" + keyBarStyle.Render(keyBarText(m.state)))
	return b.String()
}

func (m Model) viewList() string {
	if len(m.incidents) == 0 {
		return rowDim.Render("  nothing active right now") + "\n"
	}

	var b strings.Builder
	visible := m.listHeight()
	top := 0
	if m.selected >= visible {
		top = m.selected - visible + 1
	}
	end := min(top+visible, len(m.incidents))

	for i := top; i < end; i++ {
		line := m.rowText(m.incidents[i])
		if i == m.selected {
			b.WriteString(rowSelected.Render("▸ "+line) + "\n")
		} else {
			b.WriteString(rowNormal.Render("  "+line) + "\n")
		}
	}
	if rest := len(m.incidents) - end; rest > 0 {
		b.WriteString(rowDim.Render(fmt.Sprintf("  …%d more below", rest)) + "\n")
	}
	return b.String()
}

// rowText formats one list row: glyph, ID, title, age, owner, and SLA
// standing.
func (m Model) rowText(in irm.Incident) string {
	title := runewidth.Truncate(in.Title, 60, "…")

	owner := "unassigned"
	if in.HasAssignee {
		owner = "team"
		if in.Assignee != "" {
			owner = in.Assignee
		}
	}

	line := fmt.Sprintf("%s #%s  %s · %s · %s",
		severityGlyph(in.Severity), in.ID, title, render.HumanDuration(in.Age(m.now)), owner)

	if in.SLADeadline != nil {
		if m.now.After(*in.SLADeadline) {
			line += " · " + breachStyle.Render(render.HumanDuration(m.now.Sub(*in.SLADeadline))+" over SLA")
		} else {
			line += " · " + onTrackStyle.Render("on track")
		}
	}
	return line
}

func (m Model) viewDetail() string {
	if m.detailBody == nil {
		return "  " + m.spinner.View() + " loading detail...\n"
	}

	size := m.pageSize()
	end := min(m.detailTop+size, len(m.detailBody))
	body := strings.Join(m.detailBody[m.detailTop:end], "\n")

	width := m.width - 4
	if width < 20 {
		width = 76
	}
	return panelBorder.Width(width).Render(body) + "\n"
}
