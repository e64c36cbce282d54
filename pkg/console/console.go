// Package console implements the interactive query console for
// incident data. It drives the same engine as the report commands, so
// ad-hoc queries share the disk cache and the marker validation that
// keeps it honest.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/sitrep/pkg/engine"
	"github.com/ormasoftchile/sitrep/pkg/filter"
	"github.com/ormasoftchile/sitrep/pkg/render"
	"github.com/ormasoftchile/sitrep/pkg/window"
)

// Console provides an interactive REPL over incident queries.
type Console struct {
	engine    *engine.Engine
	output    io.Writer
	rl        *readline.Instance
	filter    *filter.Filter
	filterSrc string
}

// New creates a console bound to an engine.
func New(eng *engine.Engine) *Console {
	return &Console{engine: eng, output: os.Stdout}
}

// Run starts the interactive REPL loop.
func (c *Console) Run(ctx context.Context) error {
	commands := []string{"active", "report", "show", "filter", "cache", "help", "quit"}

	completer := readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.buildPrompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	c.rl = rl
	defer rl.Close()

	fmt.Fprintf(c.output, "sitrep query console\n")
	fmt.Fprintf(c.output, "Type 'help' for available commands, 'active' to list open incidents.\n\n")

	for {
		rl.SetPrompt(c.buildPrompt())
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)

		switch parts[0] {
		case "active", "a":
			if err := c.handleActive(ctx); err != nil {
				fmt.Fprintf(c.output, "Error: %v\n", err)
			}
		case "report", "r":
			if err := c.handleReport(ctx, parts); err != nil {
				fmt.Fprintf(c.output, "Error: %v\n", err)
			}
		case "show":
			if err := c.handleShow(ctx, parts); err != nil {
				fmt.Fprintf(c.output, "Error: %v\n", err)
			}
		case "filter", "f":
			c.handleFilter(line)
		case "cache":
			c.handleCache(parts)
		case "help", "?":
			c.handleHelp()
		case "quit", "q", "exit":
			fmt.Fprintf(c.output, "Bye.\n")
			return nil
		default:
			fmt.Fprintf(c.output, "Unknown command: %q. Type 'help' for available commands.\n", parts[0])
		}
	}
}

// buildPrompt shows the session filter so the user remembers results
// are narrowed.
func (c *Console) buildPrompt() string {
	if c.filterSrc == "" {
		return "sitrep> "
	}
	src := c.filterSrc
	if len(src) > 24 {
		src = src[:23] + "…"
	}
	return fmt.Sprintf("sitrep[%s]> ", src)
}

// sessionEngine returns an engine copy carrying the session filter.
func (c *Console) sessionEngine() *engine.Engine {
	eng := *c.engine
	if c.filter != nil {
		eng.Filter = c.filter
	}
	return &eng
}

func (c *Console) handleActive(ctx context.Context) error {
	eng := c.sessionEngine()
	incidents, err := eng.ActiveIncidents(ctx)
	if err != nil {
		return err
	}

	if len(incidents) == 0 {
		fmt.Fprintln(c.output, "No active incidents.")
		return nil
	}

	now := eng.Now()
	fmt.Fprintf(c.output, "%d active incident(s):\n\n", len(incidents))
	for _, in := range incidents {
		owner := "unassigned"
		if in.HasAssignee {
			owner = "team"
			if in.Assignee != "" {
				owner = in.Assignee
			}
		}
		fmt.Fprintf(c.output, "  #%-6s %-8s %-10s %s\n",
			in.ID, in.Severity, render.HumanDuration(in.Age(now)), owner)
		if in.SLADeadline != nil && now.After(*in.SLADeadline) {
			fmt.Fprintf(c.output, "          ⚠ %s over SLA\n", render.HumanDuration(now.Sub(*in.SLADeadline)))
		}
	}
	return nil
}

func (c *Console) handleReport(ctx context.Context, parts []string) error {
	kind := window.Weekly
	offset := 0
	if len(parts) > 1 {
		kind = window.Kind(parts[1])
	}
	if len(parts) > 2 {
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			return fmt.Errorf("offset %q is not a number", parts[2])
		}
		offset = n
	}

	eng := c.sessionEngine()
	win, err := window.Resolve(kind, "", offset, eng.Now())
	if err != nil {
		return err
	}
	rep, err := eng.BuildReport(ctx, win)
	if err != nil {
		return err
	}
	fmt.Fprint(c.output, render.Terminal(render.Markdown(rep, render.Options{MaxActive: 10})))
	return nil
}

func (c *Console) handleShow(ctx context.Context, parts []string) error {
	if len(parts) < 2 {
		return fmt.Errorf("usage: show <incident-id>")
	}
	raw, err := c.engine.IncidentDetail(ctx, parts[1])
	if err != nil {
		return err
	}
	var pretty json.RawMessage = raw
	data, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Fprintln(c.output, string(raw))
		return nil
	}
	fmt.Fprintln(c.output, string(data))
	return nil
}

// handleFilter sets, shows, or clears the session filter.
func (c *Console) handleFilter(line string) {
	fields := strings.Fields(line)
	src := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	if src == "" {
		if c.filterSrc == "" {
			fmt.Fprintln(c.output, "No session filter set. Usage: filter severity == \"Critical\"")
			return
		}
		c.filter = nil
		c.filterSrc = ""
		fmt.Fprintln(c.output, "Filter cleared.")
		return
	}

	f, err := filter.Compile(src)
	if err != nil {
		fmt.Fprintf(c.output, "Error: %v\n", err)
		return
	}
	c.filter = f
	c.filterSrc = src
	fmt.Fprintf(c.output, "Filter set: %s\n", src)
}

func (c *Console) handleCache(parts []string) {
	store := c.engine.Cache
	if store == nil {
		fmt.Fprintln(c.output, "Cache is disabled.")
		return
	}

	if len(parts) > 1 && parts[1] == "clear" {
		n, err := store.Clear()
		if err != nil {
			fmt.Fprintf(c.output, "Error: %v\n", err)
			return
		}
		fmt.Fprintf(c.output, "✓ cleared %d cache entries\n", n)
		return
	}

	stats, err := store.Stats()
	if err != nil {
		fmt.Fprintf(c.output, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.output, "Entries:  %d\n", stats.EntryCount)
	fmt.Fprintf(c.output, "Size:     %d bytes\n", stats.TotalBytes)
	fmt.Fprintf(c.output, "Session:  %d hits, %d misses\n", store.Hits(), store.Misses())
}

func (c *Console) handleHelp() {
	fmt.Fprint(c.output, `Commands:
  active              List active incidents, priority-sorted
  report [kind] [n]   Build a report: kind is daily/weekly/monthly, n periods back
  show <id>           Print one incident's full record as JSON
  filter [expr]       Set the session filter; no argument clears it
  cache [clear]       Show cache stats, or wipe the cache
  help                Show this help
  quit                Exit the console
`)
}
