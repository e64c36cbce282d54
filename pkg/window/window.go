// Package window resolves reporting windows (daily, weekly, monthly)
// anchored to a fixed local offset.
//
// Calendar boundaries are decided in the anchor zone first and only then
// converted to UTC; windows are never produced by shifting UTC dates.
// Weeks run Tuesday 00:00 local to the following Tuesday 00:00 local,
// months run first-of-month to first-of-next-month local.
package window

import (
	"fmt"
	"time"
)

// Kind selects the reporting period.
type Kind string

const (
	Daily   Kind = "daily"
	Weekly  Kind = "weekly"
	Monthly Kind = "monthly"
)

// Anchor is the fixed local offset used for calendar-boundary decisions.
// Everything else (storage, comparison) stays in UTC.
var Anchor = time.FixedZone("GMT+7", 7*60*60)

// Window is a half-open reporting interval [Start, End) in UTC.
// Label is a pre-formatted local-date string for presentation only.
type Window struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Kind   Kind      `json:"kind"`
	Offset int       `json:"offset"`
	Label  string    `json:"label"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// LocalStart returns the window start in the anchor zone.
func (w Window) LocalStart() time.Time { return w.Start.In(Anchor) }

// LocalEnd returns the exclusive window end in the anchor zone.
func (w Window) LocalEnd() time.Time { return w.End.In(Anchor) }

// LocalDays returns the midnight of every local calendar day spanned by
// the window, in order. A weekly window yields 7 entries.
func (w Window) LocalDays() []time.Time {
	var days []time.Time
	for d := w.LocalStart(); d.Before(w.LocalEnd()); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// LocalDay truncates t to the midnight of its local calendar day.
func LocalDay(t time.Time) time.Time {
	lt := t.In(Anchor)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, Anchor)
}

// InvalidWindowError reports unusable window input: a bad date, a
// negative offset, or conflicting parameters. Callers must abort before
// touching the network.
type InvalidWindowError struct {
	Reason string
}

func (e *InvalidWindowError) Error() string {
	return "invalid window: " + e.Reason
}

// Resolve computes the reporting window for kind, offset periods into
// the past. now is injected so resolution stays deterministic under
// test; it is the only clock input.
//
// explicitDate ("2006-01-02", read in the anchor zone) selects that
// single local calendar day regardless of kind and is mutually exclusive
// with a nonzero offset.
func Resolve(kind Kind, explicitDate string, offset int, now time.Time) (Window, error) {
	if offset < 0 {
		return Window{}, &InvalidWindowError{Reason: fmt.Sprintf("offset must not be negative, got %d", offset)}
	}
	if explicitDate != "" {
		if offset != 0 {
			return Window{}, &InvalidWindowError{Reason: "an explicit date and a period offset are mutually exclusive"}
		}
		day, err := time.ParseInLocation("2006-01-02", explicitDate, Anchor)
		if err != nil {
			return Window{}, &InvalidWindowError{Reason: fmt.Sprintf("cannot parse date %q, expected YYYY-MM-DD", explicitDate)}
		}
		return dayWindow(day, 0), nil
	}

	local := now.In(Anchor)
	switch kind {
	case Daily:
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Anchor)
		return dayWindow(day.AddDate(0, 0, -offset), offset), nil

	case Weekly:
		return weekAt(weekStart(local).AddDate(0, 0, -7*offset), offset), nil

	case Monthly:
		first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, Anchor)
		start := first.AddDate(0, -offset, 0)
		return Window{
			Start:  start.UTC(),
			End:    start.AddDate(0, 1, 0).UTC(),
			Kind:   Monthly,
			Offset: offset,
			Label:  start.Format("January 2006"),
		}, nil

	default:
		return Window{}, &InvalidWindowError{Reason: fmt.Sprintf("unknown report kind %q", kind)}
	}
}

// WeeklyRange returns the Tuesday-anchored weekly windows intersecting
// the given calendar year, oldest first, capped at the week containing
// now. Used to warm a year of cache.
func WeeklyRange(year int, now time.Time) []Window {
	jan1 := time.Date(year, 1, 1, 0, 0, 0, 0, Anchor)
	yearEnd := jan1.AddDate(1, 0, 0)
	current := weekStart(now.In(Anchor))

	var out []Window
	for s := weekStart(jan1); s.Before(yearEnd) && !s.After(current); s = s.AddDate(0, 0, 7) {
		offset := int(current.Sub(s).Hours()) / (7 * 24)
		out = append(out, weekAt(s, offset))
	}
	return out
}

// weekStart returns the most recent local Tuesday midnight at or before t.
func weekStart(t time.Time) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Anchor)
	back := (int(t.Weekday()) - int(time.Tuesday) + 7) % 7
	return midnight.AddDate(0, 0, -back)
}

func weekAt(start time.Time, offset int) Window {
	end := start.AddDate(0, 0, 7)
	return Window{
		Start:  start.UTC(),
		End:    end.UTC(),
		Kind:   Weekly,
		Offset: offset,
		Label:  rangeLabel(start, end.AddDate(0, 0, -1)),
	}
}

func dayWindow(day time.Time, offset int) Window {
	return Window{
		Start:  day.UTC(),
		End:    day.AddDate(0, 0, 1).UTC(),
		Kind:   Daily,
		Offset: offset,
		Label:  day.Format("2 Jan 2006"),
	}
}

// rangeLabel formats an inclusive local date range, collapsing month and
// year when both ends share them: "21-27 Oct 2025", "28 Oct - 3 Nov 2025".
func rangeLabel(first, last time.Time) string {
	switch {
	case first.Year() != last.Year():
		return fmt.Sprintf("%s - %s", first.Format("2 Jan 2006"), last.Format("2 Jan 2006"))
	case first.Month() != last.Month():
		return fmt.Sprintf("%s - %s", first.Format("2 Jan"), last.Format("2 Jan 2006"))
	default:
		return fmt.Sprintf("%d-%s", first.Day(), last.Format("2 Jan 2006"))
	}
}
