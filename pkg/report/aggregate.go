package report

import (
	"time"

	"github.com/ormasoftchile/sitrep/pkg/irm"
	"github.com/ormasoftchile/sitrep/pkg/window"
)

// Aggregate builds a Report over incidents for one window.
//
// Partitions follow half-open window semantics: active means opened by
// win.End and still open at win.End (no resolved-at, or resolved-at >=
// win.End); opened and resolved membership test win.Start <= t < win.End
// on the respective timestamp. Incidents opened after the window closed
// belong to a later period and are invisible here. now is the reference instant for SLA posture and ages on
// active incidents; callers pass win.End for historical windows and the
// wall clock for a window still in progress.
func Aggregate(incidents []irm.Incident, win window.Window, now time.Time) *Report {
	r := &Report{
		Window:      win,
		GeneratedAt: now,
		BySeverity:  map[string]int{},
	}

	for _, in := range incidents {
		if in.Active(win.End) && !in.OpenedAt.After(win.End) {
			r.Active = append(r.Active, in)
			if in.OpenedAt.Before(win.Start) {
				r.Totals.CarryOver++
			}
		}
		if win.Contains(in.OpenedAt) {
			r.Opened = append(r.Opened, in)
		}
		if in.ResolvedAt != nil && win.Contains(*in.ResolvedAt) {
			r.Resolved = append(r.Resolved, in)
		}
	}
	r.Totals.Active = len(r.Active)
	r.Totals.Opened = len(r.Opened)
	r.Totals.Resolved = len(r.Resolved)
	r.Totals.NetChange = r.Totals.Opened - r.Totals.Resolved

	r.MTTR = meanTimeToResolve(r.Resolved)
	r.OldestAge = oldestActiveAge(r.Active, win.End)
	r.PerDay = perDayBreakdown(incidents, win)

	for _, in := range r.Active {
		r.BySeverity[severityOrUnknown(in)]++
		bucketActive(&r.AgeBuckets, in, now)
		countAttention(&r.Attention, in, now)
	}
	for _, in := range r.Resolved {
		// Breaches survive resolution: resolving after the deadline
		// still counts against the window.
		if in.SLADeadline != nil && in.ResolvedAt.After(*in.SLADeadline) {
			r.Attention.OverSLA++
		}
	}

	SortActive(r.Active, now)
	sortByOpened(r.Opened)
	sortByResolved(r.Resolved)
	return r
}

// meanTimeToResolve averages resolution time over the window's resolved
// incidents. Nil, not zero, when nothing resolved: an empty window has
// no MTTR rather than a perfect one.
func meanTimeToResolve(resolved []irm.Incident) *time.Duration {
	if len(resolved) == 0 {
		return nil
	}
	var total time.Duration
	for _, in := range resolved {
		total += in.ResolvedAt.Sub(in.OpenedAt)
	}
	mean := total / time.Duration(len(resolved))
	return &mean
}

func oldestActiveAge(active []irm.Incident, end time.Time) *time.Duration {
	if len(active) == 0 {
		return nil
	}
	var oldest time.Duration
	for _, in := range active {
		if age := in.Age(end); age > oldest {
			oldest = age
		}
	}
	return &oldest
}

// perDayBreakdown buckets opened and resolved events by local calendar
// day across the window. Every day appears, including empty ones, so
// renderers draw a complete row per day.
func perDayBreakdown(incidents []irm.Incident, win window.Window) []DayCount {
	days := win.LocalDays()
	counts := make([]DayCount, len(days))
	index := make(map[string]int, len(days))
	for i, d := range days {
		counts[i] = DayCount{Date: d}
		index[d.Format(time.DateOnly)] = i
	}

	for _, in := range incidents {
		if win.Contains(in.OpenedAt) {
			if i, ok := index[window.LocalDay(in.OpenedAt).Format(time.DateOnly)]; ok {
				counts[i].Opened++
			}
		}
		if in.ResolvedAt != nil && win.Contains(*in.ResolvedAt) {
			if i, ok := index[window.LocalDay(*in.ResolvedAt).Format(time.DateOnly)]; ok {
				counts[i].Resolved++
			}
		}
	}
	return counts
}

func bucketActive(b *AgeBuckets, in irm.Incident, now time.Time) {
	if in.SLADeadline == nil {
		b.NoDeadline++
		return
	}
	budget := in.SLADeadline.Sub(in.OpenedAt)
	consumed := now.Sub(in.OpenedAt)
	switch {
	case now.After(*in.SLADeadline):
		b.Overdue++
	case budget > 0 && consumed*5 >= budget*4: // >= 80% consumed
		b.AtRisk++
	default:
		b.OnTrack++
	}
}

func countAttention(a *Attention, in irm.Incident, now time.Time) {
	if !in.HasAssignee {
		a.WithoutAssignee++
	}
	if in.SLADeadline != nil && now.After(*in.SLADeadline) {
		a.OverSLA++
	}
	if in.Severity == "" || in.Severity == "Pending" {
		a.WithoutSeverity++
	}
	if in.LastUpdate == nil || now.Sub(*in.LastUpdate) > StaleUpdateAfter {
		a.MissingUpdate++
	}
}

func severityOrUnknown(in irm.Incident) string {
	if in.Severity == "" {
		return "Unknown"
	}
	return in.Severity
}
