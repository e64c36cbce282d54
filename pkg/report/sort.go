package report

import (
	"sort"
	"time"

	"github.com/ormasoftchile/sitrep/pkg/irm"
)

// severityRank orders severities for display, most urgent first.
// Unknown severities sort after Pending.
var severityRank = map[string]int{
	"Critical": 0,
	"Major":    1,
	"Minor":    2,
	"Pending":  3,
}

func rankOf(severity string) int {
	if r, ok := severityRank[severity]; ok {
		return r
	}
	return 4
}

// SortActive orders active incidents by triage priority: SLA breaches
// first (deepest breach leading), then severity, then age, oldest
// first within a severity. Ties break on ID so output is stable across
// runs.
func SortActive(incidents []irm.Incident, now time.Time) {
	sort.SliceStable(incidents, func(i, j int) bool {
		a, b := incidents[i], incidents[j]

		aOver, bOver := overBy(a, now), overBy(b, now)
		if (aOver > 0) != (bOver > 0) {
			return aOver > 0
		}
		if aOver != bOver {
			return aOver > bOver
		}
		if ra, rb := rankOf(a.Severity), rankOf(b.Severity); ra != rb {
			return ra < rb
		}
		if aAge, bAge := a.Age(now), b.Age(now); aAge != bAge {
			return aAge > bAge
		}
		return a.ID < b.ID
	})
}

// overBy is how far past its SLA deadline an incident is, zero when on
// time or without a deadline.
func overBy(in irm.Incident, now time.Time) time.Duration {
	if in.SLADeadline == nil || !now.After(*in.SLADeadline) {
		return 0
	}
	return now.Sub(*in.SLADeadline)
}

func sortByOpened(incidents []irm.Incident) {
	sort.SliceStable(incidents, func(i, j int) bool {
		if !incidents[i].OpenedAt.Equal(incidents[j].OpenedAt) {
			return incidents[i].OpenedAt.Before(incidents[j].OpenedAt)
		}
		return incidents[i].ID < incidents[j].ID
	})
}

func sortByResolved(incidents []irm.Incident) {
	sort.SliceStable(incidents, func(i, j int) bool {
		if !incidents[i].ResolvedAt.Equal(*incidents[j].ResolvedAt) {
			return incidents[i].ResolvedAt.Before(*incidents[j].ResolvedAt)
		}
		return incidents[i].ID < incidents[j].ID
	})
}
