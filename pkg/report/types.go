// Package report computes summary reports over normalized incidents.
// Everything here is pure: incidents in, Report out, no I/O and no
// reads of the system clock.
package report

import (
	"time"

	"github.com/ormasoftchile/sitrep/pkg/irm"
	"github.com/ormasoftchile/sitrep/pkg/window"
)

// StaleUpdateAfter is how long an active incident may go without a
// human update before it is flagged in the attention counts.
const StaleUpdateAfter = 24 * time.Hour

// Totals are the headline counts of a report.
type Totals struct {
	Active    int `json:"active"`    // still open at window end
	Opened    int `json:"opened"`    // opened inside the window
	Resolved  int `json:"resolved"`  // resolved inside the window
	CarryOver int `json:"carryOver"` // open at window end, opened before window start
	NetChange int `json:"netChange"` // opened minus resolved
}

// DayCount is one local calendar day of the window's breakdown. Date is
// midnight of that day in the anchor offset.
type DayCount struct {
	Date     time.Time `json:"date"`
	Opened   int       `json:"opened"`
	Resolved int       `json:"resolved"`
}

// AgeBuckets classifies active incidents by SLA posture. AtRisk means
// at least 80% of the SLA budget is consumed; Overdue means the
// deadline has passed. Incidents with no deadline (unknown severity)
// are counted apart rather than presumed on track.
type AgeBuckets struct {
	OnTrack    int `json:"onTrack"`
	AtRisk     int `json:"atRisk"`
	Overdue    int `json:"overdue"`
	NoDeadline int `json:"noDeadline"`
}

// Attention counts active incidents that need a human to look at them.
type Attention struct {
	WithoutAssignee int `json:"withoutAssignee"`
	OverSLA         int `json:"overSLA"`
	WithoutSeverity int `json:"withoutSeverity"`
	MissingUpdate   int `json:"missingUpdate"`
}

// Report is the aggregation result for one window. Built fresh per
// invocation and never mutated afterward; renderers and exporters
// consume it as-is.
type Report struct {
	Window      window.Window `json:"window"`
	GeneratedAt time.Time     `json:"generatedAt"`

	Totals     Totals         `json:"totals"`
	MTTR       *time.Duration `json:"mttr,omitempty"`            // nil when nothing resolved in window
	OldestAge  *time.Duration `json:"oldestActiveAge,omitempty"` // nil when nothing active
	PerDay     []DayCount     `json:"perDay"`
	BySeverity map[string]int `json:"bySeverity"` // active incidents per severity
	AgeBuckets AgeBuckets     `json:"ageBuckets"`
	Attention  Attention      `json:"attention"`

	// Incident lists backing the counts. Active is priority-ordered;
	// Opened and Resolved are ordered by the relevant timestamp.
	Active   []irm.Incident `json:"activeIncidents"`
	Opened   []irm.Incident `json:"openedIncidents"`
	Resolved []irm.Incident `json:"resolvedIncidents"`

	// DroppedRecords is how many raw records normalization discarded
	// for missing required fields. Set by the caller that fetched the
	// records; aggregation itself never drops anything.
	DroppedRecords int `json:"droppedRecords"`
}
