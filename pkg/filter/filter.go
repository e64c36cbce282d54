// Package filter compiles user-supplied expressions into incident
// predicates. Expressions use expr-lang syntax over a flat field
// environment, e.g.:
//
//	severity == "Critical" && ageDays > 2
//	"payments" in labels
//	!hasAssignee || overSLA
package filter

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ormasoftchile/sitrep/pkg/irm"
)

// Filter is a compiled predicate. A nil *Filter matches everything, so
// callers can thread an optional filter without branching.
type Filter struct {
	src     string
	program *vm.Program
}

// Compile parses and type-checks an expression. Empty input yields the
// nil match-all filter.
func Compile(src string) (*Filter, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}
	program, err := expr.Compile(src, expr.Env(environment(irm.Incident{}, time.Time{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", src, err)
	}
	return &Filter{src: src, program: program}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.src
}

// Match evaluates the predicate against one incident. now feeds the
// age and SLA fields.
func (f *Filter) Match(in irm.Incident, now time.Time) (bool, error) {
	if f == nil {
		return true, nil
	}
	output, err := expr.Run(f.program, environment(in, now))
	if err != nil {
		return false, fmt.Errorf("eval filter %q: %w", f.src, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("filter %q did not return bool (got %T)", f.src, output)
	}
	return result, nil
}

// Apply returns the incidents the predicate keeps, preserving order.
// A runtime fault on one incident (an out-of-range index, say) counts
// as a non-match: the incident is dropped and the fault logged at
// debug, never aborting the run. Hard failures belong to Compile.
func (f *Filter) Apply(incidents []irm.Incident, now time.Time) []irm.Incident {
	if f == nil {
		return incidents
	}
	kept := make([]irm.Incident, 0, len(incidents))
	for _, in := range incidents {
		ok, err := f.Match(in, now)
		if err != nil {
			slog.Debug("filter eval failed, treating as non-match", "incident", in.ID, "err", err)
			continue
		}
		if ok {
			kept = append(kept, in)
		}
	}
	return kept
}

// environment flattens an incident into the fields expressions can
// reference. labels is always non-nil so `in` checks never see null.
func environment(in irm.Incident, now time.Time) map[string]any {
	labels := in.Labels
	if labels == nil {
		labels = []string{}
	}
	return map[string]any{
		"id":          in.ID,
		"title":       in.Title,
		"severity":    in.Severity,
		"status":      in.Status,
		"labels":      labels,
		"assignee":    in.Assignee,
		"hasAssignee": in.HasAssignee,
		"resolved":    in.ResolvedAt != nil,
		"ageDays":     in.Age(now).Hours() / 24,
		"overSLA":     in.SLADeadline != nil && now.After(*in.SLADeadline),
	}
}
