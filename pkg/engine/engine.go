// Package engine composes the window resolver, disk cache, API client
// and aggregator into report operations. The engine owns no policy of
// its own: windows come from the resolver, staleness from the cache,
// wire details from the client, and math from the aggregator.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ormasoftchile/sitrep/pkg/cache"
	"github.com/ormasoftchile/sitrep/pkg/filter"
	"github.com/ormasoftchile/sitrep/pkg/irm"
	"github.com/ormasoftchile/sitrep/pkg/report"
	"github.com/ormasoftchile/sitrep/pkg/window"
)

// Source is the upstream incident API the engine reads from.
// *irm.Client implements it; tests substitute fakes.
type Source interface {
	FetchRaw(ctx context.Context, q irm.Query) ([]json.RawMessage, error)
	CurrentMarker(ctx context.Context, q irm.Query) (string, error)
	FetchActivityRaw(ctx context.Context, incidentID string) ([]json.RawMessage, error)
	GetIncident(ctx context.Context, incidentID string) (json.RawMessage, error)
}

// Engine runs report operations. Construct with New, then adjust the
// exported fields before first use.
type Engine struct {
	Source Source
	Cache  *cache.Cache
	Logger *slog.Logger

	// SLADays maps severity to its resolution target in days; it feeds
	// normalization, which stamps deadlines onto incidents.
	SLADays map[string]int

	// Filter, when set, narrows every operation's incident set.
	Filter *filter.Filter

	// Now is injectable for tests; window math and SLA posture flow
	// from it.
	Now func() time.Time

	// NoCache bypasses the disk cache for this run (--no-cache).
	NoCache bool

	// Concurrency bounds parallel upstream work (activity enrichment,
	// cache warming).
	Concurrency int

	// EnrichActivity fetches the latest human update for each active
	// incident. Costs one upstream call per incident on cache miss.
	EnrichActivity bool
}

// New returns an engine with defaults suitable for CLI use.
func New(source Source, store *cache.Cache) *Engine {
	return &Engine{
		Source:      source,
		Cache:       store,
		Logger:      slog.Default(),
		Now:         time.Now,
		Concurrency: 4,
	}
}

// BuildReport fetches (through the cache), normalizes, filters,
// optionally enriches, and aggregates one window into a Report.
//
// The upstream query is bounded above by the window end only: incidents
// opened long before the window still count toward the active and
// carry-over totals.
func (e *Engine) BuildReport(ctx context.Context, win window.Window) (*report.Report, error) {
	q := irm.Query{DateTo: win.End}
	records, err := e.fetchRecords(ctx, q)
	if err != nil {
		return nil, err
	}

	incidents, dropped := irm.Normalize(records, e.SLADays, e.Logger)

	ref := e.referenceNow(win)
	incidents = e.Filter.Apply(incidents, ref)

	if e.EnrichActivity {
		e.enrichActive(ctx, incidents, win.End)
	}

	rep := report.Aggregate(incidents, win, ref)
	rep.DroppedRecords = dropped

	e.Logger.Debug("report built",
		"window", win.Label, "incidents", len(incidents), "dropped", dropped,
		"active", rep.Totals.Active, "opened", rep.Totals.Opened, "resolved", rep.Totals.Resolved)
	return rep, nil
}

// ActiveIncidents returns the current active set, priority-sorted, for
// interactive views.
func (e *Engine) ActiveIncidents(ctx context.Context) ([]irm.Incident, error) {
	records, err := e.fetchRecords(ctx, irm.Query{Statuses: []string{"active"}})
	if err != nil {
		return nil, err
	}
	all, _ := irm.Normalize(records, e.SLADays, e.Logger)

	// The upstream status filter can lag a just-resolved incident, so
	// re-check locally.
	now := e.Now()
	incidents := all[:0:0]
	for _, in := range all {
		if in.Active(now) {
			incidents = append(incidents, in)
		}
	}

	incidents = e.Filter.Apply(incidents, now)
	if e.EnrichActivity {
		e.enrichActive(ctx, incidents, now)
	}
	report.SortActive(incidents, now)
	return incidents, nil
}

// IncidentDetail fetches one incident's full raw record.
func (e *Engine) IncidentDetail(ctx context.Context, incidentID string) (json.RawMessage, error) {
	return e.Source.GetIncident(ctx, incidentID)
}

// WarmStats summarizes a cache warming run.
type WarmStats struct {
	Windows  int
	Failures int
}

// WarmYear pre-fetches every weekly window of a year into the cache,
// bounded by Concurrency so the upstream rate limit survives. A window
// that fails transiently is logged and counted; an auth failure aborts
// the whole run.
func (e *Engine) WarmYear(ctx context.Context, year int) (WarmStats, error) {
	windows := window.WeeklyRange(year, e.Now())
	stats := WarmStats{Windows: len(windows)}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Concurrency)
	failures := make([]bool, len(windows))
	for i, win := range windows {
		g.Go(func() error {
			_, err := e.fetchRecords(ctx, irm.Query{DateTo: win.End})
			if err == nil {
				return nil
			}
			var authErr *irm.AuthError
			if errors.As(err, &authErr) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.Logger.Warn("cache warm failed for window", "window", win.Label, "err", err)
			failures[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	for _, failed := range failures {
		if failed {
			stats.Failures++
		}
	}
	return stats, nil
}

// fetchRecords is the cached record fetch every operation goes
// through: probe the current marker, serve the stored payload on a
// match, otherwise fetch and store.
func (e *Engine) fetchRecords(ctx context.Context, q irm.Query) ([]json.RawMessage, error) {
	fetch := func(ctx context.Context) ([]byte, string, error) {
		records, err := e.Source.FetchRaw(ctx, q)
		if err != nil {
			return nil, "", err
		}
		payload, err := irm.EncodeRecords(records)
		if err != nil {
			return nil, "", err
		}
		return payload, irm.NewestMarker(records), nil
	}

	var payload []byte
	var err error
	if e.NoCache || e.Cache == nil {
		payload, _, err = fetch(ctx)
	} else {
		probe := func(ctx context.Context) (string, error) {
			return e.Source.CurrentMarker(ctx, q)
		}
		payload, err = e.Cache.GetOrFetch(ctx, q.Fingerprint(), probe, fetch)
	}
	if err != nil {
		return nil, err
	}
	return irm.DecodeRecords(payload)
}

// enrichActive resolves the latest human update for each active
// incident, in parallel. Enrichment is best effort: a failed activity
// fetch logs a warning and leaves LastUpdate nil rather than failing
// the report.
func (e *Engine) enrichActive(ctx context.Context, incidents []irm.Incident, activeAt time.Time) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Concurrency)
	for i := range incidents {
		if !incidents[i].Active(activeAt) {
			continue
		}
		in := &incidents[i]
		g.Go(func() error {
			update, err := e.lastHumanUpdate(ctx, in.ID, in.ModifiedAt)
			if err != nil {
				e.Logger.Warn("activity enrichment failed", "incident", in.ID, "err", err)
				return nil
			}
			if update != nil {
				in.LastUpdate = &update.Time
			}
			return nil
		})
	}
	g.Wait()
}

// lastHumanUpdate reads an incident's activity feed through the cache.
// The incident's own modification stamp is the marker: while the
// incident is untouched upstream, its feed cannot have changed either.
func (e *Engine) lastHumanUpdate(ctx context.Context, incidentID string, modifiedAt time.Time) (*irm.ActivityUpdate, error) {
	marker := modifiedAt.UTC().Format(time.RFC3339Nano)
	fetch := func(ctx context.Context) ([]byte, string, error) {
		items, err := e.Source.FetchActivityRaw(ctx, incidentID)
		if err != nil {
			return nil, "", err
		}
		payload, err := irm.EncodeRecords(items)
		return payload, marker, err
	}

	var payload []byte
	var err error
	if e.NoCache || e.Cache == nil {
		payload, _, err = fetch(ctx)
	} else {
		probe := func(context.Context) (string, error) { return marker, nil }
		payload, err = e.Cache.GetOrFetch(ctx, irm.ActivityFingerprint(incidentID), probe, fetch)
	}
	if err != nil {
		return nil, err
	}
	items, err := irm.DecodeRecords(payload)
	if err != nil {
		return nil, err
	}
	return irm.LastHumanUpdate(items), nil
}

// referenceNow picks the instant ages and SLA posture are measured at:
// the wall clock while the window is still in progress, the window end
// once it has closed. Historical reports stay reproducible.
func (e *Engine) referenceNow(win window.Window) time.Time {
	if now := e.Now(); now.Before(win.End) {
		return now
	}
	return win.End
}
