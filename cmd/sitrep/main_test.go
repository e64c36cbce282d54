package main

import (
	"testing"
	"time"

	"github.com/ormasoftchile/sitrep/pkg/window"
)

func TestReportFlagSurface(t *testing.T) {
	for _, name := range []string{
		"date", "weekly", "monthly", "offset", "filter", "max-active",
		"view", "save-md", "md-dir", "json-out", "webhook", "no-chat", "no-cache",
	} {
		if reportCmd.Flags().Lookup(name) == nil {
			t.Errorf("report is missing --%s", name)
		}
	}
	if fetchAllCmd.Flags().Lookup("concurrency") == nil {
		t.Error("fetch-all is missing --concurrency")
	}
	if queryCmd.Flags().Lookup("filter") == nil {
		t.Error("query is missing --filter")
	}
}

func TestResolveReportWindowDefaultsToYesterday(t *testing.T) {
	// Sunday 26 Oct 19:00 local; with no flags the report covers the
	// finished Saturday, not the Sunday in progress.
	now := time.Date(2025, 10, 26, 12, 0, 0, 0, time.UTC)
	win, err := resolveReportWindow(reportCmd, now)
	if err != nil {
		t.Fatalf("resolveReportWindow: %v", err)
	}
	if win.Kind != window.Daily {
		t.Errorf("Kind = %s, want daily", win.Kind)
	}
	wantStart := time.Date(2025, 10, 24, 17, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 10, 25, 17, 0, 0, 0, time.UTC)
	if !win.Start.Equal(wantStart) || !win.End.Equal(wantEnd) {
		t.Errorf("window = [%s, %s), want [%s, %s)", win.Start, win.End, wantStart, wantEnd)
	}
}
