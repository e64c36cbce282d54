package window

import (
	"errors"
	"testing"
	"time"
)

// fixedNow is a Wednesday afternoon in the anchor zone (GMT+7).
var fixedNow = time.Date(2025, 10, 22, 15, 30, 0, 0, Anchor)

func TestResolveWeeklyAnchorsTuesday(t *testing.T) {
	w, err := Resolve(Weekly, "", 0, fixedNow)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	wantStart := time.Date(2025, 10, 20, 17, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 10, 27, 17, 0, 0, 0, time.UTC)
	if !w.Start.Equal(wantStart) {
		t.Errorf("Start = %v, want %v", w.Start, wantStart)
	}
	if !w.End.Equal(wantEnd) {
		t.Errorf("End = %v, want %v", w.End, wantEnd)
	}
	if w.Label != "21-27 Oct 2025" {
		t.Errorf("Label = %q, want %q", w.Label, "21-27 Oct 2025")
	}
}

func TestResolveWeeklyOffset(t *testing.T) {
	w0, err := Resolve(Weekly, "", 0, fixedNow)
	if err != nil {
		t.Fatalf("Resolve offset 0: %v", err)
	}
	w2, err := Resolve(Weekly, "", 2, fixedNow)
	if err != nil {
		t.Fatalf("Resolve offset 2: %v", err)
	}
	if got, want := w0.Start.Sub(w2.Start), 14*24*time.Hour; got != want {
		t.Errorf("offset 2 shifts start by %v, want %v", got, want)
	}
	if w2.Offset != 2 {
		t.Errorf("Offset = %d, want 2", w2.Offset)
	}
}

func TestResolveWeeklyOnTuesday(t *testing.T) {
	// When now is already a Tuesday the window starts that same day.
	tue := time.Date(2025, 10, 21, 9, 0, 0, 0, Anchor)
	w, err := Resolve(Weekly, "", 0, tue)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := time.Date(2025, 10, 20, 17, 0, 0, 0, time.UTC)
	if !w.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", w.Start, want)
	}
}

func TestResolveDurations(t *testing.T) {
	cases := []struct {
		kind   Kind
		offset int
	}{
		{Daily, 0},
		{Daily, 1},
		{Daily, 30},
		{Weekly, 0},
		{Weekly, 1},
		{Weekly, 52},
		{Monthly, 0},
		{Monthly, 1},
		{Monthly, 12},
	}
	for _, tc := range cases {
		w, err := Resolve(tc.kind, "", tc.offset, fixedNow)
		if err != nil {
			t.Fatalf("Resolve(%s, %d): %v", tc.kind, tc.offset, err)
		}
		if !w.End.After(w.Start) {
			t.Errorf("Resolve(%s, %d): End %v not after Start %v", tc.kind, tc.offset, w.End, w.Start)
		}
		d := w.End.Sub(w.Start)
		switch tc.kind {
		case Daily:
			if d != 24*time.Hour {
				t.Errorf("Resolve(%s, %d): duration = %v, want 24h", tc.kind, tc.offset, d)
			}
		case Weekly:
			if d != 7*24*time.Hour {
				t.Errorf("Resolve(%s, %d): duration = %v, want 168h", tc.kind, tc.offset, d)
			}
		case Monthly:
			if d < 28*24*time.Hour || d > 31*24*time.Hour {
				t.Errorf("Resolve(%s, %d): duration = %v, want 28-31 days", tc.kind, tc.offset, d)
			}
		}
	}
}

func TestResolveMonthly(t *testing.T) {
	w, err := Resolve(Monthly, "", 0, fixedNow)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	wantStart := time.Date(2025, 9, 30, 17, 0, 0, 0, time.UTC) // Oct 1 00:00 GMT+7
	wantEnd := time.Date(2025, 10, 31, 17, 0, 0, 0, time.UTC)  // Nov 1 00:00 GMT+7
	if !w.Start.Equal(wantStart) {
		t.Errorf("Start = %v, want %v", w.Start, wantStart)
	}
	if !w.End.Equal(wantEnd) {
		t.Errorf("End = %v, want %v", w.End, wantEnd)
	}
	if w.Label != "October 2025" {
		t.Errorf("Label = %q, want %q", w.Label, "October 2025")
	}

	prev, err := Resolve(Monthly, "", 1, fixedNow)
	if err != nil {
		t.Fatalf("Resolve offset 1: %v", err)
	}
	if prev.Label != "September 2025" {
		t.Errorf("offset 1 Label = %q, want %q", prev.Label, "September 2025")
	}
	if !prev.End.Equal(w.Start) {
		t.Errorf("previous month End = %v, want %v (contiguous with current Start)", prev.End, w.Start)
	}
}

func TestResolveExplicitDate(t *testing.T) {
	w, err := Resolve(Weekly, "2025-10-21", 0, fixedNow)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	wantStart := time.Date(2025, 10, 20, 17, 0, 0, 0, time.UTC)
	if !w.Start.Equal(wantStart) {
		t.Errorf("Start = %v, want %v", w.Start, wantStart)
	}
	if got := w.End.Sub(w.Start); got != 24*time.Hour {
		t.Errorf("duration = %v, want 24h", got)
	}
	if w.Kind != Daily {
		t.Errorf("Kind = %q, want %q", w.Kind, Daily)
	}
}

func TestResolveDailyOffset(t *testing.T) {
	w, err := Resolve(Daily, "", 1, fixedNow)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Yesterday relative to Oct 22 local: Oct 21 00:00 GMT+7.
	wantStart := time.Date(2025, 10, 20, 17, 0, 0, 0, time.UTC)
	if !w.Start.Equal(wantStart) {
		t.Errorf("Start = %v, want %v", w.Start, wantStart)
	}
	if w.Label != "21 Oct 2025" {
		t.Errorf("Label = %q, want %q", w.Label, "21 Oct 2025")
	}
}

func TestResolveRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		kind Kind
		date string
		off  int
	}{
		{"negative offset", Weekly, "", -1},
		{"garbage date", Daily, "last tuesday", 0},
		{"date and offset", Daily, "2025-10-21", 2},
		{"unknown kind", Kind("yearly"), "", 0},
	}
	for _, tc := range cases {
		_, err := Resolve(tc.kind, tc.date, tc.off, fixedNow)
		if err == nil {
			t.Errorf("%s: Resolve succeeded, want InvalidWindowError", tc.name)
			continue
		}
		var iw *InvalidWindowError
		if !errors.As(err, &iw) {
			t.Errorf("%s: error = %T, want *InvalidWindowError", tc.name, err)
		}
	}
}

func TestLocalDays(t *testing.T) {
	w, err := Resolve(Weekly, "", 0, fixedNow)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	days := w.LocalDays()
	if len(days) != 7 {
		t.Fatalf("LocalDays = %d entries, want 7", len(days))
	}
	if !days[0].Equal(w.LocalStart()) {
		t.Errorf("first day = %v, want %v", days[0], w.LocalStart())
	}
	for i := 1; i < len(days); i++ {
		if got := days[i].Sub(days[i-1]); got != 24*time.Hour {
			t.Errorf("day %d gap = %v, want 24h", i, got)
		}
	}
}

func TestWindowContains(t *testing.T) {
	w, err := Resolve(Weekly, "", 0, fixedNow)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !w.Contains(w.Start) {
		t.Error("Start should be inside the window (inclusive)")
	}
	if w.Contains(w.End) {
		t.Error("End should be outside the window (exclusive)")
	}
	if w.Contains(w.Start.Add(-time.Nanosecond)) {
		t.Error("instant before Start should be outside")
	}
}

func TestWeeklyRange(t *testing.T) {
	now := time.Date(2025, 3, 5, 12, 0, 0, 0, Anchor) // Wednesday
	windows := WeeklyRange(2025, now)

	// Week containing Jan 1 2025 (a Wednesday) starts Tuesday Dec 31 2024;
	// the range runs through the week containing now (starts Mar 4).
	if len(windows) != 10 {
		t.Fatalf("WeeklyRange = %d windows, want 10", len(windows))
	}
	first := windows[0]
	wantFirst := time.Date(2024, 12, 31, 0, 0, 0, 0, Anchor).UTC()
	if !first.Start.Equal(wantFirst) {
		t.Errorf("first Start = %v, want %v", first.Start, wantFirst)
	}
	last := windows[len(windows)-1]
	if last.Offset != 0 {
		t.Errorf("last Offset = %d, want 0 (current week)", last.Offset)
	}
	for i := 1; i < len(windows); i++ {
		if !windows[i].Start.Equal(windows[i-1].End) {
			t.Errorf("window %d not contiguous: starts %v, previous ends %v", i, windows[i].Start, windows[i-1].End)
		}
	}
}

func TestWeeklyRangeFutureYear(t *testing.T) {
	now := time.Date(2025, 3, 5, 12, 0, 0, 0, Anchor)
	if got := WeeklyRange(2026, now); len(got) != 0 {
		t.Errorf("WeeklyRange(2026) = %d windows, want 0", len(got))
	}
}
