package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func staticProbe(marker string) ProbeFunc {
	return func(ctx context.Context) (string, error) { return marker, nil }
}

func countingFetch(payload []byte, marker string, calls *atomic.Int64) FetchFunc {
	return func(ctx context.Context) ([]byte, string, error) {
		calls.Add(1)
		return payload, marker, nil
	}
}

func TestGetOrFetchStoresEntry(t *testing.T) {
	c := newTestCache(t)
	payload := []byte(`[{"incidentID":"1"}]`)
	var calls atomic.Int64

	got, err := c.GetOrFetch(context.Background(), "abc123", staticProbe("m1"), countingFetch(payload, "m1", &calls))
	if err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %s, want %s", got, payload)
	}
	if calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", calls.Load())
	}

	data, err := os.ReadFile(c.path("abc123"))
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if e.Fingerprint != "abc123" {
		t.Errorf("Fingerprint = %q, want %q", e.Fingerprint, "abc123")
	}
	if e.Marker != "m1" {
		t.Errorf("Marker = %q, want %q", e.Marker, "m1")
	}
	if !bytes.Equal(e.Payload, payload) {
		t.Errorf("stored payload = %s, want %s", e.Payload, payload)
	}
	if e.StoredAt.IsZero() {
		t.Error("StoredAt is zero")
	}
}

func TestUnchangedMarkerServedFromDisk(t *testing.T) {
	c := newTestCache(t)
	payload := []byte(`[1,2,3]`)
	var calls atomic.Int64
	fetch := countingFetch(payload, "m1", &calls)

	for i := 0; i < 3; i++ {
		got, err := c.GetOrFetch(context.Background(), "fp", staticProbe("m1"), fetch)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("call %d payload = %s, want %s", i, got, payload)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", calls.Load())
	}
	if c.Hits() != 2 {
		t.Errorf("Hits = %d, want 2", c.Hits())
	}
	if c.Misses() != 1 {
		t.Errorf("Misses = %d, want 1", c.Misses())
	}
}

func TestChangedMarkerRefetches(t *testing.T) {
	c := newTestCache(t)
	var calls atomic.Int64
	marker := "m1"
	probe := func(ctx context.Context) (string, error) { return marker, nil }
	fetch := func(ctx context.Context) ([]byte, string, error) {
		calls.Add(1)
		return []byte(`"payload-` + marker + `"`), marker, nil
	}

	if _, err := c.GetOrFetch(context.Background(), "fp", probe, fetch); err != nil {
		t.Fatalf("first call: %v", err)
	}

	marker = "m2"
	got, err := c.GetOrFetch(context.Background(), "fp", probe, fetch)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if want := `"payload-m2"`; string(got) != want {
		t.Errorf("payload = %s, want %s", got, want)
	}
	if calls.Load() != 2 {
		t.Errorf("fetch calls = %d, want 2", calls.Load())
	}
}

func TestProbeFailureFallsThroughToFetch(t *testing.T) {
	c := newTestCache(t)
	var calls atomic.Int64
	fetch := countingFetch([]byte(`{}`), "m1", &calls)

	if _, err := c.GetOrFetch(context.Background(), "fp", staticProbe("m1"), fetch); err != nil {
		t.Fatalf("seed call: %v", err)
	}

	failing := func(ctx context.Context) (string, error) { return "", errors.New("boom") }
	if _, err := c.GetOrFetch(context.Background(), "fp", failing, fetch); err != nil {
		t.Fatalf("call with failing probe: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("fetch calls = %d, want 2", calls.Load())
	}
}

func TestCorruptEntryTreatedAsMiss(t *testing.T) {
	c := newTestCache(t)
	if err := os.WriteFile(c.path("fp"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("plant corrupt entry: %v", err)
	}

	payload := []byte(`["ok"]`)
	var calls atomic.Int64
	fetch := countingFetch(payload, "m1", &calls)

	got, err := c.GetOrFetch(context.Background(), "fp", staticProbe("m1"), fetch)
	if err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %s, want %s", got, payload)
	}
	if calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", calls.Load())
	}

	// The rewrite must leave a healthy entry behind.
	if _, err := c.GetOrFetch(context.Background(), "fp", staticProbe("m1"), fetch); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("fetch calls after recovery = %d, want 1", calls.Load())
	}
}

func TestFetchErrorPropagates(t *testing.T) {
	c := newTestCache(t)
	wantErr := errors.New("upstream down")
	fetch := func(ctx context.Context) ([]byte, string, error) { return nil, "", wantErr }

	_, err := c.GetOrFetch(context.Background(), "fp", staticProbe("m1"), fetch)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if _, err := os.Stat(c.path("fp")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("entry file exists after failed fetch")
	}
}

func TestConcurrentCallersShareOneFetch(t *testing.T) {
	c := newTestCache(t)
	payload := []byte(`[42]`)
	var calls atomic.Int64
	fetch := func(ctx context.Context) ([]byte, string, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return payload, "m1", nil
	}

	const workers = 8
	results := make([][]byte, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrFetch(context.Background(), "fp", nil, fetch)
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", calls.Load())
	}
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if !bytes.Equal(results[i], payload) {
			t.Errorf("worker %d payload = %s, want %s", i, results[i], payload)
		}
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	c := newTestCache(t)
	var calls atomic.Int64
	fetch := countingFetch([]byte(`{}`), "m1", &calls)

	if _, err := c.GetOrFetch(context.Background(), "fp", staticProbe("m1"), fetch); err != nil {
		t.Fatalf("seed call: %v", err)
	}
	if err := c.Invalidate("fp"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if err := c.Invalidate("fp"); err != nil {
		t.Errorf("Invalidate absent entry: %v", err)
	}
	if _, err := c.GetOrFetch(context.Background(), "fp", staticProbe("m1"), fetch); err != nil {
		t.Fatalf("call after invalidate: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("fetch calls = %d, want 2", calls.Load())
	}
}

func TestClearAndStats(t *testing.T) {
	c := newTestCache(t)
	var calls atomic.Int64
	for _, fp := range []string{"fp1", "fp2", "fp3"} {
		if _, err := c.GetOrFetch(context.Background(), fp, nil, countingFetch([]byte(`[1]`), "m", &calls)); err != nil {
			t.Fatalf("seed %s: %v", fp, err)
		}
	}

	stats, err := c.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.EntryCount != 3 {
		t.Errorf("EntryCount = %d, want 3", stats.EntryCount)
	}
	if stats.TotalBytes <= 0 {
		t.Errorf("TotalBytes = %d, want > 0", stats.TotalBytes)
	}
	if stats.OldestAge < stats.NewestAge {
		t.Errorf("OldestAge %v < NewestAge %v", stats.OldestAge, stats.NewestAge)
	}

	infos, err := c.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("List len = %d, want 3", len(infos))
	}
	seen := map[string]bool{}
	for _, info := range infos {
		seen[info.Fingerprint] = true
		if info.Bytes <= 0 {
			t.Errorf("entry %s Bytes = %d, want > 0", info.Fingerprint, info.Bytes)
		}
	}
	for _, fp := range []string{"fp1", "fp2", "fp3"} {
		if !seen[fp] {
			t.Errorf("List missing %s", fp)
		}
	}

	removed, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 3 {
		t.Errorf("Clear removed = %d, want 3", removed)
	}
	stats, err = c.Stats()
	if err != nil {
		t.Fatalf("Stats after clear: %v", err)
	}
	if stats.EntryCount != 0 {
		t.Errorf("EntryCount after clear = %d, want 0", stats.EntryCount)
	}
}
