// Package cache implements the disk-backed response cache keyed by
// query fingerprint and validated against upstream modification markers.
//
// This is a correctness cache (avoid redundant upstream calls), not a
// bounded memory cache: entries have no TTL and persist until a marker
// mismatch replaces them or the caller clears the directory. Staleness
// is detected by probing the upstream's current marker, never assumed
// from age.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is the on-disk record: the raw payload exactly as fetched, the
// upstream marker it was fetched under, and when it was stored. Payload
// stays a raw message so stats and validation never deserialize it.
type Entry struct {
	Fingerprint string          `json:"fingerprint"`
	Marker      string          `json:"marker"`
	StoredAt    time.Time       `json:"storedAt"`
	Payload     json.RawMessage `json:"payload"`
}

// ProbeFunc reports the marker the upstream currently holds for a
// query. It should be much cheaper than a full fetch.
type ProbeFunc func(ctx context.Context) (string, error)

// FetchFunc fetches a fresh payload (a JSON document) together with the
// marker it corresponds to.
type FetchFunc func(ctx context.Context) ([]byte, string, error)

// Cache is a directory of fingerprint-keyed entries. Safe for
// concurrent use; fetches for the same fingerprint are single-flight.
type Cache struct {
	Dir    string
	Logger *slog.Logger

	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

// New opens (creating if needed) a cache directory.
func New(dir string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{Dir: dir, Logger: logger}, nil
}

// Hits returns how many GetOrFetch calls were served from disk.
func (c *Cache) Hits() int64 { return c.hits.Load() }

// Misses returns how many GetOrFetch calls went upstream.
func (c *Cache) Misses() int64 { return c.misses.Load() }

// GetOrFetch returns the payload for fingerprint. A stored entry whose
// marker matches the probed upstream marker is served without fetching;
// anything else (no entry, corrupt entry, marker mismatch, probe
// failure) falls through to fetch, and the fresh payload is stored
// before being returned.
//
// Concurrent callers for the same fingerprint share one probe+fetch and
// all observe the identical payload. A failed store is logged, not
// fatal: the payload is still returned.
func (c *Cache) GetOrFetch(ctx context.Context, fingerprint string, probe ProbeFunc, fetch FetchFunc) ([]byte, error) {
	v, err, _ := c.group.Do(fingerprint, func() (any, error) {
		entry, ok := c.load(fingerprint)
		if ok && probe != nil {
			current, err := probe(ctx)
			switch {
			case err != nil:
				c.Logger.Warn("marker probe failed, refetching", "fingerprint", fingerprint, "err", err)
			case current == entry.Marker:
				c.hits.Add(1)
				return []byte(entry.Payload), nil
			}
		}
		c.misses.Add(1)

		payload, marker, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.store(fingerprint, marker, payload); err != nil {
			c.Logger.Warn("cache write failed", "fingerprint", fingerprint, "err", err)
		}
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate removes one entry. Removing an absent entry is not an
// error.
func (c *Cache) Invalidate(fingerprint string) error {
	err := os.Remove(c.path(fingerprint))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("invalidate %s: %w", fingerprint, err)
	}
	return nil
}

// Clear removes every entry and reports how many were deleted.
func (c *Cache) Clear() (int, error) {
	names, err := c.entryFiles()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, name := range names {
		if err := os.Remove(filepath.Join(c.Dir, name)); err != nil {
			return removed, fmt.Errorf("clear cache: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Stats summarizes the cache directory from file metadata alone; no
// payload is deserialized.
type Stats struct {
	EntryCount int           `json:"entryCount"`
	TotalBytes int64         `json:"totalBytes"`
	OldestAge  time.Duration `json:"oldestAge"`
	NewestAge  time.Duration `json:"newestAge"`
}

// Stats scans the directory and aggregates entry count, total size and
// the age spread of the stored entries.
func (c *Cache) Stats() (Stats, error) {
	names, err := c.entryFiles()
	if err != nil {
		return Stats{}, err
	}

	now := time.Now()
	var s Stats
	for _, name := range names {
		info, err := os.Stat(filepath.Join(c.Dir, name))
		if err != nil {
			continue
		}
		age := now.Sub(info.ModTime())
		if s.EntryCount == 0 || age > s.OldestAge {
			s.OldestAge = age
		}
		if s.EntryCount == 0 || age < s.NewestAge {
			s.NewestAge = age
		}
		s.EntryCount++
		s.TotalBytes += info.Size()
	}
	return s, nil
}

// EntryInfo describes one stored entry for listings.
type EntryInfo struct {
	Fingerprint string    `json:"fingerprint"`
	Bytes       int64     `json:"bytes"`
	StoredAt    time.Time `json:"storedAt"`
}

// List returns the stored entries, derived from directory metadata.
func (c *Cache) List() ([]EntryInfo, error) {
	names, err := c.entryFiles()
	if err != nil {
		return nil, err
	}
	infos := make([]EntryInfo, 0, len(names))
	for _, name := range names {
		st, err := os.Stat(filepath.Join(c.Dir, name))
		if err != nil {
			continue
		}
		infos = append(infos, EntryInfo{
			Fingerprint: strings.TrimSuffix(name, ".json"),
			Bytes:       st.Size(),
			StoredAt:    st.ModTime().UTC(),
		})
	}
	return infos, nil
}

// load reads and decodes an entry. A missing file is a plain miss; a
// file that fails to decode is corruption, logged and treated as a miss
// so the next successful fetch overwrites it.
func (c *Cache) load(fingerprint string) (*Entry, bool) {
	data, err := os.ReadFile(c.path(fingerprint))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.Logger.Warn("cache read failed, treating as miss", "fingerprint", fingerprint, "err", err)
		}
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.Logger.Warn("corrupt cache entry, treating as miss", "fingerprint", fingerprint, "err", err)
		return nil, false
	}
	return &e, true
}

// store writes an entry atomically: temp file in the same directory,
// then rename. An interrupted run leaves either the previous entry or a
// complete new one, never a torn write.
func (c *Cache) store(fingerprint, marker string, payload []byte) error {
	e := Entry{
		Fingerprint: fingerprint,
		Marker:      marker,
		StoredAt:    time.Now().UTC(),
		Payload:     json.RawMessage(payload),
	}
	data, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.Dir, fingerprint+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp entry: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp entry: %w", err)
	}
	if err := os.Rename(tmpName, c.path(fingerprint)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp entry: %w", err)
	}
	return nil
}

func (c *Cache) path(fingerprint string) string {
	return filepath.Join(c.Dir, fingerprint+".json")
}

// entryFiles lists entry filenames, skipping temp files from writes in
// progress.
func (c *Cache) entryFiles() ([]string, error) {
	dirents, err := os.ReadDir(c.Dir)
	if err != nil {
		return nil, fmt.Errorf("read cache dir: %w", err)
	}
	var names []string
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			continue
		}
		names = append(names, d.Name())
	}
	return names, nil
}
