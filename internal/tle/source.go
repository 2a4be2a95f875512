package tle

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Source provides the current element set for a satellite. Implementations
// return ErrUnavailable (possibly wrapped) when no data can be obtained.
type Source interface {
	Fetch(ctx context.Context, catalogID int) (Elements, error)
}

// AgeReporter is an optional Source extension reporting the age in seconds
// of the held element set for a satellite, or a negative value when none is
// held. Callers probe for it with a type assertion.
type AgeReporter interface {
	Age(catalogID int) float64
}

var _ AgeReporter = (*CachedSource)(nil)

type cachedElements struct {
	elements  Elements
	fetchedAt time.Time
}

// CachedSource wraps an upstream Source with a per-satellite TTL cache and an
// optional disk cache for warm starts and upstream-outage fallback.
//
// Refresh policy: within the TTL the cached value is returned without
// touching the network. After the TTL a refresh is attempted; if the upstream
// fails, the previous in-memory value is served as long as it is younger than
// maxAge, then the disk cache is tried, and only then does the fetch surface
// as unavailable.
type CachedSource struct {
	upstream Source
	disk     *Cache // nil disables disk persistence
	ttl      time.Duration
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[int]cachedElements
}

// NewCachedSource creates a CachedSource. disk may be nil.
func NewCachedSource(upstream Source, disk *Cache, ttl, maxAge time.Duration, logger *slog.Logger) *CachedSource {
	return &CachedSource{
		upstream: upstream,
		disk:     disk,
		ttl:      ttl,
		maxAge:   maxAge,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[int]cachedElements),
	}
}

// Fetch implements Source.
func (s *CachedSource) Fetch(ctx context.Context, catalogID int) (Elements, error) {
	now := s.now()

	s.mu.Lock()
	cached, ok := s.entries[catalogID]
	s.mu.Unlock()

	if ok && now.Sub(cached.fetchedAt) < s.ttl {
		return cached.elements, nil
	}

	elements, err := s.upstream.Fetch(ctx, catalogID)
	if err == nil {
		s.store(catalogID, elements, now)
		return elements, nil
	}

	// Upstream failed: serve the stale in-memory copy if it is not too old.
	if ok && now.Sub(cached.fetchedAt) < s.maxAge {
		s.logger.Warn("TLE refresh failed, serving stale elements",
			"catalog_id", catalogID,
			"age_seconds", now.Sub(cached.fetchedAt).Seconds(),
			"error", err,
		)
		return cached.elements, nil
	}

	// Last resort: disk cache from a previous run.
	if s.disk != nil {
		if elements, ok := s.loadDisk(catalogID, now); ok {
			return elements, nil
		}
	}

	return Elements{}, err
}

// Age returns how long ago the given satellite's elements were fetched, or
// -1 if none are cached.
func (s *CachedSource) Age(catalogID int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	cached, ok := s.entries[catalogID]
	if !ok {
		return -1
	}
	return s.now().Sub(cached.fetchedAt).Seconds()
}

func (s *CachedSource) store(catalogID int, elements Elements, fetchedAt time.Time) {
	s.mu.Lock()
	s.entries[catalogID] = cachedElements{elements: elements, fetchedAt: fetchedAt}
	s.mu.Unlock()

	if s.disk == nil {
		return
	}
	if err := s.disk.Write(catalogID, []byte(elements.Text()), fetchedAt); err != nil {
		s.logger.Warn("TLE disk cache write failed", "catalog_id", catalogID, "error", err)
	}
}

func (s *CachedSource) loadDisk(catalogID int, now time.Time) (Elements, bool) {
	data, ts, err := s.disk.LoadLatest(catalogID)
	if err != nil {
		return Elements{}, false
	}
	if now.Sub(ts) >= s.maxAge {
		return Elements{}, false
	}

	elements, err := ParseEntry(bytes.NewReader(data))
	if err != nil {
		s.logger.Warn("TLE disk cache parse failed", "catalog_id", catalogID, "error", err)
		return Elements{}, false
	}

	s.mu.Lock()
	s.entries[catalogID] = cachedElements{elements: elements, fetchedAt: ts}
	s.mu.Unlock()

	s.logger.Info("loaded TLE elements from disk cache",
		"catalog_id", catalogID,
		"cached_at", ts.UTC().Format(time.RFC3339),
	)
	return elements, true
}
