// Package app contains the application services between the HTTP boundary
// and the provider gateway.
package app

import (
	"context"

	"golang.org/x/sync/singleflight"

	weather "github.com/eugener/zephyr/internal"
	"github.com/eugener/zephyr/internal/cache"
)

// Fetcher is the outbound provider gateway consumed by LookupService.
type Fetcher interface {
	Current(ctx context.Context, city string, unit weather.Unit) ([]byte, error)
}

// LookupService answers weather lookups from the cache, falling back to the
// provider gateway on a miss. Concurrent misses on the same key are collapsed
// into one outbound call; the cache contract is unchanged by that.
type LookupService struct {
	cache   *cache.TTLRU
	fetcher Fetcher
	group   singleflight.Group
}

// NewLookupService returns a LookupService over the given cache and fetcher.
func NewLookupService(c *cache.TTLRU, f Fetcher) *LookupService {
	return &LookupService{cache: c, fetcher: f}
}

// Lookup returns the raw provider document for city/unit and whether it was
// served from the cache. Provider errors propagate unchanged; nothing is
// cached on failure. The outbound call runs without any cache lock held.
//
// Collapsed callers share the leader's result, including its error: if the
// leader's context is canceled mid-flight, followers see that failure too.
func (s *LookupService) Lookup(ctx context.Context, city string, unit weather.Unit) ([]byte, bool, error) {
	key := weather.CacheKey(city, unit)

	if doc, ok := s.cache.Get(key); ok {
		return doc, true, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		// A concurrent leader may have populated the key while we queued.
		if doc, ok := s.cache.Get(key); ok {
			return doc, nil
		}
		doc, err := s.fetcher.Current(ctx, city, unit)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, doc)
		return doc, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), false, nil
}

// Weather performs a lookup and returns the normalized report. The raw
// document is shape-checked first so a malformed provider response surfaces
// as weather.ErrBadUpstreamShape rather than a half-empty report.
func (s *LookupService) Weather(ctx context.Context, city string, unit weather.Unit) (weather.Report, bool, error) {
	doc, hit, err := s.Lookup(ctx, city, unit)
	if err != nil {
		return weather.Report{}, false, err
	}
	if err := ValidateDocument(doc); err != nil {
		return weather.Report{}, hit, err
	}
	return Normalize(doc, unit), hit, nil
}

// CacheStats returns the cache's configuration and live entry count.
func (s *LookupService) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// ClearCache removes all cached documents.
func (s *LookupService) ClearCache() {
	s.cache.Clear()
}
