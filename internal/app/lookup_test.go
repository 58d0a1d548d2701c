package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	weather "github.com/eugener/zephyr/internal"
	"github.com/eugener/zephyr/internal/cache"
	"github.com/eugener/zephyr/internal/testutil"
)

func newLookupService(t *testing.T, f Fetcher) *LookupService {
	t.Helper()
	c, err := cache.New(10, 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return NewLookupService(c, f)
}

func TestLookup_MissThenHit(t *testing.T) {
	t.Parallel()
	fetcher := &testutil.FakeFetcher{}
	svc := newLookupService(t, fetcher)
	ctx := context.Background()

	doc, hit, err := svc.Lookup(ctx, "London", weather.UnitCentigrade)
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Error("first lookup should be a miss")
	}
	if string(doc) != testutil.DefaultDocument {
		t.Error("miss should return the provider document")
	}

	doc, hit, err = svc.Lookup(ctx, "London", weather.UnitCentigrade)
	if err != nil {
		t.Fatal(err)
	}
	if !hit {
		t.Error("second lookup should be a cache hit")
	}
	if string(doc) != testutil.DefaultDocument {
		t.Error("hit should return the cached document")
	}
	if got := fetcher.Calls(); got != 1 {
		t.Errorf("fetcher calls = %d, want 1", got)
	}
}

func TestLookup_KeyNormalization(t *testing.T) {
	t.Parallel()
	fetcher := &testutil.FakeFetcher{}
	svc := newLookupService(t, fetcher)
	ctx := context.Background()

	for _, city := range []string{"Paris", " paris ", "PARIS"} {
		if _, _, err := svc.Lookup(ctx, city, weather.UnitCentigrade); err != nil {
			t.Fatal(err)
		}
	}
	if got := fetcher.Calls(); got != 1 {
		t.Errorf("fetcher calls = %d, want 1 (case/whitespace variants share a key)", got)
	}
	if got := svc.CacheStats().Entries; got != 1 {
		t.Errorf("cache entries = %d, want 1", got)
	}

	// A different unit is a different key.
	if _, _, err := svc.Lookup(ctx, "Paris", weather.UnitKelvin); err != nil {
		t.Fatal(err)
	}
	if got := fetcher.Calls(); got != 2 {
		t.Errorf("fetcher calls = %d, want 2", got)
	}
}

func TestLookup_ErrorsPropagateUncached(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "unavailable", err: weather.ErrUnavailable},
		{name: "not found", err: fmt.Errorf("%w: %q", weather.ErrNotFound, "x")},
		{name: "upstream", err: &weather.UpstreamError{StatusCode: 500, Body: "boom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			fetcher := &testutil.FakeFetcher{
				CurrentFn: func(context.Context, string, weather.Unit) ([]byte, error) {
					calls++
					return nil, tt.err
				},
			}
			svc := newLookupService(t, fetcher)
			ctx := context.Background()

			_, _, err := svc.Lookup(ctx, "London", weather.UnitCentigrade)
			if !errors.Is(err, tt.err) && err.Error() != tt.err.Error() {
				t.Fatalf("err = %v, want %v unchanged", err, tt.err)
			}
			// Failures are not cached: a second lookup calls out again.
			svc.Lookup(ctx, "London", weather.UnitCentigrade)
			if calls != 2 {
				t.Errorf("fetcher calls = %d, want 2 (errors must not populate the cache)", calls)
			}
			if got := svc.CacheStats().Entries; got != 0 {
				t.Errorf("cache entries = %d, want 0", got)
			}
		})
	}
}

func TestLookup_SingleFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var calls sync.WaitGroup
	calls.Add(1)
	fetcher := &testutil.FakeFetcher{
		CurrentFn: func(context.Context, string, weather.Unit) ([]byte, error) {
			calls.Done()
			<-release
			return []byte(testutil.DefaultDocument), nil
		},
	}
	svc := newLookupService(t, fetcher)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Lookup(context.Background(), "London", weather.UnitCentigrade)
		}(i)
	}

	calls.Wait() // leader is in flight; followers are queued behind it
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("lookup %d: %v", i, err)
		}
	}
	if got := fetcher.Calls(); got != 1 {
		t.Errorf("fetcher calls = %d, want 1 (concurrent misses collapse)", got)
	}
}

func TestWeather_NormalizesDocument(t *testing.T) {
	t.Parallel()
	svc := newLookupService(t, &testutil.FakeFetcher{})

	report, hit, err := svc.Weather(context.Background(), "London", weather.UnitCentigrade)
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Error("first call should be a miss")
	}
	if report.City != "London" || report.Country != "GB" {
		t.Errorf("report = %+v", report)
	}
	if report.Main.Temp != 11.5 || report.Main.Humidity != 81 {
		t.Errorf("main = %+v", report.Main)
	}
	if report.Unit != weather.UnitCentigrade {
		t.Errorf("unit = %q", report.Unit)
	}
}

func TestWeather_BadShape(t *testing.T) {
	t.Parallel()
	fetcher := &testutil.FakeFetcher{
		CurrentFn: func(context.Context, string, weather.Unit) ([]byte, error) {
			return []byte(`{"name":"London"}`), nil // no main metrics
		},
	}
	svc := newLookupService(t, fetcher)

	_, _, err := svc.Weather(context.Background(), "London", weather.UnitCentigrade)
	if !errors.Is(err, weather.ErrBadUpstreamShape) {
		t.Errorf("err = %v, want ErrBadUpstreamShape", err)
	}
}

func TestClearCache(t *testing.T) {
	t.Parallel()
	fetcher := &testutil.FakeFetcher{}
	svc := newLookupService(t, fetcher)
	ctx := context.Background()

	svc.Lookup(ctx, "London", weather.UnitCentigrade)
	svc.ClearCache()

	if got := svc.CacheStats().Entries; got != 0 {
		t.Errorf("entries = %d, want 0 after clear", got)
	}
	_, hit, _ := svc.Lookup(ctx, "London", weather.UnitCentigrade)
	if hit {
		t.Error("lookup after clear should be a miss")
	}
}
