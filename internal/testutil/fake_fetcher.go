// Package testutil provides configurable test fakes for zephyr interfaces.
package testutil

import (
	"context"
	"sync"

	weather "github.com/eugener/zephyr/internal"
)

// FakeFetcher is a configurable app.Fetcher for testing.
type FakeFetcher struct {
	// CurrentFn overrides the default response when non-nil.
	CurrentFn func(ctx context.Context, city string, unit weather.Unit) ([]byte, error)

	mu    sync.Mutex
	calls int
}

// DefaultDocument is the raw document returned when CurrentFn is nil. It
// carries every field the normalizer validates.
const DefaultDocument = `{
	"name": "London",
	"sys": {"country": "GB", "sunrise": 1700000000, "sunset": 1700030000},
	"weather": [{"main": "Clouds", "description": "overcast clouds", "icon": "04d"}],
	"main": {"temp": 11.5, "feels_like": 10.9, "temp_min": 10.0, "temp_max": 12.8, "pressure": 1012, "humidity": 81},
	"wind": {"speed": 4.1, "deg": 240}
}`

// Current records the call and delegates to CurrentFn or returns DefaultDocument.
func (f *FakeFetcher) Current(ctx context.Context, city string, unit weather.Unit) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.CurrentFn != nil {
		return f.CurrentFn(ctx, city, unit)
	}
	return []byte(DefaultDocument), nil
}

// Calls returns how many times Current was invoked.
func (f *FakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
