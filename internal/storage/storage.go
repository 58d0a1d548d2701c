// Package storage defines persistence interfaces for the zephyr gateway.
package storage

import (
	"context"

	weather "github.com/eugener/zephyr/internal"
)

// LookupStore manages lookup history persistence.
type LookupStore interface {
	InsertLookups(ctx context.Context, records []weather.LookupRecord) error
	QueryLookups(ctx context.Context, f weather.LookupFilter) ([]weather.LookupRecord, error)
	CountLookups(ctx context.Context, f weather.LookupFilter) (int, error)
}

// Store combines all storage interfaces with lifecycle methods.
type Store interface {
	LookupStore
	Ping(ctx context.Context) error
	Close() error
}
