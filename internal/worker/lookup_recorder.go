package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	weather "github.com/eugener/zephyr/internal"
)

const (
	lookupChanSize   = 1000
	lookupBatchSize  = 100
	lookupFlushEvery = 5 * time.Second
	lookupDrainTime  = 30 * time.Second
)

// LookupStore is the persistence interface consumed by LookupRecorder.
type LookupStore interface {
	InsertLookups(ctx context.Context, records []weather.LookupRecord) error
}

// QueueGauge receives the current queue length after each enqueue.
type QueueGauge interface {
	Set(float64)
}

// LookupRecorder buffers lookup records and batch-flushes them to the store.
// Records are dropped if the channel is full (back-pressure on slow DB).
type LookupRecorder struct {
	ch    chan weather.LookupRecord
	store LookupStore
	gauge QueueGauge // nil = no gauge
}

// NewLookupRecorder creates a LookupRecorder backed by store. gauge may be
// nil when queue length is not observed.
func NewLookupRecorder(store LookupStore, gauge QueueGauge) *LookupRecorder {
	return &LookupRecorder{
		ch:    make(chan weather.LookupRecord, lookupChanSize),
		store: store,
		gauge: gauge,
	}
}

// Record enqueues a lookup record. It never blocks; drops on full channel.
func (l *LookupRecorder) Record(r weather.LookupRecord) {
	select {
	case l.ch <- r:
		if l.gauge != nil {
			l.gauge.Set(float64(len(l.ch)))
		}
	default:
		slog.Warn("lookup record dropped, channel full")
	}
}

// Run processes records until ctx is cancelled, then drains remaining records.
func (l *LookupRecorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(lookupFlushEvery)
	defer ticker.Stop()

	buf := make([]weather.LookupRecord, 0, lookupBatchSize)

	for {
		select {
		case r := <-l.ch:
			buf = append(buf, r)
			if len(buf) >= lookupBatchSize {
				l.flush(ctx, buf)
				buf = buf[:0]
			}

		case <-ticker.C:
			if len(buf) > 0 {
				l.flush(ctx, buf)
				buf = buf[:0]
			}

		case <-ctx.Done():
			// Drain remaining records with a timeout.
			l.drain(buf)
			return nil
		}
	}
}

func (l *LookupRecorder) drain(buf []weather.LookupRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupDrainTime)
	defer cancel()

	for {
		select {
		case r := <-l.ch:
			buf = append(buf, r)
			if len(buf) >= lookupBatchSize {
				l.flush(ctx, buf)
				buf = buf[:0]
			}
		default:
			// Channel empty, flush remaining.
			if len(buf) > 0 {
				l.flush(ctx, buf)
			}
			return
		}
	}
}

func (l *LookupRecorder) flush(ctx context.Context, buf []weather.LookupRecord) {
	// Copy to avoid aliasing the caller's slice.
	batch := make([]weather.LookupRecord, len(buf))
	copy(batch, buf)

	// Assign IDs off the hot path; callers leave ID empty.
	for i := range batch {
		if batch[i].ID == "" {
			batch[i].ID = uuid.Must(uuid.NewV7()).String()
		}
	}

	if err := l.store.InsertLookups(ctx, batch); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "lookup flush failed",
			slog.Int("count", len(batch)),
			slog.String("error", err.Error()),
		)
	}

	if l.gauge != nil {
		l.gauge.Set(float64(len(l.ch)))
	}
}
