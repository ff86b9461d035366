package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// BufferPoolMetrics are the OTel instruments the buffer pool records
// against. storage.NewBufferPool builds them from the Telemetry it is
// given; a nil *BufferPoolMetrics (from a nil Telemetry) is safe to record
// against — every method is a no-op guard on b == nil.
type BufferPoolMetrics struct {
	hits          metric.Int64Counter
	faults        metric.Int64Counter
	evictions     metric.Int64Counter
	dirtyFlushes  metric.Int64Counter
	pinnedGauge   metric.Int64UpDownCounter
}

// NewBufferPoolMetrics registers the buffer pool's counters and gauge
// against tel's Meter.
func NewBufferPoolMetrics(tel *Telemetry) (*BufferPoolMetrics, error) {
	if tel == nil {
		return nil, nil
	}
	m := tel.Meter
	hits, err := m.Int64Counter("pagecache.page_hits_total", metric.WithDescription("pages found already resident in the buffer pool"))
	if err != nil {
		return nil, fmt.Errorf("creating page_hits_total: %w", err)
	}
	faults, err := m.Int64Counter("pagecache.page_faults_total", metric.WithDescription("pages that required a frame replacement to fetch"))
	if err != nil {
		return nil, fmt.Errorf("creating page_faults_total: %w", err)
	}
	evictions, err := m.Int64Counter("pagecache.page_evictions_total", metric.WithDescription("frames reclaimed from the clock replacer"))
	if err != nil {
		return nil, fmt.Errorf("creating page_evictions_total: %w", err)
	}
	dirtyFlushes, err := m.Int64Counter("pagecache.dirty_writebacks_total", metric.WithDescription("dirty frames written back to disk"))
	if err != nil {
		return nil, fmt.Errorf("creating dirty_writebacks_total: %w", err)
	}
	pinned, err := m.Int64UpDownCounter("pagecache.pinned_frames", metric.WithDescription("frames currently pinned"))
	if err != nil {
		return nil, fmt.Errorf("creating pinned_frames: %w", err)
	}
	return &BufferPoolMetrics{
		hits:         hits,
		faults:       faults,
		evictions:    evictions,
		dirtyFlushes: dirtyFlushes,
		pinnedGauge:  pinned,
	}, nil
}

func (b *BufferPoolMetrics) RecordHit(ctx context.Context) {
	if b == nil {
		return
	}
	b.hits.Add(ctx, 1)
}

func (b *BufferPoolMetrics) RecordFault(ctx context.Context) {
	if b == nil {
		return
	}
	b.faults.Add(ctx, 1)
}

func (b *BufferPoolMetrics) RecordEviction(ctx context.Context) {
	if b == nil {
		return
	}
	b.evictions.Add(ctx, 1)
}

func (b *BufferPoolMetrics) RecordDirtyWriteback(ctx context.Context) {
	if b == nil {
		return
	}
	b.dirtyFlushes.Add(ctx, 1)
}

func (b *BufferPoolMetrics) AdjustPinned(ctx context.Context, delta int64) {
	if b == nil {
		return
	}
	b.pinnedGauge.Add(ctx, delta)
}
