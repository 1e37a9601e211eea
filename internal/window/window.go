// Package window maintains a fixed ring of second-aligned buckets that
// accumulate latency samples for the trailing aggregation window.
package window

import (
	"sync"
	"time"
)

// DefaultSize is the number of one-second buckets in the ring.
const DefaultSize = 60

// bucket is one accumulation slot. A slot is reused once its previous
// period has fully rolled around; staleness is detected lazily at both
// write and read time, there is no background sweep.
type bucket struct {
	mu           sync.Mutex
	windowStart  time.Time
	sampleCount  int64
	totalLatency float64
}

// Ring accumulates per-event latency samples into len(buckets) slots,
// keyed by wall-clock second modulo the ring size. Buckets are
// independently locked so writers of different seconds never contend.
//
// A Ring is usable before Initialize: buckets start with a zero
// windowStart, so the first Record on a slot takes the reset path and
// the slot self-initializes. Initialize remains the explicit, idempotent
// way to reset the whole ring to an empty state.
type Ring struct {
	buckets []bucket
	span    time.Duration
}

func New(size int) *Ring {
	if size <= 0 {
		size = DefaultSize
	}

	return &Ring{
		buckets: make([]bucket, size),
		span:    time.Duration(size) * time.Second,
	}
}

// Size returns the number of buckets in the ring.
func (r *Ring) Size() int {
	return len(r.buckets)
}

// Span returns the duration of the trailing window covered by the ring.
func (r *Ring) Span() time.Duration {
	return r.span
}

// Initialize resets every bucket to an empty period starting at now.
// Calling it again discards all accumulated samples.
func (r *Ring) Initialize(now time.Time) {
	for i := range r.buckets {
		b := &r.buckets[i]
		b.mu.Lock()
		b.windowStart = now
		b.sampleCount = 0
		b.totalLatency = 0
		b.mu.Unlock()
	}
}

// Record adds one latency sample to the bucket for now's wall-clock
// second. If the slot's previous period has fully elapsed the bucket is
// reset to a new period seeded with this sample, otherwise the sample
// accumulates. Negative latencies clamp to zero. Safe for concurrent use.
func (r *Ring) Record(now time.Time, latencyMs float64) {
	if len(r.buckets) == 0 {
		return
	}

	if latencyMs < 0 {
		latencyMs = 0
	}

	b := &r.buckets[r.index(now)]
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.windowStart) >= r.span {
		b.windowStart = now
		b.sampleCount = 1
		b.totalLatency = latencyMs

		return
	}

	b.sampleCount++
	b.totalLatency += latencyMs
}

// LiveTotals sums sample count and total latency across buckets whose
// period still falls inside the trailing window. Buckets older than the
// span are excluded even though they have not been physically reset yet;
// this uses the same expiry predicate as Record so the two stay
// consistent between resets.
func (r *Ring) LiveTotals(now time.Time) (int64, float64) {
	var count int64
	var total float64

	for i := range r.buckets {
		b := &r.buckets[i]
		b.mu.Lock()
		if now.Sub(b.windowStart) < r.span {
			count += b.sampleCount
			total += b.totalLatency
		}
		b.mu.Unlock()
	}

	return count, total
}

func (r *Ring) index(now time.Time) int {
	idx := int(now.Unix() % int64(len(r.buckets)))
	if idx < 0 {
		idx += len(r.buckets)
	}

	return idx
}
