package rt

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Histogram bounds: 1µs to 60s at three significant figures keeps the
// relative error under 0.1% across the range tasks realistically span.
const (
	histogramMin     = 1
	histogramMax     = 60_000_000 // microseconds
	histogramSigFigs = 3
)

// LatencyStats is a read-only percentile snapshot, in wall durations.
type LatencyStats struct {
	Count int64
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	P999  time.Duration
	Max   time.Duration
}

// LatencyTracker records queue latency (enqueue to dispatch) and run
// latency (dispatch to finish) per priority class into HDR histograms.
// Snapshots are copies; readers never see a histogram mid-update.
type LatencyTracker struct {
	mu    sync.Mutex
	queue [3]*hdrhistogram.Histogram
	run   [3]*hdrhistogram.Histogram
}

// NewLatencyTracker returns a tracker with empty histograms for every
// priority class.
func NewLatencyTracker() *LatencyTracker {
	t := &LatencyTracker{}
	for i := range t.queue {
		t.queue[i] = hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs)
		t.run[i] = hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs)
	}
	return t
}

// RecordQueue records how long a task sat queued before dispatch.
func (t *LatencyTracker) RecordQueue(p Priority, d time.Duration) {
	t.record(t.queue[clampPriority(p)], d)
}

// RecordRun records how long a task body took to finish.
func (t *LatencyTracker) RecordRun(p Priority, d time.Duration) {
	t.record(t.run[clampPriority(p)], d)
}

func (t *LatencyTracker) record(h *hdrhistogram.Histogram, d time.Duration) {
	us := d.Microseconds()
	if us < histogramMin {
		us = histogramMin
	}
	if us > histogramMax {
		us = histogramMax
	}
	t.mu.Lock()
	_ = h.RecordValue(us)
	t.mu.Unlock()
}

// QueueStats snapshots the queue-latency histogram for one priority.
func (t *LatencyTracker) QueueStats(p Priority) LatencyStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return snapshot(t.queue[clampPriority(p)])
}

// RunStats snapshots the run-latency histogram for one priority.
func (t *LatencyTracker) RunStats(p Priority) LatencyStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return snapshot(t.run[clampPriority(p)])
}

func snapshot(h *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Count: h.TotalCount(),
		P50:   time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P95:   time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:   time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		P999:  time.Duration(h.ValueAtQuantile(99.9)) * time.Microsecond,
		Max:   time.Duration(h.Max()) * time.Microsecond,
	}
}

func clampPriority(p Priority) Priority {
	if p < High || p > Low {
		return Normal
	}
	return p
}
