package mcphost

import (
	"slices"
	"sync"
)

// sample is one recorded tool call.
type sample struct {
	latencyMs int64
	failed    bool
}

// rollingWindow keeps the last N tool call outcomes in a ring buffer for
// percentile and error-rate calculation. All methods are safe for concurrent
// use.
type rollingWindow struct {
	mu      sync.Mutex
	samples []sample
	pos     int // next write position
	count   int // total samples written (may exceed len(samples))
}

// newRollingWindow creates a new rolling window with the given capacity.
// A size of 0 or negative defaults to [defaultWindowSize].
func newRollingWindow(size int) *rollingWindow {
	if size <= 0 {
		size = defaultWindowSize
	}
	return &rollingWindow{samples: make([]sample, size)}
}

// Record adds a measurement, overwriting the oldest once the buffer is full.
func (w *rollingWindow) Record(latencyMs int64, isError bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.pos] = sample{latencyMs: latencyMs, failed: isError}
	w.pos = (w.pos + 1) % len(w.samples)
	w.count++
}

// live returns the meaningful part of the buffer. Caller holds w.mu.
func (w *rollingWindow) live() []sample {
	return w.samples[:min(w.count, len(w.samples))]
}

// percentile returns the latency at fraction q of the sorted window.
func (w *rollingWindow) percentile(q float64) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	live := w.live()
	if len(live) == 0 {
		return 0
	}
	sorted := make([]int64, len(live))
	for i, s := range live {
		sorted[i] = s.latencyMs
	}
	slices.Sort(sorted)
	return sorted[int(float64(len(sorted)-1)*q+0.5)]
}

// P50 returns the median latency in ms, or 0 with no measurements.
func (w *rollingWindow) P50() int64 { return w.percentile(0.5) }

// P99 returns the 99th-percentile latency in ms, or 0 with no measurements.
func (w *rollingWindow) P99() int64 { return w.percentile(0.99) }

// ErrorRate returns the fraction of windowed calls that failed (0.0–1.0).
func (w *rollingWindow) ErrorRate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	live := w.live()
	if len(live) == 0 {
		return 0
	}
	failed := 0
	for _, s := range live {
		if s.failed {
			failed++
		}
	}
	return float64(failed) / float64(len(live))
}

// Count returns the total number of calls recorded (may exceed the window
// capacity).
func (w *rollingWindow) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
