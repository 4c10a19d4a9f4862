package candle

import "sync"

// Window is a fixed-capacity rolling buffer of the most recent candles for
// one symbol. The oldest candle is evicted first. A candle whose timestamp
// equals the newest entry replaces it (streaming kline refreshes of the same
// interval arrive repeatedly), so a reconnect never duplicates the last
// delivered candle. Older timestamps are dropped.
type Window struct {
	mu       sync.RWMutex
	capacity int
	candles  []Candle
}

// NewWindow creates a rolling window with the given capacity. A capacity
// below 1 is treated as 1.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		capacity: capacity,
		candles:  make([]Candle, 0, capacity),
	}
}

// Add inserts a candle into the window. It reports whether the candle
// advanced the window to a new interval (false for same-interval refreshes
// and stale timestamps).
func (w *Window) Add(c Candle) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.candles)
	if n > 0 {
		last := w.candles[n-1]
		if c.Timestamp.Equal(last.Timestamp) {
			w.candles[n-1] = c
			return false
		}
		if c.Timestamp.Before(last.Timestamp) {
			return false
		}
	}

	if n == w.capacity {
		copy(w.candles, w.candles[1:])
		w.candles[n-1] = c
		return true
	}
	w.candles = append(w.candles, c)
	return true
}

// Snapshot returns a copy of the most recent count candles in arrival order.
// A count below 1 or above the window length returns everything buffered.
func (w *Window) Snapshot(count int) []Candle {
	w.mu.RLock()
	defer w.mu.RUnlock()

	n := len(w.candles)
	if count < 1 || count > n {
		count = n
	}
	out := make([]Candle, count)
	copy(out, w.candles[n-count:])
	return out
}

// Len returns the number of buffered candles.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.candles)
}

// Latest returns the newest candle, if any.
func (w *Window) Latest() (Candle, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.candles) == 0 {
		return Candle{}, false
	}
	return w.candles[len(w.candles)-1], true
}

// Capacity returns the configured maximum length.
func (w *Window) Capacity() int {
	return w.capacity
}
