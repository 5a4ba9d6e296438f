// Package smoothing provides the fixed-capacity sliding windows used to damp
// single-frame landmark jitter before scoring.
package smoothing

import (
	"gonum.org/v1/gonum/stat"
)

// Window is a bounded FIFO of the most recent values. Once full, each Push
// evicts the oldest value. It is not safe for concurrent use; the owning
// engine serialises access.
type Window struct {
	buf   []float64
	head  int // index of the oldest value
	count int
}

// New returns an empty Window holding at most capacity values. A capacity
// below 1 is treated as 1.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]float64, capacity)}
}

// Push appends v, evicting the oldest value when the window is full.
func (w *Window) Push(v float64) {
	if w.count < len(w.buf) {
		w.buf[(w.head+w.count)%len(w.buf)] = v
		w.count++
		return
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
}

// Mean returns the arithmetic mean of the current contents, or 0 when empty.
func (w *Window) Mean() float64 {
	return w.MeanOr(0)
}

// MeanOr returns the arithmetic mean of the current contents, or def when
// the window is empty.
func (w *Window) MeanOr(def float64) float64 {
	if w.count == 0 {
		return def
	}
	if w.count < len(w.buf) {
		// not yet wrapped: contents are contiguous from head
		return stat.Mean(w.buf[w.head:w.head+w.count], nil)
	}
	return stat.Mean(w.buf, nil)
}

// Values returns a copy of the contents, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

// Len returns the number of values currently held.
func (w *Window) Len() int { return w.count }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// Full reports whether the next Push will evict a value.
func (w *Window) Full() bool { return w.count == len(w.buf) }

// Reset empties the window without changing its capacity.
func (w *Window) Reset() {
	w.head = 0
	w.count = 0
}
