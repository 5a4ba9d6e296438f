package smoothing

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWindow_Empty(t *testing.T) {
	w := New(15)
	if got := w.Mean(); got != 0 {
		t.Errorf("Mean() on empty window = %v, want 0", got)
	}
	if got := w.MeanOr(0.3); got != 0.3 {
		t.Errorf("MeanOr(0.3) on empty window = %v, want 0.3", got)
	}
	if w.Len() != 0 || w.Cap() != 15 {
		t.Errorf("Len/Cap = %d/%d, want 0/15", w.Len(), w.Cap())
	}
}

func TestWindow_SameValueIsIdempotent(t *testing.T) {
	for _, capacity := range []int{1, 10, 15} {
		for _, v := range []float64{0.25, 0.27, -12.5} {
			w := New(capacity)
			for i := 0; i < capacity; i++ {
				w.Push(v)
			}
			if got := w.Mean(); math.Abs(got-v) > 1e-12 {
				t.Errorf("cap %d: Mean() = %v, want %v", capacity, got, v)
			}
		}
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := New(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		w.Push(v)
		if w.Len() > w.Cap() {
			t.Fatalf("Len() %d exceeds Cap() %d", w.Len(), w.Cap())
		}
	}
	if diff := cmp.Diff([]float64{3, 4, 5}, w.Values()); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}
	if got := w.Mean(); got != 4 {
		t.Errorf("Mean() = %v, want 4", got)
	}
	if !w.Full() {
		t.Error("expected window to be full")
	}
}

func TestWindow_PartialMean(t *testing.T) {
	w := New(10)
	w.Push(2)
	w.Push(4)
	if got := w.Mean(); got != 3 {
		t.Errorf("Mean() = %v, want 3", got)
	}
	if diff := cmp.Diff([]float64{2, 4}, w.Values()); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}
}

func TestWindow_Reset(t *testing.T) {
	w := New(4)
	for i := 0; i < 7; i++ {
		w.Push(float64(i))
	}
	w.Reset()
	if w.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", w.Len())
	}
	if w.Cap() != 4 {
		t.Errorf("Cap() after Reset = %d, want 4", w.Cap())
	}
	w.Push(9)
	if got := w.Mean(); got != 9 {
		t.Errorf("Mean() after Reset+Push = %v, want 9", got)
	}
}

func TestNew_ClampsCapacity(t *testing.T) {
	w := New(0)
	if w.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1", w.Cap())
	}
	w.Push(1)
	w.Push(2)
	if got := w.Mean(); got != 2 {
		t.Errorf("Mean() = %v, want 2", got)
	}
}
