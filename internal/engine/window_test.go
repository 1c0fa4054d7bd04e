package engine

import (
	"math"
	"testing"
)

func TestScoreRingEvictsOldest(t *testing.T) {
	r := newScoreRing(3)
	for _, v := range []float64{0.1, 0.2, 0.3, 0.4} {
		r.Push(v)
	}
	if r.Len() != 3 {
		t.Fatalf("expected 3 scores after eviction, got %d", r.Len())
	}
	got := r.Values()
	want := []float64{0.2, 0.3, 0.4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("values after eviction = %v, want %v", got, want)
		}
	}
}

func TestScoreRingCountAboveIsStrict(t *testing.T) {
	r := newScoreRing(10)
	for _, v := range []float64{0.1, 0.5, 0.5, 0.9} {
		r.Push(v)
	}
	if n := r.CountAbove(0.5); n != 1 {
		t.Fatalf("CountAbove(0.5) = %d, want 1", n)
	}
	if n := r.CountAbove(0.05); n != 4 {
		t.Fatalf("CountAbove(0.05) = %d, want 4", n)
	}
}

func TestScoreRingMean(t *testing.T) {
	r := newScoreRing(4)
	if r.Mean() != 0 {
		t.Fatalf("empty ring mean = %v, want 0", r.Mean())
	}
	for _, v := range []float64{0.2, 0.4, 0.6} {
		r.Push(v)
	}
	if m := r.Mean(); math.Abs(m-0.4) > 1e-9 {
		t.Fatalf("mean = %v, want 0.4", m)
	}
}
