package capture

import (
	"testing"
	"time"
)

func TestBackoff_DoublesToMax(t *testing.T) {
	b := newBackoff(100*time.Millisecond, 350*time.Millisecond)

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 350 * time.Millisecond, 350 * time.Millisecond}
	for i, w := range want {
		if got := b.Current(); got != w {
			t.Fatalf("step %d: current = %v, want %v", i, got, w)
		}
		d := b.Next()
		lo, hi := time.Duration(float64(w)*0.8), time.Duration(float64(w)*1.2)
		if d < lo || d > hi {
			t.Errorf("step %d: delay %v outside [%v, %v]", i, d, lo, hi)
		}
	}

	b.Reset()
	if got := b.Current(); got != 100*time.Millisecond {
		t.Errorf("after reset current = %v", got)
	}
}
