package analysis

import (
	"math"
	"testing"
)

func TestPowerSpectrum(t *testing.T) {
	ps := PowerSpectrum([]float64{1, 0, 0, 0})
	if len(ps) != 2 {
		t.Fatalf("expected 2 bins, got %d", len(ps))
	}
	for k, v := range ps {
		if math.Abs(v-1) > 1e-12 {
			t.Errorf("bin %d: expected 1, got %f", k, v)
		}
	}
}

func TestDominantFrequency(t *testing.T) {
	dt := 1.0 / 64
	values := make([]float64, 64)
	for i := range values {
		values[i] = 3 + math.Sin(2*math.Pi*2*float64(i)*dt)
	}
	hz, err := DominantFrequency(values, dt)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(hz-2) > 1e-9 {
		t.Errorf("expected 2 Hz, got %f", hz)
	}

	hz, err = DominantFrequency([]float64{1, 1, 1, 1}, dt)
	if err != nil || hz != 0 {
		t.Errorf("expected 0 Hz for a constant series, got %f (%v)", hz, err)
	}
	if _, err := DominantFrequency([]float64{1, 2}, dt); err != ErrShortSeries {
		t.Errorf("expected ErrShortSeries, got %v", err)
	}
	if _, err := DominantFrequency(values, 0); err == nil {
		t.Error("expected error for zero dt")
	}
}
