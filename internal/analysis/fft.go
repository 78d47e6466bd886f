package analysis

import (
	"errors"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

var ErrShortSeries = errors.New("analysis: series too short")

// PowerSpectrum returns the magnitudes of the non-negative frequency
// bins of data. Bin k is k/(len(data)*dt) Hz for samples dt apart.
func PowerSpectrum(data []float64) []float64 {
	spectrum := fft.FFTReal(data)
	ps := make([]float64, len(spectrum)/2)

	for i := range ps {
		ps[i] = cmplx.Abs(spectrum[i])
	}

	return ps
}

// DominantFrequency is the frequency in Hz of the strongest oscillation
// in values sampled every dt seconds. The mean is removed first, so a
// constant series reports zero.
func DominantFrequency(values []float64, dt float64) (float64, error) {
	if len(values) < 4 {
		return 0, ErrShortSeries
	}
	if dt <= 0 {
		return 0, errors.New("analysis: dt must be positive")
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	centred := make([]float64, len(values))
	for i, v := range values {
		centred[i] = v - mean
	}

	ps := PowerSpectrum(centred)
	peak := 0
	for k := 1; k < len(ps); k++ {
		if ps[k] > ps[peak] && ps[k] > 1e-9 {
			peak = k
		}
	}
	return float64(peak) / (float64(len(values)) * dt), nil
}
