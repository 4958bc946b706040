package analysis

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// Spectrum is the one-sided amplitude spectrum of a uniformly sampled
// series.
type Spectrum struct {
	Freq  []float64 // Hz
	Power []float64
}

// PowerSpectrum transforms series sampled every dt seconds. The mean is
// removed first so the DC bin does not dominate.
func PowerSpectrum(series []float64, dt float64) (*Spectrum, error) {
	n := len(series)
	if n < 4 {
		return nil, fmt.Errorf("analysis: need at least 4 samples, got %d", n)
	}
	if dt <= 0 {
		return nil, fmt.Errorf("analysis: sample interval must be positive")
	}

	mean := stat.Mean(series, nil)
	centered := make([]float64, n)
	for i, v := range series {
		centered[i] = v - mean
	}

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, centered)
	s := &Spectrum{Freq: make([]float64, len(coeff)), Power: make([]float64, len(coeff))}
	for i, c := range coeff {
		s.Freq[i] = fft.Freq(i) / dt
		s.Power[i] = cmplx.Abs(c) * 2 / float64(n)
	}
	return s, nil
}

// Dominant returns the strongest non-DC frequency and its amplitude.
func (s *Spectrum) Dominant() (freq, amp float64) {
	for i := 1; i < len(s.Power); i++ {
		if s.Power[i] > amp {
			freq, amp = s.Freq[i], s.Power[i]
		}
	}
	return freq, amp
}
