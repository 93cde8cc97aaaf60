package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// Welch estimates the one-sided power spectral density of x with Hann
// windowed segments of segment samples overlapping by overlap (0 <= overlap < 1).
// It returns bin frequencies and the PSD in dB re 1 unit²/Hz.
func Welch(x []float64, fs float64, segment int, overlap float64) ([]float64, []float64, error) {
	if segment <= 1 {
		return nil, nil, fmt.Errorf("welch: segment length %d too short", segment)
	}
	if overlap < 0 || overlap >= 1 {
		return nil, nil, fmt.Errorf("welch: overlap %v outside [0, 1)", overlap)
	}
	if len(x) < segment {
		return nil, nil, fmt.Errorf("welch: signal of %d samples shorter than segment %d", len(x), segment)
	}

	window := Hann(segment)
	windowPower := floats.Dot(window, window)
	step := int(float64(segment) * (1 - overlap))
	if step < 1 {
		step = 1
	}

	fft := fourier.NewFFT(segment)
	bins := segment/2 + 1
	acc := make([]float64, bins)
	buf := make([]float64, segment)
	var coeff []complex128
	segments := 0
	for start := 0; start+segment <= len(x); start += step {
		floats.MulTo(buf, x[start:start+segment], window)
		coeff = fft.Coefficients(coeff, buf)
		for k, c := range coeff {
			re, im := real(c), imag(c)
			acc[k] += re*re + im*im
		}
		segments++
	}

	freqs := make([]float64, bins)
	psd := make([]float64, bins)
	norm := 1 / (fs * windowPower * float64(segments))
	for k := range acc {
		p := acc[k] * norm
		if k != 0 && !(segment%2 == 0 && k == bins-1) {
			p *= 2
		}
		freqs[k] = float64(k) * fs / float64(segment)
		psd[k] = PowerToDB(p)
	}
	return freqs, psd, nil
}

// Hann returns a periodic Hann window of n samples.
func Hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// RMS returns the root mean square of x.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(x, x) / float64(len(x)))
}
