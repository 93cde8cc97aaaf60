package dsp

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/dsp/fourier"
)

// PSDFunc returns a one-sided power spectral density in dB re 1 unit²/Hz.
type PSDFunc func(freqHz float64) float64

// GenerateBroadband synthesises n samples of Gaussian noise whose one-sided
// PSD follows psd. White noise is shaped in the frequency domain with a
// zero-phase filter |H(f)|² = P(f)·fs/2, so the output variance equals the
// integral of P over [0, fs/2].
func GenerateBroadband(rng *rand.Rand, n int, fs float64, psd PSDFunc) []float64 {
	if n <= 0 {
		return nil
	}
	nfft := NextPow2(n)
	white := make([]float64, nfft)
	for i := range white {
		white[i] = rng.NormFloat64()
	}
	return shapeNoise(white, n, fs, psd)
}

func shapeNoise(white []float64, n int, fs float64, psd PSDFunc) []float64 {
	nfft := len(white)
	fft := fourier.NewFFT(nfft)
	coeff := fft.Coefficients(nil, white)

	for k := range coeff {
		f := float64(k) * fs / float64(nfft)
		level := psd(f)
		if math.IsInf(level, -1) || math.IsNaN(level) {
			coeff[k] = 0
			continue
		}
		coeff[k] *= complex(math.Sqrt(DBToPower(level)*fs/2), 0)
	}

	y := fft.Sequence(nil, coeff)
	scale := 1 / float64(nfft)
	out := make([]float64, n)
	for i := range out {
		out[i] = y[i] * scale
	}
	return out
}

// BandLimit zeroes the spectral content of x outside [lowHz, highHz].
// A zero highHz means fs/2.
func BandLimit(x []float64, fs, lowHz, highHz float64) []float64 {
	if len(x) == 0 {
		return nil
	}
	if highHz <= 0 || highHz > fs/2 {
		highHz = fs / 2
	}
	if lowHz <= 0 && highHz >= fs/2 {
		out := make([]float64, len(x))
		copy(out, x)
		return out
	}
	nfft := NextPow2(len(x))
	padded := make([]float64, nfft)
	copy(padded, x)
	fft := fourier.NewFFT(nfft)
	coeff := fft.Coefficients(nil, padded)
	for k := range coeff {
		f := float64(k) * fs / float64(nfft)
		if f < lowHz || f > highHz {
			coeff[k] = 0
		}
	}
	y := fft.Sequence(nil, coeff)
	scale := 1 / float64(nfft)
	out := make([]float64, len(x))
	for i := range out {
		out[i] = y[i] * scale
	}
	return out
}
