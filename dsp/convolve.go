package dsp

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// Convolve returns the linear convolution of x with h truncated to len(x).
// The filter is applied causally: output sample i depends on x[0..i] only,
// and the tail that would extend past the input is discarded.
func Convolve(x, h []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 || len(h) == 0 {
		return out
	}
	full := ConvolveFull(x, h)
	copy(out, full)
	return out
}

// ConvolveFull returns the full linear convolution (len(x)+len(h)-1 samples).
func ConvolveFull(x, h []float64) []float64 {
	if len(x) == 0 || len(h) == 0 {
		return nil
	}
	n := len(x) + len(h) - 1
	if len(h) <= 32 || len(x) <= 32 {
		return convolveDirect(x, h, n)
	}

	nfft := NextPow2(n)
	fft := fourier.NewFFT(nfft)

	xp := make([]float64, nfft)
	copy(xp, x)
	hp := make([]float64, nfft)
	copy(hp, h)

	xc := fft.Coefficients(nil, xp)
	hc := fft.Coefficients(nil, hp)
	for i := range xc {
		xc[i] *= hc[i]
	}

	// gonum's inverse transform is unnormalised.
	y := fft.Sequence(nil, xc)
	scale := 1 / float64(nfft)
	out := make([]float64, n)
	for i := range out {
		out[i] = y[i] * scale
	}
	return out
}

func convolveDirect(x, h []float64, n int) []float64 {
	out := make([]float64, n)
	for i, xv := range x {
		if xv == 0 {
			continue
		}
		for j, hv := range h {
			out[i+j] += xv * hv
		}
	}
	return out
}
