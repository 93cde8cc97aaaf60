// Package dsp holds the signal-processing primitives shared by the
// propagation and synthesis layers: level conversions, FFT filtering,
// band-limited noise synthesis, spectral estimation and quantization.
package dsp

import "math"

// FloorDB is returned for non-positive linear values.
const FloorDB = -300.0

// DBToAmplitude converts a level in dB to a linear amplitude ratio: 10^(dB/20).
func DBToAmplitude(db float64) float64 {
	return math.Pow(10, db/20)
}

// AmplitudeToDB converts a linear amplitude ratio to dB: 20·log10(x).
func AmplitudeToDB(x float64) float64 {
	if x <= 0 || math.IsNaN(x) {
		return FloorDB
	}
	return 20 * math.Log10(x)
}

// DBToPower converts a level in dB to a linear power ratio: 10^(dB/10).
func DBToPower(db float64) float64 {
	return math.Pow(10, db/10)
}

// PowerToDB converts a linear power ratio to dB: 10·log10(p).
func PowerToDB(p float64) float64 {
	if p <= 0 || math.IsNaN(p) {
		return FloorDB
	}
	return 10 * math.Log10(p)
}

// NextPow2 returns the smallest power of two >= n (1 for n <= 1).
func NextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
