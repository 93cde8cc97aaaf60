package environment

import (
	"math"

	"gonum.org/v1/gonum/interp"
)

// Spectrum levels in dB re 1 µPa²/Hz, read off the Wenz and Knudsen curves.
// Curves are interpolated linearly in log10 frequency and held constant
// beyond their end points.

var seaFreqs = []float64{100, 500, 1000, 10000, 100000}

var seaLevels = [][]float64{
	{50.0, 48.0, 44.5, 27.5, 10.5},
	{60.0, 58.5, 55.0, 38.0, 21.0},
	{66.0, 65.0, 61.5, 44.5, 27.5},
	{69.0, 68.0, 64.5, 47.5, 30.5},
	{71.0, 70.0, 66.5, 49.5, 32.5},
	{73.0, 72.0, 68.5, 51.5, 34.5},
	{74.5, 73.5, 70.0, 53.0, 36.0},
}

var rainFreqs = []float64{100, 1000, 5000, 10000, 20000, 100000}

var rainLevels = [][]float64{
	{40, 48, 52, 50, 47, 35},
	{48, 57, 61, 59, 56, 44},
	{55, 65, 69, 67, 64, 52},
	{62, 72, 76, 74, 71, 59},
}

var shippingFreqs = []float64{10, 50, 100, 300, 1000, 3000}

// shippingShape is the traffic spectrum relative to its 50 Hz peak; the
// peak rises 5 dB per density level from 65 dB at level 1.
var shippingShape = []float64{-10, 0, -2, -12, -28, -45}

var (
	seaCurves      = fitCurves(seaFreqs, seaLevels)
	rainCurves     = fitCurves(rainFreqs, rainLevels)
	shippingCurves = fitCurves(shippingFreqs, shippingTable())
)

func shippingTable() [][]float64 {
	rows := make([][]float64, int(ShippingLevel7))
	for level := range rows {
		peak := 65 + 5*float64(level)
		row := make([]float64, len(shippingShape))
		for i, rel := range shippingShape {
			row[i] = peak + rel
		}
		rows[level] = row
	}
	return rows
}

func fitCurves(freqs []float64, levels [][]float64) []interp.PiecewiseLinear {
	logf := make([]float64, len(freqs))
	for i, f := range freqs {
		logf[i] = math.Log10(f)
	}
	curves := make([]interp.PiecewiseLinear, len(levels))
	for i, row := range levels {
		if err := curves[i].Fit(logf, row); err != nil {
			panic("environment: bad noise table: " + err.Error())
		}
	}
	return curves
}
