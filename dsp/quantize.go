package dsp

import "math"

// Quantizer maps analog values in ±FullScale onto signed integer codes of
// Bits resolution, saturating outside the range.
type Quantizer struct {
	Bits      int
	FullScale float64
}

// Range returns the smallest and largest representable codes.
func (q Quantizer) Range() (int64, int64) {
	half := int64(1) << (q.Bits - 1)
	return -half, half - 1
}

// Code returns the integer code for v.
func (q Quantizer) Code(v float64) int64 {
	lo, hi := q.Range()
	if math.IsNaN(v) {
		return 0
	}
	c := math.Round(v / q.FullScale * float64(hi+1))
	if c < float64(lo) {
		return lo
	}
	if c > float64(hi) {
		return hi
	}
	return int64(c)
}

// Apply quantizes x in place to integer-valued codes.
func (q Quantizer) Apply(x []float64) {
	for i, v := range x {
		x[i] = float64(q.Code(v))
	}
}
