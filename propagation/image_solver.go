package propagation

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/acoustic-scene-sim/dsp"
	"github.com/signalsfoundry/acoustic-scene-sim/model"
)

// ImageModel is the registry name of the built-in image solver.
const ImageModel = "image"

const (
	defaultMaxOrder   = 20
	surfaceReflection = -1.0
	minPathLengthM    = 1.0
)

// ImageSolver is an isovelocity image-method model of a pressure-release
// surface over a fluid half-space bottom. It uses the thickness-weighted
// mean water speed and the first seabed layer of the description; columns
// without a seabed only get the direct and surface-reflected paths.
type ImageSolver struct {
	// MaxOrder bounds the number of bottom bounces considered.
	MaxOrder int
}

// NewImageSolver returns an image solver with the default reflection order.
func NewImageSolver() *ImageSolver {
	return &ImageSolver{MaxOrder: defaultMaxOrder}
}

func (s *ImageSolver) Name() string { return ImageModel }

// Solve sums spherically spreading image arrivals into an impulse response.
// Arrival times are split linearly between the two neighbouring samples so
// nothing lands before the earliest geometric travel time.
func (s *ImageSolver) Solve(ctx context.Context, req Request) (*Response, error) {
	if req.Description == nil {
		return nil, fmt.Errorf("image solver: nil description")
	}
	if req.Length <= 0 || req.SampleRateHz <= 0 {
		return nil, fmt.Errorf("image solver: invalid length %d or sample rate %v", req.Length, req.SampleRateHz)
	}
	c := req.Description.MeanWaterSpeed()
	if c <= 0 {
		return nil, fmt.Errorf("image solver: description has no water speed")
	}

	fs := req.SampleRateHz
	zs, zr, r := req.SourceDepthM, req.SensorDepthM, req.RangeM
	h := make([]float64, req.Length)

	depth, bed, hasBottom := req.Description.Bottom()
	maxOrder := s.MaxOrder
	if maxOrder <= 0 {
		maxOrder = defaultMaxOrder
	}
	if !hasBottom {
		maxOrder = 0
	}
	props := bed.Properties()

	add := func(dz float64, surfaceBounces, bottomBounces int) bool {
		dz = math.Abs(dz)
		path := math.Hypot(r, dz)
		pos := path / c * fs
		if pos >= float64(req.Length) {
			return false
		}
		amp := math.Pow(surfaceReflection, float64(surfaceBounces))
		if bottomBounces > 0 {
			grazing := math.Atan2(dz, r)
			amp *= math.Pow(bottomReflection(props, grazing), float64(bottomBounces))
		}
		amp /= math.Max(path, minPathLengthM)
		i := int(pos)
		frac := pos - float64(i)
		h[i] += amp * (1 - frac)
		if i+1 < len(h) {
			h[i+1] += amp * frac
		}
		return true
	}

	for m := 0; m <= maxOrder; m++ {
		if m%4 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		base := 2 * float64(m) * depth
		landed := add(base+zs-zr, m, m)
		landed = add(base+zs+zr, m+1, m) || landed
		if m > 0 {
			landed = add(base-zs+zr, m, m) || landed
			landed = add(base-zs-zr, m-1, m) || landed
		}
		if !landed && m > 0 {
			break
		}
	}

	if !req.Band.Full(fs) {
		b := req.Band.Resolve(fs)
		h = dsp.BandLimit(h, fs, b.MinHz, b.MaxHz)
	}
	return &Response{SampleRateHz: fs, Samples: h}, nil
}

// bottomReflection is the plane-wave Rayleigh coefficient of a fluid bottom
// at grazing angle theta. Past the critical angle the magnitude is one less
// the per-wavelength attenuation scaled by the vertical path component.
func bottomReflection(p model.Geoacoustic, theta float64) float64 {
	n := 1 / p.SpeedRatio
	sin, cos := math.Sin(theta), math.Cos(theta)
	root := n*n - cos*cos
	if root < 0 {
		return dsp.DBToAmplitude(-p.AttenuationDB * sin)
	}
	num := p.DensityRatio*sin - math.Sqrt(root)
	den := p.DensityRatio*sin + math.Sqrt(root)
	if den == 0 {
		return -1
	}
	return num / den
}
