package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/signalsfoundry/acoustic-scene-sim/dsp"
	"github.com/signalsfoundry/acoustic-scene-sim/model"
)

const (
	// ReferenceLengthM normalises the hull length term of the source level.
	ReferenceLengthM = 100.0
	// ReferenceCornerHz is the spectral peak at or below cruise speed.
	ReferenceCornerHz = 480.0
	// CavitationOnset is the speed ratio where the 60 log law starts.
	CavitationOnset = 0.5
	// ModulationIndex sets the blade-rate amplitude modulation depth.
	ModulationIndex = 0.3
	// TonalHarmonics is the number of blade-rate lines added to the noise.
	TonalHarmonics = 4
	// TonalProminenceDB is the first line's excess over the broadband level.
	TonalProminenceDB = 10.0

	spectralDamping     = 3.0
	modulationHarmonics = 3
	silentLevelDB       = -120.0
	peakGridSize        = 2048
)

// ErrEmptyTrajectory reports a noise request for an element that never moved.
var ErrEmptyTrajectory = errors.New("trajectory has no steps")

// PropulsionParams describes the propeller plant of one vessel.
type PropulsionParams struct {
	ShipType         model.ShipType
	NBlades          int
	NShafts          int
	LengthM          float64
	CruiseSpeedMS    float64
	CruiseRotationHz float64
	MaxSpeedMS       float64
	DraftM           float64
	Seed             int64
}

// Validate checks the parameters can drive the source model.
func (p PropulsionParams) Validate() error {
	switch {
	case !p.ShipType.Valid():
		return fmt.Errorf("propulsion: invalid ship type %d", int(p.ShipType))
	case p.NBlades < 1:
		return fmt.Errorf("propulsion: blade count %d < 1", p.NBlades)
	case p.NShafts < 1:
		return fmt.Errorf("propulsion: shaft count %d < 1", p.NShafts)
	case p.LengthM <= 0:
		return fmt.Errorf("propulsion: non-positive length %v", p.LengthM)
	case p.CruiseSpeedMS <= 0:
		return fmt.Errorf("propulsion: non-positive cruise speed %v", p.CruiseSpeedMS)
	case p.CruiseRotationHz <= 0:
		return fmt.Errorf("propulsion: non-positive cruise rotation %v", p.CruiseRotationHz)
	case p.DraftM < 0:
		return fmt.Errorf("propulsion: negative draft %v", p.DraftM)
	}
	return nil
}

// BladeRateHz returns the blade passing frequency at speedMS. Shaft rotation
// scales linearly with speed through the water.
func (p PropulsionParams) BladeRateHz(speedMS float64) float64 {
	if speedMS <= 0 {
		return 0
	}
	return float64(p.NBlades) * p.CruiseRotationHz * speedMS / p.CruiseSpeedMS
}

// SpeedLevelDB is the level change for a speed ratio r = v / v_cruise.
func SpeedLevelDB(r float64) float64 {
	switch {
	case r <= 0:
		return silentLevelDB
	case r >= CavitationOnset:
		return 60 * math.Log10(r)
	default:
		return 60*math.Log10(CavitationOnset) + 20*math.Log10(r/CavitationOnset)
	}
}

// CavitationNoise synthesises radiated propeller noise for one vessel. The
// zero value is not usable; construct with NewCavitationNoise.
type CavitationNoise struct {
	params  PropulsionParams
	initial PropulsionParams
}

// NewCavitationNoise validates p and snapshots it for Reset.
func NewCavitationNoise(p PropulsionParams) (*CavitationNoise, error) {
	if p.MaxSpeedMS <= 0 {
		p.MaxSpeedMS = maxSpeedFactor * p.CruiseSpeedMS
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &CavitationNoise{params: p, initial: p}, nil
}

// Params returns the current parameters.
func (c *CavitationNoise) Params() PropulsionParams { return c.params }

// SetBlades changes the blade count.
func (c *CavitationNoise) SetBlades(n int) error {
	if n < 1 {
		return fmt.Errorf("propulsion: blade count %d < 1", n)
	}
	c.params.NBlades = n
	return nil
}

// SetShafts changes the shaft count.
func (c *CavitationNoise) SetShafts(n int) error {
	if n < 1 {
		return fmt.Errorf("propulsion: shaft count %d < 1", n)
	}
	c.params.NShafts = n
	return nil
}

// SetCruiseSpeed changes the cruise speed and rescales the speed cap. Use
// Ship.SetCruiseSpeed to keep the ship's motion cap in step.
func (c *CavitationNoise) SetCruiseSpeed(ms float64) error {
	if ms <= 0 || math.IsNaN(ms) {
		return fmt.Errorf("propulsion: non-positive cruise speed %v", ms)
	}
	c.params.MaxSpeedMS *= ms / c.params.CruiseSpeedMS
	c.params.CruiseSpeedMS = ms
	return nil
}

// SetCruiseRotation changes the shaft rate at cruise speed.
func (c *CavitationNoise) SetCruiseRotation(hz float64) error {
	if hz <= 0 || math.IsNaN(hz) {
		return fmt.Errorf("propulsion: non-positive cruise rotation %v", hz)
	}
	c.params.CruiseRotationHz = hz
	return nil
}

// Reset restores the parameters given at construction.
func (c *CavitationNoise) Reset() { c.params = c.initial }

// PSD returns the radiated level in dB re 1 µPa²/Hz at 1 m for a vessel
// moving at speedMS.
func (c *CavitationNoise) PSD(freqHz, speedMS float64) float64 {
	if freqHz <= 0 {
		return math.Inf(-1)
	}
	p := c.params
	f1 := ReferenceCornerHz
	if speedMS > p.CruiseSpeedMS {
		f1 *= p.CruiseSpeedMS / speedMS
	}
	x := 1 - freqHz/f1
	shape := -10*math.Log10(x*x+spectralDamping*spectralDamping) - 20*math.Log10(f1/ReferenceCornerHz)
	return classLevelDB(p.ShipType) + shape +
		SpeedLevelDB(speedMS/p.CruiseSpeedMS) +
		20*math.Log10(p.LengthM/ReferenceLengthM) +
		10*math.Log10(float64(p.NShafts))
}

// PeakLevelDB is the maximum of PSD over the bins of a 2048-point FFT at fs.
func (c *CavitationNoise) PeakLevelDB(speedMS, fs float64) float64 {
	peak := math.Inf(-1)
	df := fs / peakGridSize
	for k := 1; k <= peakGridSize/2; k++ {
		peak = max(peak, c.PSD(float64(k)*df, speedMS))
	}
	return peak
}

func (c *CavitationNoise) rng() *rand.Rand {
	return rand.New(rand.NewPCG(uint64(c.params.Seed), 0x6e6f697365<<8|uint64(c.params.ShipType)))
}

// GenerateBroadbandNoise synthesises the cavitation continuum along the
// element's trajectory. Each trajectory step becomes one segment shaped to
// the PSD at the step's mean speed. It also returns the per-sample speed.
func (c *CavitationNoise) GenerateBroadbandNoise(el *Element, fs float64) ([]float64, []float64, error) {
	if fs <= 0 {
		return nil, nil, fmt.Errorf("noise: non-positive sample rate %v", fs)
	}
	traj := el.Trajectory()
	n := int(math.Round(el.Duration().Seconds() * fs))
	if len(traj) < 2 || n == 0 {
		return nil, nil, ErrEmptyTrajectory
	}

	rng := c.rng()
	signal := make([]float64, 0, n)
	for k := 0; k+1 < len(traj); k++ {
		end := int(math.Round(traj[k+1].Time.Seconds() * fs))
		if k+2 == len(traj) {
			end = n
		}
		length := end - len(signal)
		if length <= 0 {
			continue
		}
		speed := (traj[k].Speed() + traj[k+1].Speed()) / 2
		seg := dsp.GenerateBroadband(rng, length, fs, func(f float64) float64 {
			return c.PSD(f, speed)
		})
		signal = append(signal, seg...)
	}

	return signal, sampleSpeeds(el, n, fs), nil
}

func sampleSpeeds(el *Element, n int, fs float64) []float64 {
	speeds := make([]float64, n)
	for i := range speeds {
		speeds[i] = el.StateAt(secondsToDuration(float64(i) / fs)).Speed()
	}
	return speeds
}

// ModulateNoise applies blade-rate amplitude modulation to broadband noise.
// The modulation phase integrates the instantaneous blade rate so speed
// changes do not produce phase jumps.
func (c *CavitationNoise) ModulateNoise(broadband, speeds []float64, fs float64) ([]float64, []float64, error) {
	if len(broadband) != len(speeds) {
		return nil, nil, fmt.Errorf("modulate: %d samples but %d speeds", len(broadband), len(speeds))
	}
	if fs <= 0 {
		return nil, nil, fmt.Errorf("modulate: non-positive sample rate %v", fs)
	}
	out := make([]float64, len(broadband))
	var phase float64
	for i, x := range broadband {
		m := 1.0
		for h := 1; h <= modulationHarmonics; h++ {
			m += ModulationIndex / float64(h) * math.Cos(float64(h)*phase)
		}
		out[i] = x * m
		phase += 2 * math.Pi * c.params.BladeRateHz(speeds[i]) / fs
	}
	return out, speeds, nil
}

// GenerateNoise returns modulated broadband noise plus blade-rate tonals.
func (c *CavitationNoise) GenerateNoise(ctx context.Context, el *Element, fs float64) ([]float64, error) {
	broadband, speeds, err := c.GenerateBroadbandNoise(el, fs)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, _, err := c.ModulateNoise(broadband, speeds, fs)
	if err != nil {
		return nil, err
	}

	nyquist := fs / 2
	phases := make([]float64, TonalHarmonics)
	for i, v := range speeds {
		rate := c.params.BladeRateHz(v)
		if rate <= 0 {
			continue
		}
		for h := 1; h <= TonalHarmonics; h++ {
			f := float64(h) * rate
			if f < nyquist {
				level := c.PSD(f, v) + TonalProminenceDB - 6*float64(h-1)
				out[i] += math.Sqrt2 * dsp.DBToAmplitude(level) * math.Sin(phases[h-1])
			}
			phases[h-1] += 2 * math.Pi * f / fs
		}
	}
	return out, nil
}
