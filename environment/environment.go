// Package environment synthesises ambient sea noise from wind-driven
// surface agitation, rain, distant shipping and molecular thermal noise.
package environment

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/signalsfoundry/acoustic-scene-sim/dsp"
)

// Sea is a Beaufort-like sea state.
type Sea int

const (
	SeaState0 Sea = iota
	SeaState1
	SeaState2
	SeaState3
	SeaState4
	SeaState5
	SeaState6
)

// Rain is a rainfall intensity class.
type Rain int

const (
	RainNone Rain = iota
	RainLight
	RainModerate
	RainHeavy
	RainVeryHeavy
)

// Shipping is a distant traffic density level; zero means no traffic.
type Shipping int

const (
	ShippingNone Shipping = iota
	ShippingLevel1
	ShippingLevel2
	ShippingLevel3
	ShippingLevel4
	ShippingLevel5
	ShippingLevel6
	ShippingLevel7
)

func (s Sea) Valid() bool      { return s >= SeaState0 && s <= SeaState6 }
func (r Rain) Valid() bool     { return r >= RainNone && r <= RainVeryHeavy }
func (s Shipping) Valid() bool { return s >= ShippingNone && s <= ShippingLevel7 }

func (s Sea) String() string { return fmt.Sprintf("sea_state_%d", int(s)) }

func (r Rain) String() string {
	switch r {
	case RainNone:
		return "none"
	case RainLight:
		return "light"
	case RainModerate:
		return "moderate"
	case RainHeavy:
		return "heavy"
	case RainVeryHeavy:
		return "very_heavy"
	default:
		return fmt.Sprintf("rain(%d)", int(r))
	}
}

func (s Shipping) String() string { return fmt.Sprintf("shipping_%d", int(s)) }

// Environment is an ambient noise model. The zero value is a calm sea with
// no rain or traffic, leaving only the sea state 0 and thermal floors.
type Environment struct {
	Sea      Sea
	Rain     Rain
	Shipping Shipping
}

// New validates and returns an environment.
func New(sea Sea, rain Rain, shipping Shipping) (Environment, error) {
	e := Environment{Sea: sea, Rain: rain, Shipping: shipping}
	if err := e.Validate(); err != nil {
		return Environment{}, err
	}
	return e, nil
}

// Random draws every component uniformly from seed.
func Random(seed int64) Environment {
	rng := rand.New(rand.NewPCG(uint64(seed), 0xe4f1))
	return Environment{
		Sea:      Sea(rng.IntN(int(SeaState6) + 1)),
		Rain:     Rain(rng.IntN(int(RainVeryHeavy) + 1)),
		Shipping: Shipping(rng.IntN(int(ShippingLevel7) + 1)),
	}
}

// Validate reports out-of-range components.
func (e Environment) Validate() error {
	switch {
	case !e.Sea.Valid():
		return fmt.Errorf("invalid sea state %d", int(e.Sea))
	case !e.Rain.Valid():
		return fmt.Errorf("invalid rain level %d", int(e.Rain))
	case !e.Shipping.Valid():
		return fmt.Errorf("invalid shipping level %d", int(e.Shipping))
	}
	return nil
}

func (e Environment) String() string {
	return fmt.Sprintf("%s/rain_%s/%s", e.Sea, e.Rain, e.Shipping)
}

// PSD returns the ambient spectrum level at freqHz in dB re 1 µPa²/Hz, the
// power sum of every active component.
func (e Environment) PSD(freqHz float64) float64 {
	if freqHz <= 0 {
		return math.Inf(-1)
	}
	lf := math.Log10(freqHz)
	power := dsp.DBToPower(seaCurves[clampIndex(int(e.Sea), len(seaCurves))].Predict(lf))
	if e.Rain > RainNone && int(e.Rain) <= len(rainCurves) {
		power += dsp.DBToPower(rainCurves[e.Rain-1].Predict(lf))
	}
	if e.Shipping > ShippingNone && int(e.Shipping) <= len(shippingCurves) {
		power += dsp.DBToPower(shippingCurves[e.Shipping-1].Predict(lf))
	}
	power += dsp.DBToPower(ThermalLevelDB(freqHz))
	return dsp.PowerToDB(power)
}

// ThermalLevelDB is the molecular agitation floor, -15 + 20·log10(f/1 kHz).
func ThermalLevelDB(freqHz float64) float64 {
	return -15 + 20*math.Log10(freqHz/1000)
}

// Sample returns duration·fs samples of ambient noise in µPa. The output
// depends only on the environment, duration, fs and seed.
func (e Environment) Sample(ctx context.Context, duration time.Duration, fs float64, seed int64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if fs <= 0 || duration < 0 {
		return nil, fmt.Errorf("invalid ambient request: %v at %v Hz", duration, fs)
	}
	n := int(math.Round(duration.Seconds() * fs))
	return e.SampleN(n, fs, seed), nil
}

// SampleN returns n samples of ambient noise in µPa.
func (e Environment) SampleN(n int, fs float64, seed int64) []float64 {
	rng := rand.New(rand.NewPCG(uint64(seed), 0xa3b1))
	return dsp.GenerateBroadband(rng, n, fs, e.PSD)
}

func clampIndex(i, n int) int {
	return max(0, min(i, n-1))
}
