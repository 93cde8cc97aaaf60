package propagation

import (
	"context"
	"fmt"
	"strings"

	"github.com/signalsfoundry/acoustic-scene-sim/model"
)

// Predefined names a ready-made channel configuration.
type Predefined int

const (
	// Basic is a 150 m isovelocity column over chalk, sampled at 16 kHz out
	// to 1 km with sources between 5 m and 100 m.
	Basic Predefined = iota
	// Harbour is a 30 m isovelocity column over sand out to 200 m with
	// sources every 3 m between 3 m and 18 m.
	Harbour
)

func (p Predefined) String() string {
	switch p {
	case Basic:
		return "basic"
	case Harbour:
		return "harbour"
	default:
		return fmt.Sprintf("predefined(%d)", int(p))
	}
}

// ParsePredefined resolves a name produced by Predefined.String.
func ParsePredefined(name string) (Predefined, error) {
	for _, p := range []Predefined{Basic, Harbour} {
		if strings.EqualFold(strings.TrimSpace(name), p.String()) {
			return p, nil
		}
	}
	return 0, configErrorf("unknown predefined channel %q", name)
}

// Setup returns the description and grid parameters of p.
func (p Predefined) Setup() (*Description, Params, error) {
	switch p {
	case Basic:
		desc, err := NewIsovelocity(1500, 150, model.BottomChalk)
		if err != nil {
			return nil, Params{}, err
		}
		return desc, Params{
			SensorDepthM:   40,
			SourceDepthsM:  []float64{5, 10, 20, 50, 100},
			MaxDistanceM:   1000,
			DistancePoints: 128,
			SampleRateHz:   16000,
		}, nil
	case Harbour:
		return ShallowWater(30, model.BottomSand)
	default:
		return nil, Params{}, configErrorf("unknown predefined channel %d", int(p))
	}
}

// Build constructs the channel for p.
func (p Predefined) Build(ctx context.Context, opts ...Option) (*Channel, error) {
	desc, params, err := p.Setup()
	if err != nil {
		return nil, err
	}
	return NewChannel(ctx, desc, params, opts...)
}

// ShallowWater describes a shallow isovelocity column of the given depth
// over bottom, with the sensor 5 m above the seabed and sources every 3 m
// from 3 m to 18 m, out to 200 m.
func ShallowWater(depthM float64, bottom model.BottomType) (*Description, Params, error) {
	if depthM <= 20 {
		return nil, Params{}, configErrorf("shallow water column of %v m leaves no room for 18 m sources", depthM)
	}
	desc := NewDescription()
	if err := desc.Add(0, model.Water{SpeedMS: 1500}); err != nil {
		return nil, Params{}, err
	}
	if err := desc.Add(depthM-1, model.Water{SpeedMS: 1500}); err != nil {
		return nil, Params{}, err
	}
	if err := desc.Add(depthM, model.NewSeabed(bottom)); err != nil {
		return nil, Params{}, err
	}
	depths := make([]float64, 0, 6)
	for z := 3.0; z <= 18; z += 3 {
		depths = append(depths, z)
	}
	return desc, Params{
		SensorDepthM:   depthM - 5,
		SourceDepthsM:  depths,
		MaxDistanceM:   200,
		DistancePoints: 41,
		SampleRateHz:   16000,
	}, nil
}
