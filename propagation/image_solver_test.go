package propagation

import (
	"context"
	"math"
	"testing"

	"github.com/signalsfoundry/acoustic-scene-sim/model"
)

func TestImageSolverFreeSurfaceArrivals(t *testing.T) {
	desc := NewDescription()
	mustAdd(t, desc, 0, model.Water{SpeedMS: 1500})

	resp, err := NewImageSolver().Solve(context.Background(), Request{
		Description:  desc,
		SensorDepthM: 10,
		SourceDepthM: 10,
		RangeM:       100,
		SampleRateHz: 16000,
		Length:       2048,
	})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	// Direct path: 100 m at 1500 m/s lands 2/3 of the way from 1066 to 1067.
	h := resp.Samples
	if got := h[1066] + h[1067]; math.Abs(got-0.01) > 1e-12 {
		t.Fatalf("direct arrival amplitude = %g, want 0.01", got)
	}
	if math.Abs(h[1067]-2*h[1066]) > 1e-12 {
		t.Fatalf("direct arrival split = (%g, %g), want 1:2", h[1066], h[1067])
	}

	surface := math.Hypot(100, 20)
	pos := surface / 1500 * 16000
	i := int(pos)
	if got := h[i] + h[i+1]; math.Abs(got+1/surface) > 1e-12 {
		t.Fatalf("surface arrival amplitude = %g, want %g", got, -1/surface)
	}

	var rest float64
	for k, v := range h {
		if k != 1066 && k != 1067 && k != i && k != i+1 {
			rest += math.Abs(v)
		}
	}
	if rest != 0 {
		t.Fatalf("free-surface column produced extra arrivals (sum %g)", rest)
	}
}

func TestImageSolverBottomAddsLaterArrivals(t *testing.T) {
	open := NewDescription()
	mustAdd(t, open, 0, model.Water{SpeedMS: 1500})
	bounded, err := NewIsovelocity(1500, 50, model.BottomBasalt)
	if err != nil {
		t.Fatalf("NewIsovelocity: %v", err)
	}

	req := Request{SensorDepthM: 40, SourceDepthM: 10, RangeM: 150, SampleRateHz: 8000, Length: 4096}
	solver := NewImageSolver()

	req.Description = open
	free, err := solver.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("Solve open: %v", err)
	}
	req.Description = bounded
	withBottom, err := solver.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("Solve bounded: %v", err)
	}

	if energy(withBottom.Samples) <= energy(free.Samples) {
		t.Fatalf("bottom reflections did not add energy: %g <= %g", energy(withBottom.Samples), energy(free.Samples))
	}
	if firstArrival(withBottom.Samples) != firstArrival(free.Samples) {
		t.Fatalf("first arrival moved when adding a bottom")
	}
}

func TestImageSolverBandLimits(t *testing.T) {
	desc := testDescription(t)
	req := Request{
		Description:  desc,
		SensorDepthM: 40,
		SourceDepthM: 10,
		RangeM:       100,
		SampleRateHz: 16000,
		Length:       4096,
	}
	full, err := NewImageSolver().Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	req.Band = Band{MinHz: 1000, MaxHz: 2000}
	narrow, err := NewImageSolver().Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("Solve band: %v", err)
	}
	if energy(narrow.Samples) >= energy(full.Samples) {
		t.Fatalf("band limiting did not remove energy")
	}
}

func TestBottomReflection(t *testing.T) {
	basalt := model.BottomBasalt.Properties()
	n := 1 / basalt.SpeedRatio
	want := (basalt.DensityRatio - n) / (basalt.DensityRatio + n)
	if got := bottomReflection(basalt, math.Pi/2); math.Abs(got-want) > 1e-12 {
		t.Fatalf("normal incidence R = %v, want %v", got, want)
	}

	sand := model.BottomSand.Properties()
	got := bottomReflection(sand, 0.01)
	want = math.Pow(10, -sand.AttenuationDB*math.Sin(0.01)/20)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("subcritical R = %v, want %v", got, want)
	}
}
