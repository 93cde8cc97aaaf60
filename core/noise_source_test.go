package core

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/acoustic-scene-sim/dsp"
	"github.com/signalsfoundry/acoustic-scene-sim/model"
)

func testPropulsion(t testing.TB) *CavitationNoise {
	t.Helper()
	c, err := NewCavitationNoise(PropulsionParams{
		ShipType:         model.ShipTanker,
		NBlades:          4,
		NShafts:          1,
		LengthM:          200,
		CruiseSpeedMS:    Knots(14),
		CruiseRotationHz: 1.5,
		DraftM:           5,
		Seed:             42,
	})
	if err != nil {
		t.Fatalf("NewCavitationNoise: %v", err)
	}
	return c
}

// cruising returns an element at constant speed for n one-second steps.
func cruising(speed float64, n int) *Element {
	el := NewElement(State{Velocity: Vec2{X: speed}}, 0)
	_ = el.Move(time.Second, n)
	return el
}

func TestShipParametersDeterministic(t *testing.T) {
	for _, st := range model.ShipTypes() {
		a, err := ShipParameters(st, 7)
		if err != nil {
			t.Fatalf("ShipParameters(%v): %v", st, err)
		}
		b, _ := ShipParameters(st, 7)
		if a != b {
			t.Fatalf("ShipParameters(%v, 7) not deterministic: %+v vs %+v", st, a, b)
		}
		if err := a.Validate(); err != nil {
			t.Fatalf("ShipParameters(%v) invalid: %v", st, err)
		}
		if a.MaxSpeedMS <= a.CruiseSpeedMS {
			t.Fatalf("%v max speed %v not above cruise %v", st, a.MaxSpeedMS, a.CruiseSpeedMS)
		}
	}

	a, _ := ShipParameters(model.ShipBulker, 1)
	b, _ := ShipParameters(model.ShipBulker, 2)
	if a.LengthM == b.LengthM && a.CruiseSpeedMS == b.CruiseSpeedMS {
		t.Fatalf("different seeds drew identical parameters")
	}
	if _, err := ShipParameters(model.ShipType(99), 1); err == nil {
		t.Fatalf("expected error for invalid ship type")
	}
}

func TestSpeedLevelDB(t *testing.T) {
	cases := []struct {
		r, want float64
	}{
		{1, 0},
		{2, 60 * math.Log10(2)},
		{0.5, 60 * math.Log10(0.5)},
		{0.25, 60*math.Log10(0.5) + 20*math.Log10(0.5)},
		{0, -120},
		{-1, -120},
	}
	for _, tc := range cases {
		if got := SpeedLevelDB(tc.r); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("SpeedLevelDB(%v) = %v, want %v", tc.r, got, tc.want)
		}
	}
	below, above := SpeedLevelDB(CavitationOnset-1e-9), SpeedLevelDB(CavitationOnset+1e-9)
	if math.Abs(below-above) > 1e-6 {
		t.Fatalf("curve discontinuous at onset: %v vs %v", below, above)
	}
}

func TestPSDShape(t *testing.T) {
	c := testPropulsion(t)
	v := c.Params().CruiseSpeedMS

	if peak := c.PSD(ReferenceCornerHz, v); peak <= c.PSD(50, v) || peak <= c.PSD(4000, v) {
		t.Fatalf("PSD not peaked at the corner frequency")
	}
	if c.PSD(1000, 2*v) <= c.PSD(1000, v) {
		t.Fatalf("faster ship not louder")
	}
	if !math.IsInf(c.PSD(0, v), -1) {
		t.Fatalf("PSD(0) should be silent")
	}
	// Above cruise the corner moves down and the peak grows by the
	// 60 log law plus the corner shift.
	want := SpeedLevelDB(2) + 20*math.Log10(2)
	if got := c.PSD(ReferenceCornerHz/2, 2*v) - c.PSD(ReferenceCornerHz, v); math.Abs(got-want) > 1e-9 {
		t.Fatalf("peak gain at 2x cruise = %v, want %v", got, want)
	}
}

func TestBroadbandMatchesDeclaredPeak(t *testing.T) {
	if testing.Short() {
		t.Skip("long synthesis")
	}
	c := testPropulsion(t)
	const fs = 16000.0
	for _, factor := range []float64{1, 1.2} {
		speed := factor * c.Params().CruiseSpeedMS
		x, speeds, err := c.GenerateBroadbandNoise(cruising(speed, 15), fs)
		if err != nil {
			t.Fatalf("GenerateBroadbandNoise: %v", err)
		}
		if len(x) != 15*int(fs) || len(speeds) != len(x) {
			t.Fatalf("len = %d/%d, want %d", len(x), len(speeds), 15*int(fs))
		}
		_, psd, err := dsp.Welch(x, fs, 2048, 0.5)
		if err != nil {
			t.Fatalf("Welch: %v", err)
		}
		measured := math.Inf(-1)
		for _, p := range psd[1:] {
			measured = math.Max(measured, p)
		}
		if declared := c.PeakLevelDB(speed, fs); math.Abs(measured-declared) > 2 {
			t.Fatalf("speed %.2f m/s: measured peak %.2f dB, declared %.2f dB", speed, measured, declared)
		}
	}
}

func TestGenerateNoiseDeterministic(t *testing.T) {
	c := testPropulsion(t)
	el := cruising(c.Params().CruiseSpeedMS, 2)

	a, err := c.GenerateNoise(context.Background(), el, 8000)
	if err != nil {
		t.Fatalf("GenerateNoise: %v", err)
	}
	b, _ := c.GenerateNoise(context.Background(), el, 8000)
	if len(a) != 16000 {
		t.Fatalf("len = %d, want 16000", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs between identical calls", i)
		}
	}

	other := testPropulsion(t)
	other.params.Seed = 43
	c2, _ := other.GenerateNoise(context.Background(), el, 8000)
	if c2[100] == a[100] && c2[200] == a[200] {
		t.Fatalf("different seeds produced identical noise")
	}
}

func TestGenerateNoiseAddsBladeTonal(t *testing.T) {
	c := testPropulsion(t)
	v := c.Params().CruiseSpeedMS
	const fs = 4000.0
	x, err := c.GenerateNoise(context.Background(), cruising(v, 20), fs)
	if err != nil {
		t.Fatalf("GenerateNoise: %v", err)
	}
	freqs, psd, err := dsp.Welch(x, fs, 4096, 0.5)
	if err != nil {
		t.Fatalf("Welch: %v", err)
	}
	rate := c.Params().BladeRateHz(v)
	k := int(math.Round(rate / (freqs[1] - freqs[0])))
	// The neighbour bin lies above the last harmonic.
	if psd[k] < psd[k+40]+3 {
		t.Fatalf("no blade tonal at %.2f Hz: %.1f dB vs neighbour %.1f dB", rate, psd[k], psd[k+40])
	}
}

func TestModulateNoise(t *testing.T) {
	c := testPropulsion(t)
	ones := make([]float64, 1000)
	speeds := make([]float64, 1000)
	for i := range ones {
		ones[i] = 1
		speeds[i] = c.Params().CruiseSpeedMS
	}
	out, _, err := c.ModulateNoise(ones, speeds, 1000)
	if err != nil {
		t.Fatalf("ModulateNoise: %v", err)
	}
	want := 1 + ModulationIndex*(1+1.0/2+1.0/3)
	if math.Abs(out[0]-want) > 1e-12 {
		t.Fatalf("m(0) = %v, want %v", out[0], want)
	}
	for i, v := range out {
		if v <= 0 {
			t.Fatalf("modulation went non-positive at %d: %v", i, v)
		}
	}
	if _, _, err := c.ModulateNoise(ones, speeds[:10], 1000); err == nil {
		t.Fatalf("expected error for mismatched speeds")
	}
}

func TestSettersAndReset(t *testing.T) {
	c := testPropulsion(t)
	orig := c.Params()

	if err := c.SetBlades(0); err == nil {
		t.Fatalf("expected error for zero blades")
	}
	if err := c.SetBlades(6); err != nil {
		t.Fatalf("SetBlades: %v", err)
	}
	if err := c.SetShafts(2); err != nil {
		t.Fatalf("SetShafts: %v", err)
	}
	if err := c.SetCruiseSpeed(2 * orig.CruiseSpeedMS); err != nil {
		t.Fatalf("SetCruiseSpeed: %v", err)
	}
	if err := c.SetCruiseRotation(3); err != nil {
		t.Fatalf("SetCruiseRotation: %v", err)
	}
	p := c.Params()
	if p.NBlades != 6 || p.NShafts != 2 || p.CruiseRotationHz != 3 {
		t.Fatalf("setters not applied: %+v", p)
	}
	if math.Abs(p.MaxSpeedMS-2*orig.MaxSpeedMS) > 1e-12 {
		t.Fatalf("max speed = %v, want %v", p.MaxSpeedMS, 2*orig.MaxSpeedMS)
	}

	c.Reset()
	if c.Params() != orig {
		t.Fatalf("Reset = %+v, want %+v", c.Params(), orig)
	}
}

func TestGenerateRejectsEmptyTrajectory(t *testing.T) {
	c := testPropulsion(t)
	_, err := c.GenerateNoise(context.Background(), NewElement(State{}, 0), 8000)
	if !errors.Is(err, ErrEmptyTrajectory) {
		t.Fatalf("err = %v, want ErrEmptyTrajectory", err)
	}
}
