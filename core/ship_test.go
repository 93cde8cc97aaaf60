package core

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/acoustic-scene-sim/model"
)

func TestShipByType(t *testing.T) {
	ship, err := ShipByType(model.ShipFishing, 3, Vec2{X: 100}, math.Pi/2)
	if err != nil {
		t.Fatalf("ShipByType: %v", err)
	}
	if _, err := uuid.Parse(ship.ID); err != nil {
		t.Fatalf("ID %q is not a UUID: %v", ship.ID, err)
	}
	params := ship.Propulsion.Params()
	if ship.DraftM != params.DraftM || ship.SourceDepthM() != params.DraftM {
		t.Fatalf("draft = %v, want %v", ship.DraftM, params.DraftM)
	}
	v := ship.Element.Initial().Velocity
	if math.Abs(v.Norm()-params.CruiseSpeedMS) > 1e-12 || math.Abs(v.X) > 1e-12 {
		t.Fatalf("initial velocity = %+v, want cruise speed northwards", v)
	}
	if ship.Element.MaxSpeedMS() != params.MaxSpeedMS {
		t.Fatalf("element speed cap = %v, want %v", ship.Element.MaxSpeedMS(), params.MaxSpeedMS)
	}
}

func TestShipResetRestoresState(t *testing.T) {
	ship, err := ShipByType(model.ShipTug, 1, Vec2{}, 0)
	if err != nil {
		t.Fatalf("ShipByType: %v", err)
	}
	orig := ship.Propulsion.Params()
	if err := ship.Move(time.Second, 5); err != nil {
		t.Fatalf("Move: %v", err)
	}
	_ = ship.Propulsion.SetBlades(orig.NBlades + 1)

	ship.Reset()
	if ship.Element.Steps() != 0 || ship.Propulsion.Params() != orig {
		t.Fatalf("Reset left steps=%d params=%+v", ship.Element.Steps(), ship.Propulsion.Params())
	}
	if err := ship.Move(0, 1); err == nil {
		t.Fatalf("expected error for zero step")
	}
}

func TestShipCruiseSpeedMovesSpeedCap(t *testing.T) {
	ship, err := ShipByType(model.ShipFishing, 5, Vec2{}, 0)
	if err != nil {
		t.Fatalf("ShipByType: %v", err)
	}
	orig := ship.Propulsion.Params()
	if err := ship.SetCruiseSpeed(2 * orig.CruiseSpeedMS); err != nil {
		t.Fatalf("SetCruiseSpeed: %v", err)
	}
	want := ship.Propulsion.Params().MaxSpeedMS
	if got := ship.Element.MaxSpeedMS(); math.Abs(got-2*orig.MaxSpeedMS) > 1e-12 || got != want {
		t.Fatalf("element speed cap = %v, want %v", got, want)
	}

	// Accelerating past the old cap now stops at the new one.
	ship.Element.SetInitial(State{Velocity: Vec2{X: orig.CruiseSpeedMS}, Acceleration: Vec2{X: 10}})
	if got := ship.Element.MaxSpeedMS(); got != want {
		t.Fatalf("speed cap after SetInitial = %v, want %v", got, want)
	}
	if err := ship.Move(time.Second, 5); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if got := ship.Element.Current().Velocity.Norm(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("speed after acceleration = %v, want %v", got, want)
	}

	if err := ship.SetCruiseSpeed(0); err == nil {
		t.Fatalf("expected error for zero cruise speed")
	}
	ship.Reset()
	if got := ship.Element.MaxSpeedMS(); got != orig.MaxSpeedMS {
		t.Fatalf("speed cap after Reset = %v, want %v", got, orig.MaxSpeedMS)
	}

	uncapped, err := NewShip("free", NewElement(State{}, 0), ship.Propulsion)
	if err != nil {
		t.Fatalf("NewShip: %v", err)
	}
	if err := uncapped.SetCruiseSpeed(3); err != nil {
		t.Fatalf("SetCruiseSpeed: %v", err)
	}
	if got := uncapped.Element.MaxSpeedMS(); got != 0 {
		t.Fatalf("uncapped speed cap = %v, want 0", got)
	}
}

func TestShipCloneIsIndependent(t *testing.T) {
	ship, err := ShipByType(model.ShipContainer, 9, Vec2{}, 0)
	if err != nil {
		t.Fatalf("ShipByType: %v", err)
	}
	_ = ship.Move(time.Second, 2)

	clone := ship.Clone()
	if clone.ID != ship.ID || clone.Element.Steps() != 2 {
		t.Fatalf("clone = %q with %d steps, want copy of %q with 2", clone.ID, clone.Element.Steps(), ship.ID)
	}
	_ = clone.Move(time.Second, 3)
	_ = clone.Propulsion.SetCruiseRotation(9)
	if ship.Element.Steps() != 2 || ship.Propulsion.Params().CruiseRotationHz == 9 {
		t.Fatalf("clone shares state with original")
	}

	// A clone renders the same noise as its source.
	a, err := ship.GenerateNoise(context.Background(), 2000)
	if err != nil {
		t.Fatalf("GenerateNoise: %v", err)
	}
	clone.Reset()
	_ = clone.Move(time.Second, 2)
	b, _ := clone.GenerateNoise(context.Background(), 2000)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs between ship and clone", i)
		}
	}
}

func TestNewShipRequiresParts(t *testing.T) {
	if _, err := NewShip("x", nil, nil); err == nil {
		t.Fatalf("expected error for nil element")
	}
	c, _ := NewCavitationNoise(PropulsionParams{
		ShipType: model.ShipOther, NBlades: 3, NShafts: 1, LengthM: 40,
		CruiseSpeedMS: 5, CruiseRotationHz: 4,
	})
	ship, err := NewShip("named", NewElement(State{}, 0), c)
	if err != nil || ship.ID != "named" {
		t.Fatalf("NewShip = %v, %v", ship, err)
	}
}
