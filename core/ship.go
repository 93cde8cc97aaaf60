package core

import (
	"context"
	"fmt"
	"time"

	"github.com/brunoga/deep"
	"github.com/google/uuid"

	"github.com/signalsfoundry/acoustic-scene-sim/model"
)

// NoiseContainer is anything the compiler can turn into a source signal.
type NoiseContainer interface {
	SourceID() string
	// SourceDepthM is the depth the signal radiates from.
	SourceDepthM() float64
	Kinematics() *Element
	GenerateNoise(ctx context.Context, fs float64) ([]float64, error)
}

// Ship is a moving vessel radiating propeller noise from its draft depth.
type Ship struct {
	ID         string
	Element    *Element
	Propulsion *CavitationNoise
	DraftM     float64
}

// NewShip assembles a ship. An empty id is replaced with a random UUID.
func NewShip(id string, el *Element, propulsion *CavitationNoise) (*Ship, error) {
	if el == nil {
		return nil, fmt.Errorf("ship %q: nil element", id)
	}
	if propulsion == nil {
		return nil, fmt.Errorf("ship %q: nil propulsion", id)
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &Ship{
		ID:         id,
		Element:    el,
		Propulsion: propulsion,
		DraftM:     propulsion.Params().DraftM,
	}, nil
}

// ShipByType builds a ship of class t with drawn propulsion parameters,
// starting at start and sailing at cruise speed along heading (radians,
// counter-clockwise from east).
func ShipByType(t model.ShipType, seed int64, start Vec2, heading float64) (*Ship, error) {
	params, err := ShipParameters(t, seed)
	if err != nil {
		return nil, err
	}
	propulsion, err := NewCavitationNoise(params)
	if err != nil {
		return nil, err
	}
	el := NewElement(State{
		Position: start,
		Velocity: FromPolar(params.CruiseSpeedMS, heading),
	}, params.MaxSpeedMS)
	return NewShip("", el, propulsion)
}

// SourceID implements NoiseContainer.
func (s *Ship) SourceID() string { return s.ID }

// SourceDepthM implements NoiseContainer.
func (s *Ship) SourceDepthM() float64 { return s.DraftM }

// Kinematics implements NoiseContainer.
func (s *Ship) Kinematics() *Element { return s.Element }

// GenerateNoise implements NoiseContainer.
func (s *Ship) GenerateNoise(ctx context.Context, fs float64) ([]float64, error) {
	return s.Propulsion.GenerateNoise(ctx, s.Element, fs)
}

// Move advances the ship n steps.
func (s *Ship) Move(step time.Duration, n int) error {
	if err := s.Element.Move(step, n); err != nil {
		return fmt.Errorf("ship %s: %w", s.ID, err)
	}
	return nil
}

// SetCruiseSpeed changes the propulsion cruise speed and rescales the
// motion speed cap by the same factor. An uncapped element stays uncapped.
func (s *Ship) SetCruiseSpeed(ms float64) error {
	old := s.Propulsion.Params().CruiseSpeedMS
	if err := s.Propulsion.SetCruiseSpeed(ms); err != nil {
		return fmt.Errorf("ship %s: %w", s.ID, err)
	}
	s.Element.SetMaxSpeed(s.Element.MaxSpeedMS() * (ms / old))
	return nil
}

// Reset rewinds the trajectory and restores the propulsion parameters and
// speed cap.
func (s *Ship) Reset() {
	s.Element.Reset()
	s.Propulsion.Reset()
}

// Clone returns an independent deep copy, for parameter sweeps.
func (s *Ship) Clone() *Ship {
	return deep.MustCopy(s)
}
