package core

import (
	"fmt"
	"sort"
	"time"
)

// State is a kinematic snapshot. Time is measured from the start of the
// owning element's trajectory.
type State struct {
	Time         time.Duration
	Position     Vec2 // m
	Velocity     Vec2 // m/s
	Acceleration Vec2 // m/s²
}

// Speed returns the magnitude of the velocity.
func (s State) Speed() float64 { return s.Velocity.Norm() }

// Element integrates the motion of a ship or sensor. Its trajectory is
// append-only between resets and always starts with the initial state.
type Element struct {
	initial    State
	initialMax float64
	maxSpeedMS float64
	trajectory []State
}

// NewElement starts a trajectory at initial. A positive maxSpeedMS caps the
// integrated speed.
func NewElement(initial State, maxSpeedMS float64) *Element {
	initial.Time = 0
	return &Element{
		initial:    initial,
		initialMax: maxSpeedMS,
		maxSpeedMS: maxSpeedMS,
		trajectory: []State{initial},
	}
}

// Move appends n explicit Euler steps of length step:
//
//	p[i+1] = p[i] + v[i]·dt
//	v[i+1] = v[i] + a[i]·dt
//
// with the acceleration held and the speed capped at the maximum speed.
func (e *Element) Move(step time.Duration, n int) error {
	if step <= 0 {
		return fmt.Errorf("move: non-positive step %v", step)
	}
	if n < 0 {
		return fmt.Errorf("move: negative step count %d", n)
	}
	dt := step.Seconds()
	cur := e.trajectory[len(e.trajectory)-1]
	for i := 0; i < n; i++ {
		next := State{
			Time:         cur.Time + step,
			Position:     cur.Position.Add(cur.Velocity.Scale(dt)),
			Velocity:     cur.Velocity.Add(cur.Acceleration.Scale(dt)),
			Acceleration: cur.Acceleration,
		}
		if e.maxSpeedMS > 0 {
			if s := next.Velocity.Norm(); s > e.maxSpeedMS {
				next.Velocity = next.Velocity.Scale(e.maxSpeedMS / s)
			}
		}
		e.trajectory = append(e.trajectory, next)
		cur = next
	}
	return nil
}

// Reset discards every moved state and restores the construction speed cap.
func (e *Element) Reset() {
	e.maxSpeedMS = e.initialMax
	e.trajectory = []State{e.initial}
}

// Initial returns the construction state.
func (e *Element) Initial() State { return e.initial }

// SetInitial replaces the construction state and discards the trajectory.
func (e *Element) SetInitial(s State) {
	s.Time = 0
	e.initial = s
	e.trajectory = []State{s}
}

// MaxSpeedMS returns the speed cap, zero when uncapped.
func (e *Element) MaxSpeedMS() float64 { return e.maxSpeedMS }

// SetMaxSpeed replaces the speed cap for later steps until Reset. Zero or
// less uncaps.
func (e *Element) SetMaxSpeed(ms float64) { e.maxSpeedMS = max(ms, 0) }

// Current returns the last state of the trajectory.
func (e *Element) Current() State { return e.trajectory[len(e.trajectory)-1] }

// Steps returns the number of integrated steps.
func (e *Element) Steps() int { return len(e.trajectory) - 1 }

// Duration returns the time covered by the trajectory.
func (e *Element) Duration() time.Duration { return e.Current().Time }

// Trajectory returns a copy of the states.
func (e *Element) Trajectory() []State {
	return append([]State(nil), e.trajectory...)
}

// StateAt interpolates position and velocity linearly between the
// snapshots around t. Times outside the trajectory clamp to its ends.
func (e *Element) StateAt(t time.Duration) State {
	traj := e.trajectory
	if t <= 0 || len(traj) == 1 {
		s := traj[0]
		s.Time = max(t, 0)
		return s
	}
	last := traj[len(traj)-1]
	if t >= last.Time {
		return last
	}
	i := sort.Search(len(traj), func(i int) bool { return traj[i].Time > t }) - 1
	a, b := traj[i], traj[i+1]
	frac := float64(t-a.Time) / float64(b.Time-a.Time)
	return State{
		Time:         t,
		Position:     Lerp(a.Position, b.Position, frac),
		Velocity:     Lerp(a.Velocity, b.Velocity, frac),
		Acceleration: a.Acceleration,
	}
}
