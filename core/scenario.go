package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/acoustic-scene-sim/internal/logging"
	"github.com/signalsfoundry/acoustic-scene-sim/propagation"
	"github.com/signalsfoundry/acoustic-scene-sim/timectrl"
)

var (
	ErrDuplicateEntity = errors.New("entity already exists")
	ErrUnknownSonar    = errors.New("sonar not found")
	ErrScenarioStarted = errors.New("scenario already simulated")
)

// StepEvent is published to subscribers after every simulated step.
type StepEvent struct {
	Index     int
	Elapsed   time.Duration
	Positions map[string]Vec2
}

// DistanceSeries is the range from a sonar to one ship over time.
type DistanceSeries struct {
	ShipID  string
	Times   []time.Duration
	RangesM []float64
}

// ScenarioOption customises a Scenario.
type ScenarioOption func(*Scenario)

// WithScenarioLogger sets the logger used for step and run messages.
func WithScenarioLogger(l logging.Logger) ScenarioOption {
	return func(s *Scenario) { s.log = logging.OrNoop(l) }
}

// WithSeed sets the ambient noise seed passed to every recording.
func WithSeed(seed int64) ScenarioOption {
	return func(s *Scenario) { s.seed = seed }
}

// WithStartTime sets the wall-clock epoch of step zero.
func WithStartTime(t time.Time) ScenarioOption {
	return func(s *Scenario) { s.start = t }
}

// Scenario ties ships and sonars to one propagation channel and ambient
// noise field, and moves them together under a time controller.
type Scenario struct {
	mu    sync.RWMutex
	runMu sync.Mutex

	channel *propagation.Channel
	env     NoiseField
	log     logging.Logger
	seed    int64
	start   time.Time
	clock   *timectrl.TimeController

	ships      []*Ship
	sonars     map[string]*Sonar
	sonarOrder []string

	subs    []subscriber
	nextSub uint64
}

type subscriber struct {
	id uint64
	fn func(StepEvent)
}

// NewScenario builds an empty scenario. env may be nil for a noise-free
// scene.
func NewScenario(channel *propagation.Channel, env NoiseField, opts ...ScenarioOption) (*Scenario, error) {
	if channel == nil {
		return nil, fmt.Errorf("scenario: nil channel: %w", propagation.ErrConfiguration)
	}
	s := &Scenario{
		channel: channel,
		env:     env,
		log:     logging.Noop(),
		sonars:  make(map[string]*Sonar),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = timectrl.NewTimeController(s.start, time.Second, timectrl.Accelerated)
	s.clock.AddListener(s.onStep)
	return s, nil
}

// Clock exposes the scenario time controller.
func (s *Scenario) Clock() timectrl.SimClock { return s.clock }

// Channel returns the propagation channel.
func (s *Scenario) Channel() *propagation.Channel { return s.channel }

// AddSonar registers a sonar under id. An empty id keeps sonar.ID.
func (s *Scenario) AddSonar(id string, sonar *Sonar) error {
	if sonar == nil {
		return errors.New("scenario: nil sonar")
	}
	if id == "" {
		id = sonar.ID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clock.Steps() > 0 {
		return ErrScenarioStarted
	}
	if _, exists := s.sonars[id]; exists {
		return fmt.Errorf("sonar %q: %w", id, ErrDuplicateEntity)
	}
	sonar.ID = id
	s.sonars[id] = sonar
	s.sonarOrder = append(s.sonarOrder, id)
	return nil
}

// AddShip registers a ship.
func (s *Scenario) AddShip(ship *Ship) error {
	if ship == nil {
		return errors.New("scenario: nil ship")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clock.Steps() > 0 {
		return ErrScenarioStarted
	}
	for _, existing := range s.ships {
		if existing.ID == ship.ID {
			return fmt.Errorf("ship %q: %w", ship.ID, ErrDuplicateEntity)
		}
	}
	s.ships = append(s.ships, ship)
	return nil
}

// Ships returns the registered ships in insertion order.
func (s *Scenario) Ships() []*Ship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Ship(nil), s.ships...)
}

// Sonar returns the sonar registered under id.
func (s *Scenario) Sonar(id string) (*Sonar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sonar, ok := s.sonars[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSonar, id)
	}
	return sonar, nil
}

// Subscribe registers a callback for step events. It returns an
// unsubscribe function.
func (s *Scenario) Subscribe(fn func(StepEvent)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Simulate advances every ship and sonar n steps of length step.
func (s *Scenario) Simulate(ctx context.Context, step time.Duration, n int) error {
	if step <= 0 {
		return fmt.Errorf("scenario: non-positive step %v", step)
	}
	if n < 0 {
		return fmt.Errorf("scenario: negative step count %d", n)
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx, log := logging.WithRunLogger(ctx, s.log)
	started := time.Now()
	s.clock.Tick = step
	if err := s.clock.Run(ctx, n); err != nil {
		log.Error(ctx, "scenario simulation failed", logging.Err(err))
		return fmt.Errorf("scenario: %w", err)
	}
	log.Info(ctx, "scenario simulated",
		logging.Int("steps", n),
		logging.Duration("step", step),
		logging.Duration("elapsed", s.clock.Elapsed()),
		logging.Duration("wall", time.Since(started)),
	)
	return nil
}

func (s *Scenario) onStep(ctx context.Context, st timectrl.Step) error {
	s.mu.RLock()
	ships := append([]*Ship(nil), s.ships...)
	sonars := make([]*Sonar, 0, len(s.sonarOrder))
	for _, id := range s.sonarOrder {
		sonars = append(sonars, s.sonars[id])
	}
	subs := append([]subscriber(nil), s.subs...)
	s.mu.RUnlock()

	event := StepEvent{
		Index:     st.Index,
		Elapsed:   st.Elapsed,
		Positions: make(map[string]Vec2, len(ships)+len(sonars)),
	}
	for _, ship := range ships {
		if err := ship.Move(st.Tick, 1); err != nil {
			return err
		}
		event.Positions[ship.ID] = ship.Element.Current().Position
	}
	for _, sonar := range sonars {
		if err := sonar.Move(st.Tick, 1); err != nil {
			return err
		}
		event.Positions[sonar.ID] = sonar.Element.Current().Position
	}
	s.log.Debug(ctx, "scenario step",
		logging.Int("index", st.Index),
		logging.Duration("elapsed", st.Elapsed),
	)

	for _, sub := range subs {
		sub.fn(event)
	}
	return nil
}

// SonarData records the simulated interval on sonar id at fs.
func (s *Scenario) SonarData(ctx context.Context, id string, fs float64, opts ...DataOption) (*Recording, error) {
	sonar, err := s.Sonar(id)
	if err != nil {
		return nil, err
	}
	ships := s.Ships()
	sources := make([]NoiseContainer, len(ships))
	for i, ship := range ships {
		sources[i] = ship
	}
	compiler, err := NewNoiseCompiler(sources, fs)
	if err != nil {
		return nil, err
	}
	opts = append([]DataOption{WithNoiseSeed(s.seed)}, opts...)
	return sonar.GetData(ctx, compiler, s.channel, s.env, opts...)
}

// RelativeDistances returns, per ship, the range to sonar id at every
// trajectory snapshot.
func (s *Scenario) RelativeDistances(id string) ([]DistanceSeries, error) {
	sonar, err := s.Sonar(id)
	if err != nil {
		return nil, err
	}
	ships := s.Ships()
	out := make([]DistanceSeries, 0, len(ships))
	for _, ship := range ships {
		traj := ship.Element.Trajectory()
		series := DistanceSeries{
			ShipID:  ship.ID,
			Times:   make([]time.Duration, len(traj)),
			RangesM: make([]float64, len(traj)),
		}
		for i, st := range traj {
			series.Times[i] = st.Time
			series.RangesM[i] = st.Position.DistanceTo(sonar.Element.StateAt(st.Time).Position)
		}
		out = append(out, series)
	}
	return out, nil
}

// Reset rewinds every entity and the clock.
func (s *Scenario) Reset() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.mu.RLock()
	for _, ship := range s.ships {
		ship.Reset()
	}
	for _, sonar := range s.sonars {
		sonar.Reset()
	}
	s.mu.RUnlock()
	s.clock.Reset()
}
