package propagation

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Band is a frequency interval of interest. The zero Band means the whole
// band up to the Nyquist frequency.
type Band struct {
	MinHz float64
	MaxHz float64
}

// Full reports whether b covers [0, fs/2].
func (b Band) Full(fs float64) bool {
	return b.MinHz <= 0 && (b.MaxHz <= 0 || b.MaxHz >= fs/2)
}

// Resolve returns b with a zero MaxHz replaced by fs/2.
func (b Band) Resolve(fs float64) Band {
	if b.MaxHz <= 0 {
		b.MaxHz = fs / 2
	}
	return b
}

// Request is a single source-to-sensor solve over a stratified column.
type Request struct {
	Description  *Description
	SensorDepthM float64
	SourceDepthM float64
	RangeM       float64
	SampleRateHz float64
	Band         Band
	// Length is the number of impulse response samples wanted.
	Length int
}

// Response is an impulse response sampled at SampleRateHz.
type Response struct {
	SampleRateHz float64
	Samples      []float64
	// Delay is the index of the first significant arrival, less a small
	// guard. It is filled in by the channel.
	Delay int
}

// Clone returns a deep copy.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	out.Samples = append([]float64(nil), r.Samples...)
	return &out
}

// Solver computes propagation responses. Implementations must be safe for
// concurrent use since grid cells are solved in parallel.
type Solver interface {
	Name() string
	Solve(ctx context.Context, req Request) (*Response, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, req Request) (*Response, error)

func (f SolverFunc) Name() string { return "func" }

func (f SolverFunc) Solve(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Registry maps model names to solvers.
type Registry struct {
	mu      sync.RWMutex
	solvers map[string]Solver
}

// NewRegistry returns a registry holding the given solvers.
func NewRegistry(solvers ...Solver) *Registry {
	r := &Registry{solvers: make(map[string]Solver)}
	for _, s := range solvers {
		r.Register(s)
	}
	return r
}

// DefaultRegistry returns a fresh registry with the built-in image solver.
func DefaultRegistry() *Registry {
	return NewRegistry(NewImageSolver())
}

// Register adds or replaces s under s.Name().
func (r *Registry) Register(s Solver) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.solvers[s.Name()] = s
}

// Lookup returns the solver registered as name.
func (r *Registry) Lookup(name string) (Solver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.solvers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown propagation model %q", ErrConfiguration, name)
	}
	return s, nil
}

// Names lists registered models in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.solvers))
	for name := range r.solvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
