package core

import (
	"context"
	"fmt"
	"math"
)

// AlignPolicy decides how sources of different durations share a timeline.
type AlignPolicy int

const (
	// PadToLongest zero-pads shorter sources to the longest one.
	PadToLongest AlignPolicy = iota
	// TruncateToShortest cuts every source to the shortest one.
	TruncateToShortest
)

func (p AlignPolicy) String() string {
	switch p {
	case PadToLongest:
		return "pad_to_longest"
	case TruncateToShortest:
		return "truncate_to_shortest"
	default:
		return fmt.Sprintf("align(%d)", int(p))
	}
}

// CompiledSource is one source's signal on the common timeline.
type CompiledSource struct {
	ID      string
	DepthM  float64
	Signal  []float64 // µPa at 1 m
	Element *Element
}

// CompilerOption customises a NoiseCompiler.
type CompilerOption func(*NoiseCompiler)

// WithAlignPolicy selects how source durations are reconciled.
func WithAlignPolicy(p AlignPolicy) CompilerOption {
	return func(c *NoiseCompiler) { c.policy = p }
}

// NoiseCompiler renders every source at one sample rate and aligns them.
type NoiseCompiler struct {
	sources []NoiseContainer
	fs      float64
	policy  AlignPolicy
}

// NewNoiseCompiler validates the sources and sample rate.
func NewNoiseCompiler(sources []NoiseContainer, fs float64, opts ...CompilerOption) (*NoiseCompiler, error) {
	if fs <= 0 || math.IsNaN(fs) {
		return nil, fmt.Errorf("compiler: non-positive sample rate %v", fs)
	}
	c := &NoiseCompiler{
		sources: append([]NoiseContainer(nil), sources...),
		fs:      fs,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy != PadToLongest && c.policy != TruncateToShortest {
		return nil, fmt.Errorf("compiler: unknown policy %v", c.policy)
	}
	for i, s := range c.sources {
		if s == nil {
			return nil, fmt.Errorf("compiler: source %d is nil", i)
		}
	}
	return c, nil
}

// SampleRateHz returns the rendering rate.
func (c *NoiseCompiler) SampleRateHz() float64 { return c.fs }

// Sources returns the compiled sources in insertion order.
func (c *NoiseCompiler) Sources() []NoiseContainer {
	return append([]NoiseContainer(nil), c.sources...)
}

// Len reports the common length in samples.
func (c *NoiseCompiler) Len() int {
	n := -1
	for _, s := range c.sources {
		m := int(math.Round(s.Kinematics().Duration().Seconds() * c.fs))
		switch {
		case n < 0:
			n = m
		case c.policy == PadToLongest:
			n = max(n, m)
		default:
			n = min(n, m)
		}
	}
	return max(n, 0)
}

// Compile renders every source and aligns it to Len samples. Sources
// without trajectory steps contribute silence.
func (c *NoiseCompiler) Compile(ctx context.Context) ([]CompiledSource, error) {
	n := c.Len()
	out := make([]CompiledSource, 0, len(c.sources))
	for _, s := range c.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		aligned := make([]float64, n)
		// A source that has not moved yet is silent and padded like any
		// other short source.
		if el := s.Kinematics(); el != nil && el.Steps() > 0 {
			sig, err := s.GenerateNoise(ctx, c.fs)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", s.SourceID(), err)
			}
			copy(aligned, sig)
		}
		out = append(out, CompiledSource{
			ID:      s.SourceID(),
			DepthM:  s.SourceDepthM(),
			Signal:  aligned,
			Element: s.Kinematics(),
		})
	}
	return out, nil
}
