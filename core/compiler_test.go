package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/acoustic-scene-sim/model"
)

func TestNoiseCompilerAlignment(t *testing.T) {
	long := newClick("long", Vec2{}, 3*time.Second, 1)
	short := newClick("short", Vec2{}, 2*time.Second, 2)
	sources := []NoiseContainer{long, short}

	tests := []struct {
		name   string
		policy AlignPolicy
		want   int
	}{
		{"pad", PadToLongest, 300},
		{"truncate", TruncateToShortest, 200},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewNoiseCompiler(sources, 100, WithAlignPolicy(tc.policy))
			if err != nil {
				t.Fatalf("NewNoiseCompiler: %v", err)
			}
			if c.Len() != tc.want {
				t.Fatalf("Len() = %d, want %d", c.Len(), tc.want)
			}
			out, err := c.Compile(context.Background())
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			if len(out) != 2 || out[0].ID != "long" || out[1].ID != "short" {
				t.Fatalf("compiled sources = %+v", out)
			}
			for _, src := range out {
				if len(src.Signal) != tc.want {
					t.Fatalf("%s has %d samples, want %d", src.ID, len(src.Signal), tc.want)
				}
				if src.DepthM != 5 || src.Element == nil {
					t.Fatalf("%s lost its depth or kinematics", src.ID)
				}
			}
			if out[1].Signal[0] != 2 || out[1].Signal[tc.want-1] != 0 {
				t.Fatalf("short source not aligned: first=%v last=%v", out[1].Signal[0], out[1].Signal[tc.want-1])
			}
		})
	}
}

func TestNoiseCompilerPadsUnmovedSource(t *testing.T) {
	fishing, err := ShipByType(model.ShipFishing, 1, Vec2{X: 100}, 0)
	if err != nil {
		t.Fatalf("ShipByType: %v", err)
	}
	if err := fishing.Move(time.Second, 2); err != nil {
		t.Fatalf("Move: %v", err)
	}
	tug, err := ShipByType(model.ShipTug, 2, Vec2{X: -100}, 0)
	if err != nil {
		t.Fatalf("ShipByType: %v", err)
	}

	c, err := NewNoiseCompiler([]NoiseContainer{fishing, tug}, 1000)
	if err != nil {
		t.Fatalf("NewNoiseCompiler: %v", err)
	}
	if c.Len() != 2000 {
		t.Fatalf("Len() = %d, want 2000", c.Len())
	}
	out, err := c.Compile(context.Background())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(out[1].Signal) != 2000 {
		t.Fatalf("unmoved source has %d samples, want 2000", len(out[1].Signal))
	}
	for i, v := range out[1].Signal {
		if v != 0 {
			t.Fatalf("unmoved source sample %d = %v, want 0", i, v)
		}
	}
	var energy float64
	for _, v := range out[0].Signal {
		energy += v * v
	}
	if energy == 0 {
		t.Fatalf("moving source rendered silence")
	}

	trunc, err := NewNoiseCompiler([]NoiseContainer{fishing, tug}, 1000, WithAlignPolicy(TruncateToShortest))
	if err != nil {
		t.Fatalf("NewNoiseCompiler: %v", err)
	}
	out, err = trunc.Compile(context.Background())
	if err != nil {
		t.Fatalf("Compile(truncate): %v", err)
	}
	if len(out[0].Signal) != 0 || len(out[1].Signal) != 0 {
		t.Fatalf("truncated lengths = %d, %d, want 0", len(out[0].Signal), len(out[1].Signal))
	}
}

func TestNoiseCompilerErrors(t *testing.T) {
	if _, err := NewNoiseCompiler(nil, 0); err == nil {
		t.Fatalf("expected error for zero sample rate")
	}
	if _, err := NewNoiseCompiler(nil, 100, WithAlignPolicy(AlignPolicy(9))); err == nil {
		t.Fatalf("expected error for unknown policy")
	}

	boom := errors.New("boom")
	bad := newClick("bad-source", Vec2{}, time.Second, 1)
	bad.err = boom
	c, err := NewNoiseCompiler([]NoiseContainer{bad}, 100)
	if err != nil {
		t.Fatalf("NewNoiseCompiler: %v", err)
	}
	_, err = c.Compile(context.Background())
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "bad-source") {
		t.Fatalf("Compile error = %v, want wrapped boom naming bad-source", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Compile(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Compile error = %v, want context.Canceled", err)
	}
}

func TestNoiseCompilerEmpty(t *testing.T) {
	c, err := NewNoiseCompiler(nil, 100)
	if err != nil {
		t.Fatalf("NewNoiseCompiler: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
	out, err := c.Compile(context.Background())
	if err != nil || len(out) != 0 {
		t.Fatalf("Compile = %v, %v; want nothing", out, err)
	}
}
