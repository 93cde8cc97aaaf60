package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/acoustic-scene-sim/environment"
	"github.com/signalsfoundry/acoustic-scene-sim/internal/logging"
	"github.com/signalsfoundry/acoustic-scene-sim/propagation"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	t.Setenv("SYNTH_TRACING_ENABLED", "false")
	return Config{
		Channel:     "harbour",
		ShipType:    "fishing",
		Seed:        3,
		StartRangeM: 100,
		HeadingDeg:  90,
		Step:        time.Second,
		Steps:       3,
		Sea:         int(environment.SeaState1),
		Propagation: propagation.DefaultConfig(),
	}
}

func TestRunPrintsSummary(t *testing.T) {
	cfg := testConfig(t)
	cfg.Staves = 4
	cfg.DescriptionPath = filepath.Join(t.TempDir(), "harbour.json")

	var out bytes.Buffer
	if err := run(context.Background(), cfg, logging.Noop(), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	text := out.String()
	for _, want := range []string{
		"channel harbour: 6 depths x 41 ranges, model image, 0 degraded",
		"(fishing, draft",
		"sonar channel 3:",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}

	desc, err := propagation.LoadFile(cfg.DescriptionPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if bottom, ok := desc.BottomDepth(); !ok || bottom != 30 {
		t.Fatalf("saved bottom = %v, %v, want 30", bottom, ok)
	}
}

func TestRunRejectsUnknownChannel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Channel = "lake"
	err := run(context.Background(), cfg, nil, &bytes.Buffer{})
	if !errors.Is(err, propagation.ErrConfiguration) {
		t.Fatalf("run error = %v, want ErrConfiguration", err)
	}
}

func TestRunReportsRangeOverflow(t *testing.T) {
	cfg := testConfig(t)
	cfg.StartRangeM = 190
	cfg.HeadingDeg = 0
	cfg.Raw = true
	err := run(context.Background(), cfg, nil, &bytes.Buffer{})
	if !errors.Is(err, propagation.ErrRange) {
		t.Fatalf("run error = %v, want ErrRange", err)
	}
}
