// Command synth runs a single-ship scenario against a predefined channel and
// prints a summary of the recording a sonar would capture.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/acoustic-scene-sim/core"
	"github.com/signalsfoundry/acoustic-scene-sim/dsp"
	"github.com/signalsfoundry/acoustic-scene-sim/environment"
	"github.com/signalsfoundry/acoustic-scene-sim/internal/logging"
	"github.com/signalsfoundry/acoustic-scene-sim/internal/observability"
	"github.com/signalsfoundry/acoustic-scene-sim/internal/solverrpc"
	"github.com/signalsfoundry/acoustic-scene-sim/model"
	"github.com/signalsfoundry/acoustic-scene-sim/propagation"
)

const sonarID = "sonar"

// Config holds the run settings parsed from flags.
type Config struct {
	Channel     string
	ShipType    string
	Seed        int64
	StartRangeM float64
	HeadingDeg  float64
	Step        time.Duration
	Steps       int
	Staves      int
	RadiusM     float64
	Sea         int
	Rain        int
	Shipping    int
	Raw         bool

	SolverAddr      string
	MetricsAddr     string
	DescriptionPath string
	Propagation     propagation.Config
}

func main() {
	cfg := Config{Propagation: propagation.ConfigFromEnv()}
	flag.StringVar(&cfg.Channel, "channel", propagation.Harbour.String(), "predefined channel (basic or harbour)")
	flag.StringVar(&cfg.ShipType, "ship", model.ShipFishing.String(), "ship class")
	flag.Int64Var(&cfg.Seed, "seed", 1, "seed for ship parameters and ambient noise")
	flag.Float64Var(&cfg.StartRangeM, "start-range", 100, "initial ship range east of the sonar in metres")
	flag.Float64Var(&cfg.HeadingDeg, "heading", 90, "ship heading in degrees counter-clockwise from east")
	flag.DurationVar(&cfg.Step, "step", time.Second, "simulation step")
	flag.IntVar(&cfg.Steps, "steps", 10, "number of simulation steps")
	flag.IntVar(&cfg.Staves, "staves", 0, "cylindrical array staves (0 uses a single hydrophone)")
	flag.Float64Var(&cfg.RadiusM, "radius", 0.5, "cylindrical array radius in metres")
	flag.IntVar(&cfg.Sea, "sea", int(environment.SeaState2), "sea state 0-6")
	flag.IntVar(&cfg.Rain, "rain", int(environment.RainNone), "rain level 0-4")
	flag.IntVar(&cfg.Shipping, "shipping", int(environment.ShippingLevel3), "distant shipping level 0-7")
	flag.BoolVar(&cfg.Raw, "raw", false, "skip ADC quantization and report volts")
	flag.StringVar(&cfg.SolverAddr, "solver-addr", "", "remote solver-server address (empty solves in process)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics (empty disables)")
	flag.StringVar(&cfg.DescriptionPath, "save-description", "", "write the channel description JSON to this path")
	flag.StringVar(&cfg.Propagation.CacheDir, "cache-dir", cfg.Propagation.CacheDir, "impulse response cache directory")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log, os.Stdout); err != nil {
		log.Error(ctx, "synthesis failed", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, log logging.Logger, out io.Writer) error {
	log = logging.OrNoop(log)
	ctx, log = logging.WithRunLogger(ctx, log)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	predefined, err := propagation.ParsePredefined(cfg.Channel)
	if err != nil {
		return err
	}
	shipType, err := model.ParseShipType(cfg.ShipType)
	if err != nil {
		return err
	}
	env, err := environment.New(environment.Sea(cfg.Sea), environment.Rain(cfg.Rain), environment.Shipping(cfg.Shipping))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	collector, err := observability.NewChannelCollector(reg)
	if err != nil {
		return err
	}
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(ctx, cfg.MetricsAddr, reg, log)
		defer srv.Close()
	}

	opts := []propagation.Option{
		propagation.WithConfig(cfg.Propagation),
		propagation.WithLogger(log),
		propagation.WithMetrics(collector),
	}
	if cfg.SolverAddr != "" {
		client, conn, err := solverrpc.Dial(cfg.SolverAddr)
		if err != nil {
			return fmt.Errorf("dial solver %s: %w", cfg.SolverAddr, err)
		}
		defer conn.Close()
		opts = append(opts, propagation.WithSolver(client))
	}

	channel, err := predefined.Build(ctx, opts...)
	if err != nil {
		return fmt.Errorf("build %s channel: %w", predefined, err)
	}
	fmt.Fprintf(out, "channel %s: %d depths x %d ranges, model %s, %d degraded\n",
		predefined, len(channel.SourceDepths()), len(channel.Ranges()), channel.Model(), len(channel.Degraded()))

	if cfg.DescriptionPath != "" {
		if err := channel.Description().SaveFile(cfg.DescriptionPath); err != nil {
			return err
		}
	}

	ship, err := core.ShipByType(shipType, cfg.Seed, core.Vec2{X: cfg.StartRangeM}, cfg.HeadingDeg*math.Pi/180)
	if err != nil {
		return err
	}
	depths := channel.SourceDepths()
	ship.DraftM = math.Min(math.Max(ship.DraftM, depths[0]), depths[len(depths)-1])

	sonar, err := newSonar(cfg)
	if err != nil {
		return err
	}

	scenario, err := core.NewScenario(channel, env, core.WithScenarioLogger(log), core.WithSeed(cfg.Seed))
	if err != nil {
		return err
	}
	if err := scenario.AddShip(ship); err != nil {
		return err
	}
	if err := scenario.AddSonar(sonarID, sonar); err != nil {
		return err
	}
	if err := scenario.Simulate(ctx, cfg.Step, cfg.Steps); err != nil {
		return err
	}

	series, err := scenario.RelativeDistances(sonarID)
	if err != nil {
		return err
	}
	for _, s := range series {
		closest := math.Inf(1)
		for _, r := range s.RangesM {
			closest = math.Min(closest, r)
		}
		fmt.Fprintf(out, "ship %s (%s, draft %.1f m): closest %.1f m, final %.1f m\n",
			s.ShipID, shipType, ship.DraftM, closest, s.RangesM[len(s.RangesM)-1])
	}

	var dataOpts []core.DataOption
	if cfg.Raw {
		dataOpts = append(dataOpts, core.WithoutDigitization())
	}
	rec, err := scenario.SonarData(ctx, sonarID, channel.SampleRateHz(), dataOpts...)
	if err != nil {
		return err
	}
	unit := "dBV"
	if rec.Digitized {
		unit = "dB re 1 count"
	}
	for i, ch := range rec.Channels {
		fmt.Fprintf(out, "sonar channel %d: %v at %.0f Hz, rms %.1f %s\n",
			i, rec.Duration(), rec.SampleRateHz, dsp.AmplitudeToDB(dsp.RMS(ch)), unit)
	}
	return nil
}

func newSonar(cfg Config) (*core.Sonar, error) {
	if cfg.Staves > 0 {
		return core.Cylindrical(cfg.Staves, cfg.RadiusM, -170, core.State{}, core.WithSonarID(sonarID))
	}
	return core.Hydrophone(-170, core.State{}, core.WithSonarID(sonarID))
}

func serveMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(ctx, "metrics server exited", logging.Err(err))
		}
	}()
	log.Info(ctx, "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
