package propagation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/acoustic-scene-sim/internal/logging"
)

const tracerName = "github.com/signalsfoundry/acoustic-scene-sim/propagation"

const (
	// arrivalThreshold is the fraction of the peak magnitude that marks
	// the first significant arrival of a response.
	arrivalThreshold = 1e-3
	// arrivalGuard keeps a few samples ahead of the first arrival when
	// aligning responses for interpolation.
	arrivalGuard = 2
	// impulseSlack is appended to the slowest direct travel time when the
	// impulse length is derived.
	impulseSlack = 100 * time.Millisecond
)

// Solve outcomes reported to a MetricsRecorder.
const (
	OutcomeSolved  = "solved"
	OutcomeCached  = "cached"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
)

// Params describes the grid a channel is built on.
type Params struct {
	SensorDepthM   float64
	SourceDepthsM  []float64
	MaxDistanceM   float64
	DistancePoints int
	SampleRateHz   float64
	Band           Band
	// Model names the solver in the registry. Empty selects ImageModel.
	Model string
}

// MetricsRecorder receives build and query observations.
type MetricsRecorder interface {
	ObserveSolve(model, outcome string, d time.Duration)
	ObserveCacheLookup(hit bool)
	ObservePropagate(model string, d time.Duration)
}

// Option customises channel construction.
type Option func(*channelOptions)

type channelOptions struct {
	solver   Solver
	registry *Registry
	cfg      *Config
	log      logging.Logger
	metrics  MetricsRecorder
}

// WithSolver uses s directly instead of looking Params.Model up.
func WithSolver(s Solver) Option {
	return func(o *channelOptions) { o.solver = s }
}

// WithRegistry resolves Params.Model against r instead of DefaultRegistry.
func WithRegistry(r *Registry) Option {
	return func(o *channelOptions) { o.registry = r }
}

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(o *channelOptions) { o.cfg = &cfg }
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(o *channelOptions) { o.log = l }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *channelOptions) { o.metrics = m }
}

// Channel is a built grid of responses over (source depth, range). It is
// immutable once NewChannel returns and safe for concurrent queries.
type Channel struct {
	desc     *Description
	descJSON []byte
	params   Params
	model    string
	cfg      Config
	log      logging.Logger
	metrics  MetricsRecorder

	depths  []float64
	ranges  []float64
	spacing float64
	length  int

	cells [][]*Response
	errs  [][]*CellError
}

// NewChannel validates the inputs, copies desc and solves every grid cell.
// Cell failures are recorded and reported by queries that need the cell;
// only cancellation of ctx aborts the build.
func NewChannel(ctx context.Context, desc *Description, p Params, opts ...Option) (*Channel, error) {
	o := channelOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	cfg := DefaultConfig()
	if o.cfg != nil {
		cfg = o.cfg.ApplyDefaults()
	}
	log := logging.OrNoop(o.log)

	if desc == nil {
		return nil, configErrorf("nil description")
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	depths, err := validateParams(desc, p)
	if err != nil {
		return nil, err
	}

	solver := o.solver
	if solver == nil {
		reg := o.registry
		if reg == nil {
			reg = DefaultRegistry()
		}
		name := p.Model
		if name == "" {
			name = ImageModel
		}
		if solver, err = reg.Lookup(name); err != nil {
			return nil, err
		}
	}

	own := desc.Clone()
	descJSON, err := own.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode description: %w", err)
	}

	ch := &Channel{
		desc:     own,
		descJSON: descJSON,
		params:   p,
		model:    solver.Name(),
		cfg:      cfg,
		log:      log.With(logging.String("model", solver.Name())),
		metrics:  o.metrics,
		depths:   depths,
	}
	ch.params.SourceDepthsM = append([]float64(nil), depths...)
	ch.spacing = p.MaxDistanceM / float64(p.DistancePoints-1)
	ch.ranges = make([]float64, p.DistancePoints)
	for i := range ch.ranges {
		ch.ranges[i] = float64(i) * ch.spacing
	}
	ch.ranges[len(ch.ranges)-1] = p.MaxDistanceM
	ch.length = impulseLength(cfg, p, own)

	var cache *DiskCache
	if cfg.CacheDir != "" {
		if cache, err = NewDiskCache(cfg.CacheDir); err != nil {
			return nil, err
		}
	}
	if err := ch.build(ctx, solver, cache); err != nil {
		return nil, err
	}
	return ch, nil
}

func validateParams(desc *Description, p Params) ([]float64, error) {
	if len(p.SourceDepthsM) == 0 {
		return nil, configErrorf("no source depths")
	}
	if p.DistancePoints < 2 {
		return nil, configErrorf("need at least 2 distance points, got %d", p.DistancePoints)
	}
	if !(p.MaxDistanceM > 0) || math.IsInf(p.MaxDistanceM, 0) {
		return nil, configErrorf("max distance must be positive, got %v", p.MaxDistanceM)
	}
	if !(p.SampleRateHz > 0) || math.IsInf(p.SampleRateHz, 0) {
		return nil, configErrorf("sample rate must be positive, got %v", p.SampleRateHz)
	}
	band := p.Band.Resolve(p.SampleRateHz)
	if band.MinHz < 0 || band.MinHz >= band.MaxHz || band.MaxHz > p.SampleRateHz/2 {
		return nil, configErrorf("band [%v, %v] Hz outside [0, %v]", band.MinHz, band.MaxHz, p.SampleRateHz/2)
	}

	bottom, hasBottom := desc.BottomDepth()
	checkDepth := func(what string, z float64) error {
		if z < 0 || math.IsNaN(z) {
			return configErrorf("%s depth %v m is negative", what, z)
		}
		if hasBottom && z > bottom {
			return configErrorf("%s depth %v m lies below the seabed at %v m", what, z, bottom)
		}
		return nil
	}
	if err := checkDepth("sensor", p.SensorDepthM); err != nil {
		return nil, err
	}
	depths := append([]float64(nil), p.SourceDepthsM...)
	sort.Float64s(depths)
	out := depths[:0]
	for _, z := range depths {
		if err := checkDepth("source", z); err != nil {
			return nil, err
		}
		if len(out) > 0 && z == out[len(out)-1] {
			continue
		}
		out = append(out, z)
	}
	return out, nil
}

func impulseLength(cfg Config, p Params, desc *Description) int {
	d := cfg.ImpulseDuration
	if d <= 0 {
		slowest := 1.25 * p.MaxDistanceM / desc.MeanWaterSpeed()
		d = time.Duration(slowest*float64(time.Second)) + impulseSlack
	}
	return int(math.Ceil(d.Seconds() * p.SampleRateHz))
}

type cellJob struct {
	di, ri int
}

func (ch *Channel) build(ctx context.Context, solver Solver, cache *DiskCache) error {
	start := time.Now()
	total := len(ch.depths) * len(ch.ranges)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "propagation.BuildGrid", trace.WithAttributes(
		attribute.String("model", ch.model),
		attribute.Int("cells", total),
		attribute.Int("impulse_samples", ch.length),
	))
	defer span.End()

	ch.cells = make([][]*Response, len(ch.depths))
	ch.errs = make([][]*CellError, len(ch.depths))
	for i := range ch.depths {
		ch.cells[i] = make([]*Response, len(ch.ranges))
		ch.errs[i] = make([]*CellError, len(ch.ranges))
	}

	workers := ch.cfg.Workers
	if workers > total {
		workers = total
	}
	jobs := make(chan cellJob)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				ch.solveCell(ctx, solver, cache, j.di, j.ri)
			}
		}()
	}

feed:
	for di := range ch.depths {
		for ri := range ch.ranges {
			select {
			case jobs <- cellJob{di: di, ri: ri}:
			case <-ctx.Done():
				break feed
			}
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build cancelled")
		return fmt.Errorf("build propagation grid: %w", err)
	}

	degraded := ch.Degraded()
	for _, ce := range degraded {
		ch.log.Warn(ctx, "propagation cell degraded",
			logging.Int("depth_index", ce.DepthIndex),
			logging.Int("range_index", ce.RangeIndex),
			logging.Float("source_depth_m", ce.DepthM),
			logging.Float("range_m", ce.RangeM),
			logging.Err(ce.Err),
		)
	}
	span.SetAttributes(attribute.Int("degraded_cells", len(degraded)))
	fields := []logging.Field{
		logging.Int("cells", total),
		logging.Int("degraded", len(degraded)),
		logging.Int("impulse_samples", ch.length),
		logging.Duration("elapsed", time.Since(start)),
	}
	if cache != nil {
		st := cache.Stats()
		fields = append(fields, logging.Any("cache_hits", st.Hits), logging.Any("cache_misses", st.Misses))
	}
	ch.log.Info(ctx, "propagation grid built", fields...)
	return nil
}

func (ch *Channel) request(di, ri int) Request {
	return Request{
		Description:  ch.desc,
		SensorDepthM: ch.params.SensorDepthM,
		SourceDepthM: ch.depths[di],
		RangeM:       ch.ranges[ri],
		SampleRateHz: ch.params.SampleRateHz,
		Band:         ch.params.Band,
		Length:       ch.length,
	}
}

// solveCell fills exactly one slot of the grid, so workers never contend.
func (ch *Channel) solveCell(ctx context.Context, solver Solver, cache *DiskCache, di, ri int) {
	req := ch.request(di, ri)
	var key string
	if cache != nil {
		key = cellKey(ch.descJSON, ch.model, req)
		samples, ok := cache.Get(key)
		if ch.metrics != nil {
			ch.metrics.ObserveCacheLookup(ok)
		}
		if ok && len(samples) == ch.length {
			ch.cells[di][ri] = newResponse(req.SampleRateHz, samples)
			ch.observe(OutcomeCached, 0)
			return
		}
	}

	start := time.Now()
	resp, err := solveWithTimeout(ctx, solver, req, ch.cfg.SolveTimeout)
	outcome := OutcomeSolved
	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		outcome = OutcomeTimeout
		err = fmt.Errorf("solve timed out after %s: %w", ch.cfg.SolveTimeout, err)
	case err != nil:
		outcome = OutcomeFailed
	case resp == nil || len(resp.Samples) == 0:
		outcome = OutcomeFailed
		err = errors.New("solver returned an empty response")
	}
	ch.observe(outcome, time.Since(start))
	if err != nil {
		ch.errs[di][ri] = &CellError{DepthIndex: di, RangeIndex: ri, DepthM: req.SourceDepthM, RangeM: req.RangeM, Err: err}
		return
	}

	samples := fitLength(resp.Samples, ch.length)
	ch.cells[di][ri] = newResponse(req.SampleRateHz, samples)
	if cache != nil {
		if err := cache.Put(key, samples); err != nil {
			ch.log.Warn(ctx, "propagation cache write failed", logging.Err(err))
		}
	}
}

func (ch *Channel) observe(outcome string, d time.Duration) {
	if ch.metrics != nil {
		ch.metrics.ObserveSolve(ch.model, outcome, d)
	}
}

type solveResult struct {
	resp *Response
	err  error
}

// solveWithTimeout returns when the solver does or when the per-call
// deadline passes, whichever comes first. A solver that ignores its context
// is left to finish in the background.
func solveWithTimeout(ctx context.Context, solver Solver, req Request, timeout time.Duration) (*Response, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan solveResult, 1)
	go func() {
		resp, err := solver.Solve(cctx, req)
		done <- solveResult{resp: resp, err: err}
	}()
	select {
	case res := <-done:
		return res.resp, res.err
	case <-cctx.Done():
		return nil, cctx.Err()
	}
}

func fitLength(samples []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, samples)
	return out
}

func newResponse(fs float64, samples []float64) *Response {
	return &Response{SampleRateHz: fs, Samples: samples, Delay: firstArrival(samples)}
}

func firstArrival(h []float64) int {
	var peak float64
	for _, v := range h {
		peak = math.Max(peak, math.Abs(v))
	}
	if peak == 0 {
		return 0
	}
	for i, v := range h {
		if math.Abs(v) > arrivalThreshold*peak {
			return max(i-arrivalGuard, 0)
		}
	}
	return 0
}

// ---- accessors ----

// Response returns a copy of the stored response for a grid cell.
func (ch *Channel) Response(depthIdx, rangeIdx int) (*Response, error) {
	if depthIdx < 0 || depthIdx >= len(ch.depths) || rangeIdx < 0 || rangeIdx >= len(ch.ranges) {
		return nil, fmt.Errorf("%w: grid cell [%d,%d] outside %dx%d", ErrRange, depthIdx, rangeIdx, len(ch.depths), len(ch.ranges))
	}
	if ce := ch.errs[depthIdx][rangeIdx]; ce != nil {
		return nil, ce
	}
	return ch.cells[depthIdx][rangeIdx].Clone(), nil
}

// Degraded lists the cells whose solve failed, in grid order.
func (ch *Channel) Degraded() []CellError {
	var out []CellError
	for _, row := range ch.errs {
		for _, ce := range row {
			if ce != nil {
				out = append(out, *ce)
			}
		}
	}
	return out
}

// Ranges returns the range grid in metres.
func (ch *Channel) Ranges() []float64 { return append([]float64(nil), ch.ranges...) }

// SourceDepths returns the sorted source depths the grid was built for.
func (ch *Channel) SourceDepths() []float64 { return append([]float64(nil), ch.depths...) }

// Description returns a copy of the description the channel was built from.
func (ch *Channel) Description() *Description { return ch.desc.Clone() }

// Params returns the build parameters with source depths sorted.
func (ch *Channel) Params() Params {
	p := ch.params
	p.SourceDepthsM = append([]float64(nil), ch.depths...)
	return p
}

// Model returns the name of the solver the grid was built with.
func (ch *Channel) Model() string { return ch.model }

// SampleRateHz returns the response sample rate.
func (ch *Channel) SampleRateHz() float64 { return ch.params.SampleRateHz }

// MaxDistanceM returns the largest supported range.
func (ch *Channel) MaxDistanceM() float64 { return ch.params.MaxDistanceM }

// ImpulseLength returns the number of samples in every stored response.
func (ch *Channel) ImpulseLength() int { return ch.length }
