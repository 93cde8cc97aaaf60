package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/brunoga/deep"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/acoustic-scene-sim/dsp"
	"github.com/signalsfoundry/acoustic-scene-sim/propagation"
)

const tracerName = "github.com/signalsfoundry/acoustic-scene-sim/core"

// DefaultRangeStep is how often source ranges are re-evaluated.
const DefaultRangeStep = 100 * time.Millisecond

// NoiseField supplies ambient noise in µPa.
type NoiseField interface {
	Sample(ctx context.Context, duration time.Duration, fs float64, seed int64) ([]float64, error)
}

// Sensor is one hydrophone element of a sonar.
type Sensor struct {
	// Offset from the sonar reference point.
	Offset Vec2
	// AngleRad is the axis of maximum response.
	AngleRad float64
	// Directional sensors follow a cardioid pattern around AngleRad.
	Directional bool
}

// Gain returns the directivity towards bearing (radians).
func (s Sensor) Gain(bearing float64) float64 {
	if !s.Directional {
		return 1
	}
	return 0.5 * (1 + math.Cos(wrapAngle(bearing-s.AngleRad)))
}

// Conditioner is analog signal conditioning between transducer and ADC.
type Conditioner interface {
	Condition(volts []float64)
}

// IdealAmplifier is a flat gain stage.
type IdealAmplifier struct {
	GainDB float64
}

// Condition applies the gain in place.
func (a IdealAmplifier) Condition(volts []float64) {
	g := dsp.DBToAmplitude(a.GainDB)
	for i := range volts {
		volts[i] *= g
	}
}

// ADC quantizes conditioned voltages.
type ADC struct {
	Bits       int
	FullScaleV float64
}

// DefaultADC is a 24-bit converter with a ±2.5 V input range.
var DefaultADC = ADC{Bits: 24, FullScaleV: 2.5}

// Validate checks the converter can be realised.
func (a ADC) Validate() error {
	if a.Bits < 2 || a.Bits > 32 {
		return fmt.Errorf("adc: %d bits outside [2, 32]", a.Bits)
	}
	if a.FullScaleV <= 0 || math.IsNaN(a.FullScaleV) {
		return fmt.Errorf("adc: non-positive full scale %v", a.FullScaleV)
	}
	return nil
}

func (a ADC) quantizer() dsp.Quantizer {
	return dsp.Quantizer{Bits: a.Bits, FullScale: a.FullScaleV}
}

// Sonar is a receiving array carried by a (possibly moving) element.
type Sonar struct {
	ID            string
	Element       *Element
	Sensors       []Sensor
	SensitivityDB float64 // dB re 1 V/µPa
	Conditioner   Conditioner
	ADC           ADC
	RangeStep     time.Duration
}

// SonarOption customises a sonar at construction.
type SonarOption func(*Sonar)

// WithSonarID overrides the random UUID.
func WithSonarID(id string) SonarOption {
	return func(s *Sonar) { s.ID = id }
}

// WithConditioner replaces the unity-gain amplifier.
func WithConditioner(c Conditioner) SonarOption {
	return func(s *Sonar) { s.Conditioner = c }
}

// WithADC replaces DefaultADC.
func WithADC(a ADC) SonarOption {
	return func(s *Sonar) { s.ADC = a }
}

// WithRangeStep changes how often ranges are re-evaluated.
func WithRangeStep(d time.Duration) SonarOption {
	return func(s *Sonar) { s.RangeStep = d }
}

func newSonar(sensors []Sensor, sensitivityDB float64, initial State, opts []SonarOption) (*Sonar, error) {
	s := &Sonar{
		ID:            uuid.NewString(),
		Element:       NewElement(initial, 0),
		Sensors:       sensors,
		SensitivityDB: sensitivityDB,
		Conditioner:   IdealAmplifier{},
		ADC:           DefaultADC,
		RangeStep:     DefaultRangeStep,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.ADC.Validate(); err != nil {
		return nil, fmt.Errorf("sonar %s: %w", s.ID, err)
	}
	if s.RangeStep <= 0 {
		return nil, fmt.Errorf("sonar %s: non-positive range step %v", s.ID, s.RangeStep)
	}
	return s, nil
}

// Hydrophone builds a single omnidirectional sensor.
func Hydrophone(sensitivityDB float64, initial State, opts ...SonarOption) (*Sonar, error) {
	return newSonar([]Sensor{{}}, sensitivityDB, initial, opts)
}

// Cylindrical builds nStaves cardioid staves on a ring of radiusM. Stave i
// points outwards at angle 2πi/nStaves.
func Cylindrical(nStaves int, radiusM, sensitivityDB float64, initial State, opts ...SonarOption) (*Sonar, error) {
	if nStaves < 1 {
		return nil, fmt.Errorf("cylindrical array: %d staves", nStaves)
	}
	if radiusM < 0 {
		return nil, fmt.Errorf("cylindrical array: negative radius %v", radiusM)
	}
	sensors := make([]Sensor, nStaves)
	for i := range sensors {
		theta := 2 * math.Pi * float64(i) / float64(nStaves)
		sensors[i] = Sensor{
			Offset:      FromPolar(radiusM, theta),
			AngleRad:    theta,
			Directional: true,
		}
	}
	return newSonar(sensors, sensitivityDB, initial, opts)
}

// Move advances the sonar platform n steps.
func (s *Sonar) Move(step time.Duration, n int) error {
	if err := s.Element.Move(step, n); err != nil {
		return fmt.Errorf("sonar %s: %w", s.ID, err)
	}
	return nil
}

// Reset rewinds the platform trajectory.
func (s *Sonar) Reset() { s.Element.Reset() }

// Clone returns an independent deep copy.
func (s *Sonar) Clone() *Sonar {
	return deep.MustCopy(s)
}

// Recording is the multichannel output of GetData. Digitized channels hold
// integer ADC codes; otherwise they hold volts.
type Recording struct {
	SampleRateHz float64
	Channels     [][]float64
	Digitized    bool
	Bits         int
}

// Len returns the number of samples per channel.
func (r *Recording) Len() int {
	if len(r.Channels) == 0 {
		return 0
	}
	return len(r.Channels[0])
}

// Duration returns the recording length.
func (r *Recording) Duration() time.Duration {
	return secondsToDuration(float64(r.Len()) / r.SampleRateHz)
}

// Codes returns channel ch as integer ADC codes.
func (r *Recording) Codes(ch int) ([]int32, error) {
	if !r.Digitized {
		return nil, errors.New("recording is not digitized")
	}
	if ch < 0 || ch >= len(r.Channels) {
		return nil, fmt.Errorf("channel %d out of range [0, %d)", ch, len(r.Channels))
	}
	out := make([]int32, len(r.Channels[ch]))
	for i, v := range r.Channels[ch] {
		out[i] = int32(v)
	}
	return out, nil
}

type dataOptions struct {
	digitize bool
	seed     int64
}

// DataOption customises one GetData call.
type DataOption func(*dataOptions)

// WithoutDigitization returns conditioned volts instead of ADC codes.
func WithoutDigitization() DataOption {
	return func(o *dataOptions) { o.digitize = false }
}

// WithNoiseSeed seeds the ambient noise. Stave i uses seed+i.
func WithNoiseSeed(seed int64) DataOption {
	return func(o *dataOptions) { o.seed = seed }
}

// GetData renders what every sensor of the sonar records from the compiled
// sources through channel, plus ambient noise from env when non-nil.
func (s *Sonar) GetData(ctx context.Context, compiler *NoiseCompiler, channel *propagation.Channel, env NoiseField, opts ...DataOption) (*Recording, error) {
	o := dataOptions{digitize: true}
	for _, opt := range opts {
		opt(&o)
	}
	if compiler == nil || channel == nil {
		return nil, fmt.Errorf("sonar %s: compiler and channel are required", s.ID)
	}
	fs := compiler.SampleRateHz()
	if fs != channel.SampleRateHz() {
		return nil, fmt.Errorf("sonar %s: compiler rate %v Hz differs from channel rate %v Hz: %w",
			s.ID, fs, channel.SampleRateHz(), propagation.ErrConfiguration)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "core.Sonar.GetData", trace.WithAttributes(
		attribute.String("sonar_id", s.ID),
		attribute.Int("sensors", len(s.Sensors)),
	))
	defer span.End()
	fail := func(err error) (*Recording, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sources, err := compiler.Compile(ctx)
	if err != nil {
		return fail(fmt.Errorf("sonar %s: %w", s.ID, err))
	}
	n := compiler.Len()
	checkpoints := s.checkpoints(n, fs)
	span.SetAttributes(attribute.Int("samples", n), attribute.Int("checkpoints", len(checkpoints)))

	rec := &Recording{SampleRateHz: fs, Channels: make([][]float64, len(s.Sensors))}
	for i, sensor := range s.Sensors {
		acc := make([]float64, n)
		for _, src := range sources {
			y, err := s.receive(ctx, channel, sensor, src, checkpoints)
			if err != nil {
				return fail(err)
			}
			for k, v := range y {
				acc[k] += v
			}
		}
		if env != nil {
			noise, err := env.Sample(ctx, secondsToDuration(float64(n)/fs), fs, o.seed+int64(i))
			if err != nil {
				return fail(fmt.Errorf("sonar %s: ambient noise for sensor %d: %w", s.ID, i, err))
			}
			for k := 0; k < n && k < len(noise); k++ {
				acc[k] += noise[k]
			}
		}
		rec.Channels[i] = s.transduce(acc)
	}

	if o.digitize {
		q := s.ADC.quantizer()
		for _, ch := range rec.Channels {
			q.Apply(ch)
		}
		rec.Digitized = true
		rec.Bits = s.ADC.Bits
	}
	return rec, nil
}

// checkpoints returns the times at which ranges are evaluated, evenly
// spaced from the first to the last sample.
func (s *Sonar) checkpoints(n int, fs float64) []time.Duration {
	if n <= 1 {
		return []time.Duration{0}
	}
	span := float64(n-1) / fs
	m := int(math.Ceil(span/s.RangeStep.Seconds())) + 1
	out := make([]time.Duration, m)
	for k := range out {
		out[k] = secondsToDuration(span * float64(k) / float64(m-1))
	}
	return out
}

func (s *Sonar) receive(ctx context.Context, channel *propagation.Channel, sensor Sensor, src CompiledSource, checkpoints []time.Duration) ([]float64, error) {
	ranges := make([]float64, len(checkpoints))
	gains := make([]float64, len(checkpoints))
	for k, t := range checkpoints {
		at := s.Element.StateAt(t).Position.Add(sensor.Offset)
		d := src.Element.StateAt(t).Position.Sub(at)
		ranges[k] = d.Norm()
		gains[k] = sensor.Gain(d.Angle())
		if ranges[k] > channel.MaxDistanceM() {
			return nil, fmt.Errorf("sonar %s: source %s at step %d (%v): %.1f m beyond %.1f m: %w",
				s.ID, src.ID, k, t, ranges[k], channel.MaxDistanceM(), propagation.ErrRange)
		}
	}

	y, err := channel.Propagate(ctx, src.Signal, src.DepthM, ranges...)
	if err != nil {
		return nil, fmt.Errorf("sonar %s: source %s: %w", s.ID, src.ID, err)
	}
	n := len(y)
	for j := range y {
		y[j] *= interpolateCheckpoints(gains, float64(j), n)
	}
	return y, nil
}

// transduce converts µPa to conditioned volts.
func (s *Sonar) transduce(pressure []float64) []float64 {
	k := dsp.DBToAmplitude(s.SensitivityDB)
	for i := range pressure {
		pressure[i] *= k
	}
	if s.Conditioner != nil {
		s.Conditioner.Condition(pressure)
	}
	return pressure
}

func interpolateCheckpoints(values []float64, pos float64, n int) float64 {
	if n <= 1 || len(values) == 1 {
		return values[0]
	}
	x := pos / float64(n-1) * float64(len(values)-1)
	i := int(math.Floor(x))
	if i >= len(values)-1 {
		return values[len(values)-1]
	}
	t := x - float64(i)
	return values[i] + t*(values[i+1]-values[i])
}
