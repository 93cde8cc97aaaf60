package propagation

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/acoustic-scene-sim/dsp"
)

// gridTolerance absorbs rounding when a query lands on a grid node.
const gridTolerance = 1e-9

type weightedCell struct {
	di, ri int
	w      float64
}

// ResponseAt returns the response for a source at sourceDepthM and a
// sensor rangeM away. Grid nodes return the stored response unchanged;
// elsewhere the bracketing responses are aligned on their first arrival,
// blended linearly and placed at the linearly interpolated delay.
func (ch *Channel) ResponseAt(sourceDepthM, rangeM float64) (*Response, error) {
	if err := ch.checkRange(rangeM); err != nil {
		return nil, err
	}
	depthCells, err := ch.depthWeights(sourceDepthM)
	if err != nil {
		return nil, err
	}

	pos := rangeM / ch.spacing
	ri := int(math.Floor(pos))
	t := pos - float64(ri)
	if ri >= len(ch.ranges)-1 {
		ri, t = len(ch.ranges)-1, 0
	}
	var rangeCells []weightedCell
	if t < gridTolerance {
		rangeCells = []weightedCell{{ri: ri, w: 1}}
	} else if t > 1-gridTolerance {
		rangeCells = []weightedCell{{ri: ri + 1, w: 1}}
	} else {
		rangeCells = []weightedCell{{ri: ri, w: 1 - t}, {ri: ri + 1, w: t}}
	}

	parts := make([]weightedCell, 0, 4)
	for _, d := range depthCells {
		for _, r := range rangeCells {
			parts = append(parts, weightedCell{di: d.di, ri: r.ri, w: d.w * r.w})
		}
	}
	for _, p := range parts {
		if ce := ch.errs[p.di][p.ri]; ce != nil {
			return nil, fmt.Errorf("response at %.2f m, source depth %.2f m: %w", rangeM, sourceDepthM, ce)
		}
	}
	if len(parts) == 1 {
		return ch.cells[parts[0].di][parts[0].ri].Clone(), nil
	}
	return ch.blend(parts), nil
}

func (ch *Channel) checkRange(rangeM float64) error {
	if math.IsNaN(rangeM) || rangeM < 0 || rangeM > ch.params.MaxDistanceM {
		return fmt.Errorf("%w: range %v m outside [0, %v] m", ErrRange, rangeM, ch.params.MaxDistanceM)
	}
	return nil
}

func (ch *Channel) depthWeights(z float64) ([]weightedCell, error) {
	n := len(ch.depths)
	if math.IsNaN(z) || z < ch.depths[0]-gridTolerance || z > ch.depths[n-1]+gridTolerance {
		return nil, configErrorf("source depth %v m outside built depths [%v, %v] m", z, ch.depths[0], ch.depths[n-1])
	}
	for i, d := range ch.depths {
		if math.Abs(d-z) <= gridTolerance {
			return []weightedCell{{di: i, w: 1}}, nil
		}
	}
	hi := 1
	for hi < n-1 && ch.depths[hi] < z {
		hi++
	}
	lo := hi - 1
	t := (z - ch.depths[lo]) / (ch.depths[hi] - ch.depths[lo])
	return []weightedCell{{di: lo, w: 1 - t}, {di: hi, w: t}}, nil
}

func (ch *Channel) blend(parts []weightedCell) *Response {
	n := ch.length
	tail := make([]float64, n)
	var delay float64
	for _, p := range parts {
		r := ch.cells[p.di][p.ri]
		delay += p.w * float64(r.Delay)
		for j, v := range r.Samples[r.Delay:] {
			tail[j] += p.w * v
		}
	}

	out := make([]float64, n)
	base := int(math.Floor(delay))
	frac := delay - float64(base)
	for j, v := range tail {
		k := base + j
		if k >= n {
			break
		}
		out[k] += v * (1 - frac)
		if k+1 < n {
			out[k+1] += v * frac
		}
	}
	return &Response{SampleRateHz: ch.params.SampleRateHz, Samples: out, Delay: base}
}

// Propagate filters input through the channel for a source at sourceDepthM.
// With one range the response is applied as a fixed filter. With several,
// the ranges are taken as evenly spaced checkpoints from the first to the
// last input sample; the input is cut into blocks no longer than the
// checkpoint spacing or Config.BlockSamples, each block is filtered with the
// response at its centre range and the results are overlap-added. The output has len(input) samples: filtering is causal
// and the tail past the last input sample is discarded.
func (ch *Channel) Propagate(ctx context.Context, input []float64, sourceDepthM float64, rangesM ...float64) ([]float64, error) {
	if len(rangesM) == 0 {
		return nil, configErrorf("propagate needs at least one range")
	}
	for _, r := range rangesM {
		if err := ch.checkRange(r); err != nil {
			return nil, err
		}
	}
	if _, err := ch.depthWeights(sourceDepthM); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "propagation.Propagate", trace.WithAttributes(
		attribute.Int("samples", len(input)),
		attribute.Int("checkpoints", len(rangesM)),
		attribute.Float64("source_depth_m", sourceDepthM),
	))
	defer span.End()
	defer func() {
		if ch.metrics != nil {
			ch.metrics.ObservePropagate(ch.model, time.Since(start))
		}
	}()

	if len(input) == 0 {
		return []float64{}, nil
	}
	if len(rangesM) == 1 {
		h, err := ch.ResponseAt(sourceDepthM, rangesM[0])
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		return dsp.Convolve(input, h.Samples), nil
	}

	n := len(input)
	block := blockLength(ch.cfg.BlockSamples, n, len(rangesM))
	out := make([]float64, n)
	for s := 0; s < n; s += block {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := min(s+block, n)
		r := rangeAtSample(rangesM, float64(s+e-1)/2, n)
		h, err := ch.ResponseAt(sourceDepthM, r)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("block at sample %d: %w", s, err)
		}
		seg := dsp.ConvolveFull(input[s:e], h.Samples)
		for j, v := range seg {
			k := s + j
			if k >= n {
				break
			}
			out[k] += v
		}
	}
	return out, nil
}

// blockLength caps maxBlock at the spacing between checkpoints so every
// checkpoint gets its own response.
func blockLength(maxBlock, n, checkpoints int) int {
	if checkpoints < 2 {
		return max(maxBlock, 1)
	}
	spacing := int(math.Round(float64(n-1) / float64(checkpoints-1)))
	return max(min(maxBlock, spacing), 1)
}

// rangeAtSample interpolates the checkpoint ranges at sample position pos of
// an n-sample signal.
func rangeAtSample(ranges []float64, pos float64, n int) float64 {
	if n <= 1 || len(ranges) == 1 {
		return ranges[0]
	}
	x := pos / float64(n-1) * float64(len(ranges)-1)
	i := int(math.Floor(x))
	if i >= len(ranges)-1 {
		return ranges[len(ranges)-1]
	}
	if i < 0 {
		return ranges[0]
	}
	t := x - float64(i)
	return ranges[i] + t*(ranges[i+1]-ranges[i])
}
