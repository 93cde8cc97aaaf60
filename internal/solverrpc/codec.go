package solverrpc

import (
	"bytes"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/acoustic-scene-sim/propagation"
)

// Struct field names.
const (
	fieldDescription  = "description"
	fieldSensorDepth  = "sensor_depth_m"
	fieldSourceDepth  = "source_depth_m"
	fieldRange        = "range_m"
	fieldSampleRate   = "sample_rate_hz"
	fieldBandMin      = "band_min_hz"
	fieldBandMax      = "band_max_hz"
	fieldLength       = "length"
	fieldSamples      = "samples"
	maxResponseLength = 1 << 24
)

// EncodeRequest converts a solve request to its wire form. The description
// travels as its canonical JSON text so layer seeds survive unchanged.
func EncodeRequest(req propagation.Request) (*structpb.Struct, error) {
	if req.Description == nil {
		return nil, fmt.Errorf("%w: request without description", propagation.ErrConfiguration)
	}
	var desc bytes.Buffer
	if err := req.Description.Save(&desc); err != nil {
		return nil, fmt.Errorf("encode description: %w", err)
	}
	return structpb.NewStruct(map[string]interface{}{
		fieldDescription: desc.String(),
		fieldSensorDepth: req.SensorDepthM,
		fieldSourceDepth: req.SourceDepthM,
		fieldRange:       req.RangeM,
		fieldSampleRate:  req.SampleRateHz,
		fieldBandMin:     req.Band.MinHz,
		fieldBandMax:     req.Band.MaxHz,
		fieldLength:      req.Length,
	})
}

// DecodeRequest validates and converts the wire form back to a request.
func DecodeRequest(in *structpb.Struct) (propagation.Request, error) {
	fields := in.GetFields()
	text, ok := fields[fieldDescription].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return propagation.Request{}, fmt.Errorf("%w: missing %s", propagation.ErrConfiguration, fieldDescription)
	}
	desc, err := propagation.Load(bytes.NewBufferString(text.StringValue))
	if err != nil {
		return propagation.Request{}, err
	}

	num := func(name string) (float64, error) {
		v, ok := fields[name].GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return 0, fmt.Errorf("%w: missing number %s", propagation.ErrConfiguration, name)
		}
		if math.IsNaN(v.NumberValue) || math.IsInf(v.NumberValue, 0) {
			return 0, fmt.Errorf("%w: %s is not finite", propagation.ErrConfiguration, name)
		}
		return v.NumberValue, nil
	}

	req := propagation.Request{Description: desc}
	for name, dst := range map[string]*float64{
		fieldSensorDepth: &req.SensorDepthM,
		fieldSourceDepth: &req.SourceDepthM,
		fieldRange:       &req.RangeM,
		fieldSampleRate:  &req.SampleRateHz,
		fieldBandMin:     &req.Band.MinHz,
		fieldBandMax:     &req.Band.MaxHz,
	} {
		if *dst, err = num(name); err != nil {
			return propagation.Request{}, err
		}
	}
	length, err := num(fieldLength)
	if err != nil {
		return propagation.Request{}, err
	}
	if length < 1 || length > maxResponseLength || length != math.Trunc(length) {
		return propagation.Request{}, fmt.Errorf("%w: bad response length %v", propagation.ErrConfiguration, length)
	}
	req.Length = int(length)
	if req.SampleRateHz <= 0 {
		return propagation.Request{}, fmt.Errorf("%w: non-positive sample rate %v", propagation.ErrConfiguration, req.SampleRateHz)
	}
	if req.RangeM < 0 {
		return propagation.Request{}, fmt.Errorf("%w: negative range %v", propagation.ErrRange, req.RangeM)
	}
	return req, nil
}

// EncodeResponse converts a solver response to its wire form.
func EncodeResponse(resp *propagation.Response) (*structpb.Struct, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", propagation.ErrSolverFailure)
	}
	samples := make([]*structpb.Value, len(resp.Samples))
	for i, v := range resp.Samples {
		samples[i] = structpb.NewNumberValue(v)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldSampleRate: structpb.NewNumberValue(resp.SampleRateHz),
		fieldSamples:    structpb.NewListValue(&structpb.ListValue{Values: samples}),
	}}, nil
}

// DecodeResponse converts the wire form back to a response.
func DecodeResponse(out *structpb.Struct) (*propagation.Response, error) {
	fields := out.GetFields()
	list := fields[fieldSamples].GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: response without samples", propagation.ErrSolverFailure)
	}
	resp := &propagation.Response{
		SampleRateHz: fields[fieldSampleRate].GetNumberValue(),
		Samples:      make([]float64, len(list.GetValues())),
	}
	for i, v := range list.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%w: sample %d is not a number", propagation.ErrSolverFailure, i)
		}
		resp.Samples[i] = n.NumberValue
	}
	return resp, nil
}
