package solverrpc

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/acoustic-scene-sim/internal/logging"
	"github.com/signalsfoundry/acoustic-scene-sim/propagation"
)

// Server serves a propagation.Solver over gRPC.
type Server struct {
	solver propagation.Solver
	log    logging.Logger
}

// NewServer wraps solver.
func NewServer(solver propagation.Solver, log logging.Logger) *Server {
	return &Server{solver: solver, log: logging.OrNoop(log)}
}

// Solve implements PropagationSolverServer.
func (s *Server) Solve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := loggerFromContext(ctx, s.log)
	req, err := DecodeRequest(in)
	if err != nil {
		log.Warn(ctx, "rejected solve request", logging.Err(err))
		return nil, ToStatusError(err)
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("solver", s.solver.Name()),
		attribute.Float64("range_m", req.RangeM),
		attribute.Float64("source_depth_m", req.SourceDepthM),
		attribute.Int("length", req.Length),
	)

	start := time.Now()
	resp, err := s.solver.Solve(ctx, req)
	if err != nil {
		span.RecordError(err)
		log.Warn(ctx, "solve failed",
			logging.Float("range_m", req.RangeM),
			logging.Float("source_depth_m", req.SourceDepthM),
			logging.Err(err),
		)
		return nil, ToStatusError(err)
	}
	log.Debug(ctx, "solved cell",
		logging.Float("range_m", req.RangeM),
		logging.Float("source_depth_m", req.SourceDepthM),
		logging.Duration("took", time.Since(start)),
	)

	out, err := EncodeResponse(resp)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}
