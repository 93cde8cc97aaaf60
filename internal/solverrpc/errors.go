package solverrpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/acoustic-scene-sim/propagation"
)

// ToStatusError maps propagation errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, propagation.ErrConfiguration),
		errors.Is(err, propagation.ErrLayerNotFound):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, propagation.ErrRange):
		return status.Error(codes.OutOfRange, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// FromStatusError maps a gRPC status back onto the propagation error
// taxonomy so callers can keep using errors.Is.
func FromStatusError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", propagation.ErrSolverFailure, err)
	}

	var sentinel error
	switch st.Code() {
	case codes.InvalidArgument:
		sentinel = propagation.ErrConfiguration
	case codes.OutOfRange:
		sentinel = propagation.ErrRange
	case codes.DeadlineExceeded:
		sentinel = context.DeadlineExceeded
	case codes.Canceled:
		sentinel = context.Canceled
	default:
		sentinel = propagation.ErrSolverFailure
	}
	return fmt.Errorf("%w: remote solver: %s", sentinel, st.Message())
}
