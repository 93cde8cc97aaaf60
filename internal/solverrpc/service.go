// Package solverrpc exposes a propagation.Solver over gRPC so expensive
// propagation models can run out of process. Payloads are
// google.protobuf.Struct messages; see EncodeRequest for the field layout.
package solverrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName = "acoustics.solver.v1.PropagationSolver"
	// SolveMethod is the full method path of the Solve RPC.
	SolveMethod = "/" + ServiceName + "/Solve"
)

// PropagationSolverServer is the server API for the solver service.
type PropagationSolverServer interface {
	Solve(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the solver service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PropagationSolverServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Solve",
			Handler:    solveHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "acoustics/solver/v1/solver.proto",
}

// RegisterPropagationSolverServer registers srv with s.
func RegisterPropagationSolverServer(s grpc.ServiceRegistrar, srv PropagationSolverServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func solveHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PropagationSolverServer).Solve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: SolveMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PropagationSolverServer).Solve(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
