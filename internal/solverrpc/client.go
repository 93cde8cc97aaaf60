package solverrpc

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/acoustic-scene-sim/internal/logging"
	"github.com/signalsfoundry/acoustic-scene-sim/propagation"
)

// RemoteModel prefixes the name a Client reports to the channel. Dial
// appends the target so cache entries from different servers never mix.
const RemoteModel = "remote"

// Client is a propagation.Solver backed by a remote solver service.
type Client struct {
	conn grpc.ClientConnInterface
	name string
}

// NewClient uses an existing connection. name is reported by Name and
// defaults to RemoteModel.
func NewClient(conn grpc.ClientConnInterface, name string) *Client {
	if name == "" {
		name = RemoteModel
	}
	return &Client{conn: conn, name: name}
}

// Dial connects to target over plaintext with client tracing and returns
// the client plus the connection to close.
func Dial(target string, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, nil, err
	}
	return NewClient(conn, RemoteModel+"@"+target), conn, nil
}

// Name implements propagation.Solver.
func (c *Client) Name() string { return c.name }

// Solve implements propagation.Solver. The context's run_id, when present,
// is forwarded so server logs line up with the client's run.
func (c *Client) Solve(ctx context.Context, req propagation.Request) (*propagation.Response, error) {
	in, err := EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	if id := logging.RunIDFromContext(ctx); id != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, runIDMetadataKey, id)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, SolveMethod, in, out); err != nil {
		return nil, FromStatusError(err)
	}
	return DecodeResponse(out)
}
