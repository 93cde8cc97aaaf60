package solverrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/acoustic-scene-sim/internal/logging"
	"github.com/signalsfoundry/acoustic-scene-sim/internal/observability"
	"github.com/signalsfoundry/acoustic-scene-sim/model"
	"github.com/signalsfoundry/acoustic-scene-sim/propagation"
)

func startServer(t *testing.T, solver propagation.Solver) *Client {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	collector, err := observability.NewRPCCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}
	gs := NewGRPCServer(NewServer(solver, logging.Noop()), logging.Noop(), collector)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	client, conn, err := Dial(lis.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return client
}

func testRequest(t *testing.T) propagation.Request {
	t.Helper()
	desc, err := propagation.NewIsovelocity(1500, 50, model.BottomSand)
	if err != nil {
		t.Fatalf("NewIsovelocity: %v", err)
	}
	return propagation.Request{
		Description:  desc,
		SensorDepthM: 40,
		SourceDepthM: 10,
		RangeM:       150,
		SampleRateHz: 8000,
		Length:       1024,
	}
}

func TestRemoteSolveMatchesLocal(t *testing.T) {
	local := propagation.NewImageSolver()
	client := startServer(t, local)
	req := testRequest(t)

	want, err := local.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("local Solve: %v", err)
	}
	got, err := client.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("remote Solve: %v", err)
	}
	if got.SampleRateHz != want.SampleRateHz {
		t.Fatalf("SampleRateHz = %v, want %v", got.SampleRateHz, want.SampleRateHz)
	}
	if len(got.Samples) != len(want.Samples) {
		t.Fatalf("len(Samples) = %d, want %d", len(got.Samples), len(want.Samples))
	}
	for i := range want.Samples {
		if got.Samples[i] != want.Samples[i] {
			t.Fatalf("Samples[%d] = %v, want %v", i, got.Samples[i], want.Samples[i])
		}
	}
}

func TestRemoteErrorsKeepTheirKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"range", fmt.Errorf("%w: too far", propagation.ErrRange), propagation.ErrRange},
		{"config", fmt.Errorf("%w: bad layer", propagation.ErrConfiguration), propagation.ErrConfiguration},
		{"internal", errors.New("diverged"), propagation.ErrSolverFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			failing := propagation.SolverFunc(func(context.Context, propagation.Request) (*propagation.Response, error) {
				return nil, tc.err
			})
			client := startServer(t, failing)
			_, err := client.Solve(context.Background(), testRequest(t))
			if !errors.Is(err, tc.want) {
				t.Fatalf("Solve error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRunIDForwarded(t *testing.T) {
	seen := make(chan string, 1)
	solver := propagation.SolverFunc(func(ctx context.Context, req propagation.Request) (*propagation.Response, error) {
		seen <- logging.RunIDFromContext(ctx)
		return &propagation.Response{SampleRateHz: req.SampleRateHz, Samples: make([]float64, req.Length)}, nil
	})
	client := startServer(t, solver)

	ctx := logging.ContextWithRunID(context.Background(), "run-42")
	if _, err := client.Solve(ctx, testRequest(t)); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if got := <-seen; got != "run-42" {
		t.Fatalf("server run_id = %q, want %q", got, "run-42")
	}
}

func TestChannelOverRemoteSolver(t *testing.T) {
	client := startServer(t, propagation.NewImageSolver())
	desc := testRequest(t).Description
	p := propagation.Params{
		SensorDepthM:   40,
		SourceDepthsM:  []float64{10},
		MaxDistanceM:   100,
		DistancePoints: 5,
		SampleRateHz:   8000,
	}

	remote, err := propagation.NewChannel(context.Background(), desc, p, propagation.WithSolver(client))
	if err != nil {
		t.Fatalf("NewChannel(remote): %v", err)
	}
	local, err := propagation.NewChannel(context.Background(), desc, p)
	if err != nil {
		t.Fatalf("NewChannel(local): %v", err)
	}
	if n := len(remote.Degraded()); n != 0 {
		t.Fatalf("remote degraded cells = %d, want 0", n)
	}
	if remote.Model() != client.Name() || !strings.HasPrefix(remote.Model(), RemoteModel+"@127.0.0.1:") {
		t.Fatalf("Model() = %q, want %q", remote.Model(), client.Name())
	}
	for ri := range p.DistancePoints {
		a, err := remote.Response(0, ri)
		if err != nil {
			t.Fatalf("remote Response: %v", err)
		}
		b, err := local.Response(0, ri)
		if err != nil {
			t.Fatalf("local Response: %v", err)
		}
		if a.Delay != b.Delay {
			t.Fatalf("cell %d Delay = %d, want %d", ri, a.Delay, b.Delay)
		}
		for i := range b.Samples {
			if a.Samples[i] != b.Samples[i] {
				t.Fatalf("cell %d sample %d = %v, want %v", ri, i, a.Samples[i], b.Samples[i])
			}
		}
	}
}

func TestRemoteServersDoNotShareCacheEntries(t *testing.T) {
	first := startServer(t, propagation.NewImageSolver())
	var calls atomic.Int64
	counting := propagation.SolverFunc(func(_ context.Context, req propagation.Request) (*propagation.Response, error) {
		calls.Add(1)
		return &propagation.Response{SampleRateHz: req.SampleRateHz, Samples: make([]float64, req.Length)}, nil
	})
	second := startServer(t, counting)
	if first.Name() == second.Name() {
		t.Fatalf("clients for different servers share the name %q", first.Name())
	}

	desc := testRequest(t).Description
	p := propagation.Params{
		SensorDepthM:   40,
		SourceDepthsM:  []float64{10},
		MaxDistanceM:   100,
		DistancePoints: 5,
		SampleRateHz:   8000,
	}
	cfg := propagation.DefaultConfig()
	cfg.CacheDir = t.TempDir()

	if _, err := propagation.NewChannel(context.Background(), desc, p, propagation.WithConfig(cfg), propagation.WithSolver(first)); err != nil {
		t.Fatalf("NewChannel(first): %v", err)
	}
	if _, err := propagation.NewChannel(context.Background(), desc, p, propagation.WithConfig(cfg), propagation.WithSolver(second)); err != nil {
		t.Fatalf("NewChannel(second): %v", err)
	}
	if got := calls.Load(); got != int64(p.DistancePoints) {
		t.Fatalf("second server solved %d cells, want %d", got, p.DistancePoints)
	}
}

func TestDecodeRequestRejectsBadInput(t *testing.T) {
	in, err := EncodeRequest(testRequest(t))
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	srv := NewServer(propagation.NewImageSolver(), nil)

	in.Fields[fieldLength] = nil
	_, err = srv.Solve(context.Background(), in)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v, want %v", status.Code(err), codes.InvalidArgument)
	}
}

func TestStatusMapping(t *testing.T) {
	if got := status.Code(ToStatusError(context.DeadlineExceeded)); got != codes.DeadlineExceeded {
		t.Fatalf("deadline code = %v", got)
	}
	if got := status.Code(ToStatusError(propagation.ErrLayerNotFound)); got != codes.InvalidArgument {
		t.Fatalf("layer code = %v", got)
	}
	if err := FromStatusError(status.Error(codes.Canceled, "bye")); !errors.Is(err, context.Canceled) {
		t.Fatalf("FromStatusError(canceled) = %v", err)
	}
	if ToStatusError(nil) != nil || FromStatusError(nil) != nil {
		t.Fatalf("nil errors should map to nil")
	}
}

func TestRunIDInterceptorMintsWhenAbsent(t *testing.T) {
	icpt := RunIDUnaryServerInterceptor(nil)
	info := &grpc.UnaryServerInfo{FullMethod: SolveMethod}

	var got string
	_, err := icpt(context.Background(), nil, info, func(ctx context.Context, _ interface{}) (interface{}, error) {
		got = logging.RunIDFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if got == "" {
		t.Fatalf("run_id not minted")
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(runIDMetadataKey, "abc"))
	_, _ = icpt(ctx, nil, info, func(ctx context.Context, _ interface{}) (interface{}, error) {
		got = logging.RunIDFromContext(ctx)
		return nil, nil
	})
	if got != "abc" {
		t.Fatalf("run_id = %q, want abc", got)
	}
}
