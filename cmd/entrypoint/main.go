// Command entrypoint runs the entrypoint runner process: it declares one
// bus stream per workflow, then serves incoming external calls over gRPC,
// bridging each unary RPC to a synchronous bus round-trip via
// internal/entrypoint.Bridge.
//
// The service registered here (EchoWorkflowServer) stands in for a
// protoc-generated stub: spec.md §4.6 describes the bridging behavior, not
// a fixed .proto surface, so this wires one illustrative workflow
// ("echo") end to end. A real deployment generates its own service stubs
// and wires them through entrypoint.NewUnaryBridge the same way.
package main

import (
	"context"
	"net"
	"os"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/boliri/kre-runners/internal/bus"
	"github.com/boliri/kre-runners/internal/config"
	"github.com/boliri/kre-runners/internal/entrypoint"
	"github.com/boliri/kre-runners/internal/envelope"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("entrypoint: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := cfg.RequireEntrypointFields(); err != nil {
		os.Stderr.WriteString("entrypoint: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	busClient, err := bus.Connect(cfg.NatsServer, cfg.NatsCredsFile, cfg.RunnerName, logger)
	if err != nil {
		logger.Fatal("failed to connect to bus", zap.Error(err))
	}
	defer busClient.Close()

	workflows, err := entrypoint.LoadWorkflows(cfg.NatsSubjectsFile)
	if err != nil {
		logger.Fatal("failed to load workflow subjects", zap.Error(err))
	}

	bridge := entrypoint.New(cfg, busClient, logger)
	if err := bridge.Start(workflows); err != nil {
		logger.Fatal("failed to declare workflow streams", zap.Error(err))
	}

	lis, err := net.Listen("tcp", ":9090")
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}

	grpcServer := grpc.NewServer(grpc.ForceServerCodec(msgpackCodec{}))
	RegisterEchoWorkflowServer(grpcServer, &echoWorkflowServer{
		handle: entrypoint.NewUnaryBridge(bridge, "echo", echoCodec{}).Handle,
	})

	logger.Info("entrypoint ready", zap.String("addr", lis.Addr().String()))
	if err := grpcServer.Serve(lis); err != nil {
		logger.Fatal("gRPC server stopped", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	var zapLevel zap.AtomicLevel
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zapLevel
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

// echoCodec implements entrypoint.RequestCodec for the demo workflow: both
// request and reply are plain strings.
type echoCodec struct{}

func (echoCodec) Encode(req any) (envelope.TypedValue, error) {
	s, _ := req.(string)
	return envelope.Pack(s, "string.v1")
}

func (echoCodec) Decode(tv envelope.TypedValue) (any, error) {
	var out string
	if err := envelope.Unpack(tv, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// echoWorkflowServer adapts the hand-rolled EchoWorkflowServer gRPC
// interface to entrypoint.UnaryBridge.Handle.
type echoWorkflowServer struct {
	UnimplementedEchoWorkflowServer
	handle func(ctx context.Context, req any) (any, error)
}

func (s *echoWorkflowServer) Echo(ctx context.Context, req *EchoRequest) (*EchoResponse, error) {
	resp, err := s.handle(ctx, req.GetMessage())
	if err != nil {
		return nil, err
	}
	return &EchoResponse{Message: resp.(string)}, nil
}
