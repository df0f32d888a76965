package main

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// msgpackCodecName is registered with grpc's encoding package so this demo
// service can move messages without a protoc-generated proto.Message
// implementation, reusing the same msgpack codec the bus envelope uses.
const msgpackCodecName = "msgpack"

func init() {
	encoding.RegisterCodec(msgpackCodec{})
}

type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (msgpackCodec) Name() string                       { return msgpackCodecName }

// EchoRequest/EchoResponse stand in for protoc-generated message types;
// see the package doc comment in main.go.
type EchoRequest struct {
	Message string `msgpack:"message"`
}

func (r *EchoRequest) GetMessage() string {
	if r == nil {
		return ""
	}
	return r.Message
}

type EchoResponse struct {
	Message string `msgpack:"message"`
}

// EchoWorkflowServer is the hand-written analogue of a protoc-generated
// service interface for the single "echo" workflow.
type EchoWorkflowServer interface {
	Echo(ctx context.Context, req *EchoRequest) (*EchoResponse, error)
}

// UnimplementedEchoWorkflowServer can be embedded to satisfy
// EchoWorkflowServer forward-compatibly, the way protoc-gen-go-grpc embeds
// an Unimplemented type in every generated server.
type UnimplementedEchoWorkflowServer struct{}

func (UnimplementedEchoWorkflowServer) Echo(context.Context, *EchoRequest) (*EchoResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Echo not implemented")
}

var echoWorkflowServiceDesc = grpc.ServiceDesc{
	ServiceName: "kre.EchoWorkflow",
	HandlerType: (*EchoWorkflowServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Echo",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				req := new(EchoRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(EchoWorkflowServer).Echo(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/kre.EchoWorkflow/Echo"}
				handler := func(ctx context.Context, req any) (any, error) {
					return srv.(EchoWorkflowServer).Echo(ctx, req.(*EchoRequest))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "echo_service.proto",
}

// RegisterEchoWorkflowServer registers srv with s, mirroring the
// registration function protoc-gen-go-grpc would generate.
func RegisterEchoWorkflowServer(s *grpc.Server, srv EchoWorkflowServer) {
	s.RegisterService(&echoWorkflowServiceDesc, srv)
}
