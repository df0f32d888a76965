package entrypoint

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/boliri/kre-runners/internal/envelope"
)

// RequestCodec converts between a gRPC message type and the envelope's
// opaque TypedValue, the Go analogue of the generated entrypoint's
// make_response_object factory in original_source/kre-entrypoint.
type RequestCodec interface {
	// Encode packs a decoded gRPC request into a TypedValue for the bus.
	Encode(req any) (envelope.TypedValue, error)
	// Decode unpacks a TypedValue reply into the gRPC response type.
	Decode(tv envelope.TypedValue) (any, error)
}

// UnaryBridge adapts Bridge.Call to a unary gRPC handler signature, mapping
// bus/envelope errors to Status.INTERNAL per spec.md §6's External surface
// ("errors map to Status.INTERNAL with the envelope's error string as
// message").
type UnaryBridge struct {
	bridge   *Bridge
	workflow string
	codec    RequestCodec
}

// NewUnaryBridge builds a UnaryBridge for one workflow's unary RPC.
func NewUnaryBridge(bridge *Bridge, workflow string, codec RequestCodec) *UnaryBridge {
	return &UnaryBridge{bridge: bridge, workflow: workflow, codec: codec}
}

// Handle is registered as the gRPC method implementation for workflow.
func (u *UnaryBridge) Handle(ctx context.Context, req any) (any, error) {
	reqTV, err := u.codec.Encode(req)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	replyTV, err := u.bridge.Call(ctx, u.workflow, reqTV)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	resp, err := u.codec.Decode(replyTV)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}
