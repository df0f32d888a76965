// Package envelope defines the wire message exchanged between node runners
// and the entrypoint bridge.
//
// An Envelope carries one user payload plus the routing and tracking
// metadata needed to correlate it across hops: a tracking_id that spans one
// logical external request, a request_id preserved end-to-end within that
// request, the producing node's name, a message-type tag, and an
// append-only per-hop audit trail.
//
// Called by: internal/dispatch, internal/entrypoint, internal/handlerctx
// Calls: github.com/google/uuid for id generation
package envelope

import (
	"time"

	"github.com/google/uuid"
)

// MessageType declares the semantic role of an Envelope.
type MessageType int

const (
	// MessageTypeOK marks a normal, successful payload.
	MessageTypeOK MessageType = iota
	// MessageTypeError marks an envelope whose Error field is authoritative
	// and whose Payload is undefined.
	MessageTypeError
	// MessageTypeEarlyReply marks a handler-initiated reply that short-circuits
	// the remaining pipeline and answers the entrypoint directly.
	MessageTypeEarlyReply
	// MessageTypeEarlyExit marks a handler-initiated termination of the
	// request with no reply payload.
	MessageTypeEarlyExit
)

// String renders the MessageType the way log lines and test failures expect.
func (t MessageType) String() string {
	switch t {
	case MessageTypeOK:
		return "OK"
	case MessageTypeError:
		return "ERROR"
	case MessageTypeEarlyReply:
		return "EARLY_REPLY"
	case MessageTypeEarlyExit:
		return "EARLY_EXIT"
	default:
		return "UNKNOWN"
	}
}

// TrackingEntry records one hop's processing window. Tracking is append-only:
// entries are never mutated or removed once added to an Envelope.
type TrackingEntry struct {
	NodeName string    `msgpack:"node_name"`
	Start    time.Time `msgpack:"start"`
	End      time.Time `msgpack:"end"`
}

// Envelope is the sole wire object exchanged between nodes.
//
// Invariants:
//   - RequestID is preserved end-to-end within one request.
//   - FromNode is overwritten on each hop to the producing node's own name.
//   - Tracking is append-only.
//   - An envelope with MessageType == MessageTypeError has a non-empty Error
//     and an undefined Payload.
type Envelope struct {
	TrackingID  string          `msgpack:"tracking_id"`
	RequestID   string          `msgpack:"request_id"`
	FromNode    string          `msgpack:"from_node"`
	MessageType MessageType     `msgpack:"message_type"`
	Payload     TypedValue      `msgpack:"payload"`
	Error       string          `msgpack:"error,omitempty"`
	Tracking    []TrackingEntry `msgpack:"tracking"`
}

// New builds a fresh request envelope, minting a tracking id. Used by the
// entrypoint bridge when it wraps an incoming external request.
func New(fromNode string, payload TypedValue) *Envelope {
	return &Envelope{
		TrackingID:  uuid.New().String(),
		RequestID:   uuid.New().String(),
		FromNode:    fromNode,
		MessageType: MessageTypeOK,
		Payload:     payload,
		Tracking:    make([]TrackingEntry, 0, 4),
	}
}

// Reply builds a response envelope that preserves the originating
// TrackingID and RequestID (invariant 1) while stamping FromNode to the
// producing node's own name (invariant 2).
func Reply(original *Envelope, fromNode string, msgType MessageType, payload TypedValue) *Envelope {
	return &Envelope{
		TrackingID:  original.TrackingID,
		RequestID:   original.RequestID,
		FromNode:    fromNode,
		MessageType: msgType,
		Payload:     payload,
		Tracking:    cloneTracking(original.Tracking),
	}
}

// ReplyError builds an ERROR envelope preserving RequestID, per §7's
// HandlerError propagation policy: capture, publish, ack, continue.
func ReplyError(original *Envelope, fromNode, message string) *Envelope {
	return &Envelope{
		TrackingID:  original.TrackingID,
		RequestID:   original.RequestID,
		FromNode:    fromNode,
		MessageType: MessageTypeError,
		Error:       message,
		Tracking:    cloneTracking(original.Tracking),
	}
}

// AddHop appends a per-hop audit entry. Tracking is append-only: this never
// mutates or removes an existing entry.
func (e *Envelope) AddHop(nodeName string, start, end time.Time) {
	e.Tracking = append(e.Tracking, TrackingEntry{NodeName: nodeName, Start: start, End: end})
}

// IsError reports whether this envelope carries a captured handler failure.
func (e *Envelope) IsError() bool {
	return e.MessageType == MessageTypeError
}

func cloneTracking(in []TrackingEntry) []TrackingEntry {
	out := make([]TrackingEntry, len(in))
	copy(out, in)
	return out
}
