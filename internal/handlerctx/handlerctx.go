// Package handlerctx builds the per-request façade passed to handler code:
// logger, config snapshot, document store, metrics sink, and the three
// reply primitives. Grounded on original_source/kre-py/src/context.py's
// HandlerContext and kre-py/src/main.py's shallow-copy-per-message pattern
// ("ctx = copy.copy(self.handler_ctx); ctx.set_request_msg(request_msg)").
package handlerctx

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/boliri/kre-runners/internal/config"
	"github.com/boliri/kre-runners/internal/docstore"
	"github.com/boliri/kre-runners/internal/envelope"
	"github.com/boliri/kre-runners/internal/metrics"
)

// busPublisher is the narrow slice of *bus.Client this package depends on,
// kept as an interface so tests can substitute a fake without a live NATS
// connection.
type busPublisher interface {
	Publish(subject string, data []byte) error
	MaxPayload() int
}

// Context is the façade handed to every handler invocation. The base
// Context is built once at startup; WithEnvelope returns a shallow copy
// carrying the current message, so concurrent invocations never share
// mutable per-request state.
type Context struct {
	Config  *config.Config
	Store   docstore.Store
	Metrics metrics.Sink
	Logger  *zap.Logger

	bus      busPublisher
	nodeName string
	env      *envelope.Envelope
}

// New builds the base Context shared across every message this node
// dispatches. busClient is typically a *bus.Client.
func New(cfg *config.Config, busClient busPublisher, store docstore.Store, sink metrics.Sink, logger *zap.Logger) *Context {
	return &Context{
		Config:   cfg,
		Store:    store,
		Metrics:  sink,
		Logger:   logger,
		bus:      busClient,
		nodeName: cfg.KrtNodeName,
	}
}

// WithEnvelope returns a shallow copy of c carrying env as the current
// request, with Logger enriched with correlating fields — the Go analogue
// of the Python runner's per-message copy.copy(self.handler_ctx).
func (c *Context) WithEnvelope(env *envelope.Envelope) *Context {
	clone := *c
	clone.env = env
	clone.Logger = c.Logger.With(
		zap.String("request_id", env.RequestID),
		zap.String("tracking_id", env.TrackingID),
	)
	return &clone
}

// TrackingID returns the current request's tracking_id, or "" outside a
// WithEnvelope-cloned Context. Handlers that reply on a channel the
// entrypoint bridge correlates on (see internal/entrypoint.Bridge) use this
// to pick that channel: ctx.PublishTyped(payload, typeURL, ctx.TrackingID()).
func (c *Context) TrackingID() string {
	if c.env == nil {
		return ""
	}
	return c.env.TrackingID
}

// RequestID returns the current request's request_id, or "" outside a
// WithEnvelope-cloned Context.
func (c *Context) RequestID() string {
	if c.env == nil {
		return ""
	}
	return c.env.RequestID
}

// CurrentEnvelope returns the envelope this Context is currently replying
// to, or nil outside a WithEnvelope-cloned Context. Handlers should prefer
// TrackingID/RequestID for routing decisions; this is for the rarer case
// that needs the full envelope (e.g. inspecting prior hops).
func (c *Context) CurrentEnvelope() *envelope.Envelope {
	return c.env
}

// PublishTyped packs payload under typeURL and publishes it as an OK
// envelope replying to the current request, on output (or output.channel
// when channel is non-empty).
func (c *Context) PublishTyped(payload any, typeURL, channel string) error {
	tv, err := envelope.Pack(payload, typeURL)
	if err != nil {
		return fmt.Errorf("handlerctx: pack payload: %w", err)
	}
	return c.PublishAny(tv, channel)
}

// PublishAny republishes an already-wrapped opaque payload unchanged, as an
// OK envelope replying to the current request.
func (c *Context) PublishAny(payload envelope.TypedValue, channel string) error {
	if c.env == nil {
		return fmt.Errorf("handlerctx: no current envelope to reply to")
	}
	resp := envelope.Reply(c.env, c.nodeName, envelope.MessageTypeOK, payload)
	return c.publish(resp, channel)
}

// PublishError emits an ERROR envelope carrying message, replying to the
// current request.
func (c *Context) PublishError(message, channel string) error {
	if c.env == nil {
		return fmt.Errorf("handlerctx: no current envelope to reply to")
	}
	resp := envelope.ReplyError(c.env, c.nodeName, message)
	return c.publish(resp, channel)
}

func (c *Context) publish(resp *envelope.Envelope, channel string) error {
	data, err := envelope.Encode(resp, c.bus.MaxPayload())
	if err != nil {
		return fmt.Errorf("handlerctx: encode response: %w", err)
	}
	subject := c.Config.OutputSubject(channel)
	if err := c.bus.Publish(subject, data); err != nil {
		return fmt.Errorf("handlerctx: publish to %s: %w", subject, err)
	}
	return nil
}
