// Package entrypoint implements the synchronous bridge between an external
// gRPC call and the bus: wrap the request in an envelope, publish to the
// workflow's ingress subject, block for a reply, and unwrap it (or surface
// a timeout/error) back to the caller. Grounded step-for-step on
// original_source/kre-entrypoint/src/kre_grpc.py's EntrypointKRE.
//
// REDESIGN (see SPEC_FULL.md REDESIGN FLAGS #2): the original ties one
// reply subject to the runner name, so only one external call can be
// outstanding per entrypoint process at a time. This bridge instead mints a
// fresh reply subject per call, suffixed with the envelope's tracking_id,
// so concurrent external calls against one entrypoint process are safe.
package entrypoint

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/boliri/kre-runners/internal/bus"
	"github.com/boliri/kre-runners/internal/config"
	"github.com/boliri/kre-runners/internal/envelope"
	"github.com/boliri/kre-runners/internal/errs"
)

// replyTimeout is the bound on how long Call waits for a reply, per
// spec.md §4.6 step 5 ("timeout = 1000 s").
const replyTimeout = 1000 * time.Second

// busClient is the slice of *bus.Client this package depends on.
type busClient interface {
	EnsureStream(name string, subjects []string) error
	Publish(subject string, data []byte) error
	SubscribePull(subject, durable string, deliverPolicy bus.DeliverPolicy) (bus.PullSubscriber, error)
	MaxPayload() int
}

// workflowRoute holds the per-workflow subjects derived at Start.
type workflowRoute struct {
	stream          string
	ingressSubject  string
	replySubjectFmt string // fmt.Sprintf template taking tracking_id
}

// Bridge is the entrypoint's bus-facing half, one per process.
type Bridge struct {
	cfg    *config.Config
	bus    busClient
	logger *zap.Logger

	routes map[string]workflowRoute
}

// New builds a Bridge. Call Start before the first Call.
func New(cfg *config.Config, busClient busClient, logger *zap.Logger) *Bridge {
	return &Bridge{cfg: cfg, bus: busClient, logger: logger, routes: make(map[string]workflowRoute)}
}

// Start declares a stream per workflow named {runtime_id}-{version_id}-
// {workflow}, with subjects {stream}.entrypoint, {stream}.node-a, and a
// wildcard {stream}.{runner_name}.> covering this bridge's per-call reply
// subjects, per spec.md §4.6 plus the REDESIGN above.
func (b *Bridge) Start(workflows map[string]string) error {
	for workflow, ingressSuffix := range workflows {
		stream := fmt.Sprintf("%s-%s-%s", b.cfg.RuntimeID, b.cfg.KrtVersionID, workflow)
		if ingressSuffix == "" {
			ingressSuffix = "entrypoint"
		}

		replyPrefix := fmt.Sprintf("%s.%s", stream, b.cfg.RunnerName)
		subjects := []string{
			stream + ".entrypoint",
			stream + ".node-a",
			replyPrefix + ".>",
		}

		if err := b.bus.EnsureStream(stream, subjects); err != nil {
			return fmt.Errorf("%w: %w", errs.ErrSubscribeFatal, err)
		}

		b.routes[workflow] = workflowRoute{
			stream:          stream,
			ingressSubject:  stream + "." + ingressSuffix,
			replySubjectFmt: replyPrefix + ".%s",
		}

		b.logger.Info("workflow declared",
			zap.String("workflow", workflow),
			zap.String("stream", stream),
			zap.String("ingress_subject", stream+"."+ingressSuffix))
	}
	return nil
}

// Call wraps requestPayload in a fresh envelope, publishes it to workflow's
// ingress subject, and blocks for a reply (or the 1000s timeout), returning
// the reply's payload. Errors from the remote side are returned unchanged;
// the gRPC adapter (grpcsurface.go) maps them to Status.INTERNAL.
func (b *Bridge) Call(ctx context.Context, workflow string, requestPayload envelope.TypedValue) (envelope.TypedValue, error) {
	route, ok := b.routes[workflow]
	if !ok {
		return envelope.TypedValue{}, fmt.Errorf("entrypoint: unknown workflow %q", workflow)
	}

	start := time.Now()

	req := envelope.New(b.cfg.RunnerName, requestPayload)
	req.AddHop(b.cfg.RunnerName, start, time.Now())

	replySubject := fmt.Sprintf(route.replySubjectFmt, req.TrackingID)
	pullSub, err := b.bus.SubscribePull(replySubject, "reply-"+req.TrackingID, bus.DeliverAll)
	if err != nil {
		return envelope.TypedValue{}, fmt.Errorf("%w: subscribe reply subject: %w", errs.ErrSubscribeFatal, err)
	}
	defer pullSub.Unsubscribe()

	data, err := envelope.Encode(req, b.bus.MaxPayload())
	if err != nil {
		return envelope.TypedValue{}, fmt.Errorf("entrypoint: encode request: %w", err)
	}

	b.logger.Info("publishing request",
		zap.String("workflow", workflow),
		zap.String("subject", route.ingressSubject),
		zap.String("tracking_id", req.TrackingID))

	if err := b.bus.Publish(route.ingressSubject, data); err != nil {
		return envelope.TypedValue{}, fmt.Errorf("%w: %w", errs.ErrPublishError, err)
	}

	msgs, err := pullSub.Fetch(1, replyTimeout)
	if err != nil {
		return envelope.TypedValue{}, fmt.Errorf("%w: %w", errs.ErrReplyTimeout, err)
	}
	if len(msgs) == 0 {
		return envelope.TypedValue{}, errs.ErrReplyTimeout
	}
	_ = msgs[0].Ack()

	reply, err := envelope.Decode(msgs[0].Data())
	if err != nil {
		return envelope.TypedValue{}, fmt.Errorf("entrypoint: decode reply: %w", err)
	}
	if reply.IsError() {
		return envelope.TypedValue{}, fmt.Errorf("%s", reply.Error)
	}
	return reply.Payload, nil
}
