// Package dispatch implements the node runner's per-message dispatch loop:
// subscribe, decode, clone context, resolve handler, invoke, capture
// failures as ERROR envelopes, emit a node_elapsed_time metric, and
// acknowledge exactly once. Grounded step-for-step on
// original_source/kre-py/src/main.py's NodeRunner.process_messages and
// create_message_cb.
package dispatch

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/boliri/kre-runners/internal/bus"
	"github.com/boliri/kre-runners/internal/config"
	"github.com/boliri/kre-runners/internal/envelope"
	"github.com/boliri/kre-runners/internal/errs"
	"github.com/boliri/kre-runners/internal/handlerctx"
	"github.com/boliri/kre-runners/internal/lifecycle"
	"github.com/boliri/kre-runners/internal/registry"
)

// ackWait is preserved verbatim from spec.md §6/Design Notes §9: 22 hours,
// chosen to tolerate long-running handlers without spurious redelivery.
const ackWait = 22 * time.Hour

// busSubscriber is the slice of *bus.Client the loop depends on, kept as an
// interface so tests can substitute a fake bus without a live NATS server.
type busSubscriber interface {
	SubscribeDurable(subject string, opts bus.DurableOptions, handler func(bus.Message)) (*bus.Subscription, error)
}

// Loop runs the dispatch loop for one node: one durable subscription per
// configured input subject, each invoking the resolved handler and
// publishing results through the shared handler context.
type Loop struct {
	cfg      *config.Config
	bus      busSubscriber
	registry *registry.Registry
	baseCtx  *handlerctx.Context
	logger   *zap.Logger
	tracker  *lifecycle.Tracker

	mu   sync.Mutex
	subs []*bus.Subscription
	wg   sync.WaitGroup
}

// New builds a Loop. baseCtx is the shared, not-yet-per-request handler
// context; it is shallow-cloned for every delivered message.
func New(cfg *config.Config, busClient busSubscriber, reg *registry.Registry, baseCtx *handlerctx.Context, logger *zap.Logger, tracker *lifecycle.Tracker) *Loop {
	return &Loop{cfg: cfg, bus: busClient, registry: reg, baseCtx: baseCtx, logger: logger, tracker: tracker}
}

// Start subscribes to every configured input subject. On subscribe failure
// it returns an error wrapping errs.ErrSubscribeFatal; the caller (cmd/node)
// treats that as a fatal startup error per spec.md §7.
func (l *Loop) Start() error {
	l.tracker.Set(lifecycle.Subscribing)

	for _, subject := range l.cfg.NatsInputs {
		queue := durableName(subject, l.cfg.KrtNodeName)

		opts := bus.DurableOptions{
			Durable:       queue,
			QueueGroup:    queue,
			DeliverPolicy: bus.DeliverNew,
			AckWait:       ackWait,
			MaxAckPending: 1,
		}

		sub, err := l.bus.SubscribeDurable(subject, opts, l.handleMessage)
		if err != nil {
			return fmt.Errorf("%w: %w", errs.ErrSubscribeFatal, err)
		}

		l.mu.Lock()
		l.subs = append(l.subs, sub)
		l.mu.Unlock()

		l.logger.Info("listening", zap.String("subject", subject), zap.String("queue_group", queue))
	}

	l.tracker.Set(lifecycle.Ready)
	return nil
}

// Stop unsubscribes from every input subject and waits for in-flight
// handlers to finish, matching §5's "drain in-flight goroutines before
// closing the bus connection" cancellation behavior.
func (l *Loop) Stop() {
	l.tracker.Set(lifecycle.Stopping)

	l.mu.Lock()
	subs := l.subs
	l.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			l.logger.Error("unsubscribe failed", zap.Error(err))
		}
	}

	l.wg.Wait()
	l.tracker.Set(lifecycle.Stopped)
}

// handleMessage is the per-message callback: steps 1-8 of spec.md §4.5 (step
// 9, the allocator hint, is dropped per REDESIGN FLAGS).
func (l *Loop) handleMessage(msg bus.Message) {
	l.wg.Add(1)
	defer l.wg.Done()

	start := time.Now()

	env, err := envelope.Decode(msg.Data())
	if err != nil {
		l.logger.Error("malformed envelope, dropping", zap.String("subject", msg.Subject()), zap.Error(err))
		_ = msg.Ack()
		return
	}

	l.logger.Info("received message",
		zap.String("subject", msg.Subject()),
		zap.String("request_id", env.RequestID),
		zap.String("from_node", env.FromNode))

	ctx := l.baseCtx.WithEnvelope(env)

	handler, err := l.registry.GetHandler(env.FromNode)
	if err != nil {
		l.logger.Error("no handler resolved", zap.String("from_node", env.FromNode), zap.Error(err))
		_ = msg.Ack()
		return
	}

	handlerErr := handler(ctx, env.Payload)
	success := handlerErr == nil
	end := time.Now()

	if !success {
		wrapped := errs.HandlerError(env.FromNode, handlerErr)
		l.logger.Error("handler failed", zap.String("from_node", env.FromNode), zap.Error(wrapped))
		if pubErr := ctx.PublishError(wrapped.Error(), ""); pubErr != nil {
			l.logger.Error("failed to publish error envelope", zap.Error(pubErr))
		}
	}

	l.baseCtx.Metrics.Save("node_elapsed_time",
		map[string]any{
			"elapsed_ms": end.Sub(start).Seconds() * 1000,
			"success":    success,
		},
		map[string]string{"from_node": env.FromNode},
	)

	l.logger.Info("message processed",
		zap.String("request_id", env.RequestID),
		zap.String("from_node", env.FromNode),
		zap.Bool("success", success))

	_ = msg.Ack()
}

// durableName derives the consumer/queue-group name from subject and
// nodeName: "input-subject-with-dots-as-dashes" + "-" + node_name, per
// spec.md §6's Consumer parameters.
func durableName(subject, nodeName string) string {
	return strings.ReplaceAll(subject, ".", "-") + "-" + nodeName
}

