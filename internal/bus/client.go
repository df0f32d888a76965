// Package bus wraps github.com/nats-io/nats.go's JetStream API with the
// narrow surface the runtime needs: durable at-least-once subscriptions for
// nodes, a pull subscription for the entrypoint's private reply subject, and
// plain publish. nats.go types never leak past this package's boundary.
//
// Grounded on the NATS JetStream client in the retrieved pack's
// encoredev-encore natspubsub package (Client/ensureStream/AckWait/
// MaxAckPending/QueueGroup shape), adapted from its generic Topic[T] API to
// this runtime's byte-oriented envelope codec.
package bus

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DeliverPolicy selects where a consumer starts reading from its stream.
type DeliverPolicy int

const (
	// DeliverNew deliver only messages published after the consumer is
	// created — used by node input subscriptions.
	DeliverNew DeliverPolicy = iota
	// DeliverAll delivers every message retained by the stream — used by
	// the entrypoint's reply subscription, which must not miss a reply
	// published before Fetch is called.
	DeliverAll
)

func (p DeliverPolicy) toNats() nats.DeliverPolicy {
	if p == DeliverAll {
		return nats.DeliverAllPolicy
	}
	return nats.DeliverNewPolicy
}

// Client holds a connection to the bus plus its JetStream context.
type Client struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
}

// Connect dials server and obtains a JetStream context. credsFile, when
// non-empty, authenticates the connection via a NATS credentials file
// (original_source's nats_creds_file key).
func Connect(server, credsFile, name string, logger *zap.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
	}
	if credsFile != "" {
		opts = append(opts, nats.UserCredentials(credsFile))
	}

	nc, err := nats.Connect(server, opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: connect to %s: %w", server, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bus: jetstream init: %w", err)
	}

	return &Client{nc: nc, js: js, logger: logger}, nil
}

// Close drains in-flight acks/publishes before closing the connection.
// nats.Conn.Drain is asynchronous: it unsubscribes every subscription,
// flushes pending publishes, and closes the connection itself once that
// completes. An immediate Close after starting Drain would cut that
// draining short, so Close is only called here on the path where Drain
// never got a chance to run.
func (c *Client) Close() error {
	if c == nil || c.nc == nil {
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return err
	}
	return nil
}

// MaxPayload reports the server-advertised maximum message size, used by
// internal/envelope.Encode in place of DefaultMaxPayloadBytes when smaller.
func (c *Client) MaxPayload() int {
	return int(c.nc.MaxPayload())
}

// EnsureStream idempotently creates or verifies a stream covering subjects.
// name derives from (runtime_id, version_id, workflow) per spec.md §4.6.
func (c *Client) EnsureStream(name string, subjects []string) error {
	sc := &nats.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}

	if info, err := c.js.StreamInfo(name); err == nil {
		if !subjectsCover(info.Config.Subjects, subjects) {
			return fmt.Errorf("bus: existing stream %q subjects %v do not cover requested %v",
				name, info.Config.Subjects, subjects)
		}
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("bus: stream info %q: %w", name, err)
	}

	if _, err := c.js.AddStream(sc); err != nil {
		if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			info, infoErr := c.js.StreamInfo(name)
			if infoErr != nil {
				return fmt.Errorf("bus: stream info %q after name conflict: %w", name, infoErr)
			}
			if !subjectsCover(info.Config.Subjects, subjects) {
				return fmt.Errorf("bus: stream %q already exists with incompatible subjects %v (need %v)",
					name, info.Config.Subjects, subjects)
			}
			return nil
		}
		return fmt.Errorf("bus: add stream %q: %w", name, err)
	}
	return nil
}

// Publish sends raw bytes (an already-encoded envelope) on subject.
func (c *Client) Publish(subject string, data []byte) error {
	if _, err := c.js.Publish(subject, data); err != nil {
		return fmt.Errorf("bus: publish %s: %w", subject, err)
	}
	return nil
}

// Message is one delivered message. Exactly one of Ack/Nak/Term must be
// called per message; the dispatch loop enforces this (§5 "Acknowledgement
// is exactly once"). It's an interface, not the concrete Msg type below, so
// callers can substitute a fake in tests without a live NATS server.
type Message interface {
	Subject() string
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

// Msg is the production Message implementation, wrapping a delivered
// *nats.Msg.
type Msg struct {
	subject string
	data    []byte
	raw     *nats.Msg
}

func (m *Msg) Subject() string { return m.subject }
func (m *Msg) Data() []byte    { return m.data }
func (m *Msg) Ack() error      { return m.raw.Ack() }
func (m *Msg) Nak() error      { return m.raw.Nak() }
func (m *Msg) Term() error     { return m.raw.Term() }

// DurableOptions configures a push-based durable consumer.
type DurableOptions struct {
	Durable       string
	QueueGroup    string // optional; empty means no queue group
	DeliverPolicy DeliverPolicy
	AckWait       time.Duration
	MaxAckPending int // 0 defaults to 1, matching the teacher's implicit one-in-flight posture
}

// Subscription is a live push subscription; Unsubscribe tears it down.
type Subscription struct {
	sub *nats.Subscription
}

func (s *Subscription) Unsubscribe() error {
	if s == nil || s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

// SubscribeDurable starts a durable, manually-acked push subscription on
// subject, invoking handler for each delivered message. Used by node input
// subscriptions with DeliverNew.
func (c *Client) SubscribeDurable(subject string, opts DurableOptions, handler func(Message)) (*Subscription, error) {
	maxAckPending := opts.MaxAckPending
	if maxAckPending <= 0 {
		maxAckPending = 1
	}

	subOpts := []nats.SubOpt{
		nats.ManualAck(),
		nats.AckWait(opts.AckWait),
		nats.MaxAckPending(maxAckPending),
		deliverPolicyOpt(opts.DeliverPolicy),
	}
	if opts.Durable != "" {
		subOpts = append(subOpts, nats.Durable(opts.Durable))
	}

	cb := func(raw *nats.Msg) {
		handler(&Msg{subject: raw.Subject, data: raw.Data, raw: raw})
	}

	var sub *nats.Subscription
	var err error
	if opts.QueueGroup != "" {
		sub, err = c.js.QueueSubscribe(subject, opts.QueueGroup, cb, subOpts...)
	} else {
		sub, err = c.js.Subscribe(subject, cb, subOpts...)
	}
	if err != nil {
		return nil, fmt.Errorf("bus: subscribe %s: %w", subject, err)
	}
	return &Subscription{sub: sub}, nil
}

// PullSubscription is a pull-based subscription; Fetch blocks for up to
// timeout waiting for up to batch messages.
type PullSubscription struct {
	sub *nats.Subscription
}

// PullSubscriber is the pull-subscription surface entrypoint.Bridge depends
// on, kept as an interface so tests can substitute a fake without a live
// NATS server.
type PullSubscriber interface {
	Fetch(batch int, timeout time.Duration) ([]Message, error)
	Unsubscribe() error
}

// Fetch requests up to batch messages, waiting at most timeout. Used by the
// entrypoint to block on its private reply subject per call.
func (p *PullSubscription) Fetch(batch int, timeout time.Duration) ([]Message, error) {
	raws, err := p.sub.Fetch(batch, nats.MaxWait(timeout))
	if err != nil {
		return nil, err
	}
	out := make([]Message, len(raws))
	for i, raw := range raws {
		out[i] = &Msg{subject: raw.Subject, data: raw.Data, raw: raw}
	}
	return out, nil
}

func (p *PullSubscription) Unsubscribe() error {
	if p == nil || p.sub == nil {
		return nil
	}
	return p.sub.Unsubscribe()
}

// SubscribePull creates a pull-based durable consumer on subject with
// deliverPolicy, used for the entrypoint's private per-call reply subject
// (spec.md §4.6: "subscribe pull-style ... with deliver_policy=ALL").
func (c *Client) SubscribePull(subject, durable string, deliverPolicy DeliverPolicy) (PullSubscriber, error) {
	sub, err := c.js.PullSubscribe(subject, durable, deliverPolicyOpt(deliverPolicy))
	if err != nil {
		return nil, fmt.Errorf("bus: pull subscribe %s: %w", subject, err)
	}
	return &PullSubscription{sub: sub}, nil
}

func deliverPolicyOpt(p DeliverPolicy) nats.SubOpt {
	return nats.DeliverPolicy(p.toNats())
}

// subjectsCover reports whether every subject in requested is covered by
// some subject in existing, honoring NATS wildcard tokens ("*", ">") in
// existing so a literal subject is correctly recognized as covered by a
// broader wildcard filter already on the stream (e.g. "a.b.>" covers
// "a.b.c"), not just by an identical string.
func subjectsCover(existing, requested []string) bool {
	for _, r := range requested {
		covered := false
		for _, e := range existing {
			if subjectCovers(e, r) {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

// subjectCovers reports whether the NATS subject filter pattern matches
// subject, per the standard token-wise "*" (one token) / ">" (rest of
// subject, one or more tokens) wildcard rules.
func subjectCovers(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")
	for i, pt := range pTokens {
		if pt == ">" {
			return i < len(sTokens)
		}
		if i >= len(sTokens) {
			return false
		}
		if pt == "*" {
			continue
		}
		if pt != sTokens[i] {
			return false
		}
	}
	return len(pTokens) == len(sTokens)
}
