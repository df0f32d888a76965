package entrypoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/boliri/kre-runners/internal/bus"
	"github.com/boliri/kre-runners/internal/config"
	"github.com/boliri/kre-runners/internal/envelope"
	"github.com/boliri/kre-runners/internal/errs"
)

type fakeReplyMsg struct {
	data []byte
}

func (m *fakeReplyMsg) Subject() string { return "" }
func (m *fakeReplyMsg) Data() []byte    { return m.data }
func (m *fakeReplyMsg) Ack() error      { return nil }
func (m *fakeReplyMsg) Nak() error      { return nil }
func (m *fakeReplyMsg) Term() error     { return nil }

// fakePullSub hands back a single pre-seeded message on first Fetch, the
// way a fresh pull consumer delivers one reply from a prior Publish.
type fakePullSub struct {
	msg bus.Message
}

func (p *fakePullSub) Fetch(batch int, timeout time.Duration) ([]bus.Message, error) {
	if p.msg == nil {
		return nil, nil
	}
	return []bus.Message{p.msg}, nil
}

func (p *fakePullSub) Unsubscribe() error { return nil }

type publishedEnvelope struct {
	subject string
	data    []byte
}

// fakeBusClient simulates a downstream node replying on the dynamic
// tracking-id-suffixed reply subject as soon as the request is published.
// It does NOT inject the reply onto whatever subscription happened to be
// opened last: it routes by matching the subscribed subject's final
// dot-segment against the request's tracking_id, the same correlation a
// real NATS subject match would perform against Bridge.Call's
// {replyPrefix}.{tracking_id} subject. A reply delivered to a subscription
// whose subject doesn't correlate would go undelivered here exactly as it
// would go unseen on the real bus.
type fakeBusClient struct {
	streams map[string][]string

	published    []publishedEnvelope
	replyPayload func(req *envelope.Envelope) *envelope.Envelope
	pullSubs     map[string]*fakePullSub
}

func (f *fakeBusClient) EnsureStream(name string, subjects []string) error {
	if f.streams == nil {
		f.streams = map[string][]string{}
	}
	f.streams[name] = subjects
	return nil
}

func (f *fakeBusClient) MaxPayload() int { return envelope.DefaultMaxPayloadBytes }

func (f *fakeBusClient) SubscribePull(subject, durable string, deliverPolicy bus.DeliverPolicy) (bus.PullSubscriber, error) {
	if f.pullSubs == nil {
		f.pullSubs = map[string]*fakePullSub{}
	}
	sub := &fakePullSub{}
	f.pullSubs[subject] = sub
	return sub, nil
}

func (f *fakeBusClient) Publish(subject string, data []byte) error {
	f.published = append(f.published, publishedEnvelope{subject: subject, data: data})

	if f.replyPayload == nil {
		return nil
	}
	req, err := envelope.Decode(data)
	if err != nil {
		return err
	}
	reply := f.replyPayload(req)
	replyData, err := envelope.Encode(reply, 0)
	if err != nil {
		return err
	}
	for subj, sub := range f.pullSubs {
		if lastSubjectToken(subj) == req.TrackingID {
			sub.msg = &fakeReplyMsg{data: replyData}
		}
	}
	return nil
}

// lastSubjectToken returns the final dot-separated token of subject, e.g.
// "rt1-v1-echo.entrypoint.abc123" -> "abc123".
func lastSubjectToken(subject string) string {
	for i := len(subject) - 1; i >= 0; i-- {
		if subject[i] == '.' {
			return subject[i+1:]
		}
	}
	return subject
}

func newTestBridge(fb *fakeBusClient) *Bridge {
	cfg := &config.Config{RuntimeID: "rt1", KrtVersionID: "v1", RunnerName: "entrypoint"}
	return New(cfg, fb, zap.NewNop())
}

func TestBridge_Call_RoundTripsReplyPayload(t *testing.T) {
	fb := &fakeBusClient{
		replyPayload: func(req *envelope.Envelope) *envelope.Envelope {
			tv, _ := envelope.Pack("pong", "string.v1")
			return envelope.Reply(req, "node-a", envelope.MessageTypeOK, tv)
		},
	}
	b := newTestBridge(fb)
	if err := b.Start(map[string]string{"echo": "entrypoint"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	reqTV, _ := envelope.Pack("ping", "string.v1")
	replyTV, err := b.Call(context.Background(), "echo", reqTV)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	var out string
	if err := envelope.Unpack(replyTV, &out); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if out != "pong" {
		t.Errorf("reply payload = %q, want %q", out, "pong")
	}
	if len(fb.published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(fb.published))
	}
	if fb.published[0].subject != "rt1-v1-echo.entrypoint" {
		t.Errorf("published subject = %q, want %q", fb.published[0].subject, "rt1-v1-echo.entrypoint")
	}
}

func TestBridge_Call_SurfacesRemoteErrorUnchanged(t *testing.T) {
	fb := &fakeBusClient{
		replyPayload: func(req *envelope.Envelope) *envelope.Envelope {
			return envelope.ReplyError(req, "node-a", "boom")
		},
	}
	b := newTestBridge(fb)
	if err := b.Start(map[string]string{"echo": "entrypoint"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	reqTV, _ := envelope.Pack("ping", "string.v1")
	_, err := b.Call(context.Background(), "echo", reqTV)
	if err == nil {
		t.Fatal("expected an error from a reply envelope with IsError() true")
	}
	if err.Error() != "boom" {
		t.Errorf("error = %q, want %q", err.Error(), "boom")
	}
}

func TestBridge_Call_FetchTimeoutSurfacesReplyTimeout(t *testing.T) {
	fb := &fakeBusClient{} // no replyPayload: Fetch returns no message
	b := newTestBridge(fb)
	if err := b.Start(map[string]string{"echo": "entrypoint"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	reqTV, _ := envelope.Pack("ping", "string.v1")
	_, err := b.Call(context.Background(), "echo", reqTV)
	if err == nil {
		t.Fatal("expected a timeout error when no reply arrives")
	}
	if !errors.Is(err, errs.ErrReplyTimeout) {
		t.Errorf("expected errs.ErrReplyTimeout, got %v", err)
	}
}

func TestBridge_Call_SuccessiveCallsEachGetTheirOwnReply(t *testing.T) {
	// Two calls made one after the other must not cross-deliver: the first
	// call's reply subscription is still registered when the second call
	// publishes, and fakeBusClient routes by matching each publish's
	// tracking_id against the subscribed reply subject's final token, the
	// same correlation a real NATS subject match performs, so a reply only
	// ever reaches the Call that minted that subject.
	fb := &fakeBusClient{
		replyPayload: func(req *envelope.Envelope) *envelope.Envelope {
			var in string
			_ = envelope.Unpack(req.Payload, &in)
			tv, _ := envelope.Pack(in+"-pong", "string.v1")
			return envelope.Reply(req, "node-a", envelope.MessageTypeOK, tv)
		},
	}
	b := newTestBridge(fb)
	if err := b.Start(map[string]string{"echo": "entrypoint"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	req1, _ := envelope.Pack("a", "string.v1")
	reply1, err := b.Call(context.Background(), "echo", req1)
	if err != nil {
		t.Fatalf("first Call: %v", err)
	}
	req2, _ := envelope.Pack("b", "string.v1")
	reply2, err := b.Call(context.Background(), "echo", req2)
	if err != nil {
		t.Fatalf("second Call: %v", err)
	}

	var out1, out2 string
	_ = envelope.Unpack(reply1, &out1)
	_ = envelope.Unpack(reply2, &out2)
	if out1 != "a-pong" {
		t.Errorf("first reply = %q, want %q", out1, "a-pong")
	}
	if out2 != "b-pong" {
		t.Errorf("second reply = %q, want %q", out2, "b-pong")
	}
}

func TestBridge_Call_UnknownWorkflowFails(t *testing.T) {
	b := newTestBridge(&fakeBusClient{})
	_, err := b.Call(context.Background(), "missing", envelope.TypedValue{})
	if err == nil {
		t.Fatal("expected error for unknown workflow")
	}
}

func TestBridge_Start_DeclaresStreamSubjectsIncludingReplyWildcard(t *testing.T) {
	fb := &fakeBusClient{}
	b := newTestBridge(fb)
	if err := b.Start(map[string]string{"echo": ""}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	subjects := fb.streams["rt1-v1-echo"]
	want := []string{"rt1-v1-echo.entrypoint", "rt1-v1-echo.node-a", "rt1-v1-echo.entrypoint.>"}
	if len(subjects) != len(want) {
		t.Fatalf("subjects = %v, want %v", subjects, want)
	}
	for i := range want {
		if subjects[i] != want[i] {
			t.Errorf("subjects[%d] = %q, want %q", i, subjects[i], want[i])
		}
	}
}
