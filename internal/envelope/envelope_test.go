package envelope

import (
	"testing"
	"time"
)

func TestReply_PreservesRequestIDAndStampsFromNode(t *testing.T) {
	payload, err := Pack(map[string]string{"greeting": "hi"}, "greeting.v1")
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	req := New("entrypoint", payload)

	resp := Reply(req, "node-a", MessageTypeOK, payload)

	if resp.RequestID != req.RequestID {
		t.Errorf("RequestID not preserved: got %q, want %q", resp.RequestID, req.RequestID)
	}
	if resp.TrackingID != req.TrackingID {
		t.Errorf("TrackingID not preserved: got %q, want %q", resp.TrackingID, req.TrackingID)
	}
	if resp.FromNode != "node-a" {
		t.Errorf("FromNode = %q, want %q", resp.FromNode, "node-a")
	}
}

func TestReplyError_SetsErrorAndMessageType(t *testing.T) {
	payload, _ := Pack("x", "string.v1")
	req := New("entrypoint", payload)

	errEnv := ReplyError(req, "node-a", "boom")

	if !errEnv.IsError() {
		t.Fatalf("expected IsError() true")
	}
	if errEnv.Error != "boom" {
		t.Errorf("Error = %q, want %q", errEnv.Error, "boom")
	}
	if errEnv.RequestID != req.RequestID {
		t.Errorf("RequestID not preserved on error envelope")
	}
}

func TestAddHop_AppendsWithoutMutatingExisting(t *testing.T) {
	payload, _ := Pack("x", "string.v1")
	env := New("entrypoint", payload)

	base := time.Unix(1700000000, 0)

	env.AddHop("node-a", base, base.Add(time.Millisecond))
	if len(env.Tracking) != 1 {
		t.Fatalf("expected 1 tracking entry, got %d", len(env.Tracking))
	}
	first := env.Tracking[0]

	env.AddHop("node-b", base.Add(time.Second), base.Add(2*time.Second))
	if len(env.Tracking) != 2 {
		t.Fatalf("expected 2 tracking entries, got %d", len(env.Tracking))
	}
	if env.Tracking[0] != first {
		t.Errorf("existing tracking entry was mutated by AddHop")
	}
}

func TestPackUnpack_RoundTrips(t *testing.T) {
	type greeting struct {
		Text string `msgpack:"text"`
	}
	tv, err := Pack(greeting{Text: "hi, nodeA"}, "greeting.v1")
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	var out greeting
	if err := Unpack(tv, &out); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if out.Text != "hi, nodeA" {
		t.Errorf("round-tripped text = %q, want %q", out.Text, "hi, nodeA")
	}
}
