package bus

import (
	"testing"

	"github.com/nats-io/nats.go"
)

func TestSubjectsCover(t *testing.T) {
	cases := []struct {
		name      string
		existing  []string
		requested []string
		want      bool
	}{
		{"exact match", []string{"a.entrypoint", "a.node-a"}, []string{"a.entrypoint", "a.node-a"}, true},
		{"superset", []string{"a.entrypoint", "a.node-a", "a.node-b"}, []string{"a.entrypoint"}, true},
		{"missing subject", []string{"a.entrypoint"}, []string{"a.entrypoint", "a.node-a"}, false},
		{"empty requested", []string{"a.entrypoint"}, nil, true},
		{"wildcard covers literal suffix", []string{"a.entrypoint", "a.runner.>"}, []string{"a.runner.tid-1"}, true},
		{"wildcard requires at least one token", []string{"a.runner.>"}, []string{"a.runner"}, false},
		{"star covers single token", []string{"a.*.c"}, []string{"a.b.c"}, true},
		{"star does not cover multiple tokens", []string{"a.*.c"}, []string{"a.b.d.c"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := subjectsCover(tc.existing, tc.requested); got != tc.want {
				t.Errorf("subjectsCover(%v, %v) = %v, want %v", tc.existing, tc.requested, got, tc.want)
			}
		})
	}
}

func TestDeliverPolicy_ToNats(t *testing.T) {
	if DeliverNew.toNats() != nats.DeliverNewPolicy {
		t.Errorf("DeliverNew should map to nats.DeliverNewPolicy")
	}
	if DeliverAll.toNats() != nats.DeliverAllPolicy {
		t.Errorf("DeliverAll should map to nats.DeliverAllPolicy")
	}
}
