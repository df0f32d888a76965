package docstore

import (
	"context"
	"testing"
)

func TestMemoryStore_SetGetDeleteExists(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if exists, err := s.KVExists(ctx, "k"); err != nil || exists {
		t.Fatalf("KVExists before set = (%v, %v), want (false, nil)", exists, err)
	}

	if err := s.KVSet(ctx, "k", "v"); err != nil {
		t.Fatalf("KVSet: %v", err)
	}

	v, err := s.KVGet(ctx, "k")
	if err != nil {
		t.Fatalf("KVGet: %v", err)
	}
	if v != "v" {
		t.Errorf("KVGet = %v, want %q", v, "v")
	}

	if exists, err := s.KVExists(ctx, "k"); err != nil || !exists {
		t.Fatalf("KVExists after set = (%v, %v), want (true, nil)", exists, err)
	}

	if err := s.KVDelete(ctx, "k"); err != nil {
		t.Fatalf("KVDelete: %v", err)
	}

	if _, err := s.KVGet(ctx, "k"); err == nil {
		t.Fatal("expected KVGet to fail after delete")
	}
}
