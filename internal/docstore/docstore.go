// Package docstore defines the persistent-document-store surface handed to
// handlers. It is an external-collaborator interface (spec.md §1); the
// production backend (MongoDB, per original_source's mongo_uri config key)
// is out of scope, so this package ships the interface plus two
// implementations usable without a live backend: an in-memory double for
// tests/local runs, and an HTTP-fronted client for talking to a sidecar
// storage service, adapted from the teacher's internal/storage.HTTPClient.
package docstore

import "context"

// Store is the key-value surface a handler sees, named after the teacher's
// internal/storage.Client KV operations (KVSet/KVGet/KVDelete/KVExists).
type Store interface {
	KVSet(ctx context.Context, key string, value any) error
	KVGet(ctx context.Context, key string) (any, error)
	KVDelete(ctx context.Context, key string) error
	KVExists(ctx context.Context, key string) (bool, error)
}
