// Package registry loads and resolves handler code for a node runner.
//
// Handlers are user-supplied Go code compiled as a Go plugin (-buildmode=
// plugin), grounded on original_source/kre-py/src/main.py's load_handler,
// which dynamically imports a Python module via importlib.util and looks up
// three well-known symbols. The Go equivalent trades importlib's arbitrary
// module-level execution for plugin.Open's symbol lookup against a .so
// built ahead of time, since Go has no runtime source-eval story.
package registry

import (
	"fmt"

	"github.com/boliri/kre-runners/internal/envelope"
	"github.com/boliri/kre-runners/internal/handlerctx"
)

// Handler processes one message's payload. ctx is the per-request façade
// (logger, store, metrics, reply primitives) already bound to the current
// envelope; payload is the opaque typed value the handler unpacks itself
// once it knows the expected Go type for payload.TypeURL.
type Handler func(ctx *handlerctx.Context, payload envelope.TypedValue) error

// Initializer runs once at startup, before any message is dispatched, with
// the base (not yet per-request) handler context.
type Initializer func(ctx *handlerctx.Context) error

// Registry resolves the handler to invoke for a given from_node (the node
// that produced the message being dispatched), matching
// HandlerManager.get_handler's dispatch-by-sender semantics.
type Registry struct {
	Default Handler
	Custom  map[string]Handler
	Init    Initializer
}

// ErrNoHandler is returned by GetHandler when neither a custom handler for
// the sender nor a default handler is registered.
var ErrNoHandler = fmt.Errorf("registry: no handler registered")

// GetHandler resolves the handler for messages produced by fromNode: a
// custom handler registered under that name takes precedence, falling back
// to Default, per HandlerManager.get_handler.
func (r *Registry) GetHandler(fromNode string) (Handler, error) {
	if r.Custom != nil {
		if h, ok := r.Custom[fromNode]; ok {
			return h, nil
		}
	}
	if r.Default != nil {
		return r.Default, nil
	}
	return nil, fmt.Errorf("%w for from_node %q", ErrNoHandler, fromNode)
}
