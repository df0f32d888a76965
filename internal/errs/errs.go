// Package errs defines the closed set of error kinds the runtime
// distinguishes (spec.md §7), as sentinel values classified with errors.Is,
// generalizing the teacher's internal/envelope.ValidationError-as-typed-error
// pattern (GOX's own envelope package, not this repo's) to a kind table
// instead of a single error type.
package errs

import (
	"errors"
	"fmt"

	"github.com/boliri/kre-runners/internal/envelope"
)

// Sentinel errors for each row of spec.md §7's error-kind table. Callers
// wrap one of these with fmt.Errorf("...: %w", Sentinel) to attach context
// while keeping errors.Is classification working.
var (
	// ErrLoadFatal: handler module cannot be loaded.
	ErrLoadFatal = errors.New("errs: handler module load failed")
	// ErrConnectFatal: cannot reach the bus at startup.
	ErrConnectFatal = errors.New("errs: bus connect failed")
	// ErrSubscribeFatal: cannot attach a consumer.
	ErrSubscribeFatal = errors.New("errs: subscribe failed")
	// ErrHandlerError: user handler raised.
	ErrHandlerError = errors.New("errs: handler failed")
	// ErrPublishError: transient bus failure on publish.
	ErrPublishError = errors.New("errs: publish failed")
	// ErrReplyTimeout: entrypoint exceeded its reply wait.
	ErrReplyTimeout = errors.New("errs: reply timeout")
)

// Kind names one row of the error-kind table for logging/metrics.
type Kind int

const (
	KindUnknown Kind = iota
	KindLoadFatal
	KindConnectFatal
	KindSubscribeFatal
	KindHandlerError
	KindPublishError
	KindPayloadTooLarge
	KindMalformed
	KindReplyTimeout
)

func (k Kind) String() string {
	switch k {
	case KindLoadFatal:
		return "LoadFatal"
	case KindConnectFatal:
		return "ConnectFatal"
	case KindSubscribeFatal:
		return "SubscribeFatal"
	case KindHandlerError:
		return "HandlerError"
	case KindPublishError:
		return "PublishError"
	case KindPayloadTooLarge:
		return "PayloadTooLarge"
	case KindMalformed:
		return "Malformed"
	case KindReplyTimeout:
		return "ReplyTimeout"
	default:
		return "Unknown"
	}
}

// HandlerError wraps err the way original_source/kre-py/src/main.py formats
// its handler-failure string ("Error in node '%s' executing handler for
// node '%s': %s"), substituting fromNode for the upstream node name. The
// result still satisfies errors.Is(result, ErrHandlerError).
func HandlerError(fromNode string, err error) error {
	return fmt.Errorf("handler for node %q failed: %w: %w", fromNode, ErrHandlerError, err)
}

// KindOf classifies err against the sentinel table via errors.Is, including
// the envelope codec's own sentinels (envelope.ErrPayloadTooLarge,
// envelope.ErrMalformed) so every row of spec.md §7's error-kind table is
// reachable from one classifier.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrLoadFatal):
		return KindLoadFatal
	case errors.Is(err, ErrConnectFatal):
		return KindConnectFatal
	case errors.Is(err, ErrSubscribeFatal):
		return KindSubscribeFatal
	case errors.Is(err, ErrHandlerError):
		return KindHandlerError
	case errors.Is(err, ErrPublishError):
		return KindPublishError
	case errors.Is(err, envelope.ErrPayloadTooLarge):
		return KindPayloadTooLarge
	case errors.Is(err, envelope.ErrMalformed):
		return KindMalformed
	case errors.Is(err, ErrReplyTimeout):
		return KindReplyTimeout
	default:
		return KindUnknown
	}
}
