package transport

import (
	"context"
	"fmt"

	"github.com/teosibileau/grillgauge/internal/errors"
)

// Kind classifies a transport failure. Sessions converge every kind to
// the same reconnect transition; the kind only feeds log detail.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindDeviceUnavailable
	KindPermissionDenied
	KindProtocol
	KindSubscription
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindDeviceUnavailable:
		return "device_unavailable"
	case KindPermissionDenied:
		return "permission_denied"
	case KindProtocol:
		return "protocol_error"
	case KindSubscription:
		return "subscription_failure"
	default:
		return "unknown"
	}
}

// Error is the failure type returned by every Device operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err as a transport failure of the given kind.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the failure kind from err. Context deadline errors
// count as timeouts even when they escaped unwrapped.
func KindOf(err error) Kind {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}
