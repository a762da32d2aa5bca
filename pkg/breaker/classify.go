package breaker

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// FailureKind is the breaker-facing classification of a call failure.
// Callers map their errors onto kinds (via Config.Classify) before the
// breaker ever sees them, so the state machine stays free of transport
// or application error hierarchies.
type FailureKind string

const (
	// KindTimeout marks calls that exceeded their deadline. Always
	// counted against the breaker regardless of configuration.
	KindTimeout FailureKind = "timeout"
	// KindConnection marks connectivity failures (refused, reset, DNS).
	KindConnection FailureKind = "connection"
	// KindProtocol marks malformed or unexpected remote responses.
	KindProtocol FailureKind = "protocol"
	// KindValidation marks caller input errors. Never trips the breaker.
	KindValidation FailureKind = "validation"
	// KindCanceled marks caller-initiated cancellation. Never trips the breaker.
	KindCanceled FailureKind = "canceled"
	// KindUnknown is the fallback for unclassified errors.
	KindUnknown FailureKind = "unknown"
)

// ErrValidation is a sentinel that callers can wrap input errors with so
// DefaultClassify maps them to KindValidation.
var ErrValidation = errors.New("validation error")

// DefaultClassify maps common Go errors onto failure kinds. It recognizes
// context deadline/cancellation, net.Error, a handful of connectivity
// errnos, and the ErrValidation sentinel.
func DefaultClassify(err error) FailureKind {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrValidation):
		return KindValidation
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return KindConnection
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return KindProtocol
	case os.IsTimeout(err):
		return KindTimeout
	}

	return KindUnknown
}
