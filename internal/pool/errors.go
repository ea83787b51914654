package pool

import (
	"errors"
	"fmt"
)

// Sentinel errors callers can match against with errors.Is. Wrap with
// fmt.Errorf and %w so the chain stays intact.
var (
	// ErrConfigurationInvalid is raised at construction only.
	ErrConfigurationInvalid = errors.New("docpool: configuration invalid")

	// ErrConnectionCreateFailed is surfaced when the transport fails to
	// establish a session after exhausting the retry policy.
	ErrConnectionCreateFailed = errors.New("docpool: connection create failed")

	// ErrAuthenticationFailed is a specialization of ErrConnectionCreateFailed
	// for authentication failures; it is never retried.
	ErrAuthenticationFailed = errors.New("docpool: authentication failed")

	// ErrAcquireTimeout is returned when a waiter's deadline is reached
	// before a connection becomes available.
	ErrAcquireTimeout = errors.New("docpool: acquire timeout")

	// ErrPoolClosed is returned by any operation after Close, except Close
	// itself.
	ErrPoolClosed = errors.New("docpool: pool closed")

	// errProbeFailed is internal: it causes retirement and never surfaces to
	// callers.
	errProbeFailed = errors.New("docpool: health probe failed")
)

// configError wraps ErrConfigurationInvalid with a message.
func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfigurationInvalid, fmt.Sprintf(format, args...))
}

// createError wraps ErrConnectionCreateFailed with the underlying transport
// error, preserving ErrAuthenticationFailed when the transport marks the
// failure as an authentication failure.
func createError(poolName string, cause error) error {
	if errors.Is(cause, ErrAuthenticationFailed) {
		return fmt.Errorf("pool %s: %w: %v", poolName, ErrAuthenticationFailed, cause)
	}
	return fmt.Errorf("pool %s: %w: %v", poolName, ErrConnectionCreateFailed, cause)
}
