// Package transport defines the driver contract the pool consumes to open
// and use sessions against a document/graph database reachable over a
// WebSocket-based RPC protocol, and provides one concrete implementation of
// that contract over github.com/gorilla/websocket.
package transport

import (
	"context"
	"crypto/tls"
	"time"
)

// Result is the opaque outcome of a single RPC call.
type Result struct {
	Raw any
}

// Session is one live transport session. A session is used by at most one
// caller at a time; the pool enforces this, not the session itself.
type Session interface {
	// Authenticate performs the RPC protocol's sign-in exchange.
	Authenticate(ctx context.Context, credentials map[string]string) error
	// Use selects a namespace/database for subsequent Execute calls.
	Use(ctx context.Context, namespace, database string) error
	// Execute runs one RPC statement and returns its result.
	Execute(ctx context.Context, statement string, params map[string]any) (Result, error)
	// Ping performs a lightweight round trip used by the health maintainer
	// to verify liveness, bounded by ctx.
	Ping(ctx context.Context) error
	// Close terminates the session. It is idempotent and best-effort.
	Close() error
}

// Dialer opens new sessions. pool.Pool depends on this interface, not on any
// concrete transport, so tests can substitute a fake.
type Dialer interface {
	Dial(ctx context.Context, uri string, tlsConfig *tls.Config, connectionTimeout time.Duration) (Session, error)
}

// Error wraps a transport-level failure with a Fatal flag distinguishing a
// broken session from an ordinary query-level error. The pool consults the
// flag only while constructing a connection, where a fatal Authenticate
// error is not retried; it does not inspect errors from Execute.
type Error struct {
	Op      string
	Err     error
	FatalOp bool
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether the underlying session is no longer usable.
func (e *Error) Fatal() bool { return e.FatalOp }

// Fatal reports whether err indicates the session it came from is no longer
// usable. Errors that don't implement the marker interface are treated as
// ordinary (non-fatal) query errors.
func Fatal(err error) bool {
	type fataler interface{ Fatal() bool }
	if f, ok := err.(fataler); ok {
		return f.Fatal()
	}
	return false
}
