package pool

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arannis/docpool/internal/transport"
)

// fakeDialer is an in-memory transport.Dialer for exercising the pool
// without a real WebSocket server, in the style of the pack's table-driven
// fake-backend pool tests.
type fakeDialer struct {
	mu sync.Mutex

	dialCount      atomic.Int64
	dialDelay      time.Duration
	failDial       bool
	failAuth       bool
	failUse        bool
	dialErr        error
	sessions       []*fakeSession
	onDial         func()
}

func (d *fakeDialer) Dial(ctx context.Context, uri string, tlsConfig *tls.Config, connectionTimeout time.Duration) (transport.Session, error) {
	d.dialCount.Add(1)
	if d.onDial != nil {
		d.onDial()
	}
	if d.dialDelay > 0 {
		select {
		case <-time.After(d.dialDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failDial {
		if d.dialErr != nil {
			return nil, d.dialErr
		}
		return nil, errors.New("fake: dial refused")
	}

	s := &fakeSession{
		failAuth: d.failAuth,
		failUse:  d.failUse,
	}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDialer) setFailDial(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failDial = v
}

// fakeAuthError implements the transport.Fatal marker so the pool treats it
// as non-retryable, matching a real authentication failure's behavior.
type fakeAuthError struct{ msg string }

func (e *fakeAuthError) Error() string { return e.msg }
func (e *fakeAuthError) Fatal() bool   { return true }

// fakeSession is an in-memory transport.Session.
type fakeSession struct {
	mu sync.Mutex

	failAuth   bool
	failUse    bool
	failPing   bool
	closed     bool
	closeCount int
	execCount  int
	lastQuery  string
}

func (s *fakeSession) Authenticate(ctx context.Context, credentials map[string]string) error {
	if s.failAuth {
		return &fakeAuthError{msg: "fake: bad credentials"}
	}
	return nil
}

func (s *fakeSession) Use(ctx context.Context, namespace, database string) error {
	if s.failUse {
		return errors.New("fake: use failed")
	}
	return nil
}

func (s *fakeSession) Execute(ctx context.Context, statement string, params map[string]any) (transport.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execCount++
	s.lastQuery = statement
	return transport.Result{Raw: "ok"}, nil
}

func (s *fakeSession) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPing {
		return errors.New("fake: ping failed")
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeCount++
	return nil
}

func (s *fakeSession) setFailPing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPing = v
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
