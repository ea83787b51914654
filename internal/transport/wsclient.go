package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSDialer is the concrete transport.Dialer implementation, opening one
// *websocket.Conn per session and multiplexing RPC requests over it by a
// UUID string id, in the style of the pack's websocket-backed pool
// implementations (gremgo's Gremlin-over-websocket client, golift/wsp's
// client pool).
type WSDialer struct{}

// NewWSDialer returns a ready-to-use WSDialer.
func NewWSDialer() *WSDialer { return &WSDialer{} }

// Dial opens a WebSocket connection to uri and starts the session's read
// pump. It does not block on authentication or namespace selection; those
// are separate Session methods.
func (d *WSDialer) Dial(ctx context.Context, uri string, tlsConfig *tls.Config, connectionTimeout time.Duration) (Session, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: connectionTimeout,
		TLSClientConfig:  tlsConfig,
	}

	dctx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dctx, uri, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, fmt.Errorf("dial %s (http status %d): %w", uri, status, err)
	}

	s := &wsSession{
		conn:    conn,
		pending: make(map[string]chan rpcResponse),
		closed:  make(chan struct{}),
	}
	go s.readPump()
	return s, nil
}

// rpcRequest is the envelope sent for every RPC call: a correlation id, a
// method name, and positional parameters.
type rpcRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params,omitempty"`
}

// rpcResponse is the envelope the server replies with, correlated back to
// its request by ID.
type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// wsSession is one logical RPC session over a single *websocket.Conn.
type wsSession struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan rpcResponse

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

func (s *wsSession) Authenticate(ctx context.Context, credentials map[string]string) error {
	params := make([]any, 0, 1)
	if len(credentials) > 0 {
		m := make(map[string]any, len(credentials))
		for k, v := range credentials {
			m[k] = v
		}
		params = append(params, m)
	}
	_, err := s.call(ctx, "signin", params)
	if err != nil {
		return &Error{Op: "authenticate", Err: err, FatalOp: true}
	}
	return nil
}

func (s *wsSession) Use(ctx context.Context, namespace, database string) error {
	_, err := s.call(ctx, "use", []any{namespace, database})
	if err != nil {
		return &Error{Op: "use", Err: err, FatalOp: false}
	}
	return nil
}

func (s *wsSession) Execute(ctx context.Context, statement string, params map[string]any) (Result, error) {
	resp, err := s.call(ctx, "query", []any{statement, params})
	if err != nil {
		return Result{}, err
	}
	return Result{Raw: resp}, nil
}

func (s *wsSession) Ping(ctx context.Context) error {
	_, err := s.call(ctx, "version", nil)
	if err != nil {
		return &Error{Op: "ping", Err: err, FatalOp: true}
	}
	return nil
}

func (s *wsSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// call sends one RPC request and waits for its correlated response, the
// request's context deadline, or session close, whichever comes first.
func (s *wsSession) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	id := uuid.NewString()
	ch := make(chan rpcResponse, 1)

	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	req := rpcRequest{ID: id, Method: method, Params: params}

	s.writeMu.Lock()
	err := s.conn.WriteJSON(req)
	s.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("writing %s request: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("rpc %s failed (code %d): %s", method, resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, fmt.Errorf("session closed while awaiting %s response", method)
	}
}

// readPump demultiplexes incoming responses to their waiting caller by id.
// It runs for the lifetime of the session and is the only goroutine that
// reads from conn, per gorilla/websocket's single-reader requirement.
func (s *wsSession) readPump() {
	for {
		var resp rpcResponse
		if err := s.conn.ReadJSON(&resp); err != nil {
			s.failAllPending(err)
			return
		}

		s.mu.Lock()
		ch, ok := s.pending[resp.ID]
		s.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// failAllPending delivers a synthetic error response to every still-pending
// call when the read loop terminates (connection closed or broken).
func (s *wsSession) failAllPending(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.pending {
		ch <- rpcResponse{ID: id, Error: &rpcError{Code: -1, Message: err.Error()}}
	}
}
