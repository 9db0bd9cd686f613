// Package server accepts TCP connections and dispatches key-value
// requests to the storage engine on a worker pool. Each connection
// carries one request and one response.
package server

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/jassi-singh/ember-kv/internal/engine"
	"github.com/jassi-singh/ember-kv/internal/pool"
	"github.com/jassi-singh/ember-kv/internal/protocol"
)

// Server glues the TCP listener, the worker pool, and the engine together.
type Server struct {
	engine   engine.Engine
	pool     pool.Pool
	listener net.Listener
	closed   atomic.Bool
}

// New builds a server around an engine and a worker pool. The caller
// retains ownership of the engine; Close shuts down the listener and the
// pool but leaves the engine open.
func New(e engine.Engine, p pool.Pool) *Server {
	return &Server{engine: e, pool: p}
}

// Listen binds the server to addr.
func (s *Server) Listen(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	slog.Info("server: listening",
		"addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address. Valid after Listen.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve accepts connections until Close is called. Each accepted
// connection becomes one job on the worker pool.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		s.pool.Spawn(func() {
			s.handle(conn)
		})
	}
}

// handle processes a single connection: decode one request, dispatch it
// to the engine, write the response envelope, close. Parse failures log
// and close without responding.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	req, err := protocol.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		slog.Warn("server: failed to parse request",
			"remote", conn.RemoteAddr().String(),
			"error", err)
		return
	}

	resp := s.dispatch(req)
	if err := protocol.WriteResponse(conn, resp); err != nil {
		slog.Error("server: failed to write response",
			"remote", conn.RemoteAddr().String(),
			"error", err)
		return
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			slog.Debug("server: failed to close write half",
				"error", err)
		}
	}
}

// dispatch runs one request against the engine and wraps the outcome in
// a response envelope. Engine errors travel inside the envelope.
func (s *Server) dispatch(req protocol.Request) protocol.Response {
	switch req.Op {
	case protocol.OpSet:
		if err := s.engine.Set(req.Key, req.Value); err != nil {
			slog.Error("server: set failed",
				"key", req.Key,
				"error", err)
			return protocol.Response{Err: protocol.KindOf(err)}
		}
		return protocol.Response{}

	case protocol.OpGet:
		value, found, err := s.engine.Get(req.Key)
		if err != nil {
			slog.Error("server: get failed",
				"key", req.Key,
				"error", err)
			return protocol.Response{Err: protocol.KindOf(err)}
		}
		if !found {
			return protocol.Response{}
		}
		return protocol.Response{Value: &value, Found: true}

	case protocol.OpRm:
		if err := s.engine.Remove(req.Key); err != nil {
			if !errors.Is(err, engine.ErrNonExistentKey) {
				slog.Error("server: remove failed",
					"key", req.Key,
					"error", err)
			}
			return protocol.Response{Err: protocol.KindOf(err)}
		}
		return protocol.Response{}

	default:
		slog.Warn("server: unknown operation",
			"op", req.Op)
		return protocol.Response{Err: protocol.KindOther}
	}
}

// Close stops accepting connections and shuts the worker pool down,
// waiting for in-flight requests.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.pool.Shutdown()
	slog.Info("server: shut down")
	return err
}
