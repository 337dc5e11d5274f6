// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package server serves the session protocol of package wire for one
// instance. A Server is bound to one listener kind: IPC sessions
// arrive on a Unix socket and may use the shared-memory blob actions;
// RPC sessions arrive over TCP and move blob contents as payloads.
//
// Each connection is a session. Requests are handled one at a time in
// arrival order; the first must be register. When a session ends, the
// builders it left open are aborted.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/BSWANG/v6d/lib/auth"
	"github.com/BSWANG/v6d/lib/cluster"
	"github.com/BSWANG/v6d/lib/instance"
	"github.com/BSWANG/v6d/lib/netutil"
	"github.com/BSWANG/v6d/lib/storeerr"
	"github.com/BSWANG/v6d/lib/wire"
)

// writeTimeout bounds writing one response.
const writeTimeout = 30 * time.Second

// Config assembles a server.
type Config struct {
	Kind     wire.SessionKind
	Instance *instance.Instance
	// Users enables authentication when non-empty.
	Users auth.Users
	// Registry is set when this instance hosts the cluster registry;
	// the cluster_* actions are served only then.
	Registry *cluster.Memory
	// Version is reported to clients in register.
	Version string
	// IPCSocket and RPCEndpoint are advertised in register.
	IPCSocket   string
	RPCEndpoint string
	// DefaultCompression applies to sessions that do not ask for a
	// payload compression in register.
	DefaultCompression wire.Compression
	// MaxMessageSize bounds request frames; zero means
	// wire.DefaultMaxMessageSize.
	MaxMessageSize int64
	Logger         *slog.Logger
}

// handlerFunc processes one action. The returned value, when non-nil,
// becomes the response data.
type handlerFunc func(ctx context.Context, session *session, request *wire.Request) (any, error)

// Server serves sessions for one instance on one listener.
type Server struct {
	config   Config
	handlers map[string]handlerFunc
	ipcOnly  map[string]bool
	// blocking marks actions whose handlers may wait indefinitely;
	// they run under a context cancelled when the peer hangs up.
	blocking map[string]bool
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	// activeConnections tracks session goroutines so Serve can wait
	// for them to finish.
	activeConnections sync.WaitGroup
}

// New creates a server. Actions are registered here; Serve starts
// accepting sessions.
func New(config Config) *Server {
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = wire.DefaultMaxMessageSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	s := &Server{
		config:   config,
		handlers: make(map[string]handlerFunc),
		ipcOnly:  make(map[string]bool),
		blocking: make(map[string]bool),
		logger:   config.Logger.With("listener", string(config.Kind)),
		conns:    make(map[net.Conn]struct{}),
	}
	s.registerHandlers()
	return s
}

// handle registers a handler. Panics on a duplicate action.
func (s *Server) handle(action string, handler handlerFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("server: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// handleIPC registers a handler that only IPC sessions may call.
func (s *Server) handleIPC(action string, handler handlerFunc) {
	s.handle(action, handler)
	s.ipcOnly[action] = true
}

// handleBlocking registers a handler that may wait for other sessions.
func (s *Server) handleBlocking(action string, handler handlerFunc) {
	s.handle(action, handler)
	s.blocking[action] = true
}

// Listen opens the listener for kind. A stale Unix socket file at
// address is removed first.
func Listen(kind wire.SessionKind, address string) (net.Listener, error) {
	switch kind {
	case wire.IPC:
		if err := os.Remove(address); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale socket %s: %w", address, err)
		}
		listener, err := net.Listen("unix", address)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", address, err)
		}
		return listener, nil
	case wire.RPC:
		listener, err := net.Listen("tcp", address)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", address, err)
		}
		return listener, nil
	default:
		return nil, fmt.Errorf("unknown listener kind %q", kind)
	}
}

// Serve accepts sessions on listener until ctx is cancelled, then stops
// accepting, lets in-flight requests finish, ends idle sessions and
// waits for every session to close. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	defer listener.Close()

	// Unblock Accept and idle sessions when the context is cancelled.
	stop := context.AfterFunc(ctx, func() {
		listener.Close()
		s.mu.Lock()
		defer s.mu.Unlock()
		for conn := range s.conns {
			conn.SetReadDeadline(time.Now())
		}
	})
	defer stop()

	s.logger.Info("session server listening", "address", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// session is the server-side state of one connection.
type session struct {
	instance.Session
	registered  bool
	compression wire.Compression
}

// handleConnection serves one session until the client disconnects or
// the server shuts down.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	state := &session{}
	reader := &connReader{conn: conn}
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		if state.registered {
			s.config.Instance.CloseSession(state.Session)
			s.logger.Debug("session closed", "session", state.ID)
		}
	}()

	for ctx.Err() == nil {
		frame, err := wire.ReadFrame(reader, s.config.MaxMessageSize)
		if err != nil {
			if !netutil.IsExpectedCloseError(err) && ctx.Err() == nil {
				s.logger.Info("reading request failed", "session", state.ID, "error", err)
			}
			return
		}
		response := s.dispatch(ctx, state, reader, frame)
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := wire.WriteMessage(conn, response); err != nil {
			if !netutil.IsExpectedCloseError(err) {
				s.logger.Info("writing response failed", "session", state.ID, "error", err)
			}
			return
		}
	}
}

// dispatch decodes one request frame and runs its handler.
func (s *Server) dispatch(ctx context.Context, state *session, reader *connReader, frame []byte) wire.Response {
	var request wire.Request
	if err := wire.UnmarshalRequest(frame, &request); err != nil {
		return wire.Failure(err)
	}
	if request.Action == "" {
		return wire.Failure(storeerr.New(storeerr.InvalidArgument, "missing required field: action"))
	}
	handler, exists := s.handlers[request.Action]
	if !exists {
		return wire.Failure(storeerr.New(storeerr.InvalidArgument, "unknown action %q", request.Action))
	}
	if !state.registered && request.Action != wire.ActionRegister {
		return wire.Failure(storeerr.New(storeerr.Unauthenticated, "session must register before %s", request.Action))
	}
	if s.ipcOnly[request.Action] && s.config.Kind != wire.IPC {
		return wire.Failure(storeerr.New(storeerr.InvalidArgument, "%s is only available over IPC", request.Action))
	}

	if s.blocking[request.Action] {
		watched, stop := reader.watch(ctx)
		defer stop()
		ctx = watched
	}
	result, err := handler(ctx, state, &request)
	if err != nil {
		s.logger.Debug("action failed",
			"action", request.Action,
			"session", state.ID,
			"error", err,
		)
		return wire.Failure(err)
	}
	response, err := wire.Success(result)
	if err != nil {
		return wire.Failure(storeerr.New(storeerr.Internal, "%v", err))
	}
	return response
}
