// Package ipcserver runs the Unix domain socket accept loop and the
// per-client message pump. It knows nothing about sessions/panes; it hands
// every decoded envelope to a Router and forwards the router's result back
// to the client and/or the registry (spec §4.4).
package ipcserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"syscall"

	"github.com/fxamacker/cbor/v2"
	"github.com/ianremillard/ccmuxd/internal/model"
	"github.com/ianremillard/ccmuxd/internal/registry"
	"github.com/ianremillard/ccmuxd/internal/wire"
)

// Router decodes and executes one client request, returning what to send
// back. Implemented by internal/router.
type Router interface {
	Handle(clientID string, env wire.Envelope) RouterResult
	OnDisconnect(clientID string)
}

// ResultKind discriminates RouterResult's sum-type payload.
type ResultKind int

const (
	// NoResponse: the request needs no reply (e.g. Input or Detach).
	NoResponse ResultKind = iota
	// Response: send Type/Payload back to the requesting client only.
	Response
	// ResponseWithBroadcast: send the response to the requester, then
	// BroadcastSessionID/BroadcastType/BroadcastPayload to every other
	// client attached to that session.
	ResponseWithBroadcast
	// ResponseWithGlobalBroadcast: like ResponseWithBroadcast but fans out
	// to every connected client (e.g. SessionsChanged).
	ResponseWithGlobalBroadcast
)

// RouterResult is returned by Router.Handle.
type RouterResult struct {
	Kind ResultKind

	Type    string
	Payload interface{}

	BroadcastSessionID string
	BroadcastType       string
	BroadcastPayload    interface{}
}

// Server owns the listener and the set of live connections. Grounded on
// daemon.go's Run/handleConn, generalized from "accept, scan one JSON line,
// respond, close" to "accept, then pump envelopes for the life of the
// connection, with a concurrent broadcast arm" (spec §4.4).
type Server struct {
	log      *slog.Logger
	reg      *registry.Registry
	router   Router
	listener net.Listener
}

func New(log *slog.Logger, reg *registry.Registry, router Router) *Server {
	return &Server{log: log, reg: reg, router: router}
}

// Listen binds the Unix socket at socketPath, removing a stale one first.
// Grounded on daemon.go's Run, which unconditionally removes any existing
// path before listening; here the removal is gated on the socket actually
// being dead (connect fails) so a second daemon instance against the same
// path doesn't clobber a live one's socket file.
func (s *Server) Listen(socketPath string) error {
	if isSocketLive(socketPath) {
		return fmt.Errorf("ipcserver: socket %s already has a live daemon listening", socketPath)
	}
	_ = os.Remove(socketPath)

	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("ipcserver: listen on %s: %w", socketPath, err)
	}
	s.listener = l
	s.log.Info("listening", "socket", socketPath)
	return nil
}

func isSocketLive(socketPath string) bool {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("ipcserver: accept: %w", err)
		}
		go s.pump(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// pump is the per-client message loop: read requests, decode, dispatch to
// the router, write back whatever the router and the registry's outbox
// produce. This replaces handleConn's single-shot request/response with a
// long-lived duplex pump, since spec §4.4 requires the socket to carry
// both responses and asynchronous broadcasts on the same connection.
func (s *Server) pump(conn net.Conn) {
	clientID := model.NewID()
	client := s.reg.Register(clientID, wire.ClientAgent)
	defer func() {
		s.router.OnDisconnect(clientID)
		s.reg.Unregister(clientID)
		conn.Close()
	}()

	enc := wire.NewEncoder(conn)
	dec := wire.NewDecoder(conn)

	readErr := make(chan error, 1)
	reqs := make(chan wire.Envelope)
	go func() {
		for {
			env, err := dec.Decode()
			if err != nil {
				readErr <- err
				return
			}
			reqs <- env
		}
	}()

	for {
		select {
		case env := <-reqs:
			s.dispatch(enc, clientID, env)
		case env := <-client.Outbox():
			if err := enc.Encode(env.Type, env.Payload); err != nil {
				return
			}
		case err := <-readErr:
			if err != nil && !isClosedErr(err) {
				s.log.Debug("client read ended", "client_id", clientID, "err", err)
			}
			return
		}
	}
}

func (s *Server) dispatch(enc *wire.Encoder, clientID string, env wire.Envelope) {
	result := s.router.Handle(clientID, env)
	switch result.Kind {
	case NoResponse:
		return
	case Response:
		if err := enc.Encode(result.Type, result.Payload); err != nil {
			s.log.Debug("write response failed", "client_id", clientID, "err", err)
		}
	case ResponseWithBroadcast:
		if err := enc.Encode(result.Type, result.Payload); err != nil {
			s.log.Debug("write response failed", "client_id", clientID, "err", err)
			return
		}
		env, err := encodeEnvelope(result.BroadcastType, result.BroadcastPayload)
		if err != nil {
			s.log.Warn("encode broadcast failed", "type", result.BroadcastType, "err", err)
			return
		}
		s.reg.BroadcastToSessionExcept(result.BroadcastSessionID, clientID, env)
	case ResponseWithGlobalBroadcast:
		if err := enc.Encode(result.Type, result.Payload); err != nil {
			s.log.Debug("write response failed", "client_id", clientID, "err", err)
			return
		}
		env, err := encodeEnvelope(result.BroadcastType, result.BroadcastPayload)
		if err != nil {
			s.log.Warn("encode broadcast failed", "type", result.BroadcastType, "err", err)
			return
		}
		s.reg.GlobalBroadcast(env)
	}
}

func encodeEnvelope(msgType string, v interface{}) (wire.Envelope, error) {
	payload, err := cbor.Marshal(v)
	if err != nil {
		return wire.Envelope{}, err
	}
	return wire.Envelope{Type: msgType, Payload: payload}, nil
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.EPIPE)
}
