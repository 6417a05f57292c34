// Package ws carries proxyrpc frames over WebSocket connections. Every frame,
// length prefix included, travels as one binary message, so the sessions on
// either end see the same byte stream a TCP connection would give them.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"proxyrpc/logging"
	"proxyrpc/server"
)

// Server upgrades HTTP requests and serves one Table over the resulting
// connections.
type Server struct {
	rpc      *server.Server
	upgrader websocket.Upgrader
	log      *logrus.Entry

	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	closing bool
}

// Handler returns an http.Handler serving table. Mount it on any mux.
func Handler(table *server.Table, opts ...ServerOption) *Server {
	o := serverOptions{log: logging.For("ws")}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		rpc: server.NewServer(table, o.rpc...),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     o.checkOrigin,
		},
		log:   o.log,
		conns: make(map[*websocket.Conn]struct{}),
	}
}

func (s *Server) RPC() *server.Server {
	return s.rpc
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	// Upgrade writes the HTTP error itself.
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).WithField("remote", r.RemoteAddr).Debug("upgrade failed")
		return
	}
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	s.serveConn(conn, r.RemoteAddr)
}

func (s *Server) serveConn(conn *websocket.Conn, remote string) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	sess := s.rpc.NewSession(remote, func(frame []byte) error {
		return conn.WriteMessage(websocket.BinaryMessage, frame)
	})
	for {
		_, p, err := conn.ReadMessage()
		if err != nil {
			sess.OnDisconnect(err)
			return
		}
		sess.OnBytesReceived(p)
	}
}

// Shutdown refuses new upgrades, waits for in-flight requests until ctx is
// done and then closes every connection.
func (s *Server) Shutdown(ctx context.Context) error {
	var result *multierror.Error

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	if err := s.rpc.Shutdown(ctx); err != nil {
		result = multierror.Append(result, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for conn := range s.conns {
		// WriteControl may run alongside a session's WriteMessage.
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil &&
			!errors.Is(err, websocket.ErrCloseSent) {
			s.log.WithError(err).Debug("failed to send close message")
		}
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
