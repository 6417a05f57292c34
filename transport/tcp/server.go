// Package tcp binds proxyrpc sessions to TCP connections.
//
//	Accept conn → serveConn (single goroutine reads the stream)
//	  → server.Session.OnBytesReceived → dispatch in parallel → conn.Write
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"proxyrpc/logging"
	"proxyrpc/registry"
	"proxyrpc/server"
)

// Server accepts TCP connections and serves the contracts in one Table.
type Server struct {
	rpc  *server.Server
	opts serverOptions
	log  *logrus.Entry

	mu         sync.Mutex
	listeners  map[net.Listener]struct{}
	conns      map[net.Conn]struct{}
	advertised []string // contract ids registered with opts.registry
	shutdown   atomic.Bool
}

func NewServer(table *server.Table, opts ...ServerOption) *Server {
	o := serverOptions{ttl: 10, log: logging.For("tcp")}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		rpc:       server.NewServer(table, o.rpc...),
		opts:      o,
		log:       o.log,
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[net.Conn]struct{}),
	}
}

// RPC returns the dispatching server, for Use and Register.
func (s *Server) RPC() *server.Server {
	return s.rpc
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown. It returns nil after
// Shutdown and the accept error otherwise. Contracts registered in the table
// before Serve is called are advertised to the registry, if one is set.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		l.Close()
		return net.ErrClosed
	}
	s.listeners[l] = struct{}{}
	s.mu.Unlock()

	if err := s.advertise(); err != nil {
		l.Close()
		return err
	}
	s.log.WithField("addr", l.Addr().String()).Info("serving")

	for {
		conn, err := l.Accept()
		if err != nil {
			// Shutdown closes the listener, which surfaces here.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		go s.serveConn(conn)
	}
}

func (s *Server) advertise() error {
	if s.opts.registry == nil {
		return nil
	}
	table := s.rpc.Table()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, id := range table.IDs() {
		inst := registry.ServiceInstance{
			Addr:    s.opts.advertise,
			Codec:   table.Codec().Name(),
			Version: s.opts.version,
		}
		if err := s.opts.registry.Register(ctx, id, inst, s.opts.ttl); err != nil {
			return fmt.Errorf("advertise %s: %w", id, err)
		}
		s.mu.Lock()
		s.advertised = append(s.advertised, id)
		s.mu.Unlock()
	}
	return nil
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// serveConn reads conn sequentially; frame boundaries only make sense to a
// single reader. Requests are dispatched concurrently by the session.
func (s *Server) serveConn(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	sess := s.rpc.NewSession(remote, func(frame []byte) error {
		_, err := conn.Write(frame)
		return err
	})

	buf := make([]byte, readBufferSize)
	for {
		if s.opts.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.opts.idleTimeout))
		}
		n, err := conn.Read(buf)
		if n > 0 {
			sess.OnBytesReceived(buf[:n])
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.WithField("remote", remote).Debug("closing idle connection")
			}
			sess.OnDisconnect(err)
			return
		}
	}
}

// Shutdown performs graceful shutdown:
//  1. Deregister advertised contracts, so clients stop finding this server
//  2. Close the listeners
//  3. Wait for in-flight requests until ctx is done
//  4. Close the remaining connections
func (s *Server) Shutdown(ctx context.Context) error {
	var result *multierror.Error

	s.mu.Lock()
	s.shutdown.Store(true)
	advertised := s.advertised
	s.advertised = nil
	listeners := s.listeners
	s.listeners = make(map[net.Listener]struct{})
	s.mu.Unlock()

	for _, id := range advertised {
		if err := s.opts.registry.Deregister(ctx, id, s.opts.advertise); err != nil {
			result = multierror.Append(result, fmt.Errorf("deregister %s: %w", id, err))
		}
	}
	for l := range listeners {
		if err := l.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if err := s.rpc.Shutdown(ctx); err != nil {
		result = multierror.Append(result, err)
	}

	s.mu.Lock()
	for conn := range s.conns {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
	}
	s.mu.Unlock()

	return result.ErrorOrNil()
}
