package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"proxyrpc/logging"
	"proxyrpc/server"
)

var (
	errNoReply     = errors.New("mq: message has no reply subject")
	errSessionIdle = errors.New("mq: session idle")
	errShutdown    = errors.New("mq: server shut down")
)

// Server serves one Table on a broker subject.
type Server struct {
	rpc     *server.Server
	broker  Broker
	subject string
	opts    serverOptions
	log     *logrus.Entry

	mu       sync.Mutex
	sub      Subscription
	sessions map[string]*peer // reply subject -> session
	stop     chan struct{}
}

type peer struct {
	session  *server.Session
	lastSeen time.Time
}

func NewServer(broker Broker, subject string, table *server.Table, opts ...ServerOption) *Server {
	o := serverOptions{sessionTTL: 5 * time.Minute, log: logging.For("mq")}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		rpc:      server.NewServer(table, o.rpc...),
		broker:   broker,
		subject:  subject,
		opts:     o,
		log:      o.log.WithField("subject", subject),
		sessions: make(map[string]*peer),
		stop:     make(chan struct{}),
	}
}

func (s *Server) RPC() *server.Server {
	return s.rpc
}

// Start subscribes to the server subject.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return fmt.Errorf("mq: server on %s already started", s.subject)
	}
	sub, err := s.broker.Subscribe(s.subject, s.onMessage)
	if err != nil {
		return fmt.Errorf("mq: subscribe %s: %w", s.subject, err)
	}
	s.sub = sub
	if s.opts.sessionTTL > 0 {
		go s.evictLoop(s.opts.sessionTTL)
	}
	s.log.Info("serving")
	return nil
}

// Sessions reports how many client sessions are live.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// onMessage runs on the subscription's delivery goroutine, so each session is
// fed sequentially.
func (s *Server) onMessage(_, reply string, data []byte) {
	s.mu.Lock()
	p, ok := s.sessions[reply]
	if !ok {
		p = &peer{session: s.rpc.NewSession(reply, s.sender(reply))}
		s.sessions[reply] = p
	}
	p.lastSeen = time.Now()
	s.mu.Unlock()

	p.session.OnBytesReceived(data)
}

func (s *Server) sender(reply string) server.SendFunc {
	if reply == "" {
		// Only one-way requests can be served without a reply subject.
		return func([]byte) error { return errNoReply }
	}
	return func(frame []byte) error {
		return s.broker.Publish(reply, "", frame)
	}
}

func (s *Server) evictLoop(ttl time.Duration) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.evict(now.Add(-ttl))
		}
	}
}

func (s *Server) evict(before time.Time) {
	var idle []*peer
	s.mu.Lock()
	for reply, p := range s.sessions {
		if p.lastSeen.Before(before) {
			delete(s.sessions, reply)
			idle = append(idle, p)
		}
	}
	s.mu.Unlock()

	for _, p := range idle {
		p.session.OnDisconnect(errSessionIdle)
	}
	if len(idle) > 0 {
		s.log.WithField("sessions", len(idle)).Debug("evicted idle sessions")
	}
}

// Shutdown unsubscribes, waits for in-flight requests until ctx is done and
// then drops every session.
func (s *Server) Shutdown(ctx context.Context) error {
	var result *multierror.Error

	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		close(s.stop)
		if err := sub.Unsubscribe(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if err := s.rpc.Shutdown(ctx); err != nil {
		result = multierror.Append(result, err)
	}

	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*peer)
	s.mu.Unlock()
	for _, p := range sessions {
		p.session.OnDisconnect(errShutdown)
	}
	return result.ErrorOrNil()
}
