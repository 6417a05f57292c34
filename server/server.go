// Package server implements the dispatching side of proxyrpc: the Table that
// maps contract ids to service instances, and the transport-agnostic Server
// whose Sessions turn inbound bytes into invocations.
//
// Request processing pipeline:
//
//	transport read loop → Session.OnBytesReceived → frame decode (sequential)
//	  → for each request: go dispatch (parallel, bounded by MaxConcurrent)
//	    → Middleware Chain → Table.Invoke (reflect.Call) → encode → SendFunc
package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"proxyrpc/message"
	"proxyrpc/middleware"
)

// SendFunc pushes one encoded frame to the peer. Sessions serialize calls.
type SendFunc func(frame []byte) error

// Server dispatches requests from any number of sessions to one Table.
type Server struct {
	table   *Table
	opts    options
	log     *logrus.Entry
	workers *semaphore.Weighted // nil when unbounded

	mu          sync.Mutex
	middlewares []middleware.Middleware
	handler     atomic.Pointer[middleware.HandlerFunc]
	closing     bool
	wg          sync.WaitGroup // in-flight requests, for graceful shutdown
}

// NewServer creates a server dispatching to table.
func NewServer(table *Table, opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{
		table:       table,
		opts:        o,
		log:         o.log,
		middlewares: o.middlewares,
	}
	if o.maxConcurrent > 0 {
		s.workers = semaphore.NewWeighted(o.maxConcurrent)
	}
	s.buildHandler()
	return s
}

func (s *Server) Table() *Table {
	return s.table
}

// Register is shorthand for s.Table().Register.
func (s *Server) Register(instance any) ([]string, error) {
	return s.table.Register(instance)
}

// Use appends a middleware. Requests already running keep the old chain.
func (s *Server) Use(mw middleware.Middleware) {
	s.mu.Lock()
	s.middlewares = append(s.middlewares, mw)
	s.mu.Unlock()
	s.buildHandler()
}

func (s *Server) buildHandler() {
	s.mu.Lock()
	h := middleware.Chain(s.middlewares...)(s.businessHandler)
	s.mu.Unlock()
	s.handler.Store(&h)
}

// businessHandler resolves the target service and invokes it. A nil
// Response means the request is unroutable and gets no reply.
func (s *Server) businessHandler(ctx context.Context, req *message.Request) *message.Response {
	svc, ok := s.table.Resolve(req.InterfaceID)
	if !ok {
		return nil
	}
	return s.table.Invoke(ctx, req, svc)
}

func (s *Server) handle(ctx context.Context, req *message.Request) *message.Response {
	return (*s.handler.Load())(ctx, req)
}

// begin registers one in-flight request unless the server is shutting down.
func (s *Server) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) acquire(ctx context.Context) error {
	if s.workers == nil {
		return nil
	}
	return s.workers.Acquire(ctx, 1)
}

// finish returns the worker slot and ends one in-flight request.
func (s *Server) finish() {
	if s.workers != nil {
		s.workers.Release(1)
	}
	s.wg.Done()
}

// Shutdown stops accepting new requests and waits for in-flight ones until
// ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for ongoing requests to finish: %w", ctx.Err())
	}
}
