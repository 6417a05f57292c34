package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"proxyrpc/message"
	"proxyrpc/middleware"
	"proxyrpc/protocol"
)

// Session is the server side of one logical connection. The transport calls
// OnBytesReceived from a single goroutine and OnDisconnect once.
type Session struct {
	srv    *Server
	send   SendFunc
	dec    *protocol.Decoder[*message.Request]
	ctx    context.Context // cancelled on disconnect; parent of every request context
	cancel context.CancelFunc
	log    *logrus.Entry

	writeMu sync.Mutex // one frame at a time, or frames from concurrent replies interleave
}

// NewSession binds a connection to the server. remote is used in logs only.
func (s *Server) NewSession(remote string, send SendFunc) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	c := s.table.Codec()
	return &Session{
		srv:    s,
		send:   send,
		ctx:    ctx,
		cancel: cancel,
		log:    s.log.WithField("remote", remote),
		dec: protocol.NewDecoder(func(p []byte) (*message.Request, error) {
			var req message.Request
			if err := c.Decode(p, &req); err != nil {
				return nil, err
			}
			if req.InterfaceID == "" || req.Method == "" || (req.CorrelationID == "" && !req.OneWay) {
				return nil, fmt.Errorf("%w: request is missing interface, method or correlation id", message.ErrDecode)
			}
			return &req, nil
		}, s.opts.maxFrameSize),
	}
}

// OnBytesReceived feeds bytes read from the connection and dispatches every
// complete request. Malformed frames are dropped at their boundary.
func (s *Session) OnBytesReceived(p []byte) {
	s.dec.Feed(p)
	for {
		req, st, err := s.dec.Next()
		switch st {
		case protocol.NeedMoreData:
			return
		case protocol.Keepalive:
			continue
		case protocol.Malformed:
			s.log.WithError(err).Warn("dropping malformed frame")
			continue
		}
		s.dispatch(req)
	}
}

// OnDisconnect cancels the context of every request still running for this session.
func (s *Session) OnDisconnect(err error) {
	s.cancel()
	s.log.WithError(err).Debug("session closed")
}

func (s *Session) dispatch(req *message.Request) {
	if _, ok := s.srv.table.Resolve(req.InterfaceID); !ok {
		s.log.WithError(message.ErrUnroutable).WithField("target", req.Target()).Debug("dropping request")
		return
	}
	if !s.srv.begin() {
		s.log.WithField("target", req.Target()).Debug("server shutting down, dropping request")
		return
	}

	// Without `go`, a slow method would hold up every later frame on this connection.
	go func() {
		if err := s.srv.acquire(s.ctx); err != nil {
			s.srv.wg.Done()
			return // session closed while waiting for a worker
		}
		// The worker slot and the in-flight count stay taken while a
		// middleware still runs the method in the background.
		ctx, done := middleware.WithRelease(s.ctx, s.srv.finish)
		defer done()
		resp := s.srv.handle(ctx, req)

		if req.OneWay || resp == nil {
			return
		}
		if err := s.reply(resp); err != nil {
			s.log.WithError(err).WithField("target", req.Target()).Warn("failed to send response")
		}
	}()
}

func (s *Session) reply(resp *message.Response) error {
	payload, err := s.srv.table.Codec().Encode(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	frame := protocol.Encode(payload)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.send(frame)
}
