// Package client implements the calling side of proxyrpc.
//
// A Session multiplexes many concurrent calls over one connection: each call
// gets a unique correlation id, the Engine keeps a pending record per id, and
// the transport's read loop hands every inbound byte to OnBytesReceived,
// which routes decoded responses back to the waiting caller. A Proxy sits on
// top and turns Go method calls on a contract into requests.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"proxyrpc/codec"
	"proxyrpc/message"
	"proxyrpc/protocol"
)

// SendFunc pushes one encoded frame to the peer.
type SendFunc func(frame []byte) error

// Session is the client side of one logical connection.
type Session struct {
	engine *Engine
	codec  codec.Codec
	opts   options
	send   SendFunc
	dec    *protocol.Decoder[*message.Response]
	log    *logrus.Entry

	sending sync.Mutex // whole frames only; concurrent writes would interleave
}

// NewSession creates a session that writes frames with send. The transport
// must call OnBytesReceived with inbound bytes and OnDisconnect once.
func NewSession(send SendFunc, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := o.codec
	return &Session{
		engine: NewEngine(o.maxOutstanding, o.log),
		codec:  c,
		opts:   o,
		send:   send,
		log:    o.log,
		dec: protocol.NewDecoder(func(p []byte) (*message.Response, error) {
			var resp message.Response
			if err := c.Decode(p, &resp); err != nil {
				return nil, err
			}
			if err := resp.Validate(); err != nil {
				// Keep resp: its id may still name a call waiting for an answer.
				return &resp, fmt.Errorf("%w: %w", message.ErrDecode, err)
			}
			return &resp, nil
		}, o.maxFrameSize),
	}
}

func (s *Session) Engine() *Engine {
	return s.engine
}

func (s *Session) Codec() codec.Codec {
	return s.codec
}

// OnBytesReceived feeds inbound bytes and completes every decoded response.
func (s *Session) OnBytesReceived(p []byte) {
	s.dec.Feed(p)
	for {
		resp, st, err := s.dec.Next()
		switch st {
		case protocol.NeedMoreData:
			return
		case protocol.Keepalive:
			continue
		case protocol.Malformed:
			if resp != nil && resp.CorrelationID != "" {
				s.log.WithError(err).WithField("id", resp.CorrelationID).Warn("failing call on invalid response")
				s.engine.Complete(message.NewFailure(resp.CorrelationID, message.NewFault(message.KindFraming, "%v", err)))
				continue
			}
			s.log.WithError(err).Warn("dropping malformed frame")
			continue
		}
		s.engine.Complete(resp)
	}
}

// OnDisconnect fails every outstanding call with ErrTransportLost.
func (s *Session) OnDisconnect(err error) {
	s.engine.Fail(err)
}

// Call sends req and waits for its response. The returned Response may carry
// a Failure; err is set only when no Response was obtained.
func (s *Session) Call(ctx context.Context, req *message.Request) (*message.Response, error) {
	if req.OneWay {
		return nil, errors.New("rpc: one-way request passed to Call, use Notify")
	}
	if s.opts.callTimeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.opts.callTimeout)
			defer cancel()
		}
	}

	call, err := s.engine.Issue(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.write(call.Request); err != nil {
		s.engine.Abandon(call)
		return nil, err
	}
	return s.engine.Await(ctx, call)
}

// Notify sends a one-way request without waiting for anything.
func (s *Session) Notify(ctx context.Context, req *message.Request) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", message.ErrCancelled, err)
	}
	if err := s.engine.err(); err != nil {
		return err
	}
	if !req.OneWay {
		c := *req
		c.OneWay = true
		req = &c
	}
	return s.write(req)
}

// Heartbeat sends a keepalive frame.
func (s *Session) Heartbeat() error {
	s.sending.Lock()
	defer s.sending.Unlock()
	return s.send(protocol.Heartbeat())
}

func (s *Session) write(req *message.Request) error {
	payload, err := s.codec.Encode(req)
	if err != nil {
		return fmt.Errorf("encode %s: %w", req.Target(), err)
	}
	frame := protocol.Encode(payload)

	s.sending.Lock()
	defer s.sending.Unlock()
	if err := s.send(frame); err != nil {
		return fmt.Errorf("send %s: %w", req.Target(), err)
	}
	return nil
}
