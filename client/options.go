package client

import (
	"time"

	"github.com/sirupsen/logrus"

	"proxyrpc/codec"
	"proxyrpc/logging"
)

type options struct {
	codec          codec.Codec
	maxOutstanding int
	callTimeout    time.Duration
	maxFrameSize   uint32
	log            *logrus.Entry
}

func defaultOptions() options {
	return options{
		codec: &codec.JSONCodec{},
		log:   logging.For("client"),
	}
}

type Option func(*options)

// WithCodec sets the serialization backend. It must match the server's.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithMaxOutstanding bounds concurrent calls on one session. 1 lets a single
// call through at a time; n <= 0 (the default) is unbounded.
func WithMaxOutstanding(n int) Option {
	return func(o *options) { o.maxOutstanding = n }
}

// WithCallTimeout applies to calls whose context has no deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) { o.callTimeout = d }
}

// WithMaxFrameSize bounds a single inbound frame payload.
func WithMaxFrameSize(n uint32) Option {
	return func(o *options) { o.maxFrameSize = n }
}

func WithLogger(log *logrus.Entry) Option {
	return func(o *options) { o.log = log }
}
