package server

import (
	"github.com/sirupsen/logrus"

	"proxyrpc/logging"
	"proxyrpc/middleware"
)

type options struct {
	maxConcurrent int64
	maxFrameSize  uint32
	middlewares   []middleware.Middleware
	log           *logrus.Entry
}

func defaultOptions() options {
	return options{
		maxConcurrent: 1024,
		log:           logging.For("server"),
	}
}

type Option func(*options)

// WithMaxConcurrent bounds how many requests run at once across all sessions.
// A request keeps its slot until its method returns, even when a timeout
// middleware has already answered it. n <= 0 removes the bound.
func WithMaxConcurrent(n int) Option {
	return func(o *options) { o.maxConcurrent = int64(n) }
}

// WithMaxFrameSize bounds a single inbound frame payload.
func WithMaxFrameSize(n uint32) Option {
	return func(o *options) { o.maxFrameSize = n }
}

// WithMiddleware appends middlewares around dispatch.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

func WithLogger(log *logrus.Entry) Option {
	return func(o *options) { o.log = log }
}
