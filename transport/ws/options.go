package ws

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"proxyrpc/client"
	"proxyrpc/logging"
	"proxyrpc/server"
)

type serverOptions struct {
	rpc         []server.Option
	checkOrigin func(r *http.Request) bool
	log         *logrus.Entry
}

type ServerOption func(*serverOptions)

// WithServerOptions passes options through to the dispatching server.
func WithServerOptions(opts ...server.Option) ServerOption {
	return func(o *serverOptions) { o.rpc = append(o.rpc, opts...) }
}

// WithCheckOrigin replaces the same-origin check of the upgrader.
func WithCheckOrigin(fn func(r *http.Request) bool) ServerOption {
	return func(o *serverOptions) { o.checkOrigin = fn }
}

func WithServerLogger(log *logrus.Entry) ServerOption {
	return func(o *serverOptions) { o.log = log }
}

type dialOptions struct {
	client    []client.Option
	header    http.Header
	heartbeat time.Duration
	log       *logrus.Entry
}

type DialOption func(*dialOptions)

func defaultDialOptions() dialOptions {
	return dialOptions{
		heartbeat: 30 * time.Second,
		log:       logging.For("ws"),
	}
}

func WithClientOptions(opts ...client.Option) DialOption {
	return func(o *dialOptions) { o.client = append(o.client, opts...) }
}

// WithHeader adds headers to the upgrade request.
func WithHeader(h http.Header) DialOption {
	return func(o *dialOptions) { o.header = h }
}

// WithHeartbeat sets the keepalive interval; d <= 0 disables keepalives.
func WithHeartbeat(d time.Duration) DialOption {
	return func(o *dialOptions) { o.heartbeat = d }
}

func WithDialLogger(log *logrus.Entry) DialOption {
	return func(o *dialOptions) { o.log = log }
}
