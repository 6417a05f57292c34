package tcp

import (
	"time"

	"github.com/sirupsen/logrus"

	"proxyrpc/client"
	"proxyrpc/logging"
	"proxyrpc/registry"
	"proxyrpc/server"
)

const readBufferSize = 32 << 10

type serverOptions struct {
	rpc         []server.Option
	registry    registry.Registry
	advertise   string
	ttl         int64
	version     string
	idleTimeout time.Duration
	log         *logrus.Entry
}

type ServerOption func(*serverOptions)

// WithServerOptions passes options through to the dispatching server.
func WithServerOptions(opts ...server.Option) ServerOption {
	return func(o *serverOptions) { o.rpc = append(o.rpc, opts...) }
}

// WithRegistry advertises every contract in the table at addr while serving.
// addr must be routable by clients; ":8080" is not.
func WithRegistry(reg registry.Registry, addr string, ttl int64) ServerOption {
	return func(o *serverOptions) {
		o.registry = reg
		o.advertise = addr
		o.ttl = ttl
	}
}

func WithVersion(v string) ServerOption {
	return func(o *serverOptions) { o.version = v }
}

// WithIdleTimeout closes connections that send nothing, not even a keepalive,
// for d.
func WithIdleTimeout(d time.Duration) ServerOption {
	return func(o *serverOptions) { o.idleTimeout = d }
}

func WithServerLogger(log *logrus.Entry) ServerOption {
	return func(o *serverOptions) { o.log = log }
}

type dialOptions struct {
	client    []client.Option
	heartbeat time.Duration
	log       *logrus.Entry
}

type DialOption func(*dialOptions)

func defaultDialOptions() dialOptions {
	return dialOptions{
		heartbeat: 30 * time.Second,
		log:       logging.For("tcp"),
	}
}

// WithClientOptions passes options through to the client session.
func WithClientOptions(opts ...client.Option) DialOption {
	return func(o *dialOptions) { o.client = append(o.client, opts...) }
}

// WithHeartbeat sets the keepalive interval; d <= 0 disables keepalives.
func WithHeartbeat(d time.Duration) DialOption {
	return func(o *dialOptions) { o.heartbeat = d }
}

func WithDialLogger(log *logrus.Entry) DialOption {
	return func(o *dialOptions) { o.log = log }
}
