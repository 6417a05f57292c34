package mq

import (
	"time"

	"github.com/sirupsen/logrus"

	"proxyrpc/client"
	"proxyrpc/logging"
	"proxyrpc/server"
)

type serverOptions struct {
	rpc        []server.Option
	sessionTTL time.Duration
	log        *logrus.Entry
}

type ServerOption func(*serverOptions)

func WithServerOptions(opts ...server.Option) ServerOption {
	return func(o *serverOptions) { o.rpc = append(o.rpc, opts...) }
}

// WithSessionTTL drops the session of a client silent for d. Clients keep
// theirs with heartbeats. d <= 0 keeps sessions until Shutdown.
func WithSessionTTL(d time.Duration) ServerOption {
	return func(o *serverOptions) { o.sessionTTL = d }
}

func WithServerLogger(log *logrus.Entry) ServerOption {
	return func(o *serverOptions) { o.log = log }
}

type clientOptions struct {
	client    []client.Option
	heartbeat time.Duration
	log       *logrus.Entry
}

type ClientOption func(*clientOptions)

func defaultClientOptions() clientOptions {
	return clientOptions{
		// Nothing tells a broker client that the server went away, so calls
		// always carry a deadline.
		client:    []client.Option{client.WithCallTimeout(30 * time.Second)},
		heartbeat: time.Minute,
		log:       logging.For("mq"),
	}
}

func WithClientOptions(opts ...client.Option) ClientOption {
	return func(o *clientOptions) { o.client = append(o.client, opts...) }
}

// WithHeartbeat sets the keepalive interval; d <= 0 disables keepalives.
func WithHeartbeat(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.heartbeat = d }
}

func WithClientLogger(log *logrus.Entry) ClientOption {
	return func(o *clientOptions) { o.log = log }
}
