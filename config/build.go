package config

import (
	"proxyrpc/client"
	"proxyrpc/codec"
	"proxyrpc/contract"
	"proxyrpc/logging"
	"proxyrpc/middleware"
	"proxyrpc/registry"
	"proxyrpc/server"
	"proxyrpc/transport/tcp"
)

// Apply configures the shared logger.
func (c LogConfig) Apply() error {
	return logging.Configure(c.Level, c.Format)
}

// NewTable creates a dispatch table using the configured codec.
func (c ServerConfig) NewTable(contracts ...*contract.Contract) (*server.Table, error) {
	cdc, err := codec.ByName(c.Codec)
	if err != nil {
		return nil, err
	}
	return server.NewTable(cdc, contracts...), nil
}

// ServerOptions builds the dispatcher options. Middlewares run outermost
// first: recovery, logging, rate limit, timeout.
func (c ServerConfig) ServerOptions() []server.Option {
	opts := []server.Option{
		server.WithMaxConcurrent(c.MaxConcurrent),
		server.WithMaxFrameSize(c.MaxFrameSize),
	}
	var mws []middleware.Middleware
	if c.Recovery {
		mws = append(mws, middleware.RecoveryMiddleware(logging.For("server")))
	}
	if c.LogRequests {
		mws = append(mws, middleware.LoggingMiddleware(logging.For("server")))
	}
	if c.RateLimit > 0 {
		burst := c.RateBurst
		if burst == 0 {
			burst = int(c.RateLimit) + 1
		}
		mws = append(mws, middleware.RateLimitMiddleware(c.RateLimit, burst))
	}
	if c.RequestTimeout.Duration > 0 {
		mws = append(mws, middleware.TimeOutMiddleware(c.RequestTimeout.Duration))
	}
	if len(mws) > 0 {
		opts = append(opts, server.WithMiddleware(mws...))
	}
	return opts
}

// TCPOptions builds options for tcp.NewServer. reg may be nil; otherwise the
// server advertises itself at Advertise, or Address when that is empty.
func (c ServerConfig) TCPOptions(reg registry.Registry, ttl int64) []tcp.ServerOption {
	opts := []tcp.ServerOption{
		tcp.WithServerOptions(c.ServerOptions()...),
		tcp.WithVersion(c.Version),
	}
	if c.IdleTimeout.Duration > 0 {
		opts = append(opts, tcp.WithIdleTimeout(c.IdleTimeout.Duration))
	}
	if reg != nil {
		addr := c.Advertise
		if addr == "" {
			addr = c.Address
		}
		opts = append(opts, tcp.WithRegistry(reg, addr, ttl))
	}
	return opts
}

func (c ClientConfig) ClientOptions() ([]client.Option, error) {
	cdc, err := codec.ByName(c.Codec)
	if err != nil {
		return nil, err
	}
	return []client.Option{
		client.WithCodec(cdc),
		client.WithMaxOutstanding(c.MaxOutstanding),
		client.WithMaxFrameSize(c.MaxFrameSize),
		client.WithCallTimeout(c.CallTimeout.Duration),
	}, nil
}

func (c ClientConfig) DialOptions() ([]tcp.DialOption, error) {
	copts, err := c.ClientOptions()
	if err != nil {
		return nil, err
	}
	return []tcp.DialOption{
		tcp.WithClientOptions(copts...),
		tcp.WithHeartbeat(c.Heartbeat.Duration),
	}, nil
}

// Open connects the configured registry. It returns nil when Type is empty.
func (c RegistryConfig) Open() (registry.Registry, error) {
	switch c.Type {
	case "etcd":
		reg, err := registry.NewEtcdRegistry(c.Endpoints, c.DialTimeout.Duration)
		if err != nil {
			return nil, err
		}
		return reg, nil
	case "memory":
		return registry.NewMemoryRegistry(), nil
	}
	return nil, nil
}
