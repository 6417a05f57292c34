package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"proxyrpc/client"
	"proxyrpc/codec"
	"proxyrpc/contract"
	"proxyrpc/registry"
)

// Conn is a client connection carrying many concurrent calls.
//
//	goroutine-1 ──Call──┐
//	goroutine-2 ──Call──┼──→ single TCP conn ──→ Server
//	goroutine-3 ──Call──┘
//
//	recvLoop: ←── response → Session.OnBytesReceived → waiting caller wakes up
type Conn struct {
	conn    net.Conn
	session *client.Session
	log     *logrus.Entry

	closed    chan struct{}
	closeOnce sync.Once
}

// Dial connects to addr.
func Dial(ctx context.Context, addr string, opts ...DialOption) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(nc, opts...), nil
}

// DialContract looks contractID up in reg and dials the first instance that
// answers. The instance's advertised codec is used unless opts override it.
func DialContract(ctx context.Context, reg registry.Registry, contractID string, opts ...DialOption) (*Conn, error) {
	instances, err := reg.Discover(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: %s", registry.ErrNoInstance, contractID)
	}

	var result *multierror.Error
	for _, inst := range instances {
		instOpts := opts
		if inst.Codec != "" {
			c, err := codec.ByName(inst.Codec)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", inst.Addr, err))
				continue
			}
			instOpts = append([]DialOption{WithClientOptions(client.WithCodec(c))}, opts...)
		}
		conn, err := Dial(ctx, inst.Addr, instOpts...)
		if err == nil {
			return conn, nil
		}
		result = multierror.Append(result, err)
	}
	return nil, fmt.Errorf("dial %s: %w", contractID, result.ErrorOrNil())
}

// NewConn takes ownership of nc and starts its read and keepalive loops.
func NewConn(nc net.Conn, opts ...DialOption) *Conn {
	o := defaultDialOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := &Conn{
		conn:   nc,
		log:    o.log.WithField("remote", nc.RemoteAddr().String()),
		closed: make(chan struct{}),
	}
	c.session = client.NewSession(func(frame []byte) error {
		_, err := nc.Write(frame)
		return err
	}, o.client...)

	go c.recvLoop()
	if o.heartbeat > 0 {
		go c.heartbeatLoop(o.heartbeat)
	}
	return c
}

func (c *Conn) Session() *client.Session {
	return c.session
}

// Proxy returns a proxy for ct over this connection.
func (c *Conn) Proxy(ct *contract.Contract) *client.Proxy {
	return client.NewProxy(c.session, ct)
}

// Done is closed once the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// Close closes the connection; outstanding calls fail with ErrTransportLost.
func (c *Conn) Close() error {
	err := net.ErrClosed
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// recvLoop is the only reader of the connection.
func (c *Conn) recvLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.session.OnBytesReceived(buf[:n])
		}
		if err != nil {
			select {
			case <-c.closed:
				err = net.ErrClosed
			default:
				if !errors.Is(err, net.ErrClosed) {
					c.log.WithError(err).Debug("connection lost")
				}
			}
			c.session.OnDisconnect(err)
			c.Close()
			return
		}
	}
}

// heartbeatLoop sends keepalive frames so the server's idle timeout does not
// close a quiet connection.
func (c *Conn) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if err := c.session.Heartbeat(); err != nil {
				return
			}
		}
	}
}
