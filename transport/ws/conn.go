package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"proxyrpc/client"
	"proxyrpc/contract"
)

// Conn is a client WebSocket connection carrying many concurrent calls.
type Conn struct {
	conn    *websocket.Conn
	session *client.Session
	log     *logrus.Entry

	closed    chan struct{}
	closeOnce sync.Once
}

// Dial opens a WebSocket connection to url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts ...DialOption) (*Conn, error) {
	o := defaultDialOptions()
	for _, opt := range opts {
		opt(&o)
	}

	wc, resp, err := websocket.DefaultDialer.DialContext(ctx, url, o.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Conn{
		conn:   wc,
		log:    o.log.WithField("remote", url),
		closed: make(chan struct{}),
	}
	c.session = client.NewSession(func(frame []byte) error {
		return wc.WriteMessage(websocket.BinaryMessage, frame)
	}, o.client...)

	go c.recvLoop()
	if o.heartbeat > 0 {
		go c.heartbeatLoop(o.heartbeat)
	}
	return c, nil
}

func (c *Conn) Session() *client.Session {
	return c.session
}

func (c *Conn) Proxy(ct *contract.Contract) *client.Proxy {
	return client.NewProxy(c.session, ct)
}

// Done is closed once the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// Close sends a close message and closes the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) recvLoop() {
	for {
		_, p, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Debug("connection lost")
			}
			c.session.OnDisconnect(err)
			c.Close()
			return
		}
		c.session.OnBytesReceived(p)
	}
}

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
