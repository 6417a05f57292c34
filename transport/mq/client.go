package mq

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"proxyrpc/client"
	"proxyrpc/contract"
)

var errClientClosed = errors.New("mq: client closed")

// Client calls a Server through the broker from its own inbox subject.
type Client struct {
	session *client.Session
	sub     Subscription
	inbox   string
	log     *logrus.Entry

	closed    chan struct{}
	closeOnce sync.Once
}

// NewClient subscribes a fresh inbox and returns a client for the server
// listening on subject.
func NewClient(broker Broker, subject string, opts ...ClientOption) (*Client, error) {
	o := defaultClientOptions()
	for _, opt := range opts {
		opt(&o)
	}

	inbox := broker.NewInbox()
	c := &Client{
		inbox:  inbox,
		log:    o.log.WithFields(logrus.Fields{"subject": subject, "inbox": inbox}),
		closed: make(chan struct{}),
	}
	c.session = client.NewSession(func(frame []byte) error {
		return broker.Publish(subject, inbox, frame)
	}, o.client...)

	sub, err := broker.Subscribe(inbox, func(_, _ string, data []byte) {
		c.session.OnBytesReceived(data)
	})
	if err != nil {
		return nil, fmt.Errorf("mq: subscribe %s: %w", inbox, err)
	}
	c.sub = sub

	if o.heartbeat > 0 {
		go c.heartbeatLoop(o.heartbeat)
	}
	return c, nil
}

func (c *Client) Session() *client.Session {
	return c.session
}

func (c *Client) Proxy(ct *contract.Contract) *client.Proxy {
	return client.NewProxy(c.session, ct)
}

func (c *Client) Inbox() string {
	return c.inbox
}

// Close unsubscribes the inbox and fails outstanding calls.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.sub.Unsubscribe()
		c.session.OnDisconnect(errClientClosed)
	})
	return err
}

func (c *Client) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if err := c.session.Heartbeat(); err != nil {
				c.log.WithError(err).Debug("heartbeat failed")
			}
		}
	}
}
