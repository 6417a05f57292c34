// Package mq carries proxyrpc frames over a publish/subscribe broker.
//
// A server subscribes to one subject. Every client owns an inbox subject and
// publishes its frames to the server subject with the inbox as reply
// address; the server keeps one session per inbox and publishes responses
// there. Each broker message holds whole frames, length prefix included.
package mq

import (
	"github.com/nats-io/nats.go"
)

// MsgHandler receives one broker message. Messages of one subscription are
// delivered sequentially.
type MsgHandler func(subject, reply string, data []byte)

type Subscription interface {
	Unsubscribe() error
}

// Broker is the slice of a message broker the binding needs.
type Broker interface {
	Publish(subject, reply string, data []byte) error
	Subscribe(subject string, fn MsgHandler) (Subscription, error)
	NewInbox() string
}

// NATSBroker adapts a NATS connection.
type NATSBroker struct {
	nc *nats.Conn
}

func NewNATSBroker(nc *nats.Conn) *NATSBroker {
	return &NATSBroker{nc: nc}
}

func (b *NATSBroker) Publish(subject, reply string, data []byte) error {
	return b.nc.PublishMsg(&nats.Msg{Subject: subject, Reply: reply, Data: data})
}

// Subscribe uses an async subscription; NATS runs its callback on one
// goroutine per subscription.
func (b *NATSBroker) Subscribe(subject string, fn MsgHandler) (Subscription, error) {
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		fn(m.Subject, m.Reply, m.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (b *NATSBroker) NewInbox() string {
	return b.nc.NewRespInbox()
}
