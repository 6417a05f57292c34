package mq

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var errBrokerClosed = errors.New("mq: broker closed")

// MemoryBroker is an in-process Broker with exact subject matching. Each
// subscription has its own delivery goroutine and unbounded queue.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string][]*memorySub
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string][]*memorySub)}
}

type memoryMsg struct {
	subject, reply string
	data           []byte
}

type memorySub struct {
	broker  *MemoryBroker
	subject string
	fn      MsgHandler

	mu    sync.Mutex
	queue []memoryMsg
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func (b *MemoryBroker) Publish(subject, reply string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errBrokerClosed
	}
	msg := memoryMsg{subject: subject, reply: reply, data: append([]byte(nil), data...)}
	for _, s := range b.subs[subject] {
		s.push(msg)
	}
	return nil
}

func (b *MemoryBroker) Subscribe(subject string, fn MsgHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errBrokerClosed
	}
	s := &memorySub{
		broker:  b,
		subject: subject,
		fn:      fn,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	b.subs[subject] = append(b.subs[subject], s)
	go s.deliver()
	return s, nil
}

func (b *MemoryBroker) NewInbox() string {
	return "_INBOX." + uuid.NewString()
}

// Close drops every subscription.
func (b *MemoryBroker) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string][]*memorySub)
	b.closed = true
	b.mu.Unlock()
	for _, list := range subs {
		for _, s := range list {
			s.stop()
		}
	}
}

func (s *memorySub) Unsubscribe() error {
	b := s.broker
	b.mu.Lock()
	list := b.subs[s.subject]
	for i, other := range list {
		if other == s {
			b.subs[s.subject] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	s.stop()
	return nil
}

func (s *memorySub) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *memorySub) push(m memoryMsg) {
	s.mu.Lock()
	s.queue = append(s.queue, m)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memorySub) deliver() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			m := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.fn(m.subject, m.reply, m.data)
		}
	}
}
