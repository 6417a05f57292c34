package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"proxyrpc/message"
)

// ErrDuplicateCall is returned by Issue when a live call already uses the id.
var ErrDuplicateCall = errors.New("rpc: correlation id already in flight")

// Call is the pending record of one outstanding request.
type Call struct {
	ID      string
	Request *message.Request
	done    chan *message.Response // buffered, receives exactly one value
}

// Engine matches responses to the calls that caused them.
//
//	goroutine-1 ──Issue(id=a)──┐
//	goroutine-2 ──Issue(id=b)──┼──→ one connection ──→ server
//	goroutine-3 ──Issue(id=c)──┘
//
//	Complete(id=b) → pending[b] → goroutine-2 wakes up
//
// Whoever removes a record from pending (Complete, Fail or an abandoning
// Await) is the only one allowed to resolve it, so every call is resolved
// exactly once.
type Engine struct {
	pending sync.Map            // correlation id -> *Call
	slots   *semaphore.Weighted // nil when unbounded
	count   atomic.Int64
	failed  atomic.Pointer[error]
	log     *logrus.Entry
}

// NewEngine creates an engine allowing at most maxOutstanding calls at once;
// maxOutstanding <= 0 means unbounded and 1 serializes all callers.
func NewEngine(maxOutstanding int, log *logrus.Entry) *Engine {
	e := &Engine{log: log}
	if maxOutstanding > 0 {
		e.slots = semaphore.NewWeighted(int64(maxOutstanding))
	}
	return e
}

// Issue registers req as outstanding. A correlation id is allocated when req
// has none. Issue waits for a free slot when the engine is at capacity.
func (e *Engine) Issue(ctx context.Context, req *message.Request) (*Call, error) {
	if err := e.err(); err != nil {
		return nil, err
	}
	if e.slots != nil {
		if err := e.slots.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("%w: waiting for a call slot: %w", message.ErrCancelled, err)
		}
	}

	if req.CorrelationID == "" {
		req = req.WithCorrelationID(uuid.NewString())
	}
	call := &Call{ID: req.CorrelationID, Request: req, done: make(chan *message.Response, 1)}
	if _, loaded := e.pending.LoadOrStore(call.ID, call); loaded {
		e.release()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateCall, call.ID)
	}
	e.count.Add(1)

	// Fail may have swept pending before this call was stored.
	if err := e.err(); err != nil {
		e.take(call.ID)
		return nil, err
	}
	return call, nil
}

// Complete delivers resp to the call with the same correlation id. Responses
// for unknown ids (late, duplicated or never issued) are dropped and false is
// returned; that is not an error.
func (e *Engine) Complete(resp *message.Response) bool {
	call, ok := e.take(resp.CorrelationID)
	if !ok {
		e.log.WithError(message.ErrCorrelationMiss).WithField("id", resp.CorrelationID).Debug("dropping response")
		return false
	}
	call.done <- resp
	return true
}

// Await blocks until call is resolved or ctx is done. On ctx done the call is
// abandoned: its record is removed and a late response will be dropped.
func (e *Engine) Await(ctx context.Context, call *Call) (*message.Response, error) {
	select {
	case resp := <-call.done:
		return resp, nil
	case <-ctx.Done():
		if e.Abandon(call) {
			return nil, fmt.Errorf("%w: %s: %w", message.ErrCancelled, call.ID, ctx.Err())
		}
		// Resolved concurrently; the response is on its way.
		return <-call.done, nil
	}
}

// Abandon removes call without resolving it. It reports false when the call
// had already been resolved.
func (e *Engine) Abandon(call *Call) bool {
	_, ok := e.take(call.ID)
	return ok
}

// Fail resolves every pending call with a transport_lost failure and makes
// later Issue calls fail with ErrTransportLost. It returns how many calls
// were woken.
func (e *Engine) Fail(cause error) int {
	if cause == nil {
		cause = errors.New("connection closed")
	}
	err := fmt.Errorf("%w: %w", message.ErrTransportLost, cause)
	e.failed.CompareAndSwap(nil, &err)

	woken := 0
	e.pending.Range(func(key, _ any) bool {
		id := key.(string)
		if call, ok := e.take(id); ok {
			call.done <- message.NewFailure(id, message.NewFault(message.KindTransportLost, "%v", cause))
			woken++
		}
		return true
	})
	if woken > 0 {
		e.log.WithError(cause).WithField("calls", woken).Warn("transport lost with calls pending")
	}
	return woken
}

// Pending reports how many calls are outstanding.
func (e *Engine) Pending() int {
	return int(e.count.Load())
}

func (e *Engine) err() error {
	if p := e.failed.Load(); p != nil {
		return *p
	}
	return nil
}

func (e *Engine) take(id string) (*Call, bool) {
	v, ok := e.pending.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	e.count.Add(-1)
	e.release()
	return v.(*Call), true
}

func (e *Engine) release() {
	if e.slots != nil {
		e.slots.Release(1)
	}
}
