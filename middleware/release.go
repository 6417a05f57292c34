package middleware

import (
	"context"
	"sync"
	"sync/atomic"
)

type releaseKey struct{}

type releaser struct {
	refs atomic.Int64
	once sync.Once
	fn   func()
}

func (r *releaser) drop() {
	if r.refs.Add(-1) == 0 {
		r.once.Do(r.fn)
	}
}

// WithRelease attaches release to ctx. The returned done func marks the
// caller's own use as finished; release runs once done has been called and
// every Hold taken on ctx (or a context derived from it) has ended.
func WithRelease(ctx context.Context, release func()) (context.Context, func()) {
	r := &releaser{fn: release}
	r.refs.Store(1)
	var once sync.Once
	return context.WithValue(ctx, releaseKey{}, r), func() { once.Do(r.drop) }
}

// Hold postpones the release attached to ctx until the returned func is
// called. Middlewares that leave work running past their own return, such as
// TimeOutMiddleware, take a Hold for that work. Without a release on ctx it
// is a no-op.
func Hold(ctx context.Context) func() {
	r, ok := ctx.Value(releaseKey{}).(*releaser)
	if !ok {
		return func() {}
	}
	r.refs.Add(1)
	var once sync.Once
	return func() { once.Do(r.drop) }
}
