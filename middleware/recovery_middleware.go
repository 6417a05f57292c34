package middleware

import (
	"context"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"proxyrpc/message"
)

// RecoveryMiddleware turns a panic anywhere below it into a panic failure
// for the caller instead of killing the connection's goroutine.
func RecoveryMiddleware(log *logrus.Entry) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (resp *message.Response) {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("target", req.Target()).
						WithField("stack", string(debug.Stack())).
						Errorf("panic recovered: %v", r)
					resp = message.NewFailure(req.CorrelationID,
						message.NewFault(message.KindPanic, "panic recovered: %v", r))
				}
			}()
			return next(ctx, req)
		}
	}
}
