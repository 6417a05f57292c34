package middleware

import (
	"context"
	"time"

	"proxyrpc/message"
)

// TimeOutMiddleware answers with a timeout failure when the handler does not
// finish in time. The handler keeps running with a cancelled context; its
// late result is discarded. It holds any release attached with WithRelease
// until the handler returns.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Response, 1)
			end := Hold(ctx)
			go func() {
				defer end()
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.NewFailure(req.CorrelationID,
					message.NewFault(message.KindTimeout, "request timed out after %s", timeout))
			}
		}
	}
}
