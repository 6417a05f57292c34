package middleware

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"proxyrpc/message"
)

func LoggingMiddleware(log *logrus.Entry) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			start := time.Now()
			resp := next(ctx, req)
			fields := logrus.Fields{
				"target":   req.Target(),
				"id":       req.CorrelationID,
				"duration": time.Since(start),
			}
			if resp != nil && resp.Failure != nil {
				log.WithFields(fields).WithField("failure", resp.Failure.Error()).Warn("call failed")
			} else {
				log.WithFields(fields).Debug("call served")
			}
			return resp
		}
	}
}
