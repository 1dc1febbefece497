package middleware

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestIDMiddleware 沿用客户端传入的 X-Request-ID，没有则生成
func RequestIDMiddleware() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		requestID := string(c.GetHeader(RequestIDHeader))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}

		c.Set(requestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next(ctx)
	}
}

// GetRequestID 获取当前请求 ID
func GetRequestID(c *app.RequestContext) string {
	return c.GetString(requestIDKey)
}
