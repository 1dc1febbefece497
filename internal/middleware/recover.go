package middleware

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"KayaAttend/config"
	"KayaAttend/pkg/errors"
	"KayaAttend/pkg/logger"
	"KayaAttend/pkg/response"
)

// RecoverConfig recover 中间件配置
type RecoverConfig struct {
	// 是否记录堆栈
	EnableStackTrace bool
	// 非生产环境在响应里带上 panic 信息
	ExposeDetails bool
	// 是否在 span 中记录异常
	RecordInSpan bool
}

// NewRecoverConfig 创建 recover 配置
func NewRecoverConfig() RecoverConfig {
	return RecoverConfig{
		EnableStackTrace: true,
		ExposeDetails:    !config.Cfg.IsProduction(),
		RecordInSpan:     config.Cfg.OTelEnabled,
	}
}

// RecoverMiddleware 创建 recover 中间件
func RecoverMiddleware() app.HandlerFunc {
	return RecoverMiddlewareWithConfig(NewRecoverConfig())
}

// RecoverMiddlewareWithConfig 带配置的 recover 中间件
func RecoverMiddlewareWithConfig(cfg RecoverConfig) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				handlePanic(ctx, c, err, cfg)
			}
		}()

		c.Next(ctx)
	}
}

// handlePanic 记录日志并返回 500，表单会话不受影响
func handlePanic(ctx context.Context, c *app.RequestContext, err interface{}, cfg RecoverConfig) {
	var stack string
	if cfg.EnableStackTrace {
		stack = callerStack(4)
	}

	fields := []zap.Field{
		zap.String("panic", fmt.Sprintf("%v", err)),
		zap.String("path", string(c.Path())),
		zap.String("method", string(c.Method())),
		zap.String("client_ip", c.ClientIP()),
		zap.String("request_id", GetRequestID(c)),
	}
	if stack != "" {
		fields = append(fields, zap.String("stack", stack))
	}
	logger.Logger.Error("[PANIC RECOVERED]", fields...)

	if cfg.RecordInSpan {
		span := trace.SpanFromContext(ctx)
		span.RecordError(fmt.Errorf("panic: %v", err))
		span.SetStatus(codes.Error, "panic recovered")
	}

	c.Abort()
	if cfg.ExposeDetails {
		response.ErrorWithDetails(ctx, c, errors.InternalError, map[string]interface{}{
			"panic": fmt.Sprintf("%v", err),
		})
		return
	}
	response.Error(ctx, c, errors.InternalError)
}

// callerStack 当前 goroutine 的调用栈，跳过 runtime 帧
func callerStack(skip int) string {
	var sb strings.Builder

	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			fmt.Fprintf(&sb, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}

	return sb.String()
}
