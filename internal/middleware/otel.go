package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

var (
	// HTTP 相关指标，InitMetrics 之前为 nil
	httpServerRequestTotal   metric.Int64Counter
	httpServerDuration       metric.Float64Histogram
	httpServerActiveRequests metric.Int64UpDownCounter
)

// toValidUTF8 用户可控字符串写入指标前清洗
func toValidUTF8(val string) string {
	return strings.ToValidUTF8(val, "")
}

// InitMetrics 初始化 HTTP 指标
func InitMetrics(meter metric.Meter) error {
	var err error

	httpServerRequestTotal, err = meter.Int64Counter(
		"http.server.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	httpServerDuration, err = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return err
	}

	httpServerActiveRequests, err = meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// MetricsMiddleware 记录请求数和耗时，span 由 hertz tracing 中间件负责
// route 使用注册的路由模板（/:slug），避免站点名撑爆标签基数
func MetricsMiddleware() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if httpServerRequestTotal == nil {
			c.Next(ctx)
			return
		}

		start := time.Now()
		httpServerActiveRequests.Add(ctx, 1)
		defer httpServerActiveRequests.Add(ctx, -1)

		c.Next(ctx)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		labels := metric.WithAttributes(
			semconv.HTTPMethod(toValidUTF8(string(c.Method()))),
			semconv.HTTPRoute(route),
			semconv.HTTPStatusCode(c.Response.StatusCode()),
		)

		httpServerRequestTotal.Add(ctx, 1, labels)
		httpServerDuration.Record(ctx, time.Since(start).Seconds(), labels)
	}
}

// NewServerTracerConfig 创建 Hertz Server 的追踪配置
// 返回用于初始化 Hertz server 的配置选项和追踪中间件
func NewServerTracerConfig(opts ...hertztracing.Option) (config.Option, app.HandlerFunc) {
	tracer, cfg := hertztracing.NewServerTracer(opts...)
	return tracer, hertztracing.ServerMiddleware(cfg)
}
