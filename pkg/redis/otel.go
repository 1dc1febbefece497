package redis

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingHook Redis 追踪 Hook，同时记录命令数和耗时
type TracingHook struct {
	tracer trace.Tracer
	attrs  []attribute.KeyValue

	commandsTotal   metric.Int64Counter
	commandDuration metric.Float64Histogram
}

// NewTracingHook 创建追踪 Hook，指标创建失败时只保留追踪
func NewTracingHook(serviceName string, db int) *TracingHook {
	meter := otel.Meter(serviceName + ".redis")

	th := &TracingHook{
		tracer: otel.Tracer(serviceName + ".redis"),
		attrs: []attribute.KeyValue{
			semconv.DBSystemRedis,
			semconv.DBRedisDBIndex(db),
		},
	}

	th.commandsTotal, _ = meter.Int64Counter(
		"redis.commands.total",
		metric.WithDescription("Total number of Redis commands"),
		metric.WithUnit("{command}"),
	)
	th.commandDuration, _ = meter.Float64Histogram(
		"redis.command.duration",
		metric.WithDescription("Redis command duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)

	return th
}

// DialHook 实现 redis.Hook 接口
func (th *TracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

// ProcessHook 实现 redis.Hook 接口
func (th *TracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, cmd.Name(),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		// 只记录键名，限流键里带有客户端地址
		span.SetAttributes(
			semconv.DBOperation(cmd.Name()),
			attribute.StringSlice("redis.keys", extractKeys(cmd.Args())),
		)

		start := time.Now()
		err := next(ctx, cmd)
		th.record(ctx, cmd.Name(), time.Since(start), err, span)

		return err
	}
}

// ProcessPipelineHook 实现 redis.Hook 接口，限流用 TxPipeline 执行
func (th *TracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis.pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		names := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
		}
		span.SetAttributes(
			attribute.Int("redis.pipeline.count", len(cmds)),
			attribute.String("redis.pipeline.commands", strings.Join(names, ";")),
		)

		start := time.Now()
		err := next(ctx, cmds)
		th.record(ctx, "pipeline", time.Since(start), err, span)

		return err
	}
}

func (th *TracingHook) record(ctx context.Context, command string, elapsed time.Duration, err error, span trace.Span) {
	status := "success"
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case err == redis.Nil:
		status = "not_found"
		span.SetStatus(codes.Ok, "key not found")
	default:
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}

	labels := metric.WithAttributes(
		attribute.String("redis.command", command),
		attribute.String("redis.status", status),
	)
	if th.commandsTotal != nil {
		th.commandsTotal.Add(ctx, 1, labels)
	}
	if th.commandDuration != nil {
		th.commandDuration.Record(ctx, elapsed.Seconds(), labels)
	}
}

// extractKeys 提取命令中的键名，最多 5 个，地址部分打码
func extractKeys(args []interface{}) []string {
	keys := make([]string, 0, 2)

	// 第一个参数是命令名，跳过
	for i := 1; i < len(args) && len(keys) < 5; i++ {
		key, ok := args[i].(string)
		if !ok || !strings.Contains(key, ":") {
			continue
		}
		keys = append(keys, sanitizeKey(key))
	}

	return keys
}

// sanitizeKey "kaya:ratelimit:confirm:1.2.3.4" -> "kaya:ratelimit:confirm:***"
func sanitizeKey(key string) string {
	idx := strings.LastIndexByte(key, ':')
	if idx < 0 {
		return "***"
	}
	return key[:idx] + ":***"
}
