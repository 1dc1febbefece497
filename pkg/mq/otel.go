package mq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// PublishWithTracing 发布消息并添加追踪，追踪上下文写入消息头
func PublishWithTracing(
	ctx context.Context,
	ch *amqp.Channel,
	serviceName, exchange, routingKey string,
	msg amqp.Publishing,
) error {
	tracer := otel.Tracer(serviceName + ".rabbitmq")
	meter := otel.Meter(serviceName + ".rabbitmq")

	ctx, span := tracer.Start(ctx, "rabbitmq.publish."+exchange,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystem("rabbitmq"),
			attribute.String("messaging.destination.name", exchange),
			attribute.String("messaging.rabbitmq.routing_key", routingKey),
			semconv.MessagingMessageID(msg.MessageId),
		),
	)
	defer span.End()

	headers := make(amqp.Table, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	otel.GetTextMapPropagator().Inject(ctx, &MessageHeaderCarrier{Headers: headers})
	msg.Headers = headers

	start := time.Now()
	err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
	elapsed := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	labels := metric.WithAttributes(
		attribute.String("messaging.rabbitmq.exchange", exchange),
		attribute.String("messaging.rabbitmq.routing_key", routingKey),
		attribute.String("messaging.status", status),
	)
	if counter, cerr := meter.Int64Counter("mq.messages.total",
		metric.WithDescription("Total number of RabbitMQ messages published"),
		metric.WithUnit("{message}"),
	); cerr == nil {
		counter.Add(ctx, 1, labels)
	}
	if hist, herr := meter.Float64Histogram("mq.publish.duration",
		metric.WithDescription("RabbitMQ publish duration"),
		metric.WithUnit("s"),
	); herr == nil {
		hist.Record(ctx, elapsed, labels)
	}

	return err
}

// MessageHeaderCarrier 实现 propagation.TextMapCarrier 接口
type MessageHeaderCarrier struct {
	Headers amqp.Table
}

func (m *MessageHeaderCarrier) Get(key string) string {
	if val, ok := m.Headers[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func (m *MessageHeaderCarrier) Set(key, value string) {
	if m.Headers == nil {
		m.Headers = make(amqp.Table)
	}
	m.Headers[key] = value
}

func (m *MessageHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		keys = append(keys, k)
	}
	return keys
}
