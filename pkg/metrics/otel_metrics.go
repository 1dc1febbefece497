package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 考勤提交相关指标
	SubmissionsTotal   metric.Int64Counter
	SubmissionDuration metric.Float64Histogram
	ActiveForms        metric.Int64UpDownCounter
	EventsPublished    metric.Int64Counter
}

var (
	// 全局指标实例
	metrics *OTelMetrics
	// meter 用于创建指标
	meter = otel.Meter("kaya-attendance")
)

// InitMetrics 初始化 OpenTelemetry 指标
func InitMetrics() error {
	var err error

	m := &OTelMetrics{}

	m.SubmissionsTotal, err = meter.Int64Counter(
		"attendance_submissions_total",
		metric.WithDescription("Total number of attendance submissions sent to the webhook"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		return err
	}

	m.SubmissionDuration, err = meter.Float64Histogram(
		"attendance_submission_duration_seconds",
		metric.WithDescription("Time spent calling the attendance webhook in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.ActiveForms, err = meter.Int64UpDownCounter(
		"attendance_active_forms",
		metric.WithDescription("Number of open attendance form sessions"),
		metric.WithUnit("{form}"),
	)
	if err != nil {
		return err
	}

	m.EventsPublished, err = meter.Int64Counter(
		"attendance_events_published_total",
		metric.WithDescription("Total number of attendance events published to the message queue"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	metrics = m
	return nil
}

// GetMetrics 获取全局指标实例，未初始化时为 nil
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordSubmission 记录一次 webhook 调用
func (m *OTelMetrics) RecordSubmission(ctx context.Context, site, attendance, status string, duration float64) {
	m.SubmissionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("site", site),
		attribute.String("attendance", attendance),
		attribute.String("status", status),
	))
	m.SubmissionDuration.Record(ctx, duration, metric.WithAttributes(
		attribute.String("status", status),
	))
}

// AddActiveForms 打开表单 +1，关闭 -1
func (m *OTelMetrics) AddActiveForms(ctx context.Context, site string, delta int64) {
	m.ActiveForms.Add(ctx, delta, metric.WithAttributes(
		attribute.String("site", site),
	))
}

// RecordEventPublished 记录事件发布结果
func (m *OTelMetrics) RecordEventPublished(ctx context.Context, eventType, status string) {
	m.EventsPublished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("status", status),
	))
}
