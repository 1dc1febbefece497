package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"KayaAttend/internal/model"
	"KayaAttend/pkg/logger"
	"KayaAttend/pkg/metrics"
	"KayaAttend/pkg/snowflake"
	"KayaAttend/storage/mq"
)

// RoutingKeyAttendanceRecorded 考勤成功事件的路由键
const RoutingKeyAttendanceRecorded = model.EventTypeAttendanceRecorded

// PublishFunc 底层发布函数，测试中可以替换
type PublishFunc func(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error

// Producer 考勤事件生产者
type Producer struct {
	publish PublishFunc
	now     func() time.Time
}

func NewProducer(publish PublishFunc) *Producer {
	if publish == nil {
		publish = mq.PublishMessage
	}
	return &Producer{publish: publish, now: time.Now}
}

// PublishAttendanceRecorded 发布考勤成功事件，失败只返回错误，不影响提交结果
func (p *Producer) PublishAttendanceRecorded(ctx context.Context, formID int64, record model.SubmissionRecord) error {
	id, err := snowflake.NextID()
	if err != nil {
		logger.Logger.Error("Failed to generate message ID",
			zap.Int64("form_id", formID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to generate message ID: %w", err)
	}

	event := model.NewAttendanceRecordedEvent(
		fmt.Sprintf("attendance_%d", id),
		formID,
		record,
		p.now().UTC().Format(time.RFC3339),
	)

	err = p.publish(ctx, mq.AttendanceExchange, RoutingKeyAttendanceRecorded, event.EventKey, event)
	metrics.RecordEventPublished(event.EventType, err)
	if err != nil {
		logger.Logger.Error("Failed to publish attendance event",
			zap.String("event_key", event.EventKey),
			zap.Int64("form_id", formID),
			zap.String("site", record.Site),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published attendance event",
		zap.String("event_key", event.EventKey),
		zap.Int64("form_id", formID),
		zap.String("site", record.Site),
		zap.String("attendance", string(record.Attendance)),
	)

	return nil
}
