package model

const (
	EventTypeAttendanceRecorded = "attendance.recorded"
)

// EventMessage 事件消息（用于事件总线）
type EventMessage struct {
	Payload    map[string]interface{} `json:"payload"`
	EventKey   string                 `json:"event_key"`
	EventType  string                 `json:"event_type"`
	OccurredAt string                 `json:"occurred_at"`
}

// NewAttendanceRecordedEvent 由已成功提交的记录构造事件，eventKey 用于下游幂等
func NewAttendanceRecordedEvent(eventKey string, formID int64, record SubmissionRecord, occurredAt string) EventMessage {
	return EventMessage{
		EventKey:   eventKey,
		EventType:  EventTypeAttendanceRecorded,
		OccurredAt: occurredAt,
		Payload: map[string]interface{}{
			"form_id":    formID,
			"site":       record.Site,
			"name":       record.Name,
			"attendance": string(record.Attendance),
			"date":       record.Date,
			"time":       record.Time,
		},
	}
}
