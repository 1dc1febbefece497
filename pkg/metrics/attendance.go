package metrics

import (
	"context"
)

// RecordSubmissionSucceeded 记录提交成功
func RecordSubmissionSucceeded(site, attendance string, duration float64) {
	if m := GetMetrics(); m != nil {
		m.RecordSubmission(context.Background(), site, attendance, "success", duration)
	}
}

// RecordSubmissionFailed 记录提交失败
func RecordSubmissionFailed(site, attendance string, duration float64) {
	if m := GetMetrics(); m != nil {
		m.RecordSubmission(context.Background(), site, attendance, "failed", duration)
	}
}

// FormOpened 增加活跃表单
func FormOpened(site string) {
	if m := GetMetrics(); m != nil {
		m.AddActiveForms(context.Background(), site, 1)
	}
}

// FormClosed 减少活跃表单
func FormClosed(site string) {
	if m := GetMetrics(); m != nil {
		m.AddActiveForms(context.Background(), site, -1)
	}
}

// RecordEventPublished 记录事件发布
func RecordEventPublished(eventType string, err error) {
	m := GetMetrics()
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "failed"
	}
	m.RecordEventPublished(context.Background(), eventType, status)
}
