package webhook

import (
	"context"
	"fmt"

	"KayaAttend/internal/model"
)

// Client 考勤记录提交网关，每次调用是一次独立的尝试，不重试
type Client interface {
	Submit(ctx context.Context, record model.SubmissionRecord) error
}

// StatusError 远端返回非 2xx
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook responded with status %d", e.StatusCode)
}

var (
	client Client
)

// Init 设置全局网关
func Init(c Client) {
	client = c
}

// GetClient 获取网关实例
func GetClient() Client {
	return client
}
