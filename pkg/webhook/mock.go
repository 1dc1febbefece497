package webhook

import (
	"context"
	"sync"

	"KayaAttend/internal/model"
)

// MockClient 记录每次调用，用于开发环境和测试
type MockClient struct {
	mu      sync.Mutex
	calls   []model.SubmissionRecord
	failErr error

	// gate 非空时 Submit 会阻塞直到 gate 关闭，started 在进入 Submit 时收到通知
	gate    chan struct{}
	started chan struct{}
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

// FailWith 之后的调用都返回 err，传 nil 恢复
func (m *MockClient) FailWith(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

// Block 让后续调用阻塞，返回的 started 在每次进入 Submit 时收到一个值
func (m *MockClient) Block() (release func(), started <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gate := make(chan struct{})
	m.gate = gate
	m.started = make(chan struct{}, 16)

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }, m.started
}

func (m *MockClient) Submit(ctx context.Context, record model.SubmissionRecord) error {
	m.mu.Lock()
	m.calls = append(m.calls, record)
	gate, started, failErr := m.gate, m.started, m.failErr
	m.mu.Unlock()

	if gate != nil {
		started <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return failErr
}

// Calls 返回调用记录的副本
func (m *MockClient) Calls() []model.SubmissionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.SubmissionRecord, len(m.calls))
	copy(out, m.calls)
	return out
}
