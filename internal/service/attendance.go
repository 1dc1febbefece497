package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"KayaAttend/internal/model"
	pkgerrors "KayaAttend/pkg/errors"
	"KayaAttend/pkg/logger"
	"KayaAttend/pkg/metrics"
	"KayaAttend/pkg/webhook"
)

const (
	defaultIdleTimeout   = 2 * time.Minute
	defaultSubmitTimeout = 10 * time.Second

	// 过期表单 ID 保留多久，用于展示超时页面
	expiredRetention = time.Hour
)

// EventPublisher 提交成功后发布事件，失败只记录日志
type EventPublisher func(ctx context.Context, formID int64, record model.SubmissionRecord) error

// AttendanceOptions 创建 AttendanceService 的依赖
type AttendanceOptions struct {
	Sites         *SiteRegistry
	Clock         *ClockSource
	Gateway       webhook.Client
	Publisher     EventPublisher
	IdleTimeout   time.Duration
	SubmitTimeout time.Duration
	NextID        func() (int64, error)
}

// AttendanceService 管理所有表单会话：打开、操作、提交、过期
type AttendanceService struct {
	sites   *SiteRegistry
	clock   *ClockSource
	gateway webhook.Client
	publish EventPublisher

	idleTimeout   time.Duration
	submitTimeout time.Duration
	nextID        func() (int64, error)
	now           func() time.Time

	mu      sync.Mutex
	forms   map[int64]*formSession
	expired map[int64]time.Time
	// closing 之后不再登记新的事件发布，events.Add 和 closing 都在 mu 下
	closing bool

	events sync.WaitGroup
}

type formSession struct {
	form     *Form
	sub      *ClockSubscription
	lastSeen time.Time
}

var attendanceService *AttendanceService

// InitAttendance 设置全局考勤服务
func InitAttendance(svc *AttendanceService) {
	attendanceService = svc
}

func Attendance() *AttendanceService {
	return attendanceService
}

func NewAttendanceService(opts AttendanceOptions) *AttendanceService {
	if opts.Sites == nil {
		opts.Sites = Sites()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = defaultSubmitTimeout
	}
	if opts.NextID == nil {
		var seq int64
		var seqMu sync.Mutex
		opts.NextID = func() (int64, error) {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return seq, nil
		}
	}

	return &AttendanceService{
		sites:         opts.Sites,
		clock:         opts.Clock,
		gateway:       opts.Gateway,
		publish:       opts.Publisher,
		idleTimeout:   opts.IdleTimeout,
		submitTimeout: opts.SubmitTimeout,
		nextID:        opts.NextID,
		now:           time.Now,
		forms:         make(map[int64]*formSession),
		expired:       make(map[int64]time.Time),
	}
}

func (s *AttendanceService) Sites() *SiteRegistry {
	return s.sites
}

func (s *AttendanceService) Clock() *ClockSource {
	return s.clock
}

// OpenForm 为站点创建新的表单会话并订阅时钟
func (s *AttendanceService) OpenForm(ctx context.Context, slug string) (model.FormSnapshot, error) {
	site, err := s.sites.Resolve(slug)
	if err != nil {
		return model.FormSnapshot{}, err
	}

	id, err := s.nextID()
	if err != nil {
		logger.Logger.Error("Failed to generate form ID", zap.Error(err))
		return model.FormSnapshot{}, fmt.Errorf("generate form id: %w", err)
	}

	form := NewForm(id, site)
	sub := s.clock.Start(form.ObserveClock)

	s.mu.Lock()
	s.forms[id] = &formSession{form: form, sub: sub, lastSeen: s.now()}
	s.mu.Unlock()

	metrics.FormOpened(site.Name)
	logger.Logger.Info("Form session opened",
		zap.Int64("form_id", id),
		zap.String("site", site.Name),
	)

	return form.Snapshot(), nil
}

// Form 读取表单，同时刷新空闲时间
func (s *AttendanceService) Form(id int64) (model.FormSnapshot, error) {
	fs, err := s.lookup(id)
	if err != nil {
		return model.FormSnapshot{}, err
	}
	return fs.form.Snapshot(), nil
}

func (s *AttendanceService) SetFullName(id int64, name string) (model.FormSnapshot, error) {
	return s.apply(id, func(f *Form) error { return f.SetFullName(name) })
}

func (s *AttendanceService) SetStatus(id int64, status model.AttendanceStatus) (model.FormSnapshot, error) {
	return s.apply(id, func(f *Form) error { return f.SetStatus(status) })
}

func (s *AttendanceService) Touch(id int64, field string) (model.FormSnapshot, error) {
	return s.apply(id, func(f *Form) error { return f.Touch(field) })
}

// RequestSubmit 校验失败返回 *ValidationError，快照里带字段错误
func (s *AttendanceService) RequestSubmit(id int64) (model.FormSnapshot, error) {
	return s.apply(id, func(f *Form) error { return f.RequestSubmit() })
}

func (s *AttendanceService) Cancel(id int64) (model.FormSnapshot, error) {
	return s.apply(id, func(f *Form) error { return f.Cancel() })
}

func (s *AttendanceService) Dismiss(id int64) (model.FormSnapshot, error) {
	return s.apply(id, func(f *Form) error {
		f.Dismiss()
		return nil
	})
}

// Confirm 发送记录到网关，同一表单同时只会有一次调用
// 网关调用不跟随请求取消，只受 submitTimeout 限制
func (s *AttendanceService) Confirm(ctx context.Context, id int64) (model.FormSnapshot, error) {
	fs, err := s.lookup(id)
	if err != nil {
		return model.FormSnapshot{}, err
	}

	record, err := fs.form.BeginSubmit()
	if err != nil {
		return fs.form.Snapshot(), err
	}

	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.submitTimeout)
	defer cancel()

	start := time.Now()
	submitErr := s.gateway.Submit(submitCtx, record)
	elapsed := time.Since(start).Seconds()

	if submitErr != nil {
		metrics.RecordSubmissionFailed(record.Site, string(record.Attendance), elapsed)
	} else {
		metrics.RecordSubmissionSucceeded(record.Site, string(record.Attendance), elapsed)
	}

	// 表单已关闭，结果丢弃
	if fs.form.Closed() {
		logger.Logger.Info("Discarding submission result for closed form",
			zap.Int64("form_id", id),
			zap.Bool("succeeded", submitErr == nil),
		)
		return model.FormSnapshot{}, pkgerrors.FormSessionExpired
	}

	fs.form.CompleteSubmit(record, submitErr)
	s.touch(fs)

	if submitErr != nil {
		logger.Logger.Warn("Attendance submission failed",
			zap.Int64("form_id", id),
			zap.String("site", record.Site),
			zap.Error(submitErr),
		)
		return fs.form.Snapshot(), fmt.Errorf("%w: %v", pkgerrors.SubmissionFailed, submitErr)
	}

	logger.Logger.Info("Attendance recorded",
		zap.Int64("form_id", id),
		zap.String("site", record.Site),
		zap.String("attendance", string(record.Attendance)),
		zap.String("time", record.Time),
	)

	s.publishRecorded(ctx, id, record)

	return fs.form.Snapshot(), nil
}

// CloseForm 离开表单页面，释放时钟订阅
func (s *AttendanceService) CloseForm(id int64) error {
	s.mu.Lock()
	fs, ok := s.forms[id]
	if ok {
		delete(s.forms, id)
	}
	s.mu.Unlock()

	if !ok {
		return pkgerrors.FormNotFound
	}

	s.release(fs, "closed")
	return nil
}

// EvictIdle 关闭超过空闲时间的表单，提交中的表单不会被回收
func (s *AttendanceService) EvictIdle() int {
	now := s.now()

	var evicted []*formSession

	s.mu.Lock()
	for id, fs := range s.forms {
		if now.Sub(fs.lastSeen) < s.idleTimeout {
			continue
		}
		if fs.form.State() == model.FormStateSubmitting {
			continue
		}
		delete(s.forms, id)
		s.expired[id] = now
		evicted = append(evicted, fs)
	}
	for id, at := range s.expired {
		if now.Sub(at) > expiredRetention {
			delete(s.expired, id)
		}
	}
	s.mu.Unlock()

	for _, fs := range evicted {
		s.release(fs, "expired")
	}

	return len(evicted)
}

// RunJanitor 定时回收空闲表单，ctx 取消后退出
func (s *AttendanceService) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Logger.Info("Form janitor started",
		zap.Duration("interval", interval),
		zap.Duration("idle_timeout", s.idleTimeout),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Logger.Info("Form janitor stopped")
			return
		case <-ticker.C:
			if n := s.EvictIdle(); n > 0 {
				logger.Logger.Info("Evicted idle form sessions", zap.Int("count", n))
			}
		}
	}
}

// Shutdown 关闭所有表单并等待事件发布完成
func (s *AttendanceService) Shutdown() {
	s.mu.Lock()
	s.closing = true
	sessions := make([]*formSession, 0, len(s.forms))
	for id, fs := range s.forms {
		sessions = append(sessions, fs)
		delete(s.forms, id)
	}
	s.mu.Unlock()

	for _, fs := range sessions {
		s.release(fs, "shutdown")
	}

	s.events.Wait()
}

// ActiveForms 当前打开的表单数
func (s *AttendanceService) ActiveForms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.forms)
}

func (s *AttendanceService) apply(id int64, op func(f *Form) error) (model.FormSnapshot, error) {
	fs, err := s.lookup(id)
	if err != nil {
		return model.FormSnapshot{}, err
	}

	err = op(fs.form)
	return fs.form.Snapshot(), err
}

func (s *AttendanceService) lookup(id int64) (*formSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fs, ok := s.forms[id]
	if !ok {
		if _, gone := s.expired[id]; gone {
			return nil, pkgerrors.FormSessionExpired
		}
		return nil, pkgerrors.FormNotFound
	}

	fs.lastSeen = s.now()
	return fs, nil
}

func (s *AttendanceService) touch(fs *formSession) {
	s.mu.Lock()
	fs.lastSeen = s.now()
	s.mu.Unlock()
}

func (s *AttendanceService) release(fs *formSession, reason string) {
	fs.sub.Stop()
	fs.form.Close()

	site := fs.form.Site()
	metrics.FormClosed(site.Name)
	logger.Logger.Info("Form session released",
		zap.Int64("form_id", fs.form.ID()),
		zap.String("site", site.Name),
		zap.String("reason", reason),
	)
}

func (s *AttendanceService) publishRecorded(ctx context.Context, id int64, record model.SubmissionRecord) {
	if s.publish == nil {
		return
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		logger.Logger.Warn("Attendance event dropped during shutdown", zap.Int64("form_id", id))
		return
	}
	s.events.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.events.Done()

		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := s.publish(pubCtx, id, record); err != nil {
			logger.Logger.Warn("Attendance event not published",
				zap.Int64("form_id", id),
				zap.Error(err),
			)
		}
	}()
}

// IsValidationError 提取字段错误
func IsValidationError(err error) (FieldErrors, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Fields, true
	}
	return nil, false
}
