package service

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"KayaAttend/internal/model"
	pkgerrors "KayaAttend/pkg/errors"
)

// FieldErrors 校验失败时按字段返回的错误
type FieldErrors map[string]string

// ValidationError 携带字段错误的 VALIDATION_FAILED
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return pkgerrors.ValidationFailed.Message
}

func (e *ValidationError) Unwrap() error {
	return pkgerrors.ValidationFailed
}

// Form 单个站点的考勤表单状态机
// editing -> confirming -> submitting -> succeeded/failed -> editing
// submitting 只在网关调用期间存在，不会停留
type Form struct {
	mu sync.Mutex

	id    int64
	site  model.Site
	state model.FormState

	draft   model.AttendanceDraft
	touched model.TouchedFlags
	clock   model.ClockSnapshot
	notice  model.Notice

	// 提交中的记录对应的 24 小时制展示时间
	submittingDisplay string

	closed bool
}

func NewForm(id int64, site model.Site) *Form {
	return &Form{
		id:    id,
		site:  site,
		state: model.FormStateEditing,
	}
}

func (f *Form) ID() int64 {
	return f.id
}

func (f *Form) Site() model.Site {
	return f.site
}

// ObserveClock 时钟回调，保存最近一次快照
func (f *Form) ObserveClock(snapshot model.ClockSnapshot) {
	f.mu.Lock()
	f.clock = snapshot
	f.mu.Unlock()
}

// SetFullName 超过 50 个字符的部分被截断
func (f *Form) SetFullName(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireEditing(); err != nil {
		return err
	}

	f.draft.FullName = truncateRunes(name, model.FullNameMaxLength)
	f.touched.FullName = true
	return nil
}

func (f *Form) SetStatus(status model.AttendanceStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireEditing(); err != nil {
		return err
	}

	if status != model.AttendanceStatusUnset && !status.Valid() {
		return pkgerrors.InvalidRequest
	}

	f.draft.Status = status
	f.touched.Status = true
	return nil
}

// Touch 字段失焦
func (f *Form) Touch(field string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireEditing(); err != nil {
		return err
	}

	switch field {
	case model.FieldFullName:
		f.touched.FullName = true
	case model.FieldStatus:
		f.touched.Status = true
	default:
		return pkgerrors.InvalidRequest
	}

	return nil
}

// RequestSubmit 校验通过进入 confirming，否则停留在 editing 并返回 *ValidationError
func (f *Form) RequestSubmit() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireEditing(); err != nil {
		return err
	}

	f.touched = model.TouchedFlags{FullName: true, Status: true}

	if errs := f.fieldErrors(); len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}

	f.notice = model.Notice{}
	f.state = model.FormStateConfirming
	return nil
}

// Cancel 关闭确认对话框，草稿不变
func (f *Form) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != model.FormStateConfirming {
		return pkgerrors.InvalidTransition
	}

	f.state = model.FormStateEditing
	return nil
}

// BeginSubmit 进入 submitting 并用最近的时钟快照生成提交记录
func (f *Form) BeginSubmit() (model.SubmissionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case model.FormStateConfirming:
	case model.FormStateSubmitting:
		return model.SubmissionRecord{}, pkgerrors.SubmissionInProgress
	default:
		return model.SubmissionRecord{}, pkgerrors.InvalidTransition
	}

	record, err := f.buildRecord()
	if err != nil {
		return model.SubmissionRecord{}, err
	}

	f.state = model.FormStateSubmitting
	f.submittingDisplay = f.clock.Time
	return record, nil
}

// CompleteSubmit 根据网关结果结算，最终总是回到 editing
func (f *Form) CompleteSubmit(record model.SubmissionRecord, submitErr error) model.Notice {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != model.FormStateSubmitting {
		return f.notice
	}

	if submitErr != nil {
		f.state = model.FormStateFailed
		f.notice = model.Notice{
			Kind:    model.NoticeFailure,
			Message: model.FailureNoticeMessage,
		}
	} else {
		f.state = model.FormStateSucceeded
		submitted := record
		f.notice = model.Notice{
			Kind:        model.NoticeSuccess,
			Record:      &submitted,
			DisplayTime: f.submittingDisplay,
		}
		f.draft = model.AttendanceDraft{}
		f.touched = model.TouchedFlags{}
	}

	f.submittingDisplay = ""
	f.state = model.FormStateEditing
	return f.notice
}

// Dismiss 关闭成功或失败对话框
func (f *Form) Dismiss() {
	f.mu.Lock()
	f.notice = model.Notice{}
	f.mu.Unlock()
}

// Close 关闭后所有结果都被丢弃
func (f *Form) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *Form) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Form) State() model.FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Form) Snapshot() model.FormSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := model.FormSnapshot{
		ID:          f.id,
		Site:        f.site,
		State:       f.state,
		Draft:       f.draft,
		Touched:     f.touched,
		FieldErrors: f.fieldErrors(),
		Clock:       f.clock,
		Notice:      f.notice,
	}

	// 确认对话框展示的内容，按当前时钟生成
	if f.state == model.FormStateConfirming {
		if record, err := f.buildRecord(); err == nil {
			snap.Pending = &record
		}
	}

	return snap
}

func (f *Form) requireEditing() error {
	if f.state != model.FormStateEditing {
		return pkgerrors.InvalidTransition
	}
	return nil
}

// fieldErrors 只对被操作过的字段报错，调用方持有锁
func (f *Form) fieldErrors() FieldErrors {
	errs := FieldErrors{}

	if f.touched.FullName && f.draft.FullName == "" {
		errs[model.FieldFullName] = model.FieldRequiredMessage
	}
	if f.touched.Status && !f.draft.Status.Valid() {
		errs[model.FieldStatus] = model.FieldRequiredMessage
	}

	return errs
}

// buildRecord 调用方持有锁
func (f *Form) buildRecord() (model.SubmissionRecord, error) {
	// 姓名按输入原样提交，只要求非空
	name := f.draft.FullName
	if name == "" || !f.draft.Status.Valid() {
		return model.SubmissionRecord{}, &ValidationError{Fields: f.fieldErrors()}
	}

	time12, err := To12Hour(f.clock.Time)
	if err != nil {
		return model.SubmissionRecord{}, fmt.Errorf("convert clock time: %w", err)
	}

	return model.SubmissionRecord{
		Site:       f.site.Name,
		Name:       name,
		Attendance: f.draft.Status,
		Date:       f.clock.Date,
		Time:       time12,
	}, nil
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}

	runes := []rune(s)
	return string(runes[:max])
}
