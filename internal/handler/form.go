package handler

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"KayaAttend/internal/middleware"
	"KayaAttend/internal/model"
	"KayaAttend/internal/model/dto"
	"KayaAttend/internal/service"
	pkgerrors "KayaAttend/pkg/errors"
	"KayaAttend/pkg/logger"
	"KayaAttend/pkg/response"
)

// OpenForm 为站点打开一个表单会话
// POST /v1/forms
func OpenForm(ctx context.Context, c *app.RequestContext) {
	var req dto.OpenFormRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	if req.Site == "" {
		response.Error(ctx, c, pkgerrors.InvalidRequest)
		return
	}

	snap, err := service.Attendance().OpenForm(ctx, req.Site)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Created(ctx, c, toFormData(snap))
}

// GetForm 表单当前视图
// GET /v1/forms/:form_id
func GetForm(ctx context.Context, c *app.RequestContext) {
	id, ok := formIDParam(ctx, c)
	if !ok {
		return
	}

	snap, err := service.Attendance().Form(id)
	writeForm(ctx, c, snap, err)
}

// SetFullName 修改姓名，超过 50 个字符截断
// PUT /v1/forms/:form_id/name
func SetFullName(ctx context.Context, c *app.RequestContext) {
	id, ok := formIDParam(ctx, c)
	if !ok {
		return
	}

	var req dto.SetFullNameRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	snap, err := service.Attendance().SetFullName(id, req.FullName)
	writeForm(ctx, c, snap, err)
}

// SetStatus 选择签到或签退
// PUT /v1/forms/:form_id/status
func SetStatus(ctx context.Context, c *app.RequestContext) {
	id, ok := formIDParam(ctx, c)
	if !ok {
		return
	}

	var req dto.SetStatusRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	// 接口只能选择，不能清空
	status, valid := model.ParseAttendanceStatus(req.Status)
	if !valid || status == model.AttendanceStatusUnset {
		response.Error(ctx, c, pkgerrors.InvalidRequest)
		return
	}

	snap, err := service.Attendance().SetStatus(id, status)
	writeForm(ctx, c, snap, err)
}

// TouchField 字段失焦
// POST /v1/forms/:form_id/touch
func TouchField(ctx context.Context, c *app.RequestContext) {
	id, ok := formIDParam(ctx, c)
	if !ok {
		return
	}

	var req dto.TouchRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	snap, err := service.Attendance().Touch(id, req.Field)
	writeForm(ctx, c, snap, err)
}

// RequestSubmit 校验通过后进入确认
// POST /v1/forms/:form_id/submit
func RequestSubmit(ctx context.Context, c *app.RequestContext) {
	id, ok := formIDParam(ctx, c)
	if !ok {
		return
	}

	snap, err := service.Attendance().RequestSubmit(id)
	writeForm(ctx, c, snap, err)
}

// CancelSubmit 关闭确认对话框
// POST /v1/forms/:form_id/cancel
func CancelSubmit(ctx context.Context, c *app.RequestContext) {
	id, ok := formIDParam(ctx, c)
	if !ok {
		return
	}

	snap, err := service.Attendance().Cancel(id)
	writeForm(ctx, c, snap, err)
}

// ConfirmSubmit 提交到 webhook
// POST /v1/forms/:form_id/confirm
func ConfirmSubmit(ctx context.Context, c *app.RequestContext) {
	id, ok := formIDParam(ctx, c)
	if !ok {
		return
	}

	snap, err := service.Attendance().Confirm(ctx, id)
	if err != nil && errors.Is(err, pkgerrors.SubmissionFailed) {
		logger.Logger.Warn("Confirm failed",
			zap.Int64("form_id", id),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		// 失败时草稿保留，把表单一起返回方便重试
		response.ErrorWithDetails(ctx, c, err, map[string]interface{}{"form": toFormData(snap)})
		return
	}

	writeForm(ctx, c, snap, err)
}

// DismissNotice 关闭成功或失败对话框
// POST /v1/forms/:form_id/dismiss
func DismissNotice(ctx context.Context, c *app.RequestContext) {
	id, ok := formIDParam(ctx, c)
	if !ok {
		return
	}

	snap, err := service.Attendance().Dismiss(id)
	writeForm(ctx, c, snap, err)
}

// CloseForm 离开表单
// DELETE /v1/forms/:form_id
func CloseForm(ctx context.Context, c *app.RequestContext) {
	id, ok := formIDParam(ctx, c)
	if !ok {
		return
	}

	if err := service.Attendance().CloseForm(id); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.NoContent(ctx, c)
}

func formIDParam(ctx context.Context, c *app.RequestContext) (int64, bool) {
	id, err := parseFormID(c.Param("form_id"))
	if err != nil {
		response.Error(ctx, c, err)
		return 0, false
	}
	return id, true
}

func writeForm(ctx context.Context, c *app.RequestContext, snap model.FormSnapshot, err error) {
	if err == nil {
		response.Success(ctx, c, toFormData(snap))
		return
	}

	if fields, ok := service.IsValidationError(err); ok {
		response.FieldErrors(ctx, c, err, fields)
		return
	}

	response.Error(ctx, c, err)
}
