package response

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"KayaAttend/pkg/errors"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{}            `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// StatusOf 业务错误码对应的 HTTP 状态码
func StatusOf(err error) int {
	var def errors.Definition
	if !stderrors.As(err, &def) {
		return http.StatusInternalServerError
	}

	switch def.Code {
	case errors.InvalidRequest.Code:
		return http.StatusBadRequest // 400
	case errors.SiteNotFound.Code, errors.FormNotFound.Code:
		return http.StatusNotFound // 404
	case errors.SubmissionInProgress.Code, errors.InvalidTransition.Code:
		return http.StatusConflict // 409
	case errors.FormSessionExpired.Code:
		return http.StatusGone // 410
	case errors.ValidationFailed.Code:
		return http.StatusUnprocessableEntity // 422
	case errors.TooManyRequests.Code:
		return http.StatusTooManyRequests // 429
	case errors.SubmissionFailed.Code:
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// Error 返回错误响应，未知错误不向外暴露原始信息
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithDetails(ctx, c, err, nil)
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	def := errors.InternalError
	_ = stderrors.As(err, &def)

	c.JSON(StatusOf(err), ErrorResponse{
		Error: ErrorDetail{
			Code:    def.Code,
			Message: def.Message,
			Details: details,
		},
	})
}

// FieldErrors 把字段错误放进 details.fields
func FieldErrors(ctx context.Context, c *app.RequestContext, err error, fields map[string]string) {
	ErrorWithDetails(ctx, c, err, map[string]interface{}{"fields": fields})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

func Created(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{
		Data: data,
	})
}

func SuccessWithMeta(ctx context.Context, c *app.RequestContext, data interface{}, meta map[string]interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
		Meta: meta,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    errors.InvalidRequest.Code,
			Message: err.Error(),
		},
	})
}

// NoContent 返回 204 No Content（用于 DELETE 等操作）
func NoContent(ctx context.Context, c *app.RequestContext) {
	c.Status(http.StatusNoContent)
}
