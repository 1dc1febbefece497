package errors

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 通用错误。
var (
	InvalidRequest  = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests"}
	InternalError   = Definition{Code: "INTERNAL_ERROR", Message: "Internal error"}
)

// 站点模块错误。
var (
	SiteNotFound = Definition{Code: "SITE_NOT_FOUND", Message: "Site not found"}
)

// 考勤表单模块错误。
var (
	ValidationFailed     = Definition{Code: "VALIDATION_FAILED", Message: "Validation failed"}
	FormNotFound         = Definition{Code: "FORM_NOT_FOUND", Message: "Form not found"}
	FormSessionExpired   = Definition{Code: "FORM_SESSION_EXPIRED", Message: "Your session has timed out"}
	SubmissionInProgress = Definition{Code: "SUBMISSION_IN_PROGRESS", Message: "Submission already in progress"}
	InvalidTransition    = Definition{Code: "INVALID_TRANSITION", Message: "Action not allowed in current form state"}
	SubmissionFailed     = Definition{Code: "SUBMISSION_FAILED", Message: "Failed to record attendance. Please try again."}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	InvalidRequest.Code:       InvalidRequest,
	TooManyRequests.Code:      TooManyRequests,
	InternalError.Code:        InternalError,
	SiteNotFound.Code:         SiteNotFound,
	ValidationFailed.Code:     ValidationFailed,
	FormNotFound.Code:         FormNotFound,
	FormSessionExpired.Code:   FormSessionExpired,
	SubmissionInProgress.Code: SubmissionInProgress,
	InvalidTransition.Code:    InvalidTransition,
	SubmissionFailed.Code:     SubmissionFailed,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}
