package model

// AttendanceStatus 考勤动作
type AttendanceStatus string

const (
	AttendanceStatusUnset   AttendanceStatus = ""
	AttendanceStatusSignIn  AttendanceStatus = "Sign In"
	AttendanceStatusSignOut AttendanceStatus = "Sign Out"
)

// Valid 只有签到和签退是可提交的状态
func (s AttendanceStatus) Valid() bool {
	return s == AttendanceStatusSignIn || s == AttendanceStatusSignOut
}

// ParseAttendanceStatus 解析外部传入的状态，未知值返回 false
func ParseAttendanceStatus(v string) (AttendanceStatus, bool) {
	switch AttendanceStatus(v) {
	case AttendanceStatusSignIn:
		return AttendanceStatusSignIn, true
	case AttendanceStatusSignOut:
		return AttendanceStatusSignOut, true
	case AttendanceStatusUnset:
		return AttendanceStatusUnset, true
	default:
		return AttendanceStatusUnset, false
	}
}

// FullNameMaxLength 姓名最大长度（按字符计）
const FullNameMaxLength = 50

// FieldRequiredMessage 必填字段的提示文案
const FieldRequiredMessage = "This field is required"

const (
	FieldFullName = "full_name"
	FieldStatus   = "status"
)

// AttendanceDraft 正在编辑、尚未提交的考勤
type AttendanceDraft struct {
	FullName string           `json:"full_name"`
	Status   AttendanceStatus `json:"status"`
}

// TouchedFlags 字段是否被用户操作过，只用于决定何时展示校验错误
type TouchedFlags struct {
	FullName bool `json:"full_name"`
	Status   bool `json:"status"`
}

// ClockSnapshot 固定时区下的当前日期和时间
type ClockSnapshot struct {
	Date string `json:"date"` // DD/MM/YYYY
	Time string `json:"time"` // HH:MM:SS ACDT
}

// SubmissionRecord 确认时生成的不可变快照，字段顺序即 webhook 请求体顺序
type SubmissionRecord struct {
	Site       string           `json:"site"`
	Name       string           `json:"name"`
	Attendance AttendanceStatus `json:"attendance"`
	Date       string           `json:"date"`
	Time       string           `json:"time"` // 12 小时制 H:MMAM/PM
}

// FormState 表单状态机
type FormState string

const (
	FormStateEditing    FormState = "editing"
	FormStateConfirming FormState = "confirming"
	FormStateSubmitting FormState = "submitting"
	FormStateSucceeded  FormState = "succeeded"
	FormStateFailed     FormState = "failed"
)

// NoticeKind 表单回到编辑态后需要展示的对话框
type NoticeKind string

const (
	NoticeNone    NoticeKind = ""
	NoticeSuccess NoticeKind = "success"
	NoticeFailure NoticeKind = "failure"
)

// FailureNoticeMessage 提交失败时展示给用户的提示
const FailureNoticeMessage = "Failed to record attendance. Please try again."

// Notice 成功时携带已提交记录（以及展示用的 24 小时制时间），失败时携带提示文案
type Notice struct {
	Kind        NoticeKind        `json:"kind"`
	Record      *SubmissionRecord `json:"record,omitempty"`
	DisplayTime string            `json:"display_time,omitempty"`
	Message     string            `json:"message,omitempty"`
}

// FormSnapshot 表单某一时刻的只读视图
type FormSnapshot struct {
	ID          int64
	Site        Site
	State       FormState
	Draft       AttendanceDraft
	Touched     TouchedFlags
	FieldErrors map[string]string
	Clock       ClockSnapshot
	Notice      Notice
	Pending     *SubmissionRecord // 仅在 confirming 时存在
}
