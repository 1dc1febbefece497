package dto

import "KayaAttend/internal/model"

// ========== Site 相关 DTO ==========

// SiteData 站点数据
type SiteData struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Path     string `json:"path"` // 百分号编码后的页面路径
	ColorTag string `json:"color_tag"`
}

// ========== Form 相关 DTO ==========

// OpenFormRequest 打开表单会话
type OpenFormRequest struct {
	Site string `json:"site"` // slug
}

// SetFullNameRequest 修改姓名
type SetFullNameRequest struct {
	FullName string `json:"full_name"`
}

// SetStatusRequest 修改签到/签退
type SetStatusRequest struct {
	Status string `json:"status"`
}

// TouchRequest 字段失焦
type TouchRequest struct {
	Field string `json:"field"`
}

// FormData 表单视图
type FormData struct {
	FormID      string                  `json:"form_id"`
	Site        SiteData                `json:"site"`
	State       model.FormState         `json:"state"`
	Draft       model.AttendanceDraft   `json:"draft"`
	Touched     model.TouchedFlags      `json:"touched"`
	FieldErrors map[string]string       `json:"field_errors,omitempty"`
	Clock       model.ClockSnapshot     `json:"clock"`
	Notice      *model.Notice           `json:"notice,omitempty"`
	Confirm     *model.SubmissionRecord `json:"confirm,omitempty"` // 确认对话框中展示的内容
}
