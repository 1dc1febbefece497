package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/test/assert"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/hertz-contrib/sessions/cookie"

	"KayaAttend/config"
	"KayaAttend/internal/model"
	"KayaAttend/internal/model/dto"
	"KayaAttend/internal/service"
	"KayaAttend/pkg/webhook"
)

// 2024-03-05 14:30:00 ACDT
var scenarioInstant = time.Date(2024, time.March, 5, 4, 0, 0, 0, time.UTC)

type formEnvelope struct {
	Data dto.FormData `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

func newTestEngine(t *testing.T, gateway webhook.Client, idle time.Duration) (*route.Engine, *service.AttendanceService) {
	t.Helper()

	config.Cfg.CSRFEnabled = false

	clock, err := service.NewClockSource("Australia/Adelaide")
	assert.Nil(t, err)
	clock.WithNow(func() time.Time { return scenarioInstant })

	svc := service.NewAttendanceService(service.AttendanceOptions{
		Clock:         clock,
		Gateway:       gateway,
		IdleTimeout:   idle,
		SubmitTimeout: 2 * time.Second,
	})
	service.InitAttendance(svc)
	t.Cleanup(svc.Shutdown)

	engine := route.NewEngine(hertzconfig.NewOptions([]hertzconfig.Option{}))
	Register(engine, cookie.NewStore([]byte("test-session-secret")))
	return engine, svc
}

func jsonBody(s string) *ut.Body {
	return &ut.Body{Body: bytes.NewBufferString(s), Len: len(s)}
}

var jsonHeader = ut.Header{Key: "Content-Type", Value: "application/json"}

func decodeForm(t *testing.T, body []byte) dto.FormData {
	t.Helper()
	var env formEnvelope
	assert.Nil(t, json.Unmarshal(body, &env))
	return env.Data
}

func decodeError(t *testing.T, body []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	assert.Nil(t, json.Unmarshal(body, &env))
	return env
}

func openForm(t *testing.T, engine *route.Engine, slug string) string {
	t.Helper()
	w := ut.PerformRequest(engine, http.MethodPost, "/v1/forms", jsonBody(`{"site":"`+slug+`"}`), jsonHeader)
	assert.DeepEqual(t, http.StatusCreated, w.Code)
	return decodeForm(t, w.Body.Bytes()).FormID
}

func TestAPIScenario(t *testing.T) {
	gateway := webhook.NewMockClient()
	engine, _ := newTestEngine(t, gateway, time.Minute)

	id := openForm(t, engine, "stirling-library")
	base := "/v1/forms/" + id

	w := ut.PerformRequest(engine, http.MethodPut, base+"/name", jsonBody(`{"full_name":"Jane Doe"}`), jsonHeader)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	w = ut.PerformRequest(engine, http.MethodPut, base+"/status", jsonBody(`{"status":"Sign In"}`), jsonHeader)
	assert.DeepEqual(t, http.StatusOK, w.Code)

	w = ut.PerformRequest(engine, http.MethodPost, base+"/submit", nil)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	form := decodeForm(t, w.Body.Bytes())
	assert.DeepEqual(t, model.FormStateConfirming, form.State)
	assert.NotNil(t, form.Confirm)
	assert.DeepEqual(t, "2:30PM", form.Confirm.Time)

	w = ut.PerformRequest(engine, http.MethodPost, base+"/confirm", nil)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	form = decodeForm(t, w.Body.Bytes())
	assert.DeepEqual(t, model.FormStateEditing, form.State)
	assert.NotNil(t, form.Notice)
	assert.DeepEqual(t, model.NoticeSuccess, form.Notice.Kind)
	assert.DeepEqual(t, "14:30:00 ACDT", form.Notice.DisplayTime)
	assert.DeepEqual(t, "", form.Draft.FullName)

	calls := gateway.Calls()
	assert.DeepEqual(t, 1, len(calls))
	assert.DeepEqual(t, model.SubmissionRecord{
		Site:       "Stirling Library",
		Name:       "Jane Doe",
		Attendance: model.AttendanceStatusSignIn,
		Date:       "05/03/2024",
		Time:       "2:30PM",
	}, calls[0])

	w = ut.PerformRequest(engine, http.MethodPost, base+"/dismiss", nil)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	assert.Assert(t, decodeForm(t, w.Body.Bytes()).Notice == nil)
}

func TestAPIValidationFailed(t *testing.T) {
	gateway := webhook.NewMockClient()
	engine, _ := newTestEngine(t, gateway, time.Minute)

	id := openForm(t, engine, "woodside-library")

	w := ut.PerformRequest(engine, http.MethodPost, "/v1/forms/"+id+"/submit", nil)
	assert.DeepEqual(t, http.StatusUnprocessableEntity, w.Code)

	env := decodeError(t, w.Body.Bytes())
	assert.DeepEqual(t, "VALIDATION_FAILED", env.Error.Code)
	fields, ok := env.Error.Details["fields"].(map[string]interface{})
	assert.Assert(t, ok)
	assert.DeepEqual(t, model.FieldRequiredMessage, fields[model.FieldFullName])
	assert.DeepEqual(t, model.FieldRequiredMessage, fields[model.FieldStatus])

	w = ut.PerformRequest(engine, http.MethodPost, "/v1/forms/"+id+"/confirm", nil)
	assert.DeepEqual(t, http.StatusConflict, w.Code)
	assert.DeepEqual(t, 0, len(gateway.Calls()))
}

func TestAPISubmissionFailurePreservesDraft(t *testing.T) {
	gateway := webhook.NewMockClient()
	gateway.FailWith(errors.New("connection reset"))
	engine, _ := newTestEngine(t, gateway, time.Minute)

	id := openForm(t, engine, "stirling-library")
	base := "/v1/forms/" + id
	ut.PerformRequest(engine, http.MethodPut, base+"/name", jsonBody(`{"full_name":"Jane Doe"}`), jsonHeader)
	ut.PerformRequest(engine, http.MethodPut, base+"/status", jsonBody(`{"status":"Sign Out"}`), jsonHeader)
	ut.PerformRequest(engine, http.MethodPost, base+"/submit", nil)

	w := ut.PerformRequest(engine, http.MethodPost, base+"/confirm", nil)
	assert.DeepEqual(t, http.StatusBadGateway, w.Code)
	env := decodeError(t, w.Body.Bytes())
	assert.DeepEqual(t, "SUBMISSION_FAILED", env.Error.Code)
	assert.DeepEqual(t, model.FailureNoticeMessage, env.Error.Message)

	w = ut.PerformRequest(engine, http.MethodGet, base, nil)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	form := decodeForm(t, w.Body.Bytes())
	assert.DeepEqual(t, "Jane Doe", form.Draft.FullName)
	assert.DeepEqual(t, model.AttendanceStatusSignOut, form.Draft.Status)
	assert.DeepEqual(t, model.NoticeFailure, form.Notice.Kind)
}

func TestAPIErrors(t *testing.T) {
	engine, _ := newTestEngine(t, webhook.NewMockClient(), time.Minute)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown site", http.MethodPost, "/v1/forms", `{"site":"nowhere"}`, http.StatusNotFound, "SITE_NOT_FOUND"},
		{"missing site", http.MethodPost, "/v1/forms", `{}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown form", http.MethodGet, "/v1/forms/999999", "", http.StatusNotFound, "FORM_NOT_FOUND"},
		{"bad form id", http.MethodGet, "/v1/forms/abc", "", http.StatusBadRequest, "INVALID_REQUEST"},
		{"resolve unknown slug", http.MethodGet, "/v1/sites/nowhere", "", http.StatusNotFound, "SITE_NOT_FOUND"},
		{"unknown api route", http.MethodGet, "/v1/nothing/here", "", http.StatusNotFound, "SITE_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body *ut.Body
			if tt.body != "" {
				body = jsonBody(tt.body)
			}
			w := ut.PerformRequest(engine, tt.method, tt.path, body, jsonHeader)
			assert.DeepEqual(t, tt.status, w.Code)
			assert.DeepEqual(t, tt.code, decodeError(t, w.Body.Bytes()).Error.Code)
		})
	}
}

func TestAPIInvalidStatus(t *testing.T) {
	engine, _ := newTestEngine(t, webhook.NewMockClient(), time.Minute)
	id := openForm(t, engine, "stirling-library")

	w := ut.PerformRequest(engine, http.MethodPut, "/v1/forms/"+id+"/status", jsonBody(`{"status":"Maybe"}`), jsonHeader)
	assert.DeepEqual(t, http.StatusBadRequest, w.Code)

	// 已选的状态不能通过接口清空
	w = ut.PerformRequest(engine, http.MethodPut, "/v1/forms/"+id+"/status", jsonBody(`{"status":"Sign In"}`), jsonHeader)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	w = ut.PerformRequest(engine, http.MethodPut, "/v1/forms/"+id+"/status", jsonBody(`{"status":""}`), jsonHeader)
	assert.DeepEqual(t, http.StatusBadRequest, w.Code)

	w = ut.PerformRequest(engine, http.MethodGet, "/v1/forms/"+id, nil)
	assert.DeepEqual(t, model.AttendanceStatusSignIn, decodeForm(t, w.Body.Bytes()).Draft.Status)
}

func TestAPISitesAndClock(t *testing.T) {
	engine, _ := newTestEngine(t, webhook.NewMockClient(), time.Minute)

	w := ut.PerformRequest(engine, http.MethodGet, "/v1/sites", nil)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	var sites struct {
		Data []dto.SiteData        `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	assert.Nil(t, json.Unmarshal(w.Body.Bytes(), &sites))
	assert.DeepEqual(t, len(model.DefaultSites), len(sites.Data))
	assert.DeepEqual(t, "Fabric Lobethal Art", sites.Data[0].Name)

	w = ut.PerformRequest(engine, http.MethodGet, "/v1/sites/woodside-library", nil)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	var site struct {
		Data dto.SiteData `json:"data"`
	}
	assert.Nil(t, json.Unmarshal(w.Body.Bytes(), &site))
	assert.DeepEqual(t, "12", site.Data.ID)
	assert.DeepEqual(t, "/woodside-library", site.Data.Path)

	w = ut.PerformRequest(engine, http.MethodGet, "/v1/clock", nil)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	var clock struct {
		Data model.ClockSnapshot `json:"data"`
	}
	assert.Nil(t, json.Unmarshal(w.Body.Bytes(), &clock))
	assert.DeepEqual(t, model.ClockSnapshot{Date: "05/03/2024", Time: "14:30:00 ACDT"}, clock.Data)
}

func TestAPICloseForm(t *testing.T) {
	engine, svc := newTestEngine(t, webhook.NewMockClient(), time.Minute)
	id := openForm(t, engine, "stirling-library")
	assert.DeepEqual(t, 1, svc.ActiveForms())

	w := ut.PerformRequest(engine, http.MethodDelete, "/v1/forms/"+id, nil)
	assert.DeepEqual(t, http.StatusNoContent, w.Code)
	assert.DeepEqual(t, 0, svc.ActiveForms())

	w = ut.PerformRequest(engine, http.MethodDelete, "/v1/forms/"+id, nil)
	assert.DeepEqual(t, http.StatusNotFound, w.Code)
}

func TestHealthz(t *testing.T) {
	engine, _ := newTestEngine(t, webhook.NewMockClient(), time.Minute)

	w := ut.PerformRequest(engine, http.MethodGet, "/healthz", nil)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	assert.Assert(t, strings.Contains(w.Body.String(), `"status":"ok"`))
}

// sessionCookie 取出 Set-Cookie 里的 name=value
func sessionCookie(t *testing.T, w *ut.ResponseRecorder) string {
	t.Helper()
	raw := w.Result().Header.Get("Set-Cookie")
	assert.Assert(t, raw != "")
	if idx := strings.IndexByte(raw, ';'); idx >= 0 {
		raw = raw[:idx]
	}
	return raw
}

func formBody(s string) *ut.Body {
	return &ut.Body{Body: bytes.NewBufferString(s), Len: len(s)}
}

var formHeader = ut.Header{Key: "Content-Type", Value: "application/x-www-form-urlencoded"}

func TestPagesSiteList(t *testing.T) {
	engine, _ := newTestEngine(t, webhook.NewMockClient(), time.Minute)

	w := ut.PerformRequest(engine, http.MethodGet, "/", nil)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Assert(t, strings.Contains(body, "Stirling Library"))
	assert.Assert(t, strings.Contains(body, `href="/woodside-library"`))
	assert.Assert(t, !strings.Contains(body, "Site not found"))

	w = ut.PerformRequest(engine, http.MethodGet, "/nowhere", nil)
	assert.DeepEqual(t, http.StatusFound, w.Code)
	assert.Assert(t, strings.HasSuffix(w.Result().Header.Get("Location"), "/?missing=nowhere"))

	w = ut.PerformRequest(engine, http.MethodGet, "/?missing=nowhere", nil)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	assert.Assert(t, strings.Contains(w.Body.String(), "Site not found: nowhere"))
}

func TestPagesFormFlow(t *testing.T) {
	gateway := webhook.NewMockClient()
	engine, svc := newTestEngine(t, gateway, time.Minute)

	w := ut.PerformRequest(engine, http.MethodGet, "/stirling-library", nil)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	assert.Assert(t, strings.Contains(w.Body.String(), "05/03/2024"))
	assert.Assert(t, strings.Contains(w.Body.String(), `action="/stirling-library/submit"`))
	cookieHeader := ut.Header{Key: "Cookie", Value: sessionCookie(t, w)}
	assert.DeepEqual(t, 1, svc.ActiveForms())

	// 同一浏览器会话复用表单
	w = ut.PerformRequest(engine, http.MethodGet, "/stirling-library", nil, cookieHeader)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	assert.DeepEqual(t, 1, svc.ActiveForms())

	// 空表单只展示字段错误
	w = ut.PerformRequest(engine, http.MethodPost, "/stirling-library/submit", formBody(""), formHeader, cookieHeader)
	assert.DeepEqual(t, http.StatusSeeOther, w.Code)
	w = ut.PerformRequest(engine, http.MethodGet, "/stirling-library", nil, cookieHeader)
	assert.Assert(t, strings.Contains(w.Body.String(), model.FieldRequiredMessage))
	assert.Assert(t, !strings.Contains(w.Body.String(), "Confirm Attendance"))

	w = ut.PerformRequest(engine, http.MethodPost, "/stirling-library/submit",
		formBody("full_name=Jane+Doe&status=Sign+In"), formHeader, cookieHeader)
	assert.DeepEqual(t, http.StatusSeeOther, w.Code)
	assert.Assert(t, strings.HasSuffix(w.Result().Header.Get("Location"), "/stirling-library"))

	w = ut.PerformRequest(engine, http.MethodGet, "/stirling-library", nil, cookieHeader)
	body := w.Body.String()
	assert.Assert(t, strings.Contains(body, "Confirm Attendance"))
	assert.Assert(t, strings.Contains(body, "2:30PM"))
	assert.DeepEqual(t, 0, len(gateway.Calls()))

	w = ut.PerformRequest(engine, http.MethodPost, "/stirling-library/confirm", formBody(""), formHeader, cookieHeader)
	assert.DeepEqual(t, http.StatusSeeOther, w.Code)
	assert.DeepEqual(t, 1, len(gateway.Calls()))
	assert.DeepEqual(t, "Jane Doe", gateway.Calls()[0].Name)

	w = ut.PerformRequest(engine, http.MethodGet, "/stirling-library", nil, cookieHeader)
	body = w.Body.String()
	assert.Assert(t, strings.Contains(body, "Attendance Recorded"))
	assert.Assert(t, strings.Contains(body, "14:30:00 ACDT"))

	ut.PerformRequest(engine, http.MethodPost, "/stirling-library/dismiss", formBody(""), formHeader, cookieHeader)
	w = ut.PerformRequest(engine, http.MethodGet, "/stirling-library", nil, cookieHeader)
	assert.Assert(t, !strings.Contains(w.Body.String(), "Attendance Recorded"))

	// 回到站点列表即离开表单
	w = ut.PerformRequest(engine, http.MethodGet, "/", nil, cookieHeader)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	assert.DeepEqual(t, 0, svc.ActiveForms())
}

func TestPagesSessionTimeout(t *testing.T) {
	engine, svc := newTestEngine(t, webhook.NewMockClient(), time.Nanosecond)

	w := ut.PerformRequest(engine, http.MethodGet, "/woodside-library", nil)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	cookieHeader := ut.Header{Key: "Cookie", Value: sessionCookie(t, w)}

	time.Sleep(time.Millisecond)
	assert.DeepEqual(t, 1, svc.EvictIdle())

	w = ut.PerformRequest(engine, http.MethodGet, "/woodside-library", nil, cookieHeader)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	assert.Assert(t, strings.Contains(w.Body.String(), "Session Timed Out"))
}

func TestPagesPostWithoutSession(t *testing.T) {
	gateway := webhook.NewMockClient()
	engine, _ := newTestEngine(t, gateway, time.Minute)

	w := ut.PerformRequest(engine, http.MethodPost, "/stirling-library/confirm", formBody(""), formHeader)
	assert.DeepEqual(t, http.StatusSeeOther, w.Code)
	assert.Assert(t, strings.HasSuffix(w.Result().Header.Get("Location"), "/stirling-library"))
	assert.DeepEqual(t, 0, len(gateway.Calls()))
}

func TestPagesSwitchingSiteReleasesPreviousForm(t *testing.T) {
	engine, svc := newTestEngine(t, webhook.NewMockClient(), time.Minute)

	w := ut.PerformRequest(engine, http.MethodGet, "/woodside-library", nil)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	cookieHeader := ut.Header{Key: "Cookie", Value: sessionCookie(t, w)}
	assert.DeepEqual(t, 1, svc.ActiveForms())

	w = ut.PerformRequest(engine, http.MethodGet, "/stirling-library", nil, cookieHeader)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	assert.DeepEqual(t, 1, svc.ActiveForms())
	cookieHeader = ut.Header{Key: "Cookie", Value: sessionCookie(t, w)}

	// 回到原站点得到的是新表单，不是超时页
	w = ut.PerformRequest(engine, http.MethodGet, "/woodside-library", nil, cookieHeader)
	assert.DeepEqual(t, http.StatusOK, w.Code)
	assert.Assert(t, !strings.Contains(w.Body.String(), "Session Timed Out"))
	assert.DeepEqual(t, 1, svc.ActiveForms())
}
