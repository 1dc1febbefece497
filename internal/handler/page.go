package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/sessions"
	"go.uber.org/zap"

	"KayaAttend/internal/middleware"
	"KayaAttend/internal/model"
	"KayaAttend/internal/model/dto"
	"KayaAttend/internal/service"
	pkgerrors "KayaAttend/pkg/errors"
	"KayaAttend/pkg/logger"
	"KayaAttend/pkg/response"
	"KayaAttend/web"
)

const htmlContentType = "text/html; charset=utf-8"

type sitesPage struct {
	Missing string
	Sites   []dto.SiteData
}

type formPage struct {
	Form          dto.FormData
	CSRFToken     string
	MaxNameLength int
	Statuses      []model.AttendanceStatus
}

type timeoutPage struct {
	SiteName string
}

// SitesPage 站点选择页，回到这里即离开所有表单
// GET /
func SitesPage(ctx context.Context, c *app.RequestContext) {
	svc := service.Attendance()
	session := sessions.Default(c)

	if closeSessionForms(svc, session, "") {
		saveSession(c, session)
	}

	sites := svc.Sites().List()
	data := sitesPage{
		Missing: c.Query("missing"),
		Sites:   make([]dto.SiteData, 0, len(sites)),
	}
	for _, site := range sites {
		data.Sites = append(data.Sites, toSiteData(site))
	}

	renderPage(c, http.StatusOK, web.PageSites, data)
}

// FormPage 站点表单页，同一浏览器会话复用已有的表单会话
// GET /:slug
func FormPage(ctx context.Context, c *app.RequestContext) {
	svc := service.Attendance()

	site, err := svc.Sites().Resolve(c.Param("slug"))
	if err != nil {
		redirectMissing(c, c.Param("slug"))
		return
	}

	session := sessions.Default(c)
	key := sessionFormKey(site)

	// 直接切换到另一个站点也算离开之前的表单
	dirty := closeSessionForms(svc, session, site.ID)

	if id, ok := sessionFormID(session, key); ok {
		snap, err := svc.Form(id)
		switch {
		case err == nil:
			if dirty {
				saveSession(c, session)
			}
			renderForm(c, snap)
			return
		case errors.Is(err, pkgerrors.FormSessionExpired):
			session.Delete(key)
			saveSession(c, session)
			renderPage(c, http.StatusOK, web.PageTimeout, timeoutPage{SiteName: site.Name})
			return
		}
		// 服务重启等原因找不到时重新打开
	}

	snap, err := svc.OpenForm(ctx, service.Slugify(site.Name))
	if err != nil {
		if dirty {
			saveSession(c, session)
		}
		logger.Logger.Error("Failed to open form",
			zap.String("site", site.Name),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		c.String(http.StatusInternalServerError, "Unable to open the attendance form. Please try again.")
		return
	}

	session.Set(key, strconv.FormatInt(snap.ID, 10))
	saveSession(c, session)

	renderForm(c, snap)
}

// SubmitForm 写入字段后请求提交
// POST /:slug/submit
func SubmitForm(ctx context.Context, c *app.RequestContext) {
	withPageForm(ctx, c, func(svc *service.AttendanceService, id int64) error {
		status, ok := model.ParseAttendanceStatus(c.PostForm("status"))
		if !ok {
			return pkgerrors.InvalidRequest
		}

		if _, err := svc.SetFullName(id, c.PostForm("full_name")); err != nil {
			return err
		}
		if _, err := svc.SetStatus(id, status); err != nil {
			return err
		}

		_, err := svc.RequestSubmit(id)
		return err
	})
}

// CancelForm 关闭确认对话框
// POST /:slug/cancel
func CancelForm(ctx context.Context, c *app.RequestContext) {
	withPageForm(ctx, c, func(svc *service.AttendanceService, id int64) error {
		_, err := svc.Cancel(id)
		return err
	})
}

// ConfirmForm 提交到 webhook，结果通过对话框展示
// POST /:slug/confirm
func ConfirmForm(ctx context.Context, c *app.RequestContext) {
	withPageForm(ctx, c, func(svc *service.AttendanceService, id int64) error {
		_, err := svc.Confirm(ctx, id)
		return err
	})
}

// DismissForm 关闭结果对话框
// POST /:slug/dismiss
func DismissForm(ctx context.Context, c *app.RequestContext) {
	withPageForm(ctx, c, func(svc *service.AttendanceService, id int64) error {
		_, err := svc.Dismiss(id)
		return err
	})
}

// PageRateLimited 确认过于频繁
func PageRateLimited(ctx context.Context, c *app.RequestContext) {
	c.String(http.StatusTooManyRequests, "Too many attempts. Please wait a minute and try again.")
}

// NotFound 未匹配的路由，/v1 下返回 JSON，其余回到站点选择
func NotFound(ctx context.Context, c *app.RequestContext) {
	path := string(c.Path())
	if strings.HasPrefix(path, "/v1/") {
		response.Error(ctx, c, pkgerrors.SiteNotFound)
		return
	}
	redirectMissing(c, strings.TrimPrefix(path, "/"))
}

// withPageForm 表单页的 POST 都是 post/redirect/get，状态保存在服务端
func withPageForm(ctx context.Context, c *app.RequestContext, op func(svc *service.AttendanceService, id int64) error) {
	svc := service.Attendance()

	site, err := svc.Sites().Resolve(c.Param("slug"))
	if err != nil {
		redirectMissing(c, c.Param("slug"))
		return
	}

	formURL := service.SitePath(site)

	id, ok := sessionFormID(sessions.Default(c), sessionFormKey(site))
	if !ok {
		c.Redirect(http.StatusSeeOther, []byte(formURL))
		return
	}

	if err := op(svc, id); err != nil {
		if _, invalid := service.IsValidationError(err); !invalid {
			logger.Logger.Info("Form action not applied",
				zap.Int64("form_id", id),
				zap.String("path", string(c.Path())),
				zap.String("request_id", middleware.GetRequestID(c)),
				zap.Error(err),
			)
		}
	}

	c.Redirect(http.StatusSeeOther, []byte(formURL))
}

func renderForm(c *app.RequestContext, snap model.FormSnapshot) {
	renderPage(c, http.StatusOK, web.PageForm, formPage{
		Form:          toFormData(snap),
		CSRFToken:     middleware.CSRFToken(c),
		MaxNameLength: model.FullNameMaxLength,
		Statuses:      []model.AttendanceStatus{model.AttendanceStatusSignIn, model.AttendanceStatusSignOut},
	})
}

func renderPage(c *app.RequestContext, status int, page string, data interface{}) {
	body, err := web.RenderBytes(page, data)
	if err != nil {
		logger.Logger.Error("Failed to render page",
			zap.String("page", page),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		c.String(http.StatusInternalServerError, "Internal error")
		return
	}

	c.Response.Header.Set("Cache-Control", "no-store")
	c.Data(status, htmlContentType, body)
}

func redirectMissing(c *app.RequestContext, slug string) {
	c.Redirect(http.StatusFound, []byte("/?missing="+url.QueryEscape(slug)))
}

// closeSessionForms 关闭浏览器会话持有的表单，keepSiteID 对应的除外
// 返回会话是否有改动
func closeSessionForms(svc *service.AttendanceService, session sessions.Session, keepSiteID string) bool {
	changed := false
	for _, site := range svc.Sites().List() {
		if site.ID == keepSiteID {
			continue
		}
		key := sessionFormKey(site)
		id, ok := sessionFormID(session, key)
		if !ok {
			continue
		}
		session.Delete(key)
		changed = true
		// 已过期或已关闭的表单直接忽略
		_ = svc.CloseForm(id)
	}
	return changed
}

func sessionFormKey(site model.Site) string {
	return "form:" + site.ID
}

func sessionFormID(session sessions.Session, key string) (int64, bool) {
	raw, ok := session.Get(key).(string)
	if !ok {
		return 0, false
	}
	id, err := parseFormID(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

func saveSession(c *app.RequestContext, session sessions.Session) {
	if err := session.Save(); err != nil {
		logger.Logger.Warn("Failed to save browser session",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
	}
}
