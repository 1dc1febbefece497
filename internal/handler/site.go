package handler

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"KayaAttend/internal/model/dto"
	"KayaAttend/internal/service"
	"KayaAttend/pkg/response"
)

// ListSites 站点列表，顺序固定
// GET /v1/sites
func ListSites(ctx context.Context, c *app.RequestContext) {
	sites := service.Attendance().Sites().List()

	data := make([]dto.SiteData, 0, len(sites))
	for _, site := range sites {
		data = append(data, toSiteData(site))
	}

	response.SuccessWithMeta(ctx, c, data, map[string]interface{}{"total": len(data)})
}

// GetSite 根据 slug 解析站点
// GET /v1/sites/:slug
func GetSite(ctx context.Context, c *app.RequestContext) {
	site, err := service.Attendance().Sites().Resolve(c.Param("slug"))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, toSiteData(site))
}

// GetClock 当前时钟快照，表单页面每秒轮询
// GET /v1/clock
func GetClock(ctx context.Context, c *app.RequestContext) {
	c.Response.Header.Set("Cache-Control", "no-store")
	response.Success(ctx, c, service.Attendance().Clock().Snapshot())
}

// Healthz 存活检查
// GET /healthz
func Healthz(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"active_forms": service.Attendance().ActiveForms(),
	})
}
