package router

import (
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/hertz-contrib/sessions"

	"KayaAttend/internal/handler"
	"KayaAttend/internal/middleware"
)

// Register 注册全部路由，sessions 只用于 HTML 页面
func Register(r *route.Engine, store sessions.Store) {
	r.Use(middleware.RecoverMiddleware())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.CORSMiddleware())

	r.GET("/healthz", handler.Healthz)

	v1 := r.Group("/v1")
	{
		v1.GET("/sites", handler.ListSites)
		v1.GET("/sites/:slug", handler.GetSite)
		v1.GET("/clock", handler.GetClock)

		forms := v1.Group("/forms")
		{
			forms.POST("", middleware.OpenFormRateLimitMiddleware(nil), handler.OpenForm)
			forms.GET("/:form_id", handler.GetForm)
			forms.DELETE("/:form_id", handler.CloseForm)
			forms.PUT("/:form_id/name", handler.SetFullName)
			forms.PUT("/:form_id/status", handler.SetStatus)
			forms.POST("/:form_id/touch", handler.TouchField)
			forms.POST("/:form_id/submit", handler.RequestSubmit)
			forms.POST("/:form_id/cancel", handler.CancelSubmit)
			forms.POST("/:form_id/confirm", middleware.ConfirmRateLimitMiddleware(nil), handler.ConfirmSubmit) // 确认接口限流
			forms.POST("/:form_id/dismiss", handler.DismissNotice)
		}
	}

	// HTML 页面：先有浏览器会话，csrf 才能取到 token
	pages := r.Group("", middleware.SessionMiddleware(store), middleware.CSRFMiddleware())
	{
		pages.GET("/", handler.SitesPage)
		pages.GET("/:slug", handler.FormPage)
		pages.POST("/:slug/submit", handler.SubmitForm)
		pages.POST("/:slug/cancel", handler.CancelForm)
		pages.POST("/:slug/confirm", middleware.ConfirmRateLimitMiddleware(handler.PageRateLimited), handler.ConfirmForm)
		pages.POST("/:slug/dismiss", handler.DismissForm)
	}

	r.NoRoute(handler.NotFound)
}
