package middleware

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/csrf"
	"go.uber.org/zap"

	"KayaAttend/config"
	"KayaAttend/pkg/logger"
)

// CSRFFieldName HTML 表单中的 token 字段
const CSRFFieldName = "csrf"

// CSRFMiddleware 依赖 SessionMiddleware 先执行
// GET 请求只生成 token，不校验
func CSRFMiddleware() app.HandlerFunc {
	if !config.Cfg.CSRFEnabled {
		return func(ctx context.Context, c *app.RequestContext) {
			c.Next(ctx)
		}
	}

	return csrf.New(
		csrf.WithSecret(config.Cfg.CSRFSecret),
		csrf.WithKeyLookUp("form:"+CSRFFieldName),
		csrf.WithErrorFunc(func(ctx context.Context, c *app.RequestContext) {
			logger.Logger.Warn("CSRF token rejected",
				zap.String("path", string(c.Path())),
				zap.String("client_ip", c.ClientIP()),
				zap.String("request_id", GetRequestID(c)),
			)
			c.String(http.StatusForbidden, "Invalid or missing form token. Please reload the page and try again.")
			c.Abort()
		}),
	)
}

// CSRFToken 当前请求的 token，未开启时为空
func CSRFToken(c *app.RequestContext) string {
	if !config.Cfg.CSRFEnabled {
		return ""
	}
	return csrf.GetToken(c)
}
