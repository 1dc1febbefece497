package middleware

import (
	"fmt"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/sessions"
	"github.com/hertz-contrib/sessions/cookie"
	sessionredis "github.com/hertz-contrib/sessions/redis"

	"KayaAttend/config"
)

// NewSessionStore 浏览器会话存储，cookie 或 redis
func NewSessionStore() (sessions.Store, error) {
	secret := []byte(config.Cfg.SessionSecret)

	var store sessions.Store
	switch config.Cfg.SessionStore {
	case "redis":
		s, err := sessionredis.NewStore(10, "tcp", config.Cfg.RedisAddr, config.Cfg.RedisPassword, secret)
		if err != nil {
			return nil, fmt.Errorf("create redis session store: %w", err)
		}
		store = s
	default:
		store = cookie.NewStore(secret)
	}

	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   12 * 60 * 60,
		HttpOnly: true,
		Secure:   config.Cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})

	return store, nil
}

// SessionMiddleware 浏览器会话只保存各站点表单会话的 ID
func SessionMiddleware(store sessions.Store) app.HandlerFunc {
	return sessions.New(config.Cfg.SessionName, store)
}
