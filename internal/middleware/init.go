package middleware

import (
	"go.uber.org/zap"

	"KayaAttend/config"
	"KayaAttend/pkg/logger"
	"KayaAttend/storage/redis"
)

// Init 初始化依赖外部资源的中间件
func Init() error {
	if config.Cfg.RateLimitActive() {
		confirmLimiter = NewRateLimiter(redis.Client(), ConfirmRateLimitConfig())
		openFormLimiter = NewRateLimiter(redis.Client(), OpenFormRateLimitConfig())
		logger.Logger.Info("Rate limiters enabled",
			zap.Int("window_seconds", config.Cfg.RateLimitWindow),
			zap.Int("confirm_max_requests", config.Cfg.RateLimitMax),
			zap.Int("open_form_max_requests", config.Cfg.RateLimitOpenMax),
		)
	}

	logger.Logger.Info("All middlewares initialized successfully")
	return nil
}
