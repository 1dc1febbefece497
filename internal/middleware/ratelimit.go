package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"KayaAttend/config"
	"KayaAttend/pkg/errors"
	"KayaAttend/pkg/logger"
	"KayaAttend/pkg/response"
	"KayaAttend/storage/redis"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 时间窗口（秒）
	Window int
	// 时间窗口内最大请求数
	MaxRequests int
	// 限流键前缀
	KeyPrefix string
	// 阻塞时长（秒），超过限制后禁止访问的时间，0 表示不阻塞
	BlockDuration int
}

// ConfirmRateLimitConfig 确认提交的限流配置，按客户端 IP 计数
func ConfirmRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Window:        config.Cfg.RateLimitWindow,
		MaxRequests:   config.Cfg.RateLimitMax,
		KeyPrefix:     "ratelimit:confirm",
		BlockDuration: config.Cfg.RateLimitWindow,
	}
}

// OpenFormRateLimitConfig 打开表单的限流配置，每个表单都会占用一个时钟订阅
func OpenFormRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Window:        config.Cfg.RateLimitWindow,
		MaxRequests:   config.Cfg.RateLimitOpenMax,
		KeyPrefix:     "ratelimit:open_form",
		BlockDuration: config.Cfg.RateLimitWindow,
	}
}

// RateLimiter 基于 Redis ZSET 的滑动窗口限流器
type RateLimiter struct {
	client redislib.Cmdable
	config RateLimitConfig
	now    func() time.Time
}

var (
	confirmLimiter  *RateLimiter
	openFormLimiter *RateLimiter
)

func NewRateLimiter(client redislib.Cmdable, cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: cfg,
		now:    time.Now,
	}
}

func (rl *RateLimiter) key(identifier string) string {
	return redis.Key(rl.config.KeyPrefix, identifier)
}

func (rl *RateLimiter) blockKey(identifier string) string {
	return redis.Key(rl.config.KeyPrefix, "block", identifier)
}

// Allow 返回是否放行以及窗口内的请求数
func (rl *RateLimiter) Allow(ctx context.Context, identifier string) (bool, int, error) {
	key := rl.key(identifier)
	now := rl.now()
	windowStart := now.Add(-time.Duration(rl.config.Window) * time.Second)

	pipe := rl.client.TxPipeline()

	// 先移除窗口之外的记录
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))

	// member 需要唯一，同一纳秒内的并发请求也要各记一次
	pipe.ZAdd(ctx, key, redislib.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()),
	})

	zcardCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, time.Duration(rl.config.Window+10)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to execute rate limit pipeline: %w", err)
	}

	count := int(zcardCmd.Val())
	return count <= rl.config.MaxRequests, count, nil
}

func (rl *RateLimiter) Block(ctx context.Context, identifier string) error {
	if rl.config.BlockDuration <= 0 {
		return nil
	}
	return rl.client.Set(ctx, rl.blockKey(identifier), "1", time.Duration(rl.config.BlockDuration)*time.Second).Err()
}

func (rl *RateLimiter) IsBlocked(ctx context.Context, identifier string) (bool, error) {
	result, err := rl.client.Exists(ctx, rl.blockKey(identifier)).Result()
	return result > 0, err
}

// RateLimitMiddleware 限流中间件，Redis 出错时放行
// onLimited 为空时返回 JSON 429
func RateLimitMiddleware(limiter *RateLimiter, onLimited app.HandlerFunc) app.HandlerFunc {
	if onLimited == nil {
		onLimited = func(ctx context.Context, c *app.RequestContext) {
			response.Error(ctx, c, errors.TooManyRequests)
		}
	}

	return func(ctx context.Context, c *app.RequestContext) {
		if limiter == nil {
			c.Next(ctx)
			return
		}

		identifier := c.ClientIP()

		blocked, err := limiter.IsBlocked(ctx, identifier)
		if err != nil {
			logger.Logger.Warn("Failed to check block status", zap.Error(err))
			c.Next(ctx)
			return
		}
		if blocked {
			c.Abort()
			onLimited(ctx, c)
			return
		}

		allowed, count, err := limiter.Allow(ctx, identifier)
		if err != nil {
			logger.Logger.Warn("Failed to check rate limit", zap.Error(err))
			c.Next(ctx)
			return
		}

		remaining := limiter.config.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(limiter.config.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			if err := limiter.Block(ctx, identifier); err != nil {
				logger.Logger.Error("Failed to block client", zap.Error(err))
			}

			logger.Logger.Warn("Rate limit exceeded",
				zap.String("limiter", limiter.config.KeyPrefix),
				zap.String("client_ip", identifier),
				zap.Int("count", count),
			)
			c.Abort()
			onLimited(ctx, c)
			return
		}

		c.Next(ctx)
	}
}

// ConfirmRateLimitMiddleware 未开启限流时直接放行
func ConfirmRateLimitMiddleware(onLimited app.HandlerFunc) app.HandlerFunc {
	return RateLimitMiddleware(confirmLimiter, onLimited)
}

// OpenFormRateLimitMiddleware 未开启限流时直接放行
func OpenFormRateLimitMiddleware(onLimited app.HandlerFunc) app.HandlerFunc {
	return RateLimitMiddleware(openFormLimiter, onLimited)
}
