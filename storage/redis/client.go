package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"KayaAttend/config"
	redisotel "KayaAttend/pkg/redis"
)

var (
	client *redis.Client
	once   sync.Once
	err    error
)

func Init() error {
	once.Do(func() {
		cfg := config.Cfg

		client = redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			MinIdleConns: 2,
			MaxRetries:   3,
		})

		if cfg.OTelEnabled {
			client.AddHook(redisotel.NewTracingHook(cfg.ServiceName, cfg.RedisDB))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if pingErr := client.Ping(ctx).Err(); pingErr != nil {
			err = fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, pingErr)
		}
	})

	return err
}

// Client 未开启 Redis 时返回 nil，调用方需要判断
func Client() *redis.Client {
	return client
}

func Close(ctx context.Context) error {
	if client == nil {
		return nil
	}

	return client.Close()
}

func Key(parts ...string) string {
	prefix := config.Cfg.RedisPrefix
	if prefix == "" {
		prefix = "kaya"
	}

	var sb strings.Builder
	sb.WriteString(prefix)
	for _, part := range parts {
		if part != "" {
			sb.WriteString(":")
			sb.WriteString(part)
		}
	}

	return sb.String()
}
