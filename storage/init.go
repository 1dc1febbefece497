package storage

import (
	"go.uber.org/zap"

	"KayaAttend/config"
	"KayaAttend/pkg/logger"
	"KayaAttend/storage/mq"
	"KayaAttend/storage/redis"
)

// 统一 init storage 层，Redis 和 RabbitMQ 都是可选的

func Init() error {
	if config.Cfg.RedisEnabled {
		if err := redis.Init(); err != nil {
			return err
		}
		logger.Logger.Info("Redis connected", zap.String("addr", config.Cfg.RedisAddr))
	}

	if config.Cfg.MQEnabled {
		if err := mq.Init(); err != nil {
			return err
		}
		logger.Logger.Info("RabbitMQ connected", zap.String("addr", config.Cfg.RabbitMQAddr))
	}

	return nil
}
