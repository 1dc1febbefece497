package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"KayaAttend/config"
	"KayaAttend/internal/middleware"
	"KayaAttend/internal/queue"
	"KayaAttend/internal/router"
	"KayaAttend/internal/service"
	"KayaAttend/pkg/logger"
	"KayaAttend/pkg/metrics"
	pkgotel "KayaAttend/pkg/otel"
	"KayaAttend/pkg/snowflake"
	"KayaAttend/pkg/webhook"
	"KayaAttend/storage"
)

const janitorInterval = 15 * time.Second

func main() {
	// 日志部分
	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	// 链路追踪与指标，关闭时不影响业务
	if config.Cfg.OTelEnabled {
		shutdownOTel, err := pkgotel.InitOpenTelemetry(ctx, pkgotel.Config{
			ServiceName:      config.Cfg.ServiceName,
			ServiceVersion:   config.Cfg.ServiceVersion,
			ServiceNamespace: config.Cfg.OTelNamespace,
			Environment:      config.Cfg.Environment,
			OTLPEndpoint:     config.Cfg.OTelEndpoint,
			SampleRatio:      config.Cfg.OTelSampleRatio,
		})
		if err != nil {
			logger.Logger.Warn("Failed to initialize OpenTelemetry, continuing without it", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownOTel(shutdownCtx); err != nil {
					logger.Logger.Warn("Failed to shutdown OpenTelemetry", zap.Error(err))
				}
			}()

			if err := metrics.InitMetrics(); err != nil {
				logger.Logger.Warn("Failed to initialize attendance metrics", zap.Error(err))
			}
			if err := middleware.InitMetrics(otel.Meter(config.Cfg.ServiceName)); err != nil {
				logger.Logger.Warn("Failed to initialize HTTP metrics", zap.Error(err))
			}
		}
	}

	// 初始化存储层，记得关闭外部连接
	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	// 初始化中间件
	if err := middleware.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize middlewares", zap.Error(err))
	}

	sessionStore, err := middleware.NewSessionStore()
	if err != nil {
		logger.Logger.Fatal("Failed to initialize session store", zap.Error(err))
	}

	clock, err := service.NewClockSource(config.Cfg.Timezone)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize clock", zap.Error(err))
	}

	gateway, err := webhook.NewHTTPClient(config.Cfg.WebhookURL, config.Cfg.WebhookTimeout)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize webhook client", zap.Error(err))
	}
	webhook.Init(gateway)

	opts := service.AttendanceOptions{
		Sites:         service.Sites(),
		Clock:         clock,
		Gateway:       webhook.GetClient(),
		IdleTimeout:   config.Cfg.FormIdleTimeout,
		SubmitTimeout: config.Cfg.WebhookTimeout,
		NextID:        snowflake.NextID,
	}
	if config.Cfg.MQEnabled {
		opts.Publisher = queue.NewProducer(nil).PublishAttendanceRecorded
	}

	svc := service.NewAttendanceService(opts)
	service.InitAttendance(svc)

	go svc.RunJanitor(ctx, janitorInterval)

	logger.Logger.Info("Server starting",
		zap.String("service", config.Cfg.ServiceName),
		zap.String("port", config.Cfg.ServerPort),
		zap.String("environment", config.Cfg.Environment),
		zap.String("timezone", config.Cfg.Timezone),
	)

	addr := net.JoinHostPort(config.Cfg.ServerHost, config.Cfg.ServerPort)
	serverOpts := []hertzconfig.Option{server.WithHostPorts(addr)}

	var tracerMiddleware app.HandlerFunc
	if config.Cfg.OTelEnabled {
		tracerOpt, mw := middleware.NewServerTracerConfig()
		serverOpts = append(serverOpts, tracerOpt)
		tracerMiddleware = mw
	}

	h := server.Default(serverOpts...)
	if tracerMiddleware != nil {
		h.Use(tracerMiddleware)
	}

	router.Register(h.Engine, sessionStore)

	// 优雅关闭：在单独的 goroutine 中监听关闭信号并调用 Shutdown
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	// 释放剩余表单会话并等待事件发布完成
	svc.Shutdown()

	logger.Logger.Info("Server shutting down gracefully")
}
