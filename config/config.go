package config

import (
	"log"
	"time"
	_ "time/tzdata" // 容器内可能没有系统时区库

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"kaya-attendance"`

	// 考勤 webhook 配置，地址固定，由部署时注入
	WebhookURL     string        `env:"WEBHOOK_URL" envDefault:"https://n8n-customer-automations.onrender.com/webhook/d1d96d66-709b-4afd-87d9-fddd1d2e818e"`
	WebhookTimeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`

	// 时钟配置
	Timezone string `env:"TIMEZONE" envDefault:"Australia/Adelaide"`

	// 表单会话空闲超时
	FormIdleTimeout time.Duration `env:"FORM_IDLE_TIMEOUT" envDefault:"2m"`

	// 浏览器会话 / CSRF
	SessionName   string `env:"SESSION_NAME" envDefault:"kaya-session"`
	SessionSecret string `env:"SESSION_SECRET" envDefault:"kaya-dev-session-secret"`
	SessionStore  string `env:"SESSION_STORE" envDefault:"cookie"` // cookie, redis
	CSRFEnabled   bool   `env:"CSRF_ENABLED" envDefault:"true"`
	CSRFSecret    string `env:"CSRF_SECRET" envDefault:"kaya-dev-csrf-secret"`

	// Redis 配置
	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"kaya"`

	// RabbitMQ 配置
	MQEnabled        bool   `env:"MQ_ENABLED" envDefault:"false"`
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置
	OTelEnabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`
	OTelNamespace   string  `env:"OTEL_SERVICE_NAMESPACE" envDefault:"kaya"`
	ServiceVersion  string  `env:"SERVICE_VERSION" envDefault:"dev"`

	// 速率限制配置，作用于打开表单和确认提交接口（需要 Redis）
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitWindow  int  `env:"RATE_LIMIT_WINDOW" envDefault:"60"` // 秒
	RateLimitMax     int  `env:"RATE_LIMIT_MAX" envDefault:"20"`
	RateLimitOpenMax int  `env:"RATE_LIMIT_OPEN_MAX" envDefault:"30"` // 打开表单
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}

	validateConfig()
}

func validateConfig() {
	if Cfg.WebhookURL == "" {
		log.Fatal("WEBHOOK_URL is required")
	}

	if _, err := time.LoadLocation(Cfg.Timezone); err != nil {
		log.Fatalf("TIMEZONE %q cannot be loaded: %v", Cfg.Timezone, err)
	}

	if Cfg.FormIdleTimeout <= 0 {
		log.Fatal("FORM_IDLE_TIMEOUT must be positive")
	}

	if Cfg.IsProduction() {
		if Cfg.SessionSecret == "kaya-dev-session-secret" {
			log.Fatal("SESSION_SECRET must be set in production")
		}
		if Cfg.CSRFEnabled && Cfg.CSRFSecret == "kaya-dev-csrf-secret" {
			log.Fatal("CSRF_SECRET must be set in production")
		}
	}

	if Cfg.SessionStore == "redis" && !Cfg.RedisEnabled {
		log.Printf("WARN: SESSION_STORE=redis but REDIS_ENABLED=false, falling back to cookie sessions")
		Cfg.SessionStore = "cookie"
	}

	if Cfg.RateLimitEnabled && !Cfg.RedisEnabled {
		log.Printf("WARN: RATE_LIMIT_ENABLED requires Redis, rate limiting is disabled")
	}
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// RateLimitActive 限流依赖 Redis，两者都开启才生效
func (c *Config) RateLimitActive() bool {
	return c.RateLimitEnabled && c.RedisEnabled
}
