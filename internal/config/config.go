package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"eztodo/pkg/config"
)

// PushConfig 推送网关配置，WebhookURL 为空时只记录日志
type PushConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ReminderConfig 到期提醒扫描配置
type ReminderConfig struct {
	DispatchIntervalSeconds int `yaml:"dispatch_interval_seconds"`
	BatchSize               int `yaml:"batch_size"`
	DedupTTLMinutes         int `yaml:"dedup_ttl_minutes"`
	SyncConcurrency         int `yaml:"sync_concurrency"`
	OutboxRetentionHours    int `yaml:"outbox_retention_hours"`
}

type Config struct {
	DB       config.DBConfig     `yaml:"db"`
	MQ       config.MQConfig     `yaml:"mq"`
	Redis    config.RedisConfig  `yaml:"redis"`
	JWT      config.JWTConfig    `yaml:"jwt"`
	Server   config.ServerConfig `yaml:"server"`
	Otel     config.OtelConfig   `yaml:"otel"`
	Push     PushConfig          `yaml:"push"`
	Reminder ReminderConfig      `yaml:"reminder"`
}

// TokenTTL 登录 token 有效期，默认 24 小时
func (c *Config) TokenTTL() time.Duration {
	if c.JWT.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.JWT.TTLHours) * time.Hour
}

// DispatchInterval 到期提醒扫描间隔，0 表示使用 Dispatcher 默认值
func (c *Config) DispatchInterval() time.Duration {
	return time.Duration(c.Reminder.DispatchIntervalSeconds) * time.Second
}

// DedupTTL todo.changed 去重窗口，默认 10 分钟
func (c *Config) DedupTTL() time.Duration {
	if c.Reminder.DedupTTLMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Reminder.DedupTTLMinutes) * time.Minute
}

// OutboxRetention 已发送 outbox 事件的保留时长，默认 7 天
func (c *Config) OutboxRetention() time.Duration {
	if c.Reminder.OutboxRetentionHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.Reminder.OutboxRetentionHours) * time.Hour
}

// ServerAddr HTTP 监听地址
func (c *Config) ServerAddr() string {
	port := c.Server.Port
	if port == "" {
		port = "8080"
	}
	return ":" + port
}

func Load() *Config {
	cfg, err := LoadFrom(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom 从指定目录加载配置并应用环境变量覆盖
func LoadFrom(env, configDir string) (*Config, error) {
	var cfg Config
	if err := config.Decode(env, configDir, &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideOtelFromEnv(&cfg.Otel)
	overridePushFromEnv(&cfg.Push)

	return &cfg, nil
}

func overridePushFromEnv(cfg *PushConfig) {
	if url := os.Getenv("PUSH_WEBHOOK_URL"); url != "" {
		cfg.WebhookURL = url
	}
	if timeout := os.Getenv("PUSH_TIMEOUT_SECONDS"); timeout != "" {
		if n, err := strconv.Atoi(timeout); err == nil {
			cfg.TimeoutSeconds = n
		}
	}
}

// PushTimeout 单次推送请求超时，0 表示使用 Sender 默认值
func (c *Config) PushTimeout() time.Duration {
	return time.Duration(c.Push.TimeoutSeconds) * time.Second
}
