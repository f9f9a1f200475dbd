package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig 聚合运行时配置，全部经环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	DBPath   string `envconfig:"DB_PATH" default:"remit_mall.db"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`

	// Kafka 集群地址（逗号分隔）与通知事件 Topic
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"remit-mall-notify"`

	// Redis Stream 出箱（引擎原子入流，Relay 异步转 Kafka）
	NotifyStream   string `envconfig:"NOTIFY_STREAM" default:"remit_mall:notify_events"`
	NotifyGroup    string `envconfig:"NOTIFY_GROUP" default:"remit-mall-relay-group"`
	NotifyConsumer string `envconfig:"NOTIFY_CONSUMER" default:"remit-mall-relay-1"`

	// 建单类接口限流
	CreateRateLimit     int `envconfig:"CREATE_RATE_LIMIT" default:"30"`
	CreateRateWindowSec int `envconfig:"CREATE_RATE_WINDOW_SEC" default:"60"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if cfg.NotifyStream == "" || cfg.NotifyGroup == "" || cfg.NotifyConsumer == "" {
		return AppConfig{}, fmt.Errorf("NOTIFY_STREAM/NOTIFY_GROUP/NOTIFY_CONSUMER must not be empty")
	}
	if cfg.CreateRateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("CREATE_RATE_LIMIT must be > 0")
	}
	if cfg.CreateRateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("CREATE_RATE_WINDOW_SEC must be > 0")
	}
	return cfg, nil
}

// CreateRateWindow 限流窗口。
func (c AppConfig) CreateRateWindow() time.Duration {
	return time.Duration(c.CreateRateWindowSec) * time.Second
}
