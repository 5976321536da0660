package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "BLOODBANK"

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	DB       DBConfig       `mapstructure:"db"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Purchase PurchaseConfig `mapstructure:"purchase"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Outbox   OutboxConfig   `mapstructure:"outbox"`
	Log      LogConfig      `mapstructure:"log"`
}

type HTTPConfig struct {
	Port string `mapstructure:"port"`
}

type GRPCConfig struct {
	Port string `mapstructure:"port"`
}

type DBConfig struct {
	// DSN empty runs the service on in-memory stores.
	DSN        string `mapstructure:"dsn"`
	Migrations bool   `mapstructure:"migrations"`
}

// AdminConfig guards the /admin routes. They are not served while Password is empty.
type AdminConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type RedisConfig struct {
	Addr string        `mapstructure:"addr"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type CatalogConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Seed            bool          `mapstructure:"seed"`
}

type PurchaseConfig struct {
	ReserveStock bool `mapstructure:"reserve_stock"`
}

type AuditConfig struct {
	BatchSize   int           `mapstructure:"batch_size"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Workers     int           `mapstructure:"workers"`
	ChannelSize int           `mapstructure:"channel_size"`
	Filter      string        `mapstructure:"filter"`
}

type OutboxConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Batch        int           `mapstructure:"batch"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "9000")
	v.SetDefault("grpc.port", "9001")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.migrations", true)
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "purchase-order-events")
	v.SetDefault("kafka.group_id", "bloodbank-notifier")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.ttl", 24*time.Hour)
	v.SetDefault("catalog.refresh_interval", 30*time.Second)
	v.SetDefault("catalog.seed", true)
	v.SetDefault("purchase.reserve_stock", false)
	v.SetDefault("audit.batch_size", 50)
	v.SetDefault("audit.timeout", 2*time.Second)
	v.SetDefault("audit.workers", 2)
	v.SetDefault("audit.channel_size", 1024)
	v.SetDefault("audit.filter", "")
	v.SetDefault("outbox.poll_interval", time.Second)
	v.SetDefault("outbox.batch", 100)
	v.SetDefault("outbox.max_attempts", 5)
	v.SetDefault("outbox.retry_delay", 2*time.Second)
	v.SetDefault("log.level", "info")
}

// LoadConfig reads defaults, then the optional file named by BLOODBANK_CONFIG
// (or path, if given), then BLOODBANK_* environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	return cfg, nil
}

// splitList accepts both list values and a single comma separated env string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%s", c.HTTP.Port)
}

func (c *Config) GRPCAddr() string {
	return fmt.Sprintf(":%s", c.GRPC.Port)
}
