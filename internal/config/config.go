// Package config загружает конфигурацию sales-server из YAML, .env и переменных окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	eventsadapter "github.com/merliontechs/sales/framework/adapters/events"
	"github.com/merliontechs/sales/framework/adapters/storage"
	"github.com/merliontechs/sales/framework/adapters/transport"
	"github.com/merliontechs/sales/framework/logger"
	"github.com/merliontechs/sales/framework/metrics"
	"github.com/merliontechs/sales/framework/observability"
)

// Config конфигурация сервиса
type Config struct {
	Log     logger.Config                 `yaml:"log"`
	Server  transport.RESTConfig          `yaml:"server"`
	Storage StorageConfig                 `yaml:"storage"`
	Events  eventsadapter.PublisherConfig `yaml:"events"`
	Metrics metrics.MetricsConfig         `yaml:"metrics"`
	Tracing observability.TracingConfig   `yaml:"tracing"`
}

// StorageConfig выбор и настройки backend'а
type StorageConfig struct {
	// Backend: inmemory, postgres, mongodb, redis
	Backend  string                 `yaml:"backend"`
	InMemory storage.InMemoryConfig `yaml:"inmemory"`
	Postgres storage.PostgresConfig `yaml:"postgres"`
	Mongo    storage.MongoConfig    `yaml:"mongodb"`
	Redis    storage.RedisConfig    `yaml:"redis"`
}

// BackendConfig возвращает конфигурацию выбранного backend'а
func (s StorageConfig) BackendConfig() interface{} {
	switch s.Backend {
	case "postgres":
		return s.Postgres
	case "mongodb":
		return s.Mongo
	case "redis":
		return s.Redis
	default:
		return s.InMemory
	}
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	postgres := storage.DefaultPostgresConfig()
	postgres.TableName = "sales"

	return &Config{
		Log:    logger.Config{Env: "dev", Level: "info", ServiceName: "sales"},
		Server: transport.DefaultRESTConfig(),
		Storage: StorageConfig{
			Backend:  "inmemory",
			InMemory: storage.DefaultInMemoryConfig(),
			Postgres: postgres,
			Mongo:    storage.DefaultMongoConfig(),
			Redis:    storage.DefaultRedisConfig(),
		},
		Events:  eventsadapter.DefaultPublisherConfig(),
		Metrics: metrics.DefaultMetricsConfig(),
		Tracing: observability.DefaultTracingConfig(),
	}
}

// LoadDotEnv загружает переменные из .env файла, если он существует
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load читает YAML поверх значений по умолчанию и применяет переменные окружения.
// Пустой path означает только значения по умолчанию и окружение.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Log.Env = getEnv("SALES_ENV", c.Log.Env)
	c.Log.Level = getEnv("SALES_LOG_LEVEL", c.Log.Level)

	c.Server.Port = getEnvInt("SALES_PORT", c.Server.Port)
	c.Storage.Backend = getEnv("SALES_STORAGE", c.Storage.Backend)
	c.Storage.Postgres.DSN = getEnv("DATABASE_URL", c.Storage.Postgres.DSN)
	c.Storage.Mongo.URI = getEnv("MONGO_URI", c.Storage.Mongo.URI)
	c.Storage.Redis.Addr = getEnv("REDIS_ADDR", c.Storage.Redis.Addr)

	c.Events.Type = getEnv("SALES_EVENTS", c.Events.Type)
	c.Events.NATS.URL = getEnv("NATS_URL", c.Events.NATS.URL)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.Events.Kafka.Brokers = splitCSV(brokers)
	}

	c.Tracing.Enabled = getEnvBool("SALES_TRACING", c.Tracing.Enabled)
	c.Tracing.Exporter = getEnv("SALES_TRACING_EXPORTER", c.Tracing.Exporter)
	c.Tracing.ExporterEndpoint = getEnv("OTEL_EXPORTER_ENDPOINT", c.Tracing.ExporterEndpoint)
	c.Metrics.Enabled = getEnvBool("SALES_METRICS", c.Metrics.Enabled)
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	switch c.Storage.Backend {
	case "inmemory":
	case "postgres":
		if err := c.Storage.Postgres.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("storage.postgres: %w", err))
		}
	case "mongodb":
		if err := c.Storage.Mongo.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("storage.mongodb: %w", err))
		}
	case "redis":
		if err := c.Storage.Redis.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("storage.redis: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	switch c.Events.Type {
	case "", "none", "inmemory":
	case "nats":
		if c.Events.NATS.URL == "" {
			errs = append(errs, errors.New("events.nats.url is required"))
		}
	case "kafka":
		if len(c.Events.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("events.kafka.brokers is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown events type %q", c.Events.Type))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if s := os.Getenv(key); s != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
