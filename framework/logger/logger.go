// Package logger предоставляет структурированное логирование на основе zap.
package logger

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config конфигурация логгера
type Config struct {
	// Env "dev" (консоль) или "prod" (JSON)
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
	// ServiceName добавляется ко всем записям, если задан
	ServiceName string `yaml:"service_name"`
}

var (
	mu       sync.RWMutex
	instance *zap.Logger
)

// New строит логгер по конфигурации
func New(cfg Config) (*zap.Logger, error) {
	level := ParseLevel(cfg.Level)

	var zcfg zap.Config
	if strings.ToLower(cfg.Env) == "prod" {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	l, err := zcfg.Build(zap.AddCaller())
	if err != nil {
		return nil, err
	}

	if cfg.ServiceName != "" {
		l = l.With(zap.String("service", cfg.ServiceName))
	}
	return l, nil
}

// Init строит логгер и делает его глобальным
func Init(cfg Config) (*zap.Logger, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	instance = l
	mu.Unlock()
	return l, nil
}

// L возвращает глобальный логгер; до Init это no-op логгер
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		return zap.NewNop()
	}
	return instance
}

// Sync сбрасывает буферы глобального логгера
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if instance != nil {
		return instance.Sync()
	}
	return nil
}

// ParseLevel преобразует строку в zapcore.Level, по умолчанию info
func ParseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

type ctxKey struct{}

// ToContext кладет логгер в контекст
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From извлекает логгер из контекста, иначе возвращает глобальный
func From(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
			return l
		}
	}
	return L()
}

// Стандартные поля

// Repository имя репозитория
func Repository(name string) zap.Field {
	return zap.String("repository", name)
}

// Operation имя операции
func Operation(op string) zap.Field {
	return zap.String("operation", op)
}

// EntityID идентификатор сущности
func EntityID(id interface{}) zap.Field {
	return zap.Any("entity_id", id)
}

// Duration длительность операции
func Duration(d time.Duration) zap.Field {
	return zap.Duration("duration", d)
}
