// Package transport предоставляет HTTP транспорт для generic репозиториев на базе gin.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/merliontechs/sales/framework/core"
	"github.com/merliontechs/sales/framework/logger"
	"github.com/merliontechs/sales/framework/metrics"
	"github.com/merliontechs/sales/framework/observability"
)

// RESTConfig конфигурация для REST адаптера
type RESTConfig struct {
	Port            int           `yaml:"port"`
	BasePath        string        `yaml:"base_path"`
	ServiceName     string        `yaml:"service_name"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultRESTConfig возвращает конфигурацию REST по умолчанию
func DefaultRESTConfig() RESTConfig {
	return RESTConfig{
		Port:            8080,
		BasePath:        "/api",
		ServiceName:     "sales",
		ShutdownTimeout: 30 * time.Second,
	}
}

// RESTAdapter HTTP сервер с общими middleware: recovery, correlation ID, трейсинг, метрики, логи
type RESTAdapter struct {
	config  RESTConfig
	router  *gin.Engine
	metrics *metrics.Metrics
	logger  *zap.Logger
	server  *http.Server
	mu      sync.RWMutex
	running bool
}

// NewRESTAdapter создает новый REST адаптер; m может быть nil
func NewRESTAdapter(config RESTConfig, m *metrics.Metrics, log *zap.Logger) *RESTAdapter {
	if log == nil {
		log = logger.L()
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		observability.CorrelationIDMiddleware(),
		observability.HTTPTracingMiddleware(config.ServiceName),
		requestMiddleware(m, log),
	)

	return &RESTAdapter{
		config:  config,
		router:  router,
		metrics: m,
		logger:  log,
	}
}

// Router возвращает gin engine для регистрации служебных маршрутов
func (r *RESTAdapter) Router() *gin.Engine {
	return r.router
}

// API возвращает группу маршрутов под BasePath
func (r *RESTAdapter) API() *gin.RouterGroup {
	return r.router.Group(r.config.BasePath)
}

// ServeHTTP делегирует запрос роутеру
func (r *RESTAdapter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}

// Start запускает HTTP сервер в отдельной горутине (реализация core.Lifecycle)
func (r *RESTAdapter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", r.config.Port),
		Handler:           r.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	r.running = true

	go func(server *http.Server) {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", zap.String("addr", server.Addr), zap.Error(err))
		}
	}(r.server)

	r.logger.Info("http server started", zap.String("addr", r.server.Addr))
	return nil
}

// Stop останавливает сервер (реализация core.Lifecycle)
func (r *RESTAdapter) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = false
	if r.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, r.config.ShutdownTimeout)
	defer cancel()
	return r.server.Shutdown(shutdownCtx)
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (r *RESTAdapter) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Name возвращает имя компонента (реализация core.Component)
func (r *RESTAdapter) Name() string {
	return "rest-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (r *RESTAdapter) Type() core.ComponentType {
	return core.ComponentTypeTransport
}

func requestMiddleware(m *metrics.Metrics, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if m != nil {
			m.RecordRequest(c.Request.Context(), c.Request.Method, route, c.Writer.Status(), duration)
		}

		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			logger.Duration(duration),
			zap.String("correlation_id", observability.CorrelationID(c.Request.Context())),
		)
	}
}
