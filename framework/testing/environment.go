// Package testing предоставляет утилиты для тестирования репозиториев на базе фреймворка.
package testing

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/merliontechs/sales/framework/events"
	"github.com/merliontechs/sales/framework/metrics"
	"github.com/merliontechs/sales/framework/repository"
)

// InMemoryTestEnvironment тестовая среда с in-memory шиной событий, метриками, трейсингом и логами
type InMemoryTestEnvironment struct {
	EventBus *events.InMemoryEventBus
	Metrics  *metrics.Metrics
	Reader   *sdkmetric.ManualReader
	Spans    *tracetest.InMemoryExporter
	Logs     *observer.ObservedLogs
	Logger   *zap.Logger

	tracerProvider *sdktrace.TracerProvider
	mu             sync.Mutex
	received       []events.Event
}

// NewInMemoryTestEnvironment создает тестовую среду; ресурсы освобождаются через t.Cleanup
func NewInMemoryTestEnvironment(t *testing.T) *InMemoryTestEnvironment {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := metrics.NewMetricsWithMeter(provider.Meter(metrics.MeterName))
	require.NoError(t, err)

	spans := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))

	observed, logs := observer.New(zapcore.DebugLevel)

	env := &InMemoryTestEnvironment{
		EventBus:       events.NewInMemoryEventBus(),
		Metrics:        m,
		Reader:         reader,
		Spans:          spans,
		Logs:           logs,
		Logger:         zap.New(observed),
		tracerProvider: tp,
	}

	t.Cleanup(func() {
		ctx := context.Background()
		_ = env.EventBus.Shutdown(ctx)
		_ = tp.Shutdown(ctx)
		_ = provider.Shutdown(ctx)
	})
	return env
}

// Options возвращает опции репозитория, подключенные к среде
func (e *InMemoryTestEnvironment) Options(name string) []repository.Option {
	return []repository.Option{
		repository.WithName(name),
		repository.WithLogger(e.Logger),
		repository.WithMetrics(e.Metrics),
		repository.WithTracer(e.tracerProvider.Tracer("test")),
		repository.WithEventPublisher(e.EventBus),
	}
}

// Record подписывает среду на события указанных типов
func (e *InMemoryTestEnvironment) Record(t *testing.T, eventTypes ...string) {
	t.Helper()
	for _, eventType := range eventTypes {
		_, err := e.EventBus.Subscribe(eventType, events.HandlerFunc(func(ctx context.Context, event events.Event) error {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.received = append(e.received, event)
			return nil
		}))
		require.NoError(t, err)
	}
}

// Events возвращает полученные события
func (e *InMemoryTestEnvironment) Events() []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]events.Event(nil), e.received...)
}

// CollectMetrics возвращает накопленные метрики
func (e *InMemoryTestEnvironment) CollectMetrics(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, e.Reader.Collect(context.Background(), &rm))
	return rm
}

// Sum возвращает сумму int64 счетчика name по всем точкам
func Sum(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}
