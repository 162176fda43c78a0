// Package metrics предоставляет систему метрик на основе OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName имя meter'а, под которым регистрируются метрики
const MeterName = "github.com/merliontechs/sales"

// Metrics сборщик метрик репозиториев и HTTP транспорта
type Metrics struct {
	meter             metric.Meter
	operationsTotal   metric.Int64Counter
	operationDuration metric.Float64Histogram
	errorsTotal       metric.Int64Counter
	activeOperations  metric.Int64UpDownCounter
	eventsTotal       metric.Int64Counter
	requestsTotal     metric.Int64Counter
	requestDuration   metric.Float64Histogram
}

// NewMetrics создает сборщик метрик на глобальном MeterProvider
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(MeterName))
}

// NewMetricsWithMeter создает сборщик метрик на указанном meter
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	operationsTotal, err := meter.Int64Counter(
		"repository_operations_total",
		metric.WithDescription("Total number of repository operations"),
	)
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram(
		"repository_operation_duration_seconds",
		metric.WithDescription("Repository operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errorsTotal, err := meter.Int64Counter(
		"repository_errors_total",
		metric.WithDescription("Total number of failed repository operations"),
	)
	if err != nil {
		return nil, err
	}

	activeOperations, err := meter.Int64UpDownCounter(
		"repository_active_operations",
		metric.WithDescription("Number of repository operations in flight"),
	)
	if err != nil {
		return nil, err
	}

	eventsTotal, err := meter.Int64Counter(
		"events_published_total",
		metric.WithDescription("Total number of published entity events"),
	)
	if err != nil {
		return nil, err
	}

	requestsTotal, err := meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests handled by REST resources"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		meter:             meter,
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
		errorsTotal:       errorsTotal,
		activeOperations:  activeOperations,
		eventsTotal:       eventsTotal,
		requestsTotal:     requestsTotal,
		requestDuration:   requestDuration,
	}, nil
}

// RecordOperation записывает метрику операции репозитория
func (m *Metrics) RecordOperation(ctx context.Context, repository, operation string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("repository", repository),
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	)

	m.operationsTotal.Add(ctx, 1, attrs)
	m.operationDuration.Record(ctx, duration.Seconds(), attrs)

	if err != nil {
		m.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("repository", repository),
			attribute.String("operation", operation),
		))
	}
}

// TrackActive увеличивает счетчик активных операций и возвращает функцию для его уменьшения
func (m *Metrics) TrackActive(ctx context.Context, repository string) func() {
	attrs := metric.WithAttributes(attribute.String("repository", repository))
	m.activeOperations.Add(ctx, 1, attrs)
	return func() {
		m.activeOperations.Add(ctx, -1, attrs)
	}
}

// RecordEvent записывает метрику публикации события
func (m *Metrics) RecordEvent(ctx context.Context, eventType string, success bool) {
	m.eventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", eventType),
		attribute.Bool("success", success),
	))
}

// RecordRequest записывает метрику HTTP запроса
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.requestsTotal.Add(ctx, 1, attrs)
	m.requestDuration.Record(ctx, duration.Seconds(), attrs)
}
