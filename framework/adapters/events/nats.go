// Package events предоставляет адаптеры для публикации событий репозиториев во внешние брокеры.
package events

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/merliontechs/sales/framework/core"
	"github.com/merliontechs/sales/framework/events"
	"github.com/merliontechs/sales/framework/metrics"
)

// NATSConn часть *nats.Conn, нужная адаптеру
type NATSConn interface {
	Publish(subject string, data []byte) error
}

// NATSEventConfig конфигурация для NATS Event Publisher
type NATSEventConfig struct {
	Conn          NATSConn           `yaml:"-"`
	URL           string             `yaml:"url"`
	SubjectPrefix string             `yaml:"subject_prefix"`
	RetryPolicy   events.RetryConfig `yaml:"-"`
	Metrics       *metrics.Metrics   `yaml:"-"`
}

// DefaultNATSEventConfig возвращает конфигурацию NATS Event Publisher по умолчанию
func DefaultNATSEventConfig() NATSEventConfig {
	return NATSEventConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "events",
		RetryPolicy:   events.DefaultRetryConfig(),
	}
}

// NATSEventAdapter публикует события в subject "<prefix>.<event type>"
type NATSEventAdapter struct {
	config  NATSEventConfig
	conn    NATSConn
	owned   *nats.Conn
	mu      sync.RWMutex
	running bool
}

// NewNATSEventAdapter создает адаптер. Если Conn не задан, соединение открывается по URL.
func NewNATSEventAdapter(config NATSEventConfig) (*NATSEventAdapter, error) {
	adapter := &NATSEventAdapter{
		config: config,
		conn:   config.Conn,
	}

	if adapter.conn == nil {
		if config.URL == "" {
			return nil, core.NewError(core.ErrInvalidConfig, "NATS connection or URL is required")
		}
		nc, err := nats.Connect(config.URL, nats.Name("sales-events"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		adapter.conn = nc
		adapter.owned = nc
	}

	return adapter, nil
}

// Start запускает адаптер (реализация core.Lifecycle)
func (n *NATSEventAdapter) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.running = true
	return nil
}

// Stop дренирует собственное соединение (реализация core.Lifecycle)
func (n *NATSEventAdapter) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.running = false
	if n.owned != nil {
		return n.owned.Drain()
	}
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (n *NATSEventAdapter) IsRunning() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.running
}

// Name возвращает имя компонента (реализация core.Component)
func (n *NATSEventAdapter) Name() string {
	return "nats-event-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (n *NATSEventAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// Publish публикует событие
func (n *NATSEventAdapter) Publish(ctx context.Context, event events.Event) error {
	data, err := events.Marshal(event)
	if err != nil {
		n.record(ctx, event, false)
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	subject := n.Subject(event)
	err = events.Retry(ctx, n.config.RetryPolicy, func(ctx context.Context) error {
		return n.conn.Publish(subject, data)
	})
	n.record(ctx, event, err == nil)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Subject возвращает subject для события
func (n *NATSEventAdapter) Subject(event events.Event) string {
	return joinName(n.config.SubjectPrefix, event.EventType())
}

func (n *NATSEventAdapter) record(ctx context.Context, event events.Event, success bool) {
	if n.config.Metrics != nil {
		n.config.Metrics.RecordEvent(ctx, event.EventType(), success)
	}
}

func joinName(prefix, name string) string {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
