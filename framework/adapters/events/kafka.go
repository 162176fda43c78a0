package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/merliontechs/sales/framework/core"
	"github.com/merliontechs/sales/framework/events"
	"github.com/merliontechs/sales/framework/metrics"
)

// KafkaWriter часть *kafka.Writer, нужная адаптеру
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventConfig конфигурация для Kafka Event Publisher
type KafkaEventConfig struct {
	Brokers       []string         `yaml:"brokers"`
	TopicPrefix   string           `yaml:"topic_prefix"`
	Compression   string           `yaml:"compression"` // none, gzip, snappy, lz4, zstd
	BatchSize     int              `yaml:"batch_size"`
	FlushInterval time.Duration    `yaml:"flush_interval"`
	Writer        KafkaWriter      `yaml:"-"`
	Metrics       *metrics.Metrics `yaml:"-"`
}

// DefaultKafkaEventConfig возвращает конфигурацию Kafka Event Publisher по умолчанию
func DefaultKafkaEventConfig() KafkaEventConfig {
	return KafkaEventConfig{
		Brokers:       []string{"localhost:9092"},
		TopicPrefix:   "events",
		Compression:   "snappy",
		BatchSize:     100,
		FlushInterval: 10 * time.Millisecond,
	}
}

// KafkaEventAdapter публикует события в topic "<prefix>.<entity>" с ключом aggregate id,
// поэтому события одной сущности попадают в одну партицию по порядку.
type KafkaEventAdapter struct {
	config  KafkaEventConfig
	writer  KafkaWriter
	mu      sync.RWMutex
	running bool
}

// NewKafkaEventAdapter создает новый Kafka Event Publisher
func NewKafkaEventAdapter(config KafkaEventConfig) (*KafkaEventAdapter, error) {
	writer := config.Writer
	if writer == nil {
		if len(config.Brokers) == 0 {
			return nil, core.NewError(core.ErrInvalidConfig, "kafka brokers are required")
		}
		writer = &kafka.Writer{
			Addr:                   kafka.TCP(config.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchSize:              config.BatchSize,
			BatchTimeout:           config.FlushInterval,
			Compression:            getKafkaCompression(config.Compression),
			WriteTimeout:           10 * time.Second,
			AllowAutoTopicCreation: true,
		}
	}

	return &KafkaEventAdapter{
		config: config,
		writer: writer,
	}, nil
}

// getKafkaCompression преобразует строку в kafka.Compression
func getKafkaCompression(compression string) kafka.Compression {
	switch compression {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

// Start запускает адаптер (реализация core.Lifecycle)
func (k *KafkaEventAdapter) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.running = true
	return nil
}

// Stop закрывает writer (реализация core.Lifecycle)
func (k *KafkaEventAdapter) Stop(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.running = false
	return k.writer.Close()
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (k *KafkaEventAdapter) IsRunning() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.running
}

// Name возвращает имя компонента (реализация core.Component)
func (k *KafkaEventAdapter) Name() string {
	return "kafka-event-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (k *KafkaEventAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// Publish публикует событие
func (k *KafkaEventAdapter) Publish(ctx context.Context, event events.Event) error {
	data, err := events.Marshal(event)
	if err != nil {
		k.record(ctx, event, false)
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	msg := kafka.Message{
		Topic: k.Topic(event),
		Key:   []byte(event.AggregateID()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID())},
			{Key: "event_type", Value: []byte(event.EventType())},
			{Key: "occurred_at", Value: []byte(event.OccurredAt().Format(time.RFC3339Nano))},
		},
	}
	if correlationID := event.Metadata().CorrelationID(); correlationID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{
			Key:   "correlation_id",
			Value: []byte(correlationID),
		})
	}

	err = k.writer.WriteMessages(ctx, msg)
	k.record(ctx, event, err == nil)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Topic возвращает topic для события
func (k *KafkaEventAdapter) Topic(event events.Event) string {
	if e, ok := event.(*events.EntityEvent); ok {
		return joinName(k.config.TopicPrefix, e.Entity)
	}
	entity, _, _ := strings.Cut(event.EventType(), ".")
	return joinName(k.config.TopicPrefix, entity)
}

func (k *KafkaEventAdapter) record(ctx context.Context, event events.Event, success bool) {
	if k.config.Metrics != nil {
		k.config.Metrics.RecordEvent(ctx, event.EventType(), success)
	}
}
