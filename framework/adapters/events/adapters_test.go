package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merliontechs/sales/framework/events"
)

type fakeNATSConn struct {
	mu       sync.Mutex
	failures int
	subjects []string
	payloads [][]byte
}

func (c *fakeNATSConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures > 0 {
		c.failures--
		return errors.New("nats: connection closed")
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

type fakeKafkaWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeKafkaWriter) Close() error {
	w.closed = true
	return nil
}

type sale struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
}

func fastRetry() events.RetryConfig {
	return events.RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestNATSEventAdapter_Publish(t *testing.T) {
	conn := &fakeNATSConn{}
	config := DefaultNATSEventConfig()
	config.Conn = conn
	config.RetryPolicy = fastRetry()

	adapter, err := NewNATSEventAdapter(config)
	require.NoError(t, err)

	event := events.NewEntitySaved("sales", "1", sale{ID: 1, Description: "A"})
	require.NoError(t, adapter.Publish(context.Background(), event))

	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "events.sales.saved", conn.subjects[0])

	env, err := events.Unmarshal(conn.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, "sales.saved", env.EventType)
	assert.Equal(t, "1", env.AggregateID)
	assert.JSONEq(t, `{"id":1,"description":"A"}`, string(env.Payload))
}

func TestNATSEventAdapter_RetriesTransientFailures(t *testing.T) {
	conn := &fakeNATSConn{failures: 2}
	config := DefaultNATSEventConfig()
	config.Conn = conn
	config.RetryPolicy = fastRetry()

	adapter, err := NewNATSEventAdapter(config)
	require.NoError(t, err)

	require.NoError(t, adapter.Publish(context.Background(), events.NewEntityDeleted("sales", "7")))
	assert.Equal(t, []string{"events.sales.deleted"}, conn.subjects)
}

func TestNATSEventAdapter_GivesUp(t *testing.T) {
	conn := &fakeNATSConn{failures: 10}
	config := DefaultNATSEventConfig()
	config.Conn = conn
	config.RetryPolicy = fastRetry()

	adapter, err := NewNATSEventAdapter(config)
	require.NoError(t, err)

	err = adapter.Publish(context.Background(), events.NewEntityDeleted("sales", "7"))
	assert.Error(t, err)
	assert.Empty(t, conn.subjects)
}

func TestNATSEventAdapter_RequiresConnOrURL(t *testing.T) {
	_, err := NewNATSEventAdapter(NATSEventConfig{})
	assert.Error(t, err)
}

func TestKafkaEventAdapter_Publish(t *testing.T) {
	writer := &fakeKafkaWriter{}
	config := DefaultKafkaEventConfig()
	config.Writer = writer

	adapter, err := NewKafkaEventAdapter(config)
	require.NoError(t, err)

	event := events.NewEntitySaved("sales", "42", sale{ID: 42})
	event.WithCorrelationID("corr-1")
	require.NoError(t, adapter.Publish(context.Background(), event))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "events.sales", msg.Topic)
	assert.Equal(t, "42", string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "sales.saved", headers["event_type"])
	assert.Equal(t, event.EventID(), headers["event_id"])
	assert.Equal(t, "corr-1", headers["correlation_id"])

	require.NoError(t, adapter.Stop(context.Background()))
	assert.True(t, writer.closed)
}

func TestKafkaEventAdapter_TopicFromEventType(t *testing.T) {
	adapter, err := NewKafkaEventAdapter(KafkaEventConfig{TopicPrefix: "", Writer: &fakeKafkaWriter{}})
	require.NoError(t, err)

	assert.Equal(t, "orders", adapter.Topic(events.NewBaseEvent("orders.created", "1")))
}

func TestKafkaEventAdapter_WriteError(t *testing.T) {
	writer := &fakeKafkaWriter{err: errors.New("leader not available")}
	adapter, err := NewKafkaEventAdapter(KafkaEventConfig{TopicPrefix: "events", Writer: writer})
	require.NoError(t, err)

	err = adapter.Publish(context.Background(), events.NewEntityDeleted("sales", "1"))
	assert.Error(t, err)
}

func TestEventPublisherFactory(t *testing.T) {
	bus := events.NewInMemoryEventBus()
	factory := NewEventPublisherFactory(bus)

	assert.Equal(t, []string{"inmemory", "kafka", "nats"}, factory.ListRegistered())

	publisher, err := factory.Create(PublisherConfig{Type: "inmemory"})
	require.NoError(t, err)
	assert.Same(t, bus, publisher)

	_, err = factory.Create(PublisherConfig{Type: "carrier-pigeon"})
	assert.Error(t, err)

	config := DefaultPublisherConfig()
	config.Type = "kafka"
	config.Kafka.Writer = &fakeKafkaWriter{}
	publisher, err = factory.Create(config)
	require.NoError(t, err)
	assert.IsType(t, &KafkaEventAdapter{}, publisher)
}

func TestFallbackEventPublisher(t *testing.T) {
	bus := events.NewInMemoryEventBus()
	var delivered int
	_, err := bus.Subscribe("sales.deleted", events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		delivered++
		return nil
	}))
	require.NoError(t, err)

	factory := NewEventPublisherFactory(bus)
	config := DefaultPublisherConfig()
	config.Type = "kafka"
	config.Kafka.Writer = &fakeKafkaWriter{err: errors.New("broker down")}

	publisher, err := factory.CreateWithFallback(config, bus)
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(context.Background(), events.NewEntityDeleted("sales", "1")))
	assert.Equal(t, 1, delivered)
}
