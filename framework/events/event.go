// Package events предоставляет доменные события об изменениях сущностей в репозиториях.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Действия над сущностью
const (
	ActionSaved   = "saved"
	ActionDeleted = "deleted"
)

// Event представляет доменное событие
type Event interface {
	// EventID возвращает уникальный идентификатор события
	EventID() string
	// EventType возвращает тип события
	EventType() string
	// OccurredAt возвращает время возникновения события
	OccurredAt() time.Time
	// AggregateID возвращает идентификатор сущности
	AggregateID() string
	// Metadata возвращает метаданные события
	Metadata() EventMetadata
}

// EventMetadata метаданные события
type EventMetadata map[string]interface{}

// Get получает значение метаданных по ключу
func (m EventMetadata) Get(key string) (interface{}, bool) {
	val, ok := m[key]
	return val, ok
}

// CorrelationID возвращает correlation ID
func (m EventMetadata) CorrelationID() string {
	val, ok := m.Get("correlation_id")
	if !ok {
		return ""
	}
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// BaseEvent базовая реализация события
type BaseEvent struct {
	eventID     string
	eventType   string
	occurredAt  time.Time
	aggregateID string
	metadata    EventMetadata
}

// NewBaseEvent создает новое базовое событие
func NewBaseEvent(eventType, aggregateID string) *BaseEvent {
	return &BaseEvent{
		eventID:     uuid.NewString(),
		eventType:   eventType,
		occurredAt:  time.Now().UTC(),
		aggregateID: aggregateID,
		metadata:    make(EventMetadata),
	}
}

// WithMetadata добавляет метаданные к событию
func (e *BaseEvent) WithMetadata(key string, value interface{}) *BaseEvent {
	e.metadata[key] = value
	return e
}

// WithCorrelationID устанавливает correlation ID
func (e *BaseEvent) WithCorrelationID(id string) *BaseEvent {
	return e.WithMetadata("correlation_id", id)
}

func (e *BaseEvent) EventID() string {
	return e.eventID
}

func (e *BaseEvent) EventType() string {
	return e.eventType
}

func (e *BaseEvent) OccurredAt() time.Time {
	return e.occurredAt
}

func (e *BaseEvent) AggregateID() string {
	return e.aggregateID
}

func (e *BaseEvent) Metadata() EventMetadata {
	return e.metadata
}

// EntityEvent событие изменения сущности репозитория.
// Тип события формируется как "<entity>.<action>", например "sales.saved".
type EntityEvent struct {
	*BaseEvent
	Entity  string
	Action  string
	Payload interface{}
}

// NewEntitySaved создает событие успешного сохранения сущности
func NewEntitySaved(entity, id string, payload interface{}) *EntityEvent {
	return &EntityEvent{
		BaseEvent: NewBaseEvent(EntityEventType(entity, ActionSaved), id),
		Entity:    entity,
		Action:    ActionSaved,
		Payload:   payload,
	}
}

// NewEntityDeleted создает событие удаления сущности
func NewEntityDeleted(entity, id string) *EntityEvent {
	return &EntityEvent{
		BaseEvent: NewBaseEvent(EntityEventType(entity, ActionDeleted), id),
		Entity:    entity,
		Action:    ActionDeleted,
	}
}

// EntityEventType возвращает тип события для сущности и действия
func EntityEventType(entity, action string) string {
	return entity + "." + action
}

// EventHandler обработчик доменных событий
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc адаптер функции к EventHandler
type HandlerFunc func(ctx context.Context, event Event) error

// Handle вызывает функцию
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// EventPublisher публикатор событий
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventSubscriber подписчик на события
type EventSubscriber interface {
	// Subscribe подписывается на тип события, возвращает функцию отписки
	Subscribe(eventType string, handler EventHandler) (func(), error)
}

// EventBus объединяет Publisher и Subscriber
type EventBus interface {
	EventPublisher
	EventSubscriber
}
