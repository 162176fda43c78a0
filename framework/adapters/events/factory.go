package events

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/merliontechs/sales/framework/core"
	"github.com/merliontechs/sales/framework/events"
)

// PublisherConfig выбирает и настраивает внешний публикатор событий
type PublisherConfig struct {
	// Type: none, inmemory, nats, kafka
	Type  string           `yaml:"type"`
	NATS  NATSEventConfig  `yaml:"nats"`
	Kafka KafkaEventConfig `yaml:"kafka"`
}

// DefaultPublisherConfig возвращает конфигурацию по умолчанию (только in-memory шина)
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Type:  "inmemory",
		NATS:  DefaultNATSEventConfig(),
		Kafka: DefaultKafkaEventConfig(),
	}
}

// Creator создает публикатор по конфигурации
type Creator func(config PublisherConfig) (events.EventPublisher, error)

// DefaultEventPublisherFactory фабрика Event Publisher адаптеров
type DefaultEventPublisherFactory struct {
	creators map[string]Creator
	mu       sync.RWMutex
}

// NewEventPublisherFactory создает фабрику со встроенными адаптерами.
// bus используется для типа "inmemory" и как запасной публикатор в CreateWithFallback.
func NewEventPublisherFactory(bus *events.InMemoryEventBus) *DefaultEventPublisherFactory {
	factory := &DefaultEventPublisherFactory{
		creators: make(map[string]Creator),
	}

	_ = factory.Register("nats", func(config PublisherConfig) (events.EventPublisher, error) {
		return NewNATSEventAdapter(config.NATS)
	})

	_ = factory.Register("kafka", func(config PublisherConfig) (events.EventPublisher, error) {
		return NewKafkaEventAdapter(config.Kafka)
	})

	_ = factory.Register("inmemory", func(config PublisherConfig) (events.EventPublisher, error) {
		return bus, nil
	})

	return factory
}

// Create создает Event Publisher адаптер указанного в конфигурации типа
func (f *DefaultEventPublisherFactory) Create(config PublisherConfig) (events.EventPublisher, error) {
	f.mu.RLock()
	creator, exists := f.creators[config.Type]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown event publisher type: %s", config.Type)
	}

	publisher, err := creator(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s event publisher: %w", config.Type, err)
	}

	return publisher, nil
}

// Register регистрирует custom адаптер
func (f *DefaultEventPublisherFactory) Register(name string, creator Creator) error {
	if name == "" {
		return fmt.Errorf("adapter name cannot be empty")
	}
	if creator == nil {
		return fmt.Errorf("creator function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.creators[name]; exists {
		return fmt.Errorf("adapter %s already registered", name)
	}

	f.creators[name] = creator
	return nil
}

// ListRegistered возвращает список зарегистрированных адаптеров
func (f *DefaultEventPublisherFactory) ListRegistered() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateWithFallback создает publisher, который при ошибке внешнего брокера
// доставляет событие в in-memory шину
func (f *DefaultEventPublisherFactory) CreateWithFallback(config PublisherConfig, fallback events.EventPublisher) (events.EventPublisher, error) {
	primary, err := f.Create(config)
	if err != nil {
		return nil, err
	}
	if primary == fallback {
		return primary, nil
	}
	return &FallbackEventPublisher{primary: primary, fallback: fallback}, nil
}

// FallbackEventPublisher использует fallback при ошибках primary publisher
type FallbackEventPublisher struct {
	primary  events.EventPublisher
	fallback events.EventPublisher
}

// Publish публикует событие, используя fallback при ошибках
func (f *FallbackEventPublisher) Publish(ctx context.Context, event events.Event) error {
	if err := f.primary.Publish(ctx, event); err != nil {
		if fbErr := f.fallback.Publish(ctx, event); fbErr != nil {
			return fmt.Errorf("primary: %w; fallback: %v", err, fbErr)
		}
	}
	return nil
}

// Stop останавливает primary publisher, если он управляет соединением
func (f *FallbackEventPublisher) Stop(ctx context.Context) error {
	if lc, ok := f.primary.(core.Lifecycle); ok {
		return lc.Stop(ctx)
	}
	return nil
}
