package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/merliontechs/sales/framework/repository"
)

// Creator создает store по конфигурации конкретного backend
type Creator[E any, ID comparable] func(ctx context.Context, config interface{}) (repository.Store[E, ID], error)

// Factory выбирает store по имени backend
type Factory[E any, ID comparable] struct {
	creators map[string]Creator[E, ID]
	mu       sync.RWMutex
}

// NewFactory создает фабрику со встроенным адаптером "inmemory"
func NewFactory[E any, ID comparable](identity repository.Identity[E, ID], sequence repository.Sequence[ID]) *Factory[E, ID] {
	factory := &Factory[E, ID]{
		creators: make(map[string]Creator[E, ID]),
	}

	_ = factory.Register("inmemory", func(ctx context.Context, config interface{}) (repository.Store[E, ID], error) {
		cfg := DefaultInMemoryConfig()
		if c, ok := config.(InMemoryConfig); ok {
			cfg = c
		}
		return NewInMemoryStore(cfg, identity, sequence), nil
	})

	return factory
}

// Register регистрирует адаптер
func (f *Factory[E, ID]) Register(name string, creator Creator[E, ID]) error {
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

// Create создает store указанного типа
func (f *Factory[E, ID]) Create(ctx context.Context, name string, config interface{}) (repository.Store[E, ID], error) {
	f.mu.RLock()
	creator, exists := f.creators[name]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown store type: %s", name)
	}

	store, err := creator(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", name, err)
	}
	return store, nil
}

// Names возвращает зарегистрированные адаптеры
func (f *Factory[E, ID]) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
