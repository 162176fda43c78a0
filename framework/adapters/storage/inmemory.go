package storage

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/merliontechs/sales/framework/core"
	"github.com/merliontechs/sales/framework/repository"
)

// InMemoryConfig конфигурация для InMemory store
type InMemoryConfig struct {
	// MaxEntities максимальное количество записей (0 = без ограничений).
	// При достижении лимита вставка новой записи отклоняется с PERSISTENCE_ERROR.
	MaxEntities int `yaml:"max_entities"`
}

// DefaultInMemoryConfig возвращает конфигурацию InMemory по умолчанию
func DefaultInMemoryConfig() InMemoryConfig {
	return InMemoryConfig{
		MaxEntities: 0,
	}
}

type record[E any] struct {
	entity E
	seq    uint64
}

// InMemoryStore[E, ID] эталонный store в памяти.
// Scan отдает записи в порядке первой вставки.
type InMemoryStore[E any, ID comparable] struct {
	config   InMemoryConfig
	identity repository.Identity[E, ID]
	sequence repository.Sequence[ID]
	records  map[ID]record[E]
	inserted uint64
	mu       sync.RWMutex
}

// NewInMemoryStore создает новый in-memory store.
// sequence может быть nil, тогда сохранение сущности без идентификатора отклоняется.
func NewInMemoryStore[E any, ID comparable](config InMemoryConfig, identity repository.Identity[E, ID], sequence repository.Sequence[ID]) *InMemoryStore[E, ID] {
	return &InMemoryStore[E, ID]{
		config:   config,
		identity: identity,
		sequence: sequence,
		records:  make(map[ID]record[E]),
	}
}

// Name возвращает имя компонента (реализация core.Component)
func (s *InMemoryStore[E, ID]) Name() string {
	return "inmemory-store"
}

// Type возвращает тип компонента (реализация core.Component)
func (s *InMemoryStore[E, ID]) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck всегда успешен
func (s *InMemoryStore[E, ID]) HealthCheck(ctx context.Context) error {
	return nil
}

// Upsert сохраняет запись
func (s *InMemoryStore[E, ID]) Upsert(ctx context.Context, entity E) (E, error) {
	if err := ctx.Err(); err != nil {
		return entity, core.Persistence(err, "save cancelled")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.identity.ID(entity)
	generated := repository.IsZero(id)
	if generated {
		if s.sequence == nil {
			return entity, core.InvalidArgument("in-memory store has no sequence to assign identifiers")
		}
		next, err := s.sequence.Next(ctx)
		if err != nil {
			return entity, core.Persistence(err, "failed to allocate identifier")
		}
		id = next
		entity = s.identity.WithID(entity, id)
	}

	existing, exists := s.records[id]
	if !exists && s.config.MaxEntities > 0 && len(s.records) >= s.config.MaxEntities {
		return entity, core.Persistence(
			core.NewError(core.ErrAlreadyExists, "repository limit reached"),
			"max %d entities", s.config.MaxEntities)
	}
	if generated && exists {
		return entity, core.Persistence(
			core.NewError(core.ErrAlreadyExists, fmt.Sprintf("identifier %v already taken", id)),
			"failed to insert")
	}
	if !generated {
		if err := repository.ObserveID(ctx, s.sequence, id); err != nil {
			return entity, core.Persistence(err, "failed to advance sequence")
		}
	}

	seq := existing.seq
	if !exists {
		s.inserted++
		seq = s.inserted
	}
	s.records[id] = record[E]{entity: entity, seq: seq}
	return entity, nil
}

// Get находит запись по идентификатору
func (s *InMemoryStore[E, ID]) Get(ctx context.Context, id ID) (E, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	return rec.entity, ok, nil
}

// Scan отдает снимок записей, сделанный в момент начала обхода
func (s *InMemoryStore[E, ID]) Scan(ctx context.Context) iter.Seq2[E, error] {
	return func(yield func(E, error) bool) {
		for _, rec := range s.snapshot() {
			if err := ctx.Err(); err != nil {
				var zero E
				yield(zero, core.Persistence(err, "scan cancelled"))
				return
			}
			if !yield(rec.entity, nil) {
				return
			}
		}
	}
}

// ScanPage вырезает страницу из снимка в порядке вставки
func (s *InMemoryStore[E, ID]) ScanPage(ctx context.Context, page repository.Page) ([]E, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.Persistence(err, "scan cancelled")
	}
	window := repository.SlicePage(s.snapshot(), page)
	items := make([]E, 0, len(window))
	for _, rec := range window {
		items = append(items, rec.entity)
	}
	return items, nil
}

func (s *InMemoryStore[E, ID]) snapshot() []record[E] {
	s.mu.RLock()
	snapshot := make([]record[E], 0, len(s.records))
	for _, rec := range s.records {
		snapshot = append(snapshot, rec)
	}
	s.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].seq < snapshot[j].seq
	})
	return snapshot
}

// Exists проверяет наличие записи
func (s *InMemoryStore[E, ID]) Exists(ctx context.Context, id ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.records[id]
	return ok, nil
}

// Delete удаляет запись, если она есть
func (s *InMemoryStore[E, ID]) Delete(ctx context.Context, id ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
	return nil
}

// Count возвращает количество записей
func (s *InMemoryStore[E, ID]) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

// Clear очищает store (для тестирования)
func (s *InMemoryStore[E, ID]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[ID]record[E])
}
