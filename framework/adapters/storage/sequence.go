// Package storage предоставляет Store адаптеры для generic репозиториев:
// in-memory, PostgreSQL, MongoDB и Redis.
package storage

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/merliontechs/sales/framework/repository"
)

// Int64Sequence потокобезопасный счетчик идентификаторов в памяти
type Int64Sequence struct {
	last atomic.Int64
}

// NewInt64Sequence создает счетчик; первый выданный идентификатор равен start+1
func NewInt64Sequence(start int64) *Int64Sequence {
	s := &Int64Sequence{}
	s.last.Store(start)
	return s
}

// Next возвращает следующий идентификатор
func (s *Int64Sequence) Next(ctx context.Context) (int64, error) {
	return s.last.Add(1), nil
}

// Observe сдвигает счетчик, если идентификатор был назначен снаружи
func (s *Int64Sequence) Observe(ctx context.Context, id int64) error {
	for {
		cur := s.last.Load()
		if id <= cur || s.last.CompareAndSwap(cur, id) {
			return nil
		}
	}
}

// UUIDSequence выдает строковые UUID v4
func UUIDSequence() repository.Sequence[string] {
	return repository.SequenceFunc[string](func(ctx context.Context) (string, error) {
		return uuid.NewString(), nil
	})
}
