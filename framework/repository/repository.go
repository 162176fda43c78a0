// Package repository предоставляет generic контракт CRUD репозитория поверх Store.
//
// Repository[E, ID] не хранит состояния сущностей: каждая операция является одним
// синхронным вызовом Store, поэтому один экземпляр безопасно разделяется между горутинами.
// Атомарность и изоляция отдельных записей обеспечивает Store.
package repository

import (
	"context"
	"iter"

	"github.com/merliontechs/sales/framework/core"
)

// Repository базовый набор операций над сущностями E с идентификатором ID.
// Нулевое значение ID означает, что идентификатор еще не назначен.
type Repository[E any, ID comparable] interface {
	// Save вставляет сущность без идентификатора (или с идентификатором, отсутствующим в store)
	// и обновляет существующую запись иначе. Возвращает сохраненную сущность с идентификатором.
	Save(ctx context.Context, entity E) (E, error)
	// FindByID возвращает core.None, если записи нет; отсутствие не является ошибкой.
	FindByID(ctx context.Context, id ID) (core.Option[E], error)
	// FindAll возвращает ленивую последовательность всех записей. Store читается при каждом
	// проходе по последовательности, поэтому ее можно обходить повторно.
	FindAll(ctx context.Context) iter.Seq2[E, error]
	ExistsByID(ctx context.Context, id ID) (bool, error)
	// FindPage возвращает страницу записей в порядке store и общее количество записей.
	FindPage(ctx context.Context, page Page) (PageResult[E], error)
	// DeleteByID идемпотентен: удаление отсутствующей записи не является ошибкой.
	DeleteByID(ctx context.Context, id ID) error
	Count(ctx context.Context) (int64, error)
}

// Store внешний backend, выполняющий I/O.
// Реализации обязаны гарантировать атомарность каждой операции над одной записью.
type Store[E any, ID comparable] interface {
	// Upsert назначает идентификатор, если он нулевой, иначе атомарно вставляет или заменяет запись.
	Upsert(ctx context.Context, entity E) (E, error)
	Get(ctx context.Context, id ID) (E, bool, error)
	Scan(ctx context.Context) iter.Seq2[E, error]
	// ScanPage возвращает не более page.Limit записей после пропуска page.Offset,
	// в том же порядке, что и Scan.
	ScanPage(ctx context.Context, page Page) ([]E, error)
	Exists(ctx context.Context, id ID) (bool, error)
	// Delete не возвращает ошибку для отсутствующей записи.
	Delete(ctx context.Context, id ID) error
	Count(ctx context.Context) (int64, error)
}

// Identity описывает, как прочитать и установить идентификатор сущности
type Identity[E any, ID comparable] interface {
	ID(entity E) ID
	WithID(entity E, id ID) E
}

// IdentityFuncs адаптер пары функций к Identity
type IdentityFuncs[E any, ID comparable] struct {
	Get func(E) ID
	Set func(E, ID) E
}

// ID возвращает идентификатор сущности
func (f IdentityFuncs[E, ID]) ID(entity E) ID {
	return f.Get(entity)
}

// WithID возвращает копию сущности с идентификатором
func (f IdentityFuncs[E, ID]) WithID(entity E, id ID) E {
	return f.Set(entity, id)
}

// Sequence генератор новых идентификаторов
type Sequence[ID comparable] interface {
	Next(ctx context.Context) (ID, error)
}

// SequenceObserver сдвигает последовательность за идентификатор, назначенный снаружи,
// чтобы следующий Next не выдал уже занятое значение.
type SequenceObserver[ID comparable] interface {
	Observe(ctx context.Context, id ID) error
}

// ObserveID сообщает sequence об идентификаторе, если она это поддерживает
func ObserveID[ID comparable](ctx context.Context, sequence Sequence[ID], id ID) error {
	if obs, ok := sequence.(SequenceObserver[ID]); ok {
		return obs.Observe(ctx, id)
	}
	return nil
}

// MaxPageSize верхняя граница Page.Limit
const MaxPageSize = 1000

// Page окно выборки: пропустить Offset записей и вернуть не более Limit
type Page struct {
	Offset int64
	Limit  int64
}

// PageOf строит Page по номеру страницы (с нуля) и ее размеру
func PageOf(number, size int64) Page {
	return Page{Offset: number * size, Limit: size}
}

// Validate проверяет границы страницы
func (p Page) Validate() error {
	if p.Offset < 0 {
		return core.InvalidArgument("page offset must not be negative: %d", p.Offset)
	}
	if p.Limit <= 0 || p.Limit > MaxPageSize {
		return core.InvalidArgument("page limit must be in [1, %d]: %d", MaxPageSize, p.Limit)
	}
	return nil
}

// PageResult страница записей и общее количество записей в store
type PageResult[E any] struct {
	Items []E
	Total int64
	Page  Page
}

// SlicePage вырезает страницу из упорядоченного среза
func SlicePage[E any](items []E, page Page) []E {
	n := int64(len(items))
	if page.Offset >= n {
		return nil
	}
	end := page.Offset + page.Limit
	if end > n {
		end = n
	}
	return items[page.Offset:end]
}

// SequenceFunc адаптер функции к Sequence
type SequenceFunc[ID comparable] func(ctx context.Context) (ID, error)

// Next вызывает функцию
func (f SequenceFunc[ID]) Next(ctx context.Context) (ID, error) {
	return f(ctx)
}

// IsZero проверяет, что идентификатор не назначен
func IsZero[ID comparable](id ID) bool {
	var zero ID
	return id == zero
}

// Collect обходит последовательность и возвращает все элементы или первую ошибку
func Collect[E any](seq iter.Seq2[E, error]) ([]E, error) {
	var result []E
	for e, err := range seq {
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}
