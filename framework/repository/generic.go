package repository

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/merliontechs/sales/framework/core"
	"github.com/merliontechs/sales/framework/events"
	"github.com/merliontechs/sales/framework/logger"
	"github.com/merliontechs/sales/framework/metrics"
	"github.com/merliontechs/sales/framework/observability"
)

// Имена операций для логов, метрик и spans
const (
	OpSave       = "save"
	OpFindByID   = "find_by_id"
	OpFindAll    = "find_all"
	OpFindPage   = "find_page"
	OpExistsByID = "exists_by_id"
	OpDeleteByID = "delete_by_id"
	OpCount      = "count"
)

type options struct {
	name      string
	logger    *zap.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	publisher events.EventPublisher
	prepare   func(any) (any, error)
}

// Option настраивает GenericRepository
type Option func(*options)

// WithName задает имя репозитория (используется в логах, метриках и типах событий)
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger задает логгер
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics включает запись метрик операций
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracer включает spans для операций
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithEventPublisher включает публикацию событий после успешных Save и DeleteByID
func WithEventPublisher(p events.EventPublisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithPrepare задает функцию, которую Save применяет к сущности до записи:
// заполнение значений по умолчанию и проверка. Ошибка возвращается из Save без обращения к store.
func WithPrepare[E any](prepare func(E) (E, error)) Option {
	return func(o *options) {
		o.prepare = func(v any) (any, error) {
			e, ok := v.(E)
			if !ok {
				return v, core.NewError(core.ErrInvalidConfig, fmt.Sprintf("prepare expects %T, got %T", e, v))
			}
			return prepare(e)
		}
	}
}

// GenericRepository реализация Repository, маршрутизирующая вызовы в Store.
// Поля неизменяемы после создания.
type GenericRepository[E any, ID comparable] struct {
	store    Store[E, ID]
	identity Identity[E, ID]
	opts     options
}

var _ Repository[struct{}, int64] = (*GenericRepository[struct{}, int64])(nil)

// New создает репозиторий над store
func New[E any, ID comparable](store Store[E, ID], identity Identity[E, ID], opts ...Option) (*GenericRepository[E, ID], error) {
	if store == nil {
		return nil, core.NewError(core.ErrInvalidConfig, "store cannot be nil")
	}
	if identity == nil {
		return nil, core.NewError(core.ErrInvalidConfig, "identity cannot be nil")
	}

	o := options{name: "repository"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.L()
	}
	o.logger = o.logger.With(logger.Repository(o.name))

	return &GenericRepository[E, ID]{
		store:    store,
		identity: identity,
		opts:     o,
	}, nil
}

// Name возвращает имя репозитория
func (r *GenericRepository[E, ID]) Name() string {
	return r.opts.name
}

// Save сохраняет сущность
func (r *GenericRepository[E, ID]) Save(ctx context.Context, entity E) (E, error) {
	var saved E
	err := r.observe(ctx, OpSave, func(ctx context.Context) error {
		if r.opts.prepare != nil {
			prepared, err := r.opts.prepare(entity)
			if err != nil {
				return err
			}
			entity = prepared.(E)
		}
		s, err := r.store.Upsert(ctx, entity)
		if err != nil {
			return err
		}
		saved = s
		return nil
	})
	if err != nil {
		var zero E
		return zero, err
	}

	id := r.identity.ID(saved)
	r.publish(ctx, events.NewEntitySaved(r.opts.name, formatID(id), saved))
	return saved, nil
}

// FindByID находит сущность по идентификатору
func (r *GenericRepository[E, ID]) FindByID(ctx context.Context, id ID) (core.Option[E], error) {
	result := core.None[E]()
	err := r.observe(ctx, OpFindByID, func(ctx context.Context) error {
		if err := r.requireID(id); err != nil {
			return err
		}
		e, ok, err := r.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if ok {
			result = core.Some(e)
		}
		return nil
	})
	if err != nil {
		return core.None[E](), err
	}
	return result, nil
}

// FindAll возвращает ленивую последовательность всех сущностей.
// Ошибка store передается последним элементом последовательности.
func (r *GenericRepository[E, ID]) FindAll(ctx context.Context) iter.Seq2[E, error] {
	return func(yield func(E, error) bool) {
		_ = r.observe(ctx, OpFindAll, func(ctx context.Context) error {
			for e, err := range r.store.Scan(ctx) {
				if err != nil {
					var zero E
					yield(zero, err)
					return err
				}
				if !yield(e, nil) {
					return nil
				}
			}
			return nil
		})
	}
}

// FindPage возвращает страницу сущностей и их общее количество
func (r *GenericRepository[E, ID]) FindPage(ctx context.Context, page Page) (PageResult[E], error) {
	result := PageResult[E]{Page: page}
	err := r.observe(ctx, OpFindPage, func(ctx context.Context) error {
		if err := page.Validate(); err != nil {
			return err
		}
		items, err := r.store.ScanPage(ctx, page)
		if err != nil {
			return err
		}
		total, err := r.store.Count(ctx)
		if err != nil {
			return err
		}
		result.Items = items
		result.Total = total
		return nil
	})
	if err != nil {
		return PageResult[E]{Page: page}, err
	}
	return result, nil
}

// ExistsByID проверяет наличие сущности
func (r *GenericRepository[E, ID]) ExistsByID(ctx context.Context, id ID) (bool, error) {
	var exists bool
	err := r.observe(ctx, OpExistsByID, func(ctx context.Context) error {
		if err := r.requireID(id); err != nil {
			return err
		}
		ok, err := r.store.Exists(ctx, id)
		if err != nil {
			return err
		}
		exists = ok
		return nil
	})
	return exists, err
}

// DeleteByID удаляет сущность, если она есть
func (r *GenericRepository[E, ID]) DeleteByID(ctx context.Context, id ID) error {
	err := r.observe(ctx, OpDeleteByID, func(ctx context.Context) error {
		if err := r.requireID(id); err != nil {
			return err
		}
		return r.store.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	r.publish(ctx, events.NewEntityDeleted(r.opts.name, formatID(id)))
	return nil
}

// Count возвращает количество сущностей
func (r *GenericRepository[E, ID]) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.observe(ctx, OpCount, func(ctx context.Context) error {
		n, err := r.store.Count(ctx)
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	return count, err
}

func (r *GenericRepository[E, ID]) requireID(id ID) error {
	if IsZero(id) {
		return core.InvalidArgument("%s: identifier is required", r.opts.name)
	}
	return nil
}

// observe выполняет операцию с трассировкой, метриками и логированием
func (r *GenericRepository[E, ID]) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	if r.opts.metrics != nil {
		done := r.opts.metrics.TrackActive(ctx, r.opts.name)
		defer done()
	}

	var err error
	if r.opts.tracer != nil {
		err = observability.TraceOperation(ctx, r.opts.tracer, r.opts.name, op, fn)
	} else {
		err = fn(ctx)
	}
	duration := time.Since(start)

	if r.opts.metrics != nil {
		r.opts.metrics.RecordOperation(ctx, r.opts.name, op, duration, err)
	}

	switch {
	case err == nil:
		r.opts.logger.Debug("repository operation completed", logger.Operation(op), logger.Duration(duration))
	case core.IsCode(err, core.ErrInvalidArgument):
		r.opts.logger.Debug("repository operation rejected", logger.Operation(op), zap.Error(err))
	default:
		r.opts.logger.Error("repository operation failed", logger.Operation(op), logger.Duration(duration), zap.Error(err))
	}
	return err
}

// publish публикует событие; ошибка публикации не отменяет уже выполненную запись
func (r *GenericRepository[E, ID]) publish(ctx context.Context, event *events.EntityEvent) {
	if r.opts.publisher == nil {
		return
	}
	if id := observability.CorrelationID(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	err := r.opts.publisher.Publish(ctx, event)
	if r.opts.metrics != nil {
		r.opts.metrics.RecordEvent(ctx, event.EventType(), err == nil)
	}
	if err != nil {
		r.opts.logger.Warn("failed to publish entity event",
			zap.String("event_type", event.EventType()),
			logger.EntityID(event.AggregateID()),
			zap.Error(err))
	}
}

func formatID[ID comparable](id ID) string {
	return fmt.Sprint(id)
}
