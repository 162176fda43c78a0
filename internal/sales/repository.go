package sales

import (
	"context"
	"fmt"
	"strconv"

	"github.com/merliontechs/sales/framework/adapters/storage"
	"github.com/merliontechs/sales/framework/repository"
)

// SalesRepository CRUD репозиторий продаж без дополнительных запросов
type SalesRepository = repository.Repository[Sales, int64]

// Identity читает и устанавливает Sales.ID
var Identity = repository.IdentityFuncs[Sales, int64]{
	Get: func(s Sales) int64 { return s.ID },
	Set: func(s Sales, id int64) Sales {
		s.ID = id
		return s
	},
}

// ParseID разбирает идентификатор из строки (путь REST запроса)
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sales id %q: %w", s, err)
	}
	return id, nil
}

// NewRepository создает репозиторий продаж над store; пустое состояние сохраняется как IN_CHARGE
func NewRepository(store repository.Store[Sales, int64], opts ...repository.Option) (*repository.GenericRepository[Sales, int64], error) {
	opts = append([]repository.Option{repository.WithName(EntityName), repository.WithPrepare(Prepare)}, opts...)
	return repository.New[Sales, int64](store, Identity, opts...)
}

// NewInMemoryRepository создает репозиторий над in-memory store с идентификаторами 1, 2, ...
func NewInMemoryRepository(opts ...repository.Option) (*repository.GenericRepository[Sales, int64], error) {
	store := storage.NewInMemoryStore(storage.DefaultInMemoryConfig(), Identity, storage.NewInt64Sequence(0))
	return NewRepository(store, opts...)
}

// NewStoreFactory создает фабрику store для продаж: inmemory, postgres, mongodb, redis
func NewStoreFactory() *storage.Factory[Sales, int64] {
	factory := storage.NewFactory[Sales, int64](Identity, storage.NewInt64Sequence(0))

	_ = factory.Register("postgres", func(ctx context.Context, config interface{}) (repository.Store[Sales, int64], error) {
		cfg, ok := config.(storage.PostgresConfig)
		if !ok {
			return nil, fmt.Errorf("invalid postgres config type: %T", config)
		}
		return storage.NewPostgresStore[Sales, int64](ctx, cfg, Identity, PostgresMapper{})
	})

	_ = factory.Register("mongodb", func(ctx context.Context, config interface{}) (repository.Store[Sales, int64], error) {
		cfg, ok := config.(storage.MongoConfig)
		if !ok {
			return nil, fmt.Errorf("invalid mongodb config type: %T", config)
		}
		client, err := storage.ConnectMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		counters := client.Database(cfg.Database).Collection(cfg.Counters)
		return storage.NewMongoStore[Sales, int64](client, cfg, Identity, storage.NewMongoCounterSequence(counters, cfg.Collection)), nil
	})

	_ = factory.Register("redis", func(ctx context.Context, config interface{}) (repository.Store[Sales, int64], error) {
		cfg, ok := config.(storage.RedisConfig)
		if !ok {
			return nil, fmt.Errorf("invalid redis config type: %T", config)
		}
		client, err := storage.ConnectRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		seq := storage.NewRedisSequence(client, storage.SequenceKey(cfg.Key))
		return storage.NewRedisStore[Sales, int64](client, cfg, Identity, seq), nil
	})

	return factory
}
