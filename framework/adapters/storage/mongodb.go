package storage

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/merliontechs/sales/framework/core"
	"github.com/merliontechs/sales/framework/repository"
)

// MongoConfig конфигурация для MongoDB store
type MongoConfig struct {
	URI         string        `yaml:"uri"`
	Database    string        `yaml:"database"`
	Collection  string        `yaml:"collection"`
	Counters    string        `yaml:"counters"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxPoolSize int           `yaml:"max_pool_size"`
	MinPoolSize int           `yaml:"min_pool_size"`
}

// Validate проверяет корректность конфигурации
func (c MongoConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("URI cannot be empty")
	}
	if c.Database == "" {
		return fmt.Errorf("database cannot be empty")
	}
	if c.Collection == "" {
		return fmt.Errorf("collection cannot be empty")
	}
	if c.MaxPoolSize <= 0 {
		return fmt.Errorf("MaxPoolSize must be greater than 0")
	}
	return nil
}

// DefaultMongoConfig возвращает конфигурацию MongoDB по умолчанию
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		Database:    "sales",
		Collection:  "sales",
		Counters:    "counters",
		Timeout:     10 * time.Second,
		MaxPoolSize: 100,
		MinPoolSize: 10,
	}
}

// ConnectMongo открывает клиент и проверяет подключение
func ConnectMongo(ctx context.Context, config MongoConfig) (*mongo.Client, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid mongodb config")
	}

	opts := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(uint64(config.MaxPoolSize)).
		SetMinPoolSize(uint64(config.MinPoolSize))
	if config.Timeout > 0 {
		opts.SetTimeout(config.Timeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, core.Persistence(err, "failed to connect to MongoDB")
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, core.Persistence(err, "failed to ping MongoDB")
	}
	return client, nil
}

// MongoCounterSequence выдает int64 идентификаторы из коллекции счетчиков.
// Документ счетчика: {_id: <name>, seq: <последнее значение>}.
type MongoCounterSequence struct {
	counters *mongo.Collection
	name     string
}

// NewMongoCounterSequence создает последовательность с именем name
func NewMongoCounterSequence(counters *mongo.Collection, name string) *MongoCounterSequence {
	return &MongoCounterSequence{counters: counters, name: name}
}

// Next атомарно увеличивает счетчик и возвращает новое значение
func (s *MongoCounterSequence) Next(ctx context.Context) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": s.name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, core.Persistence(err, "failed to advance counter %s", s.name)
	}
	return doc.Seq, nil
}

// Observe поднимает счетчик до id ($max), если он меньше
func (s *MongoCounterSequence) Observe(ctx context.Context, id int64) error {
	_, err := s.counters.UpdateOne(ctx,
		bson.M{"_id": s.name},
		bson.M{"$max": bson.M{"seq": id}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return core.Persistence(err, "failed to advance counter %s", s.name)
	}
	return nil
}

// MongoStore[E, ID] generic MongoDB store.
// Сущность кодируется в BSON целиком, поле идентификатора должно иметь тег bson:"_id".
type MongoStore[E any, ID comparable] struct {
	config     MongoConfig
	client     *mongo.Client
	collection *mongo.Collection
	identity   repository.Identity[E, ID]
	sequence   repository.Sequence[ID]
}

// NewMongoStore создает store поверх подключенного клиента
func NewMongoStore[E any, ID comparable](client *mongo.Client, config MongoConfig, identity repository.Identity[E, ID], sequence repository.Sequence[ID]) *MongoStore[E, ID] {
	return &MongoStore[E, ID]{
		config:     config,
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
		identity:   identity,
		sequence:   sequence,
	}
}

// Start запускает адаптер (реализация core.Lifecycle)
func (m *MongoStore[E, ID]) Start(ctx context.Context) error {
	return nil
}

// Stop отключает клиент (реализация core.Lifecycle)
func (m *MongoStore[E, ID]) Stop(ctx context.Context) error {
	if m.client != nil {
		return m.client.Disconnect(ctx)
	}
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (m *MongoStore[E, ID]) IsRunning() bool {
	return m.client != nil
}

// Name возвращает имя компонента (реализация core.Component)
func (m *MongoStore[E, ID]) Name() string {
	return "mongodb-store"
}

// Type возвращает тип компонента (реализация core.Component)
func (m *MongoStore[E, ID]) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck проверяет соединение
func (m *MongoStore[E, ID]) HealthCheck(ctx context.Context) error {
	if err := m.client.Ping(ctx, nil); err != nil {
		return core.Persistence(err, "mongodb ping failed")
	}
	return nil
}

// Upsert вставляет документ с новым идентификатором (InsertOne) или
// заменяет документ с явным идентификатором (ReplaceOne с upsert)
func (m *MongoStore[E, ID]) Upsert(ctx context.Context, entity E) (E, error) {
	id := m.identity.ID(entity)
	if repository.IsZero(id) {
		if m.sequence == nil {
			return entity, core.InvalidArgument("store %s cannot generate identifiers", m.config.Collection)
		}
		next, err := m.sequence.Next(ctx)
		if err != nil {
			return entity, core.Wrap(err, core.ErrPersistence, "failed to generate identifier")
		}
		entity = m.identity.WithID(entity, next)

		// дубликат _id означает рассинхронизацию счетчика; запись не перезаписывается
		if _, err := m.collection.InsertOne(ctx, entity); err != nil {
			return entity, core.Persistence(err, "failed to insert document %v", next)
		}
		return entity, nil
	}

	if err := repository.ObserveID(ctx, m.sequence, id); err != nil {
		return entity, core.Wrap(err, core.ErrPersistence, "failed to advance identifier sequence")
	}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": id}, entity, options.Replace().SetUpsert(true))
	if err != nil {
		return entity, core.Persistence(err, "failed to save document %v", id)
	}
	return entity, nil
}

// Get находит документ по _id
func (m *MongoStore[E, ID]) Get(ctx context.Context, id ID) (E, bool, error) {
	var entity E
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&entity)
	if err != nil {
		var zero E
		if errors.Is(err, mongo.ErrNoDocuments) {
			return zero, false, nil
		}
		return zero, false, core.Persistence(err, "failed to find document %v", id)
	}
	return entity, true, nil
}

// Scan открывает курсор при начале обхода, документы упорядочены по _id
func (m *MongoStore[E, ID]) Scan(ctx context.Context) iter.Seq2[E, error] {
	return func(yield func(E, error) bool) {
		var zero E

		cursor, err := m.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
		if err != nil {
			yield(zero, core.Persistence(err, "failed to query %s", m.config.Collection))
			return
		}
		defer func() {
			_ = cursor.Close(ctx)
		}()

		for cursor.Next(ctx) {
			var entity E
			if err := cursor.Decode(&entity); err != nil {
				yield(zero, core.Persistence(err, "failed to decode document"))
				return
			}
			if !yield(entity, nil) {
				return
			}
		}

		if err := cursor.Err(); err != nil {
			yield(zero, core.Persistence(err, "cursor failed on %s", m.config.Collection))
		}
	}
}

// ScanPage читает страницу, упорядоченную по _id
func (m *MongoStore[E, ID]) ScanPage(ctx context.Context, page repository.Page) ([]E, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(page.Offset).
		SetLimit(page.Limit)

	cursor, err := m.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, core.Persistence(err, "failed to query %s", m.config.Collection)
	}

	items := make([]E, 0, page.Limit)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, core.Persistence(err, "failed to decode page of %s", m.config.Collection)
	}
	return items, nil
}

// Exists проверяет наличие документа
func (m *MongoStore[E, ID]) Exists(ctx context.Context, id ID) (bool, error) {
	n, err := m.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, core.Persistence(err, "failed to check document %v", id)
	}
	return n > 0, nil
}

// Delete удаляет документ; отсутствие документа не является ошибкой
func (m *MongoStore[E, ID]) Delete(ctx context.Context, id ID) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return core.Persistence(err, "failed to delete document %v", id)
	}
	return nil
}

// Count возвращает количество документов
func (m *MongoStore[E, ID]) Count(ctx context.Context) (int64, error) {
	n, err := m.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, core.Persistence(err, "failed to count %s", m.config.Collection)
	}
	return n, nil
}
