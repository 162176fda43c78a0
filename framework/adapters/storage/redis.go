package storage

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/merliontechs/sales/framework/core"
	"github.com/merliontechs/sales/framework/repository"
)

// RedisConfig конфигурация для Redis store
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	// ScanCount размер пачки HMGET при обходе
	ScanCount int64 `yaml:"scan_count"`
}

// Validate проверяет корректность конфигурации
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if c.Key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	return nil
}

// DefaultRedisConfig возвращает конфигурацию Redis по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		Key:       "sales",
		ScanCount: 100,
	}
}

// ConnectRedis создает клиент и проверяет подключение
func ConnectRedis(ctx context.Context, config RedisConfig) (*redis.Client, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid redis config")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, core.Persistence(err, "failed to connect to Redis")
	}
	return client, nil
}

// RedisSequence выдает int64 идентификаторы через INCR
type RedisSequence struct {
	client redis.Cmdable
	key    string
}

// NewRedisSequence создает последовательность на ключе key
func NewRedisSequence(client redis.Cmdable, key string) *RedisSequence {
	return &RedisSequence{client: client, key: key}
}

// Next возвращает следующее значение счетчика
func (s *RedisSequence) Next(ctx context.Context) (int64, error) {
	n, err := s.client.Incr(ctx, s.key).Result()
	if err != nil {
		return 0, core.Persistence(err, "failed to increment %s", s.key)
	}
	return n, nil
}

// observeScript поднимает счетчик KEYS[1] до ARGV[1], не уменьшая его
const observeScript = `
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) > current then
	redis.call('SET', KEYS[1], ARGV[1])
end
return 0
`

// Observe поднимает счетчик до id, чтобы INCR не выдал уже занятый идентификатор
func (s *RedisSequence) Observe(ctx context.Context, id int64) error {
	if err := s.client.Eval(ctx, observeScript, []string{s.key}, id).Err(); err != nil {
		return core.Persistence(err, "failed to advance %s", s.key)
	}
	return nil
}

// RedisStore[E, ID] хранит сущности в одном hash: поле = идентификатор, значение = JSON.
type RedisStore[E any, ID comparable] struct {
	config   RedisConfig
	client   *redis.Client
	identity repository.Identity[E, ID]
	sequence repository.Sequence[ID]
}

// NewRedisStore создает store поверх клиента
func NewRedisStore[E any, ID comparable](client *redis.Client, config RedisConfig, identity repository.Identity[E, ID], sequence repository.Sequence[ID]) *RedisStore[E, ID] {
	if config.ScanCount <= 0 {
		config.ScanCount = 100
	}
	return &RedisStore[E, ID]{
		config:   config,
		client:   client,
		identity: identity,
		sequence: sequence,
	}
}

// SequenceKey возвращает ключ счетчика идентификаторов для hash key
func SequenceKey(key string) string {
	return key + ":seq"
}

// Start запускает адаптер (реализация core.Lifecycle)
func (r *RedisStore[E, ID]) Start(ctx context.Context) error {
	return r.HealthCheck(ctx)
}

// Stop закрывает клиент (реализация core.Lifecycle)
func (r *RedisStore[E, ID]) Stop(ctx context.Context) error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (r *RedisStore[E, ID]) IsRunning() bool {
	return r.client != nil
}

// Name возвращает имя компонента (реализация core.Component)
func (r *RedisStore[E, ID]) Name() string {
	return "redis-store"
}

// Type возвращает тип компонента (реализация core.Component)
func (r *RedisStore[E, ID]) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck проверяет соединение
func (r *RedisStore[E, ID]) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return core.Persistence(err, "redis ping failed")
	}
	return nil
}

func (r *RedisStore[E, ID]) field(id ID) string {
	return fmt.Sprint(id)
}

// Upsert записывает новую сущность через HSETNX, существующую или явную через HSET
func (r *RedisStore[E, ID]) Upsert(ctx context.Context, entity E) (E, error) {
	id := r.identity.ID(entity)
	generated := repository.IsZero(id)
	if generated {
		if r.sequence == nil {
			return entity, core.InvalidArgument("store %s cannot generate identifiers", r.config.Key)
		}
		next, err := r.sequence.Next(ctx)
		if err != nil {
			return entity, core.Wrap(err, core.ErrPersistence, "failed to generate identifier")
		}
		id = next
		entity = r.identity.WithID(entity, id)
	} else if err := repository.ObserveID(ctx, r.sequence, id); err != nil {
		return entity, core.Wrap(err, core.ErrPersistence, "failed to advance identifier sequence")
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return entity, core.Wrap(err, core.ErrInvalidArgument, "failed to encode entity")
	}

	if !generated {
		if err := r.client.HSet(ctx, r.config.Key, r.field(id), data).Err(); err != nil {
			return entity, core.Persistence(err, "failed to write %s[%v]", r.config.Key, id)
		}
		return entity, nil
	}

	inserted, err := r.client.HSetNX(ctx, r.config.Key, r.field(id), data).Result()
	if err != nil {
		return entity, core.Persistence(err, "failed to write %s[%v]", r.config.Key, id)
	}
	if !inserted {
		return entity, core.Persistence(
			core.NewError(core.ErrAlreadyExists, fmt.Sprintf("field %v already exists", id)),
			"sequence %s is behind %s", SequenceKey(r.config.Key), r.config.Key)
	}
	return entity, nil
}

// Get читает поле hash
func (r *RedisStore[E, ID]) Get(ctx context.Context, id ID) (E, bool, error) {
	var zero E

	data, err := r.client.HGet(ctx, r.config.Key, r.field(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, false, nil
		}
		return zero, false, core.Persistence(err, "failed to read %s[%v]", r.config.Key, id)
	}

	var entity E
	if err := json.Unmarshal(data, &entity); err != nil {
		return zero, false, core.Persistence(err, "failed to decode %s[%v]", r.config.Key, id)
	}
	return entity, true, nil
}

// Scan читает поля в порядке идентификаторов пачками по ScanCount (HKEYS + HMGET).
// Поле, удаленное между чтением ключей и значений, пропускается.
func (r *RedisStore[E, ID]) Scan(ctx context.Context) iter.Seq2[E, error] {
	return func(yield func(E, error) bool) {
		var zero E

		fields, err := r.sortedFields(ctx)
		if err != nil {
			yield(zero, err)
			return
		}

		for start := 0; start < len(fields); start += int(r.config.ScanCount) {
			end := min(start+int(r.config.ScanCount), len(fields))
			batch, err := r.load(ctx, fields[start:end])
			if err != nil {
				yield(zero, err)
				return
			}
			for _, entity := range batch {
				if !yield(entity, nil) {
					return
				}
			}
		}
	}
}

// ScanPage читает страницу в порядке идентификаторов
func (r *RedisStore[E, ID]) ScanPage(ctx context.Context, page repository.Page) ([]E, error) {
	fields, err := r.sortedFields(ctx)
	if err != nil {
		return nil, err
	}
	window := repository.SlicePage(fields, page)
	if len(window) == 0 {
		return []E{}, nil
	}
	return r.load(ctx, window)
}

func (r *RedisStore[E, ID]) sortedFields(ctx context.Context) ([]string, error) {
	fields, err := r.client.HKeys(ctx, r.config.Key).Result()
	if err != nil {
		return nil, core.Persistence(err, "failed to list %s", r.config.Key)
	}
	slices.SortFunc(fields, compareFields)
	return fields, nil
}

func (r *RedisStore[E, ID]) load(ctx context.Context, fields []string) ([]E, error) {
	values, err := r.client.HMGet(ctx, r.config.Key, fields...).Result()
	if err != nil {
		return nil, core.Persistence(err, "failed to read %s", r.config.Key)
	}

	items := make([]E, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var entity E
		if err := json.Unmarshal([]byte(raw), &entity); err != nil {
			return nil, core.Persistence(err, "failed to decode %s[%s]", r.config.Key, fields[i])
		}
		items = append(items, entity)
	}
	return items, nil
}

// compareFields упорядочивает числовые поля по значению, остальные лексикографически
func compareFields(a, b string) int {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return cmp.Compare(x, y)
	}
	return strings.Compare(a, b)
}

// Exists проверяет наличие поля
func (r *RedisStore[E, ID]) Exists(ctx context.Context, id ID) (bool, error) {
	ok, err := r.client.HExists(ctx, r.config.Key, r.field(id)).Result()
	if err != nil {
		return false, core.Persistence(err, "failed to check %s[%v]", r.config.Key, id)
	}
	return ok, nil
}

// Delete удаляет поле; отсутствие поля не является ошибкой
func (r *RedisStore[E, ID]) Delete(ctx context.Context, id ID) error {
	if err := r.client.HDel(ctx, r.config.Key, r.field(id)).Err(); err != nil {
		return core.Persistence(err, "failed to delete %s[%v]", r.config.Key, id)
	}
	return nil
}

// Count возвращает HLEN
func (r *RedisStore[E, ID]) Count(ctx context.Context) (int64, error) {
	n, err := r.client.HLen(ctx, r.config.Key).Result()
	if err != nil {
		return 0, core.Persistence(err, "failed to count %s", r.config.Key)
	}
	return n, nil
}
