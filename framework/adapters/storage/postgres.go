package storage

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/merliontechs/sales/framework/core"
	"github.com/merliontechs/sales/framework/repository"
)

// RowMapper преобразует сущность в колонки таблицы и обратно.
// Колонка идентификатора в Columns не входит.
type RowMapper[E any] interface {
	// Columns возвращает имена колонок кроме идентификатора
	Columns() []string
	// Values возвращает значения в порядке Columns
	Values(entity E) ([]any, error)
	// Scan читает строку вида (id, Columns()...)
	Scan(row pgx.Row) (E, error)
}

// PostgresConfig конфигурация для PostgreSQL store
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	SchemaName      string        `yaml:"schema"`
	TableName       string        `yaml:"table"`
	IDColumn        string        `yaml:"id_column"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Validate проверяет корректность конфигурации
func (c PostgresConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("DSN cannot be empty")
	}
	if c.TableName == "" {
		return fmt.Errorf("TableName cannot be empty")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("MaxConns must be greater than 0")
	}
	return nil
}

// DefaultPostgresConfig возвращает конфигурацию PostgreSQL по умолчанию
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		SchemaName:      "public",
		IDColumn:        "id",
		MaxConns:        25,
		MinConns:        5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// PostgresStore[E, ID] generic PostgreSQL store.
// Новые идентификаторы выдает DEFAULT колонки id (BIGSERIAL / IDENTITY).
type PostgresStore[E any, ID comparable] struct {
	config   PostgresConfig
	pool     *pgxpool.Pool
	identity repository.Identity[E, ID]
	mapper   RowMapper[E]
	ownsPool bool

	table     string
	insertSQL string
	upsertSQL string
	selectSQL string
	scanSQL   string
	pageSQL   string
	existsSQL string
	deleteSQL string
	countSQL  string

	// advanceSQL сдвигает serial sequence колонки id за явно записанный идентификатор
	advanceSQL string
}

// NewPostgresStore создает пул соединений и store поверх него
func NewPostgresStore[E any, ID comparable](ctx context.Context, config PostgresConfig, identity repository.Identity[E, ID], mapper RowMapper[E]) (*PostgresStore[E, ID], error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid postgres config")
	}

	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "failed to parse postgres DSN")
	}
	poolConfig.MaxConns = config.MaxConns
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, core.Persistence(err, "failed to connect to PostgreSQL")
	}

	store := NewPostgresStoreWithPool(pool, config, identity, mapper)
	store.ownsPool = true
	return store, nil
}

// NewPostgresStoreWithPool создает store поверх существующего пула; пул не закрывается в Stop
func NewPostgresStoreWithPool[E any, ID comparable](pool *pgxpool.Pool, config PostgresConfig, identity repository.Identity[E, ID], mapper RowMapper[E]) *PostgresStore[E, ID] {
	if config.SchemaName == "" {
		config.SchemaName = "public"
	}
	if config.IDColumn == "" {
		config.IDColumn = "id"
	}

	s := &PostgresStore[E, ID]{
		config:   config,
		pool:     pool,
		identity: identity,
		mapper:   mapper,
	}
	s.buildQueries()
	return s
}

func (s *PostgresStore[E, ID]) buildQueries() {
	s.table = pgx.Identifier{s.config.SchemaName, s.config.TableName}.Sanitize()
	idCol := pgx.Identifier{s.config.IDColumn}.Sanitize()

	cols := make([]string, 0, len(s.mapper.Columns()))
	for _, c := range s.mapper.Columns() {
		cols = append(cols, pgx.Identifier{c}.Sanitize())
	}

	insertPlaceholders := make([]string, len(cols))
	for i := range cols {
		insertPlaceholders[i] = fmt.Sprintf("$%d", i+1)
	}
	s.insertSQL = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		s.table, strings.Join(cols, ", "), strings.Join(insertPlaceholders, ", "), idCol)

	upsertPlaceholders := make([]string, len(cols)+1)
	for i := range upsertPlaceholders {
		upsertPlaceholders[i] = fmt.Sprintf("$%d", i+1)
	}
	updates := make([]string, len(cols))
	for i, c := range cols {
		updates[i] = fmt.Sprintf("%s = EXCLUDED.%s", c, c)
	}
	conflictAction := "DO NOTHING"
	if len(updates) > 0 {
		conflictAction = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	s.upsertSQL = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		s.table, strings.Join(append([]string{idCol}, cols...), ", "), strings.Join(upsertPlaceholders, ", "), idCol, conflictAction)

	selectCols := strings.Join(append([]string{idCol}, cols...), ", ")
	s.selectSQL = fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", selectCols, s.table, idCol)
	s.scanSQL = fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", selectCols, s.table, idCol)
	s.pageSQL = s.scanSQL + " LIMIT $1 OFFSET $2"
	s.existsSQL = fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)", s.table, idCol)
	s.deleteSQL = fmt.Sprintf("DELETE FROM %s WHERE %s = $1", s.table, idCol)
	s.countSQL = fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)
	s.advanceSQL = `SELECT setval(q.seq, GREATEST($1::bigint, COALESCE(pg_sequence_last_value(q.seq), 0)))
FROM (SELECT pg_get_serial_sequence($2, $3)::regclass AS seq) q
WHERE q.seq IS NOT NULL`
}

// Start запускает адаптер (реализация core.Lifecycle)
func (s *PostgresStore[E, ID]) Start(ctx context.Context) error {
	return s.HealthCheck(ctx)
}

// Stop закрывает пул, если store его создал (реализация core.Lifecycle)
func (s *PostgresStore[E, ID]) Stop(ctx context.Context) error {
	if s.ownsPool && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (s *PostgresStore[E, ID]) IsRunning() bool {
	return s.pool != nil
}

// Name возвращает имя компонента (реализация core.Component)
func (s *PostgresStore[E, ID]) Name() string {
	return "postgres-store"
}

// Type возвращает тип компонента (реализация core.Component)
func (s *PostgresStore[E, ID]) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck проверяет соединение
func (s *PostgresStore[E, ID]) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return core.Persistence(err, "postgres ping failed")
	}
	return nil
}

// Upsert выполняет INSERT ... RETURNING для новой записи или INSERT ... ON CONFLICT DO UPDATE
func (s *PostgresStore[E, ID]) Upsert(ctx context.Context, entity E) (E, error) {
	values, err := s.mapper.Values(entity)
	if err != nil {
		return entity, core.Wrap(err, core.ErrInvalidArgument, "failed to convert entity to row")
	}

	id := s.identity.ID(entity)
	if repository.IsZero(id) {
		var newID ID
		if err := s.pool.QueryRow(ctx, s.insertSQL, values...).Scan(&newID); err != nil {
			return entity, core.Persistence(err, "failed to insert into %s", s.table)
		}
		return s.identity.WithID(entity, newID), nil
	}

	args := append([]any{id}, values...)
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, s.upsertSQL, args...); err != nil {
			return err
		}
		if n, ok := serialValue(id); ok && n > 0 {
			if _, err := tx.Exec(ctx, s.advanceSQL, n, s.table, s.config.IDColumn); err != nil {
				return fmt.Errorf("advance id sequence: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return entity, core.Persistence(err, "failed to upsert into %s", s.table)
	}
	return entity, nil
}

// serialValue возвращает целочисленный идентификатор; строковые ключи sequence не используют
func serialValue(id any) (int64, bool) {
	switch v := id.(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// Get находит запись по идентификатору
func (s *PostgresStore[E, ID]) Get(ctx context.Context, id ID) (E, bool, error) {
	entity, err := s.mapper.Scan(s.pool.QueryRow(ctx, s.selectSQL, id))
	if err != nil {
		var zero E
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, false, nil
		}
		return zero, false, core.Persistence(err, "failed to select from %s", s.table)
	}
	return entity, true, nil
}

// Scan выполняет запрос при начале обхода и читает строки по мере продвижения
func (s *PostgresStore[E, ID]) Scan(ctx context.Context) iter.Seq2[E, error] {
	return func(yield func(E, error) bool) {
		var zero E

		rows, err := s.pool.Query(ctx, s.scanSQL)
		if err != nil {
			yield(zero, core.Persistence(err, "failed to query %s", s.table))
			return
		}
		defer rows.Close()

		for rows.Next() {
			entity, err := s.mapper.Scan(rows)
			if err != nil {
				yield(zero, core.Persistence(err, "failed to scan row of %s", s.table))
				return
			}
			if !yield(entity, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(zero, core.Persistence(err, "failed to read rows of %s", s.table))
		}
	}
}

// ScanPage выполняет LIMIT/OFFSET выборку в порядке идентификаторов
func (s *PostgresStore[E, ID]) ScanPage(ctx context.Context, page repository.Page) ([]E, error) {
	rows, err := s.pool.Query(ctx, s.pageSQL, page.Limit, page.Offset)
	if err != nil {
		return nil, core.Persistence(err, "failed to query %s", s.table)
	}
	defer rows.Close()

	items := make([]E, 0, page.Limit)
	for rows.Next() {
		entity, err := s.mapper.Scan(rows)
		if err != nil {
			return nil, core.Persistence(err, "failed to scan row of %s", s.table)
		}
		items = append(items, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence(err, "failed to read rows of %s", s.table)
	}
	return items, nil
}

// Exists проверяет наличие записи
func (s *PostgresStore[E, ID]) Exists(ctx context.Context, id ID) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, s.existsSQL, id).Scan(&exists); err != nil {
		return false, core.Persistence(err, "failed to check existence in %s", s.table)
	}
	return exists, nil
}

// Delete удаляет запись; отсутствие строки не является ошибкой
func (s *PostgresStore[E, ID]) Delete(ctx context.Context, id ID) error {
	if _, err := s.pool.Exec(ctx, s.deleteSQL, id); err != nil {
		return core.Persistence(err, "failed to delete from %s", s.table)
	}
	return nil
}

// Count возвращает количество строк
func (s *PostgresStore[E, ID]) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, s.countSQL).Scan(&count); err != nil {
		return 0, core.Persistence(err, "failed to count %s", s.table)
	}
	return count, nil
}
