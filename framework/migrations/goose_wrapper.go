// Package migrations предоставляет обертку над goose для управления схемой PostgreSQL.
// SQL миграции встроены в бинарник.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embedded embed.FS

// MigrationStatus представляет статус миграции
type MigrationStatus struct {
	Version   int64
	Name      string
	AppliedAt *time.Time
	Status    string // "pending", "applied"
}

// Files возвращает встроенные миграции
func Files() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// Open открывает database/sql соединение через pgx stdlib драйвер
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func newProvider(db *sql.DB, fsys fs.FS) (*goose.Provider, error) {
	if fsys == nil {
		fsys = Files()
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return provider, nil
}

// Up применяет все pending миграции. fsys == nil означает встроенные миграции.
func Up(ctx context.Context, db *sql.DB, fsys fs.FS) ([]MigrationStatus, error) {
	provider, err := newProvider(db, fsys)
	if err != nil {
		return nil, err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return fromResults(results), nil
}

// UpTo применяет ограниченное количество pending миграций
func UpTo(ctx context.Context, db *sql.DB, fsys fs.FS, steps int) ([]MigrationStatus, error) {
	if steps <= 0 {
		return Up(ctx, db, fsys)
	}

	provider, err := newProvider(db, fsys)
	if err != nil {
		return nil, err
	}

	var applied []*goose.MigrationResult
	for i := 0; i < steps; i++ {
		result, err := provider.UpByOne(ctx)
		if err != nil {
			if errors.Is(err, goose.ErrNoNextVersion) {
				break
			}
			return fromResults(applied), fmt.Errorf("failed to run migrations: %w", err)
		}
		applied = append(applied, result)
	}
	return fromResults(applied), nil
}

// Down откатывает steps последних миграций
func Down(ctx context.Context, db *sql.DB, fsys fs.FS, steps int) ([]MigrationStatus, error) {
	provider, err := newProvider(db, fsys)
	if err != nil {
		return nil, err
	}
	if steps <= 0 {
		steps = 1
	}

	var rolledBack []*goose.MigrationResult
	for i := 0; i < steps; i++ {
		result, err := provider.Down(ctx)
		if err != nil {
			if errors.Is(err, goose.ErrNoNextVersion) {
				break
			}
			return fromResults(rolledBack), fmt.Errorf("failed to rollback migration: %w", err)
		}
		rolledBack = append(rolledBack, result)
	}
	return fromResults(rolledBack), nil
}

// Status возвращает статус всех миграций
func Status(ctx context.Context, db *sql.DB, fsys fs.FS) ([]MigrationStatus, error) {
	provider, err := newProvider(db, fsys)
	if err != nil {
		return nil, err
	}

	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get migration status: %w", err)
	}

	result := make([]MigrationStatus, 0, len(statuses))
	for _, s := range statuses {
		status := MigrationStatus{
			Version: s.Source.Version,
			Name:    filepath.Base(s.Source.Path),
			Status:  string(s.State),
		}
		if s.State == goose.StateApplied && !s.AppliedAt.IsZero() {
			appliedAt := s.AppliedAt
			status.AppliedAt = &appliedAt
		}
		result = append(result, status)
	}
	return result, nil
}

// CurrentVersion возвращает текущую версию БД
func CurrentVersion(ctx context.Context, db *sql.DB) (int64, error) {
	provider, err := newProvider(db, nil)
	if err != nil {
		return 0, err
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

func fromResults(results []*goose.MigrationResult) []MigrationStatus {
	statuses := make([]MigrationStatus, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		statuses = append(statuses, MigrationStatus{
			Version: r.Source.Version,
			Name:    filepath.Base(r.Source.Path),
			Status:  r.Direction,
		})
	}
	return statuses
}

// CreateMigration создает файл миграции goose в dir и возвращает его путь
func CreateMigration(dir, name string, now time.Time) (string, error) {
	if name == "" {
		return "", fmt.Errorf("migration name cannot be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create migrations directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.sql", now.UTC().Format("20060102150405"), name)
	path := filepath.Join(dir, filename)

	content := fmt.Sprintf(`-- +goose Up
-- Migration: %s
-- Created: %s


-- +goose Down

`, name, now.UTC().Format("2006-01-02 15:04:05"))

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to create migration file: %w", err)
	}
	return path, nil
}
