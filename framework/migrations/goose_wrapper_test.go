package migrations

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiles_EmbedsSalesMigration(t *testing.T) {
	entries, err := fs.ReadDir(Files(), ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "00001_create_sales.sql", entries[0].Name())

	data, err := fs.ReadFile(Files(), "00001_create_sales.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- +goose Up")
	assert.Contains(t, string(data), "-- +goose Down")
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS sales")
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	path, err := CreateMigration(dir, "add_sales_amount", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20240301123000_add_sales_amount.sql"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "-- +goose Up"))

	_, err = CreateMigration(dir, "", now)
	assert.Error(t, err)
}

func TestUpDownStatus_Postgres(t *testing.T) {
	dsn := os.Getenv("SALES_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SALES_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	db, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = Up(ctx, db, nil)
	require.NoError(t, err)

	statuses, err := Status(ctx, db, nil)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "applied", statuses[0].Status)
	assert.NotNil(t, statuses[0].AppliedAt)

	version, err := CurrentVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	rolledBack, err := Down(ctx, db, nil, 1)
	require.NoError(t, err)
	require.Len(t, rolledBack, 1)
	assert.Equal(t, int64(1), rolledBack[0].Version)

	statuses, err = Status(ctx, db, nil)
	require.NoError(t, err)
	assert.Equal(t, "pending", statuses[0].Status)

	// оставляем схему примененной для остальных интеграционных тестов
	applied, err := UpTo(ctx, db, nil, 5)
	require.NoError(t, err)
	assert.Len(t, applied, 1)
}
