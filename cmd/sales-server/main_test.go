package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSteps(t *testing.T) {
	n, err := parseSteps("3")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, s := range []string{"0", "-1", "x"} {
		_, err := parseSteps(s)
		assert.Error(t, err, s)
	}
}

func TestMigrateCreate(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"migrate", "create", "add_sales_amount", "--migrations-dir", dir, "--env-file", ""})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		migrationsDir = ""
	})
	require.NoError(t, rootCmd.Execute())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), "_add_sales_amount.sql"))
	assert.Contains(t, out.String(), filepath.Join(dir, entries[0].Name()))
}

func TestMigrationSource(t *testing.T) {
	migrationsDir = ""
	assert.Nil(t, migrationSource())

	migrationsDir = t.TempDir()
	t.Cleanup(func() { migrationsDir = "" })
	assert.NotNil(t, migrationSource())
}

func TestOpenDatabase_RequiresDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	databaseURL = ""
	configPath = ""

	_, err := openDatabase()
	assert.Error(t, err)
}
