package main

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/merliontechs/sales/framework/migrations"
	"github.com/merliontechs/sales/internal/config"
)

var (
	databaseURL   string
	migrationsDir string
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage PostgreSQL schema migrations",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL DSN (defaults to storage.postgres.dsn)")
	cmd.PersistentFlags().StringVar(&migrationsDir, "migrations-dir", "", "directory with migrations (defaults to embedded)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up [N]",
		Short: "Apply all pending migrations or the next N",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			var applied []migrations.MigrationStatus
			if len(args) == 1 {
				steps, err := parseSteps(args[0])
				if err != nil {
					return err
				}
				applied, err = migrations.UpTo(cmd.Context(), db, migrationSource(), steps)
				if err != nil {
					return err
				}
			} else if applied, err = migrations.Up(cmd.Context(), db, migrationSource()); err != nil {
				return err
			}
			printResults(cmd, "applied", applied)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [N]",
		Short: "Roll back N migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := parseSteps(args[0])
				if err != nil {
					return err
				}
				steps = n
			}

			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			rolledBack, err := migrations.Down(cmd.Context(), db, migrationSource(), steps)
			if err != nil {
				return err
			}
			printResults(cmd, "rolled back", rolledBack)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			statuses, err := migrations.Status(cmd.Context(), db, migrationSource())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
			for _, s := range statuses {
				appliedAt := "-"
				if s.AppliedAt != nil {
					appliedAt = s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Version, s.Name, s.Status, appliedAt)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := migrations.CurrentVersion(cmd.Context(), db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "current version: %d\n", version)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create NAME",
		Short: "Create a new SQL migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := migrationsDir
			if dir == "" {
				dir = "framework/migrations/sql"
			}
			path, err := migrations.CreateMigration(dir, args[0], time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", path)
			return nil
		},
	})

	return cmd
}

func openDatabase() (*sql.DB, error) {
	dsn := databaseURL
	if dsn == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		dsn = cfg.Storage.Postgres.DSN
	}
	if dsn == "" {
		return nil, fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	return migrations.Open(dsn)
}

// nil означает встроенные миграции
func migrationSource() fs.FS {
	if migrationsDir == "" {
		return nil
	}
	return os.DirFS(migrationsDir)
}

func parseSteps(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid number of steps %q", s)
	}
	return n, nil
}

func printResults(cmd *cobra.Command, action string, results []migrations.MigrationStatus) {
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no migrations to apply")
		return
	}
	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d %s\n", action, r.Version, r.Name)
	}
}
