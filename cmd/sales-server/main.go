// Command sales-server обслуживает REST API продаж и управляет миграциями схемы.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/merliontechs/sales/internal/config"
)

// version задается при сборке: -ldflags "-X main.version=..."
var version = "dev"

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:          "sales-server",
	Short:        "Sales CRUD service",
	Version:      version,
	SilenceUsage: true,
	Long: `sales-server хранит продажи в выбранном backend'е (inmemory, postgres, mongodb, redis)
и публикует изменения в NATS или Kafka.

Примеры:
  # запустить HTTP сервер
  sales-server serve --config sales.yaml

  # применить миграции PostgreSQL
  sales-server migrate up --database-url postgres://localhost:5432/sales`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadDotEnv(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to .env file (ignored if missing)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
