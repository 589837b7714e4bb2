package main

import (
	"context"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	if err := fang.Execute(context.Background(), rootCmd(), fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM)); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var t target

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Inspect and maintain the durable idempotency store",
	}
	cmd.PersistentFlags().StringVar(&t.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	cmd.PersistentFlags().StringVar(&t.sqlitePath, "sqlite", os.Getenv("SQLITE_PATH"), "SQLite database path")

	cmd.AddCommand(migrateCmd(&t))
	cmd.AddCommand(newMigrationCmd())
	cmd.AddCommand(failedCmd(&t))
	cmd.AddCommand(sweepCmd(&t))
	return cmd
}
