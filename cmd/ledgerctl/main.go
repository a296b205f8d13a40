package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ledgerline/transfer-service/internal/cli"
	"github.com/ledgerline/transfer-service/internal/logging"
	"github.com/ledgerline/transfer-service/internal/migrations"
)

func main() {
	slog.SetDefault(logging.New(os.Stderr, "ledgerctl", os.Getenv("LOG_LEVEL"), "development"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCommand(cli.OpenPostgres, cli.Migrator{
		Up:      migrations.Up,
		Down:    migrations.Down,
		Version: migrations.Version,
	})

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
