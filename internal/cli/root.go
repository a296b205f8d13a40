// Package cli implements ledgerctl, the operator tool for schema migrations,
// account seeding and manual transfers and reversals.
package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/ledgerline/transfer-service/internal/domain"
	"github.com/ledgerline/transfer-service/internal/repository"
	"github.com/ledgerline/transfer-service/internal/service"
	"github.com/ledgerline/transfer-service/internal/service/ledger"
)

// Settings are read from the environment; flags override them.
type Settings struct {
	DatabaseURL string `env:"DATABASE_URL"`
	BcryptCost  int    `env:"BCRYPT_COST" envDefault:"10"`
}

type ledgerEngine interface {
	Transfer(ctx context.Context, req ledger.TransferRequest) (*domain.Transaction, error)
	Reverse(ctx context.Context, req ledger.ReverseRequest) (*domain.Reversal, error)
	FindAllForUser(ctx context.Context, userID int64, page ledger.Page) ([]domain.Transaction, int, ledger.Page, error)
}

type identityService interface {
	Register(ctx context.Context, req service.RegisterRequest) (*domain.Account, error)
}

type accountService interface {
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
}

// Backend is what the data commands operate on.
type Backend struct {
	Engine   ledgerEngine
	Identity identityService
	Accounts accountService
	Close    func() error
}

// Opener connects a Backend for the given settings.
type Opener func(ctx context.Context, s Settings) (*Backend, error)

// Migrator applies schema changes against a database URL.
type Migrator struct {
	Up      func(databaseURL string) (bool, error)
	Down    func(databaseURL string) error
	Version func(databaseURL string) (uint, bool, error)
}

type app struct {
	settings Settings
	open     Opener
	migrator Migrator
}

// NewRootCommand builds the ledgerctl command tree.
func NewRootCommand(open Opener, migrator Migrator) *cobra.Command {
	a := &app{open: open, migrator: migrator}

	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the transfer service ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			fromEnv, err := env.ParseAs[Settings]()
			if err != nil {
				return fmt.Errorf("reading environment: %w", err)
			}
			if !cmd.Flags().Changed("database-url") {
				a.settings.DatabaseURL = fromEnv.DatabaseURL
			}
			a.settings.BcryptCost = fromEnv.BcryptCost
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.settings.DatabaseURL, "database-url", "", "postgres connection string (default $DATABASE_URL)")

	rootCmd.AddCommand(
		a.newMigrateCommand(),
		a.newAccountCommand(),
		a.newTransferCommand(),
		a.newReverseCommand(),
		a.newHistoryCommand(),
	)

	return rootCmd
}

// withBackend opens the backend for one command and closes it afterwards.
func (a *app) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b *Backend) error) error {
	if a.settings.DatabaseURL == "" {
		return fmt.Errorf("database url is required: set DATABASE_URL or --database-url")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	b, err := a.open(ctx, a.settings)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer func() {
		if b.Close != nil {
			_ = b.Close()
		}
	}()

	return fn(ctx, b)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// OpenPostgres wires a Backend over a Postgres pool.
func OpenPostgres(ctx context.Context, s Settings) (*Backend, error) {
	db, err := repository.NewPostgresDB(ctx, s.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     4,
		MaxIdleConns:     2,
		ConnMaxLifetimeS: 60,
		ConnMaxIdleTimeS: 30,
	}, 0)
	if err != nil {
		return nil, err
	}
	return postgresBackend(db, s), nil
}

func postgresBackend(db *sql.DB, s Settings) *Backend {
	accounts := repository.NewAccountRepository(db)
	return &Backend{
		Engine:   ledger.NewEngine(repository.NewUnitOfWork(db), repository.NewTransactionRepository(db)),
		Identity: service.NewIdentityService(accounts, s.BcryptCost),
		Accounts: service.NewAccountService(accounts, repository.NewLedgerRepository(db), ledger.DefaultListLimit, ledger.MaxListLimit),
		Close:    db.Close,
	}
}
