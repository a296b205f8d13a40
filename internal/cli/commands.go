package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ledgerline/transfer-service/internal/domain"
	"github.com/ledgerline/transfer-service/internal/service"
	"github.com/ledgerline/transfer-service/internal/service/ledger"
)

type accountView struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

type transactionView struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"sender_id"`
	ReceiverID  int64     `json:"receiver_id"`
	Amount      string    `json:"amount"`
	Description *string   `json:"description,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type reversalView struct {
	ID            int64     `json:"id"`
	TransactionID int64     `json:"transaction_id"`
	Reason        string    `json:"reason"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

func toAccountView(a *domain.Account) accountView {
	return accountView{ID: a.ID, Email: a.Email, Balance: a.Balance.StringFixed(domain.AmountScale), CreatedAt: a.CreatedAt}
}

func toTransactionView(t *domain.Transaction) transactionView {
	return transactionView{
		ID:          t.ID,
		SenderID:    t.SenderID,
		ReceiverID:  t.ReceiverID,
		Amount:      t.Amount.StringFixed(domain.AmountScale),
		Description: t.Description,
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt,
	}
}

func (a *app) newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	requireURL := func() error {
		if a.settings.DatabaseURL == "" {
			return fmt.Errorf("database url is required: set DATABASE_URL or --database-url")
		}
		return nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := requireURL(); err != nil {
					return err
				}
				applied, err := a.migrator.Up(a.settings.DatabaseURL)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]bool{"applied": applied})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := requireURL(); err != nil {
					return err
				}
				if err := a.migrator.Down(a.settings.DatabaseURL); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]bool{"rolled_back": true})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := requireURL(); err != nil {
					return err
				}
				version, dirty, err := a.migrator.Version(a.settings.DatabaseURL)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"version": version, "dirty": dirty})
			},
		},
	)

	return cmd
}

func (a *app) newAccountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Create and inspect accounts",
	}

	var email, password, balance string
	create := &cobra.Command{
		Use:   "create",
		Short: "Register an account with an opening balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opening, err := decimal.NewFromString(balance)
			if err != nil {
				return fmt.Errorf("invalid --balance %q: %w", balance, err)
			}
			return a.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				account, err := b.Identity.Register(ctx, service.RegisterRequest{
					Email:          email,
					Password:       password,
					InitialBalance: opening,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), toAccountView(account))
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "account email (required)")
	create.Flags().StringVar(&password, "password", "", "account password (required)")
	create.Flags().StringVar(&balance, "balance", "0", "opening balance")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	show := &cobra.Command{
		Use:   "show <account-id>",
		Short: "Print an account and its balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				account, err := b.Accounts.GetAccount(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), toAccountView(account))
			})
		},
	}

	cmd.AddCommand(create, show)
	return cmd
}

func (a *app) newTransferCommand() *cobra.Command {
	var (
		from, to            int64
		amount, description string
		idempotencyKey      string
	)

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Move funds between two accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount %q: %w", amount, err)
			}
			return a.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				txn, err := b.Engine.Transfer(ctx, ledger.TransferRequest{
					SenderID:       from,
					ReceiverID:     to,
					Amount:         value,
					Description:    description,
					IdempotencyKey: idempotencyKey,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), toTransactionView(txn))
			})
		},
	}

	cmd.Flags().Int64Var(&from, "from", 0, "sender account id (required)")
	cmd.Flags().Int64Var(&to, "to", 0, "receiver account id (required)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount to move (required)")
	cmd.Flags().StringVar(&description, "description", "", "free-text description")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "reject a repeat of this transfer")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func (a *app) newReverseCommand() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reverse <transaction-id>",
		Short: "Reverse a completed transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				rev, err := b.Engine.Reverse(ctx, ledger.ReverseRequest{
					TransactionID: id,
					Reason:        reason,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), reversalView{
					ID:            rev.ID,
					TransactionID: rev.TransactionID,
					Reason:        rev.Reason,
					Status:        string(rev.Status),
					CreatedAt:     rev.CreatedAt,
				})
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "why the transaction is reversed (required)")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func (a *app) newHistoryCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "history <account-id>",
		Short: "List transactions involving an account, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				txns, total, page, err := b.Engine.FindAllForUser(ctx, id, ledger.Page{Limit: limit, Offset: offset})
				if err != nil {
					return err
				}
				items := make([]transactionView, len(txns))
				for i := range txns {
					items[i] = toTransactionView(&txns[i])
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"items":  items,
					"total":  total,
					"limit":  page.Limit,
					"offset": page.Offset,
				})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "page size (default: service default)")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")

	return cmd
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
