package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xraph/subledger"
	audithook "github.com/xraph/subledger/audit_hook"
	"github.com/xraph/subledger/config"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/store"
	"github.com/xraph/subledger/store/memory"
	"github.com/xraph/subledger/store/postgres"
	"github.com/xraph/subledger/store/sqlite"
	"github.com/xraph/subledger/transfer"
	"github.com/xraph/subledger/types"
)

type app struct {
	configPath string
}

// session is one opened ledger plus the settings it was built from.
type session struct {
	cfg    config.Config
	logger *slog.Logger
	ledger *subledger.Ledger
}

func (a *app) loadConfig() (config.Config, error) {
	return config.Load(viper.New(), a.configPath)
}

// run opens the configured store, starts a ledger on it, calls fn and stops
// the ledger again. Extra options are applied after the configured ones.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, s *session) error, extra ...subledger.Option) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	st, err := openStore(cfg.Store)
	if err != nil {
		return err
	}

	opts := []subledger.Option{
		subledger.WithLogger(logger),
		subledger.WithTransferer(transfer.NewLogTransferer(logger)),
	}
	if cfg.Audit {
		opts = append(opts, subledger.WithPlugin(
			audithook.New(audithook.SlogRecorder{Logger: logger}, audithook.WithLogger(logger)),
		))
	}
	opts = append(opts, cfg.LedgerOptions()...)
	opts = append(opts, extra...)

	l := subledger.New(st, opts...)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := l.Start(ctx); err != nil {
		_ = st.Close()
		return err
	}
	defer func() {
		if stopErr := l.Stop(); stopErr != nil {
			logger.Warn("failed to stop ledger", "error", stopErr)
		}
	}()

	return fn(ctx, &session{cfg: cfg, logger: logger, ledger: l})
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "postgres":
		return postgres.Open(cfg.DSN, postgres.PoolConfig{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
	case "sqlite":
		return sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// ──────────────────────────────────────────────────
// Flag and output helpers
// ──────────────────────────────────────────────────

func parseAccountID(s string) (id.AccountID, error) {
	accountID, err := id.ParseAccountID(s)
	if err != nil {
		return id.Nil, fmt.Errorf("invalid account id %q: %w", s, err)
	}
	return accountID, nil
}

func parseAmount(s string) (types.Amount, error) {
	amount, err := types.ParseAmount(s)
	if err != nil {
		return types.Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return amount, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
