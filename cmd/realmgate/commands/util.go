package commands

import (
	"context"
	"fmt"

	"github.com/fzdarsky/realmgate/internal/account"
	"github.com/fzdarsky/realmgate/internal/config"
	"github.com/fzdarsky/realmgate/internal/logging"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.ParseLevel(cfg.Logging.Level), logging.LogFormat(cfg.Logging.Format))
}

// withStore opens the account database from the configuration, runs fn and
// closes the database.
func withStore(ctx context.Context, fn func(context.Context, account.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := account.NewGORMStore(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open account database: %w", err)
	}
	defer store.Close()

	return fn(ctx, store)
}

// opError converts a non-OK manager result into an error.
func opError(op string, result account.AccountOpResult, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, result, err)
	}
	if result != account.OpOK {
		return fmt.Errorf("%s: %s", op, result)
	}
	return nil
}
