package runtime

import (
	"fmt"
	"log/slog"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/adapters/config/file"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/ports"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/inbox"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/storage/memory"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/storage/sqlite"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithFileConfig uses file-based configuration with hot-reload (default).
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(a *App) error {
		provider, err := file.NewProvider(path, a.logger)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		a.config = provider
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(a *App) error {
		a.config = provider
		return nil
	}
}

// WithSQLite stores runtime secrets in a SQLite database at path.
// Without a storage option the storage section of the config decides.
func WithSQLite(path string) Option {
	return func(a *App) error {
		store, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		a.secrets = store
		return nil
	}
}

// WithMemoryStorage keeps runtime secrets in memory.
func WithMemoryStorage() Option {
	return func(a *App) error {
		a.secrets = memory.New()
		return nil
	}
}

// WithSecretStore sets a custom secret store.
func WithSecretStore(store ports.SecretStore) Option {
	return func(a *App) error {
		a.secrets = store
		return nil
	}
}

// WithClientFactory sets how engine clients are built for a target.
// Defaults to the LangGraph REST client.
func WithClientFactory(factory inbox.ClientFactory) Option {
	return func(a *App) error {
		a.factory = factory
		return nil
	}
}

// WithLogger sets a custom logger. Put it first so the other options use it.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}
