// Package runtime wires the inbox together: configuration, the target
// registry, the thread service, the dispatcher, secret storage and the HTTP
// server, and manages their lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	inboxapi "github.com/RunLittleTurtle/agent-inbox-sub001/internal/api/inbox"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/api/langgraph"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/ports"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/dispatch"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/inbox"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/pkg/config"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/server"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/storage/memory"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/storage/sqlite"
)

// App is the main entry point for running the inbox, either as an HTTP
// server or as a library behind the CLI.
type App struct {
	// Dependencies (injected via options)
	config  ports.ConfigProvider
	secrets ports.SecretStore
	factory inbox.ClientFactory
	logger  *slog.Logger

	// Built by Init
	cfg        *config.Config
	registry   *inbox.Registry
	threads    *inbox.Service
	dispatcher *dispatch.Dispatcher
	server     *server.Server

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
}

// New creates a new App with the given options.
func New(opts ...Option) (*App, error) {
	a := &App{
		logger:  slog.Default(),
		factory: langgraph.ForTarget,
	}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if a.config == nil {
		return nil, errors.New("config provider required (use WithFileConfig or WithConfigProvider)")
	}
	return a, nil
}

// Init loads the configuration and builds every component. It does not
// listen or watch; Start does.
func (a *App) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initLocked(ctx)
}

func (a *App) initLocked(ctx context.Context) error {
	if a.registry != nil {
		return nil
	}

	cfg, err := a.config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	if a.secrets == nil {
		store, err := openSecretStore(cfg.Storage)
		if err != nil {
			return fmt.Errorf("open secret store: %w", err)
		}
		a.secrets = store
	}

	registry := inbox.NewRegistry(a.factory)
	if err := registry.LoadConfig(cfg); err != nil {
		return fmt.Errorf("load inboxes: %w", err)
	}

	a.registry = registry
	a.threads = inbox.NewService(registry, a.logger)
	a.dispatcher = dispatch.New(registry,
		dispatch.WithSecretStore(a.secrets),
		dispatch.WithLogger(a.logger),
	)

	api := inboxapi.NewServer(registry, a.threads, a.dispatcher,
		inboxapi.WithSecretStore(a.secrets),
		inboxapi.WithRequestTimeout(cfg.Server.RequestTimeout),
		inboxapi.WithLogger(a.logger),
	)
	a.server = server.New(cfg.Server.Port, a.logger)
	a.server.Router.Mount("/", api)

	a.logger.Info("inbox initialized",
		slog.Int("inboxes", len(cfg.Inboxes)),
		slog.String("storage", cfg.Storage.Type))
	return nil
}

func openSecretStore(cfg config.StorageConfig) (ports.SecretStore, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "sqlite", "":
		return sqlite.New(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// Start initializes the app if needed, starts the HTTP server in the
// background and begins watching the configuration.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.initLocked(a.ctx); err != nil {
		return err
	}

	go func() {
		if err := a.server.Start(); err != nil {
			a.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	if err := a.config.Watch(a.ctx, a.reload); err != nil {
		a.logger.Warn("config watch unavailable", slog.String("error", err.Error()))
	}

	a.logger.Info("inbox started", slog.Int("port", a.cfg.Server.Port))
	return nil
}

// reload swaps the inbox list. Server and storage settings only apply on
// restart.
func (a *App) reload(cfg *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.registry.LoadConfig(cfg); err != nil {
		a.logger.Error("failed to reload inboxes", slog.String("error", err.Error()))
		return
	}
	a.cfg = cfg
	a.logger.Info("reload complete", slog.Int("inboxes", len(cfg.Inboxes)))
}

// Shutdown gracefully stops the app.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logger.Info("shutting down inbox")

	if a.cancel != nil {
		a.cancel()
	}

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			return err
		}
	}

	if a.secrets != nil {
		if err := a.secrets.Close(); err != nil {
			a.logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}

	if err := a.config.Close(); err != nil {
		a.logger.Error("failed to close config", slog.String("error", err.Error()))
	}

	a.logger.Info("inbox shutdown complete")
	return nil
}

// Config returns the current configuration. Nil before Init.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

func (a *App) Registry() *inbox.Registry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.registry
}

func (a *App) Threads() *inbox.Service {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.threads
}

func (a *App) Dispatcher() *dispatch.Dispatcher {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dispatcher
}

func (a *App) Secrets() ports.SecretStore {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.secrets
}

// Handler returns the HTTP handler of the app. Nil before Init.
func (a *App) Handler() http.Handler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.server == nil {
		return nil
	}
	return a.server.Router
}
