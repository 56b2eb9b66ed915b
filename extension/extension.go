// Package extension provides a Forge extension entry point for Custodian.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/custodian"
	"github.com/xraph/custodian/api"
	"github.com/xraph/custodian/cache"
	"github.com/xraph/custodian/plugin"
	"github.com/xraph/custodian/store"
	"github.com/xraph/custodian/store/mongo"
	"github.com/xraph/custodian/store/postgres"
	"github.com/xraph/custodian/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "custodian"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Role-based authorization engine with role hierarchy and ownership rules"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Custodian as a Forge extension.
type Extension struct {
	config     Config
	eng        *custodian.Engine
	apiHandler *api.API
	logger     *slog.Logger
	store      store.Store
	engineOpts []custodian.Option
	plugins    []plugin.Plugin
}

// New creates a Custodian Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{config: DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the extension name.
func (e *Extension) Name() string { return ExtensionName }

// Description returns the extension description.
func (e *Extension) Description() string { return ExtensionDescription }

// Version returns the extension version.
func (e *Extension) Version() string { return ExtensionVersion }

// Dependencies returns the list of extension names this extension depends on.
func (e *Extension) Dependencies() []string { return []string{} }

// Engine returns the underlying Custodian engine.
func (e *Extension) Engine() *custodian.Engine { return e.eng }

// API returns the API handler.
func (e *Extension) API() *api.API { return e.apiHandler }

// Register implements [forge.Extension]. It initializes the engine,
// registers it in the DI container, and optionally registers HTTP routes.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.init(fapp); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*custodian.Engine, error) {
		return e.eng, nil
	}); err != nil {
		return fmt.Errorf("custodian: register engine in container: %w", err)
	}

	return nil
}

func (e *Extension) init(fapp forge.App) error {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	s, err := e.resolveStore(fapp)
	if err != nil {
		return err
	}

	opts := make([]custodian.Option, 0, len(e.engineOpts)+len(e.plugins)+4)
	opts = append(opts,
		custodian.WithLogger(logger),
		custodian.WithConfig(e.config.engineConfig()),
	)
	if s != nil {
		opts = append(opts, custodian.WithStore(s))
	}
	switch {
	case e.config.CacheSize > 0:
		opts = append(opts, custodian.WithCache(cache.NewLRU(e.config.CacheSize, e.config.CacheTTL)))
	case e.config.CacheTTL > 0:
		opts = append(opts, custodian.WithCache(cache.NewMemory(cache.WithTTL(e.config.CacheTTL))))
	}

	// User-provided options may override any of the above.
	opts = append(opts, e.engineOpts...)

	for _, x := range e.plugins {
		opts = append(opts, custodian.WithPlugin(x))
	}

	eng, err := custodian.NewEngine(opts...)
	if err != nil {
		return fmt.Errorf("custodian: create engine: %w", err)
	}
	e.eng = eng

	e.apiHandler = api.New(eng, fapp.Router())

	if !e.config.DisableRoutes {
		if err := e.apiHandler.RegisterRoutes(fapp.Router()); err != nil {
			return fmt.Errorf("custodian: register routes: %w", err)
		}
	}

	return nil
}

// resolveStore picks the store in order: an explicit WithStore, a grove
// database from the container wrapped per GroveDriver, then a store.Store
// from the container. No store leaves the engine purely in memory.
func (e *Extension) resolveStore(fapp forge.App) (store.Store, error) {
	if e.store != nil {
		return e.store, nil
	}

	if e.config.GroveDriver != "" {
		db, err := forge.Inject[*grove.DB](fapp.Container())
		if err != nil {
			return nil, fmt.Errorf("custodian: resolve grove database: %w", err)
		}
		switch e.config.GroveDriver {
		case "postgres", "pg":
			return postgres.New(db), nil
		case "sqlite":
			return sqlite.New(db), nil
		case "mongo", "mongodb":
			return mongo.New(db), nil
		default:
			return nil, fmt.Errorf("custodian: unsupported grove driver %q", e.config.GroveDriver)
		}
	}

	if s, err := forge.Inject[store.Store](fapp.Container()); err == nil {
		return s, nil
	}
	return nil, nil
}

// Start runs migrations if enabled, then loads or seeds the policy.
func (e *Extension) Start(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("custodian: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if s := e.eng.Store(); s != nil {
			if err := s.Migrate(ctx); err != nil {
				return fmt.Errorf("custodian: migration failed: %w", err)
			}
		}
	}

	return e.eng.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (e *Extension) Stop(ctx context.Context) error {
	if e.eng == nil {
		return nil
	}
	if err := e.eng.Stop(ctx); err != nil {
		return err
	}
	if s := e.eng.Store(); s != nil {
		return s.Close()
	}
	return nil
}

// Health implements [forge.Extension]. An engine without a store is
// healthy; otherwise the store must answer a ping.
func (e *Extension) Health(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("custodian: extension not initialized")
	}
	s := e.eng.Store()
	if s == nil {
		return nil
	}
	return s.Ping(ctx)
}

// Handler returns the HTTP handler for all API routes.
func (e *Extension) Handler() http.Handler {
	if e.apiHandler == nil {
		return http.NotFoundHandler()
	}
	return e.apiHandler.Handler()
}

// RegisterRoutes registers all custodian API routes into a Forge router.
func (e *Extension) RegisterRoutes(router forge.Router) error {
	if e.apiHandler != nil {
		return e.apiHandler.RegisterRoutes(router)
	}
	return nil
}
