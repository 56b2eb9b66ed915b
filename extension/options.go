package extension

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/xraph/grove"

	"github.com/xraph/custodian"
	"github.com/xraph/custodian/cache"
	"github.com/xraph/custodian/plugin"
	"github.com/xraph/custodian/plugin/metrics"
	"github.com/xraph/custodian/store"
	"github.com/xraph/custodian/store/mongo"
	"github.com/xraph/custodian/store/postgres"
	"github.com/xraph/custodian/store/sqlite"
)

// ExtOption configures the Custodian Forge extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend.
func WithStore(s store.Store) ExtOption {
	return func(e *Extension) {
		e.store = s
	}
}

// WithPostgres persists the policy and check logs in Postgres.
func WithPostgres(db *grove.DB) ExtOption { return WithStore(postgres.New(db)) }

// WithSQLite persists the policy and check logs in SQLite.
func WithSQLite(db *grove.DB) ExtOption { return WithStore(sqlite.New(db)) }

// WithMongo persists the policy and check logs in MongoDB.
func WithMongo(db *grove.DB) ExtOption { return WithStore(mongo.New(db)) }

// WithConfig sets the extension configuration.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithPolicy replaces the built-in policy used to seed an empty store.
func WithPolicy(p custodian.PolicySet) ExtOption {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, custodian.WithPolicy(p))
	}
}

// WithEngineOptions adds engine-level options.
func WithEngineOptions(opts ...custodian.Option) ExtOption {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opts...)
	}
}

// WithPlugin registers a lifecycle hook plugin.
func WithPlugin(x plugin.Plugin) ExtOption {
	return func(e *Extension) {
		e.plugins = append(e.plugins, x)
	}
}

// WithMetrics exports decision metrics to reg.
func WithMetrics(reg prometheus.Registerer) ExtOption {
	return WithPlugin(metrics.New(reg))
}

// WithRedisCache shares the role resolution cache across instances
// through Redis. It takes precedence over CacheTTL and CacheSize.
func WithRedisCache(client *redis.Client, opts ...cache.RedisOption) ExtOption {
	return WithEngineOptions(custodian.WithCache(cache.NewRedis(client, opts...)))
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ExtOption {
	return func(e *Extension) {
		e.logger = l
	}
}

// WithDisableRoutes disables the registration of HTTP routes.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}

// WithDisableMigrate disables auto-migration on start.
func WithDisableMigrate() ExtOption {
	return func(e *Extension) {
		e.config.DisableMigrate = true
	}
}
