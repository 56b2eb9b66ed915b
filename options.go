package custodian

import (
	"log/slog"

	"github.com/xraph/custodian/plugin"
	"github.com/xraph/custodian/store"
)

// Option is a functional option for the Engine.
type Option func(*Engine)

// WithStore sets the composite store backing the registries and check logs.
func WithStore(s store.Store) Option { return func(e *Engine) { e.store = s } }

// WithCache sets the role permission set cache.
func WithCache(c Cache) Option { return func(e *Engine) { e.cache = c } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithConfig sets the engine configuration.
func WithConfig(c Config) Option { return func(e *Engine) { e.config = c } }

// WithPolicy replaces the built-in permission catalog, hierarchy and
// ownership rules used to seed the engine.
func WithPolicy(p PolicySet) Option { return func(e *Engine) { e.policy = p } }

// WithAuditSink sets where gate decisions are recorded. It takes precedence
// over the check log sink derived from the store.
func WithAuditSink(s AuditSink) Option { return func(e *Engine) { e.audit = s } }

// WithOwnership registers additional ownership rules after the policy's.
func WithOwnership(rules ...OwnershipRule) Option {
	return func(e *Engine) { e.extraRules = append(e.extraRules, rules...) }
}

// WithPlugin registers a plugin with the engine.
func WithPlugin(x plugin.Plugin) Option {
	return func(e *Engine) {
		if e.plugins == nil {
			e.plugins = plugin.NewRegistry(e.logger)
		}
		e.plugins.Register(x)
	}
}
