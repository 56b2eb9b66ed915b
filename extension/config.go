package extension

import (
	"time"

	"github.com/xraph/custodian"
)

// Config holds the Custodian extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.custodian" or "custodian" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableAudit stops gate decisions from being written to the check log.
	DisableAudit bool `json:"disable_audit" mapstructure:"disable_audit" yaml:"disable_audit"`

	// MaxHierarchyDepth bounds role inheritance resolution.
	MaxHierarchyDepth int `json:"max_hierarchy_depth" mapstructure:"max_hierarchy_depth" yaml:"max_hierarchy_depth"`

	// CacheTTL enables the in-memory role resolution cache when positive.
	CacheTTL time.Duration `json:"cache_ttl" mapstructure:"cache_ttl" yaml:"cache_ttl"`

	// CacheSize switches the role resolution cache to a bounded LRU of
	// this many entries.
	CacheSize int `json:"cache_size" mapstructure:"cache_size" yaml:"cache_size"`

	// StrictHierarchy rejects hierarchy updates that introduce a cycle.
	StrictHierarchy bool `json:"strict_hierarchy" mapstructure:"strict_hierarchy" yaml:"strict_hierarchy"`

	// FailClosedOnLoadError makes every gate deny when its resource
	// loader fails.
	FailClosedOnLoadError bool `json:"fail_closed_on_load_error" mapstructure:"fail_closed_on_load_error" yaml:"fail_closed_on_load_error"`

	// GroveDriver selects the store built around the *grove.DB registered
	// in the DI container: "postgres", "sqlite" or "mongo". When empty, a
	// store.Store from the container or WithStore is used instead.
	GroveDriver string `json:"grove_driver" mapstructure:"grove_driver" yaml:"grove_driver"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxHierarchyDepth: 10,
	}
}

// engineConfig converts the extension configuration to engine configuration.
func (c Config) engineConfig() custodian.Config {
	ec := custodian.DefaultConfig()
	if c.MaxHierarchyDepth > 0 {
		ec.MaxHierarchyDepth = c.MaxHierarchyDepth
	}
	ec.CacheTTL = c.CacheTTL
	ec.StrictHierarchy = c.StrictHierarchy
	ec.FailClosedOnLoadError = c.FailClosedOnLoadError
	if c.DisableAudit {
		off := false
		ec.EnableAudit = &off
	}
	return ec
}
