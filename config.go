package custodian

import "time"

// Config holds configuration for the Custodian engine.
type Config struct {
	// MaxHierarchyDepth bounds how many inheritance levels are followed
	// when resolving a role. Following more than one level is an extension
	// of the single-level lookup: with a -> b -> c, role a also holds the
	// grants of c. 1 restores the single-level lookup. Defaults to 10.
	MaxHierarchyDepth int `json:"max_hierarchy_depth,omitempty"`

	// CacheTTL is the time-to-live for cached role permission sets.
	// Zero means no caching.
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`

	// StrictHierarchy rejects hierarchy updates that introduce a cycle.
	// When false, cycles are accepted and reported as warnings.
	StrictHierarchy bool `json:"strict_hierarchy,omitempty"`

	// EnableAudit records gate decisions to the audit sink.
	// Defaults to true.
	EnableAudit *bool `json:"enable_audit,omitempty"`

	// FailClosedOnLoadError makes gates deny when their resource loader
	// fails instead of evaluating without a resource.
	FailClosedOnLoadError bool `json:"fail_closed_on_load_error,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	t := true
	return Config{
		MaxHierarchyDepth: 10,
		EnableAudit:       &t,
	}
}

func (c Config) auditEnabled() bool { return c.EnableAudit == nil || *c.EnableAudit }

func (c Config) hierarchyDepth() int {
	if c.MaxHierarchyDepth <= 0 {
		return 10
	}
	return c.MaxHierarchyDepth
}
