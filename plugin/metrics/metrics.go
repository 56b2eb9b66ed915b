// Package metrics exports Prometheus metrics for authorization decisions
// through the plugin hooks.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/custodian"
	"github.com/xraph/custodian/permission"
	"github.com/xraph/custodian/plugin"
)

var (
	_ plugin.Plugin            = (*Plugin)(nil)
	_ plugin.AccessDecided     = (*Plugin)(nil)
	_ plugin.UnknownPermission = (*Plugin)(nil)
	_ plugin.HierarchyCycle    = (*Plugin)(nil)
	_ plugin.PermissionAdded   = (*Plugin)(nil)
	_ plugin.PermissionRemoved = (*Plugin)(nil)
)

// Plugin records gate decisions, unknown permission lookups, hierarchy
// cycles and catalog changes.
type Plugin struct {
	Decisions          *prometheus.CounterVec
	DecisionDuration   *prometheus.HistogramVec
	OwnershipOverrides prometheus.Counter
	UnknownPermissions *prometheus.CounterVec
	HierarchyCycles    *prometheus.CounterVec
	CatalogChanges     *prometheus.CounterVec
}

// New creates the metrics plugin and registers its collectors with reg.
// A nil reg leaves the collectors unregistered.
func New(reg prometheus.Registerer) *Plugin {
	p := &Plugin{
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "custodian_decisions_total",
				Help: "Total number of gate decisions",
			},
			[]string{"decision", "path"},
		),
		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "custodian_decision_duration_seconds",
				Help:    "Gate decision duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
			},
			[]string{"decision"},
		),
		OwnershipOverrides: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "custodian_ownership_overrides_total",
				Help: "Total number of denials overridden by resource ownership",
			},
		),
		UnknownPermissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "custodian_unknown_permissions_total",
				Help: "Total number of checks against permissions missing from the catalog",
			},
			[]string{"permission"},
		),
		HierarchyCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "custodian_hierarchy_cycles_total",
				Help: "Total number of role hierarchy cycles detected",
			},
			[]string{"role"},
		),
		CatalogChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "custodian_catalog_changes_total",
				Help: "Total number of permission catalog changes",
			},
			[]string{"op"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			p.Decisions,
			p.DecisionDuration,
			p.OwnershipOverrides,
			p.UnknownPermissions,
			p.HierarchyCycles,
			p.CatalogChanges,
		)
	}
	return p
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return "metrics" }

// OnAccessDecided implements plugin.AccessDecided.
func (p *Plugin) OnAccessDecided(_ context.Context, decision any) error {
	d, ok := decision.(*custodian.GateDecision)
	if !ok || d == nil {
		return nil
	}
	p.Decisions.WithLabelValues(string(d.Decision), d.Path).Inc()
	p.DecisionDuration.WithLabelValues(string(d.Decision)).
		Observe(time.Duration(d.EvalTimeNs).Seconds())
	if d.OwnershipOverride {
		p.OwnershipOverrides.Inc()
	}
	return nil
}

// OnUnknownPermission implements plugin.UnknownPermission.
func (p *Plugin) OnUnknownPermission(_ context.Context, name string) error {
	p.UnknownPermissions.WithLabelValues(name).Inc()
	return nil
}

// OnHierarchyCycle implements plugin.HierarchyCycle.
func (p *Plugin) OnHierarchyCycle(_ context.Context, role string, _ []string) error {
	p.HierarchyCycles.WithLabelValues(role).Inc()
	return nil
}

// OnPermissionAdded implements plugin.PermissionAdded.
func (p *Plugin) OnPermissionAdded(context.Context, *permission.Permission) error {
	p.CatalogChanges.WithLabelValues("put").Inc()
	return nil
}

// OnPermissionRemoved implements plugin.PermissionRemoved.
func (p *Plugin) OnPermissionRemoved(context.Context, string) error {
	p.CatalogChanges.WithLabelValues("remove").Inc()
	return nil
}
