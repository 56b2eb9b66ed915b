package custodian

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Invocation is one request-like event a gate decides on.
type Invocation struct {
	// User is the verified principal. Nil means unauthenticated.
	User *User

	// Path identifies the invocation in audit records, e.g. "GET /leaves/:id".
	Path string

	// Params carries request parameters for the resource loader.
	Params map[string]string

	// Metadata carries anything else the loader needs.
	Metadata map[string]any
}

// Param returns a request parameter, or "" when absent.
func (inv *Invocation) Param(name string) string {
	if inv == nil {
		return ""
	}
	return inv.Params[name]
}

// ResourceLoader fetches the resource an invocation targets. It may return
// a nil resource.
type ResourceLoader func(ctx context.Context, inv *Invocation) (*Resource, error)

// GateOptions parameterize a gate.
type GateOptions struct {
	// RequireAll requires every permission instead of any one of them.
	RequireAll bool `json:"require_all,omitempty"`

	// AllowOwnership grants access to the resource's owner when the
	// permission check fails.
	AllowOwnership bool `json:"allow_ownership,omitempty"`

	// ResourceLoader is called once per invocation before evaluation.
	ResourceLoader ResourceLoader `json:"-"`

	// FailClosedOnLoadError denies when ResourceLoader fails. The engine's
	// Config.FailClosedOnLoadError applies when this is false.
	FailClosedOnLoadError bool `json:"fail_closed_on_load_error,omitempty"`
}

// GateDecision is the outcome of one gate invocation.
type GateDecision struct {
	Allowed           bool           `json:"allowed"`
	Decision          Decision       `json:"decision"`
	Reason            string         `json:"reason,omitempty"`
	Path              string         `json:"path,omitempty"`
	Required          []string       `json:"required"`
	RequireAll        bool           `json:"require_all"`
	Results           []*CheckResult `json:"results,omitempty"`
	Resource          *Resource      `json:"resource,omitempty"`
	ResourceLoadError string         `json:"resource_load_error,omitempty"`
	OwnershipOverride bool           `json:"ownership_override,omitempty"`
	Denial            *DenialError   `json:"denial,omitempty"`
	EvalTimeNs        int64          `json:"eval_time_ns"`
}

// Err returns the structured denial, or nil when allowed.
func (d *GateDecision) Err() error {
	if d == nil || d.Allowed || d.Denial == nil {
		return nil
	}
	return d.Denial
}

// Gate is a reusable decision procedure over a fixed set of required
// permissions. It is safe for concurrent use.
type Gate struct {
	engine   *Engine
	required []string
	opts     GateOptions
}

// Authorize returns a gate requiring perms under opts.
func (e *Engine) Authorize(perms []string, opts GateOptions) *Gate {
	return &Gate{engine: e, required: slices.Clone(perms), opts: opts}
}

// Required returns the gate's required permissions.
func (g *Gate) Required() []string { return slices.Clone(g.required) }

// Options returns the gate's options.
func (g *Gate) Options() GateOptions { return g.opts }

func (g *Gate) failClosed() bool {
	return g.opts.FailClosedOnLoadError || g.engine.config.FailClosedOnLoadError
}

// Decide runs the gate for one invocation. Denials are reported through
// the returned decision; an error means evaluation itself failed and
// wraps ErrAuthorizationCheckFailed.
func (g *Gate) Decide(ctx context.Context, inv *Invocation) (d *GateDecision, err error) {
	e := g.engine
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("authorization check failed",
				slog.Any("panic", r),
				slog.Any("required", g.required),
			)
			d, err = nil, fmt.Errorf("%w: %v", ErrAuthorizationCheckFailed, r)
		}
	}()

	if inv == nil {
		inv = &Invocation{}
	}
	d = &GateDecision{
		Path:       inv.Path,
		Required:   slices.Clone(g.required),
		RequireAll: g.opts.RequireAll,
	}

	// 1. Authentication.
	user := inv.User
	if user == nil {
		d.Decision = DecisionDenyUnauthenticated
		d.Reason = "authentication required"
		d.Denial = &DenialError{Kind: DenialAuthenticationRequired, Required: d.Required, Reason: d.Reason}
		return g.finish(ctx, d, start), nil
	}

	// 2. Resource.
	var loadErr error
	if g.opts.ResourceLoader != nil {
		d.Resource, loadErr = g.loadResource(ctx, inv)
		if loadErr != nil {
			d.Resource = nil
			d.ResourceLoadError = loadErr.Error()
			e.logger.Warn("resource loader failed",
				slog.String("path", inv.Path),
				slog.String("user", user.ID),
				slog.String("error", loadErr.Error()),
			)
		}
	}

	if loadErr != nil && g.failClosed() {
		d.Decision = DecisionDenyResourceLoad
		d.Reason = "resource could not be loaded"
	} else {
		// 3-4. Permissions, combined.
		d.Results = e.checkAll(ctx, user, g.required, d.Resource)
		d.Allowed = combine(d.Results, g.opts.RequireAll)

		// 5. Ownership override.
		if !d.Allowed && g.opts.AllowOwnership && d.Resource != nil && e.CheckOwnership(user, d.Resource) {
			d.Allowed = true
			d.OwnershipOverride = true
		}
		d.Decision, d.Reason = summarize(d)
	}

	d.EvalTimeNs = time.Since(start).Nanoseconds()

	// 6. Audit, awaited.
	g.record(ctx, user, d)

	// 7. Structured denial.
	if !d.Allowed {
		d.Denial = &DenialError{
			Kind:     DenialInsufficientPermissions,
			Required: d.Required,
			Role:     user.Role,
			Reason:   d.Reason,
		}
	}
	return g.finish(ctx, d, start), nil
}

// Enforce runs Decide and returns the denial as an error.
func (g *Gate) Enforce(ctx context.Context, inv *Invocation) error {
	d, err := g.Decide(ctx, inv)
	if err != nil {
		return err
	}
	return d.Err()
}

func (g *Gate) finish(ctx context.Context, d *GateDecision, start time.Time) *GateDecision {
	d.EvalTimeNs = time.Since(start).Nanoseconds()
	if g.engine.plugins != nil {
		g.engine.plugins.EmitAccessDecided(ctx, d)
	}
	return d
}

// loadResource calls the loader, turning a panic into an error.
func (g *Gate) loadResource(ctx context.Context, inv *Invocation) (res *Resource, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: panic: %v", ErrResourceLoadFailed, r)
		}
	}()
	res, err = g.opts.ResourceLoader(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResourceLoadFailed, err)
	}
	return res, nil
}

func (g *Gate) record(ctx context.Context, user *User, d *GateDecision) {
	e := g.engine
	if e.audit == nil || !e.config.auditEnabled() {
		return
	}
	err := safeAudit(ctx, e.audit, &AccessAttempt{
		User:        user,
		Permissions: d.Required,
		Path:        d.Path,
		Granted:     d.Allowed,
		Decision:    d.Decision,
		Reason:      d.Reason,
		Resource:    d.Resource,
		EvalTimeNs:  d.EvalTimeNs,
	})
	if err != nil {
		e.logger.Warn("audit sink failed",
			slog.String("path", d.Path),
			slog.String("user", user.ID),
			slog.String("error", err.Error()),
		)
	}
}

func safeAudit(ctx context.Context, sink AuditSink, a *AccessAttempt) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrAuditSinkFailed, r)
		}
	}()
	if err = sink.LogAccessAttempt(ctx, a); err != nil {
		return fmt.Errorf("%w: %w", ErrAuditSinkFailed, err)
	}
	return nil
}

// combine applies ANY or ALL semantics. An empty list fails ANY and
// satisfies ALL.
func combine(results []*CheckResult, requireAll bool) bool {
	if requireAll {
		for _, r := range results {
			if !r.Allowed {
				return false
			}
		}
		return true
	}
	for _, r := range results {
		if r.Allowed {
			return true
		}
	}
	return false
}

func summarize(d *GateDecision) (Decision, string) {
	if d.Allowed {
		if d.OwnershipOverride {
			return DecisionAllow, "resource owner"
		}
		return DecisionAllow, "granted"
	}
	unknown := len(d.Results) > 0
	for _, r := range d.Results {
		if r.Decision != DecisionDenyUnknownPermission {
			unknown = false
			break
		}
	}
	if unknown {
		return DecisionDenyUnknownPermission, "insufficient permissions: unknown permission"
	}
	return DecisionDenyNoPerms, "insufficient permissions"
}
