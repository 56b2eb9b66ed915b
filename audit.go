package custodian

import (
	"context"
	"slices"
	"time"

	"github.com/xraph/custodian/checklog"
	"github.com/xraph/custodian/id"
)

// AccessAttempt is what a gate records for each decided invocation.
type AccessAttempt struct {
	User        *User     `json:"user"`
	Permissions []string  `json:"permissions"`
	Path        string    `json:"path"`
	Granted     bool      `json:"granted"`
	Decision    Decision  `json:"decision"`
	Reason      string    `json:"reason,omitempty"`
	Resource    *Resource `json:"resource,omitempty"`
	EvalTimeNs  int64     `json:"eval_time_ns"`
}

// AuditSink records access attempts. The gate waits for it to return;
// an error is logged and never changes the decision.
type AuditSink interface {
	LogAccessAttempt(ctx context.Context, attempt *AccessAttempt) error
}

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc func(ctx context.Context, attempt *AccessAttempt) error

// LogAccessAttempt implements AuditSink.
func (f AuditSinkFunc) LogAccessAttempt(ctx context.Context, attempt *AccessAttempt) error {
	return f(ctx, attempt)
}

// CheckLogSink writes access attempts to a check log store, stamped with
// the tenant scope of the request context.
type CheckLogSink struct {
	store checklog.Store
}

// NewCheckLogSink creates a sink over s.
func NewCheckLogSink(s checklog.Store) *CheckLogSink {
	return &CheckLogSink{store: s}
}

// LogAccessAttempt implements AuditSink.
func (s *CheckLogSink) LogAccessAttempt(ctx context.Context, a *AccessAttempt) error {
	scope := scopeFromContext(ctx)
	entry := &checklog.Entry{
		ID:          id.NewCheckLogID(),
		TenantID:    scope.tenantID,
		AppID:       scope.appID,
		Permissions: slices.Clone(a.Permissions),
		Path:        a.Path,
		Granted:     a.Granted,
		Decision:    string(a.Decision),
		Reason:      a.Reason,
		EvalTimeNs:  a.EvalTimeNs,
		CreatedAt:   time.Now().UTC(),
	}
	if entry.Permissions == nil {
		entry.Permissions = []string{}
	}
	if a.User != nil {
		entry.SubjectID = a.User.ID
		entry.SubjectRole = a.User.Role
		if len(a.User.Roles) > 0 {
			entry.Metadata = map[string]any{"roles": a.User.EffectiveRoles()}
		}
	}
	if a.Resource != nil {
		entry.ResourceType = a.Resource.Type
		entry.ResourceID = a.Resource.ID
	}
	return s.store.CreateCheckLog(ctx, entry)
}
