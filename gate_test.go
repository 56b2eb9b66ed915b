package custodian

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/xraph/custodian/checklog"
	"github.com/xraph/custodian/store/memory"
)

// recordingSink captures audit attempts and optionally fails.
type recordingSink struct {
	mu       sync.Mutex
	attempts []*AccessAttempt
	err      error
}

func (s *recordingSink) LogAccessAttempt(_ context.Context, a *AccessAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, a)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

func newGateEngine(t *testing.T, sink AuditSink, opts ...Option) *Engine {
	t.Helper()
	eng, err := NewEngine(append([]Option{WithAuditSink(sink)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return eng
}

func TestGateUnauthenticated(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	eng := newGateEngine(t, sink)

	loaderCalled := false
	gate := eng.Authorize([]string{"leaves.view"}, GateOptions{
		ResourceLoader: func(context.Context, *Invocation) (*Resource, error) {
			loaderCalled = true
			return nil, nil
		},
	})

	for _, inv := range []*Invocation{nil, {Path: "/leaves"}} {
		d, err := gate.Decide(ctx, inv)
		if err != nil {
			t.Fatal(err)
		}
		if d.Allowed || d.Decision != DecisionDenyUnauthenticated {
			t.Fatalf("expected unauthenticated deny, got %+v", d)
		}
		if d.Reason != "authentication required" {
			t.Fatalf("unexpected reason %q", d.Reason)
		}
		if !errors.Is(d.Err(), ErrAuthenticationRequired) || !errors.Is(d.Err(), ErrAccessDenied) {
			t.Fatalf("expected authentication denial, got %v", d.Err())
		}
	}
	if loaderCalled {
		t.Fatal("resource loader must not run without a principal")
	}
	if sink.count() != 0 {
		t.Fatal("unauthenticated requests are not audited")
	}
}

func TestGateAnyAll(t *testing.T) {
	ctx := context.Background()
	eng := newGateEngine(t, &recordingSink{})
	employee := &User{ID: "u1", Role: RoleEmployee}

	tests := []struct {
		name       string
		perms      []string
		requireAll bool
		want       bool
	}{
		{"any one held", []string{"users.delete", "leaves.create"}, false, true},
		{"any none held", []string{"users.delete", "leaves.approve"}, false, false},
		{"all with one missing", []string{"leaves.create", "users.delete"}, true, false},
		{"all held", []string{"leaves.create", "uploads.create"}, true, true},
		{"any with unknown", []string{"nope.view", "leaves.create"}, false, true},
		{"empty any", nil, false, false},
		{"empty all", nil, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := eng.Authorize(tt.perms, GateOptions{RequireAll: tt.requireAll})
			d, err := gate.Decide(ctx, &Invocation{User: employee, Path: "/x"})
			if err != nil {
				t.Fatal(err)
			}
			if d.Allowed != tt.want {
				t.Fatalf("expected allowed=%v, got %+v", tt.want, d)
			}
			if len(d.Results) != len(tt.perms) {
				t.Fatalf("expected a result per permission, got %d", len(d.Results))
			}
			err = gate.Enforce(ctx, &Invocation{User: employee, Path: "/x"})
			if tt.want && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !tt.want {
				var denial *DenialError
				if !errors.As(err, &denial) {
					t.Fatalf("expected *DenialError, got %v", err)
				}
				if denial.Kind != DenialInsufficientPermissions || denial.Role != RoleEmployee {
					t.Fatalf("unexpected denial %+v", denial)
				}
				if len(denial.Required) != len(tt.perms) {
					t.Fatalf("denial should carry the required list, got %v", denial.Required)
				}
				if !errors.Is(err, ErrInsufficientPermissions) {
					t.Fatal("denial should match ErrInsufficientPermissions")
				}
			}
		})
	}
}

func TestGateOwnershipOverride(t *testing.T) {
	ctx := context.Background()
	eng := newGateEngine(t, &recordingSink{})
	employee := &User{ID: "u1", Role: RoleEmployee}

	loader := func(_ context.Context, inv *Invocation) (*Resource, error) {
		return &Resource{Type: "users", ID: inv.Param("id")}, nil
	}

	withOwnership := eng.Authorize([]string{"users.update"}, GateOptions{AllowOwnership: true, ResourceLoader: loader})
	without := eng.Authorize([]string{"users.update"}, GateOptions{ResourceLoader: loader})

	d, err := withOwnership.Decide(ctx, &Invocation{User: employee, Params: map[string]string{"id": "u1"}})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || !d.OwnershipOverride {
		t.Fatalf("owner should be allowed through the override, got %+v", d)
	}

	d, _ = withOwnership.Decide(ctx, &Invocation{User: employee, Params: map[string]string{"id": "u2"}})
	if d.Allowed {
		t.Fatal("non owner must be denied")
	}

	d, _ = without.Decide(ctx, &Invocation{User: employee, Params: map[string]string{"id": "u1"}})
	if d.Allowed {
		t.Fatal("override applies only with AllowOwnership")
	}

	noLoader := eng.Authorize([]string{"users.update"}, GateOptions{AllowOwnership: true})
	d, _ = noLoader.Decide(ctx, &Invocation{User: employee})
	if d.Allowed {
		t.Fatal("override needs a resource")
	}
}

func TestGateOwnPermissionWithLoader(t *testing.T) {
	ctx := context.Background()
	eng := newGateEngine(t, &recordingSink{}, WithPolicy(PolicySet{
		Permissions: map[string][]string{
			"leaves.view":     {RoleEmployee},
			"leaves.view_own": {},
		},
		Ownership: []OwnershipRule{FieldOwnership{ResourceType: "leaves", ResourceField: "employeeId"}},
	}))
	gate := eng.Authorize([]string{"leaves.view_own"}, GateOptions{
		ResourceLoader: func(_ context.Context, inv *Invocation) (*Resource, error) {
			return &Resource{Type: "leaves", ID: inv.Param("id"), Attributes: map[string]any{"employeeId": "u1"}}, nil
		},
	})

	d, err := gate.Decide(ctx, &Invocation{User: &User{ID: "u1", Role: RoleEmployee}, Params: map[string]string{"id": "l1"}})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.Results[0].Source != SourceOwnership {
		t.Fatalf("expected ownership grant, got %+v", d)
	}

	d, _ = gate.Decide(ctx, &Invocation{User: &User{ID: "u2", Role: RoleEmployee}, Params: map[string]string{"id": "l1"}})
	if d.Allowed {
		t.Fatal("non owner must be denied")
	}
}

func TestGateResourceLoaderFailure(t *testing.T) {
	ctx := context.Background()
	failing := func(context.Context, *Invocation) (*Resource, error) {
		return nil, errors.New("db down")
	}
	panicking := func(context.Context, *Invocation) (*Resource, error) {
		panic("loader bug")
	}
	employee := &User{ID: "u1", Role: RoleEmployee}

	tests := []struct {
		name       string
		loader     ResourceLoader
		perms      []string
		failClosed bool
		want       bool
		decision   Decision
	}{
		{"fail open keeps base grants", failing, []string{"leaves.create"}, false, true, DecisionAllow},
		{"fail open own variant held directly", failing, []string{"uploads.view_own"}, false, true, DecisionAllow},
		{"fail open panic", panicking, []string{"leaves.create"}, false, true, DecisionAllow},
		{"fail closed", failing, []string{"leaves.create"}, true, false, DecisionDenyResourceLoad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			sink := &recordingSink{}
			eng := newGateEngine(t, sink, WithLogger(bufferLogger(&buf)))
			gate := eng.Authorize(tt.perms, GateOptions{ResourceLoader: tt.loader, FailClosedOnLoadError: tt.failClosed})

			d, err := gate.Decide(ctx, &Invocation{User: employee, Path: "/uploads/1"})
			if err != nil {
				t.Fatalf("loader failures must not escalate: %v", err)
			}
			if d.Allowed != tt.want || d.Decision != tt.decision {
				t.Fatalf("expected %v/%s, got %v/%s", tt.want, tt.decision, d.Allowed, d.Decision)
			}
			if d.Resource != nil || d.ResourceLoadError == "" {
				t.Fatalf("expected no resource and a recorded load error, got %+v", d)
			}
			if !strings.Contains(buf.String(), `msg="resource loader failed"`) {
				t.Fatal("expected a loader warning")
			}
			if sink.count() != 1 {
				t.Fatalf("expected one audit record, got %d", sink.count())
			}
		})
	}
}

func TestGateFailClosedFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailClosedOnLoadError = true
	eng := newGateEngine(t, &recordingSink{}, WithConfig(cfg))
	gate := eng.Authorize([]string{"leaves.create"}, GateOptions{
		ResourceLoader: func(context.Context, *Invocation) (*Resource, error) { return nil, errors.New("boom") },
	})
	d, err := gate.Decide(context.Background(), &Invocation{User: &User{ID: "u1", Role: RoleEmployee}})
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.Decision != DecisionDenyResourceLoad {
		t.Fatalf("expected config to make the gate fail closed, got %+v", d)
	}
}

func TestGateAuditFailureDoesNotChangeOutcome(t *testing.T) {
	ctx := context.Background()
	employee := &User{ID: "u1", Role: RoleEmployee}

	for _, perm := range []string{"leaves.create", "users.delete"} {
		t.Run(perm, func(t *testing.T) {
			ok := &recordingSink{}
			broken := &recordingSink{err: errors.New("disk full")}

			var buf bytes.Buffer
			okEng := newGateEngine(t, ok)
			brokenEng := newGateEngine(t, broken, WithLogger(bufferLogger(&buf)))

			inv := &Invocation{User: employee, Path: "/leaves"}
			want, err := okEng.Authorize([]string{perm}, GateOptions{}).Decide(ctx, inv)
			if err != nil {
				t.Fatal(err)
			}
			got, err := brokenEng.Authorize([]string{perm}, GateOptions{}).Decide(ctx, inv)
			if err != nil {
				t.Fatalf("audit failures must not escalate: %v", err)
			}
			if got.Allowed != want.Allowed || got.Decision != want.Decision {
				t.Fatalf("audit failure changed the outcome: %v vs %v", got.Allowed, want.Allowed)
			}
			if broken.count() != 1 {
				t.Fatal("the sink should still have been called")
			}
			if !strings.Contains(buf.String(), `msg="audit sink failed"`) {
				t.Fatal("expected the audit failure to be logged")
			}
		})
	}
}

func TestGateAuditRecord(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	eng := newGateEngine(t, sink)
	user := &User{ID: "m1", Role: RoleManager}

	_, err := eng.Authorize([]string{"leaves.approve", "users.delete"}, GateOptions{RequireAll: true}).
		Decide(ctx, &Invocation{User: user, Path: "POST /leaves/:id/approve"})
	if err != nil {
		t.Fatal(err)
	}

	// The write has completed by the time Decide returns.
	if sink.count() != 1 {
		t.Fatalf("expected one audit record, got %d", sink.count())
	}
	a := sink.attempts[0]
	if a.User != user || a.Path != "POST /leaves/:id/approve" || a.Granted {
		t.Fatalf("unexpected attempt %+v", a)
	}
	if len(a.Permissions) != 2 || a.Permissions[0] != "leaves.approve" {
		t.Fatalf("unexpected permissions %v", a.Permissions)
	}
}

func TestGateAuditDisabled(t *testing.T) {
	cfg := DefaultConfig()
	off := false
	cfg.EnableAudit = &off
	sink := &recordingSink{}
	eng := newGateEngine(t, sink, WithConfig(cfg))

	if _, err := eng.Authorize([]string{"leaves.create"}, GateOptions{}).
		Decide(context.Background(), &Invocation{User: &User{ID: "u1", Role: RoleEmployee}}); err != nil {
		t.Fatal(err)
	}
	if sink.count() != 0 {
		t.Fatal("audit disabled should not record")
	}
}

func TestGatePanicIsCheckFailure(t *testing.T) {
	eng := newGateEngine(t, &recordingSink{}, WithOwnership(
		Ownership("bombs", func(*User, *Resource) bool { panic("rule bug") }),
	))
	gate := eng.Authorize([]string{"users.delete"}, GateOptions{
		AllowOwnership: true,
		ResourceLoader: func(context.Context, *Invocation) (*Resource, error) {
			return &Resource{Type: "bombs", ID: "b1"}, nil
		},
	})

	d, err := gate.Decide(context.Background(), &Invocation{User: &User{ID: "u1", Role: RoleEmployee}})
	if !errors.Is(err, ErrAuthorizationCheckFailed) {
		t.Fatalf("expected ErrAuthorizationCheckFailed, got %v", err)
	}
	if d != nil {
		t.Fatal("no decision should be returned on check failure")
	}
	if errors.Is(err, ErrAccessDenied) {
		t.Fatal("a check failure is not a deny")
	}
}

func TestCheckLogSink(t *testing.T) {
	s := memory.New()
	eng, err := NewEngine(WithStore(s))
	if err != nil {
		t.Fatal(err)
	}
	ctx := WithTenant(context.Background(), "app1", "t1")

	gate := eng.Authorize([]string{"uploads.view_own"}, GateOptions{
		ResourceLoader: func(_ context.Context, inv *Invocation) (*Resource, error) {
			return &Resource{Type: "uploads", ID: inv.Param("id"), Attributes: map[string]any{"uploadedBy": "u1"}}, nil
		},
	})
	user := &User{ID: "u1", Role: RoleEmployee, Roles: []string{"contractor"}}
	if err := gate.Enforce(ctx, &Invocation{User: user, Path: "/uploads/f1", Params: map[string]string{"id": "f1"}}); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}

	logs, err := s.ListCheckLogs(ctx, &checklog.QueryFilter{TenantID: "t1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected one check log, got %d", len(logs))
	}
	e := logs[0]
	if e.AppID != "app1" || e.SubjectID != "u1" || e.SubjectRole != RoleEmployee {
		t.Fatalf("unexpected subject/scope %+v", e)
	}
	if !e.Granted || e.Decision != string(DecisionAllow) || e.Path != "/uploads/f1" {
		t.Fatalf("unexpected outcome %+v", e)
	}
	if e.ResourceType != "uploads" || e.ResourceID != "f1" {
		t.Fatalf("unexpected resource %s/%s", e.ResourceType, e.ResourceID)
	}
	if e.Metadata["roles"] == nil {
		t.Fatal("extra roles should be recorded in metadata")
	}
}
