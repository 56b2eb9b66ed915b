package custodian

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/xraph/custodian/permission"
	"github.com/xraph/custodian/store"
	"github.com/xraph/custodian/store/memory"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	eng, err := NewEngine(append([]Option{WithStore(s)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	return eng, s
}

// bufferLogger returns a logger writing text records into buf.
func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type unknownRecorder struct{ names []string }

func (u *unknownRecorder) Name() string { return "unknown-recorder" }

func (u *unknownRecorder) OnUnknownPermission(_ context.Context, name string) error {
	u.names = append(u.names, name)
	return nil
}

func TestNewEngine_WithoutStore(t *testing.T) {
	eng, err := NewEngine()
	if err != nil {
		t.Fatal(err)
	}
	if eng.Store() != nil {
		t.Fatal("expected no store")
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start without store: %v", err)
	}
	if !eng.HasPermission(context.Background(), &User{ID: "u1", Role: RoleAdmin}, "users.delete", nil) {
		t.Fatal("expected built-in policy to be active")
	}
}

func TestNewEngine_RejectsInvalidPolicy(t *testing.T) {
	_, err := NewEngine(WithPolicy(PolicySet{
		Permissions: map[string][]string{"bad name": {"admin"}},
	}))
	if !errors.Is(err, ErrInvalidPermission) {
		t.Fatalf("expected ErrInvalidPermission, got %v", err)
	}
}

func TestUnknownPermissionDenies(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	rec := &unknownRecorder{}
	eng, _ := newTestEngine(t, WithLogger(bufferLogger(&buf)), WithPlugin(rec))

	for _, r := range []string{RoleAdmin, RoleManager, RoleEmployee, "ghost"} {
		t.Run(r, func(t *testing.T) {
			res := eng.CheckPermission(ctx, &User{ID: "u1", Role: r}, "reactor.meltdown", nil)
			if res.Allowed {
				t.Fatal("unknown permission must never be granted")
			}
			if res.Decision != DecisionDenyUnknownPermission {
				t.Fatalf("expected %s, got %s", DecisionDenyUnknownPermission, res.Decision)
			}
		})
	}

	if n := strings.Count(buf.String(), `msg="unknown permission"`); n != 4 {
		t.Fatalf("expected a warning per check, got %d", n)
	}
	if len(rec.names) != 4 {
		t.Fatalf("expected 4 unknown permission hooks, got %d", len(rec.names))
	}
}

func TestDirectGrant(t *testing.T) {
	ctx := context.Background()
	eng, err := NewEngine(WithPolicy(PolicySet{
		Permissions: map[string][]string{"users.delete": {"admin"}},
		Hierarchy:   map[string][]string{"admin": {}},
	}))
	if err != nil {
		t.Fatal(err)
	}

	if !eng.HasPermission(ctx, &User{Role: "admin"}, "users.delete", nil) {
		t.Fatal("admin should hold users.delete")
	}
	if eng.HasPermission(ctx, &User{Role: "manager"}, "users.delete", nil) {
		t.Fatal("manager should not hold users.delete")
	}
	if eng.HasPermission(ctx, nil, "users.delete", nil) {
		t.Fatal("nil user should never hold a permission")
	}

	res := eng.CheckPermission(ctx, &User{Role: "admin"}, "users.delete", nil)
	if res.Source != SourceDirect || res.MatchedRole != "admin" {
		t.Fatalf("expected direct grant via admin, got %s via %q", res.Source, res.MatchedRole)
	}
}

func TestInheritedGrant(t *testing.T) {
	ctx := context.Background()
	eng, err := NewEngine(WithPolicy(PolicySet{
		Permissions: map[string][]string{"employees.view": {"manager"}},
		Hierarchy:   map[string][]string{"admin": {"manager", "employee"}},
	}))
	if err != nil {
		t.Fatal(err)
	}

	res := eng.CheckPermission(ctx, &User{Role: "admin"}, "employees.view", nil)
	if !res.Allowed {
		t.Fatal("admin should inherit employees.view from manager")
	}
	if res.Source != SourceInherited || res.MatchedRole != "manager" {
		t.Fatalf("expected inherited grant via manager, got %s via %q", res.Source, res.MatchedRole)
	}
	if eng.HasPermission(ctx, &User{Role: "employee"}, "employees.view", nil) {
		t.Fatal("employee does not inherit from manager")
	}
}

func TestOwnershipFallback(t *testing.T) {
	ctx := context.Background()
	eng, err := NewEngine(WithPolicy(PolicySet{
		Permissions: map[string][]string{
			"leaves.view":     {"employee"},
			"leaves.view_own": {},
		},
		Ownership: []OwnershipRule{
			Ownership("leaves", func(u *User, r *Resource) bool {
				v, _ := r.Attr("employeeId")
				return v == u.ID
			}),
		},
	}))
	if err != nil {
		t.Fatal(err)
	}
	user := &User{ID: "u1", Role: "employee"}

	tests := []struct {
		name string
		res  *Resource
		want bool
	}{
		{"owner", &Resource{Type: "leaves", Attributes: map[string]any{"employeeId": "u1"}}, true},
		{"not owner", &Resource{Type: "leaves", Attributes: map[string]any{"employeeId": "u2"}}, false},
		{"no resource", nil, false},
		{"no rule for type", &Resource{Type: "uploads", Attributes: map[string]any{"employeeId": "u1"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := eng.CheckPermission(ctx, user, "leaves.view_own", tt.res)
			if res.Allowed != tt.want {
				t.Fatalf("expected %v, got %v (%s)", tt.want, res.Allowed, res.Reason)
			}
			if tt.want && res.Source != SourceOwnership {
				t.Fatalf("expected ownership source, got %s", res.Source)
			}
		})
	}
}

func TestOwnershipFallbackOnlyForOwnSuffix(t *testing.T) {
	ctx := context.Background()
	eng, err := NewEngine(WithPolicy(PolicySet{
		Permissions: map[string][]string{"leaves.approve": {"manager"}},
		Ownership:   []OwnershipRule{FieldOwnership{ResourceType: "leaves", ResourceField: "employeeId"}},
	}))
	if err != nil {
		t.Fatal(err)
	}
	owned := &Resource{Type: "leaves", Attributes: map[string]any{"employeeId": "u1"}}
	if eng.HasPermission(ctx, &User{ID: "u1", Role: "employee"}, "leaves.approve", owned) {
		t.Fatal("ownership must not grant a permission without an _own variant")
	}
}

func TestCheckPermissionsEntryForEveryName(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	eng, _ := newTestEngine(t, WithLogger(bufferLogger(&buf)))

	names := []string{"leaves.create", "nope.one", "users.delete", "nope.two"}
	got := eng.CheckPermissions(ctx, &User{ID: "u1", Role: RoleEmployee}, names, nil)

	if len(got) != len(names) {
		t.Fatalf("expected %d entries, got %d", len(names), len(got))
	}
	want := map[string]bool{"leaves.create": true, "nope.one": false, "users.delete": false, "nope.two": false}
	for name, allowed := range want {
		v, ok := got[name]
		if !ok {
			t.Fatalf("missing entry for %s", name)
		}
		if v != allowed {
			t.Errorf("%s: expected %v, got %v", name, allowed, v)
		}
	}
	if n := strings.Count(buf.String(), `msg="unknown permission"`); n != 2 {
		t.Fatalf("expected both unknown names to be reported, got %d", n)
	}
}

func TestRolePermissions(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	tests := []struct {
		role    string
		has     []string
		hasNot  []string
		wantLen int
	}{
		{RoleEmployee, []string{"leaves.create", "leaves.view_own"}, []string{"leaves.view", "users.view"}, 5},
		{RoleManager, []string{"leaves.view", "leaves.create"}, []string{"users.view"}, 9},
		{RoleAdmin, []string{"users.delete", "leaves.approve", "uploads.create"}, nil, 17},
		{"ghost", nil, []string{"leaves.create"}, 0},
		{"", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			perms := eng.RolePermissions(ctx, tt.role)
			if len(perms) != tt.wantLen {
				t.Fatalf("expected %d permissions, got %d: %v", tt.wantLen, len(perms), perms)
			}
			if !slices.IsSorted(perms) {
				t.Fatalf("expected sorted permissions, got %v", perms)
			}
			for _, p := range tt.has {
				if !slices.Contains(perms, p) {
					t.Errorf("expected %s in %v", p, perms)
				}
			}
			for _, p := range tt.hasNot {
				if slices.Contains(perms, p) {
					t.Errorf("did not expect %s in %v", p, perms)
				}
			}
		})
	}
}

func TestEffectivePermissions(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	if got := eng.EffectivePermissions(ctx, nil); len(got) != 0 {
		t.Fatalf("nil user: expected empty set, got %v", got)
	}
	if got := eng.EffectivePermissions(ctx, &User{ID: "u1"}); len(got) != 0 {
		t.Fatalf("user without role: expected empty set, got %v", got)
	}

	single := eng.EffectivePermissions(ctx, &User{ID: "u1", Role: RoleManager})
	if !slices.Equal(single, eng.RolePermissions(ctx, RoleManager)) {
		t.Fatal("single role user should equal RolePermissions of that role")
	}
}

func TestMultiRoleUser(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	if _, err := eng.AddPermission(ctx, "payroll.run", []string{"payroll"}); err != nil {
		t.Fatal(err)
	}

	u := &User{ID: "u1", Role: RoleEmployee, Roles: []string{"payroll", RoleEmployee}}
	if got := u.EffectiveRoles(); !slices.Equal(got, []string{RoleEmployee, "payroll"}) {
		t.Fatalf("unexpected effective roles %v", got)
	}
	if !eng.HasPermission(ctx, u, "payroll.run", nil) {
		t.Fatal("extra role should grant payroll.run")
	}
	if !eng.HasPermission(ctx, u, "leaves.create", nil) {
		t.Fatal("primary role should still grant leaves.create")
	}

	perms := eng.EffectivePermissions(ctx, u)
	if !slices.Contains(perms, "payroll.run") || !slices.Contains(perms, "leaves.create") {
		t.Fatalf("expected union of both roles, got %v", perms)
	}
	if !slices.IsSorted(perms) {
		t.Fatal("expected sorted union")
	}
}

func TestCanAccessAndFilterResources(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	employee := &User{ID: "u1", Role: RoleEmployee}
	manager := &User{ID: "m1", Role: RoleManager}

	mine := &Resource{Type: "leaves", ID: "l1", Attributes: map[string]any{"employeeId": "u1"}}
	theirs := &Resource{Type: "leaves", ID: "l2", Attributes: map[string]any{"employeeId": "u2"}}
	alsoMine := &Resource{Type: "leaves", ID: "l3", Attributes: map[string]any{"employeeId": "u1"}}

	if !eng.CanAccess(ctx, employee, "leaves.view", mine) {
		t.Fatal("employee should view own leave")
	}
	if eng.CanAccess(ctx, employee, "leaves.view", theirs) {
		t.Fatal("employee should not view someone else's leave")
	}
	if !eng.CanAccess(ctx, manager, "leaves.view", theirs) {
		t.Fatal("manager should view any leave")
	}
	if eng.CanAccess(ctx, employee, "leaves.approve", mine) {
		t.Fatal("employee cannot approve leaves, not even their own")
	}

	all := []*Resource{theirs, mine, alsoMine}
	got := eng.FilterResources(ctx, employee, all, "leaves.view")
	if len(got) != 2 || got[0] != mine || got[1] != alsoMine {
		t.Fatalf("expected [l1 l3] in original order, got %v", got)
	}
	if got := eng.FilterResources(ctx, manager, all, "leaves.view"); len(got) != 3 {
		t.Fatalf("manager should see all leaves, got %d", len(got))
	}
}

func TestRemovePermissionMakesUnknown(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	eng, s := newTestEngine(t, WithLogger(bufferLogger(&buf)))
	admin := &User{ID: "a1", Role: RoleAdmin}

	if !eng.HasPermission(ctx, admin, "users.delete", nil) {
		t.Fatal("precondition: admin holds users.delete")
	}
	if err := eng.RemovePermission(ctx, "users.delete"); err != nil {
		t.Fatal(err)
	}

	res := eng.CheckPermission(ctx, admin, "users.delete", nil)
	if res.Allowed || res.Decision != DecisionDenyUnknownPermission {
		t.Fatalf("expected unknown deny after removal, got %s", res.Decision)
	}
	if !strings.Contains(buf.String(), `msg="unknown permission"`) {
		t.Fatal("expected a diagnostic for the removed permission")
	}
	if _, err := s.GetPermission(ctx, "users.delete"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected removal to reach the store, got %v", err)
	}
	if err := eng.RemovePermission(ctx, "users.delete"); !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound on second removal, got %v", err)
	}
}

func TestAddPermissionReplacesWholesale(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	if _, err := eng.AddPermission(ctx, "leaves.approve", []string{RoleAdmin}); err != nil {
		t.Fatal(err)
	}
	if eng.HasPermission(ctx, &User{Role: RoleManager}, "leaves.approve", nil) {
		t.Fatal("manager grant should be replaced, not merged")
	}
	if !eng.HasPermission(ctx, &User{Role: RoleAdmin}, "leaves.approve", nil) {
		t.Fatal("admin should now hold leaves.approve directly")
	}

	stored, err := s.GetPermission(ctx, "leaves.approve")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(stored.Roles, []string{RoleAdmin}) || !stored.IsSystem {
		t.Fatalf("unexpected stored record %+v", stored)
	}

	if _, err := eng.AddPermission(ctx, "", []string{RoleAdmin}); !errors.Is(err, ErrInvalidPermission) {
		t.Fatalf("expected ErrInvalidPermission, got %v", err)
	}
	if _, err := eng.AddPermission(ctx, "x.view", []string{" "}); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	eng, _ := newTestEngine(t)

	snap := eng.PermissionCatalogSnapshot()
	snap["users.delete"][0] = "mallory"
	if roles, _ := eng.Catalog().Roles("users.delete"); roles[0] != RoleAdmin {
		t.Fatal("catalog snapshot must not alias live state")
	}

	h := eng.RoleHierarchySnapshot()
	if !slices.Equal(h[RoleAdmin], []string{RoleManager, RoleEmployee}) {
		t.Fatalf("unexpected admin entry %v", h[RoleAdmin])
	}
	h[RoleAdmin][0] = "mallory"
	if eng.Hierarchy().Parents(RoleAdmin)[0] != RoleManager {
		t.Fatal("hierarchy snapshot must not alias live state")
	}
}

func TestStartSeedsAndLoads(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	first, err := NewEngine(WithStore(s))
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Start(ctx); err != nil {
		t.Fatal(err)
	}
	n, err := s.CountPermissions(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if int(n) != len(BuiltinPolicy().Permissions) {
		t.Fatalf("expected seeded catalog of %d, got %d", len(BuiltinPolicy().Permissions), n)
	}
	if _, err := first.AddPermission(ctx, "reports.view", []string{RoleManager}); err != nil {
		t.Fatal(err)
	}

	// A second engine over the same store starts from the stored policy,
	// not from its own seed.
	second, err := NewEngine(WithStore(s), WithPolicy(PolicySet{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := second.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if !second.HasPermission(ctx, &User{Role: RoleAdmin}, "reports.view", nil) {
		t.Fatal("expected stored permission and hierarchy to be loaded")
	}

	// Out-of-band store edits become visible on Reload.
	if err := s.PutPermission(ctx, &permission.Permission{Name: "reports.export", Roles: []string{RoleAdmin}}); err != nil {
		t.Fatal(err)
	}
	if second.Catalog().Exists("reports.export") {
		t.Fatal("store edit should not be visible before reload")
	}
	gen := second.Generation()
	if err := second.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if !second.Catalog().Exists("reports.export") || second.Generation() <= gen {
		t.Fatal("expected reload to pick up the store edit and bump the generation")
	}
}
