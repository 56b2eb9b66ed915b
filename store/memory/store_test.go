package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/custodian/checklog"
	"github.com/xraph/custodian/id"
	"github.com/xraph/custodian/permission"
	"github.com/xraph/custodian/role"
	"github.com/xraph/custodian/store"
)

func TestPermissionUpsert(t *testing.T) {
	ctx := context.Background()
	s := New()

	first := &permission.Permission{
		ID:        id.NewPermissionID(),
		Name:      "leaves.view",
		Roles:     []string{"manager"},
		CreatedAt: time.Now().Add(-time.Hour),
	}
	if err := s.PutPermission(ctx, first); err != nil {
		t.Fatal(err)
	}

	// Replacing keeps the original identity and creation time.
	if err := s.PutPermission(ctx, &permission.Permission{
		ID:    id.NewPermissionID(),
		Name:  "leaves.view",
		Roles: []string{"manager", "hr"},
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPermission(ctx, "leaves.view")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != first.ID {
		t.Errorf("expected ID %s to be kept, got %s", first.ID, got.ID)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Error("expected CreatedAt to be kept")
	}
	if len(got.Roles) != 2 || !got.HasRole("hr") {
		t.Errorf("expected replaced role set, got %v", got.Roles)
	}

	// Returned copies do not alias stored state.
	got.Roles[0] = "mutated"
	again, _ := s.GetPermission(ctx, "leaves.view")
	if again.Roles[0] != "manager" {
		t.Error("stored roles were mutated through a returned copy")
	}
}

func TestPermissionNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.GetPermission(ctx, "nope.view"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeletePermission(ctx, "nope.view"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListPermissionsFilter(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, p := range []*permission.Permission{
		{Name: "uploads.view", Roles: []string{"manager"}},
		{Name: "leaves.view", Roles: []string{"manager"}},
		{Name: "leaves.create", Roles: []string{"employee"}},
	} {
		if err := s.PutPermission(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter *permission.ListFilter
		want   []string
	}{
		{"all sorted", nil, []string{"leaves.create", "leaves.view", "uploads.view"}},
		{"by role", &permission.ListFilter{Role: "manager"}, []string{"leaves.view", "uploads.view"}},
		{"by prefix", &permission.ListFilter{Prefix: "leaves."}, []string{"leaves.create", "leaves.view"}},
		{"paged", &permission.ListFilter{Limit: 1, Offset: 1}, []string{"leaves.view"}},
		{"offset past end", &permission.ListFilter{Offset: 5}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListPermissions(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(list) != len(tt.want) {
				t.Fatalf("expected %d entries, got %d", len(tt.want), len(list))
			}
			for i, p := range list {
				if p.Name != tt.want[i] {
					t.Errorf("entry %d: expected %q, got %q", i, tt.want[i], p.Name)
				}
			}
		})
	}

	count, err := s.CountPermissions(ctx, &permission.ListFilter{Role: "manager", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected count 2 ignoring pagination, got %d", count)
	}
}

func TestInheritanceCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.PutInheritance(ctx, &role.Inheritance{Role: "admin", Inherits: []string{"manager", "employee"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutInheritance(ctx, &role.Inheritance{Role: "manager", Inherits: []string{"employee"}}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetInheritance(ctx, "admin")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Inherits) != 2 || got.Inherits[0] != "manager" {
		t.Errorf("unexpected inherits: %v", got.Inherits)
	}

	list, err := s.ListInheritances(ctx, &role.ListFilter{Inherits: "employee"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 roles inheriting employee, got %d", len(list))
	}

	if err := s.DeleteInheritance(ctx, "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetInheritance(ctx, "admin"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCheckLogQueryAndPurge(t *testing.T) {
	ctx := context.Background()
	s := New()

	now := time.Now()
	granted := true
	entries := []*checklog.Entry{
		{ID: id.NewCheckLogID(), TenantID: "t1", SubjectID: "u1", SubjectRole: "employee", Path: "/leaves", Granted: true, Decision: "allow", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: id.NewCheckLogID(), TenantID: "t1", SubjectID: "u1", SubjectRole: "employee", Path: "/users", Granted: false, Decision: "deny", CreatedAt: now.Add(-time.Minute)},
		{ID: id.NewCheckLogID(), TenantID: "t2", SubjectID: "u2", SubjectRole: "admin", Path: "/users", Granted: true, Decision: "allow", CreatedAt: now},
	}
	for _, e := range entries {
		if err := s.CreateCheckLog(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListCheckLogs(ctx, &checklog.QueryFilter{Granted: &granted})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 granted entries, got %d", len(list))
	}
	if list[0].ID != entries[2].ID {
		t.Error("expected newest entry first")
	}

	count, _ := s.CountCheckLogs(ctx, &checklog.QueryFilter{TenantID: "t1"})
	if count != 2 {
		t.Errorf("expected 2 entries for t1, got %d", count)
	}

	purged, err := s.PurgeCheckLogs(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged entry, got %d", purged)
	}

	if err := s.DeleteCheckLogsByTenant(ctx, "t2"); err != nil {
		t.Fatal(err)
	}
	count, _ = s.CountCheckLogs(ctx, nil)
	if count != 1 {
		t.Errorf("expected 1 remaining entry, got %d", count)
	}

	if _, err := s.GetCheckLog(ctx, entries[0].ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected purged entry to be gone, got %v", err)
	}
}
