package plugin

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/xraph/custodian/permission"
	"github.com/xraph/custodian/role"
)

// testPlugin implements Plugin + PermissionAdded + AccessDecided + HierarchyCycle.
type testPlugin struct {
	added     []string
	decisions int
	cycles    [][]string
}

func (t *testPlugin) Name() string { return "test-plugin" }

func (t *testPlugin) OnPermissionAdded(_ context.Context, p *permission.Permission) error {
	t.added = append(t.added, p.Name)
	return nil
}

func (t *testPlugin) OnAccessDecided(_ context.Context, _ any) error {
	t.decisions++
	return nil
}

func (t *testPlugin) OnHierarchyCycle(_ context.Context, _ string, path []string) error {
	t.cycles = append(t.cycles, path)
	return nil
}

// minimalPlugin only implements Plugin (no hooks).
type minimalPlugin struct{}

func (m *minimalPlugin) Name() string { return "minimal" }

// failingPlugin returns an error from every hook it implements.
type failingPlugin struct{ calls int }

func (f *failingPlugin) Name() string { return "failing" }

func (f *failingPlugin) OnPermissionAdded(context.Context, *permission.Permission) error {
	f.calls++
	return errors.New("boom")
}

func TestRegistryDispatch(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(slog.Default())

	tp := &testPlugin{}
	reg.Register(tp)
	reg.Register(&minimalPlugin{})

	if len(reg.Plugins()) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(reg.Plugins()))
	}

	reg.EmitPermissionAdded(ctx, &permission.Permission{Name: "leaves.view"})
	if len(tp.added) != 1 || tp.added[0] != "leaves.view" {
		t.Fatalf("OnPermissionAdded not dispatched, got %v", tp.added)
	}

	reg.EmitAccessDecided(ctx, nil)
	if tp.decisions != 1 {
		t.Fatal("OnAccessDecided was not called")
	}

	reg.EmitHierarchyCycle(ctx, "a", []string{"a", "b", "a"})
	if len(tp.cycles) != 1 || len(tp.cycles[0]) != 3 {
		t.Fatalf("OnHierarchyCycle not dispatched, got %v", tp.cycles)
	}

	// Should not panic on hooks with no listeners.
	reg.EmitPermissionRemoved(ctx, "leaves.view")
	reg.EmitHierarchyUpdated(ctx, &role.Inheritance{Role: "admin"})
	reg.EmitHierarchyRemoved(ctx, "admin")
	reg.EmitUnknownPermission(ctx, "nope.view")
	reg.EmitShutdown(ctx)
}

func TestRegistryHookErrorsAreSwallowed(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)

	fp := &failingPlugin{}
	tp := &testPlugin{}
	reg.Register(fp)
	reg.Register(tp)

	reg.EmitPermissionAdded(ctx, &permission.Permission{Name: "uploads.create"})

	if fp.calls != 1 {
		t.Fatalf("expected failing hook to run once, got %d", fp.calls)
	}
	if len(tp.added) != 1 {
		t.Fatal("later plugins must still be notified after an earlier hook fails")
	}
}
