package custodian

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// mapCache is a minimal concurrent Cache for exercising cached resolution.
type mapCache struct {
	mu      sync.Mutex
	entries map[string][]string
}

func newMapCache() *mapCache { return &mapCache{entries: make(map[string][]string)} }

func (c *mapCache) Get(_ context.Context, key string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *mapCache) Set(_ context.Context, key string, value []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

func (c *mapCache) Purge(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]string)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConcurrentMutationAndChecks(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, WithCache(newMapCache()), WithLogger(discardLogger()))

	withEmployee := strings.Join(eng.RolePermissions(ctx, RoleManager), ",")
	if _, err := eng.UpdateRoleHierarchy(ctx, RoleManager, nil); err != nil {
		t.Fatal(err)
	}
	withoutEmployee := strings.Join(eng.RolePermissions(ctx, RoleManager), ",")
	if withEmployee == withoutEmployee {
		t.Fatal("toggling the hierarchy should change manager's permissions")
	}
	if _, err := eng.UpdateRoleHierarchy(ctx, RoleManager, []string{RoleEmployee}); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AddPermission(ctx, "reports.view", []string{RoleAdmin}); err != nil {
		t.Fatal(err)
	}

	manager := &User{ID: "m1", Role: RoleManager}
	employee := &User{ID: "e1", Role: RoleEmployee}
	ownLeave := &Resource{Type: "leaves", ID: "l1", Attributes: map[string]any{"employeeId": "e1"}}

	const iterations = 200
	done := make(chan struct{})
	var writers, readers sync.WaitGroup

	writers.Add(2)
	go func() {
		defer writers.Done()
		for i := 0; i < iterations; i++ {
			var inherits []string
			if i%2 == 0 {
				inherits = []string{RoleEmployee}
			}
			if _, err := eng.UpdateRoleHierarchy(ctx, RoleManager, inherits); err != nil {
				t.Errorf("UpdateRoleHierarchy: %v", err)
				return
			}
		}
	}()
	go func() {
		defer writers.Done()
		for i := 0; i < iterations; i++ {
			roles := []string{RoleAdmin}
			if i%2 == 0 {
				roles = append(roles, "auditor")
			}
			if _, err := eng.AddPermission(ctx, "reports.view", roles); err != nil {
				t.Errorf("AddPermission: %v", err)
				return
			}
		}
	}()

	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}

				got := strings.Join(eng.RolePermissions(ctx, RoleManager), ",")
				if got != withEmployee && got != withoutEmployee {
					t.Errorf("manager permissions %q match neither hierarchy state", got)
					return
				}

				roles := strings.Join(eng.PermissionCatalogSnapshot()["reports.view"], ",")
				if roles != "admin" && roles != "admin,auditor" {
					t.Errorf("reports.view roles %q match neither catalog state", roles)
					return
				}

				if !eng.HasPermission(ctx, manager, "leaves.approve", nil) {
					t.Error("direct grant lost during concurrent mutation")
					return
				}
				if !eng.CanAccess(ctx, employee, "leaves.view", ownLeave) {
					t.Error("ownership access lost during concurrent mutation")
					return
				}
			}
		}()
	}

	writers.Wait()
	close(done)
	readers.Wait()
}

func TestConcurrentAdminWritesKeepStoreInStep(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t, WithLogger(discardLogger()))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				role := fmt.Sprintf("role%d", w)
				if _, err := eng.AddPermission(ctx, "reports.view", []string{role}); err != nil {
					t.Errorf("AddPermission: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	stored, err := s.GetPermission(ctx, "reports.view")
	if err != nil {
		t.Fatal(err)
	}
	inMemory := eng.PermissionCatalogSnapshot()["reports.view"]
	if strings.Join(stored.Roles, ",") != strings.Join(inMemory, ",") {
		t.Fatalf("store holds %v, catalog holds %v", stored.Roles, inMemory)
	}
}
