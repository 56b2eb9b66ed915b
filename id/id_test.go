package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/custodian/id"
)

func TestConstructorsCarryPrefix(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"PermissionID", id.NewPermissionID, "perm_"},
		{"HierarchyID", id.NewHierarchyID, "rhier_"},
		{"CheckLogID", id.NewCheckLogID, "chklog_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestTypedParsers(t *testing.T) {
	tests := []struct {
		name    string
		input   id.ID
		parseFn func(string) (id.ID, error)
		wantErr bool
	}{
		{"permission", id.NewPermissionID(), id.ParsePermissionID, false},
		{"hierarchy", id.NewHierarchyID(), id.ParseHierarchyID, false},
		{"check log", id.NewCheckLogID(), id.ParseCheckLogID, false},
		{"permission parser rejects rhier_", id.NewHierarchyID(), id.ParsePermissionID, true},
		{"hierarchy parser rejects chklog_", id.NewCheckLogID(), id.ParseHierarchyID, true},
		{"check log parser rejects perm_", id.NewPermissionID(), id.ParseCheckLogID, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := tt.parseFn(tt.input.String())
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error parsing %q", tt.input.String())
				}
				return
			}
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != tt.input.String() {
				t.Errorf("mismatch: %q != %q", parsed.String(), tt.input.String())
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestScanNullAndText(t *testing.T) {
	original := id.NewCheckLogID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(val); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var nilID id.ID
	val, err = nilID.Value()
	if err != nil {
		t.Fatalf("Value(nil) failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil value for nil ID, got %v", val)
	}

	var fromNull id.ID
	if err := fromNull.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !fromNull.IsNil() {
		t.Error("expected nil after scan of NULL")
	}

	if err := fromNull.Scan(42); err == nil {
		t.Error("expected error scanning an int")
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewPermissionID()
	b := id.NewPermissionID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewPermissionID() calls returned the same ID: %q", a.String())
	}
}
