package custodian

import (
	"fmt"
	"strings"
	"unicode"
)

// OwnSuffix marks an ownership-qualified permission variant.
const OwnSuffix = "_own"

// IsOwnPermission reports whether name is an ownership-qualified permission.
func IsOwnPermission(name string) bool {
	return len(name) > len(OwnSuffix) && strings.HasSuffix(name, OwnSuffix)
}

// BasePermission strips the ownership suffix, e.g. "leaves.view_own"
// becomes "leaves.view". Names without the suffix are returned unchanged.
func BasePermission(name string) string {
	if !IsOwnPermission(name) {
		return name
	}
	return strings.TrimSuffix(name, OwnSuffix)
}

// OwnPermission returns the ownership-qualified variant of a permission.
func OwnPermission(name string) string {
	if IsOwnPermission(name) {
		return name
	}
	return name + OwnSuffix
}

// SplitPermission splits "<resource>.<action>" at the first dot.
func SplitPermission(name string) (resource, action string) {
	resource, action, _ = strings.Cut(name, ".")
	return resource, action
}

// ValidatePermissionName rejects empty names and names containing whitespace.
func ValidatePermissionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPermission)
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidPermission, name)
	}
	return nil
}

func validateRoleName(role string) error {
	if strings.TrimSpace(role) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRole)
	}
	return nil
}

// matchPrefix reports whether name falls under a resource prefix such as
// "leaves" or "leaves.". An empty prefix matches everything.
func matchPrefix(prefix, name string) bool {
	if prefix == "" {
		return true
	}
	if !strings.HasSuffix(prefix, ".") {
		prefix += "."
	}
	return strings.HasPrefix(name, prefix)
}
