package api

import (
	"errors"

	"github.com/xraph/forge"

	"github.com/xraph/custodian"
	"github.com/xraph/custodian/store"
)

// mapError maps domain errors to Forge HTTP errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return forge.NotFound(err.Error())
	}
	if errors.Is(err, custodian.ErrInvalidPermission) || errors.Is(err, custodian.ErrInvalidRole) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, custodian.ErrCyclicRoleInheritance) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, custodian.ErrAccessDenied) {
		return forge.Forbidden(err.Error())
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, custodian.ErrPermissionNotFound) ||
		errors.Is(err, custodian.ErrHierarchyNotFound) ||
		errors.Is(err, custodian.ErrCheckLogNotFound) ||
		errors.Is(err, store.ErrNotFound)
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

// page applies offset and limit to an in-memory list.
func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func toUser(in *UserInput) *custodian.User {
	if in == nil || (in.ID == "" && in.Role == "" && len(in.Roles) == 0) {
		return nil
	}
	return &custodian.User{
		ID:         in.ID,
		Role:       in.Role,
		Roles:      in.Roles,
		Attributes: in.Attributes,
	}
}

func toResource(in *ResourceInput) *custodian.Resource {
	if in == nil || in.Type == "" {
		return nil
	}
	return &custodian.Resource{
		Type:       in.Type,
		ID:         in.ID,
		Attributes: in.Attributes,
	}
}
