package api

import (
	"net/http"
	"strings"

	"github.com/xraph/forge"

	"github.com/xraph/custodian"
	"github.com/xraph/custodian/permission"
)

func (a *API) registerPermissionRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("permissions"))

	if err := g.GET("/permissions", a.listPermissions,
		forge.WithSummary("List permissions"),
		forge.WithDescription("Returns the permission catalog with the roles directly granted each permission."),
		forge.WithOperationID("listPermissions"),
		forge.WithRequestSchema(ListPermissionsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Permission list", ListResponse[*permission.Permission]{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/permissions/:name", a.getPermission,
		forge.WithSummary("Get permission"),
		forge.WithOperationID("getPermission"),
		forge.WithResponseSchema(http.StatusOK, "Permission details", &permission.Permission{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/permissions/:name", a.putPermission,
		forge.WithSummary("Create or replace permission"),
		forge.WithDescription("Replaces the set of roles granted the permission. Takes effect for every later check."),
		forge.WithOperationID("putPermission"),
		forge.WithRequestSchema(PutPermissionRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Stored permission", &permission.Permission{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.DELETE("/permissions/:name", a.deletePermission,
		forge.WithSummary("Delete permission"),
		forge.WithDescription("Removes the permission. Later checks treat it as unknown and deny."),
		forge.WithOperationID("deletePermission"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

func (a *API) listPermissions(ctx forge.Context, req *ListPermissionsRequest) (*ListResponse[*permission.Permission], error) {
	filter := &permission.ListFilter{
		Role:   req.Role,
		Prefix: req.Prefix,
		Search: req.Search,
		Limit:  defaultLimit(req.Limit),
		Offset: req.Offset,
	}

	if s := a.eng.Store(); s != nil {
		perms, err := s.ListPermissions(ctx.Context(), filter)
		if err != nil {
			return nil, mapError(err)
		}
		total, err := s.CountPermissions(ctx.Context(), filter)
		if err != nil {
			return nil, mapError(err)
		}
		resp := &ListResponse[*permission.Permission]{Items: perms, Total: total, Limit: filter.Limit, Offset: filter.Offset}
		return resp, ctx.JSON(http.StatusOK, resp)
	}

	all := a.catalogPermissions(filter)
	resp := &ListResponse[*permission.Permission]{
		Items:  page(all, filter.Limit, filter.Offset),
		Total:  int64(len(all)),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

// catalogPermissions lists the live catalog when no store is configured.
func (a *API) catalogPermissions(filter *permission.ListFilter) []*permission.Permission {
	snap := a.eng.PermissionCatalogSnapshot()
	out := make([]*permission.Permission, 0, len(snap))
	for _, name := range a.eng.Catalog().Names(filter.Prefix) {
		p := &permission.Permission{Name: name, Roles: snap[name]}
		if filter.Role != "" && !p.HasRole(filter.Role) {
			continue
		}
		if filter.Search != "" && !strings.Contains(name, filter.Search) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (a *API) getPermission(ctx forge.Context, _ *GetPermissionRequest) (*permission.Permission, error) {
	name := ctx.Param("name")

	if s := a.eng.Store(); s != nil {
		p, err := s.GetPermission(ctx.Context(), name)
		if err != nil {
			return nil, mapError(err)
		}
		return p, ctx.JSON(http.StatusOK, p)
	}

	roles, ok := a.eng.Catalog().Roles(name)
	if !ok {
		return nil, forge.NotFound(custodian.ErrPermissionNotFound.Error() + ": " + name)
	}
	p := &permission.Permission{Name: name, Roles: roles}
	return p, ctx.JSON(http.StatusOK, p)
}

func (a *API) putPermission(ctx forge.Context, req *PutPermissionRequest) (*permission.Permission, error) {
	p, err := a.eng.PutPermission(ctx.Context(), &permission.Permission{
		Name:        ctx.Param("name"),
		Roles:       req.Roles,
		Description: req.Description,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return p, ctx.JSON(http.StatusOK, p)
}

func (a *API) deletePermission(ctx forge.Context, _ *GetPermissionRequest) (*struct{}, error) {
	if err := a.eng.RemovePermission(ctx.Context(), ctx.Param("name")); err != nil {
		return nil, mapError(err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}
