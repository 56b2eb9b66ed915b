package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/custodian/role"
)

func (a *API) registerHierarchyRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("hierarchy"))

	if err := g.GET("/hierarchy", a.listHierarchy,
		forge.WithSummary("Role hierarchy"),
		forge.WithDescription("Returns every role with the roles it directly inherits from."),
		forge.WithOperationID("listHierarchy"),
		forge.WithResponseSchema(http.StatusOK, "Hierarchy entries", []HierarchyEntry{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/hierarchy/:role", a.getHierarchy,
		forge.WithSummary("Resolve role"),
		forge.WithDescription("Returns a role's inherited roles, resolved through the hierarchy, and its effective permissions."),
		forge.WithOperationID("getHierarchy"),
		forge.WithResponseSchema(http.StatusOK, "Resolved role", HierarchyEntry{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/hierarchy/:role", a.putHierarchy,
		forge.WithSummary("Replace inherited roles"),
		forge.WithDescription("Replaces the roles a role inherits from. Cycles are rejected only in strict mode."),
		forge.WithOperationID("putHierarchy"),
		forge.WithRequestSchema(PutHierarchyRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Stored entry", &role.Inheritance{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.DELETE("/hierarchy/:role", a.deleteHierarchy,
		forge.WithSummary("Remove hierarchy entry"),
		forge.WithOperationID("deleteHierarchy"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

func (a *API) listHierarchy(ctx forge.Context, _ *ListHierarchyRequest) ([]HierarchyEntry, error) {
	snap := a.eng.RoleHierarchySnapshot()
	out := make([]HierarchyEntry, 0, len(snap))
	for _, r := range a.eng.Hierarchy().Roles() {
		out = append(out, HierarchyEntry{Role: r, Inherits: snap[r]})
	}
	return out, ctx.JSON(http.StatusOK, out)
}

func (a *API) getHierarchy(ctx forge.Context, _ *GetHierarchyRequest) (*HierarchyEntry, error) {
	r := ctx.Param("role")
	resolved, _ := a.eng.Hierarchy().Ancestors(r, a.eng.Config().MaxHierarchyDepth)

	entry := &HierarchyEntry{
		Role:        r,
		Inherits:    a.eng.Hierarchy().Parents(r),
		Resolved:    resolved,
		Permissions: a.eng.RolePermissions(ctx.Context(), r),
	}
	if entry.Inherits == nil {
		entry.Inherits = []string{}
	}
	return entry, ctx.JSON(http.StatusOK, entry)
}

func (a *API) putHierarchy(ctx forge.Context, req *PutHierarchyRequest) (*role.Inheritance, error) {
	h, err := a.eng.UpdateRoleHierarchy(ctx.Context(), ctx.Param("role"), req.Inherits)
	if err != nil {
		return nil, mapError(err)
	}
	return h, ctx.JSON(http.StatusOK, h)
}

func (a *API) deleteHierarchy(ctx forge.Context, _ *GetHierarchyRequest) (*struct{}, error) {
	if err := a.eng.RemoveRoleHierarchy(ctx.Context(), ctx.Param("role")); err != nil {
		return nil, mapError(err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}
