package api

import (
	"context"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/custodian"
)

func (a *API) registerCheckRoutes(router forge.Router) error {
	g := router.Group("/v1/authz", forge.WithGroupTags("authorization"))

	if err := g.POST("/check", a.check,
		forge.WithSummary("Authorization decision"),
		forge.WithDescription("Runs a gate over the required permissions for the given user and resource. The decision is audited."),
		forge.WithOperationID("authzCheck"),
		forge.WithRequestSchema(CheckRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Gate decision", CheckResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/can", a.can,
		forge.WithSummary("Action check"),
		forge.WithDescription("Checks an action or its _own variant against a resource, or filters a resource list by the action."),
		forge.WithOperationID("authzCan"),
		forge.WithRequestSchema(CanRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Action result", CanResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.POST("/effective", a.effective,
		forge.WithSummary("Effective permissions"),
		forge.WithDescription("Returns every permission the user holds directly or through the role hierarchy."),
		forge.WithOperationID("authzEffective"),
		forge.WithRequestSchema(EffectiveRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Effective permissions", EffectiveResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) check(ctx forge.Context, req *CheckRequest) (*CheckResponse, error) {
	if len(req.Permissions) == 0 && !req.RequireAll {
		return nil, forge.BadRequest("permissions are required")
	}

	res := toResource(req.Resource)
	gate := a.eng.Authorize(req.Permissions, custodian.GateOptions{
		RequireAll:     req.RequireAll,
		AllowOwnership: req.AllowOwnership,
		ResourceLoader: func(context.Context, *custodian.Invocation) (*custodian.Resource, error) {
			return res, nil
		},
	})

	d, err := gate.Decide(ctx.Context(), &custodian.Invocation{
		User: toUser(req.User),
		Path: req.Path,
	})
	if err != nil {
		return nil, mapError(err)
	}

	resp := toCheckResponse(d)
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) can(ctx forge.Context, req *CanRequest) (*CanResponse, error) {
	if req.Action == "" {
		return nil, forge.BadRequest("action is required")
	}
	user := toUser(req.User)

	resp := &CanResponse{}
	if len(req.Resources) > 0 {
		resources := make([]*custodian.Resource, 0, len(req.Resources))
		for _, r := range req.Resources {
			if res := toResource(r); res != nil {
				resources = append(resources, res)
			}
		}
		resp.Resources = a.eng.FilterResources(ctx.Context(), user, resources, req.Action)
		resp.Allowed = len(resp.Resources) > 0
	} else {
		resp.Allowed = a.eng.CanAccess(ctx.Context(), user, req.Action, toResource(req.Resource))
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) effective(ctx forge.Context, req *EffectiveRequest) (*EffectiveResponse, error) {
	user := toUser(req.User)
	resp := &EffectiveResponse{
		Roles:       user.EffectiveRoles(),
		Permissions: a.eng.EffectivePermissions(ctx.Context(), user),
	}
	if resp.Roles == nil {
		resp.Roles = []string{}
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func toCheckResponse(d *custodian.GateDecision) *CheckResponse {
	resp := &CheckResponse{
		Allowed:           d.Allowed,
		Decision:          string(d.Decision),
		Reason:            d.Reason,
		OwnershipOverride: d.OwnershipOverride,
		Denial:            d.Denial,
		EvalTimeNs:        d.EvalTimeNs,
	}
	for _, r := range d.Results {
		resp.Results = append(resp.Results, PermissionResult{
			Permission:  r.Permission,
			Allowed:     r.Allowed,
			Decision:    string(r.Decision),
			Source:      string(r.Source),
			MatchedRole: r.MatchedRole,
		})
	}
	return resp
}
