package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/custodian/checklog"
	"github.com/xraph/custodian/id"
)

func (a *API) registerCheckLogRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("check-logs"))

	if err := g.GET("/check-logs", a.listCheckLogs,
		forge.WithSummary("Query check logs"),
		forge.WithDescription("Returns audited gate decisions with optional filters, newest first."),
		forge.WithOperationID("listCheckLogs"),
		forge.WithRequestSchema(ListCheckLogsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Check log list", ListResponse[*checklog.Entry]{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/check-logs/:logId", a.getCheckLog,
		forge.WithSummary("Get check log"),
		forge.WithOperationID("getCheckLog"),
		forge.WithResponseSchema(http.StatusOK, "Check log entry", &checklog.Entry{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.DELETE("/check-logs", a.purgeCheckLogs,
		forge.WithSummary("Purge check logs"),
		forge.WithDescription("Deletes entries older than a timestamp, or every entry of a tenant."),
		forge.WithOperationID("purgeCheckLogs"),
		forge.WithRequestSchema(PurgeCheckLogsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Purge result", PurgeResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) listCheckLogs(ctx forge.Context, req *ListCheckLogsRequest) (*ListResponse[*checklog.Entry], error) {
	filter := &checklog.QueryFilter{
		TenantID:    req.TenantID,
		SubjectID:   req.SubjectID,
		SubjectRole: req.SubjectRole,
		Path:        req.Path,
		Decision:    req.Decision,
		Limit:       defaultLimit(req.Limit),
		Offset:      req.Offset,
	}

	if req.Granted != "" {
		g, err := strconv.ParseBool(req.Granted)
		if err != nil {
			return nil, forge.BadRequest("invalid granted flag")
		}
		filter.Granted = &g
	}
	if req.After != "" {
		t, err := time.Parse(time.RFC3339, req.After)
		if err != nil {
			return nil, forge.BadRequest("invalid after timestamp")
		}
		filter.After = &t
	}
	if req.Before != "" {
		t, err := time.Parse(time.RFC3339, req.Before)
		if err != nil {
			return nil, forge.BadRequest("invalid before timestamp")
		}
		filter.Before = &t
	}

	logs, err := a.eng.Store().ListCheckLogs(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}
	total, err := a.eng.Store().CountCheckLogs(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ListResponse[*checklog.Entry]{Items: logs, Total: total, Limit: filter.Limit, Offset: filter.Offset}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) getCheckLog(ctx forge.Context, _ *GetCheckLogRequest) (*checklog.Entry, error) {
	logID, err := id.ParseCheckLogID(ctx.Param("logId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid check log ID: %v", err))
	}

	e, err := a.eng.Store().GetCheckLog(ctx.Context(), logID)
	if err != nil {
		return nil, mapError(err)
	}
	return e, ctx.JSON(http.StatusOK, e)
}

func (a *API) purgeCheckLogs(ctx forge.Context, req *PurgeCheckLogsRequest) (*PurgeResponse, error) {
	switch {
	case req.TenantID != "":
		if err := a.eng.Store().DeleteCheckLogsByTenant(ctx.Context(), req.TenantID); err != nil {
			return nil, mapError(err)
		}
		resp := &PurgeResponse{Deleted: -1}
		return resp, ctx.JSON(http.StatusOK, resp)

	case req.Before != "":
		before, err := time.Parse(time.RFC3339, req.Before)
		if err != nil {
			return nil, forge.BadRequest("invalid before timestamp")
		}
		n, err := a.eng.Store().PurgeCheckLogs(ctx.Context(), before)
		if err != nil {
			return nil, mapError(err)
		}
		resp := &PurgeResponse{Deleted: n}
		return resp, ctx.JSON(http.StatusOK, resp)

	default:
		return nil, forge.BadRequest("before or tenant_id is required")
	}
}
