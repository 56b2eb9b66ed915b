// Package middleware provides HTTP authorization middleware for Custodian.
package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/custodian"
)

// UserResolver returns the verified principal of a request, or nil.
type UserResolver func(ctx forge.Context) *custodian.User

type config struct {
	resolve UserResolver
	params  []string
}

// Option configures the middleware.
type Option func(*config)

// WithUserResolver overrides how the principal is found. By default it is
// read from the request context, where authentication middleware stores
// it with custodian.WithUser.
func WithUserResolver(r UserResolver) Option { return func(c *config) { c.resolve = r } }

// WithParams names the route parameters copied into the invocation for
// the gate's resource loader. Defaults to "id".
func WithParams(names ...string) Option { return func(c *config) { c.params = names } }

// Require enforces a gate on every request. route identifies the endpoint
// in audit records, e.g. "GET /leaves/:id".
func Require(gate *custodian.Gate, route string, opts ...Option) forge.Middleware {
	cfg := &config{resolve: resolveUser, params: []string{"id"}}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			inv := &custodian.Invocation{
				User:   cfg.resolve(ctx),
				Path:   route,
				Params: make(map[string]string, len(cfg.params)),
			}
			for _, p := range cfg.params {
				if v := ctx.Param(p); v != "" {
					inv.Params[p] = v
				}
			}

			d, err := gate.Decide(ctx.Context(), inv)
			if err != nil {
				return errorResponse(ctx, http.StatusInternalServerError, "authorization check failed", nil)
			}
			if !d.Allowed {
				status := http.StatusForbidden
				if d.Decision == custodian.DecisionDenyUnauthenticated {
					status = http.StatusUnauthorized
				}
				return errorResponse(ctx, status, d.Reason, d.Denial)
			}
			return next(ctx)
		}
	}
}

// RequireAny allows the request if the principal holds ANY of perms.
func RequireAny(eng *custodian.Engine, route string, perms ...string) forge.Middleware {
	return Require(eng.Authorize(perms, custodian.GateOptions{}), route)
}

// RequireAll allows the request only if the principal holds ALL of perms.
func RequireAll(eng *custodian.Engine, route string, perms ...string) forge.Middleware {
	return Require(eng.Authorize(perms, custodian.GateOptions{RequireAll: true}), route)
}

// resolveUser reads the principal stored by custodian.WithUser. A bare
// Forge user ID yields a principal without roles, which only ownership
// can admit.
func resolveUser(ctx forge.Context) *custodian.User {
	if u, ok := custodian.UserFromContext(ctx.Context()); ok {
		return u
	}
	if userID := forge.UserIDFromContext(ctx.Context()); userID != "" {
		return &custodian.User{ID: userID}
	}
	return nil
}

func errorResponse(ctx forge.Context, status int, msg string, denial *custodian.DenialError) error {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.Response().WriteHeader(status)
	body := map[string]any{"error": msg}
	if denial != nil {
		body["kind"] = denial.Kind
		body["required"] = denial.Required
		if denial.Role != "" {
			body["role"] = denial.Role
		}
	}
	return json.NewEncoder(ctx.Response()).Encode(body)
}
