// Package api provides HTTP handlers for the Custodian authorization engine.
package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/custodian"
)

// API wires all Custodian HTTP handlers together.
type API struct {
	eng    *custodian.Engine
	router forge.Router
}

// New creates an API from an Engine and a Forge router.
func New(eng *custodian.Engine, router forge.Router) *API {
	return &API{eng: eng, router: router}
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	if err := a.RegisterRoutes(a.router); err != nil {
		panic("custodian: register routes: " + err.Error())
	}
	return a.router.Handler()
}

// RegisterRoutes registers all API routes into the given Forge router.
// Check log routes are only registered when the engine has a store.
func (a *API) RegisterRoutes(router forge.Router) error {
	registerers := []func(forge.Router) error{
		a.registerCheckRoutes,
		a.registerPermissionRoutes,
		a.registerHierarchyRoutes,
	}
	if a.eng.Store() != nil {
		registerers = append(registerers, a.registerCheckLogRoutes)
	}
	for _, fn := range registerers {
		if err := fn(router); err != nil {
			return err
		}
	}
	return nil
}
