// Package router resolves an operation to the ordered chain of providers
// that may serve it.
package router

import (
	"errors"
	"fmt"

	"github.com/pario-ai/orchestra/pkg/aierr"
	"github.com/pario-ai/orchestra/pkg/config"
	"github.com/pario-ai/orchestra/pkg/provider"
)

// Wildcard matches every operation without a more specific route.
const Wildcard = "*"

// Route represents a resolved provider and model to try.
type Route struct {
	Provider config.ProviderConfig
	Model    string
}

// Router resolves operations to ordered provider+model chains.
type Router struct {
	cfg *config.Config
}

// New creates a Router from the given configuration.
func New(cfg *config.Config) *Router {
	return &Router{cfg: cfg}
}

// Resolve returns the routes for operation, most preferred first. An exact
// operation route wins over the wildcard route; with neither, every
// configured provider is tried in configuration order. Targets without a
// model use requestedModel, which may itself be empty to mean the provider's
// default.
func (r *Router) Resolve(operation, requestedModel string) ([]Route, error) {
	if len(r.cfg.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	providerIndex := make(map[string]config.ProviderConfig, len(r.cfg.Providers))
	for _, p := range r.cfg.Providers {
		providerIndex[p.Name] = p
	}

	route, ok := r.find(operation)
	if !ok {
		routes := make([]Route, 0, len(r.cfg.Providers))
		for _, p := range r.cfg.Providers {
			routes = append(routes, Route{Provider: p, Model: requestedModel})
		}
		return routes, nil
	}

	var routes []Route
	for _, target := range route.Targets {
		p, ok := providerIndex[target.Provider]
		if !ok {
			continue // skip unknown providers
		}
		model := target.Model
		if model == "" {
			model = requestedModel
		}
		routes = append(routes, Route{Provider: p, Model: model})
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("route %q: all providers unknown", operation)
	}
	return routes, nil
}

func (r *Router) find(operation string) (config.RouteConfig, bool) {
	var wildcard *config.RouteConfig
	for i, route := range r.cfg.Router.Routes {
		if route.Operation == operation {
			return route, true
		}
		if route.Operation == Wildcard && wildcard == nil {
			wildcard = &r.cfg.Router.Routes[i]
		}
	}
	if wildcard != nil {
		return *wildcard, true
	}
	return config.RouteConfig{}, false
}

// ShouldFallback reports whether a failure on one route justifies trying the
// next: transient failures that survived retries, and endpoints the provider
// cannot serve.
func ShouldFallback(err error) bool {
	if err == nil {
		return false
	}
	return aierr.IsRetryable(err) || errors.Is(err, provider.ErrUnsupported)
}
