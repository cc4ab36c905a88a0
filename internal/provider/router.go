package provider

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/vtuledger/internal/domain"
)

// Router sends each purchase kind to the gateway configured for it.
type Router struct {
	gateways map[string]Gateway
	routes   map[domain.Kind]string
}

func NewRouter() *Router {
	return &Router{
		gateways: make(map[string]Gateway),
		routes:   make(map[domain.Kind]string),
	}
}

// Register adds a named gateway serving the given kinds. A later
// registration for the same kind replaces the earlier route.
func (r *Router) Register(name string, g Gateway, kinds ...domain.Kind) {
	r.gateways[name] = g
	for _, k := range kinds {
		r.routes[k] = name
	}
}

// ProviderFor returns the name of the provider serving kind.
func (r *Router) ProviderFor(kind domain.Kind) (string, bool) {
	name, ok := r.routes[kind]
	return name, ok
}

func (r *Router) lookup(kind domain.Kind) (Gateway, error) {
	name, ok := r.routes[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoGateway, kind)
	}
	return r.gateways[name], nil
}

func (r *Router) Fulfill(ctx context.Context, req FulfillRequest) (Result, error) {
	g, err := r.lookup(req.Kind)
	if err != nil {
		return Result{}, err
	}
	return g.Fulfill(ctx, req)
}

func (r *Router) Status(ctx context.Context, kind domain.Kind, reference string) (Result, error) {
	g, err := r.lookup(kind)
	if err != nil {
		return Result{}, err
	}
	return g.Status(ctx, kind, reference)
}

var _ Gateway = (*Router)(nil)
