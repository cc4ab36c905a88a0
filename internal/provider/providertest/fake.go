// Package providertest has scripted provider doubles for tests.
package providertest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/punchamoorthee/vtuledger/internal/domain"
	"github.com/punchamoorthee/vtuledger/internal/provider"
)

// Gateway returns scripted results and records every call.
type Gateway struct {
	mu           sync.Mutex
	FulfillFunc  func(ctx context.Context, req provider.FulfillRequest) (provider.Result, error)
	StatusFunc   func(ctx context.Context, kind domain.Kind, reference string) (provider.Result, error)
	fulfillCalls []provider.FulfillRequest
	statusCalls  atomic.Int64
}

// Returning builds a Gateway whose Fulfill always reports outcome.
func Returning(outcome provider.Outcome) *Gateway {
	return &Gateway{
		FulfillFunc: func(ctx context.Context, req provider.FulfillRequest) (provider.Result, error) {
			return provider.Result{Outcome: outcome, ExternalReference: "ext-" + req.Reference}, nil
		},
	}
}

func (g *Gateway) Fulfill(ctx context.Context, req provider.FulfillRequest) (provider.Result, error) {
	g.mu.Lock()
	g.fulfillCalls = append(g.fulfillCalls, req)
	fn := g.FulfillFunc
	g.mu.Unlock()
	if fn == nil {
		return provider.Result{Outcome: provider.Confirmed}, nil
	}
	return fn(ctx, req)
}

func (g *Gateway) Status(ctx context.Context, kind domain.Kind, reference string) (provider.Result, error) {
	g.statusCalls.Add(1)
	g.mu.Lock()
	fn := g.StatusFunc
	g.mu.Unlock()
	if fn == nil {
		return provider.Result{Outcome: provider.Ambiguous}, nil
	}
	return fn(ctx, kind, reference)
}

func (g *Gateway) FulfillCalls() []provider.FulfillRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]provider.FulfillRequest(nil), g.fulfillCalls...)
}

func (g *Gateway) StatusCalls() int64 { return g.statusCalls.Load() }

// Verifier returns a fixed verification per reference.
type Verifier struct {
	mu      sync.Mutex
	results map[string]provider.Verification
	errs    map[string]error
	calls   map[string]int
}

func NewVerifier() *Verifier {
	return &Verifier{
		results: make(map[string]provider.Verification),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (v *Verifier) Set(reference string, ver provider.Verification) {
	v.mu.Lock()
	v.results[reference] = ver
	v.mu.Unlock()
}

func (v *Verifier) Fail(reference string, err error) {
	v.mu.Lock()
	v.errs[reference] = err
	v.mu.Unlock()
}

func (v *Verifier) Calls(reference string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls[reference]
}

func (v *Verifier) Verify(ctx context.Context, reference string) (provider.Verification, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls[reference]++
	if err, ok := v.errs[reference]; ok {
		return provider.Verification{State: provider.PaymentUnknown}, err
	}
	if ver, ok := v.results[reference]; ok {
		return ver, nil
	}
	return provider.Verification{State: provider.PaymentUnknown}, nil
}

var (
	_ provider.Gateway         = (*Gateway)(nil)
	_ provider.PaymentVerifier = (*Verifier)(nil)
)
