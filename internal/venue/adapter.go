// Package venue declares the VenueAdapter contract C5/C7 call through
// and its concrete implementations: resty-backed REST adapters for
// Predict and Opinion, a gorilla/websocket-streaming, go-ethereum
// signing adapter for Polymarket, and a uuid-keyed in-memory mock used
// by tests and dry runs. Grounded on the teacher's
// internal/data/exchanges adapter-per-venue layout (one file per
// exchange, a shared interface, a fake in-memory adapter for tests).
package venue

import (
	"context"

	"github.com/sawpanic/arbrouter/internal/orderbook"
	"github.com/sawpanic/arbrouter/internal/router"
)

// Adapter is the venue-facing contract spec.md section 6 names
// VenueAdapter: execute, cancel, check-open, hedge, plus the book
// fetch C1's Fetcher interface structurally satisfies.
type Adapter interface {
	orderbook.Fetcher

	Execute(ctx context.Context, legs []router.Leg, opts router.ExecutionOptions) (router.ExecutionResult, error)
	CancelOrders(ctx context.Context, orderIDs []string) error
	CheckOpenOrders(ctx context.Context, orderIDs []string) ([]string, error)
	HedgeLegs(ctx context.Context, legs []router.Leg, slippageBps float64) (router.ExecutionResult, error)
}

// Registry resolves a venue tag to its adapter, the way the teacher's
// exchange registry resolves exchange name to client.
type Registry struct {
	adapters map[router.Venue]Adapter
}

// NewRegistry builds a Registry from a venue->adapter map.
func NewRegistry(adapters map[router.Venue]Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Get returns the adapter for a venue, or nil if unregistered.
func (r *Registry) Get(v router.Venue) Adapter {
	return r.adapters[v]
}

// FetchBook satisfies orderbook.Fetcher by dispatching to the
// venue-specific adapter.
func (r *Registry) FetchBook(ctx context.Context, v router.Venue, tokenID string) (orderbook.RawBook, error) {
	a := r.Get(v)
	if a == nil {
		return orderbook.RawBook{}, errUnknownVenue(v)
	}
	return a.FetchBook(ctx, v, tokenID)
}

type unknownVenueError router.Venue

func (e unknownVenueError) Error() string { return "venue: no adapter registered for " + string(e) }

func errUnknownVenue(v router.Venue) error { return unknownVenueError(v) }
