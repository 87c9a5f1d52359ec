package venue

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/sawpanic/arbrouter/internal/orderbook"
	"github.com/sawpanic/arbrouter/internal/router"
)

// MockAdapter is an in-memory Adapter used by tests and dry-run mode:
// books are seeded directly, orders are always accepted, assigned a
// fresh uuid and stay open until cancelled, cancel marks orders closed,
// and hedges are accepted as filled with a valid ExecutionResult, so
// dispatcher and post-trade code paths exercise the same shapes they
// would against a real venue.
type MockAdapter struct {
	venue router.Venue

	mu    sync.Mutex
	books map[string]orderbook.RawBook
	open  map[string]bool
}

// NewMockAdapter creates a mock for one venue tag.
func NewMockAdapter(v router.Venue) *MockAdapter {
	return &MockAdapter{venue: v, books: make(map[string]orderbook.RawBook), open: make(map[string]bool)}
}

// SeedBook installs a raw book for a token, returned by every later
// FetchBook call for it until the token is seeded again.
func (m *MockAdapter) SeedBook(tokenID string, book orderbook.RawBook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[tokenID] = book
}

// FetchBook returns the seeded book for tokenID.
func (m *MockAdapter) FetchBook(_ context.Context, _ router.Venue, tokenID string) (orderbook.RawBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[tokenID]
	if !ok {
		return orderbook.RawBook{}, unknownTokenError(tokenID)
	}
	return book, nil
}

// Execute accepts every leg and returns one fresh order id per leg.
func (m *MockAdapter) Execute(_ context.Context, legs []router.Leg, _ router.ExecutionOptions) (router.ExecutionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(legs))
	for i := range legs {
		id := uuid.NewString()
		ids[i] = id
		m.open[id] = true
	}
	return router.ExecutionResult{Venue: m.venue, OrderIDs: ids, Legs: legs}, nil
}

// CancelOrders marks every id closed.
func (m *MockAdapter) CancelOrders(_ context.Context, orderIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range orderIDs {
		delete(m.open, id)
	}
	return nil
}

// CheckOpenOrders returns the subset of orderIDs still marked open.
func (m *MockAdapter) CheckOpenOrders(_ context.Context, orderIDs []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var still []string
	for _, id := range orderIDs {
		if m.open[id] {
			still = append(still, id)
		}
	}
	return still, nil
}

// HedgeLegs accepts every leg as a filled hedge order.
func (m *MockAdapter) HedgeLegs(_ context.Context, legs []router.Leg, _ float64) (router.ExecutionResult, error) {
	ids := make([]string, len(legs))
	for i := range legs {
		ids[i] = uuid.NewString()
	}
	return router.ExecutionResult{Venue: m.venue, OrderIDs: ids, Legs: legs}, nil
}

type unknownTokenError string

func (e unknownTokenError) Error() string { return "venue: no seeded book for token " + string(e) }
