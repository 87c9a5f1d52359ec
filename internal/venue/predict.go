package venue

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/sawpanic/arbrouter/internal/orderbook"
	"github.com/sawpanic/arbrouter/internal/router"
)

// PredictAdapter talks to the Predict REST API via resty, the way the
// teacher's internal/exchanges REST clients wrap resty.Client with a
// base URL, an API key header, and a token-bucket limiter.
type PredictAdapter struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// NewPredictAdapter builds a client bounded to requestsPerSecond.
func NewPredictAdapter(baseURL, apiKey string, requestsPerSecond float64) *PredictAdapter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetTimeout(0)
	return &PredictAdapter{client: client, limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1)}
}

func (a *PredictAdapter) wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

type predictBookResponse struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

// FetchBook retrieves and shapes the raw order book for one token.
func (a *PredictAdapter) FetchBook(ctx context.Context, _ router.Venue, tokenID string) (orderbook.RawBook, error) {
	if err := a.wait(ctx); err != nil {
		return orderbook.RawBook{}, err
	}
	var body predictBookResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&body).
		Get("/book")
	if err != nil {
		return orderbook.RawBook{}, fmt.Errorf("predict: fetch book: %w", err)
	}
	if resp.IsError() {
		return orderbook.RawBook{}, fmt.Errorf("predict: fetch book: status %d", resp.StatusCode())
	}
	return toRawBook(body.Bids, body.Asks), nil
}

func toRawBook(bids, asks [][2]string) orderbook.RawBook {
	raw := orderbook.RawBook{
		Bids: make([]orderbook.RawEntry, len(bids)),
		Asks: make([]orderbook.RawEntry, len(asks)),
	}
	for i, b := range bids {
		raw.Bids[i] = orderbook.RawEntry{Price: b[0], Size: b[1]}
	}
	for i, a := range asks {
		raw.Asks[i] = orderbook.RawEntry{Price: a[0], Size: a[1]}
	}
	return raw
}

type predictOrderRequest struct {
	TokenID   string `json:"token_id"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	OrderType string `json:"order_type"`
}

type predictOrderResponse struct {
	OrderID string `json:"order_id"`
}

// Execute submits one order per leg sequentially against the REST API.
func (a *PredictAdapter) Execute(ctx context.Context, legs []router.Leg, opts router.ExecutionOptions) (router.ExecutionResult, error) {
	ids := make([]string, 0, len(legs))
	for _, l := range legs {
		if err := a.wait(ctx); err != nil {
			return router.ExecutionResult{}, err
		}
		var body predictOrderResponse
		resp, err := a.client.R().
			SetContext(ctx).
			SetBody(predictOrderRequest{
				TokenID:   l.TokenID,
				Side:      string(l.Side),
				Price:     fmt.Sprintf("%.6f", l.LimitPrice),
				Size:      fmt.Sprintf("%.6f", l.Size),
				OrderType: opts.OrderType,
			}).
			SetResult(&body).
			Post("/orders")
		if err != nil {
			return router.ExecutionResult{Venue: router.VenuePredict, OrderIDs: ids, Legs: legs}, fmt.Errorf("predict: submit order: %w", err)
		}
		if resp.IsError() {
			return router.ExecutionResult{Venue: router.VenuePredict, OrderIDs: ids, Legs: legs}, fmt.Errorf("predict: submit order: status %d", resp.StatusCode())
		}
		ids = append(ids, body.OrderID)
	}
	return router.ExecutionResult{Venue: router.VenuePredict, OrderIDs: ids, Legs: legs}, nil
}

// CancelOrders best-effort cancels every order id.
func (a *PredictAdapter) CancelOrders(ctx context.Context, orderIDs []string) error {
	for _, id := range orderIDs {
		if err := a.wait(ctx); err != nil {
			return err
		}
		if _, err := a.client.R().SetContext(ctx).Delete("/orders/" + id); err != nil {
			return fmt.Errorf("predict: cancel %s: %w", id, err)
		}
	}
	return nil
}

type predictOpenOrder struct {
	OrderID string `json:"order_id"`
	Open    bool   `json:"open"`
}

// CheckOpenOrders queries each order id and returns the still-open subset.
func (a *PredictAdapter) CheckOpenOrders(ctx context.Context, orderIDs []string) ([]string, error) {
	var still []string
	for _, id := range orderIDs {
		if err := a.wait(ctx); err != nil {
			return still, err
		}
		var body predictOpenOrder
		resp, err := a.client.R().SetContext(ctx).SetResult(&body).Get("/orders/" + id)
		if err != nil || resp.IsError() {
			continue
		}
		if body.Open {
			still = append(still, id)
		}
	}
	return still, nil
}

// HedgeLegs submits opposite-side FOK orders priced at each leg's limit
// price adjusted by slippageBps; it does not fetch the venue's current
// best quote.
func (a *PredictAdapter) HedgeLegs(ctx context.Context, legs []router.Leg, slippageBps float64) (router.ExecutionResult, error) {
	hedgeLegs := make([]router.Leg, len(legs))
	for i, l := range legs {
		opposite := router.SideSell
		if l.Side == router.SideSell {
			opposite = router.SideBuy
		}
		price := l.LimitPrice
		if opposite == router.SideBuy {
			price += price * slippageBps / 10000
		} else {
			price -= price * slippageBps / 10000
		}
		hedgeLegs[i] = router.Leg{Venue: l.Venue, TokenID: l.TokenID, Side: opposite, Size: l.Size}.WithPrice(price)
	}
	return a.Execute(ctx, hedgeLegs, router.ExecutionOptions{UseFok: true, OrderType: "FOK"})
}
