package venue

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/sawpanic/arbrouter/internal/orderbook"
	"github.com/sawpanic/arbrouter/internal/router"
)

// OpinionAdapter mirrors PredictAdapter's resty shape against
// Opinion's differently-keyed REST API (level arrays under "buy"/"sell"
// rather than "bids"/"asks", market id instead of token id in the path).
type OpinionAdapter struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// NewOpinionAdapter builds a rate-limited resty client for Opinion.
func NewOpinionAdapter(baseURL, apiKey string, requestsPerSecond float64) *OpinionAdapter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("X-Api-Key", apiKey)
	return &OpinionAdapter{client: client, limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1)}
}

func (a *OpinionAdapter) wait(ctx context.Context) error { return a.limiter.Wait(ctx) }

type opinionBookResponse struct {
	Buy  [][2]string `json:"buy"`
	Sell [][2]string `json:"sell"`
}

// FetchBook retrieves a market's order book.
func (a *OpinionAdapter) FetchBook(ctx context.Context, _ router.Venue, tokenID string) (orderbook.RawBook, error) {
	if err := a.wait(ctx); err != nil {
		return orderbook.RawBook{}, err
	}
	var body opinionBookResponse
	resp, err := a.client.R().SetContext(ctx).SetResult(&body).Get("/markets/" + tokenID + "/book")
	if err != nil {
		return orderbook.RawBook{}, fmt.Errorf("opinion: fetch book: %w", err)
	}
	if resp.IsError() {
		return orderbook.RawBook{}, fmt.Errorf("opinion: fetch book: status %d", resp.StatusCode())
	}
	// Opinion quotes "buy" as bids, "sell" as asks, both ascending by
	// price; bids are reversed so the best bid comes first.
	bids := make([][2]string, len(body.Buy))
	for i, b := range body.Buy {
		bids[len(body.Buy)-1-i] = b
	}
	return toRawBook(bids, body.Sell), nil
}

type opinionOrderRequest struct {
	MarketID string `json:"market_id"`
	Side     string `json:"side"`
	Price    string `json:"limit_price"`
	Shares   string `json:"shares"`
	TIF      string `json:"time_in_force"`
}

type opinionOrderResponse struct {
	ID string `json:"id"`
}

func tifFor(opts router.ExecutionOptions) string {
	if opts.OrderType != "" {
		return opts.OrderType
	}
	if opts.UseFok {
		return "FOK"
	}
	return "GTC"
}

// Execute submits one order per leg.
func (a *OpinionAdapter) Execute(ctx context.Context, legs []router.Leg, opts router.ExecutionOptions) (router.ExecutionResult, error) {
	ids := make([]string, 0, len(legs))
	for _, l := range legs {
		if err := a.wait(ctx); err != nil {
			return router.ExecutionResult{}, err
		}
		var body opinionOrderResponse
		resp, err := a.client.R().
			SetContext(ctx).
			SetBody(opinionOrderRequest{
				MarketID: l.TokenID,
				Side:     string(l.Side),
				Price:    fmt.Sprintf("%.6f", l.LimitPrice),
				Shares:   fmt.Sprintf("%.6f", l.Size),
				TIF:      tifFor(opts),
			}).
			SetResult(&body).
			Post("/orders")
		if err != nil {
			return router.ExecutionResult{Venue: router.VenueOpinion, OrderIDs: ids, Legs: legs}, fmt.Errorf("opinion: submit order: %w", err)
		}
		if resp.IsError() {
			return router.ExecutionResult{Venue: router.VenueOpinion, OrderIDs: ids, Legs: legs}, fmt.Errorf("opinion: submit order: status %d", resp.StatusCode())
		}
		ids = append(ids, body.ID)
	}
	return router.ExecutionResult{Venue: router.VenueOpinion, OrderIDs: ids, Legs: legs}, nil
}

// CancelOrders best-effort cancels every order id.
func (a *OpinionAdapter) CancelOrders(ctx context.Context, orderIDs []string) error {
	for _, id := range orderIDs {
		if err := a.wait(ctx); err != nil {
			return err
		}
		if _, err := a.client.R().SetContext(ctx).Delete("/orders/" + id); err != nil {
			return fmt.Errorf("opinion: cancel %s: %w", id, err)
		}
	}
	return nil
}

type opinionOrderStatus struct {
	Status string `json:"status"`
}

// CheckOpenOrders returns the subset of orderIDs still open.
func (a *OpinionAdapter) CheckOpenOrders(ctx context.Context, orderIDs []string) ([]string, error) {
	var still []string
	for _, id := range orderIDs {
		if err := a.wait(ctx); err != nil {
			return still, err
		}
		var body opinionOrderStatus
		resp, err := a.client.R().SetContext(ctx).SetResult(&body).Get("/orders/" + id)
		if err != nil || resp.IsError() {
			continue
		}
		if body.Status == "open" || body.Status == "partial" {
			still = append(still, id)
		}
	}
	return still, nil
}

// HedgeLegs submits opposite-side FOK orders.
func (a *OpinionAdapter) HedgeLegs(ctx context.Context, legs []router.Leg, slippageBps float64) (router.ExecutionResult, error) {
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
