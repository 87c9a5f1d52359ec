package venue

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/arbrouter/internal/orderbook"
	"github.com/sawpanic/arbrouter/internal/router"
)

// PolymarketAdapter submits signed orders over REST (a secp256k1
// signature over the Keccak-256 hash of the order's JSON fields, not an
// EIP-712 typed-data digest) and, while StreamBooks runs, keeps its
// book cache warm from a gorilla/websocket market-data stream,
// the way the teacher's internal/exchanges/binance.go pairs a resty
// REST client with a background websocket reader feeding a shared
// cache. Order signing uses go-ethereum's crypto package the same way
// the teacher's on-chain settlement path does.
type PolymarketAdapter struct {
	client  *resty.Client
	privKey *ecdsa.PrivateKey
	address string

	mu    sync.RWMutex
	books map[string]orderbook.RawBook

	wsURL string
}

// NewPolymarketAdapter builds a client signing orders with privKeyHex
// (hex-encoded, no 0x prefix) and streaming book updates from wsURL.
func NewPolymarketAdapter(baseURL, wsURL, privKeyHex string) (*PolymarketAdapter, error) {
	key, err := crypto.HexToECDSA(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("polymarket: parse private key: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	client := resty.New().SetBaseURL(baseURL)
	return &PolymarketAdapter{
		client:  client,
		privKey: key,
		address: addr.Hex(),
		books:   make(map[string]orderbook.RawBook),
		wsURL:   wsURL,
	}, nil
}

// StreamBooks connects to the websocket feed and keeps the book cache
// updated until ctx is cancelled or a read fails; it does not
// reconnect, and returns the read error. Runs in its own goroutine.
func (a *PolymarketAdapter) StreamBooks(ctx context.Context, tokenIDs []string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket: dial ws: %w", err)
	}
	defer conn.Close()

	sub := map[string]any{"type": "subscribe", "assets_ids": tokenIDs}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("polymarket: subscribe: %w", err)
	}

	type wsBookMessage struct {
		AssetID string      `json:"asset_id"`
		Bids    [][2]string `json:"bids"`
		Asks    [][2]string `json:"asks"`
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var msg wsBookMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("polymarket: websocket read failed, stream stopped")
			return err
		}
		a.mu.Lock()
		a.books[msg.AssetID] = toRawBook(msg.Bids, msg.Asks)
		a.mu.Unlock()
	}
}

// FetchBook returns the last websocket-pushed book for tokenID,
// falling back to a REST snapshot on a cache miss.
func (a *PolymarketAdapter) FetchBook(ctx context.Context, _ router.Venue, tokenID string) (orderbook.RawBook, error) {
	a.mu.RLock()
	book, ok := a.books[tokenID]
	a.mu.RUnlock()
	if ok {
		return book, nil
	}

	var body struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	resp, err := a.client.R().SetContext(ctx).SetQueryParam("token_id", tokenID).SetResult(&body).Get("/book")
	if err != nil {
		return orderbook.RawBook{}, fmt.Errorf("polymarket: fetch book: %w", err)
	}
	if resp.IsError() {
		return orderbook.RawBook{}, fmt.Errorf("polymarket: fetch book: status %d", resp.StatusCode())
	}
	return toRawBook(body.Bids, body.Asks), nil
}

// signedOrder is the order payload submitted to Polymarket; Signature
// is the adapter key's signature over the Keccak-256 hash of the JSON
// encoding of its token, side, price, size and salt fields.
type signedOrder struct {
	TokenID   string `json:"tokenId"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	OrderType string `json:"orderType"`
	Salt      int64  `json:"salt"`
	Signature string `json:"signature"`
}

func (a *PolymarketAdapter) sign(o signedOrder) (signedOrder, error) {
	payload, err := json.Marshal(struct {
		TokenID string `json:"tokenId"`
		Side    string `json:"side"`
		Price   string `json:"price"`
		Size    string `json:"size"`
		Salt    int64  `json:"salt"`
	}{o.TokenID, o.Side, o.Price, o.Size, o.Salt})
	if err != nil {
		return o, err
	}
	hash := crypto.Keccak256Hash(payload)
	sig, err := crypto.Sign(hash.Bytes(), a.privKey)
	if err != nil {
		return o, fmt.Errorf("polymarket: sign order: %w", err)
	}
	o.Signature = fmt.Sprintf("0x%x", sig)
	return o, nil
}

type polymarketOrderResponse struct {
	OrderID string `json:"orderId"`
}

// Execute signs and submits one order per leg.
func (a *PolymarketAdapter) Execute(ctx context.Context, legs []router.Leg, opts router.ExecutionOptions) (router.ExecutionResult, error) {
	ids := make([]string, 0, len(legs))
	for i, l := range legs {
		order, err := a.sign(signedOrder{
			TokenID:   l.TokenID,
			Side:      string(l.Side),
			Price:     fmt.Sprintf("%.6f", l.LimitPrice),
			Size:      fmt.Sprintf("%.6f", l.Size),
			OrderType: opts.OrderType,
			Salt:      time.Now().UnixNano() + int64(i),
		})
		if err != nil {
			return router.ExecutionResult{Venue: router.VenuePolymarket, OrderIDs: ids, Legs: legs}, err
		}
		var body polymarketOrderResponse
		resp, err := a.client.R().SetContext(ctx).SetBody(order).SetResult(&body).Post("/orders")
		if err != nil {
			return router.ExecutionResult{Venue: router.VenuePolymarket, OrderIDs: ids, Legs: legs}, fmt.Errorf("polymarket: submit order: %w", err)
		}
		if resp.IsError() {
			return router.ExecutionResult{Venue: router.VenuePolymarket, OrderIDs: ids, Legs: legs}, fmt.Errorf("polymarket: submit order: status %d", resp.StatusCode())
		}
		ids = append(ids, body.OrderID)
	}
	return router.ExecutionResult{Venue: router.VenuePolymarket, OrderIDs: ids, Legs: legs}, nil
}

// CancelOrders best-effort cancels every order id.
func (a *PolymarketAdapter) CancelOrders(ctx context.Context, orderIDs []string) error {
	for _, id := range orderIDs {
		if _, err := a.client.R().SetContext(ctx).Delete("/orders/" + id); err != nil {
			return fmt.Errorf("polymarket: cancel %s: %w", id, err)
		}
	}
	return nil
}

type polymarketOrderStatus struct {
	Open bool `json:"open"`
}

// CheckOpenOrders returns the subset of orderIDs still open.
func (a *PolymarketAdapter) CheckOpenOrders(ctx context.Context, orderIDs []string) ([]string, error) {
	var still []string
	for _, id := range orderIDs {
		var body polymarketOrderStatus
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

// HedgeLegs signs and submits opposite-side FOK orders.
func (a *PolymarketAdapter) HedgeLegs(ctx context.Context, legs []router.Leg, slippageBps float64) (router.ExecutionResult, error) {
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
