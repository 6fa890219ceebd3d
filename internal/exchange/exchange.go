// Package exchange defines the futures venue the bot trades against and the
// order, position and market records it exchanges with it.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Side is the direction of an order; for positions buy means long.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the side that reduces a position opened with s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Validate reports an error unless s is buy or sell.
func (s Side) Validate() error {
	if s != Buy && s != Sell {
		return fmt.Errorf("invalid side %q", string(s))
	}
	return nil
}

// SideFromContracts maps a signed contract count to the position side.
func SideFromContracts(contracts float64) Side {
	if contracts < 0 {
		return Sell
	}
	return Buy
}

// OrderType is market or limit; a limit order with a StopPrice is a stop-limit.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus is the normalized order state.
type OrderStatus string

const (
	StatusOpen     OrderStatus = "open"
	StatusClosed   OrderStatus = "closed"
	StatusCanceled OrderStatus = "canceled"
	StatusRejected OrderStatus = "rejected"
	StatusExpired  OrderStatus = "expired"
)

// OrderRequest is everything needed to submit one order.
type OrderRequest struct {
	Symbol        string
	Type          OrderType
	Side          Side
	Amount        float64
	Price         float64 // limit price; zero for market orders
	StopPrice     float64 // trigger; zero unless stop-limit
	ReduceOnly    bool
	Leverage      int // zero leaves the account setting untouched
	ClientOrderID string
}

// Order is an order as reported by the exchange.
type Order struct {
	ID            string      `json:"id"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
	Symbol        string      `json:"symbol"`
	Type          OrderType   `json:"type"`
	Side          Side        `json:"side"`
	Amount        float64     `json:"amount"`
	Filled        float64     `json:"filled"`
	Price         float64     `json:"price,omitempty"`
	Average       float64     `json:"average,omitempty"`
	StopPrice     float64     `json:"stop_price,omitempty"`
	ReduceOnly    bool        `json:"reduce_only"`
	Status        OrderStatus `json:"status"`
}

// HasStopTrigger reports whether the order waits on a stop price.
func (o Order) HasStopTrigger() bool { return o.StopPrice > 0 }

// Position is the net position on a symbol. Contracts is signed: short < 0.
type Position struct {
	Symbol        string  `json:"symbol"`
	Contracts     float64 `json:"contracts"`
	EntryPrice    float64 `json:"entry_price"`
	MarkPrice     float64 `json:"mark_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Leverage      int     `json:"leverage"`
}

// Candle is one OHLCV bar keyed by its open time.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Market is the price and lot grid metadata of a symbol. Zero values mean absent.
type Market struct {
	Symbol         string  `json:"symbol"`
	TickSize       float64 `json:"tick_size,omitempty"`
	PricePrecision *int    `json:"price_precision,omitempty"`
	PriceStep      float64 `json:"price_step,omitempty"`
	QtyStep        float64 `json:"qty_step,omitempty"`
	MinQty         float64 `json:"min_qty,omitempty"`
}

// Exchange is the futures venue used by the bot.
type Exchange interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	// CancelOrder fails with ErrOrderNotFound, ErrInvalidOrder or
	// ErrOrderNotOpen when there is nothing left to cancel.
	CancelOrder(ctx context.Context, id, symbol string) (*Order, error)
	FetchOpenOrders(ctx context.Context, symbol string) ([]Order, error)
	FetchPositions(ctx context.Context, symbols ...string) ([]Position, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	Market(ctx context.Context, symbol string) (*Market, error)
}

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrInvalidOrder  = errors.New("invalid order")
	ErrOrderNotOpen  = errors.New("order not open")
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrNoPrice       = errors.New("no price for symbol")
)

// IsBenignCancel reports whether a cancel error means the order is already gone.
func IsBenignCancel(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrInvalidOrder) || errors.Is(err, ErrOrderNotOpen)
}
