// Package order issues validated orders for one symbol and normalizes the
// exchange's answers.
package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"futures-trailing-bot/internal/exchange"
	"futures-trailing-bot/internal/metrics"
)

var (
	// ErrInvalidArgument is returned before any network call for bad input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrOrderRejected is returned when the exchange answered without a usable order.
	ErrOrderRejected = errors.New("order rejected")
)

// Option adjusts an order request.
type Option func(*exchange.OrderRequest)

// WithReduceOnly marks the order as position-reducing only.
func WithReduceOnly() Option {
	return func(r *exchange.OrderRequest) { r.ReduceOnly = true }
}

// WithLeverage applies leverage to the symbol before placing.
func WithLeverage(n int) Option {
	return func(r *exchange.OrderRequest) { r.Leverage = n }
}

// WithClientOrderID overrides the generated client order id.
func WithClientOrderID(id string) Option {
	return func(r *exchange.OrderRequest) { r.ClientOrderID = id }
}

// Gateway is the only path from the bot to order placement and cancellation.
// It does not retry.
type Gateway struct {
	ex     exchange.Exchange
	symbol string
	logger zerolog.Logger
}

// NewGateway creates a gateway trading symbol on ex.
func NewGateway(ex exchange.Exchange, symbol string, logger zerolog.Logger) *Gateway {
	return &Gateway{
		ex:     ex,
		symbol: symbol,
		logger: logger.With().Str("component", "order-gateway").Str("symbol", symbol).Logger(),
	}
}

// Symbol returns the traded symbol.
func (g *Gateway) Symbol() string { return g.symbol }

// PlaceMarket submits a market order.
func (g *Gateway) PlaceMarket(ctx context.Context, side exchange.Side, size float64, opts ...Option) (*exchange.Order, error) {
	if err := validate(side, size); err != nil {
		return nil, err
	}
	return g.place(ctx, "market", exchange.OrderRequest{
		Type: exchange.OrderTypeMarket, Side: side, Amount: size,
	}, opts)
}

// PlaceLimit submits a resting limit order.
func (g *Gateway) PlaceLimit(ctx context.Context, side exchange.Side, size, price float64, opts ...Option) (*exchange.Order, error) {
	if err := validate(side, size); err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive, got %v", ErrInvalidArgument, price)
	}
	return g.place(ctx, "limit", exchange.OrderRequest{
		Type: exchange.OrderTypeLimit, Side: side, Amount: size, Price: price,
	}, opts)
}

// PlaceStopLimit submits a limit order that activates once stopPrice trades.
func (g *Gateway) PlaceStopLimit(ctx context.Context, side exchange.Side, size, price, stopPrice float64, opts ...Option) (*exchange.Order, error) {
	if err := validate(side, size); err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive, got %v", ErrInvalidArgument, price)
	}
	if stopPrice <= 0 {
		return nil, fmt.Errorf("%w: stop price must be positive, got %v", ErrInvalidArgument, stopPrice)
	}
	return g.place(ctx, "stop_limit", exchange.OrderRequest{
		Type: exchange.OrderTypeLimit, Side: side, Amount: size, Price: price, StopPrice: stopPrice,
	}, opts)
}

// Cancel cancels id. An order the exchange reports as already gone yields a
// synthetic canceled result instead of an error.
func (g *Gateway) Cancel(ctx context.Context, id string) (*exchange.Order, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: order id must not be empty", ErrInvalidArgument)
	}

	result, err := g.ex.CancelOrder(ctx, id, g.symbol)
	if err != nil {
		if exchange.IsBenignCancel(err) {
			g.logger.Info().Str("order_id", id).Err(err).Msg("Order already gone, treating cancel as done")
			metrics.Orders.WithLabelValues("cancel", "benign").Inc()
			return &exchange.Order{ID: id, Symbol: g.symbol, Status: exchange.StatusCanceled}, nil
		}
		g.logger.Error().Str("order_id", id).Err(err).Msg("Cancel failed")
		metrics.Orders.WithLabelValues("cancel", "error").Inc()
		return nil, fmt.Errorf("cancel order %s: %w", id, err)
	}

	if err := verify(result, false); err != nil {
		metrics.Orders.WithLabelValues("cancel", "rejected").Inc()
		return nil, fmt.Errorf("cancel order %s: %w", id, err)
	}

	g.logger.Info().Str("order_id", id).Str("status", string(result.Status)).Msg("Order canceled")
	metrics.Orders.WithLabelValues("cancel", "ok").Inc()
	return result, nil
}

func (g *Gateway) place(ctx context.Context, op string, req exchange.OrderRequest, opts []Option) (*exchange.Order, error) {
	req.Symbol = g.symbol
	for _, opt := range opts {
		opt(&req)
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}

	log := g.logger.With().
		Str("op", op).
		Str("side", string(req.Side)).
		Float64("size", req.Amount).
		Float64("price", req.Price).
		Float64("stop_price", req.StopPrice).
		Bool("reduce_only", req.ReduceOnly).
		Str("client_order_id", req.ClientOrderID).
		Logger()

	result, err := g.ex.CreateOrder(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("Order placement failed")
		metrics.Orders.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("place %s order: %w", op, err)
	}
	if err := verify(result, true); err != nil {
		log.Error().Err(err).Msg("Order placement rejected")
		metrics.Orders.WithLabelValues(op, "rejected").Inc()
		return nil, fmt.Errorf("place %s order: %w", op, err)
	}

	log.Info().Str("order_id", result.ID).Str("status", string(result.Status)).Msg("Order placed")
	metrics.Orders.WithLabelValues(op, "ok").Inc()
	return result, nil
}

// verify rejects responses without an id or with a terminal failure status.
// A canceled status only counts as failure for placements.
func verify(o *exchange.Order, placement bool) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("%w: response carries no order id", ErrOrderRejected)
	}
	if o.Status == exchange.StatusRejected {
		return fmt.Errorf("%w: order %s status %s", ErrOrderRejected, o.ID, o.Status)
	}
	if placement && o.Status == exchange.StatusCanceled {
		return fmt.Errorf("%w: order %s status %s", ErrOrderRejected, o.ID, o.Status)
	}
	return nil
}

func validate(side exchange.Side, size float64) error {
	if err := side.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %v", ErrInvalidArgument, size)
	}
	return nil
}
