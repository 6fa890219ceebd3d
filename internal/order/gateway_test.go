package order

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futures-trailing-bot/internal/exchange"
)

// scriptedExchange answers CreateOrder/CancelOrder from canned values.
type scriptedExchange struct {
	exchange.Exchange

	requests  []exchange.OrderRequest
	created   *exchange.Order
	createErr error
	cancelErr error
	canceled  *exchange.Order
}

func (s *scriptedExchange) CreateOrder(_ context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	s.requests = append(s.requests, req)
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.created, nil
}

func (s *scriptedExchange) CancelOrder(_ context.Context, id, symbol string) (*exchange.Order, error) {
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	if s.canceled != nil {
		return s.canceled, nil
	}
	return &exchange.Order{ID: id, Symbol: symbol, Status: exchange.StatusCanceled}, nil
}

func TestPlacementValidation(t *testing.T) {
	ex := &scriptedExchange{}
	g := NewGateway(ex, "BTCUSDT", zerolog.Nop())
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"bad side", func() error { _, err := g.PlaceMarket(ctx, "long", 1); return err }},
		{"zero size", func() error { _, err := g.PlaceMarket(ctx, exchange.Buy, 0); return err }},
		{"negative size", func() error { _, err := g.PlaceLimit(ctx, exchange.Buy, -1, 100); return err }},
		{"zero price", func() error { _, err := g.PlaceLimit(ctx, exchange.Sell, 1, 0); return err }},
		{"stop without trigger", func() error { _, err := g.PlaceStopLimit(ctx, exchange.Sell, 1, 95, 0); return err }},
		{"stop with bad price", func() error { _, err := g.PlaceStopLimit(ctx, exchange.Sell, 1, 0, 95); return err }},
		{"empty cancel id", func() error { _, err := g.Cancel(ctx, ""); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), ErrInvalidArgument)
		})
	}
	assert.Empty(t, ex.requests, "no request may reach the exchange")
}

func TestPlaceMarketWithOptions(t *testing.T) {
	ex := &scriptedExchange{created: &exchange.Order{ID: "1", Status: exchange.StatusClosed, Average: 100.1}}
	g := NewGateway(ex, "BTCUSDT", zerolog.Nop())

	o, err := g.PlaceMarket(context.Background(), exchange.Sell, 0.2, WithLeverage(3), WithReduceOnly())
	require.NoError(t, err)
	assert.Equal(t, 100.1, o.Average)

	require.Len(t, ex.requests, 1)
	req := ex.requests[0]
	assert.Equal(t, "BTCUSDT", req.Symbol)
	assert.Equal(t, exchange.OrderTypeMarket, req.Type)
	assert.Equal(t, 3, req.Leverage)
	assert.True(t, req.ReduceOnly)
	assert.NotEmpty(t, req.ClientOrderID)
}

func TestPlaceStopLimitCarriesTrigger(t *testing.T) {
	ex := &scriptedExchange{created: &exchange.Order{ID: "algo-9", Status: exchange.StatusOpen}}
	g := NewGateway(ex, "BTCUSDT", zerolog.Nop())

	_, err := g.PlaceStopLimit(context.Background(), exchange.Buy, 0.3, 29500, 29000, WithClientOrderID("fixed"))
	require.NoError(t, err)

	req := ex.requests[0]
	assert.Equal(t, exchange.OrderTypeLimit, req.Type)
	assert.Equal(t, 29500.0, req.Price)
	assert.Equal(t, 29000.0, req.StopPrice)
	assert.Equal(t, "fixed", req.ClientOrderID)
}

func TestVerifyRejectsBadResponses(t *testing.T) {
	tests := []struct {
		name    string
		created *exchange.Order
	}{
		{"nil response", nil},
		{"missing id", &exchange.Order{Status: exchange.StatusOpen}},
		{"rejected", &exchange.Order{ID: "1", Status: exchange.StatusRejected}},
		{"canceled on placement", &exchange.Order{ID: "1", Status: exchange.StatusCanceled}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGateway(&scriptedExchange{created: tt.created}, "BTCUSDT", zerolog.Nop())
			_, err := g.PlaceLimit(context.Background(), exchange.Sell, 1, 100)
			assert.ErrorIs(t, err, ErrOrderRejected)
		})
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	for _, benign := range []error{exchange.ErrOrderNotFound, exchange.ErrInvalidOrder, exchange.ErrOrderNotOpen} {
		g := NewGateway(&scriptedExchange{cancelErr: benign}, "BTCUSDT", zerolog.Nop())
		o, err := g.Cancel(context.Background(), "42")
		require.NoError(t, err)
		assert.Equal(t, "42", o.ID)
		assert.Equal(t, exchange.StatusCanceled, o.Status)
	}
}

func TestCancelPropagatesUnknownErrors(t *testing.T) {
	boom := errors.New("exchange unavailable")
	g := NewGateway(&scriptedExchange{cancelErr: boom}, "BTCUSDT", zerolog.Nop())
	_, err := g.Cancel(context.Background(), "42")
	assert.ErrorIs(t, err, boom)
}

func TestCancelAcceptsCanceledStatus(t *testing.T) {
	g := NewGateway(&scriptedExchange{}, "BTCUSDT", zerolog.Nop())
	o, err := g.Cancel(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusCanceled, o.Status)

	g = NewGateway(&scriptedExchange{canceled: &exchange.Order{ID: "7", Status: exchange.StatusRejected}}, "BTCUSDT", zerolog.Nop())
	_, err = g.Cancel(context.Background(), "7")
	assert.ErrorIs(t, err, ErrOrderRejected)
}

func TestCancelTwiceOnPaper(t *testing.T) {
	paper := exchange.NewPaper(nil, zerolog.Nop())
	paper.SetPrice("BTCUSDT", 100)
	g := NewGateway(paper, "BTCUSDT", zerolog.Nop())
	ctx := context.Background()

	o, err := g.PlaceLimit(ctx, exchange.Buy, 1, 90)
	require.NoError(t, err)

	_, err = g.Cancel(ctx, o.ID)
	require.NoError(t, err)
	again, err := g.Cancel(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusCanceled, again.Status)
}
