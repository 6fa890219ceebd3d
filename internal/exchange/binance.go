package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"futures-trailing-bot/internal/binance"
	"futures-trailing-bot/internal/price"
)

const algoIDPrefix = "algo-"

// MarketStore caches market metadata between restarts. Implemented by the
// redis cache; nil disables caching beyond process memory.
type MarketStore interface {
	GetMarket(ctx context.Context, symbol string) (*Market, bool)
	SetMarket(ctx context.Context, m *Market)
}

// Binance adapts the Binance USDⓈ-M futures REST API to Exchange.
// Stop-limit orders go to the algo service and carry an "algo-" id prefix.
type Binance struct {
	client binance.FuturesClient
	store  MarketStore
	logger zerolog.Logger

	mu       sync.Mutex
	leverage map[string]int
	markets  map[string]*Market
}

// NewBinance wraps a futures client. store may be nil.
func NewBinance(client binance.FuturesClient, store MarketStore, logger zerolog.Logger) *Binance {
	return &Binance{
		client:   client,
		store:    store,
		logger:   logger.With().Str("component", "exchange").Str("venue", "binance").Logger(),
		leverage: make(map[string]int),
		markets:  make(map[string]*Market),
	}
}

// CreateOrder implements Exchange. The amount is floored to the symbol's lot
// step before it is sent.
func (b *Binance) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	amount, err := b.lotAmount(ctx, req.Symbol, req.Amount)
	if err != nil {
		return nil, err
	}
	req.Amount = amount

	if req.Leverage > 0 {
		if err := b.ensureLeverage(ctx, req.Symbol, req.Leverage); err != nil {
			return nil, err
		}
	}

	side := strings.ToUpper(string(req.Side))

	if req.StopPrice > 0 {
		algo, err := b.client.PlaceAlgoOrder(ctx, binance.AlgoOrderParams{
			Symbol:       req.Symbol,
			Side:         side,
			Type:         binance.FuturesOrderTypeStop,
			Quantity:     req.Amount,
			Price:        req.Price,
			TriggerPrice: req.StopPrice,
			TimeInForce:  binance.TimeInForceGTC,
			WorkingType:  binance.WorkingTypeContractPrice,
			ReduceOnly:   req.ReduceOnly,
			ClientAlgoId: req.ClientOrderID,
		})
		if err != nil {
			return nil, err
		}
		return fromAlgoOrder(*algo), nil
	}

	params := binance.FuturesOrderParams{
		Symbol:           req.Symbol,
		Side:             side,
		Type:             binance.FuturesOrderTypeMarket,
		Quantity:         req.Amount,
		ReduceOnly:       req.ReduceOnly,
		NewClientOrderId: req.ClientOrderID,
	}
	if req.Type == OrderTypeLimit {
		params.Type = binance.FuturesOrderTypeLimit
		params.Price = req.Price
		params.TimeInForce = binance.TimeInForceGTC
	}

	o, err := b.client.PlaceOrder(ctx, params)
	if err != nil {
		return nil, err
	}
	return fromFuturesOrder(*o), nil
}

func (b *Binance) lotAmount(ctx context.Context, symbol string, amount float64) (float64, error) {
	m, err := b.Market(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("market metadata for %s: %w", symbol, err)
	}
	qty, err := price.FloorQuantity(amount, m.QtyStep, m.MinQty)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}
	if qty != amount {
		b.logger.Debug().Str("symbol", symbol).Float64("requested", amount).Float64("quantity", qty).Msg("Quantity floored to lot step")
	}
	return qty, nil
}

// CancelOrder implements Exchange.
func (b *Binance) CancelOrder(ctx context.Context, id, symbol string) (*Order, error) {
	if rest, ok := strings.CutPrefix(id, algoIDPrefix); ok {
		algoID, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed algo id %q: %w", id, err)
		}
		if err := b.client.CancelAlgoOrder(ctx, symbol, algoID); err != nil {
			return nil, classifyCancelError(err)
		}
		return &Order{ID: id, Symbol: symbol, Status: StatusCanceled}, nil
	}

	orderID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed order id %q: %w", id, err)
	}
	o, err := b.client.CancelOrder(ctx, symbol, orderID)
	if err != nil {
		return nil, classifyCancelError(err)
	}
	return fromFuturesOrder(*o), nil
}

func classifyCancelError(err error) error {
	switch binance.ErrorCode(err) {
	case binance.CodeCancelRejected, binance.CodeNoSuchOrder:
		return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
	}
	return err
}

// FetchOpenOrders implements Exchange. Regular and algo orders are merged.
func (b *Binance) FetchOpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	var (
		regular []binance.FuturesOrder
		algo    []binance.AlgoOrder
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		regular, err = b.client.GetOpenOrders(gctx, symbol)
		return err
	})
	g.Go(func() error {
		var err error
		algo, err = b.client.GetOpenAlgoOrders(gctx, symbol)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	orders := make([]Order, 0, len(regular)+len(algo))
	for _, o := range regular {
		orders = append(orders, *fromFuturesOrder(o))
	}
	for _, o := range algo {
		orders = append(orders, *fromAlgoOrder(o))
	}
	return orders, nil
}

// FetchPositions implements Exchange.
func (b *Binance) FetchPositions(ctx context.Context, symbols ...string) ([]Position, error) {
	query := ""
	if len(symbols) == 1 {
		query = symbols[0]
	}
	raw, err := b.client.GetPositionRisk(ctx, query)
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}

	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		if len(want) > 0 && !want[p.Symbol] {
			continue
		}
		positions = append(positions, Position{
			Symbol:        p.Symbol,
			Contracts:     p.PositionAmt,
			EntryPrice:    p.EntryPrice,
			MarkPrice:     p.MarkPrice,
			UnrealizedPnL: p.UnrealizedProfit,
			Leverage:      p.Leverage,
		})
	}
	return positions, nil
}

// FetchOHLCV implements Exchange.
func (b *Binance) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	klines, err := b.client.GetKlines(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	candles := make([]Candle, len(klines))
	for i, k := range klines {
		candles[i] = Candle{
			Time:   time.UnixMilli(k.OpenTime).UTC(),
			Open:   k.Open,
			High:   k.High,
			Low:    k.Low,
			Close:  k.Close,
			Volume: k.Volume,
		}
	}
	return candles, nil
}

// Market implements Exchange. Results are cached in memory and in the store.
func (b *Binance) Market(ctx context.Context, symbol string) (*Market, error) {
	b.mu.Lock()
	m, ok := b.markets[symbol]
	b.mu.Unlock()
	if ok {
		return m, nil
	}

	if b.store != nil {
		if m, ok := b.store.GetMarket(ctx, symbol); ok {
			b.remember(m)
			return m, nil
		}
	}

	info, err := b.client.GetExchangeInfo(ctx)
	if err != nil {
		return nil, err
	}
	sym, ok := info.Symbol(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	precision := sym.PricePrecision
	m = &Market{Symbol: symbol, PricePrecision: &precision}
	if f, ok := sym.Filter("PRICE_FILTER"); ok {
		if m.TickSize, err = parseFilterValue("tick size", f.TickSize); err != nil {
			return nil, err
		}
	}
	if f, ok := sym.Filter("LOT_SIZE"); ok {
		if m.QtyStep, err = parseFilterValue("step size", f.StepSize); err != nil {
			return nil, err
		}
		if m.MinQty, err = parseFilterValue("min qty", f.MinQty); err != nil {
			return nil, err
		}
	}

	b.remember(m)
	if b.store != nil {
		b.store.SetMarket(ctx, m)
	}
	b.logger.Debug().
		Str("symbol", symbol).
		Float64("tick_size", m.TickSize).
		Int("price_precision", precision).
		Float64("qty_step", m.QtyStep).
		Float64("min_qty", m.MinQty).
		Msg("Loaded market metadata")
	return m, nil
}

func parseFilterValue(name, raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", name, raw, err)
	}
	f, _ := d.Float64()
	return f, nil
}

func (b *Binance) remember(m *Market) {
	b.mu.Lock()
	b.markets[m.Symbol] = m
	b.mu.Unlock()
}

func (b *Binance) ensureLeverage(ctx context.Context, symbol string, leverage int) error {
	b.mu.Lock()
	current := b.leverage[symbol]
	b.mu.Unlock()
	if current == leverage {
		return nil
	}

	if _, err := b.client.SetLeverage(ctx, symbol, leverage); err != nil {
		return fmt.Errorf("set leverage %dx on %s: %w", leverage, symbol, err)
	}

	b.mu.Lock()
	b.leverage[symbol] = leverage
	b.mu.Unlock()
	b.logger.Info().Str("symbol", symbol).Int("leverage", leverage).Msg("Leverage set")
	return nil
}

func fromFuturesOrder(o binance.FuturesOrder) *Order {
	orderType := OrderTypeMarket
	if o.Type != string(binance.FuturesOrderTypeMarket) {
		orderType = OrderTypeLimit
	}
	return &Order{
		ID:            strconv.FormatInt(o.OrderId, 10),
		ClientOrderID: o.ClientOrderId,
		Symbol:        o.Symbol,
		Type:          orderType,
		Side:          Side(strings.ToLower(o.Side)),
		Amount:        o.OrigQty,
		Filled:        o.ExecutedQty,
		Price:         o.Price,
		Average:       o.AvgPrice,
		StopPrice:     o.StopPrice,
		ReduceOnly:    o.ReduceOnly,
		Status:        mapOrderStatus(o.Status),
	}
}

func fromAlgoOrder(o binance.AlgoOrder) *Order {
	return &Order{
		ID:            algoIDPrefix + strconv.FormatInt(o.AlgoId, 10),
		ClientOrderID: o.ClientAlgoId,
		Symbol:        o.Symbol,
		Type:          OrderTypeLimit,
		Side:          Side(strings.ToLower(o.Side)),
		Amount:        o.Quantity,
		Price:         o.Price,
		StopPrice:     o.TriggerPrice,
		ReduceOnly:    o.ReduceOnly,
		Status:        mapAlgoStatus(o.AlgoStatus),
	}
}

func mapOrderStatus(s string) OrderStatus {
	switch binance.FuturesOrderStatus(s) {
	case binance.FuturesOrderStatusFilled:
		return StatusClosed
	case binance.FuturesOrderStatusCanceled:
		return StatusCanceled
	case binance.FuturesOrderStatusRejected:
		return StatusRejected
	case binance.FuturesOrderStatusExpired:
		return StatusExpired
	default:
		return StatusOpen
	}
}

func mapAlgoStatus(s string) OrderStatus {
	switch binance.AlgoOrderStatus(s) {
	case binance.AlgoOrderStatusTriggered:
		return StatusClosed
	case binance.AlgoOrderStatusCancelled:
		return StatusCanceled
	case binance.AlgoOrderStatusExpired:
		return StatusExpired
	default:
		return StatusOpen
	}
}

var _ Exchange = (*Binance)(nil)
