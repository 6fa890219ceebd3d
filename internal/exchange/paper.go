package exchange

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const contractEpsilon = 1e-12

// Paper is an in-memory futures venue for dry runs and tests. Market orders
// fill at the last known price; limit and stop-limit orders rest until a
// later price update crosses them. Market data may be delegated to a live feed.
type Paper struct {
	mu sync.Mutex

	feed   Exchange
	logger zerolog.Logger

	prices    map[string]float64
	positions map[string]*Position
	orders    map[string]*paperOrder
	candles   map[string][]Candle
	markets   map[string]*Market
	leverage  map[string]int
	nextID    int64
	seq       int64
}

type paperOrder struct {
	Order
	seq int64
}

// NewPaper creates an empty paper venue. feed, when non-nil, serves candles
// and market metadata, and every candle fetch moves the paper price to the
// last close.
func NewPaper(feed Exchange, logger zerolog.Logger) *Paper {
	return &Paper{
		feed:      feed,
		logger:    logger.With().Str("component", "exchange").Str("venue", "paper").Logger(),
		prices:    make(map[string]float64),
		positions: make(map[string]*Position),
		orders:    make(map[string]*paperOrder),
		candles:   make(map[string][]Candle),
		markets:   make(map[string]*Market),
		leverage:  make(map[string]int),
		nextID:    1000,
	}
}

// SetMarket registers grid metadata for a symbol.
func (p *Paper) SetMarket(m Market) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markets[m.Symbol] = &m
}

// SetCandles replaces the local candle history for symbol/timeframe.
func (p *Paper) SetCandles(symbol, timeframe string, candles []Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candles[symbol+"|"+timeframe] = append([]Candle(nil), candles...)
}

// SetPrice moves the last price and fills any resting order it crosses.
func (p *Paper) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
	p.matchLocked(symbol, price)
}

// Price returns the last price of symbol.
func (p *Paper) Price(symbol string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	return price, ok
}

// SetPosition seeds a position, as if opened before the bot started.
func (p *Paper) SetPosition(pos Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if math.Abs(pos.Contracts) < contractEpsilon {
		delete(p.positions, pos.Symbol)
		return
	}
	p.positions[pos.Symbol] = &pos
}

// CreateOrder implements Exchange.
func (p *Paper) CreateOrder(_ context.Context, req OrderRequest) (*Order, error) {
	if err := req.Side.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidOrder)
	}
	if req.Type != OrderTypeMarket && req.Type != OrderTypeLimit {
		return nil, fmt.Errorf("%w: unsupported order type %q", ErrInvalidOrder, req.Type)
	}
	if req.Type == OrderTypeLimit && req.Price <= 0 {
		return nil, fmt.Errorf("%w: limit price must be positive", ErrInvalidOrder)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Leverage > 0 {
		p.leverage[req.Symbol] = req.Leverage
	}

	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	p.seq++
	o := &paperOrder{
		Order: Order{
			ID:            strconv.FormatInt(p.nextID, 10),
			ClientOrderID: clientID,
			Symbol:        req.Symbol,
			Type:          req.Type,
			Side:          req.Side,
			Amount:        req.Amount,
			Price:         req.Price,
			StopPrice:     req.StopPrice,
			ReduceOnly:    req.ReduceOnly,
			Status:        StatusOpen,
		},
		seq: p.seq,
	}
	p.nextID++

	last, hasPrice := p.prices[req.Symbol]

	if req.Type == OrderTypeMarket {
		if !hasPrice {
			return nil, fmt.Errorf("%w: %s", ErrNoPrice, req.Symbol)
		}
		if req.ReduceOnly && !p.reducesLocked(o.Symbol, o.Side) {
			return nil, fmt.Errorf("%w: reduce-only order would increase position", ErrInvalidOrder)
		}
		p.fillLocked(o, last)
		p.orders[o.ID] = o
		out := o.Order
		return &out, nil
	}

	p.orders[o.ID] = o
	out := o.Order
	return &out, nil
}

// CancelOrder implements Exchange.
func (p *Paper) CancelOrder(_ context.Context, id, symbol string) (*Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if o.Symbol != symbol {
		return nil, fmt.Errorf("%w: order %s is on %s", ErrInvalidOrder, id, o.Symbol)
	}
	if o.Status != StatusOpen {
		return nil, fmt.Errorf("%w: order %s is %s", ErrOrderNotOpen, id, o.Status)
	}
	o.Status = StatusCanceled
	out := o.Order
	return &out, nil
}

// FetchOpenOrders implements Exchange, oldest first.
func (p *Paper) FetchOpenOrders(_ context.Context, symbol string) ([]Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openLocked(symbol), nil
}

// FetchPositions implements Exchange. Flat symbols are omitted.
func (p *Paper) FetchPositions(_ context.Context, symbols ...string) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}

	out := make([]Position, 0, len(p.positions))
	for sym, pos := range p.positions {
		if len(want) > 0 && !want[sym] {
			continue
		}
		cp := *pos
		if last, ok := p.prices[sym]; ok {
			cp.MarkPrice = last
			cp.UnrealizedPnL = (last - cp.EntryPrice) * cp.Contracts
		}
		cp.Leverage = p.leverage[sym]
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// FetchOHLCV implements Exchange.
func (p *Paper) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	if p.feed != nil {
		candles, err := p.feed.FetchOHLCV(ctx, symbol, timeframe, limit)
		if err != nil {
			return nil, err
		}
		if n := len(candles); n > 0 {
			p.SetPrice(symbol, candles[n-1].Close)
		}
		return candles, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	candles := p.candles[symbol+"|"+timeframe]
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return append([]Candle(nil), candles...), nil
}

// Market implements Exchange.
func (p *Paper) Market(ctx context.Context, symbol string) (*Market, error) {
	p.mu.Lock()
	m, ok := p.markets[symbol]
	p.mu.Unlock()
	if ok {
		cp := *m
		return &cp, nil
	}
	if p.feed != nil {
		return p.feed.Market(ctx, symbol)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
}

func (p *Paper) openLocked(symbol string) []Order {
	open := make([]*paperOrder, 0)
	for _, o := range p.orders {
		if o.Status == StatusOpen && (symbol == "" || o.Symbol == symbol) {
			open = append(open, o)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].seq < open[j].seq })

	out := make([]Order, len(open))
	for i, o := range open {
		out[i] = o.Order
	}
	return out
}

// matchLocked fills resting orders crossed by price, oldest first.
func (p *Paper) matchLocked(symbol string, price float64) {
	for _, o := range p.openLocked(symbol) {
		po := p.orders[o.ID]
		if !crosses(po.Order, price) {
			continue
		}
		if po.ReduceOnly && !p.reducesLocked(po.Symbol, po.Side) {
			po.Status = StatusExpired
			p.logger.Debug().Str("order_id", po.ID).Msg("Reduce-only order expired, nothing to reduce")
			continue
		}
		p.fillLocked(po, po.Price)
	}
}

func crosses(o Order, price float64) bool {
	if o.HasStopTrigger() {
		if o.Side == Sell {
			return price <= o.StopPrice
		}
		return price >= o.StopPrice
	}
	if o.Side == Sell {
		return price >= o.Price
	}
	return price <= o.Price
}

// reducesLocked reports whether an order on side shrinks the open position.
func (p *Paper) reducesLocked(symbol string, side Side) bool {
	pos, ok := p.positions[symbol]
	if !ok {
		return false
	}
	return (pos.Contracts > 0 && side == Sell) || (pos.Contracts < 0 && side == Buy)
}

func (p *Paper) fillLocked(o *paperOrder, price float64) {
	qty := o.Amount
	pos, ok := p.positions[o.Symbol]
	if !ok {
		pos = &Position{Symbol: o.Symbol}
		p.positions[o.Symbol] = pos
	}
	if o.ReduceOnly {
		qty = math.Min(qty, math.Abs(pos.Contracts))
	}

	delta := qty
	if o.Side == Sell {
		delta = -qty
	}

	old := pos.Contracts
	next := old + delta
	switch {
	case math.Abs(next) < contractEpsilon:
		delete(p.positions, o.Symbol)
	case old == 0 || (old > 0) != (next > 0):
		// opened or flipped
		pos.EntryPrice = price
		pos.Contracts = next
	case (old > 0) == (delta > 0):
		pos.EntryPrice = (pos.EntryPrice*math.Abs(old) + price*qty) / math.Abs(next)
		pos.Contracts = next
	default:
		pos.Contracts = next
	}

	o.Filled = qty
	o.Average = price
	o.Status = StatusClosed

	p.logger.Info().
		Str("order_id", o.ID).
		Str("symbol", o.Symbol).
		Str("side", string(o.Side)).
		Float64("qty", qty).
		Float64("price", price).
		Bool("reduce_only", o.ReduceOnly).
		Msg("Paper fill")
}

var _ Exchange = (*Paper)(nil)
