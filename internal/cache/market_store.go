package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"futures-trailing-bot/internal/exchange"
)

// MarketStore persists exchange market metadata so tick sizes survive
// restarts. Failures degrade to a miss.
type MarketStore struct {
	store  Store
	ttl    time.Duration
	logger zerolog.Logger
}

var _ exchange.MarketStore = (*MarketStore)(nil)

// NewMarketStore wraps store. A non-positive ttl uses DefaultMarketTTL.
func NewMarketStore(store Store, ttl time.Duration, logger zerolog.Logger) *MarketStore {
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return &MarketStore{
		store:  store,
		ttl:    ttl,
		logger: logger.With().Str("component", "market_store").Logger(),
	}
}

// GetMarket implements exchange.MarketStore.
func (s *MarketStore) GetMarket(ctx context.Context, symbol string) (*exchange.Market, bool) {
	raw, err := s.store.Get(ctx, MarketKey(symbol))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			s.logger.Debug().Err(err).Str("symbol", symbol).Msg("Market cache read failed")
		}
		return nil, false
	}

	var m exchange.Market
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Discarding malformed cached market")
		return nil, false
	}
	if m.Symbol != symbol {
		return nil, false
	}
	return &m, true
}

// SetMarket implements exchange.MarketStore.
func (s *MarketStore) SetMarket(ctx context.Context, m *exchange.Market) {
	if m == nil {
		return
	}
	if err := s.store.Set(ctx, MarketKey(m.Symbol), m, s.ttl); err != nil {
		s.logger.Debug().Err(err).Str("symbol", m.Symbol).Msg("Market cache write failed")
	}
}
