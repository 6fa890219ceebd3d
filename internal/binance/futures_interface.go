package binance

import "context"

// FuturesClient defines the Binance Futures API operations the bot relies on
type FuturesClient interface {
	// ==================== ACCOUNT ====================

	// GetPositionRisk retrieves positions; PositionAmt is signed (short < 0)
	GetPositionRisk(ctx context.Context, symbol string) ([]FuturesPosition, error)

	// SetLeverage sets the leverage for a symbol (1-125x)
	SetLeverage(ctx context.Context, symbol string, leverage int) (*LeverageResponse, error)

	// ==================== TRADING ====================

	PlaceOrder(ctx context.Context, params FuturesOrderParams) (*FuturesOrder, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*FuturesOrder, error)
	CancelAllOrders(ctx context.Context, symbol string) error
	GetOpenOrders(ctx context.Context, symbol string) ([]FuturesOrder, error)

	// ==================== ALGO ORDERS ====================

	// PlaceAlgoOrder places a conditional order (STOP, TAKE_PROFIT, ...)
	PlaceAlgoOrder(ctx context.Context, params AlgoOrderParams) (*AlgoOrder, error)
	GetOpenAlgoOrders(ctx context.Context, symbol string) ([]AlgoOrder, error)
	CancelAlgoOrder(ctx context.Context, symbol string, algoID int64) error
	CancelAllAlgoOrders(ctx context.Context, symbol string) error

	// ==================== MARKET DATA ====================

	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)
	GetExchangeInfo(ctx context.Context) (*FuturesExchangeInfo, error)
}
