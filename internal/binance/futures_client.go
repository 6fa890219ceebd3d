package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// ==================== ACCOUNT ====================

// GetPositionRisk retrieves positions for a symbol (all symbols when empty)
func (c *FuturesClientImpl) GetPositionRisk(ctx context.Context, symbol string) ([]FuturesPosition, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	resp, err := c.signedGet(ctx, "/fapi/v2/positionRisk", params)
	if err != nil {
		return nil, fmt.Errorf("error fetching positions: %w", err)
	}

	var positions []FuturesPosition
	if err := json.Unmarshal(resp, &positions); err != nil {
		return nil, fmt.Errorf("error parsing positions: %w", err)
	}
	return positions, nil
}

// SetLeverage sets the leverage for a symbol (1-125x)
func (c *FuturesClientImpl) SetLeverage(ctx context.Context, symbol string, leverage int) (*LeverageResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))

	resp, err := c.signedPost(ctx, "/fapi/v1/leverage", params)
	if err != nil {
		return nil, fmt.Errorf("error setting leverage: %w", err)
	}

	var result LeverageResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("error parsing leverage response: %w", err)
	}
	return &result, nil
}

// ==================== TRADING ====================

// PlaceOrder places a new futures order. The RESULT response type is
// requested so market orders come back with their fill price.
func (c *FuturesClientImpl) PlaceOrder(ctx context.Context, p FuturesOrderParams) (*FuturesOrder, error) {
	params := url.Values{}
	params.Set("symbol", p.Symbol)
	params.Set("side", p.Side)
	params.Set("type", string(p.Type))
	params.Set("quantity", formatFloat(p.Quantity))
	params.Set("newOrderRespType", "RESULT")

	if p.Price > 0 {
		params.Set("price", formatFloat(p.Price))
	}
	if p.TimeInForce != "" {
		params.Set("timeInForce", string(p.TimeInForce))
	} else if p.Type == FuturesOrderTypeLimit {
		params.Set("timeInForce", string(TimeInForceGTC))
	}
	if p.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	if p.NewClientOrderId != "" {
		params.Set("newClientOrderId", p.NewClientOrderId)
	}

	resp, err := c.signedPost(ctx, "/fapi/v1/order", params)
	if err != nil {
		return nil, fmt.Errorf("error placing order: %w", err)
	}

	var order FuturesOrder
	if err := json.Unmarshal(resp, &order); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}
	return &order, nil
}

// CancelOrder cancels an existing futures order and returns its final state
func (c *FuturesClientImpl) CancelOrder(ctx context.Context, symbol string, orderID int64) (*FuturesOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	resp, err := c.signedDelete(ctx, "/fapi/v1/order", params)
	if err != nil {
		return nil, fmt.Errorf("error canceling order: %w", err)
	}

	var order FuturesOrder
	if err := json.Unmarshal(resp, &order); err != nil {
		return nil, fmt.Errorf("error parsing cancel response: %w", err)
	}
	return &order, nil
}

// CancelAllOrders cancels all open regular orders for a symbol
func (c *FuturesClientImpl) CancelAllOrders(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)

	if _, err := c.signedDelete(ctx, "/fapi/v1/allOpenOrders", params); err != nil {
		return fmt.Errorf("error canceling all orders: %w", err)
	}
	return nil
}

// GetOpenOrders retrieves all open orders for a symbol
func (c *FuturesClientImpl) GetOpenOrders(ctx context.Context, symbol string) ([]FuturesOrder, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	resp, err := c.signedGet(ctx, "/fapi/v1/openOrders", params)
	if err != nil {
		return nil, fmt.Errorf("error fetching open orders: %w", err)
	}

	var orders []FuturesOrder
	if err := json.Unmarshal(resp, &orders); err != nil {
		return nil, fmt.Errorf("error parsing open orders: %w", err)
	}
	return orders, nil
}

// ==================== ALGO ORDERS ====================

// PlaceAlgoOrder places a conditional order. Stop and take-profit order types
// are only accepted by the algo service.
func (c *FuturesClientImpl) PlaceAlgoOrder(ctx context.Context, p AlgoOrderParams) (*AlgoOrder, error) {
	params := url.Values{}
	params.Set("algoType", string(AlgoTypeConditional))
	params.Set("symbol", p.Symbol)
	params.Set("side", p.Side)
	params.Set("type", string(p.Type))
	params.Set("quantity", formatFloat(p.Quantity))
	params.Set("triggerPrice", formatFloat(p.TriggerPrice))

	if p.Price > 0 {
		params.Set("price", formatFloat(p.Price))
	}
	if p.TimeInForce != "" {
		params.Set("timeInForce", string(p.TimeInForce))
	}
	if p.WorkingType != "" {
		params.Set("workingType", string(p.WorkingType))
	}
	if p.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	if p.ClientAlgoId != "" {
		params.Set("clientAlgoId", p.ClientAlgoId)
	}

	resp, err := c.signedPost(ctx, "/fapi/v1/algoOrder", params)
	if err != nil {
		return nil, fmt.Errorf("error placing algo order: %w", err)
	}

	var order AlgoOrder
	if err := json.Unmarshal(resp, &order); err != nil {
		return nil, fmt.Errorf("error parsing algo order response: %w", err)
	}
	return &order, nil
}

// GetOpenAlgoOrders retrieves all open algo orders
func (c *FuturesClientImpl) GetOpenAlgoOrders(ctx context.Context, symbol string) ([]AlgoOrder, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	resp, err := c.signedGet(ctx, "/fapi/v1/openAlgoOrders", params)
	if err != nil {
		return nil, fmt.Errorf("error fetching open algo orders: %w", err)
	}

	var orders []AlgoOrder
	if err := json.Unmarshal(resp, &orders); err != nil {
		return nil, fmt.Errorf("error parsing open algo orders: %w (response: %s)", err, string(resp))
	}
	return orders, nil
}

// CancelAlgoOrder cancels an algo order
func (c *FuturesClientImpl) CancelAlgoOrder(ctx context.Context, symbol string, algoID int64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("algoId", strconv.FormatInt(algoID, 10))

	if _, err := c.signedDelete(ctx, "/fapi/v1/algoOrder", params); err != nil {
		return fmt.Errorf("error canceling algo order: %w", err)
	}
	return nil
}

// CancelAllAlgoOrders cancels all open algo orders for a symbol
func (c *FuturesClientImpl) CancelAllAlgoOrders(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)

	if _, err := c.signedDelete(ctx, "/fapi/v1/algoOpenOrders", params); err != nil {
		return fmt.Errorf("error canceling all algo orders: %w", err)
	}
	return nil
}

// ==================== MARKET DATA ====================

// GetKlines retrieves candlestick data, oldest first
func (c *FuturesClientImpl) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	resp, err := c.publicGet(ctx, "/fapi/v1/klines", params)
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(resp, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	klines := make([]Kline, 0, len(rawKlines))
	for _, raw := range rawKlines {
		if len(raw) < 7 {
			return nil, fmt.Errorf("error parsing klines: short row of %d fields", len(raw))
		}
		klines = append(klines, Kline{
			OpenTime:  int64(parseFloat(raw[0])),
			Open:      parseFloat(raw[1]),
			High:      parseFloat(raw[2]),
			Low:       parseFloat(raw[3]),
			Close:     parseFloat(raw[4]),
			Volume:    parseFloat(raw[5]),
			CloseTime: int64(parseFloat(raw[6])),
		})
	}
	return klines, nil
}

// GetTickerPrice retrieves the last traded price for a symbol
func (c *FuturesClientImpl) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	resp, err := c.publicGet(ctx, "/fapi/v1/ticker/price", params)
	if err != nil {
		return 0, fmt.Errorf("error fetching price: %w", err)
	}

	var priceResp struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price,string"`
	}
	if err := json.Unmarshal(resp, &priceResp); err != nil {
		return 0, fmt.Errorf("error parsing price: %w", err)
	}
	return priceResp.Price, nil
}

// ==================== EXCHANGE INFO ====================

// GetExchangeInfo retrieves futures exchange information
func (c *FuturesClientImpl) GetExchangeInfo(ctx context.Context) (*FuturesExchangeInfo, error) {
	resp, err := c.publicGet(ctx, "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return nil, fmt.Errorf("error fetching exchange info: %w", err)
	}

	var info FuturesExchangeInfo
	if err := json.Unmarshal(resp, &info); err != nil {
		return nil, fmt.Errorf("error parsing exchange info: %w", err)
	}
	return &info, nil
}

// Ensure FuturesClientImpl implements FuturesClient
var _ FuturesClient = (*FuturesClientImpl)(nil)
