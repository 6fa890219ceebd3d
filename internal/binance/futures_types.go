package binance

// ==================== ENUMS ====================

// FuturesOrderType represents order types for futures
type FuturesOrderType string

const (
	FuturesOrderTypeLimit      FuturesOrderType = "LIMIT"
	FuturesOrderTypeMarket     FuturesOrderType = "MARKET"
	FuturesOrderTypeStop       FuturesOrderType = "STOP"
	FuturesOrderTypeStopMarket FuturesOrderType = "STOP_MARKET"
	FuturesOrderTypeTakeProfit FuturesOrderType = "TAKE_PROFIT"
)

// TimeInForce represents order time-in-force options
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC" // Good Till Cancel
	TimeInForceIOC TimeInForce = "IOC" // Immediate or Cancel
)

// FuturesOrderStatus represents order status
type FuturesOrderStatus string

const (
	FuturesOrderStatusNew             FuturesOrderStatus = "NEW"
	FuturesOrderStatusPartiallyFilled FuturesOrderStatus = "PARTIALLY_FILLED"
	FuturesOrderStatusFilled          FuturesOrderStatus = "FILLED"
	FuturesOrderStatusCanceled        FuturesOrderStatus = "CANCELED"
	FuturesOrderStatusRejected        FuturesOrderStatus = "REJECTED"
	FuturesOrderStatusExpired         FuturesOrderStatus = "EXPIRED"
)

// WorkingType for conditional orders
type WorkingType string

const (
	WorkingTypeContractPrice WorkingType = "CONTRACT_PRICE"
	WorkingTypeMarkPrice     WorkingType = "MARK_PRICE"
)

// ==================== POSITION TYPES ====================

// FuturesPosition represents a futures position from the positionRisk endpoint
type FuturesPosition struct {
	Symbol           string  `json:"symbol"`
	PositionAmt      float64 `json:"positionAmt,string"`
	EntryPrice       float64 `json:"entryPrice,string"`
	MarkPrice        float64 `json:"markPrice,string"`
	UnrealizedProfit float64 `json:"unRealizedProfit,string"`
	LiquidationPrice float64 `json:"liquidationPrice,string"`
	Leverage         int     `json:"leverage,string"`
	PositionSide     string  `json:"positionSide"`
	UpdateTime       int64   `json:"updateTime"`
}

// LeverageResponse represents response from setting leverage
type LeverageResponse struct {
	Leverage         int     `json:"leverage"`
	MaxNotionalValue float64 `json:"maxNotionalValue,string"`
	Symbol           string  `json:"symbol"`
}

// ==================== ORDER TYPES ====================

// FuturesOrderParams represents parameters for placing a futures order
type FuturesOrderParams struct {
	Symbol           string
	Side             string // BUY or SELL
	Type             FuturesOrderType
	Quantity         float64
	Price            float64
	TimeInForce      TimeInForce
	ReduceOnly       bool
	NewClientOrderId string
}

// FuturesOrder represents a futures order as returned by order, cancel and
// openOrders endpoints
type FuturesOrder struct {
	OrderId       int64   `json:"orderId"`
	Symbol        string  `json:"symbol"`
	Status        string  `json:"status"`
	ClientOrderId string  `json:"clientOrderId"`
	Price         float64 `json:"price,string"`
	AvgPrice      float64 `json:"avgPrice,string"`
	OrigQty       float64 `json:"origQty,string"`
	ExecutedQty   float64 `json:"executedQty,string"`
	TimeInForce   string  `json:"timeInForce"`
	Type          string  `json:"type"`
	ReduceOnly    bool    `json:"reduceOnly"`
	ClosePosition bool    `json:"closePosition"`
	Side          string  `json:"side"`
	StopPrice     float64 `json:"stopPrice,string"`
	UpdateTime    int64   `json:"updateTime"`
}

// ==================== ALGO ORDER TYPES ====================

// AlgoType for algo orders
type AlgoType string

const (
	AlgoTypeConditional AlgoType = "CONDITIONAL"
)

// AlgoOrderStatus represents algo order status
type AlgoOrderStatus string

const (
	AlgoOrderStatusNew       AlgoOrderStatus = "NEW"
	AlgoOrderStatusTriggered AlgoOrderStatus = "TRIGGERED"
	AlgoOrderStatusCancelled AlgoOrderStatus = "CANCELLED"
	AlgoOrderStatusExpired   AlgoOrderStatus = "EXPIRED"
)

// AlgoOrderParams represents parameters for a conditional (algo) order.
// Stop and take-profit orders go through /fapi/v1/algoOrder.
type AlgoOrderParams struct {
	Symbol       string
	Side         string
	Type         FuturesOrderType
	Quantity     float64
	Price        float64
	TriggerPrice float64
	TimeInForce  TimeInForce
	WorkingType  WorkingType
	ReduceOnly   bool
	ClientAlgoId string
}

// AlgoOrder represents an open, placed or cancelled algo order
type AlgoOrder struct {
	AlgoId       int64   `json:"algoId"`
	ClientAlgoId string  `json:"clientAlgoId"`
	AlgoType     string  `json:"algoType"`
	OrderType    string  `json:"orderType"`
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	AlgoStatus   string  `json:"algoStatus"`
	TriggerPrice float64 `json:"triggerPrice,string"`
	Price        float64 `json:"price,string"`
	Quantity     float64 `json:"quantity,string"`
	ReduceOnly   bool    `json:"reduceOnly"`
	CreateTime   int64   `json:"createTime"`
	UpdateTime   int64   `json:"updateTime"`
}

// ==================== MARKET DATA TYPES ====================

// Kline represents a candlestick
type Kline struct {
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
}

// ==================== SYMBOL INFO TYPES ====================

// FuturesSymbolFilter represents a filter from the symbol's filters array
type FuturesSymbolFilter struct {
	FilterType string `json:"filterType"`
	MinPrice   string `json:"minPrice,omitempty"`
	MaxPrice   string `json:"maxPrice,omitempty"`
	TickSize   string `json:"tickSize,omitempty"`
	MinQty     string `json:"minQty,omitempty"`
	MaxQty     string `json:"maxQty,omitempty"`
	StepSize   string `json:"stepSize,omitempty"`
}

// FuturesSymbolInfo represents futures symbol information
type FuturesSymbolInfo struct {
	Symbol            string                `json:"symbol"`
	Status            string                `json:"status"`
	ContractType      string                `json:"contractType"`
	BaseAsset         string                `json:"baseAsset"`
	QuoteAsset        string                `json:"quoteAsset"`
	PricePrecision    int                   `json:"pricePrecision"`
	QuantityPrecision int                   `json:"quantityPrecision"`
	Filters           []FuturesSymbolFilter `json:"filters"`
}

// Filter returns the filter of the given type, if present.
func (s *FuturesSymbolInfo) Filter(filterType string) (FuturesSymbolFilter, bool) {
	for _, f := range s.Filters {
		if f.FilterType == filterType {
			return f, true
		}
	}
	return FuturesSymbolFilter{}, false
}

// FuturesExchangeInfo represents futures exchange information
type FuturesExchangeInfo struct {
	ServerTime int64               `json:"serverTime"`
	Symbols    []FuturesSymbolInfo `json:"symbols"`
}

// Symbol returns the info block for symbol, if listed.
func (e *FuturesExchangeInfo) Symbol(symbol string) (*FuturesSymbolInfo, bool) {
	for i := range e.Symbols {
		if e.Symbols[i].Symbol == symbol {
			return &e.Symbols[i], true
		}
	}
	return nil, false
}
