package model

import "time"

type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite 反方向，保护单使用
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

type OrderType string

const (
	// 市价单
	Market OrderType = "MARKET"
	// 限价单
	Limit OrderType = "LIMIT"
	// 市价止损单（触发价成交）
	StopMarket OrderType = "STOP_MARKET"
	// 限价止损单
	StopLimit OrderType = "STOP_LIMIT"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderFilled    OrderStatus = "FILLED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRejected  OrderStatus = "REJECTED"
)

// 统一的下单请求
// Symbol为内部标准格式：大写、计价币后缀，如 SOLUSDT
// 各交易所适配器负责转换为自己的写法（SOL-USDT / SOL_USDT）
type OrderRequest struct {
	Symbol      string
	Side        OrderSide
	Type        OrderType
	Quantity    float64
	Price       float64 // 限价单必填
	StopPrice   float64 // STOP_* 触发价
	TimeInForce string  // GTC/IOC，可空
	StrategyTag string  // 订单来源，落库用
}

// 统一的下单结果，返回后不再变化，后续状态需要重新查询
type OrderResult struct {
	OrderID      string
	Symbol       string
	Side         OrderSide
	Type         OrderType
	Status       OrderStatus
	RequestedQty float64
	Price        float64
	ExecutedQty  float64
	AvgPrice     float64
	Timestamp    time.Time
	Exchange     string
}

// 账户单币种余额，每次调用实时查询，核心内不做缓存
type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
	Total  float64 `json:"total"`
}

type AccountInfo struct {
	Exchange string    `json:"exchange"`
	CanTrade bool      `json:"can_trade"`
	Balances []Balance `json:"balances"`
	UpdateAt time.Time `json:"update_at"`
}

// 成交记录
type Trade struct {
	TradeID   string
	OrderID   string
	Symbol    string
	Side      OrderSide
	Price     float64
	Quantity  float64
	Fee       float64
	FeeAsset  string
	Timestamp time.Time
}
