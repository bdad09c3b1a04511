package model

import (
	"time"

	"gorm.io/datatypes"
)

type SignalAction string

const (
	ActionBuy   SignalAction = "BUY"
	ActionSell  SignalAction = "SELL"
	ActionClose SignalAction = "CLOSE"
)

type SignalStatus string

const (
	SignalPending  SignalStatus = "PENDING"
	SignalExecuted SignalStatus = "EXECUTED"
	SignalRejected SignalStatus = "REJECTED"
	SignalFailed   SignalStatus = "FAILED"
)

// 解析后的标准交易信号，消费一次：先风控后执行
type TradeSignal struct {
	Symbol     string       `json:"symbol"`
	Action     SignalAction `json:"action"`
	Exchange   string       `json:"exchange"` // 为空时由Manager选最优价交易所
	OrderType  OrderType    `json:"order_type"`
	Quantity   float64      `json:"quantity"`
	Price      float64      `json:"price,omitempty"`
	StopLoss   float64      `json:"stop_loss,omitempty"`
	TakeProfit float64      `json:"take_profit,omitempty"`
	Leverage   int          `json:"leverage,omitempty"`
	Confidence float64      `json:"confidence"` // 0~100
	Strategy   string       `json:"strategy"`
	Timestamp  time.Time    `json:"timestamp"`
}

// 风控结论，Violations为空表示放行
type RiskCheckResult struct {
	Approved        bool     `json:"approved"`
	Violations      []string `json:"violations"`
	Recommendations []string `json:"recommendations"`
	RiskScore       float64  `json:"risk_score"` // violated/total*100
	CheckedAt       time.Time `json:"checked_at"`
}

// 单次执行的结果，主单必有，保护单尽力而为
type ExecutionResult struct {
	MainOrder       *OrderResult `json:"main_order,omitempty"`
	StopLossOrder   *OrderResult `json:"stop_loss_order,omitempty"`
	TakeProfitOrder *OrderResult `json:"take_profit_order,omitempty"`
	Warnings        []string     `json:"warnings,omitempty"`
	Error           string       `json:"error,omitempty"`
}

// 信号台账，一条入站信号一条记录，状态单向：PENDING -> EXECUTED|REJECTED|FAILED
type SignalRecord struct {
	ID         int64          `gorm:"column:id;primary_key" json:"id"`
	RawSignal  datatypes.JSON `gorm:"column:raw_signal;type:json" json:"raw_signal"`
	Signal     datatypes.JSON `gorm:"column:trade_signal;type:json" json:"trade_signal"`
	RiskResult datatypes.JSON `gorm:"column:risk_result;type:json" json:"risk_result"`
	Execution  datatypes.JSON `gorm:"column:execution;type:json" json:"execution,omitempty"`
	Symbol     string         `gorm:"column:symbol;index" json:"symbol"`
	Strategy   string         `gorm:"column:strategy" json:"strategy"`
	Status     SignalStatus   `gorm:"column:status;index" json:"status"`
	CreatedAt  time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (SignalRecord) TableName() string {
	return "signal_records"
}

// 成交台账，主单/止损/止盈/套利腿都会追加一条，只增不改
type TradeRecord struct {
	ID        uint        `gorm:"column:id;primary_key" json:"id"`
	OrderId   string      `gorm:"column:order_id" json:"order_id"`
	Exchange  string      `gorm:"column:exchange" json:"exchange"`
	Symbol    string      `gorm:"column:symbol;index" json:"symbol"`
	Side      OrderSide   `gorm:"column:side" json:"side"`
	OrderType OrderType   `gorm:"column:order_type" json:"order_type"`
	Price     float64     `gorm:"column:price" json:"price"`
	Quantity  float64     `gorm:"column:quantity" json:"quantity"`
	Profit    float64     `gorm:"column:profit" json:"profit"` // 已实现盈亏，未知时为0
	Strategy  string      `gorm:"column:strategy" json:"strategy"` // main / stop-loss / take-profit / arb-buy ...
	Status    OrderStatus `gorm:"column:status" json:"status"`
	CreatedAt time.Time   `gorm:"column:created_at" json:"created_at"`
}

func (TradeRecord) TableName() string {
	return "trade_records"
}
