package model

import "time"

type RiskTier string

const (
	RiskLow    RiskTier = "LOW"
	RiskMedium RiskTier = "MEDIUM"
	RiskHigh   RiskTier = "HIGH"
)

type ArbStatus string

const (
	ArbPending   ArbStatus = "PENDING"
	ArbExecuted  ArbStatus = "EXECUTED"
	ArbFailed    ArbStatus = "FAILED"
	ArbCancelled ArbStatus = "CANCELLED"
)

// 检测到的套利机会，每轮检测重新计算，只读
type ArbitrageOpportunity struct {
	Symbol          string    `json:"symbol"`
	BuyExchange     string    `json:"buy_exchange"`
	SellExchange    string    `json:"sell_exchange"`
	BuyPrice        float64   `json:"buy_price"`
	SellPrice       float64   `json:"sell_price"`
	Spread          float64   `json:"spread"`
	SpreadPercent   float64   `json:"spread_percent"`
	EstimatedProfit float64   `json:"estimated_profit"`
	RiskTier        RiskTier  `json:"risk_tier"`
	DetectedAt      time.Time `json:"detected_at"`
}

// 一次双腿套利的执行记录
// 状态机：PENDING -> EXECUTED | FAILED，只变化一次，之后追加进台账不再修改
type ArbitrageTrade struct {
	ID              uint      `gorm:"column:id;primary_key" json:"-"`
	TradeID         string    `gorm:"column:trade_id;index" json:"id"`
	Symbol          string    `gorm:"column:symbol;index" json:"symbol"`
	BuyExchange     string    `gorm:"column:buy_exchange" json:"buy_exchange"`
	SellExchange    string    `gorm:"column:sell_exchange" json:"sell_exchange"`
	BuyPrice        float64   `gorm:"column:buy_price" json:"buy_price"`
	SellPrice       float64   `gorm:"column:sell_price" json:"sell_price"`
	Amount          float64   `gorm:"column:amount" json:"amount"`
	Profit          float64   `gorm:"column:profit" json:"profit"`
	ProfitPercent   float64   `gorm:"column:profit_percent" json:"profit_percent"`
	Status          ArbStatus `gorm:"column:status" json:"status"`
	Error           string    `gorm:"column:error" json:"error,omitempty"`
	ExecutionTimeMs int64     `gorm:"column:execution_time_ms" json:"execution_time_ms,omitempty"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
}

func (ArbitrageTrade) TableName() string {
	return "arbitrage_trades"
}

// 套利执行器的运行时状态快照，给dashboard用
type ArbitrageStatus struct {
	Enabled         bool       `json:"enabled"`
	ActiveTrades    int        `json:"active_trades"`
	MaxConcurrent   int        `json:"max_concurrent"`
	SystemRiskLevel RiskTier   `json:"system_risk_level"`
	TotalExecuted   int64      `json:"total_executed"`
	TotalFailed     int64      `json:"total_failed"`
	TotalProfit     float64    `json:"total_profit"`
	LastTradeAt     *time.Time `json:"last_trade_at,omitempty"`
}
