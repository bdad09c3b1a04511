package model

import (
	"time"

	"gorm.io/plugin/soft_delete"
)

// 每个决策周期从K线计算出的指标快照，倍数引擎把它当作不可变输入
type DCAMarketSnapshot struct {
	CurrentPrice  float64 `json:"current_price"`
	EMA89         float64 `json:"ema_89"`
	RSI           float64 `json:"rsi"`
	Volatility    float64 `json:"volatility"`     // 百分比
	PricePosition float64 `json:"price_position"` // 当前价在历史区间的位置 0~100
	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	OBV           float64 `json:"obv"`
	OBVPrev       float64 `json:"obv_prev"`
	Support       float64 `json:"support"`
	Resistance    float64 `json:"resistance"`
}

// 倍数引擎的权重配置，五项之和必须为1.0
type MultiplierWeights struct {
	RSI           float64 `json:"rsi"`
	Volatility    float64 `json:"volatility"`
	PricePosition float64 `json:"price_position"`
	MACD          float64 `json:"macd"`
	SupportRes    float64 `json:"support_res"`
}

// DefaultMultiplierWeights 默认权重
func DefaultMultiplierWeights() MultiplierWeights {
	return MultiplierWeights{
		RSI:           0.20,
		Volatility:    0.25,
		PricePosition: 0.20,
		MACD:          0.15,
		SupportRes:    0.20,
	}
}

// 倍数计算的可读明细，仅用于展示和审计，不参与控制流
type MultiplierBreakdown struct {
	RSIScore        float64 `json:"rsi_score"`
	VolatilityScore float64 `json:"volatility_score"`
	PricePosScore   float64 `json:"price_pos_score"`
	MACDScore       float64 `json:"macd_score"`
	SupportResScore float64 `json:"support_res_score"`
	WeightedSum     float64 `json:"weighted_sum"`
	Final           float64 `json:"final"`
	Explanation     string  `json:"explanation"`
}

// 每个币对一条定投仓位配置，只由管道在 START/STOP/EXECUTE/RESET/UPDATE 时修改
// CurrentOrderIndex 从0单调递增到 MaxOrders，到达即视为完成
type DCAPosition struct {
	ID                uint                  `gorm:"column:id;primary_key" json:"id"`
	Symbol            string                `gorm:"column:symbol;uniqueIndex:uk_symbol" json:"symbol"`
	Exchange          string                `gorm:"column:exchange" json:"exchange"`
	IsActive          bool                  `gorm:"column:is_active" json:"is_active"`
	BaseAmount        float64               `gorm:"column:base_amount" json:"base_amount"`
	MaxOrders         int                   `gorm:"column:max_orders" json:"max_orders"`
	PriceDeviationPct float64               `gorm:"column:price_deviation_pct" json:"price_deviation_pct"`
	TakeProfitPct     float64               `gorm:"column:take_profit_pct" json:"take_profit_pct"`
	StopLossPct       float64               `gorm:"column:stop_loss_pct" json:"stop_loss_pct"`
	CurrentOrderIndex int                   `gorm:"column:current_order_index" json:"current_order_index"`
	TotalInvested     float64               `gorm:"column:total_invested" json:"total_invested"`
	SizeFactor        float64               `gorm:"column:size_factor;default:1" json:"size_factor"` // 历史倍数的累积，路径依赖
	LastEntryPrice    float64               `gorm:"column:last_entry_price" json:"last_entry_price"`
	LastCheckedAt     time.Time             `gorm:"column:last_checked_at" json:"last_checked_at"`
	CreatedAt         time.Time             `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time             `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt         soft_delete.DeletedAt `gorm:"column:deleted_at;uniqueIndex:uk_symbol" json:"-"`
}

func (DCAPosition) TableName() string {
	return "dca_positions"
}

// IsComplete 下满MaxOrders后不再加仓
func (p *DCAPosition) IsComplete() bool {
	return p.CurrentOrderIndex >= p.MaxOrders
}

// DCA单次执行的返回
type DCAExecuteResult struct {
	Symbol     string               `json:"symbol"`
	Executed   bool                 `json:"executed"`
	Reason     string               `json:"reason,omitempty"`
	OrderIndex int                  `json:"order_index"`
	Amount     float64              `json:"amount,omitempty"`
	Multiplier *MultiplierBreakdown `json:"multiplier,omitempty"`
	Order      *OrderResult         `json:"order,omitempty"`
}
