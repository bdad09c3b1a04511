package consts

import "time"

const (
	// RequestId 请求id名称
	RequestId   = "request_id"
	UserID      = "user_id"
	JWTTokenCtx = "token_ctx"

	DateLayout   = "2006-01-02"
	TimeLayout   = "2006-01-02 15:04:05"
	TimeLayoutMs = "2006-01-02 15:04:05.000"
)

const (
	// redis key 前缀
	SpreadSnapshotPrefix = "Spread_Snapshot:"
	TickerCachePrefix    = "Ticker_24h:"
	SignalFreqPrefix     = "Signal_Freq:"

	// 行情缓存过期时间
	RedisExrTicker = time.Second * 30
	RedisExrSpread = time.Second * 10
)

const (
	// 交易所名称，注册到Manager时使用
	ExchangeBinance = "binance"
	ExchangeOkx     = "okx"
	ExchangeGate    = "gate"
)

const (
	// 订单来源标记，写入成交台账用于区分主单和保护单
	StrategyTagMain       = "main"
	StrategyTagStopLoss   = "stop-loss"
	StrategyTagTakeProfit = "take-profit"
	StrategyTagArbBuy     = "arb-buy"
	StrategyTagArbSell    = "arb-sell"
	StrategyTagDca        = "dca"
	StrategyTagManual     = "manual"
)
