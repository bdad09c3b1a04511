package dca

import (
	"context"
	"math"

	"github.com/markcheno/go-talib"

	"spreadflow/internal/exchange"
	"spreadflow/internal/model"
	"spreadflow/pkg/errors"
	"spreadflow/pkg/errors/ecode"
)

// 指标计算至少需要的K线数量，EMA89是最长的周期
const minSnapshotKlines = 100

// BuildSnapshot 从K线序列计算指标快照
// K线要求oldest-first，由适配器保证
func BuildSnapshot(klines []model.Kline) (*model.DCAMarketSnapshot, error) {
	if len(klines) < minSnapshotKlines {
		return nil, errors.New(ecode.ErrValidation, "K线数量不足，无法计算指标")
	}

	closes := make([]float64, len(klines))
	highs := make([]float64, len(klines))
	lows := make([]float64, len(klines))
	vols := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
		highs[i] = k.High
		lows[i] = k.Low
		vols[i] = k.Vol
	}
	last := len(closes) - 1
	current := closes[last]

	ema89 := talib.Ema(closes, 89)
	rsi := talib.Rsi(closes, 14)
	macd, macdSignal, _ := talib.Macd(closes, 12, 26, 9)
	obv := talib.Obv(closes, vols)

	// 波动率：近20根收盘价收益率的标准差，换算成百分比
	volatility := stdDevReturns(closes[len(closes)-21:]) * 100

	// 近90根的最高最低作为历史区间和支撑压力
	window := 90
	if len(klines) < window {
		window = len(klines)
	}
	support := lows[len(lows)-window]
	resistance := highs[len(highs)-window]
	for _, v := range lows[len(lows)-window:] {
		if v < support {
			support = v
		}
	}
	for _, v := range highs[len(highs)-window:] {
		if v > resistance {
			resistance = v
		}
	}

	pricePosition := 50.0
	if resistance > support {
		pricePosition = (current - support) / (resistance - support) * 100
		pricePosition = clamp(pricePosition, 0, 100)
	}

	return &model.DCAMarketSnapshot{
		CurrentPrice:  current,
		EMA89:         ema89[last],
		RSI:           rsi[last],
		Volatility:    volatility,
		PricePosition: pricePosition,
		MACD:          macd[last],
		MACDSignal:    macdSignal[last],
		OBV:           obv[last],
		OBVPrev:       obv[last-1],
		Support:       support,
		Resistance:    resistance,
	}, nil
}

// stdDevReturns 收益率标准差
func stdDevReturns(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	if len(returns) == 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

// FetchSnapshot 从交易所拉取K线并计算快照
func FetchSnapshot(ctx context.Context, ex exchange.Exchange, symbol string) (*model.DCAMarketSnapshot, error) {
	klines, err := ex.GetKlines(ctx, symbol, "1h", 200)
	if err != nil {
		return nil, err
	}
	return BuildSnapshot(klines)
}
