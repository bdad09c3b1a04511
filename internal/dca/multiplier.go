package dca

import (
	"fmt"
	"strings"

	"spreadflow/internal/model"
)

// 倍数引擎的硬边界，任何输入下输出都被夹在这个区间
const (
	MultiplierFloor = 0.8
	MultiplierCeil  = 2.5
)

// 默认基础系数，权重和的放大倍数
const DefaultBaseMultiplier = 1.5

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// rsiScore RSI越低越激进加仓
// <30 超卖区 1.8~2.2，>70 超买区 1.0~1.4，中间线性过渡 1.3~1.7
func rsiScore(rsi float64) (float64, string) {
	switch {
	case rsi < 30:
		return clamp(1.8+(30-rsi)/30*0.4, 1.8, 2.2), "超卖"
	case rsi > 70:
		return clamp(1.0+(100-rsi)/30*0.4, 1.0, 1.4), "超买"
	default:
		return clamp(1.7-(rsi-30)/40*0.4, 1.3, 1.7), "中性"
	}
}

// volatilityScore 波动率百分比
// <1 低波动 1.2~1.4，>3 高波动 1.6~2.0（封顶），中间 1.4~1.6
func volatilityScore(vol float64) (float64, string) {
	switch {
	case vol < 1:
		return clamp(1.2+vol*0.2, 1.2, 1.4), "低波动"
	case vol > 3:
		return clamp(1.6+(vol-3)*0.2, 1.6, 2.0), "高波动"
	default:
		return clamp(1.4+(vol-1)/2*0.2, 1.4, 1.6), "中等波动"
	}
}

// pricePositionScore 当前价在历史区间的百分位
// <30 靠近区间低点 1.6~2.0，>70 靠近高点 1.0~1.4，中间 1.3~1.7
func pricePositionScore(pos float64) (float64, string) {
	switch {
	case pos < 30:
		return clamp(1.6+(30-pos)/30*0.4, 1.6, 2.0), "区间低位"
	case pos > 70:
		return clamp(1.4-(pos-70)/30*0.4, 1.0, 1.4), "区间高位"
	default:
		return clamp(1.7-(pos-30)/40*0.4, 1.3, 1.7), "区间中部"
	}
}

// macdScore macd与signal的差值
// |diff|<0.1 视为走平 1.4，金叉按强度 1.3~1.7，死叉按强度 1.5~2.0（下跌加仓更积极）
func macdScore(macd, signal float64) (float64, string) {
	diff := macd - signal
	abs := diff
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs < 0.1:
		return 1.4, "MACD走平"
	case diff > 0:
		strength := diff / 2
		if strength > 1 {
			strength = 1
		}
		return clamp(1.3+0.4*strength, 1.3, 1.7), "金叉"
	default:
		strength := abs / 2
		if strength > 1 {
			strength = 1
		}
		return clamp(1.5+0.5*strength, 1.5, 2.0), "死叉"
	}
}

// supportResScore 距支撑/压力位的远近
// 贴近支撑2%以内 1.6~2.0，贴近压力2%以内 1.0~1.4，其余按离中点距离 1.3~1.7
func supportResScore(price, support, resistance float64) (float64, string) {
	if support <= 0 || resistance <= support || price <= 0 {
		return 1.5, "支撑压力位无效"
	}
	supportDist := (price - support) / support * 100
	resistDist := (resistance - price) / resistance * 100

	switch {
	case supportDist >= 0 && supportDist < 2:
		return clamp(1.6+0.4*(1-supportDist/2), 1.6, 2.0), "贴近支撑"
	case resistDist >= 0 && resistDist < 2:
		return clamp(1.0+0.4*(resistDist/2), 1.0, 1.4), "贴近压力"
	default:
		mid := (support + resistance) / 2
		half := (resistance - support) / 2
		dist := price - mid
		if dist < 0 {
			dist = -dist
		}
		ratio := dist / half
		if ratio > 1 {
			ratio = 1
		}
		// 越靠近中点越中性，偏向支撑侧略激进
		score := 1.5
		if price < mid {
			score = 1.5 + 0.2*ratio
		} else {
			score = 1.5 - 0.2*ratio
		}
		return clamp(score, 1.3, 1.7), "区间内"
	}
}

// ComputeMultiplier 纯函数：相同快照必然得到相同输出
// 最终倍数 = base × 五项加权和，硬夹在 [0.8, 2.5]
func ComputeMultiplier(snapshot *model.DCAMarketSnapshot, weights model.MultiplierWeights, base float64) *model.MultiplierBreakdown {
	if base <= 0 {
		base = DefaultBaseMultiplier
	}

	rsi, rsiRegime := rsiScore(snapshot.RSI)
	vol, volRegime := volatilityScore(snapshot.Volatility)
	pos, posRegime := pricePositionScore(snapshot.PricePosition)
	macd, macdRegime := macdScore(snapshot.MACD, snapshot.MACDSignal)
	sr, srRegime := supportResScore(snapshot.CurrentPrice, snapshot.Support, snapshot.Resistance)

	weightedSum := rsi*weights.RSI +
		vol*weights.Volatility +
		pos*weights.PricePosition +
		macd*weights.MACD +
		sr*weights.SupportRes

	final := clamp(base*weightedSum, MultiplierFloor, MultiplierCeil)

	var sb strings.Builder
	fmt.Fprintf(&sb, "RSI %.1f(%s)=%.2f; ", snapshot.RSI, rsiRegime, rsi)
	fmt.Fprintf(&sb, "波动率 %.2f%%(%s)=%.2f; ", snapshot.Volatility, volRegime, vol)
	fmt.Fprintf(&sb, "价格位置 %.1f(%s)=%.2f; ", snapshot.PricePosition, posRegime, pos)
	fmt.Fprintf(&sb, "MACD(%s)=%.2f; ", macdRegime, macd)
	fmt.Fprintf(&sb, "支撑压力(%s)=%.2f; ", srRegime, sr)
	fmt.Fprintf(&sb, "加权和=%.4f 基础系数=%.2f 最终=%.4f", weightedSum, base, final)

	return &model.MultiplierBreakdown{
		RSIScore:        rsi,
		VolatilityScore: vol,
		PricePosScore:   pos,
		MACDScore:       macd,
		SupportResScore: sr,
		WeightedSum:     weightedSum,
		Final:           final,
		Explanation:     sb.String(),
	}
}
