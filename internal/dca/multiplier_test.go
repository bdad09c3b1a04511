package dca

import (
	"testing"

	"spreadflow/internal/model"
)

func snapshotFor(rsi, vol, pos, macd, signal float64) *model.DCAMarketSnapshot {
	return &model.DCAMarketSnapshot{
		CurrentPrice:  150,
		RSI:           rsi,
		Volatility:    vol,
		PricePosition: pos,
		MACD:          macd,
		MACDSignal:    signal,
		Support:       100,
		Resistance:    200,
	}
}

// 任何输入组合下最终倍数都落在[0.8, 2.5]
func TestComputeMultiplier_ClampInvariant(t *testing.T) {
	weights := model.DefaultMultiplierWeights()
	rsis := []float64{0, 15, 29.9, 30, 50, 70, 70.1, 85, 100}
	vols := []float64{0, 0.5, 1, 2, 3, 5, 20}
	positions := []float64{0, 10, 30, 50, 70, 90, 100}
	macds := []float64{-5, -1, -0.05, 0, 0.05, 1, 5}
	bases := []float64{0.5, 1.0, 1.5, 2.0}

	for _, rsi := range rsis {
		for _, vol := range vols {
			for _, pos := range positions {
				for _, macd := range macds {
					for _, base := range bases {
						got := ComputeMultiplier(snapshotFor(rsi, vol, pos, macd, 0), weights, base)
						if got.Final < MultiplierFloor || got.Final > MultiplierCeil {
							t.Fatalf("multiplier %.4f out of [%.1f, %.1f] for rsi=%.1f vol=%.1f pos=%.1f macd=%.2f base=%.1f",
								got.Final, MultiplierFloor, MultiplierCeil, rsi, vol, pos, macd, base)
						}
					}
				}
			}
		}
	}
}

// 纯函数：相同快照必须得到相同结果
func TestComputeMultiplier_Deterministic(t *testing.T) {
	weights := model.DefaultMultiplierWeights()
	snap := snapshotFor(42, 2.3, 55, 0.7, 0.2)
	first := ComputeMultiplier(snap, weights, 1.5)
	for i := 0; i < 10; i++ {
		again := ComputeMultiplier(snap, weights, 1.5)
		if again.Final != first.Final || again.WeightedSum != first.WeightedSum {
			t.Fatalf("run %d diverged: %.6f vs %.6f", i, again.Final, first.Final)
		}
	}
}

// RSI=20超卖、波动率4%、价格位置15（靠近低点）应给出偏激进的倍数
func TestComputeMultiplier_AggressiveAccumulation(t *testing.T) {
	weights := model.DefaultMultiplierWeights()
	snap := snapshotFor(20, 4, 15, 0, 0)
	snap.Support = 140
	snap.Resistance = 160
	got := ComputeMultiplier(snap, weights, 1.5)
	if got.Final < 1.6 {
		t.Errorf("multiplier = %.4f, want upper portion of range (>= 1.6)", got.Final)
	}
	if got.Final > MultiplierCeil {
		t.Errorf("multiplier = %.4f exceeds ceiling", got.Final)
	}
	if got.Explanation == "" {
		t.Error("breakdown explanation should not be empty")
	}
}

// 超买高位时倍数应收缩
func TestComputeMultiplier_DefensiveRegime(t *testing.T) {
	weights := model.DefaultMultiplierWeights()
	aggressive := ComputeMultiplier(snapshotFor(20, 4, 15, 0, 0), weights, 1.5)
	defensive := ComputeMultiplier(snapshotFor(85, 0.5, 90, 0, 0), weights, 1.5)
	if defensive.Final >= aggressive.Final {
		t.Errorf("defensive %.4f should be below aggressive %.4f", defensive.Final, aggressive.Final)
	}
}

// 各分项必须落在自己的档位区间内
func TestSubScoreBands(t *testing.T) {
	if s, _ := rsiScore(10); s < 1.8 || s > 2.2 {
		t.Errorf("oversold rsi score %.2f outside [1.8, 2.2]", s)
	}
	if s, _ := rsiScore(90); s < 1.0 || s > 1.4 {
		t.Errorf("overbought rsi score %.2f outside [1.0, 1.4]", s)
	}
	if s, _ := volatilityScore(10); s < 1.6 || s > 2.0 {
		t.Errorf("high volatility score %.2f outside [1.6, 2.0]", s)
	}
	if s, _ := pricePositionScore(5); s < 1.6 || s > 2.0 {
		t.Errorf("low position score %.2f outside [1.6, 2.0]", s)
	}
	if s, _ := macdScore(0.05, 0); s != 1.4 {
		t.Errorf("flat macd score %.2f, want 1.4", s)
	}
	if s, _ := supportResScore(100.5, 100, 200); s < 1.6 || s > 2.0 {
		t.Errorf("near-support score %.2f outside [1.6, 2.0]", s)
	}
	if s, _ := supportResScore(199, 100, 200); s < 1.0 || s > 1.4 {
		t.Errorf("near-resistance score %.2f outside [1.0, 1.4]", s)
	}
}
