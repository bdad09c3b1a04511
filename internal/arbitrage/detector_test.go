package arbitrage

import (
	"context"
	"testing"
	"time"

	"spreadflow/conf"
	"spreadflow/internal/exchange"
	"spreadflow/internal/model"
)

func testArbConfig() conf.ArbitrageConfig {
	return conf.ArbitrageConfig{
		MinSpreadPercent:    0.5,
		MaxSpreadPercent:    3.0,
		TradeAmount:         100,
		Cooldown:            5 * time.Minute,
		MaxConcurrentTrades: 3,
		Low:                 conf.ArbitrageTier{MaxAmount: 10, MaxSpread: 0.5},
		Medium:              conf.ArbitrageTier{MaxAmount: 50, MaxSpread: 1.5},
		High:                conf.ArbitrageTier{MaxAmount: 200, MaxSpread: 3.0},
	}
}

func newTestManager(prices map[string]float64) *exchange.Manager {
	m := exchange.NewManager()
	for name, price := range prices {
		ex := exchange.NewSimulatedExchange(name)
		ex.SetPrice("SOLUSDT", price)
		m.Register(ex)
	}
	return m
}

// 两家报价150.00和150.60，价差0.40%，应产出一个机会
func TestDetector_FindOpportunities(t *testing.T) {
	cfg := testArbConfig()
	cfg.MinSpreadPercent = 0.1
	d := NewDetector(newTestManager(map[string]float64{
		"binance": 150.00,
		"okx":     150.60,
	}), cfg)

	opps, err := d.FindOpportunities(context.Background(), "SOLUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("opportunities = %d, want 1", len(opps))
	}
	opp := opps[0]
	if opp.BuyPrice != 150.00 || opp.SellPrice != 150.60 {
		t.Errorf("buy/sell = %.2f/%.2f, want 150.00/150.60", opp.BuyPrice, opp.SellPrice)
	}
	if opp.BuyExchange != "binance" || opp.SellExchange != "okx" {
		t.Errorf("venues = %s->%s, want binance->okx", opp.BuyExchange, opp.SellExchange)
	}
	if diff := opp.Spread - 0.60; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("spread = %.4f, want 0.60", opp.Spread)
	}
}

// 区间边界：恰好等于min/max保留，越界丢弃
func TestDetector_SpreadBandBoundaries(t *testing.T) {
	cases := []struct {
		name      string
		sellPrice float64
		wantCount int
	}{
		{"below min", 100.40, 0},
		{"exactly min", 100.50, 1},
		{"inside band", 101.00, 1},
		{"exactly max", 103.00, 1},
		{"above max", 103.10, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := NewDetector(newTestManager(map[string]float64{
				"binance": 100.00,
				"okx":     c.sellPrice,
			}), testArbConfig())
			opps, err := d.FindOpportunities(context.Background(), "SOLUSDT")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(opps) != c.wantCount {
				t.Errorf("opportunities = %d, want %d", len(opps), c.wantCount)
			}
		})
	}
}

func TestDetector_RiskTiers(t *testing.T) {
	// 0.45%价差，预估利润100/100*0.45=0.45，落LOW档
	d := NewDetector(newTestManager(map[string]float64{
		"binance": 100.00,
		"okx":     100.45,
	}), func() conf.ArbitrageConfig {
		cfg := testArbConfig()
		cfg.MinSpreadPercent = 0.1
		return cfg
	}())
	opps, err := d.FindOpportunities(context.Background(), "SOLUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("opportunities = %d, want 1", len(opps))
	}
	if opps[0].RiskTier != model.RiskLow {
		t.Errorf("tier = %s, want LOW", opps[0].RiskTier)
	}
}

// 单边报价不产出机会
func TestDetector_SingleVenue(t *testing.T) {
	d := NewDetector(newTestManager(map[string]float64{"binance": 150}), testArbConfig())
	opps, err := d.FindOpportunities(context.Background(), "SOLUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opps) != 0 {
		t.Errorf("opportunities = %d, want 0", len(opps))
	}
}
