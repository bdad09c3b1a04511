package exchange

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManager_GetPriceSpread(t *testing.T) {
	m := NewManager()
	binance := NewSimulatedExchange("binance")
	okx := NewSimulatedExchange("okx")
	gate := NewSimulatedExchange("gate")
	binance.SetPrice("SOLUSDT", 150.0)
	okx.SetPrice("SOLUSDT", 152.0)
	gate.SetPrice("SOLUSDT", 151.0)
	m.Register(binance)
	m.Register(okx)
	m.Register(gate)

	spread, err := m.GetPriceSpread(context.Background(), "SOLUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spread.Lowest.Exchange != "binance" {
		t.Errorf("lowest exchange = %s, want binance", spread.Lowest.Exchange)
	}
	if spread.Highest.Exchange != "okx" {
		t.Errorf("highest exchange = %s, want okx", spread.Highest.Exchange)
	}
	if spread.Spread != 2.0 {
		t.Errorf("spread = %.4f, want 2.0", spread.Spread)
	}
	// 价差百分比以最低价为基准
	want := 2.0 / 150.0 * 100
	if diff := spread.SpreadPercent - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("spread percent = %.6f, want %.6f", spread.SpreadPercent, want)
	}
	// 报价按价格升序排列
	for i := 1; i < len(spread.Quotes); i++ {
		if spread.Quotes[i].Price < spread.Quotes[i-1].Price {
			t.Errorf("quotes not sorted: %v", spread.Quotes)
		}
	}
}

// 一家失败不影响比价，只要还剩两家报价
func TestManager_GetPriceSpreadPartialFailure(t *testing.T) {
	m := NewManager()
	binance := NewSimulatedExchange("binance")
	okx := NewSimulatedExchange("okx")
	gate := NewSimulatedExchange("gate")
	binance.SetPrice("SOLUSDT", 150.0)
	okx.SetPrice("SOLUSDT", 152.0)
	gate.PriceErr = NewUnavailable("gate", errors.New("connection refused"))
	m.Register(binance)
	m.Register(okx)
	m.Register(gate)

	spread, err := m.GetPriceSpread(context.Background(), "SOLUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spread.Quotes) != 2 {
		t.Errorf("quotes = %d, want 2", len(spread.Quotes))
	}
}

// 少于两家可用时不做比价
func TestManager_GetPriceSpreadNotEnoughQuotes(t *testing.T) {
	m := NewManager()
	binance := NewSimulatedExchange("binance")
	okx := NewSimulatedExchange("okx")
	binance.SetPrice("SOLUSDT", 150.0)
	okx.PriceErr = NewUnavailable("okx", errors.New("timeout"))
	m.Register(binance)
	m.Register(okx)

	_, err := m.GetPriceSpread(context.Background(), "SOLUSDT")
	if err == nil {
		t.Fatal("expected error with a single usable quote")
	}
	if !IsUnavailable(err) {
		t.Errorf("expected unavailable error, got %v", err)
	}
}

// 卡住的交易所不能拖垮整个聚合：到达deadline后只用已返回的报价
func TestManager_GetPriceSpreadExcludesSlowVenue(t *testing.T) {
	m := NewManager()
	binance := NewSimulatedExchange("binance")
	okx := NewSimulatedExchange("okx")
	gate := NewSimulatedExchange("gate")
	binance.SetPrice("SOLUSDT", 150.0)
	okx.SetPrice("SOLUSDT", 152.0)
	gate.SetPrice("SOLUSDT", 151.0)
	gate.PriceDelay = 3 * time.Second
	m.Register(binance)
	m.Register(okx)
	m.Register(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	spread, err := m.GetPriceSpread(ctx, "SOLUSDT")
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("aggregation blocked on slow venue for %v", elapsed)
	}
	if len(spread.Quotes) != 2 {
		t.Errorf("quotes = %d, want 2 fast venues", len(spread.Quotes))
	}
	for _, q := range spread.Quotes {
		if q.Exchange == "gate" {
			t.Error("slow venue must be excluded from the result")
		}
	}
}

func TestManager_BestPrice(t *testing.T) {
	m := NewManager()
	binance := NewSimulatedExchange("binance")
	okx := NewSimulatedExchange("okx")
	binance.SetPrice("SOLUSDT", 150.0)
	okx.SetPrice("SOLUSDT", 149.5)
	m.Register(binance)
	m.Register(okx)

	best, err := m.BestPrice(context.Background(), "SOLUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best.Exchange != "okx" || best.Price != 149.5 {
		t.Errorf("best = %+v, want okx@149.5", best)
	}
}

func TestManager_HealthCheck(t *testing.T) {
	m := NewManager()
	up := NewSimulatedExchange("binance")
	down := NewSimulatedExchange("gate")
	down.PingErr = NewUnavailable("gate", errors.New("dns failure"))
	m.Register(up)
	m.Register(down)

	status := m.HealthCheck(context.Background())
	if !status["binance"] {
		t.Error("binance should be healthy")
	}
	if status["gate"] {
		t.Error("gate should be unhealthy")
	}
}
