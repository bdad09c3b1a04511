package arbitrage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"spreadflow/internal/exchange"
	"spreadflow/internal/model"
	"spreadflow/pkg/errors"
	"spreadflow/pkg/errors/ecode"
)

func testOpportunity(symbol string) *model.ArbitrageOpportunity {
	return &model.ArbitrageOpportunity{
		Symbol:        symbol,
		BuyExchange:   "binance",
		SellExchange:  "okx",
		BuyPrice:      150.00,
		SellPrice:     150.60,
		Spread:        0.60,
		SpreadPercent: 0.40,
		RiskTier:      model.RiskLow,
		DetectedAt:    time.Now(),
	}
}

func newExecutorManager() (*exchange.Manager, *exchange.SimulatedExchange, *exchange.SimulatedExchange) {
	m := exchange.NewManager()
	buy := exchange.NewSimulatedExchange("binance")
	sell := exchange.NewSimulatedExchange("okx")
	buy.SetPrice("SOLUSDT", 150.00)
	sell.SetPrice("SOLUSDT", 150.60)
	m.Register(buy)
	m.Register(sell)
	return m, buy, sell
}

func TestExecutor_Execute(t *testing.T) {
	m, buy, sell := newExecutorManager()
	e := NewExecutor(m, testArbConfig(), nil, nil)

	trade, err := e.Execute(context.Background(), testOpportunity("SOLUSDT"), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade.Status != model.ArbExecuted {
		t.Errorf("status = %s, want EXECUTED", trade.Status)
	}
	if len(buy.PlacedOrders) != 1 || buy.PlacedOrders[0].Side != model.Buy {
		t.Errorf("buy leg not placed on binance")
	}
	if len(sell.PlacedOrders) != 1 || sell.PlacedOrders[0].Side != model.Sell {
		t.Errorf("sell leg not placed on okx")
	}
	if trade.Profit <= 0 {
		t.Errorf("profit = %.4f, want > 0", trade.Profit)
	}
	status := e.Status()
	if status.TotalExecuted != 1 || status.ActiveTrades != 0 {
		t.Errorf("status = %+v, want TotalExecuted=1 ActiveTrades=0", status)
	}
}

// 冷却窗口内的第二次执行直接拒绝，不触达交易所
func TestExecutor_CooldownRejectsSecondTrade(t *testing.T) {
	m, buy, _ := newExecutorManager()
	e := NewExecutor(m, testArbConfig(), nil, nil)

	if _, err := e.Execute(context.Background(), testOpportunity("SOLUSDT"), 100); err != nil {
		t.Fatalf("first trade failed: %v", err)
	}
	callsAfterFirst := len(buy.PlacedOrders)

	_, err := e.Execute(context.Background(), testOpportunity("SOLUSDT"), 100)
	if err == nil {
		t.Fatal("expected cooldown rejection")
	}
	if !errors.IsCode(err, ecode.ErrCooldownActive) {
		t.Errorf("code = %v, want ErrCooldownActive", err)
	}
	if len(buy.PlacedOrders) != callsAfterFirst {
		t.Error("rejected trade must not reach the venue")
	}
}

// 不同币对不受彼此冷却影响
func TestExecutor_CooldownIsPerSymbol(t *testing.T) {
	m, buy, sell := newExecutorManager()
	buy.SetPrice("ETHUSDT", 3000)
	sell.SetPrice("ETHUSDT", 3010)
	e := NewExecutor(m, testArbConfig(), nil, nil)

	if _, err := e.Execute(context.Background(), testOpportunity("SOLUSDT"), 100); err != nil {
		t.Fatalf("first trade failed: %v", err)
	}
	if _, err := e.Execute(context.Background(), testOpportunity("ETHUSDT"), 100); err != nil {
		t.Fatalf("second symbol should not be gated: %v", err)
	}
}

// 并发槽阻塞的交易所，用来把交易挂在在途状态
type blockingExchange struct {
	*exchange.SimulatedExchange
	release chan struct{}
}

func (b *blockingExchange) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.OrderResult, error) {
	<-b.release
	return b.SimulatedExchange.PlaceOrder(ctx, req)
}

// 并发上限：第N+1笔拒绝；在途交易结束后槽位重新可用
func TestExecutor_ConcurrencyLimit(t *testing.T) {
	cfg := testArbConfig()
	cfg.MaxConcurrentTrades = 2

	m := exchange.NewManager()
	release := make(chan struct{})
	buy := &blockingExchange{SimulatedExchange: exchange.NewSimulatedExchange("binance"), release: release}
	sell := exchange.NewSimulatedExchange("okx")
	m.Register(buy)
	m.Register(sell)
	e := NewExecutor(m, cfg, nil, nil)

	var wg sync.WaitGroup
	started := make(chan struct{}, cfg.MaxConcurrentTrades)
	for i := 0; i < cfg.MaxConcurrentTrades; i++ {
		wg.Add(1)
		symbol := fmt.Sprintf("SYM%dUSDT", i)
		buy.SetPrice(symbol, 100)
		sell.SetPrice(symbol, 101)
		go func(symbol string) {
			defer wg.Done()
			started <- struct{}{}
			e.Execute(context.Background(), testOpportunity(symbol), 100)
		}(symbol)
	}
	for i := 0; i < cfg.MaxConcurrentTrades; i++ {
		<-started
	}
	// 等两笔在途交易都占到槽
	deadline := time.After(2 * time.Second)
	for {
		if e.Status().ActiveTrades == cfg.MaxConcurrentTrades {
			break
		}
		select {
		case <-deadline:
			t.Fatal("in-flight trades never acquired slots")
		case <-time.After(10 * time.Millisecond):
		}
	}

	_, err := e.Execute(context.Background(), testOpportunity("OTHERUSDT"), 100)
	if err == nil {
		t.Fatal("expected concurrency limit rejection")
	}
	if !errors.IsCode(err, ecode.ErrConcurrencyLimit) {
		t.Errorf("code = %v, want ErrConcurrencyLimit", err)
	}

	close(release)
	wg.Wait()
	if got := e.Status().ActiveTrades; got != 0 {
		t.Errorf("active trades = %d, want 0 after completion", got)
	}
}

// 卖腿失败：交易记为FAILED，错误向上抛，槽位仍被释放
func TestExecutor_SellLegFailure(t *testing.T) {
	m := exchange.NewManager()
	buy := exchange.NewSimulatedExchange("binance")
	sell := exchange.NewSimulatedExchange("okx")
	buy.SetPrice("SOLUSDT", 150.00)
	sell.PlaceErr = exchange.NewRejected("okx", "insufficient balance", "51008", 400)
	m.Register(buy)
	m.Register(sell)
	e := NewExecutor(m, testArbConfig(), nil, nil)

	trade, err := e.Execute(context.Background(), testOpportunity("SOLUSDT"), 100)
	if err == nil {
		t.Fatal("expected error from sell leg")
	}
	if trade == nil || trade.Status != model.ArbFailed {
		t.Fatalf("trade = %+v, want FAILED record", trade)
	}
	if len(buy.PlacedOrders) != 1 {
		t.Error("buy leg should have been placed before the failure")
	}
	if e.Status().ActiveTrades != 0 {
		t.Error("slot must be released after failure")
	}
	if e.Status().TotalFailed != 1 {
		t.Error("failed counter not bumped")
	}
}

// 紧急停止后所有执行请求被拒绝
func TestExecutor_EmergencyStop(t *testing.T) {
	m, _, _ := newExecutorManager()
	e := NewExecutor(m, testArbConfig(), nil, nil)

	e.EmergencyStop()
	_, err := e.Execute(context.Background(), testOpportunity("SOLUSDT"), 100)
	if err == nil {
		t.Fatal("expected rejection while disabled")
	}
	if !errors.IsCode(err, ecode.ErrSystemDisabled) {
		t.Errorf("code = %v, want ErrSystemDisabled", err)
	}
	if e.Status().Enabled {
		t.Error("status should report disabled")
	}

	e.Resume()
	if _, err := e.Execute(context.Background(), testOpportunity("SOLUSDT"), 100); err != nil {
		t.Errorf("execute after resume failed: %v", err)
	}
}
