package dca

import (
	"context"
	"sync"
	"testing"
	"time"

	"spreadflow/conf"
	"spreadflow/internal/exchange"
	"spreadflow/internal/model"
	"spreadflow/pkg/errors"
	"spreadflow/pkg/errors/ecode"
)

// 内存版仓位存储，条件更新语义和dao层一致
type memStore struct {
	mu        sync.Mutex
	positions map[string]*model.DCAPosition
}

func newMemStore() *memStore {
	return &memStore{positions: make(map[string]*model.DCAPosition)}
}

func (s *memStore) GetBySymbol(ctx context.Context, symbol string) (*model.DCAPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[symbol]
	if !ok {
		return nil, nil
	}
	cp := *pos
	return &cp, nil
}

func (s *memStore) Upsert(ctx context.Context, pos *model.DCAPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *pos
	s.positions[pos.Symbol] = &cp
	return nil
}

func (s *memStore) ListActive(ctx context.Context) ([]model.DCAPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []model.DCAPosition
	for _, pos := range s.positions {
		if pos.IsActive {
			active = append(active, *pos)
		}
	}
	return active, nil
}

func (s *memStore) AdvanceOrder(ctx context.Context, symbol string, fromIndex int, invested, sizeFactor, entryPrice float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[symbol]
	if !ok || pos.CurrentOrderIndex != fromIndex {
		return false, nil
	}
	pos.CurrentOrderIndex++
	pos.TotalInvested = invested
	pos.SizeFactor = sizeFactor
	pos.LastEntryPrice = entryPrice
	return true, nil
}

func testDcaConfig() conf.DcaConfig {
	return conf.DcaConfig{
		BaseAmount:        80,
		MaxOrders:         10,
		PriceDeviationPct: 2.0,
		TakeProfitPct:     5.0,
		StopLossPct:       10.0,
		BaseMultiplier:    1.5,
	}
}

// 200根1h K线，价格绕base小幅震荡
func testKlines(base float64) []model.Kline {
	klines := make([]model.Kline, 200)
	ts := time.Now().Add(-200 * time.Hour)
	for i := range klines {
		offset := float64(i%10) * base * 0.002
		price := base + offset
		klines[i] = model.Kline{
			Timestamp: ts.Add(time.Duration(i) * time.Hour),
			Open:      price,
			Close:     price,
			High:      price * 1.005,
			Low:       price * 0.995,
			Vol:       1000,
		}
	}
	return klines
}

func newDcaFixture(t *testing.T) (*Service, *memStore, *exchange.SimulatedExchange) {
	t.Helper()
	m := exchange.NewManager()
	ex := exchange.NewSimulatedExchange("binance")
	ex.SetPrice("SOLUSDT", 150)
	ex.SetKlines("SOLUSDT", testKlines(150))
	ex.SetBalance("USDT", 1_000_000)
	m.Register(ex)
	store := newMemStore()
	return NewService(m, testDcaConfig(), store, nil), store, ex
}

func TestService_StartAndExecute(t *testing.T) {
	svc, store, ex := newDcaFixture(t)
	ctx := context.Background()

	pos, err := svc.Start(ctx, "SOLUSDT", Settings{Exchange: "binance"})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !pos.IsActive || pos.CurrentOrderIndex != 0 || pos.SizeFactor != 1 {
		t.Fatalf("unexpected position: %+v", pos)
	}

	result, err := svc.Execute(ctx, "SOLUSDT")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !result.Executed {
		t.Fatalf("first order should always execute, reason: %s", result.Reason)
	}
	// 首单金额 = base × 动态倍数，不是固定的 80×1.5
	want := 80 * result.Multiplier.Final
	if diff := result.Amount - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("amount = %.4f, want %.4f", result.Amount, want)
	}
	if len(ex.PlacedOrders) != 1 {
		t.Fatalf("orders placed = %d, want 1", len(ex.PlacedOrders))
	}

	updated, _ := store.GetBySymbol(ctx, "SOLUSDT")
	if updated.CurrentOrderIndex != 1 {
		t.Errorf("order index = %d, want 1", updated.CurrentOrderIndex)
	}
	if updated.SizeFactor != result.Multiplier.Final {
		t.Errorf("size factor = %.4f, want %.4f", updated.SizeFactor, result.Multiplier.Final)
	}
}

// 加仓单的金额对历史倍数路径依赖
func TestService_PathDependentSizing(t *testing.T) {
	svc, store, ex := newDcaFixture(t)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "SOLUSDT", Settings{Exchange: "binance"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	first, err := svc.Execute(ctx, "SOLUSDT")
	if err != nil || !first.Executed {
		t.Fatalf("first execute failed: %v", err)
	}

	// 价格跌破触发价，允许加仓
	ex.SetPrice("SOLUSDT", 140)
	ex.SetKlines("SOLUSDT", testKlines(140))

	second, err := svc.Execute(ctx, "SOLUSDT")
	if err != nil {
		t.Fatalf("second execute failed: %v", err)
	}
	if !second.Executed {
		t.Fatalf("second order should execute after 6%% drop, reason: %s", second.Reason)
	}
	want := 80 * first.Multiplier.Final * second.Multiplier.Final
	if diff := second.Amount - want; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("second amount = %.4f, want base × m0 × m1 = %.4f", second.Amount, want)
	}

	pos, _ := store.GetBySymbol(ctx, "SOLUSDT")
	if pos.CurrentOrderIndex != 2 {
		t.Errorf("order index = %d, want 2", pos.CurrentOrderIndex)
	}
}

// 跌幅不足时不加仓
func TestService_DeviationGate(t *testing.T) {
	svc, _, ex := newDcaFixture(t)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "SOLUSDT", Settings{Exchange: "binance"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := svc.Execute(ctx, "SOLUSDT"); err != nil {
		t.Fatalf("first execute failed: %v", err)
	}

	// 只跌1%，低于2%的触发阈值
	ex.SetPrice("SOLUSDT", 148.5)
	ex.SetKlines("SOLUSDT", testKlines(148.5))
	result, err := svc.Execute(ctx, "SOLUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Executed {
		t.Error("should not add to position before price drops enough")
	}
	if len(ex.PlacedOrders) != 1 {
		t.Errorf("orders placed = %d, want 1", len(ex.PlacedOrders))
	}
}

// 下满maxOrders后返回"已完成"，不再下单
func TestService_CompleteAtMaxOrders(t *testing.T) {
	svc, store, ex := newDcaFixture(t)
	ctx := context.Background()

	store.Upsert(ctx, &model.DCAPosition{
		Symbol:            "SOLUSDT",
		Exchange:          "binance",
		IsActive:          true,
		BaseAmount:        80,
		MaxOrders:         3,
		PriceDeviationPct: 2,
		CurrentOrderIndex: 3,
		SizeFactor:        3.375,
	})

	result, err := svc.Execute(ctx, "SOLUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Executed {
		t.Error("completed plan must not place orders")
	}
	if result.Reason == "" {
		t.Error("expected an already-complete reason")
	}
	if len(ex.PlacedOrders) != 0 {
		t.Errorf("orders placed = %d, want 0", len(ex.PlacedOrders))
	}
}

func TestService_ExecuteInactive(t *testing.T) {
	svc, store, _ := newDcaFixture(t)
	ctx := context.Background()

	store.Upsert(ctx, &model.DCAPosition{
		Symbol:    "SOLUSDT",
		Exchange:  "binance",
		IsActive:  false,
		MaxOrders: 3,
	})
	_, err := svc.Execute(ctx, "SOLUSDT")
	if !errors.IsCode(err, ecode.ErrDcaInactive) {
		t.Errorf("err = %v, want ErrDcaInactive", err)
	}
}

// 余额预检按固定1.5倍/步估算总投入
func TestService_StartInsufficientBalance(t *testing.T) {
	m := exchange.NewManager()
	ex := exchange.NewSimulatedExchange("binance")
	ex.SetPrice("SOLUSDT", 150)
	ex.SetKlines("SOLUSDT", testKlines(150))
	ex.SetBalance("USDT", 100) // 远低于80×(1.5^10-1)/0.5的预估
	m.Register(ex)
	svc := NewService(m, testDcaConfig(), newMemStore(), nil)

	_, err := svc.Start(context.Background(), "SOLUSDT", Settings{Exchange: "binance"})
	if !errors.IsCode(err, ecode.ErrRiskRejected) {
		t.Errorf("err = %v, want ErrRiskRejected", err)
	}
}

// 轮询调度器自动执行active仓位，满足条件时加仓
func TestService_MonitorExecutesActivePositions(t *testing.T) {
	svc, store, _ := newDcaFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if _, err := svc.Start(ctx, "SOLUSDT", Settings{Exchange: "binance"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		svc.Monitor(ctx, 20*time.Millisecond)
		close(done)
	}()
	<-done

	pos, _ := store.GetBySymbol(context.Background(), "SOLUSDT")
	if pos.CurrentOrderIndex < 1 {
		t.Fatalf("order index = %d, poller should have placed the first order", pos.CurrentOrderIndex)
	}
}

func TestService_ResetClearsProgress(t *testing.T) {
	svc, store, _ := newDcaFixture(t)
	ctx := context.Background()

	store.Upsert(ctx, &model.DCAPosition{
		Symbol:            "SOLUSDT",
		Exchange:          "binance",
		IsActive:          true,
		BaseAmount:        80,
		MaxOrders:         10,
		CurrentOrderIndex: 4,
		TotalInvested:     600,
		SizeFactor:        5.0,
		LastEntryPrice:    140,
	})

	pos, err := svc.Reset(ctx, "SOLUSDT")
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if pos.CurrentOrderIndex != 0 || pos.TotalInvested != 0 || pos.SizeFactor != 1 || pos.LastEntryPrice != 0 {
		t.Errorf("reset did not clear progress: %+v", pos)
	}
}
