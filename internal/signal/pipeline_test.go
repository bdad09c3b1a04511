package signal

import (
	"context"
	"strings"
	"testing"

	"spreadflow/internal/exchange"
	"spreadflow/internal/model"
)

func newPipelineFixture() (*Pipeline, *exchange.SimulatedExchange) {
	m := exchange.NewManager()
	ex := exchange.NewSimulatedExchange("binance")
	ex.SetPrice("SOLUSDT", 150)
	ex.SetBalance("USDT", 100_000)
	m.Register(ex)
	checker := NewRiskChecker(testRiskConfig(), m, nil, nil)
	return NewPipeline(m, checker, nil, nil, nil, nil), ex
}

// 场景A：置信度40，minConfidence=70，信号被拒且不触达交易所
func TestPipeline_RejectsLowConfidence(t *testing.T) {
	p, ex := newPipelineFixture()
	raw := []byte(`{"symbol":"SOLUSDT","action":"BUY","confidence":40,"quantity":50,"price":150}`)

	result, err := p.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != model.SignalRejected {
		t.Errorf("status = %s, want REJECTED", result.Status)
	}
	if result.Risk == nil || result.Risk.Approved {
		t.Fatal("expected risk rejection")
	}
	if len(ex.PlacedOrders) != 0 {
		t.Errorf("orders placed = %d, rejected signal must not trade", len(ex.PlacedOrders))
	}
	if result.Execution != nil {
		t.Error("rejected signal should have no execution result")
	}
}

func TestPipeline_ExecutesWithProtectiveOrders(t *testing.T) {
	p, ex := newPipelineFixture()
	raw := []byte(`{"symbol":"SOLUSDT","action":"BUY","confidence":90,"quantity":10,"price":150,"order_type":"LIMIT","stop_loss":145,"take_profit":160}`)

	result, err := p.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != model.SignalExecuted {
		t.Fatalf("status = %s, want EXECUTED", result.Status)
	}
	if len(ex.PlacedOrders) != 3 {
		t.Fatalf("orders placed = %d, want main+sl+tp", len(ex.PlacedOrders))
	}

	main, sl, tp := ex.PlacedOrders[0], ex.PlacedOrders[1], ex.PlacedOrders[2]
	if main.Side != model.Buy || main.Type != model.Limit {
		t.Errorf("main order = %+v", main)
	}
	if sl.Side != model.Sell || sl.Type != model.StopMarket || sl.StopPrice != 145 {
		t.Errorf("stop loss order = %+v", sl)
	}
	if tp.Side != model.Sell || tp.Type != model.Limit || tp.Price != 160 {
		t.Errorf("take profit order = %+v", tp)
	}
	if result.Execution.StopLossOrder == nil || result.Execution.TakeProfitOrder == nil {
		t.Error("execution result missing protective orders")
	}
}

// CLOSE按SELL下单
func TestPipeline_CloseSellsPosition(t *testing.T) {
	p, ex := newPipelineFixture()
	raw := []byte(`{"symbol":"SOLUSDT","action":"CLOSE","confidence":90,"quantity":5}`)

	result, err := p.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != model.SignalExecuted {
		t.Fatalf("status = %s, want EXECUTED", result.Status)
	}
	if len(ex.PlacedOrders) != 1 || ex.PlacedOrders[0].Side != model.Sell {
		t.Errorf("close should place one SELL order, got %+v", ex.PlacedOrders)
	}
}

// 保护单失败不回滚主单，结果降级为带warning的成功
func TestPipeline_ProtectiveOrderFailureIsWarning(t *testing.T) {
	m := exchange.NewManager()
	ex := exchange.NewSimulatedExchange("binance")
	ex.SetPrice("SOLUSDT", 150)
	ex.SetBalance("USDT", 100_000)
	m.Register(ex)
	checker := NewRiskChecker(testRiskConfig(), m, nil, nil)
	p := NewPipeline(m, checker, nil, nil, nil, nil)

	// 主单成功后注入下单失败
	raw := []byte(`{"symbol":"SOLUSDT","action":"BUY","confidence":90,"quantity":10,"price":150,"stop_loss":145}`)
	ex.FailAfter(1, exchange.NewRejected("binance", "insufficient margin", "", 400))

	result, err := p.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("main order succeeded, pipeline must not fail: %v", err)
	}
	if result.Status != model.SignalExecuted {
		t.Errorf("status = %s, want EXECUTED with warnings", result.Status)
	}
	if len(result.Execution.Warnings) == 0 {
		t.Error("expected a protective-order warning")
	}
	if result.Execution.StopLossOrder != nil {
		t.Error("stop loss order should be absent after failure")
	}
}

// 文本告警不带数量，按default-order-amount折算后下单，不允许0数量订单触达交易所
func TestPipeline_AlertTextUsesDefaultOrderAmount(t *testing.T) {
	p, ex := newPipelineFixture()
	raw := []byte("BUY SOLUSDT @ 150 SL: 145 TP: 160")

	result, err := p.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != model.SignalExecuted {
		t.Fatalf("status = %s, want EXECUTED", result.Status)
	}
	if len(ex.PlacedOrders) != 3 {
		t.Fatalf("orders placed = %d, want main+sl+tp", len(ex.PlacedOrders))
	}
	// 300 USDT / 150 = 2
	for _, order := range ex.PlacedOrders {
		if order.Quantity != 2 {
			t.Errorf("order quantity = %v, want 2 (%s)", order.Quantity, order.Type)
		}
	}
}

// 默认金额没配时，不带数量的信号在风控前就被拒
func TestPipeline_MissingQuantityRejected(t *testing.T) {
	m := exchange.NewManager()
	ex := exchange.NewSimulatedExchange("binance")
	ex.SetPrice("SOLUSDT", 150)
	ex.SetBalance("USDT", 100_000)
	m.Register(ex)
	cfg := testRiskConfig()
	cfg.DefaultOrderAmount = 0
	checker := NewRiskChecker(cfg, m, nil, nil)
	p := NewPipeline(m, checker, nil, nil, nil, nil)

	_, err := p.Process(context.Background(), []byte("BUY SOLUSDT @ 150 SL: 145"))
	if err == nil {
		t.Fatal("expected validation error for quantity-less signal")
	}
	if len(ex.PlacedOrders) != 0 {
		t.Errorf("orders placed = %d, quantity-less signal must not trade", len(ex.PlacedOrders))
	}
}

// 信号台账：处理开始先落PENDING，终态走更新而不是二次插入
type memSignalStore struct {
	created        []model.SignalStatus
	updated        []model.SignalStatus
	ordersAtCreate int
	ex             *exchange.SimulatedExchange
}

func (s *memSignalStore) CreateSignalRecord(ctx context.Context, record *model.SignalRecord) error {
	s.created = append(s.created, record.Status)
	if s.ex != nil {
		s.ordersAtCreate = len(s.ex.PlacedOrders)
	}
	return nil
}

func (s *memSignalStore) UpdateSignalRecord(ctx context.Context, record *model.SignalRecord) error {
	s.updated = append(s.updated, record.Status)
	return nil
}

func TestPipeline_PersistsPendingBeforeExecution(t *testing.T) {
	m := exchange.NewManager()
	ex := exchange.NewSimulatedExchange("binance")
	ex.SetPrice("SOLUSDT", 150)
	ex.SetBalance("USDT", 100_000)
	m.Register(ex)
	store := &memSignalStore{ex: ex}
	checker := NewRiskChecker(testRiskConfig(), m, nil, nil)
	p := NewPipeline(m, checker, nil, store, nil, nil)

	raw := []byte(`{"symbol":"SOLUSDT","action":"BUY","confidence":90,"quantity":10,"price":150}`)
	result, err := p.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != model.SignalExecuted {
		t.Fatalf("status = %s, want EXECUTED", result.Status)
	}
	if len(store.created) != 1 || store.created[0] != model.SignalPending {
		t.Fatalf("created statuses = %v, want exactly one PENDING insert", store.created)
	}
	if store.ordersAtCreate != 0 {
		t.Errorf("record inserted after %d orders, must be before any order", store.ordersAtCreate)
	}
	if len(store.updated) != 1 || store.updated[0] != model.SignalExecuted {
		t.Errorf("updated statuses = %v, want one EXECUTED update", store.updated)
	}
	if result.RecordID == 0 {
		t.Error("result should carry the persisted record id")
	}
}

// 每小时上限就是上限本身：第cap+1条才被拒
func TestPipeline_FrequencyCapCountsExactly(t *testing.T) {
	m := exchange.NewManager()
	ex := exchange.NewSimulatedExchange("binance")
	ex.SetPrice("SOLUSDT", 150)
	ex.SetBalance("USDT", 100_000)
	m.Register(ex)
	window := NewMemoryFrequencyWindow()
	cfg := testRiskConfig()
	cfg.MaxSignalsPerHour = 2
	checker := NewRiskChecker(cfg, m, window, nil)
	p := NewPipeline(m, checker, window, nil, nil, nil)

	raw := []byte(`{"symbol":"SOLUSDT","action":"BUY","confidence":90,"quantity":1,"price":150}`)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		result, err := p.Process(ctx, raw)
		if err != nil {
			t.Fatalf("signal %d failed: %v", i+1, err)
		}
		if result.Status != model.SignalExecuted {
			t.Fatalf("signal %d status = %s, cap is 2 so both must pass", i+1, result.Status)
		}
	}
	result, err := p.Process(ctx, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != model.SignalRejected {
		t.Fatalf("third signal status = %s, want REJECTED at the cap", result.Status)
	}
	found := false
	for _, v := range result.Risk.Violations {
		if strings.Contains(v, "frequency") {
			found = true
		}
	}
	if !found {
		t.Errorf("violations %v missing frequency reason", result.Risk.Violations)
	}
}

func TestPipeline_ParseErrorNeverReachesRisk(t *testing.T) {
	p, ex := newPipelineFixture()
	_, err := p.Process(context.Background(), []byte("TO THE MOON"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if len(ex.PlacedOrders) != 0 {
		t.Error("unparseable signal must not trade")
	}
}
