package signal

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"spreadflow/conf"
	"spreadflow/internal/exchange"
	"spreadflow/internal/model"
)

func testRiskConfig() conf.RiskConfig {
	return conf.RiskConfig{
		MaxDailyLoss:       500,
		MaxPositionPct:     0.5,
		DefaultOrderAmount: 300,
		MinConfidence:      70,
		MaxLeverage:        10,
		MaxSignalsPerHour:  12,
	}
}

func newRiskFixture() (*RiskChecker, *exchange.SimulatedExchange) {
	m := exchange.NewManager()
	ex := exchange.NewSimulatedExchange("binance")
	ex.SetPrice("SOLUSDT", 150)
	ex.SetBalance("USDT", 100_000)
	m.Register(ex)
	return NewRiskChecker(testRiskConfig(), m, nil, nil), ex
}

func buySignal(confidence float64) *model.TradeSignal {
	return &model.TradeSignal{
		Symbol:     "SOLUSDT",
		Action:     model.ActionBuy,
		Exchange:   "binance",
		OrderType:  model.Market,
		Quantity:   50,
		Price:      150,
		Confidence: confidence,
		Timestamp:  time.Now(),
	}
}

func TestRiskChecker_Approves(t *testing.T) {
	checker, _ := newRiskFixture()
	result := checker.Check(context.Background(), buySignal(85))
	if !result.Approved {
		t.Fatalf("expected approval, violations: %v", result.Violations)
	}
	if result.RiskScore != 0 {
		t.Errorf("risk score = %.1f, want 0", result.RiskScore)
	}
}

// 置信度40低于门槛70必须拒绝，并带有置信度违规说明
func TestRiskChecker_LowConfidence(t *testing.T) {
	checker, _ := newRiskFixture()
	result := checker.Check(context.Background(), buySignal(40))
	if result.Approved {
		t.Fatal("expected rejection")
	}
	found := false
	for _, v := range result.Violations {
		if strings.Contains(v, "confidence") {
			found = true
		}
	}
	if !found {
		t.Errorf("violations %v missing confidence reason", result.Violations)
	}
	if result.RiskScore <= 0 {
		t.Errorf("risk score = %.1f, want > 0", result.RiskScore)
	}
	if len(result.Recommendations) == 0 {
		t.Error("expected remediation recommendations")
	}
}

// 检查不短路：多个违规同时暴露
func TestRiskChecker_AccumulatesViolations(t *testing.T) {
	checker, _ := newRiskFixture()
	sig := buySignal(40)
	sig.Leverage = 50
	result := checker.Check(context.Background(), sig)
	if result.Approved {
		t.Fatal("expected rejection")
	}
	if len(result.Violations) < 2 {
		t.Errorf("violations = %v, want both confidence and leverage", result.Violations)
	}
}

// 同样的信号和账户状态，两次检查结论必须一致
func TestRiskChecker_Idempotent(t *testing.T) {
	checker, _ := newRiskFixture()
	sig := buySignal(40)
	sig.Leverage = 50
	first := checker.Check(context.Background(), sig)
	second := checker.Check(context.Background(), sig)
	if first.Approved != second.Approved {
		t.Fatal("approval decision diverged")
	}
	if !reflect.DeepEqual(first.Violations, second.Violations) {
		t.Errorf("violations diverged: %v vs %v", first.Violations, second.Violations)
	}
	if first.RiskScore != second.RiskScore {
		t.Errorf("risk score diverged: %.1f vs %.1f", first.RiskScore, second.RiskScore)
	}
}

func TestRiskChecker_PositionSizeCap(t *testing.T) {
	checker, ex := newRiskFixture()
	ex.SetBalance("USDT", 1000) // 上限 1000×0.5=500
	sig := buySignal(85)
	sig.Quantity = 10 // 名义金额 10×150=1500
	result := checker.Check(context.Background(), sig)
	if result.Approved {
		t.Fatal("expected rejection for oversized position")
	}
}

func TestRiskChecker_FrequencyCap(t *testing.T) {
	m := exchange.NewManager()
	ex := exchange.NewSimulatedExchange("binance")
	ex.SetPrice("SOLUSDT", 150)
	ex.SetBalance("USDT", 100_000)
	m.Register(ex)

	window := NewMemoryFrequencyWindow()
	cfg := testRiskConfig()
	cfg.MaxSignalsPerHour = 2
	checker := NewRiskChecker(cfg, m, window, nil)

	ctx := context.Background()
	window.Record(ctx, "SOLUSDT")
	window.Record(ctx, "SOLUSDT")

	result := checker.Check(ctx, buySignal(85))
	if result.Approved {
		t.Fatal("expected rejection at frequency cap")
	}
}

type fixedPnl struct{ pnl float64 }

func (f fixedPnl) RealizedPnlSince(ctx context.Context, since time.Time) (float64, error) {
	return f.pnl, nil
}

func TestRiskChecker_DailyLossFloor(t *testing.T) {
	m := exchange.NewManager()
	ex := exchange.NewSimulatedExchange("binance")
	ex.SetPrice("SOLUSDT", 150)
	ex.SetBalance("USDT", 100_000)
	m.Register(ex)

	checker := NewRiskChecker(testRiskConfig(), m, nil, fixedPnl{pnl: -600})
	result := checker.Check(context.Background(), buySignal(85))
	if result.Approved {
		t.Fatal("expected rejection after daily loss limit")
	}
}
