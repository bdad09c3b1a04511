package signal

import (
	"testing"

	"spreadflow/internal/model"
	"spreadflow/pkg/errors"
	"spreadflow/pkg/errors/ecode"
)

func TestParse_JSON(t *testing.T) {
	raw := []byte(`{
		"symbol": "solusdt",
		"action": "buy",
		"exchange": "binance",
		"order_type": "LIMIT",
		"quantity": 50,
		"price": 150.5,
		"stop_loss": 145,
		"take_profit": 160,
		"confidence": 85,
		"strategy": "breakout"
	}`)
	sig, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Symbol != "SOLUSDT" || sig.Action != model.ActionBuy {
		t.Errorf("symbol/action = %s/%s", sig.Symbol, sig.Action)
	}
	if sig.OrderType != model.Limit || sig.Price != 150.5 {
		t.Errorf("order type/price = %s/%.2f", sig.OrderType, sig.Price)
	}
	if sig.StopLoss != 145 || sig.TakeProfit != 160 {
		t.Errorf("sl/tp = %.2f/%.2f", sig.StopLoss, sig.TakeProfit)
	}
	if sig.Confidence != 85 {
		t.Errorf("confidence = %.0f, want 85", sig.Confidence)
	}
}

// 数值字段允许字符串形态，TradingView的告警经常这么发
func TestParse_JSONStringNumbers(t *testing.T) {
	raw := []byte(`{"symbol":"SOLUSDT","side":"SELL","quantity":"25","price":"151.2","confidence":"60"}`)
	sig, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Action != model.ActionSell || sig.Quantity != 25 || sig.Price != 151.2 {
		t.Errorf("parsed = %+v", sig)
	}
	if sig.Confidence != 60 {
		t.Errorf("confidence = %.0f, want 60", sig.Confidence)
	}
}

func TestParse_AlertText(t *testing.T) {
	sig, err := Parse([]byte("BUY SOLUSDT @ 150.50 SL: 145 TP: 160"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Symbol != "SOLUSDT" || sig.Action != model.ActionBuy {
		t.Errorf("symbol/action = %s/%s", sig.Symbol, sig.Action)
	}
	if sig.Price != 150.50 || sig.StopLoss != 145 || sig.TakeProfit != 160 {
		t.Errorf("price/sl/tp = %.2f/%.2f/%.2f", sig.Price, sig.StopLoss, sig.TakeProfit)
	}
}

func TestParse_AlertTextWithoutProtectiveOrders(t *testing.T) {
	sig, err := Parse([]byte("close SOLUSDT @ 150"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Action != model.ActionClose {
		t.Errorf("action = %s, want CLOSE", sig.Action)
	}
	if sig.StopLoss != 0 || sig.TakeProfit != 0 {
		t.Errorf("sl/tp should be zero, got %.2f/%.2f", sig.StopLoss, sig.TakeProfit)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"missing symbol", `{"action":"BUY"}`},
		{"missing action", `{"symbol":"SOLUSDT"}`},
		{"bad action", `{"symbol":"SOLUSDT","action":"HODL"}`},
		{"confidence above 100", `{"symbol":"SOLUSDT","action":"BUY","confidence":120}`},
		{"negative quantity", `{"symbol":"SOLUSDT","action":"BUY","quantity":-1}`},
		{"garbage text", "TO THE MOON"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse([]byte(c.raw))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.IsCode(err, ecode.ErrValidation) {
				t.Errorf("code = %v, want ErrValidation", err)
			}
		})
	}
}
