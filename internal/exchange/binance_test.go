package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"spreadflow/conf"
	"spreadflow/internal/model"
)

func newTestBinance(url string) *BinanceExchange {
	e := NewBinanceExchange(conf.ExchangeCredential{
		Name:      "binance",
		ApiKey:    "test-key",
		ApiSecret: "test-secret",
	})
	e.baseURL = url
	return e
}

// 读接口5xx后自动重试，最多3次
func TestBinance_GetPriceRetriesOn5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"symbol":"SOLUSDT","price":"150.25"}`))
	}))
	defer srv.Close()

	e := newTestBinance(srv.URL)
	price, err := e.GetPrice(context.Background(), "SOLUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 150.25 {
		t.Errorf("price = %v, want 150.25", price)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestBinance_GetPriceGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := newTestBinance(srv.URL)
	_, err := e.GetPrice(context.Background(), "SOLUSDT")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsUnavailable(err) {
		t.Errorf("expected unavailable error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != maxRetries {
		t.Errorf("calls = %d, want %d", got, maxRetries)
	}
}

// 下单只发一次请求，失败不得重试
func TestBinance_PlaceOrderNeverRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"code":-1000,"msg":"service unavailable"}`))
	}))
	defer srv.Close()

	e := newTestBinance(srv.URL)
	_, err := e.PlaceOrder(context.Background(), &model.OrderRequest{
		Symbol:   "SOLUSDT",
		Side:     model.Buy,
		Type:     model.Market,
		Quantity: 1,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1 (write requests must not retry)", got)
	}
}

// 4xx业务拒绝不重试
func TestBinance_RejectedNoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	e := newTestBinance(srv.URL)
	_, err := e.GetPrice(context.Background(), "XXXYYY")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRejected(err) {
		t.Errorf("expected rejected error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestBinance_ReadOnlyWithoutCredentials(t *testing.T) {
	e := NewBinanceExchange(conf.ExchangeCredential{Name: "binance"})
	_, err := e.PlaceOrder(context.Background(), &model.OrderRequest{
		Symbol:   "SOLUSDT",
		Side:     model.Buy,
		Type:     model.Market,
		Quantity: 1,
	})
	if err == nil {
		t.Fatal("expected error placing orders without credentials")
	}
}
