package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"spreadflow/internal/model"
)

// 模拟交易所，下单立即成交，供策略层和测试使用
type SimulatedExchange struct {
	name string

	mu       sync.Mutex
	prices   map[string]float64
	klines   map[string][]model.Kline
	balances map[string]*model.Balance
	orders   map[string]*model.OrderResult

	// 故障注入
	PriceErr error
	PlaceErr error
	PingErr  error

	// PriceDelay 模拟慢交易所，GetPrice睡够这么久才返回且不理会ctx
	PriceDelay time.Duration

	failAfterN   int
	failAfterErr error

	PlacedOrders []model.OrderRequest
}

func NewSimulatedExchange(name string) *SimulatedExchange {
	return &SimulatedExchange{
		name:     name,
		prices:   make(map[string]float64),
		klines:   make(map[string][]model.Kline),
		balances: make(map[string]*model.Balance),
		orders:   make(map[string]*model.OrderResult),
	}
}

func (s *SimulatedExchange) Name() string { return s.name }

func (s *SimulatedExchange) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

func (s *SimulatedExchange) SetKlines(symbol string, klines []model.Kline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.klines[symbol] = klines
}

func (s *SimulatedExchange) SetBalance(asset string, free float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[asset] = &model.Balance{Asset: asset, Free: free, Total: free}
}

// FailAfter 前n笔下单成功，之后的全部返回err
func (s *SimulatedExchange) FailAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfterN = n
	s.failAfterErr = err
}

func (s *SimulatedExchange) Ping(ctx context.Context) error {
	return s.PingErr
}

func (s *SimulatedExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if s.PriceDelay > 0 {
		time.Sleep(s.PriceDelay)
	}
	if s.PriceErr != nil {
		return 0, s.PriceErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	price, ok := s.prices[symbol]
	if !ok {
		return 0, NewUnavailable(s.name, fmt.Errorf("no price for %s", symbol))
	}
	return price, nil
}

func (s *SimulatedExchange) Get24hTicker(ctx context.Context, symbol string) (*model.Ticker24h, error) {
	price, err := s.GetPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &model.Ticker24h{
		Symbol:    symbol,
		LastPrice: price,
		High:      price * 1.05,
		Low:       price * 0.95,
		Timestamp: time.Now(),
	}, nil
}

func (s *SimulatedExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Kline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	klines, ok := s.klines[symbol]
	if !ok {
		return nil, NewUnavailable(s.name, fmt.Errorf("no klines for %s", symbol))
	}
	if limit > 0 && len(klines) > limit {
		klines = klines[len(klines)-limit:]
	}
	return klines, nil
}

func (s *SimulatedExchange) GetBalance(ctx context.Context, asset string) (*model.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[asset]; ok {
		cp := *b
		return &cp, nil
	}
	return &model.Balance{Asset: asset}, nil
}

func (s *SimulatedExchange) GetAllBalances(ctx context.Context) ([]model.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balances := make([]model.Balance, 0, len(s.balances))
	for _, b := range s.balances {
		balances = append(balances, *b)
	}
	return balances, nil
}

func (s *SimulatedExchange) GetAccountInfo(ctx context.Context) (*model.AccountInfo, error) {
	balances, _ := s.GetAllBalances(ctx)
	return &model.AccountInfo{
		Exchange: s.name,
		CanTrade: true,
		Balances: balances,
		UpdateAt: time.Now(),
	}, nil
}

func (s *SimulatedExchange) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.OrderResult, error) {
	if s.PlaceErr != nil {
		return nil, s.PlaceErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAfterErr != nil && len(s.PlacedOrders) >= s.failAfterN {
		return nil, s.failAfterErr
	}
	s.PlacedOrders = append(s.PlacedOrders, *req)

	price := req.Price
	if price <= 0 {
		price = s.prices[req.Symbol]
	}
	status := model.OrderFilled
	if req.Type == model.StopMarket || req.Type == model.StopLimit {
		// 触发单挂起等待触发
		status = model.OrderPending
	}
	result := &model.OrderResult{
		OrderID:      uuid.NewString(),
		Symbol:       req.Symbol,
		Side:         req.Side,
		Type:         req.Type,
		Status:       status,
		RequestedQty: req.Quantity,
		Price:        price,
		ExecutedQty:  req.Quantity,
		AvgPrice:     price,
		Timestamp:    time.Now(),
		Exchange:     s.name,
	}
	if status == model.OrderPending {
		result.ExecutedQty = 0
		result.AvgPrice = 0
	}
	s.orders[result.OrderID] = result
	return result, nil
}

func (s *SimulatedExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return NewRejected(s.name, "order not found", "", 0)
	}
	order.Status = model.OrderCancelled
	return nil
}

func (s *SimulatedExchange) GetOrder(ctx context.Context, symbol, orderID string) (*model.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, NewRejected(s.name, "order not found", "", 0)
	}
	cp := *order
	return &cp, nil
}

func (s *SimulatedExchange) GetOpenOrders(ctx context.Context, symbol string) ([]model.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []model.OrderResult
	for _, o := range s.orders {
		if o.Symbol == symbol && o.Status == model.OrderPending {
			open = append(open, *o)
		}
	}
	return open, nil
}

func (s *SimulatedExchange) GetOrderHistory(ctx context.Context, symbol string, limit int) ([]model.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var history []model.OrderResult
	for _, o := range s.orders {
		if o.Symbol == symbol {
			history = append(history, *o)
		}
	}
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

func (s *SimulatedExchange) GetTradeHistory(ctx context.Context, symbol string, limit int) ([]model.Trade, error) {
	orders, err := s.GetOrderHistory(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}
	var trades []model.Trade
	for _, o := range orders {
		if o.ExecutedQty <= 0 {
			continue
		}
		trades = append(trades, model.Trade{
			TradeID:   o.OrderID,
			OrderID:   o.OrderID,
			Symbol:    symbol,
			Side:      o.Side,
			Price:     o.AvgPrice,
			Quantity:  o.ExecutedQty,
			Timestamp: o.Timestamp,
		})
	}
	return trades, nil
}
