package exchange

import (
	"context"
	"sort"
	"sync"
	"time"

	"spreadflow/conf"
	"spreadflow/internal/consts"
	"spreadflow/internal/model"
	"spreadflow/pkg/logger"
)

// 跨交易所比价至少需要的报价数
const minSpreadQuotes = 2

// 报价聚合的单次超时
const spreadTimeout = 8 * time.Second

// Manager 管理多交易所连接，提供跨所比价
type Manager struct {
	mu        sync.RWMutex
	exchanges map[string]Exchange
	order     []string
}

func NewManager() *Manager {
	return &Manager{exchanges: make(map[string]Exchange)}
}

// NewManagerFromConfig 根据配置装配激活的交易所
func NewManagerFromConfig(creds []conf.ExchangeCredential) *Manager {
	m := NewManager()
	for _, cred := range creds {
		if !cred.Active {
			continue
		}
		switch cred.Name {
		case consts.ExchangeBinance:
			m.Register(NewBinanceExchange(cred))
		case consts.ExchangeOkx:
			m.Register(NewOkxExchange(cred))
		case consts.ExchangeGate:
			m.Register(NewGateExchange(cred))
		default:
			logger.Warnf("未知的交易所配置: %s", cred.Name)
		}
	}
	return m
}

func (m *Manager) Register(ex Exchange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := ex.Name()
	if _, ok := m.exchanges[name]; !ok {
		m.order = append(m.order, name)
	}
	m.exchanges[name] = ex
}

func (m *Manager) Get(name string) (Exchange, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ex, ok := m.exchanges[name]
	return ex, ok
}

// Names 按注册顺序返回交易所名
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	return names
}

func (m *Manager) snapshot() []Exchange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]Exchange, 0, len(m.order))
	for _, name := range m.order {
		list = append(list, m.exchanges[name])
	}
	return list
}

// GetPrices 并发拉取各所现价，容忍部分失败
func (m *Manager) GetPrices(ctx context.Context, symbol string) ([]model.VenuePrice, error) {
	exchanges := m.snapshot()
	if len(exchanges) == 0 {
		return nil, NewValidation("manager", "no exchange registered")
	}

	ctx, cancel := context.WithTimeout(ctx, spreadTimeout)
	defer cancel()

	type quoteResult struct {
		quote model.VenuePrice
		err   error
	}
	ch := make(chan quoteResult, len(exchanges))
	for _, ex := range exchanges {
		go func(ex Exchange) {
			price, err := ex.GetPrice(ctx, symbol)
			if err != nil {
				ch <- quoteResult{err: err}
				return
			}
			ch <- quoteResult{quote: model.VenuePrice{Exchange: ex.Name(), Price: price}}
		}(ex)
	}

	// 不等齐所有交易所：到点就用已返回的报价，不理会ctx的慢实现也拖不住聚合
	var quotes []model.VenuePrice
	var lastErr error
collect:
	for i := 0; i < len(exchanges); i++ {
		select {
		case r := <-ch:
			if r.err != nil {
				lastErr = r.err
				logger.Warnf("获取报价失败: %v", r.err)
				continue
			}
			if r.quote.Price > 0 {
				quotes = append(quotes, r.quote)
			}
		case <-ctx.Done():
			logger.Warnf("%s 报价聚合超时，只用已返回的%d家报价", symbol, len(quotes))
			lastErr = ctx.Err()
			break collect
		}
	}
	if len(quotes) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return quotes, nil
}

// GetPriceSpread 聚合各所报价并计算价差
// 可用报价不足两家时返回Unavailable，避免用单边价格做比价
func (m *Manager) GetPriceSpread(ctx context.Context, symbol string) (*model.PriceSpread, error) {
	quotes, err := m.GetPrices(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(quotes) < minSpreadQuotes {
		return nil, NewUnavailable("manager", errNotEnoughQuotes(symbol, len(quotes)))
	}

	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Price < quotes[j].Price })
	lowest := quotes[0]
	highest := quotes[len(quotes)-1]
	spread := highest.Price - lowest.Price

	return &model.PriceSpread{
		Symbol:        symbol,
		Quotes:        quotes,
		Lowest:        lowest,
		Highest:       highest,
		Spread:        spread,
		SpreadPercent: spread / lowest.Price * 100,
		Timestamp:     time.Now(),
	}, nil
}

// BestPrice 返回买入方向最优（最低卖价）的交易所报价
func (m *Manager) BestPrice(ctx context.Context, symbol string) (*model.VenuePrice, error) {
	quotes, err := m.GetPrices(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, NewUnavailable("manager", errNotEnoughQuotes(symbol, 0))
	}
	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.Price < best.Price {
			best = q
		}
	}
	return &best, nil
}

// HealthCheck 并发探活，返回各所可用状态
func (m *Manager) HealthCheck(ctx context.Context) map[string]bool {
	exchanges := m.snapshot()
	result := make(map[string]bool, len(exchanges))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, ex := range exchanges {
		wg.Add(1)
		go func(ex Exchange) {
			defer wg.Done()
			err := ex.Ping(ctx)
			mu.Lock()
			result[ex.Name()] = err == nil
			mu.Unlock()
			if err != nil {
				logger.Warnf("交易所 %s 探活失败: %v", ex.Name(), err)
			}
		}(ex)
	}
	wg.Wait()
	return result
}

type notEnoughQuotesError struct {
	symbol string
	got    int
}

func (e *notEnoughQuotesError) Error() string {
	return "not enough venue quotes for " + e.symbol
}

func errNotEnoughQuotes(symbol string, got int) error {
	return &notEnoughQuotesError{symbol: symbol, got: got}
}
