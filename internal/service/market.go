package service

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"

	"spreadflow/internal/consts"
	"spreadflow/internal/exchange"
	"spreadflow/internal/model"
	"spreadflow/pkg/cache"
	"spreadflow/pkg/logger"
)

// 行情快照在redis里的存活时间，过期后强制回源
const (
	spreadCacheTTL = 3 * time.Second
	tickerCacheTTL = 30 * time.Second
)

// MarketService 在Manager之上加一层redis缓存，挡掉高频查询对交易所的穿透
// redis不可用时直接回源，不影响功能
type MarketService struct {
	manager *exchange.Manager
}

func NewMarketService(manager *exchange.Manager) *MarketService {
	return &MarketService{manager: manager}
}

func (s *MarketService) rdb() *redis.Client {
	if !cache.Initialized() {
		return nil
	}
	return cache.GetRedisClient()
}

// GetPriceSpread 优先读缓存，miss或redis异常时回源并写回
func (s *MarketService) GetPriceSpread(ctx context.Context, symbol string) (*model.PriceSpread, error) {
	key := consts.SpreadSnapshotPrefix + symbol
	if rdb := s.rdb(); rdb != nil {
		data, err := rdb.Get(ctx, key).Bytes()
		if err == nil {
			var spread model.PriceSpread
			if err := json.Unmarshal(data, &spread); err == nil {
				return &spread, nil
			}
		} else if err != redis.Nil {
			logger.Warnf("读取价差缓存失败: %v", err)
		}
	}

	spread, err := s.manager.GetPriceSpread(ctx, symbol)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, key, spread, spreadCacheTTL)
	return spread, nil
}

// Get24hTicker 单交易所的24h行情，带缓存
func (s *MarketService) Get24hTicker(ctx context.Context, exchangeName, symbol string) (*model.Ticker24h, error) {
	ex, ok := s.manager.Get(exchangeName)
	if !ok {
		return nil, exchange.NewValidation("manager", "未注册的交易所: "+exchangeName)
	}

	key := consts.TickerCachePrefix + exchangeName + ":" + symbol
	if rdb := s.rdb(); rdb != nil {
		data, err := rdb.Get(ctx, key).Bytes()
		if err == nil {
			var ticker model.Ticker24h
			if err := json.Unmarshal(data, &ticker); err == nil {
				return &ticker, nil
			}
		}
	}

	ticker, err := ex.Get24hTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, key, ticker, tickerCacheTTL)
	return ticker, nil
}

func (s *MarketService) writeCache(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	rdb := s.rdb()
	if rdb == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		logger.Warnf("写入行情缓存失败: %v", err)
	}
}

// GetKlines 直接透传给指定交易所
func (s *MarketService) GetKlines(ctx context.Context, exchangeName, symbol, interval string, limit int) ([]model.Kline, error) {
	ex, ok := s.manager.Get(exchangeName)
	if !ok {
		return nil, exchange.NewValidation("manager", "未注册的交易所: "+exchangeName)
	}
	return ex.GetKlines(ctx, symbol, interval, limit)
}
