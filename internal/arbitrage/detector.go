package arbitrage

import (
	"context"
	"sort"
	"time"

	"spreadflow/conf"
	"spreadflow/internal/exchange"
	"spreadflow/internal/model"
	"spreadflow/pkg/logger"
)

// Detector 扫描各交易所报价，产出可执行的套利机会
type Detector struct {
	manager *exchange.Manager
	cfg     conf.ArbitrageConfig
}

func NewDetector(manager *exchange.Manager, cfg conf.ArbitrageConfig) *Detector {
	return &Detector{manager: manager, cfg: cfg}
}

// classify 按预估利润和价差百分比套入三级风险带
// 超出HIGH上限的机会视为坏报价，返回false丢弃
func (d *Detector) classify(spreadPercent, estimatedProfit float64) (model.RiskTier, bool) {
	switch {
	case estimatedProfit <= d.cfg.Low.MaxAmount && spreadPercent <= d.cfg.Low.MaxSpread:
		return model.RiskLow, true
	case estimatedProfit <= d.cfg.Medium.MaxAmount && spreadPercent <= d.cfg.Medium.MaxSpread:
		return model.RiskMedium, true
	case estimatedProfit <= d.cfg.High.MaxAmount && spreadPercent <= d.cfg.High.MaxSpread:
		return model.RiskHigh, true
	default:
		return "", false
	}
}

// FindOpportunities 对所有报价交易所两两组合计算价差
// 只保留 minSpreadPercent <= spread% <= maxSpreadPercent 区间内的机会
func (d *Detector) FindOpportunities(ctx context.Context, symbol string) ([]model.ArbitrageOpportunity, error) {
	quotes, err := d.manager.GetPrices(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(quotes) < 2 {
		return nil, nil
	}

	now := time.Now()
	var opportunities []model.ArbitrageOpportunity
	for i := 0; i < len(quotes); i++ {
		for j := 0; j < len(quotes); j++ {
			if i == j {
				continue
			}
			buy, sell := quotes[i], quotes[j]
			if sell.Price <= buy.Price {
				continue
			}
			spread := sell.Price - buy.Price
			spreadPercent := spread / buy.Price * 100
			if spreadPercent < d.cfg.MinSpreadPercent || spreadPercent > d.cfg.MaxSpreadPercent {
				continue
			}

			// 预估利润按配置的下单金额折算
			estimatedProfit := d.cfg.TradeAmount / buy.Price * spread
			tier, ok := d.classify(spreadPercent, estimatedProfit)
			if !ok {
				logger.Warnf("丢弃超出风险上限的套利机会: %s %s->%s spread=%.4f%%",
					symbol, buy.Exchange, sell.Exchange, spreadPercent)
				continue
			}

			opportunities = append(opportunities, model.ArbitrageOpportunity{
				Symbol:          symbol,
				BuyExchange:     buy.Exchange,
				SellExchange:    sell.Exchange,
				BuyPrice:        buy.Price,
				SellPrice:       sell.Price,
				Spread:          spread,
				SpreadPercent:   spreadPercent,
				EstimatedProfit: estimatedProfit,
				RiskTier:        tier,
				DetectedAt:      now,
			})
		}
	}

	// 价差大的排前面
	sort.Slice(opportunities, func(i, j int) bool {
		return opportunities[i].SpreadPercent > opportunities[j].SpreadPercent
	})
	return opportunities, nil
}
