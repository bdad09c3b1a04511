package signal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"spreadflow/conf"
	"spreadflow/internal/exchange"
	"spreadflow/internal/model"
	"spreadflow/pkg/logger"
)

// FrequencyWindow 统计单币对最近一小时的信号数
type FrequencyWindow interface {
	Count(ctx context.Context, symbol string) (int, error)
	Record(ctx context.Context, symbol string) error
}

// PnlProvider 查询某时间点以来的已实现盈亏
type PnlProvider interface {
	RealizedPnlSince(ctx context.Context, since time.Time) (float64, error)
}

// RiskChecker 信号风控，所有检查全部跑完再汇总，不短路
type RiskChecker struct {
	cfg     conf.RiskConfig
	manager *exchange.Manager
	window  FrequencyWindow // 可为nil，跳过频率检查
	pnl     PnlProvider     // 可为nil，跳过当日亏损检查
}

func NewRiskChecker(cfg conf.RiskConfig, manager *exchange.Manager, window FrequencyWindow, pnl PnlProvider) *RiskChecker {
	return &RiskChecker{cfg: cfg, manager: manager, window: window, pnl: pnl}
}

// 违规类别到整改建议的映射
var recommendations = map[string]string{
	"daily_loss": "当日亏损已达上限，建议今日停止交易",
	"position":   "建议缩小下单数量",
	"confidence": "信号置信度偏低，建议等待更明确的入场信号",
	"leverage":   "建议降低杠杆倍数",
	"hours":      "当前不在交易时段内，请在交易时段重试",
	"frequency":  "该币对信号过于频繁，建议等待冷却",
	"balance":    "余额不足，建议充值或减小下单金额",
}

// Check 运行全部风控规则，violations聚合所有未通过的项
// 同样的信号和账户状态必须得到同样的结论
func (r *RiskChecker) Check(ctx context.Context, sig *model.TradeSignal) *model.RiskCheckResult {
	var violated error
	var categories []string
	total := 0

	check := func(category string, pass bool, detail string) {
		total++
		if !pass {
			violated = multierr.Append(violated, fmt.Errorf("%s: %s", category, detail))
			categories = append(categories, category)
		}
	}

	// 1. 当日已实现亏损
	if r.pnl != nil {
		dayStart := time.Now().Truncate(24 * time.Hour)
		pnl, err := r.pnl.RealizedPnlSince(ctx, dayStart)
		if err != nil {
			logger.Warnf("查询当日盈亏失败，跳过亏损检查: %v", err)
		} else {
			check("daily_loss", -pnl < r.cfg.MaxDailyLoss,
				fmt.Sprintf("当日已亏损%.2f，上限%.2f", -pnl, r.cfg.MaxDailyLoss))
		}
	}

	// 2. 仓位占比
	notional, balance := r.notionalAndBalance(ctx, sig)
	if balance > 0 {
		maxNotional := balance * r.cfg.MaxPositionPct
		check("position", notional <= maxNotional,
			fmt.Sprintf("下单金额%.2f超过账户余额的%.0f%%(%.2f)", notional, r.cfg.MaxPositionPct*100, maxNotional))
	}

	// 3. 置信度
	check("confidence", sig.Confidence >= r.cfg.MinConfidence,
		fmt.Sprintf("置信度%.0f低于门槛%.0f", sig.Confidence, r.cfg.MinConfidence))

	// 4. 杠杆
	check("leverage", sig.Leverage <= r.cfg.MaxLeverage,
		fmt.Sprintf("杠杆%d超过上限%d", sig.Leverage, r.cfg.MaxLeverage))

	// 5. 交易时段，币市默认7x24不启用
	if r.cfg.TradingHoursEnable {
		check("hours", r.withinTradingHours(time.Now()),
			fmt.Sprintf("不在交易时段%s~%s内", r.cfg.TradingHoursStart, r.cfg.TradingHoursEnd))
	}

	// 6. 信号频率
	if r.window != nil {
		count, err := r.window.Count(ctx, sig.Symbol)
		if err != nil {
			logger.Warnf("查询信号频率失败，跳过频率检查: %v", err)
		} else {
			check("frequency", count < r.cfg.MaxSignalsPerHour,
				fmt.Sprintf("%s最近一小时已有%d个信号，上限%d", sig.Symbol, count, r.cfg.MaxSignalsPerHour))
		}
	}

	// 7. 余额充足性
	if balance >= 0 && sig.Action == model.ActionBuy {
		check("balance", balance >= notional,
			fmt.Sprintf("需要%.2f，可用%.2f", notional, balance))
	}

	result := &model.RiskCheckResult{
		Approved:  violated == nil,
		CheckedAt: time.Now(),
	}
	for _, err := range multierr.Errors(violated) {
		result.Violations = append(result.Violations, err.Error())
	}
	seen := make(map[string]struct{})
	for _, c := range categories {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		if rec, ok := recommendations[c]; ok {
			result.Recommendations = append(result.Recommendations, rec)
		}
	}
	if total > 0 {
		result.RiskScore = float64(len(multierr.Errors(violated))) / float64(total) * 100
	}
	return result
}

// notionalAndBalance 估算下单名义金额和可动用余额
// 拿不到余额时返回-1，相关检查跳过
func (r *RiskChecker) notionalAndBalance(ctx context.Context, sig *model.TradeSignal) (float64, float64) {
	price := sig.Price
	ex, ok := r.pickExchange(sig)
	if price <= 0 && ok {
		if p, err := ex.GetPrice(ctx, sig.Symbol); err == nil {
			price = p
		}
	}
	notional := sig.Quantity * price

	if !ok {
		return notional, -1
	}
	balance, err := ex.GetBalance(ctx, quoteAssetOf(sig.Symbol))
	if err != nil {
		logger.Warnf("查询余额失败，跳过余额相关检查: %v", err)
		return notional, -1
	}
	return notional, balance.Free
}

func (r *RiskChecker) pickExchange(sig *model.TradeSignal) (exchange.Exchange, bool) {
	if sig.Exchange != "" {
		return r.manager.Get(sig.Exchange)
	}
	names := r.manager.Names()
	if len(names) == 0 {
		return nil, false
	}
	return r.manager.Get(names[0])
}

func quoteAssetOf(symbol string) string {
	for _, q := range []string{"USDT", "USDC", "BTC", "ETH", "USD"} {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return q
		}
	}
	return "USDT"
}

func (r *RiskChecker) withinTradingHours(now time.Time) bool {
	start, err1 := time.Parse("15:04", r.cfg.TradingHoursStart)
	end, err2 := time.Parse("15:04", r.cfg.TradingHoursEnd)
	if err1 != nil || err2 != nil {
		logger.Warnf("交易时段配置非法: %s~%s", r.cfg.TradingHoursStart, r.cfg.TradingHoursEnd)
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	s := start.Hour()*60 + start.Minute()
	e := end.Hour()*60 + end.Minute()
	if s <= e {
		return cur >= s && cur <= e
	}
	// 跨夜时段
	return cur >= s || cur <= e
}
