package arbitrage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"spreadflow/conf"
	"spreadflow/internal/consts"
	"spreadflow/internal/exchange"
	"spreadflow/internal/model"
	"spreadflow/pkg/errors"
	"spreadflow/pkg/errors/ecode"
	"spreadflow/pkg/logger"
)

// TradeRecorder 落库套利台账，台账只追加不修改
type TradeRecorder interface {
	AppendArbitrageTrade(ctx context.Context, trade *model.ArbitrageTrade) error
}

// EventPublisher 向审计流发布执行事件
type EventPublisher interface {
	PublishArbitrageTrade(ctx context.Context, trade *model.ArbitrageTrade)
}

// Executor 执行双腿套利，下单前依次过冷却、并发上限、风险熔断三道闸
type Executor struct {
	manager   *exchange.Manager
	cfg       conf.ArbitrageConfig
	recorder  TradeRecorder  // 可为nil，纯内存运行
	publisher EventPublisher // 可为nil

	mu            sync.Mutex
	enabled       bool
	activeTrades  map[string]struct{} // tradeID -> 占用中的并发槽
	lastTradeAt   map[string]time.Time
	totalExecuted int64
	totalFailed   int64
	totalProfit   float64
	lastTrade     *time.Time
}

func NewExecutor(manager *exchange.Manager, cfg conf.ArbitrageConfig, recorder TradeRecorder, publisher EventPublisher) *Executor {
	return &Executor{
		manager:      manager,
		cfg:          cfg,
		recorder:     recorder,
		publisher:    publisher,
		enabled:      true,
		activeTrades: make(map[string]struct{}),
		lastTradeAt:  make(map[string]time.Time),
	}
}

// systemRiskLevel 按并发槽占用率折算系统风险
// 占用过半视为HIGH，此时拒绝再执行HIGH风险的机会
func (e *Executor) systemRiskLevel() model.RiskTier {
	if e.cfg.MaxConcurrentTrades <= 0 {
		return model.RiskLow
	}
	ratio := float64(len(e.activeTrades)) / float64(e.cfg.MaxConcurrentTrades)
	switch {
	case ratio >= 0.5:
		return model.RiskHigh
	case ratio > 0:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// acquireSlot 闸门检查和占槽必须在同一把锁内完成
func (e *Executor) acquireSlot(opp *model.ArbitrageOpportunity, tradeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return errors.New(ecode.ErrSystemDisabled, "")
	}
	if last, ok := e.lastTradeAt[opp.Symbol]; ok {
		if elapsed := time.Since(last); elapsed < e.cfg.Cooldown {
			return errors.New(ecode.ErrCooldownActive,
				fmt.Sprintf("%s 冷却中，还需等待 %s", opp.Symbol, (e.cfg.Cooldown - elapsed).Round(time.Second)))
		}
	}
	if len(e.activeTrades) >= e.cfg.MaxConcurrentTrades {
		return errors.New(ecode.ErrConcurrencyLimit, "")
	}
	if opp.RiskTier == model.RiskHigh && e.systemRiskLevel() == model.RiskHigh {
		return errors.New(ecode.ErrRiskRejected, "系统风险已达HIGH，拒绝执行HIGH风险套利")
	}

	e.activeTrades[tradeID] = struct{}{}
	e.lastTradeAt[opp.Symbol] = time.Now()
	return nil
}

func (e *Executor) releaseSlot(tradeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.activeTrades, tradeID)
}

// Execute 按买腿在前、卖腿在后的顺序执行两条腿
// 两腿之间没有原子性，买腿成交后卖腿失败时只记录不自动反向
func (e *Executor) Execute(ctx context.Context, opp *model.ArbitrageOpportunity, amount float64) (*model.ArbitrageTrade, error) {
	if amount <= 0 {
		amount = e.cfg.TradeAmount
	}
	tradeID := uuid.NewString()
	if err := e.acquireSlot(opp, tradeID); err != nil {
		return nil, err
	}
	defer e.releaseSlot(tradeID)

	trade := &model.ArbitrageTrade{
		TradeID:      tradeID,
		Symbol:       opp.Symbol,
		BuyExchange:  opp.BuyExchange,
		SellExchange: opp.SellExchange,
		BuyPrice:     opp.BuyPrice,
		SellPrice:    opp.SellPrice,
		Amount:       amount,
		Status:       model.ArbPending,
		CreatedAt:    time.Now(),
	}

	start := time.Now()
	err := e.placeLegs(ctx, opp, amount)
	trade.ExecutionTimeMs = time.Since(start).Milliseconds()

	e.mu.Lock()
	if err != nil {
		trade.Status = model.ArbFailed
		trade.Error = err.Error()
		e.totalFailed++
	} else {
		trade.Status = model.ArbExecuted
		qty := amount / opp.BuyPrice
		trade.Profit = qty * opp.Spread
		trade.ProfitPercent = opp.SpreadPercent
		e.totalExecuted++
		e.totalProfit += trade.Profit
	}
	now := time.Now()
	e.lastTrade = &now
	e.mu.Unlock()

	e.record(ctx, trade)
	if err != nil {
		return trade, err
	}
	logger.Infof("套利完成: %s 买%s@%.4f 卖%s@%.4f 利润%.4f (%dms)",
		trade.Symbol, trade.BuyExchange, trade.BuyPrice,
		trade.SellExchange, trade.SellPrice, trade.Profit, trade.ExecutionTimeMs)
	return trade, nil
}

// placeLegs 先买后卖。卖腿必须等买腿确认受理后才发出
func (e *Executor) placeLegs(ctx context.Context, opp *model.ArbitrageOpportunity, amount float64) error {
	buyEx, ok := e.manager.Get(opp.BuyExchange)
	if !ok {
		return errors.New(ecode.ErrExchangeNotFound, "未注册的交易所: "+opp.BuyExchange)
	}
	sellEx, ok := e.manager.Get(opp.SellExchange)
	if !ok {
		return errors.New(ecode.ErrExchangeNotFound, "未注册的交易所: "+opp.SellExchange)
	}

	qty := amount / opp.BuyPrice
	buyOrder, err := buyEx.PlaceOrder(ctx, &model.OrderRequest{
		Symbol:      opp.Symbol,
		Side:        model.Buy,
		Type:        model.Market,
		Quantity:    qty,
		StrategyTag: consts.StrategyTagArbBuy,
	})
	if err != nil {
		return errors.Wrap(err, ecode.ErrExchangeRejected, "买腿下单失败")
	}

	_, err = sellEx.PlaceOrder(ctx, &model.OrderRequest{
		Symbol:      opp.Symbol,
		Side:        model.Sell,
		Type:        model.Market,
		Quantity:    qty,
		StrategyTag: consts.StrategyTagArbSell,
	})
	if err != nil {
		// 买腿已成交，需要人工对账处理裸露仓位
		logger.Errorf("卖腿下单失败，买腿订单 %s 已在 %s 成交: %v",
			buyOrder.OrderID, opp.BuyExchange, err)
		return errors.Wrap(err, ecode.ErrExchangeRejected, "卖腿下单失败，持仓未对冲")
	}
	return nil
}

func (e *Executor) record(ctx context.Context, trade *model.ArbitrageTrade) {
	if e.recorder != nil {
		if err := e.recorder.AppendArbitrageTrade(ctx, trade); err != nil {
			logger.Errorf("套利台账落库失败: %v", err)
		}
	}
	if e.publisher != nil {
		e.publisher.PublishArbitrageTrade(ctx, trade)
	}
}

// EmergencyStop 清空并发槽并禁用执行器，之后的Execute一律拒绝
func (e *Executor) EmergencyStop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = false
	cleared := len(e.activeTrades)
	e.activeTrades = make(map[string]struct{})
	logger.Warnf("套利紧急停止，清空 %d 个在途槽位", cleared)
}

// Resume 恢复执行
func (e *Executor) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = true
}

// Status 运行时状态快照
func (e *Executor) Status() *model.ArbitrageStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	status := &model.ArbitrageStatus{
		Enabled:         e.enabled,
		ActiveTrades:    len(e.activeTrades),
		MaxConcurrent:   e.cfg.MaxConcurrentTrades,
		SystemRiskLevel: e.systemRiskLevel(),
		TotalExecuted:   e.totalExecuted,
		TotalFailed:     e.totalFailed,
		TotalProfit:     e.totalProfit,
	}
	if e.lastTrade != nil {
		t := *e.lastTrade
		status.LastTradeAt = &t
	}
	return status
}
