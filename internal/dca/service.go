package dca

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"spreadflow/conf"
	"spreadflow/internal/consts"
	"spreadflow/internal/exchange"
	"spreadflow/internal/model"
	"spreadflow/pkg/errors"
	"spreadflow/pkg/errors/ecode"
	"spreadflow/pkg/logger"
)

// 开仓前的余额预检按固定倍数估算每一步的加仓金额
// 实际下单用动态倍数，这里只做保守预估
const preflightStepMultiplier = 1.5

// PositionStore 仓位持久化，读改写必须是条件更新避免并发加仓用到过期的序号
type PositionStore interface {
	GetBySymbol(ctx context.Context, symbol string) (*model.DCAPosition, error)
	Upsert(ctx context.Context, pos *model.DCAPosition) error
	ListActive(ctx context.Context) ([]model.DCAPosition, error)
	// AdvanceOrder 仅当current_order_index仍等于fromIndex时推进仓位，返回是否命中
	AdvanceOrder(ctx context.Context, symbol string, fromIndex int, invested, sizeFactor, entryPrice float64) (bool, error)
}

// TradeRecorder 追加成交台账
type TradeRecorder interface {
	AppendTradeRecord(ctx context.Context, record *model.TradeRecord) error
}

// Settings 开仓参数，零值字段用全局配置补齐
type Settings struct {
	Exchange          string  `json:"exchange"`
	BaseAmount        float64 `json:"base_amount"`
	MaxOrders         int     `json:"max_orders"`
	PriceDeviationPct float64 `json:"price_deviation_pct"`
	TakeProfitPct     float64 `json:"take_profit_pct"`
	StopLossPct       float64 `json:"stop_loss_pct"`
}

// Service 定投仓位管理，START/STOP/EXECUTE/RESET都经过它
type Service struct {
	manager  *exchange.Manager
	cfg      conf.DcaConfig
	store    PositionStore
	recorder TradeRecorder // 可为nil
	weights  model.MultiplierWeights
}

func NewService(manager *exchange.Manager, cfg conf.DcaConfig, store PositionStore, recorder TradeRecorder) *Service {
	return &Service{
		manager:  manager,
		cfg:      cfg,
		store:    store,
		recorder: recorder,
		weights:  model.DefaultMultiplierWeights(),
	}
}

func (s *Service) fill(settings *Settings) {
	if settings.BaseAmount <= 0 {
		settings.BaseAmount = s.cfg.BaseAmount
	}
	if settings.MaxOrders <= 0 {
		settings.MaxOrders = s.cfg.MaxOrders
	}
	if settings.PriceDeviationPct <= 0 {
		settings.PriceDeviationPct = s.cfg.PriceDeviationPct
	}
	if settings.TakeProfitPct <= 0 {
		settings.TakeProfitPct = s.cfg.TakeProfitPct
	}
	if settings.StopLossPct <= 0 {
		settings.StopLossPct = s.cfg.StopLossPct
	}
	if settings.Exchange == "" {
		settings.Exchange = consts.ExchangeBinance
	}
}

// estimateTotalRequired 预检用的总投入估算，每一步固定1.5倍递增
func estimateTotalRequired(baseAmount float64, maxOrders int) float64 {
	total := 0.0
	for i := 0; i < maxOrders; i++ {
		total += baseAmount * math.Pow(preflightStepMultiplier, float64(i))
	}
	return total
}

// quoteAsset 从symbol里拆出计价币
func quoteAsset(symbol string) string {
	for _, q := range []string{"USDT", "USDC", "BTC", "ETH", "USD"} {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return q
		}
	}
	return "USDT"
}

// Start 开启一个币对的定投仓位
// 已存在的active仓位不允许重复开启
func (s *Service) Start(ctx context.Context, symbol string, settings Settings) (*model.DCAPosition, error) {
	if symbol == "" {
		return nil, errors.New(ecode.ErrValidation, "symbol不能为空")
	}
	s.fill(&settings)

	existing, err := s.store.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsActive {
		return nil, errors.New(ecode.ErrValidation, symbol+" 已有进行中的定投仓位")
	}

	ex, ok := s.manager.Get(settings.Exchange)
	if !ok {
		return nil, errors.New(ecode.ErrExchangeNotFound, "未注册的交易所: "+settings.Exchange)
	}

	// 余额预检：按固定1.5倍/步估算整个计划需要的资金
	required := estimateTotalRequired(settings.BaseAmount, settings.MaxOrders)
	balance, err := ex.GetBalance(ctx, quoteAsset(symbol))
	if err != nil {
		return nil, err
	}
	if balance.Free < required {
		return nil, errors.New(ecode.ErrRiskRejected,
			fmt.Sprintf("余额不足以完成定投计划：需要约%.2f，可用%.2f", required, balance.Free))
	}

	pos := &model.DCAPosition{
		Symbol:            symbol,
		Exchange:          settings.Exchange,
		IsActive:          true,
		BaseAmount:        settings.BaseAmount,
		MaxOrders:         settings.MaxOrders,
		PriceDeviationPct: settings.PriceDeviationPct,
		TakeProfitPct:     settings.TakeProfitPct,
		StopLossPct:       settings.StopLossPct,
		CurrentOrderIndex: 0,
		TotalInvested:     0,
		SizeFactor:        1,
		LastCheckedAt:     time.Now(),
	}
	if existing != nil {
		pos.ID = existing.ID
	}
	if err := s.store.Upsert(ctx, pos); err != nil {
		return nil, err
	}
	logger.Infof("定投开启: %s base=%.2f maxOrders=%d 预估总投入%.2f",
		symbol, settings.BaseAmount, settings.MaxOrders, required)
	return pos, nil
}

// Stop 停止定投，保留进度
func (s *Service) Stop(ctx context.Context, symbol string) (*model.DCAPosition, error) {
	pos, err := s.mustGet(ctx, symbol)
	if err != nil {
		return nil, err
	}
	pos.IsActive = false
	if err := s.store.Upsert(ctx, pos); err != nil {
		return nil, err
	}
	return pos, nil
}

// Reset 清零进度，重新从第0单开始
func (s *Service) Reset(ctx context.Context, symbol string) (*model.DCAPosition, error) {
	pos, err := s.mustGet(ctx, symbol)
	if err != nil {
		return nil, err
	}
	pos.CurrentOrderIndex = 0
	pos.TotalInvested = 0
	pos.SizeFactor = 1
	pos.LastEntryPrice = 0
	if err := s.store.Upsert(ctx, pos); err != nil {
		return nil, err
	}
	logger.Infof("定投重置: %s", symbol)
	return pos, nil
}

// UpdateSettings 修改仓位参数，不影响已执行的进度
func (s *Service) UpdateSettings(ctx context.Context, symbol string, settings Settings) (*model.DCAPosition, error) {
	pos, err := s.mustGet(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if settings.BaseAmount > 0 {
		pos.BaseAmount = settings.BaseAmount
	}
	if settings.MaxOrders > 0 {
		pos.MaxOrders = settings.MaxOrders
	}
	if settings.PriceDeviationPct > 0 {
		pos.PriceDeviationPct = settings.PriceDeviationPct
	}
	if settings.TakeProfitPct > 0 {
		pos.TakeProfitPct = settings.TakeProfitPct
	}
	if settings.StopLossPct > 0 {
		pos.StopLossPct = settings.StopLossPct
	}
	if err := s.store.Upsert(ctx, pos); err != nil {
		return nil, err
	}
	return pos, nil
}

func (s *Service) Get(ctx context.Context, symbol string) (*model.DCAPosition, error) {
	return s.mustGet(ctx, symbol)
}

func (s *Service) mustGet(ctx context.Context, symbol string) (*model.DCAPosition, error) {
	pos, err := s.store.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, errors.New(ecode.ErrDcaInactive, symbol+" 没有定投仓位")
	}
	return pos, nil
}

// Monitor 周期轮询所有active仓位，价格条件满足的自动加仓
// ctx取消时退出，interval就是定投的调度粒度
func (s *Service) Monitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Service) pollOnce(ctx context.Context) {
	positions, err := s.store.ListActive(ctx)
	if err != nil {
		logger.Errorf("轮询定投仓位失败: %v", err)
		return
	}
	for _, pos := range positions {
		if pos.IsComplete() {
			continue
		}
		result, err := s.Execute(ctx, pos.Symbol)
		if err != nil {
			logger.Errorf("定投轮询执行失败 %s: %v", pos.Symbol, err)
			continue
		}
		if result.Executed {
			logger.Infof("定投轮询触发加仓: %s 第%d单", pos.Symbol, result.OrderIndex)
		}
	}
}

// Execute 执行一次定投决策
// 已完成的仓位返回"已完成"结果而不下单；价格条件未满足时返回原因但不算错误
func (s *Service) Execute(ctx context.Context, symbol string) (*model.DCAExecuteResult, error) {
	pos, err := s.mustGet(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !pos.IsActive {
		return nil, errors.New(ecode.ErrDcaInactive, symbol+" 的定投未开启")
	}
	if pos.IsComplete() {
		return &model.DCAExecuteResult{
			Symbol:     symbol,
			Executed:   false,
			Reason:     "定投计划已完成",
			OrderIndex: pos.CurrentOrderIndex,
		}, nil
	}

	ex, ok := s.manager.Get(pos.Exchange)
	if !ok {
		return nil, errors.New(ecode.ErrExchangeNotFound, "未注册的交易所: "+pos.Exchange)
	}

	snapshot, err := FetchSnapshot(ctx, ex, symbol)
	if err != nil {
		return nil, err
	}

	// 首单立即执行，加仓单要求价格相对上次入场价回落足够幅度
	if pos.CurrentOrderIndex > 0 && pos.LastEntryPrice > 0 {
		trigger := pos.LastEntryPrice * (1 - pos.PriceDeviationPct/100)
		if snapshot.CurrentPrice > trigger {
			return &model.DCAExecuteResult{
				Symbol:     symbol,
				Executed:   false,
				Reason:     fmt.Sprintf("未达到加仓条件：现价%.4f > 触发价%.4f", snapshot.CurrentPrice, trigger),
				OrderIndex: pos.CurrentOrderIndex,
			}, nil
		}
	}

	breakdown := ComputeMultiplier(snapshot, s.weights, s.cfg.BaseMultiplier)
	// 下单金额对历史倍数路径依赖：base × 累积倍数 × 本次倍数
	amount := pos.BaseAmount * pos.SizeFactor * breakdown.Final

	balance, err := ex.GetBalance(ctx, quoteAsset(symbol))
	if err != nil {
		return nil, err
	}
	if balance.Free < amount {
		return nil, errors.New(ecode.ErrRiskRejected,
			fmt.Sprintf("余额不足：本单需要%.2f，可用%.2f", amount, balance.Free))
	}

	qty := amount / snapshot.CurrentPrice
	order, err := ex.PlaceOrder(ctx, &model.OrderRequest{
		Symbol:      symbol,
		Side:        model.Buy,
		Type:        model.Market,
		Quantity:    qty,
		StrategyTag: consts.StrategyTagDca,
	})
	if err != nil {
		return nil, err
	}

	// 条件更新：并发的两次Execute只有一个能推进序号
	advanced, err := s.store.AdvanceOrder(ctx, symbol,
		pos.CurrentOrderIndex,
		pos.TotalInvested+amount,
		pos.SizeFactor*breakdown.Final,
		snapshot.CurrentPrice)
	if err != nil {
		logger.Errorf("定投仓位更新失败，订单 %s 已成交: %v", order.OrderID, err)
	} else if !advanced {
		logger.Warnf("定投仓位已被并发更新，订单 %s 的进度推进被放弃", order.OrderID)
	}

	if s.recorder != nil {
		record := &model.TradeRecord{
			OrderId:   order.OrderID,
			Exchange:  pos.Exchange,
			Symbol:    symbol,
			Side:      model.Buy,
			OrderType: model.Market,
			Price:     snapshot.CurrentPrice,
			Quantity:  qty,
			Strategy:  consts.StrategyTagDca,
			Status:    order.Status,
			CreatedAt: time.Now(),
		}
		if err := s.recorder.AppendTradeRecord(ctx, record); err != nil {
			logger.Errorf("定投台账落库失败: %v", err)
		}
	}

	logger.Infof("定投第%d单: %s 金额%.2f 倍数%.4f (%s)",
		pos.CurrentOrderIndex, symbol, amount, breakdown.Final, breakdown.Explanation)
	return &model.DCAExecuteResult{
		Symbol:     symbol,
		Executed:   true,
		OrderIndex: pos.CurrentOrderIndex,
		Amount:     amount,
		Multiplier: breakdown,
		Order:      order,
	}, nil
}
