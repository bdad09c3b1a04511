package signal

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/datatypes"

	"spreadflow/internal/consts"
	"spreadflow/internal/exchange"
	"spreadflow/internal/model"
	"spreadflow/pkg/errors"
	"spreadflow/pkg/errors/ecode"
	"spreadflow/pkg/logger"
	"spreadflow/utils/uuid"
)

// SignalStore 信号台账持久化
type SignalStore interface {
	CreateSignalRecord(ctx context.Context, record *model.SignalRecord) error
	UpdateSignalRecord(ctx context.Context, record *model.SignalRecord) error
}

// TradeRecorder 成交台账，只追加
type TradeRecorder interface {
	AppendTradeRecord(ctx context.Context, record *model.TradeRecord) error
}

// EventPublisher 执行事件的审计流
type EventPublisher interface {
	PublishSignal(ctx context.Context, record *model.SignalRecord)
}

// ProcessResult 单条信号走完管道后的汇总
type ProcessResult struct {
	Signal    *model.TradeSignal     `json:"signal"`
	Risk      *model.RiskCheckResult `json:"risk"`
	Execution *model.ExecutionResult `json:"execution,omitempty"`
	Status    model.SignalStatus     `json:"status"`
	RecordID  int64                  `json:"record_id,omitempty"`
}

// Pipeline 信号处理管道：parse -> risk-check -> execute -> record
// 状态机单向：PENDING -> EXECUTED | REJECTED | FAILED
type Pipeline struct {
	manager   *exchange.Manager
	risk      *RiskChecker
	window    FrequencyWindow // 可为nil
	store     SignalStore     // 可为nil，纯内存运行
	recorder  TradeRecorder   // 可为nil
	publisher EventPublisher  // 可为nil
}

func NewPipeline(manager *exchange.Manager, risk *RiskChecker, window FrequencyWindow,
	store SignalStore, recorder TradeRecorder, publisher EventPublisher) *Pipeline {
	return &Pipeline{
		manager:   manager,
		risk:      risk,
		window:    window,
		store:     store,
		recorder:  recorder,
		publisher: publisher,
	}
}

// Process 处理一条原始信号
// 解析失败返回error；风控拒绝不是错误，结果里带完整的违规列表
func (p *Pipeline) Process(ctx context.Context, raw []byte) (*ProcessResult, error) {
	sig, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	// 文本告警不携带数量，按配置的默认下单金额折算；折算不了的信号不许带着0数量往下走
	if sig.Quantity <= 0 {
		amt := p.risk.cfg.DefaultOrderAmount
		if amt <= 0 || sig.Price <= 0 {
			return nil, errors.New(ecode.ErrValidation, "信号缺少下单数量")
		}
		sig.Quantity = amt / sig.Price
	}

	record := p.newRecord(raw, sig)
	result := &ProcessResult{Signal: sig, Status: model.SignalPending}

	// 台账先落PENDING，下单途中崩溃也留得下审计痕迹
	if p.store != nil {
		if err := p.store.CreateSignalRecord(ctx, record); err != nil {
			logger.Errorf("信号台账落库失败: %v", err)
		} else {
			result.RecordID = record.ID
		}
	}

	riskResult := p.risk.Check(ctx, sig)

	// 频率窗口在风控计数之后登记，本条信号不占自己的配额，被拒的信号照样计入
	if p.window != nil {
		if err := p.window.Record(ctx, sig.Symbol); err != nil {
			logger.Warnf("信号频率登记失败: %v", err)
		}
	}
	result.Risk = riskResult
	record.RiskResult = mustJSON(riskResult)

	if !riskResult.Approved {
		result.Status = model.SignalRejected
		p.finish(ctx, record, result)
		logger.Infof("信号被风控拒绝: %s %s 违规%d项", sig.Symbol, sig.Action, len(riskResult.Violations))
		return result, nil
	}

	execution, execErr := p.execute(ctx, sig)
	result.Execution = execution
	record.Execution = mustJSON(execution)
	if execErr != nil {
		result.Status = model.SignalFailed
		p.finish(ctx, record, result)
		return result, execErr
	}

	result.Status = model.SignalExecuted
	p.finish(ctx, record, result)
	return result, nil
}

func (p *Pipeline) newRecord(raw []byte, sig *model.TradeSignal) *model.SignalRecord {
	return &model.SignalRecord{
		ID:        uuid.GenId(),
		RawSignal: datatypes.JSON(raw),
		Signal:    mustJSON(sig),
		Symbol:    sig.Symbol,
		Strategy:  sig.Strategy,
		Status:    model.SignalPending,
		CreatedAt: time.Now(),
	}
}

func (p *Pipeline) finish(ctx context.Context, record *model.SignalRecord, result *ProcessResult) {
	record.Status = result.Status
	record.UpdatedAt = time.Now()
	if p.store != nil {
		if err := p.store.UpdateSignalRecord(ctx, record); err != nil {
			logger.Errorf("信号台账更新失败: %v", err)
		}
	}
	if p.publisher != nil {
		p.publisher.PublishSignal(ctx, record)
	}
}

// execute 先下主单，成功后尽力而为挂保护单
// 保护单失败只记warning，不回滚主单：反向平仓本身是一笔新的带风险交易
func (p *Pipeline) execute(ctx context.Context, sig *model.TradeSignal) (*model.ExecutionResult, error) {
	ex, err := p.pickExchange(ctx, sig)
	if err != nil {
		return &model.ExecutionResult{Error: err.Error()}, err
	}

	side := model.Buy
	switch sig.Action {
	case model.ActionSell, model.ActionClose:
		side = model.Sell
	}

	mainReq := &model.OrderRequest{
		Symbol:      sig.Symbol,
		Side:        side,
		Type:        sig.OrderType,
		Quantity:    sig.Quantity,
		StrategyTag: consts.StrategyTagMain,
	}
	if sig.OrderType == model.Limit {
		mainReq.Price = sig.Price
	}
	mainOrder, err := ex.PlaceOrder(ctx, mainReq)
	if err != nil {
		return &model.ExecutionResult{Error: err.Error()},
			errors.Wrap(err, ecode.ErrExchangeRejected, "主单下单失败")
	}
	execution := &model.ExecutionResult{MainOrder: mainOrder}
	p.appendLedger(ctx, ex.Name(), mainOrder, consts.StrategyTagMain)

	opposite := side.Opposite()

	if sig.StopLoss > 0 {
		slOrder, slErr := ex.PlaceOrder(ctx, &model.OrderRequest{
			Symbol:      sig.Symbol,
			Side:        opposite,
			Type:        model.StopMarket,
			Quantity:    sig.Quantity,
			StopPrice:   sig.StopLoss,
			StrategyTag: consts.StrategyTagStopLoss,
		})
		if slErr != nil {
			logger.Errorf("止损单下单失败，主单 %s 不回滚: %v", mainOrder.OrderID, slErr)
			execution.Warnings = append(execution.Warnings, "止损单下单失败: "+slErr.Error())
		} else {
			execution.StopLossOrder = slOrder
			p.appendLedger(ctx, ex.Name(), slOrder, consts.StrategyTagStopLoss)
		}
	}

	if sig.TakeProfit > 0 {
		tpOrder, tpErr := ex.PlaceOrder(ctx, &model.OrderRequest{
			Symbol:      sig.Symbol,
			Side:        opposite,
			Type:        model.Limit,
			Quantity:    sig.Quantity,
			Price:       sig.TakeProfit,
			StrategyTag: consts.StrategyTagTakeProfit,
		})
		if tpErr != nil {
			logger.Errorf("止盈单下单失败，主单 %s 不回滚: %v", mainOrder.OrderID, tpErr)
			execution.Warnings = append(execution.Warnings, "止盈单下单失败: "+tpErr.Error())
		} else {
			execution.TakeProfitOrder = tpOrder
			p.appendLedger(ctx, ex.Name(), tpOrder, consts.StrategyTagTakeProfit)
		}
	}

	return execution, nil
}

// pickExchange 指定了交易所就用指定的，否则买向选最低价的交易所
func (p *Pipeline) pickExchange(ctx context.Context, sig *model.TradeSignal) (exchange.Exchange, error) {
	if sig.Exchange != "" {
		ex, ok := p.manager.Get(sig.Exchange)
		if !ok {
			return nil, errors.New(ecode.ErrExchangeNotFound, "未注册的交易所: "+sig.Exchange)
		}
		return ex, nil
	}
	best, err := p.manager.BestPrice(ctx, sig.Symbol)
	if err != nil {
		return nil, err
	}
	ex, _ := p.manager.Get(best.Exchange)
	return ex, nil
}

func (p *Pipeline) appendLedger(ctx context.Context, venue string, order *model.OrderResult, tag string) {
	if p.recorder == nil {
		return
	}
	record := &model.TradeRecord{
		OrderId:   order.OrderID,
		Exchange:  venue,
		Symbol:    order.Symbol,
		Side:      order.Side,
		OrderType: order.Type,
		Price:     order.Price,
		Quantity:  order.RequestedQty,
		Strategy:  tag,
		Status:    order.Status,
		CreatedAt: time.Now(),
	}
	if err := p.recorder.AppendTradeRecord(ctx, record); err != nil {
		logger.Errorf("成交台账落库失败: %v", err)
	}
}

func mustJSON(v interface{}) datatypes.JSON {
	data, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}
