package signal

import (
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"

	"spreadflow/internal/model"
	"spreadflow/pkg/errors"
	"spreadflow/pkg/errors/ecode"
)

// 文本告警格式：ACTION SYMBOL @ PRICE [SL: x] [TP: y]
// 例如 "BUY SOLUSDT @ 150.50 SL: 145 TP: 160"
var alertTextPattern = regexp.MustCompile(
	`^\s*(?i)(BUY|SELL|CLOSE)\s+([A-Z0-9]+)\s*@\s*([0-9.]+)` +
		`(?:\s+SL:\s*([0-9.]+))?(?:\s+TP:\s*([0-9.]+))?\s*$`)

// JSON形态的原始信号，字段名兼容常见webhook写法
type rawJSONSignal struct {
	Symbol     string      `json:"symbol"`
	Action     string      `json:"action"`
	Side       string      `json:"side"` // action的别名
	Exchange   string      `json:"exchange"`
	OrderType  string      `json:"order_type"`
	Quantity   interface{} `json:"quantity"`
	Price      interface{} `json:"price"`
	StopLoss   interface{} `json:"stop_loss"`
	TakeProfit interface{} `json:"take_profit"`
	Leverage   interface{} `json:"leverage"`
	Confidence interface{} `json:"confidence"`
	Strategy   string      `json:"strategy"`
}

// Parse 把异构的原始信号归一成TradeSignal
// 解析失败属于调用方错误，不进入风控
func Parse(raw []byte) (*model.TradeSignal, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, errors.New(ecode.ErrValidation, "信号内容为空")
	}

	var sig *model.TradeSignal
	var err error
	if strings.HasPrefix(text, "{") {
		sig, err = parseJSON(raw)
	} else {
		sig, err = parseAlertText(text)
	}
	if err != nil {
		return nil, err
	}
	return sig, validate(sig)
}

func parseJSON(raw []byte) (*model.TradeSignal, error) {
	var r rawJSONSignal
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, errors.Wrap(err, ecode.ErrValidation, "信号JSON解析失败")
	}
	action := r.Action
	if action == "" {
		action = r.Side
	}
	orderType := model.Market
	if strings.EqualFold(r.OrderType, string(model.Limit)) {
		orderType = model.Limit
	}
	confidence := cast.ToFloat64(r.Confidence)
	if r.Confidence == nil {
		// 未携带置信度的信号视为满信心，交给minConfidence配置决定门槛
		confidence = 100
	}
	return &model.TradeSignal{
		Symbol:     strings.ToUpper(strings.TrimSpace(r.Symbol)),
		Action:     model.SignalAction(strings.ToUpper(strings.TrimSpace(action))),
		Exchange:   strings.ToLower(strings.TrimSpace(r.Exchange)),
		OrderType:  orderType,
		Quantity:   cast.ToFloat64(r.Quantity),
		Price:      cast.ToFloat64(r.Price),
		StopLoss:   cast.ToFloat64(r.StopLoss),
		TakeProfit: cast.ToFloat64(r.TakeProfit),
		Leverage:   cast.ToInt(r.Leverage),
		Confidence: confidence,
		Strategy:   r.Strategy,
		Timestamp:  time.Now(),
	}, nil
}

func parseAlertText(text string) (*model.TradeSignal, error) {
	m := alertTextPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, errors.New(ecode.ErrValidation, "无法识别的信号文本: "+text)
	}
	return &model.TradeSignal{
		Symbol:     strings.ToUpper(m[2]),
		Action:     model.SignalAction(strings.ToUpper(m[1])),
		OrderType:  model.Limit,
		Price:      cast.ToFloat64(m[3]),
		StopLoss:   cast.ToFloat64(m[4]),
		TakeProfit: cast.ToFloat64(m[5]),
		Confidence: 100,
		Timestamp:  time.Now(),
	}, nil
}

func validate(sig *model.TradeSignal) error {
	if sig.Symbol == "" {
		return errors.New(ecode.ErrValidation, "信号缺少symbol")
	}
	switch sig.Action {
	case model.ActionBuy, model.ActionSell, model.ActionClose:
	case "":
		return errors.New(ecode.ErrValidation, "信号缺少action")
	default:
		return errors.New(ecode.ErrValidation, "非法的action: "+string(sig.Action))
	}
	if sig.Confidence < 0 || sig.Confidence > 100 {
		return errors.New(ecode.ErrValidation, "置信度必须在0~100之间")
	}
	if sig.Quantity < 0 || sig.Price < 0 {
		return errors.New(ecode.ErrValidation, "数量和价格不能为负数")
	}
	return nil
}
