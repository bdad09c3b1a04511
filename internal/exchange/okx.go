package exchange

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	goexv2 "github.com/nntaoli-project/goex/v2"
	goexmodel "github.com/nntaoli-project/goex/v2/model"
	"github.com/nntaoli-project/goex/v2/options"

	"spreadflow/conf"
	"spreadflow/internal/consts"
	"spreadflow/internal/model"
	"spreadflow/pkg/logger"
)

// OKX适配器，基于goex/v2的现货接口
// okxv5 api 如果要使用模拟交易，需要切到到模拟交易下创建apikey
type OkxExchange struct {
	pub      goexv2.IPubRest
	prv      goexv2.IPrvRest
	readOnly bool

	mu     sync.Mutex
	exInfo map[string]goexmodel.CurrencyPair
}

func NewOkxExchange(cred conf.ExchangeCredential) *OkxExchange {
	opts := []options.ApiOption{
		options.WithApiKey(cred.ApiKey),
		options.WithApiSecretKey(cred.ApiSecret),
		options.WithPassphrase(cred.Passphrase),
	}
	pub := goexv2.OKx.Spot
	return &OkxExchange{
		pub:      pub,
		prv:      pub.NewPrvApi(opts...),
		readOnly: cred.ApiKey == "" || cred.ApiSecret == "",
	}
}

func (e *OkxExchange) Name() string { return consts.ExchangeOkx }

// SOLUSDT -> SOL-USDT，通过计价币后缀拆分
func okxSplitSymbol(symbol string) (base, quote string, err error) {
	if strings.Contains(symbol, "-") {
		parts := strings.SplitN(symbol, "-", 2)
		return parts[0], parts[1], nil
	}
	for _, q := range gateQuoteAssets {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return symbol[:len(symbol)-len(q)], q, nil
		}
	}
	return "", "", errors.New("invalid symbol format: " + symbol)
}

func (e *OkxExchange) toCurrencyPair(symbol string) (goexmodel.CurrencyPair, error) {
	base, quote, err := okxSplitSymbol(symbol)
	if err != nil {
		return goexmodel.CurrencyPair{}, NewValidation(e.Name(), err.Error())
	}
	pair, err := e.pub.NewCurrencyPair(base, quote)
	if err != nil {
		return goexmodel.CurrencyPair{}, NewUnavailable(e.Name(), err)
	}
	return pair, nil
}

// 初始化时加载所有可交易币对，兼做连通性检查
func (e *OkxExchange) Ping(ctx context.Context) error {
	info, _, err := e.pub.GetExchangeInfo()
	if err != nil {
		return NewUnavailable(e.Name(), err)
	}
	e.mu.Lock()
	e.exInfo = info
	e.mu.Unlock()
	return nil
}

func (e *OkxExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return 0, err
	}
	ticker, _, err := e.pub.GetTicker(pair)
	if err != nil {
		return 0, NewUnavailable(e.Name(), err)
	}
	if ticker == nil {
		return 0, NewUnavailable(e.Name(), errors.New("failed to get ticker"))
	}
	return ticker.Last, nil
}

func (e *OkxExchange) Get24hTicker(ctx context.Context, symbol string) (*model.Ticker24h, error) {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return nil, err
	}
	ticker, _, err := e.pub.GetTicker(pair)
	if err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	return &model.Ticker24h{
		Symbol:    symbol,
		LastPrice: ticker.Last,
		High:      ticker.High,
		Low:       ticker.Low,
		Volume:    ticker.Vol,
		Bid:       ticker.Buy,
		Ask:       ticker.Sell,
		Timestamp: time.Now(),
	}, nil
}

func okxKlinePeriod(interval string) (goexmodel.KlinePeriod, error) {
	switch interval {
	case "1m":
		return goexmodel.Kline_1min, nil
	case "5m":
		return goexmodel.Kline_5min, nil
	case "15m":
		return goexmodel.Kline_15min, nil
	case "30m":
		return goexmodel.Kline_30min, nil
	case "1h":
		return goexmodel.Kline_1h, nil
	case "4h":
		return goexmodel.Kline_4h, nil
	case "1d":
		return goexmodel.Kline_1day, nil
	default:
		return "", errors.New("unsupported kline interval: " + interval)
	}
}

func (e *OkxExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Kline, error) {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return nil, err
	}
	period, err := okxKlinePeriod(interval)
	if err != nil {
		return nil, NewValidation(e.Name(), err.Error())
	}

	var opts []goexmodel.OptionParameter
	if limit > 0 {
		opts = append(opts, goexmodel.OptionParameter{
			Key:   "limit",
			Value: strconv.Itoa(limit),
		})
	}

	// goex请求不带context，这里沿用读接口的有限重试
	var raw []goexmodel.Kline
	for i := 0; i < maxRetries; i++ {
		raw, _, err = e.pub.GetKline(pair, period, opts...)
		if err == nil {
			break
		}
		if i == maxRetries-1 {
			break
		}
		logger.Warnf("okx GetKline failed (try %d): %v", i+1, err)
		delay := time.Duration(i+1) * retryBase
		if delay > retryCap {
			delay = retryCap
		}
		select {
		case <-ctx.Done():
			return nil, NewUnavailable(e.Name(), ctx.Err())
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}

	klines := make([]model.Kline, 0, len(raw))
	// okx返回的K线按时间倒序，统一转成正序
	for i := len(raw) - 1; i >= 0; i-- {
		item := raw[i]
		klines = append(klines, model.Kline{
			Timestamp: time.UnixMilli(item.Timestamp),
			Open:      item.Open,
			Close:     item.Close,
			High:      item.High,
			Low:       item.Low,
			Vol:       item.Vol,
		})
	}
	return klines, nil
}

func (e *OkxExchange) GetBalance(ctx context.Context, asset string) (*model.Balance, error) {
	if e.readOnly {
		return nil, NewValidation(e.Name(), "api credentials not configured")
	}
	asset = strings.ToUpper(asset)

	// goex私有方法没有context，临时用超时控制
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	type accResult struct {
		bal map[string]goexmodel.Account
		err error
	}
	ch := make(chan accResult, 1)
	go func() {
		bal, _, err := e.prv.GetAccount(asset)
		ch <- accResult{bal, err}
	}()

	select {
	case <-timeoutCtx.Done():
		return nil, NewUnavailable(e.Name(), timeoutCtx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, NewUnavailable(e.Name(), result.err)
		}
		acc, ok := result.bal[asset]
		if !ok {
			return &model.Balance{Asset: asset}, nil
		}
		return &model.Balance{
			Asset:  acc.Coin,
			Free:   acc.AvailableBalance,
			Locked: acc.FrozenBalance,
			Total:  acc.Balance,
		}, nil
	}
}

func (e *OkxExchange) GetAllBalances(ctx context.Context) ([]model.Balance, error) {
	if e.readOnly {
		return nil, NewValidation(e.Name(), "api credentials not configured")
	}
	bal, _, err := e.prv.GetAccount("")
	if err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	balances := make([]model.Balance, 0, len(bal))
	for _, acc := range bal {
		balances = append(balances, model.Balance{
			Asset:  acc.Coin,
			Free:   acc.AvailableBalance,
			Locked: acc.FrozenBalance,
			Total:  acc.Balance,
		})
	}
	return balances, nil
}

func (e *OkxExchange) GetAccountInfo(ctx context.Context) (*model.AccountInfo, error) {
	balances, err := e.GetAllBalances(ctx)
	if err != nil {
		return nil, err
	}
	return &model.AccountInfo{
		Exchange: e.Name(),
		CanTrade: !e.readOnly,
		Balances: balances,
		UpdateAt: time.Now(),
	}, nil
}

func okxOrderStatus(s goexmodel.OrderStatus) model.OrderStatus {
	switch {
	case strings.Contains(strings.ToLower(s.String()), "finish"):
		return model.OrderFilled
	case strings.Contains(strings.ToLower(s.String()), "cancel"):
		return model.OrderCancelled
	default:
		return model.OrderPending
	}
}

// 下单购买
// 注意限价和市价的Quantity单位不相同，当限价时Quantity的单位为币本身，当市价时Quantity的单位为USDT
func (e *OkxExchange) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.OrderResult, error) {
	if e.readOnly {
		return nil, NewValidation(e.Name(), "api credentials not configured")
	}
	pair, err := e.toCurrencyPair(req.Symbol)
	if err != nil {
		return nil, err
	}

	var side goexmodel.OrderSide
	switch req.Side {
	case model.Buy:
		side = goexmodel.Spot_Buy
	case model.Sell:
		side = goexmodel.Spot_Sell
	default:
		return nil, NewValidation(e.Name(), "invalid order side: "+string(req.Side))
	}

	var orderType goexmodel.OrderType
	var opts []goexmodel.OptionParameter
	switch req.Type {
	case model.Limit:
		orderType = goexmodel.OrderType_Limit
	case model.Market:
		orderType = goexmodel.OrderType_Market
	case model.StopMarket, model.StopLimit:
		// 触发单通过附带参数实现，触发后按照市价或限价执行
		if req.StopPrice <= 0 {
			return nil, NewValidation(e.Name(), "stop order requires stop price")
		}
		orderType = goexmodel.OrderType_Limit
		px := "-1"
		if req.Type == model.StopLimit && req.Price > 0 {
			px = strconv.FormatFloat(req.Price, 'f', -1, 64)
		}
		opts = append(opts,
			goexmodel.OptionParameter{Key: "slTriggerPx", Value: strconv.FormatFloat(req.StopPrice, 'f', -1, 64)},
			goexmodel.OptionParameter{Key: "slOrdPx", Value: px},
		)
	default:
		return nil, NewValidation(e.Name(), "unsupported order type: "+string(req.Type))
	}

	created, _, err := e.prv.CreateOrder(pair, req.Quantity, req.Price, side, orderType, opts...)
	if err != nil {
		return nil, NewRejected(e.Name(), err.Error(), "", 0)
	}
	return &model.OrderResult{
		OrderID:      created.Id,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Type:         req.Type,
		Status:       okxOrderStatus(created.Status),
		RequestedQty: req.Quantity,
		Price:        req.Price,
		Timestamp:    time.Now(),
		Exchange:     e.Name(),
	}, nil
}

func (e *OkxExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return err
	}
	if _, err = e.prv.CancelOrder(pair, orderID); err != nil {
		return NewRejected(e.Name(), err.Error(), "", 0)
	}
	return nil
}

func (e *OkxExchange) toOrderResult(symbol string, o goexmodel.Order) model.OrderResult {
	side := model.Buy
	if o.Side == goexmodel.Spot_Sell {
		side = model.Sell
	}
	ot := model.Limit
	if o.OrderTy == goexmodel.OrderType_Market {
		ot = model.Market
	}
	return model.OrderResult{
		OrderID:      o.Id,
		Symbol:       symbol,
		Side:         side,
		Type:         ot,
		Status:       okxOrderStatus(o.Status),
		RequestedQty: o.Qty,
		Price:        o.Price,
		ExecutedQty:  o.ExecutedQty,
		AvgPrice:     o.PriceAvg,
		Timestamp:    time.UnixMilli(o.CreatedAt),
		Exchange:     e.Name(),
	}
}

func (e *OkxExchange) GetOrder(ctx context.Context, symbol, orderID string) (*model.OrderResult, error) {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return nil, err
	}
	info, _, err := e.prv.GetOrderInfo(pair, orderID)
	if err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	res := e.toOrderResult(symbol, *info)
	return &res, nil
}

func (e *OkxExchange) GetOpenOrders(ctx context.Context, symbol string) ([]model.OrderResult, error) {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return nil, err
	}
	orders, _, err := e.prv.GetPendingOrders(pair)
	if err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	results := make([]model.OrderResult, 0, len(orders))
	for _, o := range orders {
		results = append(results, e.toOrderResult(symbol, o))
	}
	return results, nil
}

func (e *OkxExchange) GetOrderHistory(ctx context.Context, symbol string, limit int) ([]model.OrderResult, error) {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return nil, err
	}
	var opts []goexmodel.OptionParameter
	if limit > 0 {
		opts = append(opts, goexmodel.OptionParameter{Key: "limit", Value: strconv.Itoa(limit)})
	}
	orders, _, err := e.prv.GetHistoryOrders(pair, opts...)
	if err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	results := make([]model.OrderResult, 0, len(orders))
	for _, o := range orders {
		results = append(results, e.toOrderResult(symbol, o))
	}
	return results, nil
}

// okx的成交明细从历史订单折算，goex现货接口未暴露fills查询
func (e *OkxExchange) GetTradeHistory(ctx context.Context, symbol string, limit int) ([]model.Trade, error) {
	orders, err := e.GetOrderHistory(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}
	trades := make([]model.Trade, 0, len(orders))
	for _, o := range orders {
		if o.ExecutedQty <= 0 {
			continue
		}
		price := o.AvgPrice
		if price <= 0 {
			price = o.Price
		}
		trades = append(trades, model.Trade{
			TradeID:   o.OrderID,
			OrderID:   o.OrderID,
			Symbol:    symbol,
			Side:      o.Side,
			Price:     price,
			Quantity:  o.ExecutedQty,
			Timestamp: o.Timestamp,
		})
	}
	return trades, nil
}
