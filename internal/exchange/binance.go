package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"

	"spreadflow/conf"
	"spreadflow/internal/consts"
	"spreadflow/internal/model"
)

const (
	binanceBaseURL    = "https://api.binance.com"
	binanceTestnetURL = "https://testnet.binance.vision"
)

// Binance现货适配器
// 内部标准symbol（SOLUSDT）与Binance写法一致，无需转换
type BinanceExchange struct {
	apiKey    string
	apiSecret string
	baseURL   string
	readOnly  bool // 未配置密钥时只提供公共行情
	client    *restClient
}

func NewBinanceExchange(cred conf.ExchangeCredential) *BinanceExchange {
	base := binanceBaseURL
	if cred.Sandbox {
		base = binanceTestnetURL
	}
	return &BinanceExchange{
		apiKey:    cred.ApiKey,
		apiSecret: cred.ApiSecret,
		baseURL:   base,
		readOnly:  cred.ApiKey == "" || cred.ApiSecret == "",
		client:    newRestClient(consts.ExchangeBinance),
	}
}

func (e *BinanceExchange) Name() string { return consts.ExchangeBinance }

// binance业务错误结构 {"code":-1121,"msg":"Invalid symbol."}
type binanceErr struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// 非200响应统一转成Rejected错误
func (e *BinanceExchange) rejected(body []byte, status int) error {
	var be binanceErr
	_ = json.Unmarshal(body, &be)
	msg := be.Msg
	if msg == "" {
		msg = string(body)
	}
	return NewRejected(e.Name(), msg, strconv.Itoa(be.Code), status)
}

func (e *BinanceExchange) sign(params url.Values) string {
	mac := hmac.New(sha256.New, []byte(e.apiSecret))
	mac.Write([]byte(params.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

// 签名的读请求（账户/订单查询）
func (e *BinanceExchange) signedGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if e.readOnly {
		return nil, NewValidation(e.Name(), "api credentials not configured")
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("signature", e.sign(params))
	header := http.Header{"X-MBX-APIKEY": []string{e.apiKey}}

	reqURL := fmt.Sprintf("%s%s?%s", e.baseURL, path, params.Encode())
	body, status, err := e.client.getRetry(ctx, reqURL, header)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, e.rejected(body, status)
	}
	return body, nil
}

// 签名的写请求，不重试：超时后无法确认交易所是否已受理
func (e *BinanceExchange) signedWrite(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if e.readOnly {
		return nil, NewValidation(e.Name(), "api credentials not configured")
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("signature", e.sign(params))
	header := http.Header{"X-MBX-APIKEY": []string{e.apiKey}}

	reqURL := fmt.Sprintf("%s%s?%s", e.baseURL, path, params.Encode())
	body, status, err := e.client.do(ctx, method, reqURL, header, nil)
	if err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	if status != http.StatusOK {
		return nil, e.rejected(body, status)
	}
	return body, nil
}

// 公共行情读请求，带重试
func (e *BinanceExchange) publicGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := fmt.Sprintf("%s%s", e.baseURL, path)
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	body, status, err := e.client.getRetry(ctx, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, e.rejected(body, status)
	}
	return body, nil
}

func (e *BinanceExchange) Ping(ctx context.Context) error {
	_, err := e.publicGet(ctx, "/api/v3/ping", nil)
	return err
}

func (e *BinanceExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{"symbol": []string{symbol}}
	body, err := e.publicGet(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return 0, err
	}
	var res struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, NewUnavailable(e.Name(), err)
	}
	return cast.ToFloat64(res.Price), nil
}

func (e *BinanceExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Kline, error) {
	params := url.Values{
		"symbol":   []string{symbol},
		"interval": []string{interval},
		"limit":    []string{strconv.Itoa(limit)},
	}
	body, err := e.publicGet(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, err
	}

	// binance返回二维数组 [openTime, open, high, low, close, volume, ...]
	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	klines := make([]model.Kline, 0, len(raw))
	for _, item := range raw {
		if len(item) < 6 {
			continue
		}
		klines = append(klines, model.Kline{
			Timestamp: time.UnixMilli(cast.ToInt64(item[0])),
			Open:      cast.ToFloat64(item[1]),
			High:      cast.ToFloat64(item[2]),
			Low:       cast.ToFloat64(item[3]),
			Close:     cast.ToFloat64(item[4]),
			Vol:       cast.ToFloat64(item[5]),
		})
	}
	return klines, nil
}

func (e *BinanceExchange) Get24hTicker(ctx context.Context, symbol string) (*model.Ticker24h, error) {
	params := url.Values{"symbol": []string{symbol}}
	body, err := e.publicGet(ctx, "/api/v3/ticker/24hr", params)
	if err != nil {
		return nil, err
	}
	var res struct {
		LastPrice          string `json:"lastPrice"`
		OpenPrice          string `json:"openPrice"`
		HighPrice          string `json:"highPrice"`
		LowPrice           string `json:"lowPrice"`
		Volume             string `json:"volume"`
		PriceChangePercent string `json:"priceChangePercent"`
		BidPrice           string `json:"bidPrice"`
		AskPrice           string `json:"askPrice"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	return &model.Ticker24h{
		Symbol:        symbol,
		LastPrice:     cast.ToFloat64(res.LastPrice),
		Open:          cast.ToFloat64(res.OpenPrice),
		High:          cast.ToFloat64(res.HighPrice),
		Low:           cast.ToFloat64(res.LowPrice),
		Volume:        cast.ToFloat64(res.Volume),
		ChangePercent: cast.ToFloat64(res.PriceChangePercent),
		Bid:           cast.ToFloat64(res.BidPrice),
		Ask:           cast.ToFloat64(res.AskPrice),
		Timestamp:     time.Now(),
	}, nil
}

type binanceBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

func (b binanceBalance) toModel() model.Balance {
	free := cast.ToFloat64(b.Free)
	locked := cast.ToFloat64(b.Locked)
	return model.Balance{Asset: b.Asset, Free: free, Locked: locked, Total: free + locked}
}

func (e *BinanceExchange) GetAccountInfo(ctx context.Context) (*model.AccountInfo, error) {
	body, err := e.signedGet(ctx, "/api/v3/account", url.Values{})
	if err != nil {
		return nil, err
	}
	var res struct {
		CanTrade bool             `json:"canTrade"`
		Balances []binanceBalance `json:"balances"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	info := &model.AccountInfo{
		Exchange: e.Name(),
		CanTrade: res.CanTrade,
		UpdateAt: time.Now(),
	}
	for _, b := range res.Balances {
		info.Balances = append(info.Balances, b.toModel())
	}
	return info, nil
}

func (e *BinanceExchange) GetAllBalances(ctx context.Context) ([]model.Balance, error) {
	info, err := e.GetAccountInfo(ctx)
	if err != nil {
		return nil, err
	}
	return info.Balances, nil
}

// GetBalance 没有该资产时返回零值记录而不是报错
func (e *BinanceExchange) GetBalance(ctx context.Context, asset string) (*model.Balance, error) {
	balances, err := e.GetAllBalances(ctx)
	if err != nil {
		return nil, err
	}
	asset = strings.ToUpper(asset)
	for _, b := range balances {
		if b.Asset == asset {
			return &b, nil
		}
	}
	return &model.Balance{Asset: asset}, nil
}

// binance订单类型映射
func binanceOrderType(t model.OrderType) (string, error) {
	switch t {
	case model.Market:
		return "MARKET", nil
	case model.Limit:
		return "LIMIT", nil
	case model.StopMarket:
		return "STOP_LOSS", nil
	case model.StopLimit:
		return "STOP_LOSS_LIMIT", nil
	}
	return "", fmt.Errorf("unsupported order type: %s", t)
}

func (e *BinanceExchange) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.OrderResult, error) {
	ot, err := binanceOrderType(req.Type)
	if err != nil {
		return nil, NewValidation(e.Name(), err.Error())
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", ot)
	params.Set("quantity", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	if req.Type == model.Limit || req.Type == model.StopLimit {
		params.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
		tif := req.TimeInForce
		if tif == "" {
			tif = "GTC"
		}
		params.Set("timeInForce", tif)
	}
	if req.Type == model.StopMarket || req.Type == model.StopLimit {
		params.Set("stopPrice", strconv.FormatFloat(req.StopPrice, 'f', -1, 64))
	}

	body, err := e.signedWrite(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}
	var res struct {
		OrderId             int64  `json:"orderId"`
		Status              string `json:"status"`
		ExecutedQty         string `json:"executedQty"`
		CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
		Price               string `json:"price"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}

	executed := cast.ToFloat64(res.ExecutedQty)
	avg := 0.0
	if executed > 0 {
		avg = cast.ToFloat64(res.CummulativeQuoteQty) / executed
	}
	return &model.OrderResult{
		OrderID:      strconv.FormatInt(res.OrderId, 10),
		Symbol:       req.Symbol,
		Side:         req.Side,
		Type:         req.Type,
		Status:       binanceStatus(res.Status),
		RequestedQty: req.Quantity,
		Price:        cast.ToFloat64(res.Price),
		ExecutedQty:  executed,
		AvgPrice:     avg,
		Timestamp:    time.Now(),
		Exchange:     e.Name(),
	}, nil
}

func binanceStatus(s string) model.OrderStatus {
	switch s {
	case "FILLED":
		return model.OrderFilled
	case "CANCELED", "EXPIRED":
		return model.OrderCancelled
	case "REJECTED":
		return model.OrderRejected
	default:
		// NEW / PARTIALLY_FILLED
		return model.OrderPending
	}
}

func (e *BinanceExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	_, err := e.signedWrite(ctx, http.MethodDelete, "/api/v3/order", params)
	return err
}

type binanceOrder struct {
	OrderId             int64  `json:"orderId"`
	Symbol              string `json:"symbol"`
	Side                string `json:"side"`
	Type                string `json:"type"`
	Status              string `json:"status"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Price               string `json:"price"`
	Time                int64  `json:"time"`
}

func (o binanceOrder) toModel(venue string) model.OrderResult {
	executed := cast.ToFloat64(o.ExecutedQty)
	avg := 0.0
	if executed > 0 {
		avg = cast.ToFloat64(o.CummulativeQuoteQty) / executed
	}
	return model.OrderResult{
		OrderID:      strconv.FormatInt(o.OrderId, 10),
		Symbol:       o.Symbol,
		Side:         model.OrderSide(o.Side),
		Type:         model.OrderType(o.Type),
		Status:       binanceStatus(o.Status),
		RequestedQty: cast.ToFloat64(o.OrigQty),
		Price:        cast.ToFloat64(o.Price),
		ExecutedQty:  executed,
		AvgPrice:     avg,
		Timestamp:    time.UnixMilli(o.Time),
		Exchange:     venue,
	}
}

func (e *BinanceExchange) GetOrder(ctx context.Context, symbol, orderID string) (*model.OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	body, err := e.signedGet(ctx, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}
	var o binanceOrder
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	res := o.toModel(e.Name())
	return &res, nil
}

func (e *BinanceExchange) GetOpenOrders(ctx context.Context, symbol string) ([]model.OrderResult, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := e.signedGet(ctx, "/api/v3/openOrders", params)
	if err != nil {
		return nil, err
	}
	var orders []binanceOrder
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	results := make([]model.OrderResult, 0, len(orders))
	for _, o := range orders {
		results = append(results, o.toModel(e.Name()))
	}
	return results, nil
}

func (e *BinanceExchange) GetOrderHistory(ctx context.Context, symbol string, limit int) ([]model.OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))
	body, err := e.signedGet(ctx, "/api/v3/allOrders", params)
	if err != nil {
		return nil, err
	}
	var orders []binanceOrder
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	results := make([]model.OrderResult, 0, len(orders))
	for _, o := range orders {
		results = append(results, o.toModel(e.Name()))
	}
	return results, nil
}

func (e *BinanceExchange) GetTradeHistory(ctx context.Context, symbol string, limit int) ([]model.Trade, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))
	body, err := e.signedGet(ctx, "/api/v3/myTrades", params)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Id              int64  `json:"id"`
		OrderId         int64  `json:"orderId"`
		Price           string `json:"price"`
		Qty             string `json:"qty"`
		Commission      string `json:"commission"`
		CommissionAsset string `json:"commissionAsset"`
		IsBuyer         bool   `json:"isBuyer"`
		Time            int64  `json:"time"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	trades := make([]model.Trade, 0, len(raw))
	for _, t := range raw {
		side := model.Sell
		if t.IsBuyer {
			side = model.Buy
		}
		trades = append(trades, model.Trade{
			TradeID:   strconv.FormatInt(t.Id, 10),
			OrderID:   strconv.FormatInt(t.OrderId, 10),
			Symbol:    symbol,
			Side:      side,
			Price:     cast.ToFloat64(t.Price),
			Quantity:  cast.ToFloat64(t.Qty),
			Fee:       cast.ToFloat64(t.Commission),
			FeeAsset:  t.CommissionAsset,
			Timestamp: time.UnixMilli(t.Time),
		})
	}
	return trades, nil
}
