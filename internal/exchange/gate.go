package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
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

const gateBaseURL = "https://api.gateio.ws"

// 已知的计价币后缀，用于 SOLUSDT -> SOL_USDT 的拆分
var gateQuoteAssets = []string{"USDT", "USDC", "BTC", "ETH", "USD"}

// Gate.io现货适配器，symbol写法为 SOL_USDT
type GateExchange struct {
	apiKey    string
	apiSecret string
	baseURL   string
	readOnly  bool
	client    *restClient
}

func NewGateExchange(cred conf.ExchangeCredential) *GateExchange {
	return &GateExchange{
		apiKey:    cred.ApiKey,
		apiSecret: cred.ApiSecret,
		baseURL:   gateBaseURL,
		readOnly:  cred.ApiKey == "" || cred.ApiSecret == "",
		client:    newRestClient(consts.ExchangeGate),
	}
}

func (e *GateExchange) Name() string { return consts.ExchangeGate }

// 内部标准symbol转gate写法，SOLUSDT -> SOL_USDT
func toGateSymbol(symbol string) string {
	for _, quote := range gateQuoteAssets {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return symbol[:len(symbol)-len(quote)] + "_" + quote
		}
	}
	return symbol
}

type gateErr struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

func (e *GateExchange) rejected(body []byte, status int) error {
	var ge gateErr
	_ = json.Unmarshal(body, &ge)
	msg := ge.Message
	if msg == "" {
		msg = string(body)
	}
	return NewRejected(e.Name(), msg, ge.Label, status)
}

// gate v4签名：HMAC-SHA512("METHOD\nPATH\nQUERY\nsha512(body)\nts")
func (e *GateExchange) signHeader(method, path, query string, body []byte) http.Header {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	h := sha512.Sum512(body)
	payload := fmt.Sprintf("%s\n%s\n%s\n%s\n%s", method, path, query, hex.EncodeToString(h[:]), ts)
	mac := hmac.New(sha512.New, []byte(e.apiSecret))
	mac.Write([]byte(payload))

	header := http.Header{}
	header.Set("KEY", e.apiKey)
	header.Set("Timestamp", ts)
	header.Set("SIGN", hex.EncodeToString(mac.Sum(nil)))
	header.Set("Content-Type", "application/json")
	return header
}

func (e *GateExchange) publicGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := e.baseURL + path
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

func (e *GateExchange) signedGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if e.readOnly {
		return nil, NewValidation(e.Name(), "api credentials not configured")
	}
	query := params.Encode()
	header := e.signHeader(http.MethodGet, path, query, nil)
	reqURL := e.baseURL + path
	if query != "" {
		reqURL += "?" + query
	}
	body, status, err := e.client.getRetry(ctx, reqURL, header)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, e.rejected(body, status)
	}
	return body, nil
}

// 写请求单次执行，不重试
func (e *GateExchange) signedWrite(ctx context.Context, method, path string, params url.Values, payload interface{}) ([]byte, error) {
	if e.readOnly {
		return nil, NewValidation(e.Name(), "api credentials not configured")
	}
	var body []byte
	var err error
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, NewValidation(e.Name(), err.Error())
		}
	}
	query := params.Encode()
	header := e.signHeader(method, path, query, body)
	reqURL := e.baseURL + path
	if query != "" {
		reqURL += "?" + query
	}
	respBody, status, err := e.client.do(ctx, method, reqURL, header, body)
	if err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusNoContent {
		return nil, e.rejected(respBody, status)
	}
	return respBody, nil
}

func (e *GateExchange) Ping(ctx context.Context) error {
	// gate没有专门的ping接口，用服务器时间代替
	_, err := e.publicGet(ctx, "/api/v4/spot/time", nil)
	return err
}

type gateTicker struct {
	CurrencyPair     string `json:"currency_pair"`
	Last             string `json:"last"`
	LowestAsk        string `json:"lowest_ask"`
	HighestBid       string `json:"highest_bid"`
	ChangePercentage string `json:"change_percentage"`
	BaseVolume       string `json:"base_volume"`
	High24h          string `json:"high_24h"`
	Low24h           string `json:"low_24h"`
}

func (e *GateExchange) getTicker(ctx context.Context, symbol string) (*gateTicker, error) {
	params := url.Values{"currency_pair": []string{toGateSymbol(symbol)}}
	body, err := e.publicGet(ctx, "/api/v4/spot/tickers", params)
	if err != nil {
		return nil, err
	}
	var tickers []gateTicker
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	if len(tickers) == 0 {
		return nil, NewRejected(e.Name(), "ticker not found for "+symbol, "", http.StatusOK)
	}
	return &tickers[0], nil
}

func (e *GateExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	t, err := e.getTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return cast.ToFloat64(t.Last), nil
}

func (e *GateExchange) Get24hTicker(ctx context.Context, symbol string) (*model.Ticker24h, error) {
	t, err := e.getTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &model.Ticker24h{
		Symbol:        symbol,
		LastPrice:     cast.ToFloat64(t.Last),
		High:          cast.ToFloat64(t.High24h),
		Low:           cast.ToFloat64(t.Low24h),
		Volume:        cast.ToFloat64(t.BaseVolume),
		ChangePercent: cast.ToFloat64(t.ChangePercentage),
		Bid:           cast.ToFloat64(t.HighestBid),
		Ask:           cast.ToFloat64(t.LowestAsk),
		Timestamp:     time.Now(),
	}, nil
}

func (e *GateExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Kline, error) {
	params := url.Values{
		"currency_pair": []string{toGateSymbol(symbol)},
		"interval":      []string{interval},
		"limit":         []string{strconv.Itoa(limit)},
	}
	body, err := e.publicGet(ctx, "/api/v4/spot/candlesticks", params)
	if err != nil {
		return nil, err
	}
	// gate蜡烛格式 [ts, 成交额, close, high, low, open, 成交量, ...]
	var raw [][]string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	klines := make([]model.Kline, 0, len(raw))
	for _, item := range raw {
		if len(item) < 7 {
			continue
		}
		klines = append(klines, model.Kline{
			Timestamp: time.Unix(cast.ToInt64(item[0]), 0),
			Close:     cast.ToFloat64(item[2]),
			High:      cast.ToFloat64(item[3]),
			Low:       cast.ToFloat64(item[4]),
			Open:      cast.ToFloat64(item[5]),
			Vol:       cast.ToFloat64(item[6]),
		})
	}
	return klines, nil
}

type gateAccount struct {
	Currency  string `json:"currency"`
	Available string `json:"available"`
	Locked    string `json:"locked"`
}

func (e *GateExchange) GetAllBalances(ctx context.Context) ([]model.Balance, error) {
	body, err := e.signedGet(ctx, "/api/v4/spot/accounts", url.Values{})
	if err != nil {
		return nil, err
	}
	var accounts []gateAccount
	if err := json.Unmarshal(body, &accounts); err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	balances := make([]model.Balance, 0, len(accounts))
	for _, a := range accounts {
		free := cast.ToFloat64(a.Available)
		locked := cast.ToFloat64(a.Locked)
		balances = append(balances, model.Balance{
			Asset:  strings.ToUpper(a.Currency),
			Free:   free,
			Locked: locked,
			Total:  free + locked,
		})
	}
	return balances, nil
}

func (e *GateExchange) GetBalance(ctx context.Context, asset string) (*model.Balance, error) {
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

func (e *GateExchange) GetAccountInfo(ctx context.Context) (*model.AccountInfo, error) {
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

type gateOrder struct {
	Id           string `json:"id"`
	CurrencyPair string `json:"currency_pair"`
	Side         string `json:"side"`
	Type         string `json:"type"`
	Status       string `json:"status"`
	Amount       string `json:"amount"`
	Price        string `json:"price"`
	FilledAmount string `json:"filled_amount"`
	AvgDealPrice string `json:"avg_deal_price"`
	CreateTimeMs string `json:"create_time_ms"`
}

func (o gateOrder) toModel(venue, symbol string) model.OrderResult {
	side := model.Buy
	if o.Side == "sell" {
		side = model.Sell
	}
	ot := model.Limit
	if o.Type == "market" {
		ot = model.Market
	}
	var status model.OrderStatus
	switch o.Status {
	case "closed":
		status = model.OrderFilled
	case "cancelled":
		status = model.OrderCancelled
	default:
		status = model.OrderPending
	}
	return model.OrderResult{
		OrderID:      o.Id,
		Symbol:       symbol,
		Side:         side,
		Type:         ot,
		Status:       status,
		RequestedQty: cast.ToFloat64(o.Amount),
		Price:        cast.ToFloat64(o.Price),
		ExecutedQty:  cast.ToFloat64(o.FilledAmount),
		AvgPrice:     cast.ToFloat64(o.AvgDealPrice),
		Timestamp:    time.UnixMilli(cast.ToInt64(o.CreateTimeMs)),
		Exchange:     venue,
	}
}

func (e *GateExchange) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.OrderResult, error) {
	// gate现货的触发单走price_orders接口
	if req.Type == model.StopMarket || req.Type == model.StopLimit {
		return e.placeTriggerOrder(ctx, req)
	}

	payload := map[string]interface{}{
		"currency_pair": toGateSymbol(req.Symbol),
		"side":          strings.ToLower(string(req.Side)),
		"amount":        strconv.FormatFloat(req.Quantity, 'f', -1, 64),
	}
	if req.Type == model.Limit {
		payload["type"] = "limit"
		payload["price"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
		tif := strings.ToLower(req.TimeInForce)
		if tif == "" {
			tif = "gtc"
		}
		payload["time_in_force"] = tif
	} else {
		payload["type"] = "market"
		payload["time_in_force"] = "ioc"
	}

	body, err := e.signedWrite(ctx, http.MethodPost, "/api/v4/spot/orders", url.Values{}, payload)
	if err != nil {
		return nil, err
	}
	var o gateOrder
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	res := o.toModel(e.Name(), req.Symbol)
	res.Type = req.Type
	return &res, nil
}

// 触发单：到达触发价后挂出limit委托
func (e *GateExchange) placeTriggerOrder(ctx context.Context, req *model.OrderRequest) (*model.OrderResult, error) {
	if req.StopPrice <= 0 {
		return nil, NewValidation(e.Name(), "stop order requires stop price")
	}
	// 卖出止损在价格跌破触发价时成交，买入止损相反
	rule := "<="
	if req.Side == model.Buy {
		rule = ">="
	}
	price := req.Price
	if price <= 0 {
		price = req.StopPrice
	}
	payload := map[string]interface{}{
		"market": toGateSymbol(req.Symbol),
		"trigger": map[string]interface{}{
			"price":      strconv.FormatFloat(req.StopPrice, 'f', -1, 64),
			"rule":       rule,
			"expiration": 86400,
		},
		"put": map[string]interface{}{
			"type":         "limit",
			"side":         strings.ToLower(string(req.Side)),
			"price":        strconv.FormatFloat(price, 'f', -1, 64),
			"amount":       strconv.FormatFloat(req.Quantity, 'f', -1, 64),
			"account":      "normal",
			"time_in_force": "gtc",
		},
	}
	body, err := e.signedWrite(ctx, http.MethodPost, "/api/v4/spot/price_orders", url.Values{}, payload)
	if err != nil {
		return nil, err
	}
	var res struct {
		Id int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	return &model.OrderResult{
		OrderID:      strconv.FormatInt(res.Id, 10),
		Symbol:       req.Symbol,
		Side:         req.Side,
		Type:         req.Type,
		Status:       model.OrderPending,
		RequestedQty: req.Quantity,
		Price:        price,
		Timestamp:    time.Now(),
		Exchange:     e.Name(),
	}, nil
}

func (e *GateExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{"currency_pair": []string{toGateSymbol(symbol)}}
	_, err := e.signedWrite(ctx, http.MethodDelete, "/api/v4/spot/orders/"+orderID, params, nil)
	return err
}

func (e *GateExchange) GetOrder(ctx context.Context, symbol, orderID string) (*model.OrderResult, error) {
	params := url.Values{"currency_pair": []string{toGateSymbol(symbol)}}
	body, err := e.signedGet(ctx, "/api/v4/spot/orders/"+orderID, params)
	if err != nil {
		return nil, err
	}
	var o gateOrder
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	res := o.toModel(e.Name(), symbol)
	return &res, nil
}

func (e *GateExchange) listOrders(ctx context.Context, symbol, status string, limit int) ([]model.OrderResult, error) {
	params := url.Values{
		"currency_pair": []string{toGateSymbol(symbol)},
		"status":        []string{status},
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	body, err := e.signedGet(ctx, "/api/v4/spot/orders", params)
	if err != nil {
		return nil, err
	}
	var orders []gateOrder
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	results := make([]model.OrderResult, 0, len(orders))
	for _, o := range orders {
		results = append(results, o.toModel(e.Name(), symbol))
	}
	return results, nil
}

func (e *GateExchange) GetOpenOrders(ctx context.Context, symbol string) ([]model.OrderResult, error) {
	return e.listOrders(ctx, symbol, "open", 0)
}

func (e *GateExchange) GetOrderHistory(ctx context.Context, symbol string, limit int) ([]model.OrderResult, error) {
	return e.listOrders(ctx, symbol, "finished", limit)
}

func (e *GateExchange) GetTradeHistory(ctx context.Context, symbol string, limit int) ([]model.Trade, error) {
	params := url.Values{
		"currency_pair": []string{toGateSymbol(symbol)},
		"limit":         []string{strconv.Itoa(limit)},
	}
	body, err := e.signedGet(ctx, "/api/v4/spot/my_trades", params)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Id           string `json:"id"`
		OrderId      string `json:"order_id"`
		Side         string `json:"side"`
		Price        string `json:"price"`
		Amount       string `json:"amount"`
		Fee          string `json:"fee"`
		FeeCurrency  string `json:"fee_currency"`
		CreateTimeMs string `json:"create_time_ms"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewUnavailable(e.Name(), err)
	}
	trades := make([]model.Trade, 0, len(raw))
	for _, t := range raw {
		side := model.Buy
		if t.Side == "sell" {
			side = model.Sell
		}
		trades = append(trades, model.Trade{
			TradeID:   t.Id,
			OrderID:   t.OrderId,
			Symbol:    symbol,
			Side:      side,
			Price:     cast.ToFloat64(t.Price),
			Quantity:  cast.ToFloat64(t.Amount),
			Fee:       cast.ToFloat64(t.Fee),
			FeeAsset:  strings.ToUpper(t.FeeCurrency),
			Timestamp: time.UnixMilli(cast.ToInt64(t.CreateTimeMs)),
		})
	}
	return trades, nil
}
