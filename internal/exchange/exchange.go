package exchange

import (
	"context"
	"errors"
	"fmt"

	"spreadflow/internal/model"
)

// Exchange 所有交易所适配器的统一能力集
// 读接口允许自动重试；写接口（PlaceOrder/CancelOrder）涉及真实资金，
// 超时等含糊失败时绝不能盲目重试，可能导致重复下单
type Exchange interface {
	Name() string
	// Ping 连通性检查，健康检查用
	Ping(ctx context.Context) error

	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Kline, error)
	Get24hTicker(ctx context.Context, symbol string) (*model.Ticker24h, error)

	GetBalance(ctx context.Context, asset string) (*model.Balance, error)
	GetAllBalances(ctx context.Context) ([]model.Balance, error)
	GetAccountInfo(ctx context.Context) (*model.AccountInfo, error)

	// PlaceOrder 同步到交易所确认收单为止，不等待成交
	PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrder(ctx context.Context, symbol, orderID string) (*model.OrderResult, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]model.OrderResult, error)
	GetTradeHistory(ctx context.Context, symbol string, limit int) ([]model.Trade, error)
	GetOrderHistory(ctx context.Context, symbol string, limit int) ([]model.OrderResult, error)
}

type ErrKind int

const (
	// 网络/HTTP失败，重试耗尽后归为此类，可稍后重试
	KindUnavailable ErrKind = iota + 1
	// 交易所业务拒绝（余额不足、参数非法等），原样重试无意义
	KindRejected
	// 本地校验失败，请求未出网
	KindValidation
)

// Error 交易所错误，调用方根据Kind分支，不要匹配字符串
type Error struct {
	Venue      string
	Kind       ErrKind
	Msg        string
	VenueCode  string // 交易所自己的错误码，可空
	HTTPStatus int    // 可空
	cause      error
}

func (e *Error) Error() string {
	if e.VenueCode != "" {
		return fmt.Sprintf("[%s] %s (code=%s http=%d)", e.Venue, e.Msg, e.VenueCode, e.HTTPStatus)
	}
	return fmt.Sprintf("[%s] %s", e.Venue, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

func NewUnavailable(venue string, cause error) *Error {
	msg := "exchange unavailable"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Venue: venue, Kind: KindUnavailable, Msg: msg, cause: cause}
}

func NewRejected(venue, msg, venueCode string, httpStatus int) *Error {
	return &Error{Venue: venue, Kind: KindRejected, Msg: msg, VenueCode: venueCode, HTTPStatus: httpStatus}
}

func NewValidation(venue, msg string) *Error {
	return &Error{Venue: venue, Kind: KindValidation, Msg: msg}
}

// IsUnavailable err是否为网络级失败
func IsUnavailable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindUnavailable
}

func IsRejected(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindRejected
}
