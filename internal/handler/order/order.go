package order

import (
	"time"

	"github.com/gin-gonic/gin"

	"spreadflow/internal/consts"
	"spreadflow/internal/dao"
	"spreadflow/internal/exchange"
	"spreadflow/internal/model"
	"spreadflow/pkg/errors"
	"spreadflow/pkg/errors/ecode"
	"spreadflow/pkg/logger"
	"spreadflow/pkg/response"
)

type Handler struct {
	manager *exchange.Manager
	trades  *dao.TradeDao
}

func NewHandler(manager *exchange.Manager, trades *dao.TradeDao) *Handler {
	return &Handler{manager: manager, trades: trades}
}

func (h *Handler) pick(ctx *gin.Context, name string) (exchange.Exchange, bool) {
	ex, ok := h.manager.Get(name)
	if !ok {
		response.JSON(ctx, errors.New(ecode.ErrExchangeNotFound, "未注册的交易所: "+name), nil)
		return nil, false
	}
	return ex, true
}

type placeReq struct {
	Exchange  string  `json:"exchange" binding:"required"`
	Symbol    string  `json:"symbol" binding:"required"`
	Side      string  `json:"side" binding:"required,oneof=BUY SELL"`
	Type      string  `json:"type" binding:"required,oneof=LIMIT MARKET STOP_LIMIT STOP_MARKET"`
	Quantity  float64 `json:"quantity" binding:"required,gt=0"`
	Price     float64 `json:"price"`
	StopPrice float64 `json:"stop_price"`
}

// Place 手动下单，直连交易所不走信号风控，操作员自担风险
func (h *Handler) Place() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req placeReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		ex, ok := h.pick(ctx, req.Exchange)
		if !ok {
			return
		}
		orderType := model.OrderType(req.Type)
		if (orderType == model.Limit || orderType == model.StopLimit) && req.Price <= 0 {
			response.JSON(ctx, errors.New(ecode.ErrValidation, "限价单必须带价格"), nil)
			return
		}
		order, err := ex.PlaceOrder(ctx, &model.OrderRequest{
			Symbol:      req.Symbol,
			Side:        model.OrderSide(req.Side),
			Type:        orderType,
			Quantity:    req.Quantity,
			Price:       req.Price,
			StopPrice:   req.StopPrice,
			StrategyTag: consts.StrategyTagManual,
		})
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		if h.trades != nil {
			rec := &model.TradeRecord{
				OrderId:   order.OrderID,
				Exchange:  ex.Name(),
				Symbol:    order.Symbol,
				Side:      order.Side,
				OrderType: order.Type,
				Price:     order.Price,
				Quantity:  order.RequestedQty,
				Strategy:  consts.StrategyTagManual,
				Status:    order.Status,
				CreatedAt: time.Now(),
			}
			if err := h.trades.AppendTradeRecord(ctx, rec); err != nil {
				logger.Errorf("手动单台账落库失败: %v", err)
			}
		}
		response.JSON(ctx, nil, order)
	}
}

type cancelReq struct {
	Exchange string `json:"exchange" binding:"required"`
	Symbol   string `json:"symbol" binding:"required"`
	OrderId  string `json:"order_id" binding:"required"`
}

func (h *Handler) Cancel() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req cancelReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		ex, ok := h.pick(ctx, req.Exchange)
		if !ok {
			return
		}
		if err := ex.CancelOrder(ctx, req.Symbol, req.OrderId); err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, nil)
	}
}

type queryReq struct {
	Exchange string `form:"exchange" binding:"required"`
	Symbol   string `form:"symbol"`
	Limit    int    `form:"limit"`
}

func (h *Handler) OpenOrdersGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req queryReq
		if err := ctx.ShouldBindQuery(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		ex, ok := h.pick(ctx, req.Exchange)
		if !ok {
			return
		}
		orders, err := ex.GetOpenOrders(ctx, req.Symbol)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, orders)
	}
}

func (h *Handler) OrderHistoryGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req queryReq
		if err := ctx.ShouldBindQuery(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		ex, ok := h.pick(ctx, req.Exchange)
		if !ok {
			return
		}
		if req.Limit <= 0 || req.Limit > 500 {
			req.Limit = 50
		}
		orders, err := ex.GetOrderHistory(ctx, req.Symbol, req.Limit)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, orders)
	}
}

func (h *Handler) BalancesGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		name := ctx.Query("exchange")
		if name == "" {
			response.JSON(ctx, errors.New(ecode.ErrBadRequest, "exchange不能为空"), nil)
			return
		}
		ex, ok := h.pick(ctx, name)
		if !ok {
			return
		}
		balances, err := ex.GetAllBalances(ctx)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, balances)
	}
}

// LedgerGet 本地成交台账，信号/套利/定投/手动单都在里面
func (h *Handler) LedgerGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		symbol := ctx.Query("symbol")
		if symbol == "" {
			response.JSON(ctx, errors.New(ecode.ErrBadRequest, "symbol不能为空"), nil)
			return
		}
		list, err := h.trades.GetTradesBySymbol(ctx, symbol, 100)
		if err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrInternal, "查询失败"), nil)
			return
		}
		response.JSON(ctx, nil, list)
	}
}
