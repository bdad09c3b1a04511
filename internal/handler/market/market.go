package market

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"spreadflow/internal/service"
	"spreadflow/pkg/errors"
	"spreadflow/pkg/errors/ecode"
	"spreadflow/pkg/response"
)

type MarketHandler struct {
	ms *service.MarketService

	// websocket价差订阅
	mu       sync.RWMutex
	clients  map[*clientConn]struct{}
	upgrader websocket.Upgrader
}

func NewMarketHandler(ms *service.MarketService) *MarketHandler {
	return &MarketHandler{
		ms:       ms,
		clients:  make(map[*clientConn]struct{}),
		upgrader: newUpgrader(),
	}
}

type spreadReq struct {
	Symbol string `form:"symbol" binding:"required"`
}

// SpreadGet 多交易所实时价差
func (h *MarketHandler) SpreadGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req spreadReq
		if err := ctx.ShouldBindQuery(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		spread, err := h.ms.GetPriceSpread(ctx, req.Symbol)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, spread)
	}
}

type tickerReq struct {
	Exchange string `form:"exchange" binding:"required"`
	Symbol   string `form:"symbol" binding:"required"`
}

// TickerGet 指定交易所的24h行情
func (h *MarketHandler) TickerGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req tickerReq
		if err := ctx.ShouldBindQuery(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		ticker, err := h.ms.Get24hTicker(ctx, req.Exchange, req.Symbol)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, ticker)
	}
}

type klineReq struct {
	Exchange string `form:"exchange" binding:"required"`
	Symbol   string `form:"symbol" binding:"required"`
	Interval string `form:"interval" binding:"required"`
	Limit    int    `form:"limit"`
}

func (h *MarketHandler) KlinesGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req klineReq
		if err := ctx.ShouldBindQuery(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		if req.Limit <= 0 || req.Limit > 1000 {
			req.Limit = 200
		}
		klines, err := h.ms.GetKlines(ctx, req.Exchange, req.Symbol, req.Interval, req.Limit)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, klines)
	}
}
