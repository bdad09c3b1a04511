package dca

import (
	"github.com/gin-gonic/gin"

	"spreadflow/internal/dca"
	"spreadflow/internal/exchange"
	"spreadflow/internal/model"
	"spreadflow/pkg/errors"
	"spreadflow/pkg/errors/ecode"
	"spreadflow/pkg/response"
)

type Handler struct {
	svc     *dca.Service
	manager *exchange.Manager
}

func NewHandler(svc *dca.Service, manager *exchange.Manager) *Handler {
	return &Handler{svc: svc, manager: manager}
}

type startReq struct {
	Symbol            string  `json:"symbol" binding:"required"`
	Exchange          string  `json:"exchange"`
	BaseAmount        float64 `json:"base_amount"`
	MaxOrders         int     `json:"max_orders"`
	PriceDeviationPct float64 `json:"price_deviation_pct"`
	TakeProfitPct     float64 `json:"take_profit_pct"`
	StopLossPct       float64 `json:"stop_loss_pct"`
}

func (r *startReq) settings() dca.Settings {
	return dca.Settings{
		Exchange:          r.Exchange,
		BaseAmount:        r.BaseAmount,
		MaxOrders:         r.MaxOrders,
		PriceDeviationPct: r.PriceDeviationPct,
		TakeProfitPct:     r.TakeProfitPct,
		StopLossPct:       r.StopLossPct,
	}
}

// Start 开启定投，未填的参数用配置默认值，开启前会做余额预检
func (h *Handler) Start() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req startReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		pos, err := h.svc.Start(ctx, req.Symbol, req.settings())
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, pos)
	}
}

type symbolReq struct {
	Symbol string `json:"symbol" binding:"required"`
}

func (h *Handler) Stop() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req symbolReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		pos, err := h.svc.Stop(ctx, req.Symbol)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, pos)
	}
}

// Execute 手动触发一次加仓判定，价格没到触发条件时executed=false
func (h *Handler) Execute() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req symbolReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		res, err := h.svc.Execute(ctx, req.Symbol)
		if err != nil {
			response.JSON(ctx, err, res)
			return
		}
		response.JSON(ctx, nil, res)
	}
}

// Reset 清空进度保留配置，从第0单重新开始
func (h *Handler) Reset() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req symbolReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		pos, err := h.svc.Reset(ctx, req.Symbol)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, pos)
	}
}

func (h *Handler) UpdateSettings() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req startReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		pos, err := h.svc.UpdateSettings(ctx, req.Symbol, req.settings())
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, pos)
	}
}

func (h *Handler) PositionGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		symbol := ctx.Query("symbol")
		if symbol == "" {
			response.JSON(ctx, errors.New(ecode.ErrBadRequest, "symbol不能为空"), nil)
			return
		}
		pos, err := h.svc.Get(ctx, symbol)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, pos)
	}
}

type multiplierReq struct {
	Exchange string `form:"exchange" binding:"required"`
	Symbol   string `form:"symbol" binding:"required"`
}

// MultiplierPreview 只算不下单，返回动态倍数和各项子评分
func (h *Handler) MultiplierPreview() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req multiplierReq
		if err := ctx.ShouldBindQuery(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		ex, ok := h.manager.Get(req.Exchange)
		if !ok {
			response.JSON(ctx, errors.New(ecode.ErrExchangeNotFound, "未注册的交易所"), nil)
			return
		}
		snapshot, err := dca.FetchSnapshot(ctx, ex, req.Symbol)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		breakdown := dca.ComputeMultiplier(snapshot, model.DefaultMultiplierWeights(), dca.DefaultBaseMultiplier)
		response.JSON(ctx, nil, gin.H{
			"snapshot":   snapshot,
			"multiplier": breakdown,
		})
	}
}
