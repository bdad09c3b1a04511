package arbitrage

import (
	"github.com/gin-gonic/gin"

	"spreadflow/internal/arbitrage"
	"spreadflow/internal/dao"
	"spreadflow/pkg/errors"
	"spreadflow/pkg/errors/ecode"
	"spreadflow/pkg/response"
)

type Handler struct {
	detector *arbitrage.Detector
	executor *arbitrage.Executor
	trades   *dao.TradeDao
}

func NewHandler(detector *arbitrage.Detector, executor *arbitrage.Executor, trades *dao.TradeDao) *Handler {
	return &Handler{detector: detector, executor: executor, trades: trades}
}

type opportunitiesReq struct {
	Symbol string `form:"symbol" binding:"required"`
}

// OpportunitiesGet 扫描当前可执行的套利机会，按价差降序
func (h *Handler) OpportunitiesGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req opportunitiesReq
		if err := ctx.ShouldBindQuery(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		opps, err := h.detector.FindOpportunities(ctx, req.Symbol)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, opps)
	}
}

type executeReq struct {
	Symbol string  `json:"symbol" binding:"required"`
	Amount float64 `json:"amount"` // 为空时用配置里的trade-amount
}

// Execute 重新探测后执行价差最大的那个机会，过期的机会不接受直接执行
func (h *Handler) Execute() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req executeReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		opps, err := h.detector.FindOpportunities(ctx, req.Symbol)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		if len(opps) == 0 {
			response.JSON(ctx, errors.New(ecode.ErrBadRequest, "当前没有可执行的套利机会"), nil)
			return
		}
		trade, err := h.executor.Execute(ctx, &opps[0], req.Amount)
		if err != nil {
			response.JSON(ctx, err, trade)
			return
		}
		response.JSON(ctx, nil, trade)
	}
}

func (h *Handler) StatusGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		response.JSON(ctx, nil, h.executor.Status())
	}
}

// EmergencyStop 紧急停止，放弃所有在途槽位并拒绝后续执行
func (h *Handler) EmergencyStop() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		h.executor.EmergencyStop()
		response.JSON(ctx, nil, h.executor.Status())
	}
}

func (h *Handler) Resume() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		h.executor.Resume()
		response.JSON(ctx, nil, h.executor.Status())
	}
}

type tradesReq struct {
	Symbol string `form:"symbol"`
	Limit  int    `form:"limit"`
}

func (h *Handler) TradesGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req tradesReq
		if err := ctx.ShouldBindQuery(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		if req.Limit <= 0 || req.Limit > 500 {
			req.Limit = 50
		}
		list, err := h.trades.GetArbitrageTrades(ctx, req.Symbol, req.Limit)
		if err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrInternal, "查询失败"), nil)
			return
		}
		response.JSON(ctx, nil, list)
	}
}
