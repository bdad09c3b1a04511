package webhook

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"spreadflow/internal/model"
	"spreadflow/internal/signal"
	"spreadflow/pkg/errors"
	"spreadflow/pkg/errors/ecode"
	"spreadflow/pkg/response"
	"spreadflow/utils"
)

// RecordStore 信号台账查询
type RecordStore interface {
	GetRecentSignals(ctx context.Context, symbol string, limit int) ([]model.SignalRecord, error)
	CountSignalsSince(ctx context.Context, symbol string, since time.Time) (int64, error)
}

type Handler struct {
	pipeline *signal.Pipeline
	records  RecordStore
}

func NewHandler(pipeline *signal.Pipeline, records RecordStore) *Handler {
	return &Handler{pipeline: pipeline, records: records}
}

// HandlerWebhook 接收TradingView等信号源的回调，原始报文直接交给信号管道
// 风控拒绝不算错误，结果里带status=REJECTED返回200
func (h *Handler) HandlerWebhook() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		raw, err := io.ReadAll(ctx.Request.Body)
		if err != nil || len(raw) == 0 {
			response.JSON(ctx, errors.New(ecode.ErrBadRequest, "请求体为空"), nil)
			return
		}
		result, err := h.pipeline.Process(ctx, raw)
		if err != nil {
			response.JSON(ctx, err, result)
			return
		}
		response.JSON(ctx, nil, result)
	}
}

type recordsReq struct {
	Symbol string `form:"symbol"`
	Limit  int    `form:"limit"`
}

// RecordsGet 信号审计记录，按时间倒序
// 指定了symbol时额外返回该币对当天0点以来的信号数
func (h *Handler) RecordsGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req recordsReq
		if err := ctx.ShouldBindQuery(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		if req.Limit <= 0 || req.Limit > 200 {
			req.Limit = 50
		}
		records, err := h.records.GetRecentSignals(ctx, req.Symbol, req.Limit)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		data := gin.H{"records": records}
		if req.Symbol != "" {
			dayStart := time.Now().Truncate(24 * time.Hour)
			count, err := h.records.CountSignalsSince(ctx, req.Symbol, dayStart)
			if err != nil {
				response.JSON(ctx, err, nil)
				return
			}
			data["total_today"] = count
			data["since"] = utils.Stamp2str(dayStart.Unix())
		}
		response.JSON(ctx, nil, data)
	}
}
