package ping

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"spreadflow/internal/exchange"
	"spreadflow/pkg/response"
)

func Ping() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "\r\nSuccess")
	}
}

// Health 逐个探测已注册交易所的连通性
func Health(manager *exchange.Manager) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		response.JSON(ctx, nil, gin.H{
			"exchanges": manager.HealthCheck(ctx),
		})
	}
}
