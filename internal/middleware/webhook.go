package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"spreadflow/pkg/response"
)

const (
	webhookTimestampHeader = "X-Signature-Timestamp"
	webhookSignatureHeader = "X-Signature"

	// 时间戳偏差超过5分钟的请求拒收，防重放
	webhookMaxSkew = 5 * time.Minute
)

// WebhookAuth 校验信号源的HMAC签名，签名内容为 timestamp + "." + body
// secret为空时放行，方便本地联调
func WebhookAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		tsStr := c.GetHeader(webhookTimestampHeader)
		sig := c.GetHeader(webhookSignatureHeader)
		if tsStr == "" || sig == "" {
			response.BadRequests(c)
			c.Abort()
			return
		}
		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			response.BadRequests(c)
			c.Abort()
			return
		}
		skew := time.Since(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > webhookMaxSkew {
			response.BadRequests(c)
			c.Abort()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.BadRequests(c)
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		want := computeHMAC(tsStr+"."+string(body), []byte(secret))
		if !hmac.Equal([]byte(want), []byte(sig)) {
			response.BadRequests(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

func computeHMAC(data string, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
