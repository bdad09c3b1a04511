package market

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"spreadflow/pkg/logger"
)

// 价差推送：客户端订阅币对，服务端按周期广播各交易所报价和价差

// 客户端请求的消息格式
type subscribeMessage struct {
	Action  string   `json:"action"`  // subscribe | unsubscribe
	Symbols []string `json:"symbols"` // ["SOLUSDT", "BTCUSDT"]
}

type clientConn struct {
	conn    *websocket.Conn
	send    chan []byte // 异步发送通道
	symbols map[string]struct{}
}

const spreadPushInterval = 2 * time.Second

// ServeWS 升级连接并维护该客户端的订阅集合
func (h *MarketHandler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("websocket升级失败: %v", err)
		return
	}
	client := &clientConn{
		conn:    conn,
		send:    make(chan []byte, 100),
		symbols: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		close(client.send)
		conn.Close()
	}()

	go client.writePump()
	client.readPump(h)
}

// BroadcastSpreads 周期性把订阅币对的价差推给客户端，启动时跑一个协程
func (h *MarketHandler) BroadcastSpreads() {
	ticker := time.NewTicker(spreadPushInterval)
	defer ticker.Stop()

	for range ticker.C {
		h.mu.RLock()
		// 聚合所有客户端订阅的币对，每轮每个币对只查一次
		wanted := make(map[string]struct{})
		for client := range h.clients {
			for s := range client.symbols {
				wanted[s] = struct{}{}
			}
		}
		h.mu.RUnlock()

		if len(wanted) == 0 {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), spreadPushInterval)
		payloads := make(map[string][]byte, len(wanted))
		for sym := range wanted {
			spread, err := h.ms.GetPriceSpread(ctx, sym)
			if err != nil {
				continue
			}
			data, err := json.Marshal(spread)
			if err != nil {
				continue
			}
			payloads[sym] = data
		}
		cancel()

		h.mu.RLock()
		for client := range h.clients {
			for s := range client.symbols {
				data, ok := payloads[s]
				if !ok {
					continue
				}
				select {
				case client.send <- data:
				default:
					// 客户端消费不过来就丢弃本帧
				}
			}
		}
		h.mu.RUnlock()
	}
}

func (c *clientConn) writePump() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *clientConn) readPump(h *MarketHandler) {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var clientMsg subscribeMessage
		if err := json.Unmarshal(msg, &clientMsg); err != nil {
			continue
		}
		h.mu.Lock()
		switch clientMsg.Action {
		case "subscribe":
			for _, s := range clientMsg.Symbols {
				c.symbols[s] = struct{}{}
			}
		case "unsubscribe":
			for _, s := range clientMsg.Symbols {
				delete(c.symbols, s)
			}
		}
		h.mu.Unlock()
	}
}

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true }, // 允许跨域
	}
}
