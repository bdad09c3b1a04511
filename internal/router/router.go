package router

import (
	"github.com/gin-gonic/gin"

	"spreadflow/conf"
	"spreadflow/internal/exchange"
	"spreadflow/internal/handler/arbitrage"
	"spreadflow/internal/handler/auth"
	"spreadflow/internal/handler/dca"
	"spreadflow/internal/handler/market"
	"spreadflow/internal/handler/order"
	"spreadflow/internal/handler/ping"
	"spreadflow/internal/handler/webhook"
	"spreadflow/internal/middleware"
)

type ApiRouter struct {
	manager    *exchange.Manager
	wh         *webhook.Handler
	mh         *market.MarketHandler
	ah         *arbitrage.Handler
	dh         *dca.Handler
	oh         *order.Handler
	authHandle *auth.Handler
}

func NewApiRouter(manager *exchange.Manager, wh *webhook.Handler, mh *market.MarketHandler,
	ah *arbitrage.Handler, dh *dca.Handler, oh *order.Handler) *ApiRouter {
	return &ApiRouter{
		manager:    manager,
		wh:         wh,
		mh:         mh,
		ah:         ah,
		dh:         dh,
		oh:         oh,
		authHandle: auth.NewHandler(),
	}
}

func (api *ApiRouter) Load(g *gin.Engine) {
	g.GET("/ping", ping.Ping())

	base := g.Group("/api/v1")

	base.GET("/health", ping.Health(api.manager))

	// 信号源回调，HMAC签名校验，不走操作员鉴权
	base.POST("/webhook", middleware.WebhookAuth(conf.AppConfig.Webhook.Secret), api.wh.HandlerWebhook())

	m := base.Group("/market")
	{
		m.GET("/spread", api.mh.SpreadGet())
		m.GET("/spread/ws", api.mh.ServeWS) // websocket订阅实时价差
		m.GET("/ticker", api.mh.TickerGet())
		m.GET("/klines", api.mh.KlinesGet())
	}

	s := base.Group("/signal", middleware.AuthToken())
	{
		s.GET("/records", api.wh.RecordsGet())
	}

	a := base.Group("/arbitrage", middleware.AuthToken())
	{
		a.GET("/opportunities", api.ah.OpportunitiesGet())
		a.GET("/status", api.ah.StatusGet())
		a.GET("/trades", api.ah.TradesGet())
		a.POST("/execute", middleware.AntiDuplicateMiddleware(), api.ah.Execute())
		a.POST("/stop", api.ah.EmergencyStop())
		a.POST("/resume", api.ah.Resume())
	}

	d := base.Group("/dca", middleware.AuthToken())
	{
		d.GET("/position", api.dh.PositionGet())
		d.GET("/multiplier", api.dh.MultiplierPreview())
		d.POST("/start", middleware.AntiDuplicateMiddleware(), api.dh.Start())
		d.POST("/stop", api.dh.Stop())
		d.POST("/execute", middleware.AntiDuplicateMiddleware(), api.dh.Execute())
		d.POST("/reset", api.dh.Reset())
		d.POST("/settings", api.dh.UpdateSettings())
	}

	o := base.Group("/order", middleware.AuthToken())
	{
		o.POST("/place", middleware.AntiDuplicateMiddleware(), api.oh.Place())
		o.POST("/cancel", api.oh.Cancel())
		o.GET("/open", api.oh.OpenOrdersGet())
		o.GET("/history", api.oh.OrderHistoryGet())
		o.GET("/balances", api.oh.BalancesGet())
		o.GET("/ledger", api.oh.LedgerGet())
	}

	au := base.Group("/auth")
	{
		au.POST("/login", api.authHandle.Login())
		au.GET("/logout", middleware.AuthToken(), api.authHandle.Logout())
	}
}
