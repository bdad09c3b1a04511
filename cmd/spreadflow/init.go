package api

import (
	"context"
	"encoding/base64"
	"os"
	"strings"

	"gorm.io/gorm"

	"spreadflow/conf"
	"spreadflow/internal/arbitrage"
	"spreadflow/internal/dao"
	"spreadflow/internal/dca"
	"spreadflow/internal/exchange"
	arbhandler "spreadflow/internal/handler/arbitrage"
	dcahandler "spreadflow/internal/handler/dca"
	"spreadflow/internal/handler/market"
	"spreadflow/internal/handler/order"
	"spreadflow/internal/handler/webhook"
	"spreadflow/internal/model"
	"spreadflow/internal/router"
	"spreadflow/internal/service"
	"spreadflow/internal/signal"
	"spreadflow/pkg/cache"
	"spreadflow/pkg/kafka"
	"spreadflow/pkg/logger"
	"spreadflow/utils/security"
)

const sealedPrefix = "enc:"

// UnsealCredentials 解封配置里enc:前缀的API密钥
// 节点私钥和封存端公钥从环境变量取，没配就原样返回
func UnsealCredentials(creds []conf.ExchangeCredential) []conf.ExchangeCredential {
	nodeKey := os.Getenv("SPREADFLOW_NODE_KEY")
	opsPub := os.Getenv("SPREADFLOW_OPS_PUBKEY")
	if nodeKey == "" || opsPub == "" {
		return creds
	}
	priv, err := base64.StdEncoding.DecodeString(nodeKey)
	if err != nil {
		logger.Fatalf("SPREADFLOW_NODE_KEY 不是合法的base64: %v", err)
	}
	pub, err := base64.StdEncoding.DecodeString(opsPub)
	if err != nil {
		logger.Fatalf("SPREADFLOW_OPS_PUBKEY 不是合法的base64: %v", err)
	}
	cipher, err := security.NewCredentialCipher(priv, pub, []byte(conf.AppConfig.AppName))
	if err != nil {
		logger.Fatalf("初始化密钥解封失败: %v", err)
	}
	open := func(v string) string {
		if !strings.HasPrefix(v, sealedPrefix) {
			return v
		}
		plain, err := cipher.Open(strings.TrimPrefix(v, sealedPrefix))
		if err != nil {
			logger.Fatalf("解封交易所密钥失败: %v", err)
		}
		return plain
	}
	for i := range creds {
		creds[i].ApiKey = open(creds[i].ApiKey)
		creds[i].ApiSecret = open(creds[i].ApiSecret)
		creds[i].Passphrase = open(creds[i].Passphrase)
	}
	return creds
}

func InitRouter(db *gorm.DB) Router {
	appCfg := conf.AppConfig

	if db != nil {
		err := db.AutoMigrate(
			&model.SignalRecord{},
			&model.TradeRecord{},
			&model.ArbitrageTrade{},
			&model.DCAPosition{},
		)
		if err != nil {
			logger.Fatalf("数据库迁移失败: %v", err)
		}
	}

	signalDao := dao.NewSignalDao(db)
	tradeDao := dao.NewTradeDao(db)
	dcaDao := dao.NewDcaDao(db)

	manager := exchange.NewManagerFromConfig(UnsealCredentials(appCfg.Exchanges))

	// kafka审计流，broker没配时事件只丢日志
	var producer kafka.ProducerService
	if appCfg.Kafka.Broker != "" {
		producer = kafka.NewKafkaProducer(appCfg.Kafka.Broker, appCfg.Kafka.Topic)
	}
	events := service.NewEventService(producer)

	detector := arbitrage.NewDetector(manager, appCfg.Arbitrage)
	executor := arbitrage.NewExecutor(manager, appCfg.Arbitrage, tradeDao, events)

	// 信号频率窗口优先用redis，多实例共享，redis不在线退化为进程内窗口
	var window signal.FrequencyWindow
	if cache.Initialized() {
		window = signal.NewRedisFrequencyWindow(cache.GetRedisClient())
	} else {
		window = signal.NewMemoryFrequencyWindow()
	}

	risk := signal.NewRiskChecker(appCfg.Risk, manager, window, tradeDao)
	pipeline := signal.NewPipeline(manager, risk, window, signalDao, tradeDao, events)

	dcaSvc := dca.NewService(manager, appCfg.Dca, dcaDao, tradeDao)
	// 定投自动轮询，poll-interval没配时只靠手动/外部触发
	if appCfg.Dca.PollInterval > 0 {
		go dcaSvc.Monitor(context.Background(), appCfg.Dca.PollInterval)
	}

	ms := service.NewMarketService(manager)

	wh := webhook.NewHandler(pipeline, signalDao)
	mh := market.NewMarketHandler(ms)
	// 开始广播价差
	go mh.BroadcastSpreads()
	ah := arbhandler.NewHandler(detector, executor, tradeDao)
	dh := dcahandler.NewHandler(dcaSvc, manager)
	oh := order.NewHandler(manager, tradeDao)

	return router.NewApiRouter(manager, wh, mh, ah, dh, oh)
}
