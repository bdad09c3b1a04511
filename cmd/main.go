package main

import (
	"fmt"
	"log"
	"os"

	api "spreadflow/cmd/spreadflow"
	"spreadflow/conf"
	"spreadflow/pkg/cache"
	"spreadflow/pkg/db"
	"spreadflow/pkg/logger"
)

// 启动服务（监听webhook与管理API）

/*
测试

BODY='{"symbol":"SOLUSDT","action":"BUY","quantity":0.5,"price":150.25,"stopLoss":145.0,"takeProfit":165.0,"strategy":"momentum_v2","confidence":85}'
SECRET="ab12cd34ef56abcdef1234567890abcdef1234567890abcdef1234567890"
TS=$(date +%s)
SIGNATURE=$(echo -n "$TS.$BODY" | openssl dgst -sha256 -hmac $SECRET | sed 's/^.* //')

curl -X POST http://localhost:12190/api/v1/webhook \
  -H "Content-Type: application/json" \
  -H "X-Signature-Timestamp: $TS" \
  -H "X-Signature: $SIGNATURE" \
  -d "$BODY"

也支持TradingView的简单文本格式：

BUY SOLUSDT @ 150.25 SL: 145.0 TP: 165.0
*/

func main() {

	// 加载配置文件
	err := conf.LoadConfig("conf/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appCfg := conf.AppConfig
	logger.InitLogger(&appCfg.Log, appCfg.AppName)

	dbUser := os.Getenv("DB_USER")
	dbPass := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")
	if dbUser == "" || dbPass == "" || dbHost == "" {
		dbUser = conf.AppConfig.Username
		dbPass = conf.AppConfig.Db.Password
		dbHost = conf.AppConfig.Host
		dbPort = conf.AppConfig.Port
		dbName = conf.AppConfig.DbName
	}

	// 初始化数据库
	datasource := db.Init(db.Config{
		User:      dbUser,
		Password:  dbPass,
		Host:      dbHost,
		Port:      dbPort,
		DBName:    dbName,
		ParseTime: true,
	})

	redisHost := os.Getenv("REDIS_HOST")
	redisPort := os.Getenv("REDIS_PORT")
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisAddr := fmt.Sprintf("%s:%s", redisHost, redisPort)
	if redisHost == "" || redisPort == "" {
		redisAddr = conf.AppConfig.Redis.Addr
	}
	if redisPassword != "" {
		appCfg.Redis.Password = redisPassword
	}
	appCfg.Redis.Addr = redisAddr

	// 初始化redis缓存
	cache.InitRedis(appCfg.Redis)

	// 创建并启动服务
	srv := api.NewServer(&appCfg)
	srv.RegisterOnShutdown(func() {
		if datasource != nil {
			m, err := datasource.DB()
			if err == nil {
				_ = m.Close()
			}
		}

		cache.CloseRedis()
	})
	srvRouter := api.InitRouter(datasource)

	srv.Run(srvRouter)
}
