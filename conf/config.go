package conf

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// 配置加载（API密钥等）

type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

// 单个交易所的凭证配置
// 未配置apiKey时该交易所进入只读模式（仅公共行情接口可用）
type ExchangeCredential struct {
	Name       string `yaml:"name"`
	ApiKey     string `yaml:"apiKey"`
	ApiSecret  string `yaml:"apiSecret"`
	Passphrase string `yaml:"passphrase"`
	Sandbox    bool   `yaml:"sandbox"`
	Active     bool   `yaml:"active"`
}

type Db struct {
	DbName   string `yaml:"dbname"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// 风险分级的上限，超出HIGH上限的机会直接丢弃
type ArbitrageTier struct {
	MaxAmount float64 `yaml:"max-amount"` // 预估利润上限（USDT）
	MaxSpread float64 `yaml:"max-spread"` // 价差百分比上限
}

type ArbitrageConfig struct {
	MinSpreadPercent    float64       `yaml:"min-spread-percent"` // 最小可执行价差
	MaxSpreadPercent    float64       `yaml:"max-spread-percent"` // 超过视为坏报价
	TradeAmount         float64       `yaml:"trade-amount"`       // 用于预估利润的下单金额
	Cooldown            time.Duration `yaml:"-"`                  // 同一币对两次套利的最小间隔
	CooldownStr         string        `yaml:"cooldown"`           // "5m"这类写法，LoadConfig时解析
	MaxConcurrentTrades int           `yaml:"max-concurrent-trades"`
	Low                 ArbitrageTier `yaml:"low"`
	Medium              ArbitrageTier `yaml:"medium"`
	High                ArbitrageTier `yaml:"high"`
}

// 信号风控配置
type RiskConfig struct {
	MaxDailyLoss       float64 `yaml:"max-daily-loss"`       // 当日最大亏损（USDT，正数）
	MaxPositionPct     float64 `yaml:"max-position-pct"`     // 单笔下单占账户余额的最大比例 (0~1)
	DefaultOrderAmount float64 `yaml:"default-order-amount"` // 不带数量的信号按该金额（USDT）折算数量，0表示直接拒绝
	MinConfidence      float64 `yaml:"min-confidence"`       // 信号最小置信度 0~100
	MaxLeverage        int     `yaml:"max-leverage"`         // 最大杠杆倍数
	MaxSignalsPerHour  int     `yaml:"max-signals-per-hour"` // 单币对每小时信号上限
	TradingHoursEnable bool    `yaml:"trading-hours-enable"` // 币市7x24，默认关闭
	TradingHoursStart  string  `yaml:"trading-hours-start"`  // "09:00"
	TradingHoursEnd    string  `yaml:"trading-hours-end"`    // "17:00"
}

// DCA定投默认配置
type DcaConfig struct {
	BaseAmount        float64       `yaml:"base-amount"`         // 首单金额（USDT）
	MaxOrders         int           `yaml:"max-orders"`          // 最多下单次数
	PriceDeviationPct float64       `yaml:"price-deviation-pct"` // 触发加仓的跌幅百分比
	TakeProfitPct     float64       `yaml:"take-profit-pct"`
	StopLossPct       float64       `yaml:"stop-loss-pct"`
	BaseMultiplier    float64       `yaml:"base-multiplier"` // 动态倍数的基础系数，默认1.5
	PollInterval      time.Duration `yaml:"-"`               // 自动轮询间隔，0表示不开轮询
	PollIntervalStr   string        `yaml:"poll-interval"`   // "1m"这类写法，LoadConfig时解析
}

type LogConfig struct {
	Level      string `yaml:"level"`
	FileName   string `yaml:"file-name"`
	TimeFormat string `yaml:"time-format"`
	MaxSize    int    `yaml:"max-size"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAge     int    `yaml:"max-age"`
	Compress   bool   `yaml:"compress"`
	LocalTime  bool   `yaml:"local-time"`
	Console    bool   `yaml:"console"`
}

// RedisConfig is used to configure redis
type RedisConfig struct {
	Addr         string `yaml:"address"`
	Password     string `yaml:"password"`
	Db           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool-size"`
	MinIdleConns int    `yaml:"min-idle-conns"`
	IdleTimeout  int    `yaml:"idle-timeout"`
}

type JwtConfig struct {
	Secret string `yaml:"secret"`
	JwtTtl int64  `yaml:"ttl"` // token 有效期（秒）
}

// 手动交易操作员，access_key只存md5
type OperatorCredential struct {
	Name         string `yaml:"name"`
	AccessKeyMd5 string `yaml:"access-key-md5"`
}

type KafkaConfig struct {
	Broker string `yaml:"broker"`
	Topic  string `yaml:"topic"` // 交易事件流topic
}

type Config struct {
	AppName      string `yaml:"app_name"`
	Listen       string `yaml:"listen"`
	Mode         string `yaml:"mode"`
	Language     string `yaml:"language"`
	MaxPingCount int    `yaml:"max-ping-count"`

	Webhook   WebhookConfig        `yaml:"webhook"`
	Exchanges []ExchangeCredential `yaml:"exchanges"`
	Db        `yaml:"database"`
	Arbitrage ArbitrageConfig      `yaml:"arbitrage"`
	Risk      RiskConfig           `yaml:"risk"`
	Dca       DcaConfig            `yaml:"dca"`
	Log       LogConfig            `yaml:"log"`
	Jwt       JwtConfig            `yaml:"jwt"`
	Operators []OperatorCredential `yaml:"operators"`
	Redis     RedisConfig          `yaml:"redis"`
	Kafka     KafkaConfig          `yaml:"kafka"`
}

var AppConfig Config

func LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Read config file error %w", err)
	}
	if err := yaml.Unmarshal(data, &AppConfig); err != nil {
		return fmt.Errorf("Unmarshal config yaml error: %w", err)
	}
	if AppConfig.Arbitrage.CooldownStr != "" {
		d, err := time.ParseDuration(AppConfig.Arbitrage.CooldownStr)
		if err != nil {
			return fmt.Errorf("parse arbitrage cooldown error: %w", err)
		}
		AppConfig.Arbitrage.Cooldown = d
	}
	if AppConfig.Dca.PollIntervalStr != "" {
		d, err := time.ParseDuration(AppConfig.Dca.PollIntervalStr)
		if err != nil {
			return fmt.Errorf("parse dca poll-interval error: %w", err)
		}
		AppConfig.Dca.PollInterval = d
	}
	return nil
}
