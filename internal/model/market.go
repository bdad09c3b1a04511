package model

import "time"

type Kline struct {
	Timestamp time.Time `json:"time"`
	Open      float64   `json:"open"`
	Close     float64   `json:"close"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Vol       float64   `json:"vol"` // 成交量 以币为单位
}

// 24小时行情快照
type Ticker24h struct {
	Symbol        string    `json:"symbol"`
	LastPrice     float64   `json:"last_price"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Volume        float64   `json:"volume"`
	ChangePercent float64   `json:"change_percent"`
	Bid           float64   `json:"bid"`
	Ask           float64   `json:"ask"`
	Timestamp     time.Time `json:"timestamp"`
}

// 单个交易所的报价
type VenuePrice struct {
	Exchange string  `json:"exchange"`
	Price    float64 `json:"price"`
}

// 多交易所的价差结果，Quotes按价格从低到高排序
type PriceSpread struct {
	Symbol        string       `json:"symbol"`
	Quotes        []VenuePrice `json:"quotes"`
	Lowest        VenuePrice   `json:"lowest"`
	Highest       VenuePrice   `json:"highest"`
	Spread        float64      `json:"spread"`
	SpreadPercent float64      `json:"spread_percent"`
	Timestamp     time.Time    `json:"timestamp"`
}
