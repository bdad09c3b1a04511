package ecode

// 业务错误码，0表示成功
const (
	Success = 0

	// 通用
	ErrInternal   = 10001
	ErrBadRequest = 10002
	ErrAuth       = 10003

	// 交易所
	ErrExchangeUnavailable = 20001 // 网络/HTTP失败，重试耗尽
	ErrExchangeRejected    = 20002 // 交易所业务拒绝（余额不足等）
	ErrExchangeNotFound    = 20003 // 未注册的交易所
	ErrInsufficientVenues  = 20004 // 有效报价的交易所少于2个

	// 信号管道
	ErrValidation   = 30001 // 信号/订单参数非法
	ErrRiskRejected = 30002 // 风控拒绝

	// 套利
	ErrCooldownActive   = 40001
	ErrConcurrencyLimit = 40002
	ErrSystemDisabled   = 40003 // 紧急停止后拒绝执行
	ErrPartialExecution = 40004 // 主单成功但保护单失败

	// DCA
	ErrDcaInactive = 50001
	ErrDcaComplete = 50002
)

var messages = map[int]string{
	Success:                "成功",
	ErrInternal:            "内部错误",
	ErrBadRequest:          "请求参数错误",
	ErrAuth:                "鉴权失败",
	ErrExchangeUnavailable: "交易所暂不可用",
	ErrExchangeRejected:    "交易所拒绝了请求",
	ErrExchangeNotFound:    "未注册的交易所",
	ErrInsufficientVenues:  "有效报价的交易所不足",
	ErrValidation:          "信号校验失败",
	ErrRiskRejected:        "风控拒绝",
	ErrCooldownActive:      "冷却期内，暂不允许下单",
	ErrConcurrencyLimit:    "并发套利数已达上限",
	ErrSystemDisabled:      "套利已紧急停止",
	ErrPartialExecution:    "保护单下单失败",
	ErrDcaInactive:         "定投未开启",
	ErrDcaComplete:         "定投已完成",
}

// Message 返回错误码对应的默认提示
func Message(code int) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return messages[ErrInternal]
}
