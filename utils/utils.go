package utils

import (
	"time"

	"spreadflow/internal/consts"
)

// Stamp2str 时间戳转字符串
func Stamp2str(timestamp int64) string {
	if timestamp == 0 {
		return ""
	}
	return time.Unix(timestamp, 0).Format(consts.TimeLayout)
}

// Str2stamp 字符串转时间戳
func Str2stamp(str string) int64 {
	t, err := time.Parse(consts.TimeLayout, str)
	if err != nil {
		return 0
	}
	return t.Unix()
}
