package security

import (
	"crypto/md5"
	"encoding/hex"
)

func Md5(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Md5WithSalt 带盐摘要，用于把设备号等明文映射为稳定的key
func Md5WithSalt(s, salt string) string {
	return Md5(s + salt)
}
