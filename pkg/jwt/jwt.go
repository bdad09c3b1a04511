package jwt

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v4"

	"spreadflow/conf"
	"spreadflow/pkg/cache"
	"spreadflow/pkg/logger"
	"spreadflow/utils/security"
)

// 手动交易接口的操作员令牌，HS256签名，登出后进Redis黑名单

type CustomClaims struct {
	UserId int64  `json:"user_id"`
	Sub    string `json:"sub"` // 鉴权主题，目前只有operator
	jwt.RegisteredClaims
}

func BuildClaims(exp time.Time, uid int64) *CustomClaims {
	return &CustomClaims{
		UserId: uid,
		Sub:    "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    conf.AppConfig.AppName,
		},
	}
}

func GenToken(c *CustomClaims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	ss, err := token.SignedString([]byte(secretKey))
	return ss, err
}

// 解析jwt token
func ParseToken(jwtStr, secretKey string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(jwtStr, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

func getBlackListKey(token string) string {
	return "jwt_black_list:" + security.Md5(token)
}

// JoinBlackList 登出时把token拉黑，过期时间与token剩余有效期一致
func JoinBlackList(ctx context.Context, tokenStr string, secretKey string) error {
	claims, err := ParseToken(tokenStr, secretKey)
	if err != nil {
		return err
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	rc := cache.GetRedisClient()
	return rc.SetNX(ctx, getBlackListKey(tokenStr), time.Now().Unix(), ttl).Err()
}

func IsInBlackList(ctx context.Context, token string) bool {
	rc := cache.GetRedisClient()
	_, err := rc.Get(ctx, getBlackListKey(token)).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Errorf("Redis连接异常:%v", err.Error())
		}
		return false
	}
	return true
}
