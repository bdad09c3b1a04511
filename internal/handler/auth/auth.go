package auth

import (
	"time"

	"github.com/gin-gonic/gin"

	"spreadflow/conf"
	"spreadflow/internal/consts"
	"spreadflow/pkg/errors"
	"spreadflow/pkg/errors/ecode"
	"spreadflow/pkg/jwt"
	"spreadflow/pkg/response"
	"spreadflow/utils/security"
)

// 操作员登录，凭证在配置文件里只存access_key的md5

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

type loginReq struct {
	Name      string `json:"name" binding:"required"`
	AccessKey string `json:"access_key" binding:"required"`
}

func (h *Handler) Login() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req loginReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrBadRequest, "参数错误"), nil)
			return
		}
		uid := int64(-1)
		digest := security.Md5(req.AccessKey)
		for i, op := range conf.AppConfig.Operators {
			if op.Name == req.Name && op.AccessKeyMd5 == digest {
				uid = int64(i + 1)
				break
			}
		}
		if uid < 0 {
			response.JSON(ctx, errors.New(ecode.ErrAuth, "用户名或密钥错误"), nil)
			return
		}
		exp := time.Now().Add(time.Duration(conf.AppConfig.Jwt.JwtTtl) * time.Second)
		token, err := jwt.GenToken(jwt.BuildClaims(exp, uid), conf.AppConfig.Jwt.Secret)
		if err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrInternal, "生成token失败"), nil)
			return
		}
		response.JSON(ctx, nil, gin.H{
			"token":      token,
			"expires_at": exp.Unix(),
		})
	}
}

// Logout 把当前token拉黑
func (h *Handler) Logout() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := ctx.GetString(consts.JWTTokenCtx)
		if tokenStr == "" {
			response.JSON(ctx, errors.New(ecode.ErrAuth, "未登录"), nil)
			return
		}
		if err := jwt.JoinBlackList(ctx, tokenStr, conf.AppConfig.Jwt.Secret); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ErrInternal, "登出失败"), nil)
			return
		}
		response.JSON(ctx, nil, nil)
	}
}
