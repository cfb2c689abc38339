package httpapi

import (
	"github.com/gin-gonic/gin"

	"sudooom.estate.chat/internal/auth"
	"sudooom.estate.chat/internal/model"
	"sudooom.estate.chat/pkg/response"
)

const identityKey = "identity"

// AuthMiddleware 从 Authorization 头验证身份，失败返回 401 并中断
func AuthMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := verifier.Verify(c.GetHeader("Authorization"))
		if err != nil {
			response.Unauthorized(c)
			c.Abort()
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// identityFrom 取出中间件注入的身份
func identityFrom(c *gin.Context) *model.Identity {
	v, _ := c.Get(identityKey)
	identity, _ := v.(*model.Identity)
	return identity
}
