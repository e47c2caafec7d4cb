// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"easy-canvas-go/pkg/log"
	"easy-canvas-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// UserIDKey 是认证成功后写入 gin 上下文的用户 ID 键。
const UserIDKey = "userID"

const bearerPrefix = "Bearer "

// AuthMiddleware 创建一个 Gin 中间件，用于 ID token 认证。
// 它会从请求头中提取 token，校验通过后把用户 ID 存入 Gin 的上下文中。
func AuthMiddleware(verifier token.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头", "data": nil})
			return
		}

		// Token 以 "Bearer <token>" 的形式提供
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式", "data": nil})
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))

		uid, err := verifier.Verify(c.Request.Context(), tokenString)
		if err != nil {
			log.Warnf("[Auth] token 校验失败, path=%s, err=%v", c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token", "data": nil})
			return
		}

		c.Set(UserIDKey, uid)
		c.Next()
	}
}
