package middleware

import (
	"net/http"
	"time"

	"easy-canvas-go/pkg/log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var allowedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
	http.MethodOptions,
}

// CORS 按配置的前端地址放行跨域请求。
func CORS(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     allowedMethods,
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Content-Type-Options", "Referrer-Policy"},
		ExposeHeaders:    []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           time.Hour,
	})
}

// SecurityHeaders 为每个响应加上常用的安全响应头。
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Next()
	}
}

// MethodFilter 拒绝不在白名单里的 HTTP 方法。
func MethodFilter() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, m := range allowedMethods {
			if c.Request.Method == m {
				c.Next()
				return
			}
		}
		log.Warnf("[Security] 拦截了不允许的请求方法: %s %s", c.Request.Method, c.Request.URL.Path)
		c.AbortWithStatus(http.StatusMethodNotAllowed)
	}
}
