package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"easy-canvas-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// maxLoggedBody 限制日志中请求体和响应体的长度。
const maxLoggedBody = 2048

// redactedFields 中的字段在请求日志里会被替换。
var redactedFields = []string{"apiToken", "api_token"}

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 将响应同时写入 gin.ResponseWriter 和内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
// 请求体中的 Canvas token 会被脱敏。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		// 读取并重新缓存请求体，以便后续处理函数可以正常读取
		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", clip(RedactBody(requestBody)),
			"responseBody", clip(blw.body.String()),
		)
	}
}

// RedactBody 把 JSON 请求体中的敏感字段替换为 "***"。无法解析为 JSON 对象时原样返回。
func RedactBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return string(body)
	}
	changed := false
	for _, key := range redactedFields {
		if _, ok := fields[key]; ok {
			fields[key] = "***"
			changed = true
		}
	}
	if !changed {
		return string(body)
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	return string(out)
}

func clip(s string) string {
	if len(s) <= maxLoggedBody {
		return s
	}
	return s[:maxLoggedBody] + "...(truncated)"
}
