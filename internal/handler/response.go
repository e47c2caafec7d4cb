// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"easy-canvas-go/internal/middleware"
	"easy-canvas-go/internal/service"
	"easy-canvas-go/pkg/log"

	"github.com/gin-gonic/gin"
)

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    data,
	})
}

func respondStatus(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    nil,
	})
}

// statusFor 把业务错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrCoursesNotFound),
		errors.Is(err, service.ErrCourseNotFound),
		errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, service.ErrChatNotFound),
		errors.Is(err, service.ErrPlanNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrBadRequest),
		errors.Is(err, service.ErrCredentialsMissing),
		errors.Is(err, service.ErrInvalidCanvasCredentials):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrExportUnavailable),
		errors.Is(err, service.ErrSummarizerUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicError 返回可以暴露给客户端的状态码与错误信息。500 错误只返回通用信息。
func publicError(err error) (int, string) {
	status := statusFor(err)
	if status != http.StatusInternalServerError {
		return status, err.Error()
	}
	if errors.Is(err, service.ErrPlanGeneration) {
		return status, service.ErrPlanGeneration.Error()
	}
	return status, "Internal server error"
}

// respondError 写出错误响应，详细错误写日志。
func respondError(c *gin.Context, op string, err error) {
	status, msg := publicError(err)
	if status == http.StatusInternalServerError {
		log.Errorf("%s: %v", op, err)
	} else {
		log.Warnf("%s: %v", op, err)
	}
	respondStatus(c, status, msg)
}

// currentUserID 读取认证中间件写入的用户 ID。
func currentUserID(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}
