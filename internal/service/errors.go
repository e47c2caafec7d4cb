// Package service 包含了应用的业务逻辑层。
package service

import "errors"

// 业务层哨兵错误，由 handler 通过 errors.Is 映射为 HTTP 状态码。
var (
	ErrUserNotFound             = errors.New("user settings not found")
	ErrCredentialsMissing       = errors.New("missing Canvas URL or API token")
	ErrInvalidCanvasCredentials = errors.New("invalid Canvas credentials")
	ErrCoursesNotFound          = errors.New("no courses found for user")
	ErrCourseNotFound           = errors.New("course not found")
	ErrAssignmentNotFound       = errors.New("assignment not found")
	ErrChatNotFound             = errors.New("chat not found")
	ErrPlanNotFound             = errors.New("no cached plan found")
	ErrBadRequest               = errors.New("bad request")
	ErrPlanGeneration           = errors.New("failed to generate AI plan")
	ErrExportUnavailable        = errors.New("chat export is not configured")
	ErrSummarizerUnavailable    = errors.New("summarizer is not configured")
)
