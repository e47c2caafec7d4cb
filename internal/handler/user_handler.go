package handler

import (
	"easy-canvas-go/internal/model"
	"easy-canvas-go/internal/service"
	"easy-canvas-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UserHandler 负责处理用户 Canvas 设置相关的 API 请求。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// SaveSettings 校验并保存 Canvas 地址和 token。
func (h *UserHandler) SaveSettings(c *gin.Context) {
	var req model.UserSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("SaveSettings: Invalid request payload, error: %v", err)
		respondError(c, "SaveSettings", service.ErrBadRequest)
		return
	}

	uid := currentUserID(c)
	profile, err := h.userService.SaveSettings(c.Request.Context(), uid, req)
	if err != nil {
		respondError(c, "SaveSettings", err)
		return
	}
	log.Infof("User '%s' saved Canvas settings", uid)
	respondOK(c, profile)
}

// GetSettings 返回当前用户的资料，不含 token。
func (h *UserHandler) GetSettings(c *gin.Context) {
	profile, err := h.userService.GetSettings(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, "GetSettings", err)
		return
	}
	respondOK(c, profile)
}

// UpdateSettings 部分更新用户设置。
func (h *UserHandler) UpdateSettings(c *gin.Context) {
	var upd model.UserSettingsUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		log.Warnf("UpdateSettings: Invalid request payload, error: %v", err)
		respondError(c, "UpdateSettings", service.ErrBadRequest)
		return
	}
	profile, err := h.userService.UpdateSettings(c.Request.Context(), currentUserID(c), upd)
	if err != nil {
		respondError(c, "UpdateSettings", err)
		return
	}
	respondOK(c, profile)
}

// DeleteSettings 删除用户及其全部数据。
func (h *UserHandler) DeleteSettings(c *gin.Context) {
	uid := currentUserID(c)
	if err := h.userService.DeleteSettings(c.Request.Context(), uid); err != nil {
		respondError(c, "DeleteSettings", err)
		return
	}
	log.Infof("User '%s' deleted settings", uid)
	respondOK(c, nil)
}
