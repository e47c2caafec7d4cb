// Package model 包含了应用的数据模型定义。
package model

import "time"

// User 对应 users/{uid} 文档，保存用户的 Canvas 凭证和基本资料。
// APIToken 始终是加密后的密文。
type User struct {
	CanvasURL    string    `json:"canvasUrl"`
	APIToken     string    `json:"apiToken"`
	CanvasUserID int64     `json:"canvas_user_id"`
	Name         string    `json:"name"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	AvatarURL    string    `json:"avatar_url"`
	Email        string    `json:"email,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserProfile 是返回给前端的用户资料，不包含 token。
type UserProfile struct {
	CanvasURL    string    `json:"canvasUrl"`
	CanvasUserID int64     `json:"canvas_user_id"`
	Name         string    `json:"name"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	AvatarURL    string    `json:"avatar_url"`
	Email        string    `json:"email,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Profile 去掉凭证后返回公开资料。
func (u User) Profile() UserProfile {
	return UserProfile{
		CanvasURL:    u.CanvasURL,
		CanvasUserID: u.CanvasUserID,
		Name:         u.Name,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		AvatarURL:    u.AvatarURL,
		Email:        u.Email,
		UpdatedAt:    u.UpdatedAt,
	}
}

// UserSettingsRequest 是保存设置接口的请求体。
type UserSettingsRequest struct {
	CanvasURL string `json:"canvasUrl" binding:"required"`
	APIToken  string `json:"apiToken" binding:"required"`
}

// UserSettingsUpdate 是部分更新接口的请求体，nil 字段保持不变。
type UserSettingsUpdate struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	CanvasURL *string `json:"canvasUrl"`
	APIToken  *string `json:"apiToken"`
}

// CanvasUser 是 Canvas /users/self 返回的当前用户。
type CanvasUser struct {
	ID        int64
	Name      string
	FirstName string
	LastName  string
	AvatarURL string
	Email     string
}
