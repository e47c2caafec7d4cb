// Package repository 定义了与文档存储进行数据交换的接口和实现。
package repository

import (
	"context"
	"fmt"

	"easy-canvas-go/internal/model"
	"easy-canvas-go/pkg/docstore"
)

// 集合名称
const (
	CollectionUsers       = "users"
	CollectionUserCourses = "userCourses"
	CollectionChats       = "chats"
	CollectionAIPlans     = "aiPlans"
)

// ErrNotFound 表示文档不存在。
var ErrNotFound = docstore.ErrNotFound

// UserRepository 接口定义了用户数据的持久化操作。
type UserRepository interface {
	Get(ctx context.Context, uid string) (*model.User, error)
	Save(ctx context.Context, uid string, user *model.User) error
	Update(ctx context.Context, uid string, fields map[string]interface{}) error
	Delete(ctx context.Context, uid string) error
}

// userRepository 是 UserRepository 接口的文档存储实现。
type userRepository struct {
	store docstore.Store
}

// NewUserRepository 创建一个新的 UserRepository 实例。
func NewUserRepository(store docstore.Store) UserRepository {
	return &userRepository{store: store}
}

// Get 读取 users/{uid}，不存在时返回 ErrNotFound。
func (r *userRepository) Get(ctx context.Context, uid string) (*model.User, error) {
	doc, err := r.store.Get(ctx, CollectionUsers, uid)
	if err != nil {
		return nil, err
	}
	var user model.User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("malformed user document: %w", err)
	}
	return &user, nil
}

// Save 整体覆盖写入用户文档。
func (r *userRepository) Save(ctx context.Context, uid string, user *model.User) error {
	return r.store.Set(ctx, CollectionUsers, uid, user)
}

// Update 更新用户文档的部分字段。
func (r *userRepository) Update(ctx context.Context, uid string, fields map[string]interface{}) error {
	return r.store.Update(ctx, CollectionUsers, uid, fields)
}

// Delete 删除用户文档。
func (r *userRepository) Delete(ctx context.Context, uid string) error {
	return r.store.Delete(ctx, CollectionUsers, uid)
}
