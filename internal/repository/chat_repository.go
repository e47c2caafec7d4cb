package repository

import (
	"context"
	"fmt"
	"sort"

	"easy-canvas-go/internal/model"
	"easy-canvas-go/pkg/docstore"
)

// ChatRepository 定义了对话及其消息的操作接口。
type ChatRepository interface {
	CreateChat(ctx context.Context, chat *model.Chat) error
	GetChat(ctx context.Context, chatID string) (*model.Chat, error)
	// ListChats 返回用户的全部对话，按 updated_at 倒序。
	ListChats(ctx context.Context, userID string) ([]model.Chat, error)
	UpdateChat(ctx context.Context, chatID string, fields map[string]interface{}) error
	// DeleteChat 先删除全部消息再删除对话本身。
	DeleteChat(ctx context.Context, chatID string) error
	AddMessage(ctx context.Context, msg *model.ChatMessage) error
	// ListMessages 返回对话消息，按时间正序。
	ListMessages(ctx context.Context, chatID string) ([]model.ChatMessage, error)
}

type chatRepository struct {
	store docstore.Store
}

// NewChatRepository 创建一个新的 ChatRepository 实例。
func NewChatRepository(store docstore.Store) ChatRepository {
	return &chatRepository{store: store}
}

func messagesCollection(chatID string) string {
	return fmt.Sprintf("%s/%s/messages", CollectionChats, chatID)
}

func (r *chatRepository) CreateChat(ctx context.Context, chat *model.Chat) error {
	return r.store.Set(ctx, CollectionChats, chat.ChatID, chat)
}

func (r *chatRepository) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	doc, err := r.store.Get(ctx, CollectionChats, chatID)
	if err != nil {
		return nil, err
	}
	var chat model.Chat
	if err := doc.DataTo(&chat); err != nil {
		return nil, fmt.Errorf("malformed chat document: %w", err)
	}
	if chat.ChatID == "" {
		chat.ChatID = doc.ID
	}
	return &chat, nil
}

func (r *chatRepository) ListChats(ctx context.Context, userID string) ([]model.Chat, error) {
	docs, err := r.store.List(ctx, CollectionChats, docstore.Where("user_id", userID))
	if err != nil {
		return nil, err
	}
	chats := make([]model.Chat, 0, len(docs))
	for _, doc := range docs {
		var chat model.Chat
		if err := doc.DataTo(&chat); err != nil {
			return nil, fmt.Errorf("malformed chat document %s: %w", doc.ID, err)
		}
		if chat.ChatID == "" {
			chat.ChatID = doc.ID
		}
		chats = append(chats, chat)
	}
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

func (r *chatRepository) UpdateChat(ctx context.Context, chatID string, fields map[string]interface{}) error {
	return r.store.Update(ctx, CollectionChats, chatID, fields)
}

func (r *chatRepository) DeleteChat(ctx context.Context, chatID string) error {
	docs, err := r.store.List(ctx, messagesCollection(chatID))
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := r.store.Delete(ctx, messagesCollection(chatID), doc.ID); err != nil {
			return fmt.Errorf("failed to delete message %s: %w", doc.ID, err)
		}
	}
	return r.store.Delete(ctx, CollectionChats, chatID)
}

func (r *chatRepository) AddMessage(ctx context.Context, msg *model.ChatMessage) error {
	return r.store.Set(ctx, messagesCollection(msg.ChatID), msg.MessageID, msg)
}

func (r *chatRepository) ListMessages(ctx context.Context, chatID string) ([]model.ChatMessage, error) {
	docs, err := r.store.List(ctx, messagesCollection(chatID))
	if err != nil {
		return nil, err
	}
	msgs := make([]model.ChatMessage, 0, len(docs))
	for _, doc := range docs {
		var m model.ChatMessage
		if err := doc.DataTo(&m); err != nil {
			return nil, fmt.Errorf("malformed message %s: %w", doc.ID, err)
		}
		if m.MessageID == "" {
			m.MessageID = doc.ID
		}
		msgs = append(msgs, m)
	}
	// 时间戳相同时按消息 ID 排序，消息 ID 是按时间递增的 UUIDv7
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].MessageID < msgs[j].MessageID
	})
	return msgs, nil
}
