package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"easy-canvas-go/internal/model"
	"easy-canvas-go/pkg/docstore"
)

func TestChatRepositoryListOrderAndCascade(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(docstore.NewMemoryStore())
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	_ = repo.CreateChat(ctx, &model.Chat{ChatID: "old", UserID: "u1", UpdatedAt: base})
	_ = repo.CreateChat(ctx, &model.Chat{ChatID: "new", UserID: "u1", UpdatedAt: base.Add(time.Hour)})
	_ = repo.CreateChat(ctx, &model.Chat{ChatID: "other", UserID: "u2", UpdatedAt: base})

	chats, err := repo.ListChats(ctx, "u1")
	if err != nil {
		t.Fatalf("ListChats: %v", err)
	}
	if len(chats) != 2 || chats[0].ChatID != "new" || chats[1].ChatID != "old" {
		t.Fatalf("expected newest first for u1, got %+v", chats)
	}

	_ = repo.AddMessage(ctx, &model.ChatMessage{ChatID: "new", MessageID: "b", Role: model.RoleAssistant, Timestamp: base.Add(time.Second)})
	_ = repo.AddMessage(ctx, &model.ChatMessage{ChatID: "new", MessageID: "a", Role: model.RoleUser, Timestamp: base})
	msgs, _ := repo.ListMessages(ctx, "new")
	if len(msgs) != 2 || msgs[0].Role != model.RoleUser {
		t.Fatalf("messages should be in time order, got %+v", msgs)
	}

	if err := repo.DeleteChat(ctx, "new"); err != nil {
		t.Fatalf("DeleteChat: %v", err)
	}
	if _, err := repo.GetChat(ctx, "new"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("chat should be gone, got %v", err)
	}
	if msgs, _ := repo.ListMessages(ctx, "new"); len(msgs) != 0 {
		t.Fatalf("messages should be deleted with the chat, got %d", len(msgs))
	}
}
