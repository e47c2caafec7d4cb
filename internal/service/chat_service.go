package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"easy-canvas-go/internal/config"
	"easy-canvas-go/internal/model"
	"easy-canvas-go/internal/repository"
	"easy-canvas-go/pkg/llm"
	"easy-canvas-go/pkg/log"
)

// 对话标题和最后一条消息预览的最大字符数
const (
	chatTitleLength   = 50
	lastMessageLength = 100
)

// TranscriptStore 是对话导出使用的对象存储。
type TranscriptStore interface {
	PutJSON(ctx context.Context, objectKey string, v interface{}) error
	PresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

// ChatService 定义了聊天助手和对话管理的业务操作。
type ChatService interface {
	SendMessage(ctx context.Context, userID string, req model.ChatRequest) (*model.ChatReply, error)
	ListChats(ctx context.Context, userID string) ([]model.Chat, error)
	GetChat(ctx context.Context, userID, chatID string) (*model.ChatDetail, error)
	RenameChat(ctx context.Context, userID, chatID, title string) (*model.Chat, error)
	DeleteChat(ctx context.Context, userID, chatID string) error
	ExportChat(ctx context.Context, userID, chatID string) (*model.ChatExport, error)
}

type chatService struct {
	chatRepo    repository.ChatRepository
	loop        *ToolLoop
	transcripts TranscriptStore
	chatCfg     config.ChatConfig
	openaiCfg   config.OpenAIConfig
	exportTTL   time.Duration
	now         func() time.Time
}

// NewChatService 创建一个新的 ChatService 实例。transcripts 为 nil 时导出接口不可用。
func NewChatService(
	chatRepo repository.ChatRepository,
	loop *ToolLoop,
	transcripts TranscriptStore,
	chatCfg config.ChatConfig,
	openaiCfg config.OpenAIConfig,
	exportTTL time.Duration,
) ChatService {
	if exportTTL <= 0 {
		exportTTL = 15 * time.Minute
	}
	return &chatService{
		chatRepo:    chatRepo,
		loop:        loop,
		transcripts: transcripts,
		chatCfg:     chatCfg,
		openaiCfg:   openaiCfg,
		exportTTL:   exportTTL,
		now:         time.Now,
	}
}

// SendMessage 处理一条用户消息：保存用户消息，运行工具调用循环，保存并返回助手回复。
// 模型调用失败不会返回错误，而是返回并保存道歉消息。
func (s *chatService) SendMessage(ctx context.Context, userID string, req model.ChatRequest) (*model.ChatReply, error) {
	content := strings.TrimSpace(req.Message.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: message content is required", ErrBadRequest)
	}

	// 1. 获取或创建对话
	chat, history, err := s.openChat(ctx, userID, req, content)
	if err != nil {
		return nil, err
	}

	// 2. 截断历史并构造模型输入
	input := s.buildInput(history, content, req.PreviousResponseID != "")

	// 3. 先保存用户消息
	userMsg := &model.ChatMessage{
		MessageID: newMessageID(),
		ChatID:    chat.ChatID,
		Role:      model.RoleUser,
		Type:      model.MessageTypeText,
		Content:   content,
		Timestamp: s.now().UTC(),
	}
	if err := s.chatRepo.AddMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	// 4. 运行工具调用循环
	store := true
	result, err := s.loop.Run(ctx, LoopRequest{
		UserID:             userID,
		Model:              s.openaiCfg.ChatModel,
		ReasoningEffort:    s.openaiCfg.ReasoningEffort,
		Input:              input,
		PreviousResponseID: req.PreviousResponseID,
		Store:              &store,
	})

	text, responseID := "", ""
	if err != nil {
		log.Errorf("[ChatService] 模型调用失败, userID: %s, chatID: %s, error: %v", userID, chat.ChatID, err)
		text = ApologyMessage
	} else {
		text = strings.TrimSpace(result.Text)
		responseID = result.ResponseID
		if text == "" {
			text = FallbackMessage(result.LastTool, result.LastOutput)
		}
	}

	// 5. 保存中间步骤与助手回复，即使请求已取消也要写入
	saveCtx := context.WithoutCancel(ctx)
	if err == nil && s.chatCfg.PersistToolMessages {
		for i := range result.Steps {
			step := result.Steps[i]
			step.MessageID = newMessageID()
			step.ChatID = chat.ChatID
			step.Timestamp = s.now().UTC()
			if serr := s.chatRepo.AddMessage(saveCtx, &step); serr != nil {
				log.Warnf("[ChatService] 保存工具消息失败, chatID: %s, error: %v", chat.ChatID, serr)
			}
		}
	}

	assistantMsg := model.ChatMessage{
		MessageID:  newMessageID(),
		ChatID:     chat.ChatID,
		Role:       model.RoleAssistant,
		Type:       model.MessageTypeText,
		Content:    text,
		ResponseID: responseID,
		Timestamp:  s.now().UTC(),
	}
	if err := s.chatRepo.AddMessage(saveCtx, &assistantMsg); err != nil {
		log.Errorf("Failed to save assistant message: %v", err)
	}
	if err := s.chatRepo.UpdateChat(saveCtx, chat.ChatID, map[string]interface{}{
		"updated_at":   assistantMsg.Timestamp,
		"last_message": truncateRunes(text, lastMessageLength),
	}); err != nil {
		log.Warnf("[ChatService] 更新对话摘要失败, chatID: %s, error: %v", chat.ChatID, err)
	}

	return &model.ChatReply{Message: assistantMsg, ResponseID: responseID, ChatID: chat.ChatID}, nil
}

// openChat 返回目标对话和用于回放的历史消息。没有 chat_id 时新建对话，历史取自请求体。
func (s *chatService) openChat(ctx context.Context, userID string, req model.ChatRequest, content string) (*model.Chat, []model.ChatMessage, error) {
	if req.ChatID != "" {
		chat, err := s.ownedChat(ctx, userID, req.ChatID)
		if err != nil {
			return nil, nil, err
		}
		history, err := s.chatRepo.ListMessages(ctx, chat.ChatID)
		if err != nil {
			return nil, nil, fmt.Errorf("load chat history: %w", err)
		}
		if len(history) == 0 {
			history = req.PreviousMessages
		}
		return chat, history, nil
	}

	now := s.now().UTC()
	chat := &model.Chat{
		ChatID:    uuid.NewString(),
		UserID:    userID,
		Title:     truncateRunes(content, chatTitleLength),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.chatRepo.CreateChat(ctx, chat); err != nil {
		return nil, nil, fmt.Errorf("create chat: %w", err)
	}
	log.Infof("[ChatService] 用户 %s 创建新对话 %s", userID, chat.ChatID)
	return chat, req.PreviousMessages, nil
}

// buildInput 组装 system + 截断后的历史 + 新用户消息。
// 使用 previous_response_id 时服务端已有上下文，只发送 system 和新消息。
func (s *chatService) buildInput(history []model.ChatMessage, content string, chained bool) []llm.InputItem {
	system := model.ChatMessage{Role: model.RoleSystem, Content: ChatSystemPrompt}
	if chained {
		return toInputItems([]model.ChatMessage{system, {Role: model.RoleUser, Content: content}})
	}

	replay := make([]model.ChatMessage, 0, len(history)+1)
	replay = append(replay, system)
	for _, m := range history {
		if m.Role == model.RoleSystem && m.Kind() == model.MessageTypeText {
			continue
		}
		replay = append(replay, m)
	}
	replay = TruncateMessages(replay, HistoryBudget(s.chatCfg.MaxContextTokens))
	replay = PairFunctionCalls(replay)
	replay = append(replay, model.ChatMessage{Role: model.RoleUser, Content: content})
	return toInputItems(replay)
}

func (s *chatService) ownedChat(ctx context.Context, userID, chatID string) (*model.Chat, error) {
	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	if chat.UserID != userID {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

func (s *chatService) ListChats(ctx context.Context, userID string) ([]model.Chat, error) {
	return s.chatRepo.ListChats(ctx, userID)
}

func (s *chatService) GetChat(ctx context.Context, userID, chatID string) (*model.ChatDetail, error) {
	chat, err := s.ownedChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.chatRepo.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return &model.ChatDetail{Chat: *chat, Messages: msgs}, nil
}

func (s *chatService) RenameChat(ctx context.Context, userID, chatID, title string) (*model.Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrBadRequest)
	}
	chat, err := s.ownedChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	chat.Title = title
	chat.UpdatedAt = s.now().UTC()
	if err := s.chatRepo.UpdateChat(ctx, chatID, map[string]interface{}{
		"title":      chat.Title,
		"updated_at": chat.UpdatedAt,
	}); err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *chatService) DeleteChat(ctx context.Context, userID, chatID string) error {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return err
	}
	return s.chatRepo.DeleteChat(ctx, chatID)
}

// ExportChat 将对话记录写入对象存储并返回限时下载链接。
func (s *chatService) ExportChat(ctx context.Context, userID, chatID string) (*model.ChatExport, error) {
	if s.transcripts == nil {
		return nil, ErrExportUnavailable
	}
	detail, err := s.GetChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	key := fmt.Sprintf("transcripts/%s/%s-%d.json", userID, chatID, now.Unix())
	if err := s.transcripts.PutJSON(ctx, key, detail); err != nil {
		return nil, fmt.Errorf("upload transcript: %w", err)
	}
	url, err := s.transcripts.PresignedURL(ctx, key, s.exportTTL)
	if err != nil {
		return nil, fmt.Errorf("presign transcript: %w", err)
	}
	log.Infof("[ChatService] 对话 %s 已导出到 %s", chatID, key)
	return &model.ChatExport{URL: url, ObjectKey: key, ExpiresAt: now.Add(s.exportTTL)}, nil
}

// newMessageID 生成按时间递增的消息 ID。
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
