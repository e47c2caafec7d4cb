package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"easy-canvas-go/internal/model"
	"easy-canvas-go/internal/service"
	"easy-canvas-go/pkg/log"
	"easy-canvas-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsReadLimit    = 64 * 1024
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源，身份由 token 校验
	},
}

// ChatHandler 负责聊天助手的 HTTP 与 WebSocket 接口。
type ChatHandler struct {
	chatService service.ChatService
	verifier    token.Verifier
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, verifier token.Verifier) *ChatHandler {
	return &ChatHandler{chatService: chatService, verifier: verifier}
}

// renameRequest 是重命名对话的请求体。
type renameRequest struct {
	Title string `json:"title"`
}

// SendMessage 处理一次聊天请求。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("SendMessage: Invalid request payload, error: %v", err)
		respondError(c, "SendMessage", service.ErrBadRequest)
		return
	}
	reply, err := h.chatService.SendMessage(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		respondError(c, "SendMessage", err)
		return
	}
	respondOK(c, reply)
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	chats, err := h.chatService.ListChats(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, "ListChats", err)
		return
	}
	respondOK(c, chats)
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	detail, err := h.chatService.GetChat(c.Request.Context(), currentUserID(c), c.Param("chatId"))
	if err != nil {
		respondError(c, "GetChat", err)
		return
	}
	respondOK(c, detail)
}

func (h *ChatHandler) RenameChat(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "RenameChat", service.ErrBadRequest)
		return
	}
	chat, err := h.chatService.RenameChat(c.Request.Context(), currentUserID(c), c.Param("chatId"), req.Title)
	if err != nil {
		respondError(c, "RenameChat", err)
		return
	}
	respondOK(c, chat)
}

func (h *ChatHandler) DeleteChat(c *gin.Context) {
	if err := h.chatService.DeleteChat(c.Request.Context(), currentUserID(c), c.Param("chatId")); err != nil {
		respondError(c, "DeleteChat", err)
		return
	}
	respondOK(c, nil)
}

// ExportChat 把对话导出到对象存储并返回下载链接。
func (h *ChatHandler) ExportChat(c *gin.Context) {
	export, err := h.chatService.ExportChat(c.Request.Context(), currentUserID(c), c.Param("chatId"))
	if err != nil {
		respondError(c, "ExportChat", err)
		return
	}
	respondOK(c, export)
}

// wsError 是 WebSocket 上返回的错误帧。
type wsError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// Stream 处理 WebSocket 聊天连接。浏览器无法设置请求头，token 通过查询参数传递。
// 每个文本帧都是一次聊天请求，回复一帧聊天结果。
func (h *ChatHandler) Stream(c *gin.Context) {
	uid, err := h.verifier.Verify(c.Request.Context(), c.Query("token"))
	if err != nil {
		respondStatus(c, http.StatusUnauthorized, "无效的 token")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	log.Infof("[ChatHandler] WebSocket 连接已建立，用户: %s", uid)
	ctx := c.Request.Context()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		var req model.ChatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			if werr := h.writeFrame(conn, wsError{Error: "invalid chat request", Code: http.StatusBadRequest}); werr != nil {
				return
			}
			continue
		}

		reply, err := h.chatService.SendMessage(ctx, uid, req)
		var frame interface{} = reply
		if err != nil {
			log.Warnf("[ChatHandler] WebSocket 聊天失败, 用户: %s, error: %v", uid, err)
			code, msg := publicError(err)
			frame = wsError{Error: msg, Code: code}
		}
		if err := h.writeFrame(conn, frame); err != nil {
			log.Warnf("向 WebSocket 写入消息失败: %v", err)
			return
		}
	}
}

func (h *ChatHandler) writeFrame(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}
