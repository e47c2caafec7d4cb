package handler

import (
	"easy-canvas-go/internal/service"

	"github.com/gin-gonic/gin"
)

// AIHandler 提供作业描述摘要接口。
type AIHandler struct {
	summaryService service.SummaryService
}

// NewAIHandler 创建一个新的 AIHandler 实例。
func NewAIHandler(summaryService service.SummaryService) *AIHandler {
	return &AIHandler{summaryService: summaryService}
}

type summarizeRequest struct {
	Text string `json:"text"`
}

func (h *AIHandler) Summarize(c *gin.Context) {
	var req summarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "Summarize", service.ErrBadRequest)
		return
	}
	summary, err := h.summaryService.Summarize(c.Request.Context(), req.Text)
	if err != nil {
		respondError(c, "Summarize", err)
		return
	}
	respondOK(c, gin.H{"summary": summary})
}
