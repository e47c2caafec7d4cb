package handler

import (
	"easy-canvas-go/internal/service"
	"easy-canvas-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// PlannerHandler 负责 AI 学习计划相关的接口。
type PlannerHandler struct {
	plannerService service.PlannerService
}

// NewPlannerHandler 创建一个新的 PlannerHandler 实例。
func NewPlannerHandler(plannerService service.PlannerService) *PlannerHandler {
	return &PlannerHandler{plannerService: plannerService}
}

// Generate 生成学习计划。课程数据未变且缓存未过期时直接返回缓存。
func (h *PlannerHandler) Generate(c *gin.Context) {
	uid := currentUserID(c)
	force := queryBool(c, "force_regenerate")
	plan, err := h.plannerService.Generate(c.Request.Context(), uid, force)
	if err != nil {
		respondError(c, "GeneratePlan", err)
		return
	}
	log.Infof("[PlannerHandler] 用户 %s 的学习计划已返回, cached=%t", uid, plan.Cached)
	respondOK(c, plan)
}

func (h *PlannerHandler) Metadata(c *gin.Context) {
	meta, err := h.plannerService.Metadata(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, "PlanMetadata", err)
		return
	}
	respondOK(c, meta)
}

func (h *PlannerHandler) ClearCache(c *gin.Context) {
	if err := h.plannerService.ClearCache(c.Request.Context(), currentUserID(c)); err != nil {
		respondError(c, "ClearPlanCache", err)
		return
	}
	respondOK(c, nil)
}
