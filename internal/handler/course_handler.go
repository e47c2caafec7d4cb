package handler

import (
	"fmt"
	"strconv"

	"easy-canvas-go/internal/service"

	"github.com/gin-gonic/gin"
)

// CourseHandler 负责课程快照的查询接口。
type CourseHandler struct {
	courseService service.CourseService
}

// NewCourseHandler 创建一个新的 CourseHandler 实例。
func NewCourseHandler(courseService service.CourseService) *CourseHandler {
	return &CourseHandler{courseService: courseService}
}

// GetCourses 返回缓存的课程，force=true 或没有缓存时从 Canvas 刷新。
func (h *CourseHandler) GetCourses(c *gin.Context) {
	force := queryBool(c, "force")
	courses, err := h.courseService.GetCourses(c.Request.Context(), currentUserID(c), force)
	if err != nil {
		respondError(c, "GetCourses", err)
		return
	}
	respondOK(c, courses)
}

// LastUpdated 返回课程快照的更新时间，没有快照时为 null。
func (h *CourseHandler) LastUpdated(c *gin.Context) {
	ts, err := h.courseService.LastUpdated(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, "LastUpdated", err)
		return
	}
	respondOK(c, gin.H{"lastUpdated": ts})
}

func (h *CourseHandler) GetCourse(c *gin.Context) {
	courseID, err := pathInt(c, "courseId")
	if err != nil {
		respondError(c, "GetCourse", err)
		return
	}
	course, err := h.courseService.GetCourse(c.Request.Context(), currentUserID(c), courseID)
	if err != nil {
		respondError(c, "GetCourse", err)
		return
	}
	respondOK(c, course)
}

func (h *CourseHandler) GetAssignment(c *gin.Context) {
	courseID, err := pathInt(c, "courseId")
	if err != nil {
		respondError(c, "GetAssignment", err)
		return
	}
	assignmentID, err := pathInt(c, "assignmentId")
	if err != nil {
		respondError(c, "GetAssignment", err)
		return
	}
	a, err := h.courseService.GetAssignment(c.Request.Context(), currentUserID(c), courseID, assignmentID)
	if err != nil {
		respondError(c, "GetAssignment", err)
		return
	}
	respondOK(c, a)
}

func pathInt(c *gin.Context, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", service.ErrBadRequest, name)
	}
	return v, nil
}

// queryBool 解析布尔查询参数，无法解析时视为 false。
func queryBool(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.Query(name))
	return err == nil && v
}
