package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"easy-canvas-go/internal/model"
	"easy-canvas-go/internal/repository"
	"easy-canvas-go/pkg/llm"
	"easy-canvas-go/pkg/log"
)

// 工具参数缺省值
const (
	defaultUpcomingDays      = 7
	defaultAnnouncementLimit = 10
)

// ToolRegistry 定义了模型可调用的 Canvas 工具集合。
// Execute 总是返回 JSON 字符串，任何错误都以 {"error": ...} 的形式返回而不会向上抛出。
type ToolRegistry interface {
	Definitions() []llm.Tool
	Execute(ctx context.Context, name, arguments, userID string) string
}

type toolFunc func(ctx context.Context, userID string, args json.RawMessage) (interface{}, error)

type toolRegistry struct {
	courseRepo repository.CourseRepository
	userRepo   repository.UserRepository
	now        func() time.Time
	defs       []llm.Tool
	funcs      map[string]toolFunc
}

// NewToolRegistry 创建只读取课程快照和用户文档的工具集合。
func NewToolRegistry(courseRepo repository.CourseRepository, userRepo repository.UserRepository) ToolRegistry {
	r := &toolRegistry{
		courseRepo: courseRepo,
		userRepo:   userRepo,
		now:        time.Now,
		defs:       canvasToolDefinitions(),
	}
	r.funcs = map[string]toolFunc{
		"get_courses":            r.getCourses,
		"get_assignments":        r.getAssignments,
		"get_assignment":         r.getAssignment,
		"get_upcoming_due_dates": r.getUpcomingDueDates,
		"get_announcements":      r.getAnnouncements,
		"get_course_modules":     r.getCourseModules,
		"get_module_items":       r.getModuleItems,
		"get_user_info":          r.getUserInfo,
	}
	return r
}

func (r *toolRegistry) Definitions() []llm.Tool {
	return r.defs
}

func (r *toolRegistry) Execute(ctx context.Context, name, arguments, userID string) (out string) {
	fn, ok := r.funcs[name]
	if !ok {
		return errorJSON(fmt.Sprintf("%s not found", name))
	}

	defer func() {
		if p := recover(); p != nil {
			log.Errorf("[ToolRegistry] 工具 %s 执行 panic: %v", name, p)
			out = errorJSON(fmt.Sprintf("%s failed: %v", name, p))
		}
	}()

	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	result, err := fn(ctx, userID, json.RawMessage(arguments))
	if err != nil {
		log.Warnf("[ToolRegistry] 工具 %s 执行失败, userID: %s, error: %v", name, userID, err)
		return errorJSON(err.Error())
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return errorJSON(fmt.Sprintf("%s failed: %v", name, err))
	}
	return string(raw)
}

func errorJSON(msg string) string {
	raw, _ := json.Marshal(map[string]string{"error": msg})
	return string(raw)
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %v", err)
	}
	return nil
}

func (r *toolRegistry) loadCourses(ctx context.Context, userID string) ([]model.Course, error) {
	snap, err := r.courseRepo.GetSnapshot(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.New("no cached course data found, please refresh your courses")
		}
		return nil, err
	}
	return snap.Courses, nil
}

func findCourse(courses []model.Course, id int64) *model.Course {
	for i := range courses {
		if courses[i].ID == id {
			return &courses[i]
		}
	}
	return nil
}

type courseSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

func (r *toolRegistry) getCourses(ctx context.Context, userID string, _ json.RawMessage) (interface{}, error) {
	courses, err := r.loadCourses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Failed to retrieve courses: %v", err)
	}
	out := make([]courseSummary, 0, len(courses))
	for _, c := range courses {
		out = append(out, courseSummary{ID: c.ID, Name: c.Name, Code: c.Code})
	}
	return out, nil
}

type assignmentSummary struct {
	ID                      int64      `json:"id"`
	Name                    string     `json:"name"`
	DueAt                   *time.Time `json:"due_at"`
	PointsPossible          float64    `json:"points_possible"`
	CourseID                int64      `json:"course_id"`
	CourseName              string     `json:"course_name"`
	CourseCode              string     `json:"course_code"`
	Published               bool       `json:"published"`
	SubmissionTypes         []string   `json:"submission_types"`
	HTMLURL                 string     `json:"html_url"`
	HasSubmittedSubmissions bool       `json:"has_submitted_submissions"`
	Grade                   string     `json:"grade"`
}

type assignmentArgs struct {
	CourseID *int64 `json:"course_id"`
	DaysDue  *int   `json:"days_due"`
}

func (r *toolRegistry) getAssignments(ctx context.Context, userID string, raw json.RawMessage) (interface{}, error) {
	var args assignmentArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, fmt.Errorf("Failed to retrieve assignments: %v", err)
	}
	out, err := r.listAssignments(ctx, userID, args)
	if err != nil {
		return nil, fmt.Errorf("Failed to retrieve assignments: %v", err)
	}
	return out, nil
}

// listAssignments 列出作业摘要；设置 DaysDue 时只保留未来 DaysDue 天内到期的作业。
func (r *toolRegistry) listAssignments(ctx context.Context, userID string, args assignmentArgs) ([]assignmentSummary, error) {
	courses, err := r.loadCourses(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := r.now()

	out := make([]assignmentSummary, 0)
	for _, c := range courses {
		if args.CourseID != nil && c.ID != *args.CourseID {
			continue
		}
		for _, a := range c.Assignments {
			if args.DaysDue != nil {
				if a.DueAt == nil {
					continue
				}
				days := int(math.Floor(a.DueAt.Sub(now).Hours() / 24))
				if days < 0 || days > *args.DaysDue {
					continue
				}
			}
			out = append(out, assignmentSummary{
				ID:                      a.ID,
				Name:                    a.Name,
				DueAt:                   a.DueAt,
				PointsPossible:          a.PointsPossible,
				CourseID:                c.ID,
				CourseName:              c.Name,
				CourseCode:              c.Code,
				Published:               a.Published,
				SubmissionTypes:         a.SubmissionTypes,
				HTMLURL:                 a.HTMLURL,
				HasSubmittedSubmissions: a.HasSubmittedSubmissions,
				Grade:                   a.Grade,
			})
		}
	}

	// 按截止时间升序，没有截止时间的排在最后
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].DueAt, out[j].DueAt
		if di == nil || dj == nil {
			return di != nil && dj == nil
		}
		return di.Before(*dj)
	})
	return out, nil
}

func (r *toolRegistry) getUpcomingDueDates(ctx context.Context, userID string, raw json.RawMessage) (interface{}, error) {
	var args struct {
		Days *int `json:"days"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, fmt.Errorf("Failed to retrieve upcoming due dates: %v", err)
	}
	days := defaultUpcomingDays
	if args.Days != nil {
		days = *args.Days
	}
	out, err := r.listAssignments(ctx, userID, assignmentArgs{DaysDue: &days})
	if err != nil {
		return nil, fmt.Errorf("Failed to retrieve upcoming due dates: %v", err)
	}
	return out, nil
}

type assignmentDetail struct {
	model.Assignment
	CourseName string `json:"course_name"`
	CourseCode string `json:"course_code"`
}

func (r *toolRegistry) getAssignment(ctx context.Context, userID string, raw json.RawMessage) (interface{}, error) {
	var args struct {
		AssignmentID *int64 `json:"assignment_id"`
		CourseID     *int64 `json:"course_id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, fmt.Errorf("Failed to retrieve assignment: %v", err)
	}
	if args.AssignmentID == nil {
		return nil, errors.New("Failed to retrieve assignment: assignment_id is required")
	}
	courses, err := r.loadCourses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Failed to retrieve assignment: %v", err)
	}
	for _, c := range courses {
		if args.CourseID != nil && c.ID != *args.CourseID {
			continue
		}
		for _, a := range c.Assignments {
			if a.ID == *args.AssignmentID {
				return assignmentDetail{Assignment: a, CourseName: c.Name, CourseCode: c.Code}, nil
			}
		}
	}
	return nil, fmt.Errorf("Assignment with ID %d not found", *args.AssignmentID)
}

type announcementSummary struct {
	model.Announcement
	CourseID   int64  `json:"course_id"`
	CourseName string `json:"course_name"`
	CourseCode string `json:"course_code"`
}

func (r *toolRegistry) getAnnouncements(ctx context.Context, userID string, raw json.RawMessage) (interface{}, error) {
	var args struct {
		CourseID *int64 `json:"course_id"`
		Limit    *int   `json:"limit"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, fmt.Errorf("Failed to retrieve announcements: %v", err)
	}
	limit := defaultAnnouncementLimit
	if args.Limit != nil && *args.Limit > 0 {
		limit = *args.Limit
	}
	courses, err := r.loadCourses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Failed to retrieve announcements: %v", err)
	}

	out := make([]announcementSummary, 0)
	for _, c := range courses {
		if args.CourseID != nil && c.ID != *args.CourseID {
			continue
		}
		for _, a := range c.Announcements {
			out = append(out, announcementSummary{Announcement: a, CourseID: c.ID, CourseName: c.Name, CourseCode: c.Code})
		}
	}
	// 最新的公告在前
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].PostedAt, out[j].PostedAt
		if pi == nil || pj == nil {
			return pi != nil && pj == nil
		}
		return pi.After(*pj)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *toolRegistry) getCourseModules(ctx context.Context, userID string, raw json.RawMessage) (interface{}, error) {
	var args struct {
		CourseID *int64 `json:"course_id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, fmt.Errorf("Failed to retrieve course modules: %v", err)
	}
	if args.CourseID == nil {
		return nil, errors.New("Failed to retrieve course modules: course_id is required")
	}
	courses, err := r.loadCourses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Failed to retrieve course modules: %v", err)
	}
	c := findCourse(courses, *args.CourseID)
	if c == nil {
		return nil, fmt.Errorf("Course with ID %d not found", *args.CourseID)
	}
	if c.Modules == nil {
		return []model.Module{}, nil
	}
	return c.Modules, nil
}

func (r *toolRegistry) getModuleItems(ctx context.Context, userID string, raw json.RawMessage) (interface{}, error) {
	var args struct {
		CourseID *int64 `json:"course_id"`
		ModuleID *int64 `json:"module_id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, fmt.Errorf("Failed to retrieve module items: %v", err)
	}
	if args.CourseID == nil || args.ModuleID == nil {
		return nil, errors.New("Failed to retrieve module items: course_id and module_id are required")
	}
	courses, err := r.loadCourses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Failed to retrieve module items: %v", err)
	}
	c := findCourse(courses, *args.CourseID)
	if c == nil {
		return nil, fmt.Errorf("Course with ID %d not found", *args.CourseID)
	}
	for _, m := range c.Modules {
		if m.ID == *args.ModuleID {
			if m.Items == nil {
				return []model.ModuleItem{}, nil
			}
			return m.Items, nil
		}
	}
	return nil, fmt.Errorf("Module with ID %d not found in course %d", *args.ModuleID, *args.CourseID)
}

type userInfo struct {
	CanvasURL string    `json:"canvasUrl"`
	Name      string    `json:"name"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	AvatarURL string    `json:"avatar_url"`
	Email     string    `json:"email,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r *toolRegistry) getUserInfo(ctx context.Context, userID string, _ json.RawMessage) (interface{}, error) {
	u, err := r.userRepo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = ErrUserNotFound
		}
		return nil, fmt.Errorf("Failed to retrieve user information: %v", err)
	}
	return userInfo{
		CanvasURL: u.CanvasURL,
		Name:      u.Name,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		AvatarURL: u.AvatarURL,
		Email:     u.Email,
		UpdatedAt: u.UpdatedAt,
	}, nil
}
