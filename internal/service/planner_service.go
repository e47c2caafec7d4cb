package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"easy-canvas-go/internal/config"
	"easy-canvas-go/internal/model"
	"easy-canvas-go/pkg/llm"
	"easy-canvas-go/pkg/log"
)

// 计划提示词中各部分的截断长度
const (
	plannerDescriptionLength      = 200
	plannerAnnouncementLength     = 300
	plannerAnnouncementsPerCourse = 3
	plannerModulesPerCourse       = 5
	defaultPlannerUpcomingDays    = 30
)

// PlannerService 定义了 AI 学习计划的生成和缓存管理。
type PlannerService interface {
	Generate(ctx context.Context, uid string, force bool) (*model.PlanResponse, error)
	Metadata(ctx context.Context, uid string) (*model.PlanMetadata, error)
	ClearCache(ctx context.Context, uid string) error
}

type plannerService struct {
	courses   CourseService
	cache     *PlanCache
	loop      *ToolLoop
	openaiCfg config.OpenAIConfig
	cfg       config.PlannerConfig
	now       func() time.Time
}

// NewPlannerService 创建一个新的 PlannerService 实例。
func NewPlannerService(courses CourseService, cache *PlanCache, loop *ToolLoop, openaiCfg config.OpenAIConfig, cfg config.PlannerConfig) PlannerService {
	return &plannerService{
		courses:   courses,
		cache:     cache,
		loop:      loop,
		openaiCfg: openaiCfg,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Generate 返回用户的学习计划。课程数据未变化且缓存未过期时直接返回缓存，否则调用模型重新生成。
func (s *plannerService) Generate(ctx context.Context, uid string, force bool) (*model.PlanResponse, error) {
	courses, err := s.courses.GetCourses(ctx, uid, false)
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return nil, ErrCoursesNotFound
	}

	now := s.now().UTC()
	hash := CourseDataHash(courses)
	if !force {
		if rec := s.cache.Lookup(ctx, uid, hash, now); rec != nil {
			log.Infof("[PlannerService] 命中计划缓存, uid: %s", uid)
			return &model.PlanResponse{
				Plan:            rec.Plan,
				GeneratedAt:     rec.LastUpdated,
				CourseCount:     rec.CourseCount,
				AssignmentCount: rec.AssignmentCount,
				Cached:          true,
			}, nil
		}
	}

	log.Infof("[PlannerService] 开始生成学习计划, uid: %s, 课程数: %d, force: %v", uid, len(courses), force)
	prompt, err := s.buildPrompt(courses, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanGeneration, err)
	}

	store := false
	result, err := s.loop.Run(ctx, LoopRequest{
		UserID:          uid,
		Model:           s.openaiCfg.PlannerModel,
		ReasoningEffort: s.cfg.ReasoningEffort,
		Input: []llm.InputItem{
			llm.Message(model.RoleSystem, PlannerSystemPrompt),
			llm.Message(model.RoleUser, prompt),
		},
		Store:        &store,
		TextFormat:   planTextFormat(),
		DisableTools: true,
	})
	if err != nil {
		log.Errorf("[PlannerService] 模型调用失败, uid: %s, error: %v", uid, err)
		return nil, fmt.Errorf("%w: %v", ErrPlanGeneration, err)
	}

	plan, err := parsePlan(result.Text)
	if err != nil {
		log.Errorf("[PlannerService] 解析模型输出失败, uid: %s, error: %v", uid, err)
		return nil, fmt.Errorf("%w: %v", ErrPlanGeneration, err)
	}

	s.cache.Save(ctx, uid, *plan, hash, courses, now)
	return &model.PlanResponse{
		Plan:            *plan,
		GeneratedAt:     now,
		CourseCount:     len(courses),
		AssignmentCount: model.AssignmentCount(courses),
		Cached:          false,
	}, nil
}

func (s *plannerService) Metadata(ctx context.Context, uid string) (*model.PlanMetadata, error) {
	return s.cache.Metadata(ctx, uid)
}

func (s *plannerService) ClearCache(ctx context.Context, uid string) error {
	s.cache.Clear(ctx, uid)
	return nil
}

func (s *plannerService) buildPrompt(courses []model.Course, now time.Time) (string, error) {
	days := s.cfg.UpcomingDays
	if days <= 0 {
		days = defaultPlannerUpcomingDays
	}
	data := FormatCoursesForPlanner(courses, now, days)
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Today is %s.\n\n", now.Format("Monday, January 2, 2006")))
	b.WriteString("Based on the following Canvas course data, create a comprehensive study plan and todo list.\n\n")
	b.WriteString("COURSE DATA SUMMARY:\n")
	b.WriteString(fmt.Sprintf("- Total courses: %d\n", len(data.Courses)))
	b.WriteString(fmt.Sprintf("- Total assignments: %d\n", data.TotalAssignments))
	b.WriteString(fmt.Sprintf("- Upcoming assignments (next %d days): %d\n\n", days, len(data.Upcoming)))
	b.WriteString("DETAILED COURSE DATA:\n")
	b.Write(raw)
	return b.String(), nil
}

// PlannerData 是发送给模型的精简课程数据。
type PlannerData struct {
	Courses          []PlannerCourse   `json:"courses"`
	Upcoming         []PlannerUpcoming `json:"upcoming_assignments"`
	TotalAssignments int               `json:"total_assignments"`
}

type PlannerCourse struct {
	Name          string                `json:"name"`
	Code          string                `json:"code"`
	Assignments   []PlannerAssignment   `json:"assignments"`
	Announcements []PlannerAnnouncement `json:"recent_announcements"`
	Modules       []PlannerModule       `json:"modules"`
}

type PlannerAssignment struct {
	Name           string     `json:"name"`
	DueAt          *time.Time `json:"due_at"`
	PointsPossible float64    `json:"points_possible"`
	Description    string     `json:"description"`
	Submitted      bool       `json:"submitted"`
	Graded         bool       `json:"graded"`
}

type PlannerUpcoming struct {
	Course     string    `json:"course"`
	Assignment string    `json:"assignment"`
	DueDate    time.Time `json:"due_date"`
	Points     float64   `json:"points"`
}

type PlannerAnnouncement struct {
	Title    string     `json:"title"`
	PostedAt *time.Time `json:"posted_at"`
	Message  string     `json:"message"`
}

type PlannerModule struct {
	Name      string `json:"name"`
	Position  int    `json:"position"`
	Completed bool   `json:"completed"`
}

// FormatCoursesForPlanner 把课程快照压缩为提示词数据：
// 描述截断到 200 字符，每门课最多 3 条最近公告和 5 个模块，并列出未来 upcomingDays 天内到期的作业。
func FormatCoursesForPlanner(courses []model.Course, now time.Time, upcomingDays int) PlannerData {
	horizon := now.AddDate(0, 0, upcomingDays)
	data := PlannerData{Courses: make([]PlannerCourse, 0, len(courses)), Upcoming: []PlannerUpcoming{}}

	for _, c := range courses {
		pc := PlannerCourse{
			Name:          c.Name,
			Code:          c.Code,
			Assignments:   make([]PlannerAssignment, 0, len(c.Assignments)),
			Announcements: []PlannerAnnouncement{},
			Modules:       []PlannerModule{},
		}
		for _, a := range c.Assignments {
			pc.Assignments = append(pc.Assignments, PlannerAssignment{
				Name:           a.Name,
				DueAt:          a.DueAt,
				PointsPossible: a.PointsPossible,
				Description:    truncateRunes(a.Description, plannerDescriptionLength),
				Submitted:      a.SubmittedAt != nil || a.HasSubmittedSubmissions,
				Graded:         a.Grade != "" && a.Grade != model.DefaultGrade,
			})
			if a.DueAt != nil && a.DueAt.After(now) && !a.DueAt.After(horizon) {
				data.Upcoming = append(data.Upcoming, PlannerUpcoming{
					Course:     c.Name,
					Assignment: a.Name,
					DueDate:    *a.DueAt,
					Points:     a.PointsPossible,
				})
			}
		}
		data.TotalAssignments += len(c.Assignments)

		announcements := make([]model.Announcement, len(c.Announcements))
		copy(announcements, c.Announcements)
		sort.SliceStable(announcements, func(i, j int) bool {
			pi, pj := announcements[i].PostedAt, announcements[j].PostedAt
			if pi == nil || pj == nil {
				return pi != nil && pj == nil
			}
			return pi.After(*pj)
		})
		for i, a := range announcements {
			if i >= plannerAnnouncementsPerCourse {
				break
			}
			pc.Announcements = append(pc.Announcements, PlannerAnnouncement{
				Title:    a.Title,
				PostedAt: a.PostedAt,
				Message:  truncateRunes(a.Message, plannerAnnouncementLength),
			})
		}

		for i, m := range c.Modules {
			if i >= plannerModulesPerCourse {
				break
			}
			pc.Modules = append(pc.Modules, PlannerModule{Name: m.Name, Position: m.Position, Completed: m.CompletedAt != nil})
		}
		data.Courses = append(data.Courses, pc)
	}

	sort.SliceStable(data.Upcoming, func(i, j int) bool {
		return data.Upcoming[i].DueDate.Before(data.Upcoming[j].DueDate)
	})
	return data
}

// parsePlan 解析模型输出的计划 JSON，并补齐缺失的 ID 和统计。
func parsePlan(text string) (*model.Plan, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty model output")
	}

	var plan model.Plan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}

	if plan.Todos == nil {
		plan.Todos = []model.TodoItem{}
	}
	if plan.Deadlines == nil {
		plan.Deadlines = []model.DeadlineItem{}
	}
	if plan.StudyBlocks == nil {
		plan.StudyBlocks = []model.StudyBlock{}
	}
	if plan.Insights == nil {
		plan.Insights = []model.InsightCard{}
	}
	for i := range plan.Todos {
		if plan.Todos[i].ID == "" {
			plan.Todos[i].ID = fmt.Sprintf("todo-%d", i+1)
		}
	}
	for i := range plan.Deadlines {
		if plan.Deadlines[i].ID == "" {
			plan.Deadlines[i].ID = fmt.Sprintf("deadline-%d", i+1)
		}
	}
	for i := range plan.StudyBlocks {
		if plan.StudyBlocks[i].ID == "" {
			plan.StudyBlocks[i].ID = fmt.Sprintf("study-%d", i+1)
		}
		if plan.StudyBlocks[i].Topics == nil {
			plan.StudyBlocks[i].Topics = []string{}
		}
	}
	for i := range plan.Insights {
		if plan.Insights[i].ID == "" {
			plan.Insights[i].ID = fmt.Sprintf("insight-%d", i+1)
		}
	}

	if plan.Summary.TotalTasks == 0 {
		plan.Summary.TotalTasks = len(plan.Todos)
	}
	if plan.Summary.HighPriorityCount == 0 {
		for _, t := range plan.Todos {
			if t.Priority == "high" {
				plan.Summary.HighPriorityCount++
			}
		}
	}
	if plan.Summary.UpcomingDeadlines == 0 {
		plan.Summary.UpcomingDeadlines = len(plan.Deadlines)
	}
	return &plan, nil
}

func stringProp(extra ...string) map[string]interface{} {
	p := map[string]interface{}{"type": "string"}
	if len(extra) > 0 {
		p["enum"] = extra
	}
	return p
}

func arrayOf(item map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": item}
}

func strictObject(props map[string]interface{}) map[string]interface{} {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	sort.Strings(required)
	return objectSchema(props, required...)
}

// planTextFormat 是学习计划的严格 JSON Schema，所有字段都必填。
func planTextFormat() *llm.TextFormat {
	todo := strictObject(map[string]interface{}{
		"id":            stringProp(),
		"title":         stringProp(),
		"description":   stringProp(),
		"priority":      stringProp("high", "medium", "low"),
		"dueDate":       stringProp(),
		"estimatedTime": stringProp(),
		"course":        stringProp(),
		"completed":     map[string]interface{}{"type": "boolean"},
	})
	deadline := strictObject(map[string]interface{}{
		"id":          stringProp(),
		"title":       stringProp(),
		"course":      stringProp(),
		"dueDate":     stringProp(),
		"priority":    stringProp("urgent", "important", "normal"),
		"points":      map[string]interface{}{"type": []string{"number", "null"}},
		"description": stringProp(),
	})
	block := strictObject(map[string]interface{}{
		"id":         stringProp(),
		"title":      stringProp(),
		"course":     stringProp(),
		"duration":   stringProp(),
		"topics":     arrayOf(stringProp()),
		"difficulty": stringProp("easy", "medium", "hard"),
	})
	insight := strictObject(map[string]interface{}{
		"id":      stringProp(),
		"type":    stringProp("tip", "warning", "success", "info"),
		"title":   stringProp(),
		"message": stringProp(),
		"action":  stringProp(),
	})
	summary := strictObject(map[string]interface{}{
		"totalTasks":         map[string]interface{}{"type": "integer"},
		"highPriorityCount":  map[string]interface{}{"type": "integer"},
		"upcomingDeadlines":  map[string]interface{}{"type": "integer"},
		"estimatedStudyTime": stringProp(),
	})
	return &llm.TextFormat{
		Name: "study_plan",
		Schema: strictObject(map[string]interface{}{
			"todos":       arrayOf(todo),
			"deadlines":   arrayOf(deadline),
			"studyBlocks": arrayOf(block),
			"insights":    arrayOf(insight),
			"summary":     summary,
		}),
		Strict: true,
	}
}
