package model

import "time"

// TodoItem 是学习计划中的待办事项。Priority 取值 high | medium | low。
type TodoItem struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Priority      string `json:"priority"`
	DueDate       string `json:"dueDate,omitempty"`
	EstimatedTime string `json:"estimatedTime,omitempty"`
	Course        string `json:"course,omitempty"`
	Completed     bool   `json:"completed"`
}

// DeadlineItem 是截止日期提醒。Priority 取值 urgent | important | normal。
type DeadlineItem struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Course      string   `json:"course"`
	DueDate     string   `json:"dueDate"`
	Priority    string   `json:"priority"`
	Points      *float64 `json:"points,omitempty"`
	Description string   `json:"description,omitempty"`
}

// StudyBlock 是建议的学习时间块。Difficulty 取值 easy | medium | hard。
type StudyBlock struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Course     string   `json:"course"`
	Duration   string   `json:"duration"`
	Topics     []string `json:"topics"`
	Difficulty string   `json:"difficulty"`
}

// InsightCard 是学习建议卡片。Type 取值 tip | warning | success | info。
type InsightCard struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// PlanSummary 是计划的统计摘要。
type PlanSummary struct {
	TotalTasks         int    `json:"totalTasks"`
	HighPriorityCount  int    `json:"highPriorityCount"`
	UpcomingDeadlines  int    `json:"upcomingDeadlines"`
	EstimatedStudyTime string `json:"estimatedStudyTime"`
}

// Plan 是模型生成的结构化学习计划。
type Plan struct {
	Todos       []TodoItem     `json:"todos"`
	Deadlines   []DeadlineItem `json:"deadlines"`
	StudyBlocks []StudyBlock   `json:"studyBlocks"`
	Insights    []InsightCard  `json:"insights"`
	Summary     PlanSummary    `json:"summary"`
}

// PlanRecord 对应 aiPlans/{uid} 文档。
type PlanRecord struct {
	Plan            Plan      `json:"plan"`
	CourseDataHash  string    `json:"courseDataHash"`
	LastUpdated     time.Time `json:"lastUpdated"`
	CourseCount     int       `json:"courseCount"`
	AssignmentCount int       `json:"assignmentCount"`
}

// PlanResponse 是生成接口返回给前端的结构。
type PlanResponse struct {
	Plan
	GeneratedAt     time.Time `json:"generated_at"`
	CourseCount     int       `json:"course_count"`
	AssignmentCount int       `json:"assignment_count"`
	Cached          bool      `json:"cached"`
}

// PlanMetadata 是不含计划正文的缓存元数据。
type PlanMetadata struct {
	LastUpdated      time.Time `json:"lastUpdated"`
	CourseDataHash   string    `json:"courseDataHash"`
	CourseCount      int       `json:"courseCount"`
	AssignmentCount  int       `json:"assignmentCount"`
	TodosCount       int       `json:"todosCount"`
	DeadlinesCount   int       `json:"deadlinesCount"`
	StudyBlocksCount int       `json:"studyBlocksCount"`
	InsightsCount    int       `json:"insightsCount"`
}
