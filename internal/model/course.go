package model

import "time"

// DefaultGrade 是未评分作业的成绩占位值。
const DefaultGrade = "N/A"

// Course 是缓存在 userCourses/{uid} 中的单门课程快照。
type Course struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	Code          string         `json:"code"`
	TermID        int64          `json:"term"`
	StartAt       *time.Time     `json:"start_at"`
	EndAt         *time.Time     `json:"end_at"`
	TimeZone      string         `json:"time_zone"`
	Color         string         `json:"color,omitempty"`
	WorkflowState string         `json:"workflow_state,omitempty"`
	Assignments   []Assignment   `json:"assignments"`
	Modules       []Module       `json:"modules"`
	Announcements []Announcement `json:"announcements"`
}

// Assignment 是课程中的一项作业，Grade 总是有值。
type Assignment struct {
	ID                      int64      `json:"id"`
	CourseID                int64      `json:"course_id"`
	Name                    string     `json:"name"`
	Description             string     `json:"description"`
	DueAt                   *time.Time `json:"due_at"`
	LockAt                  *time.Time `json:"lock_at"`
	PointsPossible          float64    `json:"points_possible"`
	SubmissionTypes         []string   `json:"submission_types"`
	HTMLURL                 string     `json:"html_url"`
	Published               bool       `json:"published"`
	HasSubmittedSubmissions bool       `json:"has_submitted_submissions"`
	Grade                   string     `json:"grade"`
	Score                   *float64   `json:"score"`
	SubmittedAt             *time.Time `json:"submitted_at"`
	SubmissionState         string     `json:"submission_state,omitempty"`
}

// Submission 是当前用户在某项作业上的提交情况。
type Submission struct {
	Grade         string
	Score         *float64
	SubmittedAt   *time.Time
	WorkflowState string
}

// Module 是课程模块，Items 在刷新时一并拉取。
type Module struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Position    int          `json:"position"`
	UnlockAt    *time.Time   `json:"unlock_at"`
	CompletedAt *time.Time   `json:"completed_at"`
	State       string       `json:"state,omitempty"`
	ItemsCount  int          `json:"items_count"`
	Items       []ModuleItem `json:"items"`
}

// ModuleItem 是模块中的一个条目。
type ModuleItem struct {
	ID          int64  `json:"id"`
	ModuleID    int64  `json:"module_id"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	Position    int    `json:"position"`
	Indent      int    `json:"indent"`
	ContentID   int64  `json:"content_id,omitempty"`
	HTMLURL     string `json:"html_url,omitempty"`
	ExternalURL string `json:"external_url,omitempty"`
}

// Announcement 是课程公告。
type Announcement struct {
	ID       int64      `json:"id"`
	Title    string     `json:"title"`
	Message  string     `json:"message"`
	PostedAt *time.Time `json:"posted_at"`
	Author   string     `json:"author,omitempty"`
	HTMLURL  string     `json:"html_url,omitempty"`
}

// CourseSnapshot 对应 userCourses/{uid} 文档，每次刷新整体覆盖。
type CourseSnapshot struct {
	Courses     []Course  `json:"courses"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// AssignmentCount 返回快照中的作业总数。
func AssignmentCount(courses []Course) int {
	n := 0
	for _, c := range courses {
		n += len(c.Assignments)
	}
	return n
}
