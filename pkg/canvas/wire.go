package canvas

import "time"

// 以下是 Canvas REST API 的原始 JSON 结构，可缺省字段一律用指针表示，
// 只在 parse.go 中转换为 model 类型。

type wireUser struct {
	ID           int64   `json:"id"`
	Name         *string `json:"name"`
	ShortName    *string `json:"short_name"`
	SortableName *string `json:"sortable_name"`
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	AvatarURL    *string `json:"avatar_url"`
	Email        *string `json:"email"`
	PrimaryEmail *string `json:"primary_email"`
}

type wireCourse struct {
	ID               int64      `json:"id"`
	Name             *string    `json:"name"`
	CourseCode       *string    `json:"course_code"`
	WorkflowState    *string    `json:"workflow_state"`
	EnrollmentTermID *int64     `json:"enrollment_term_id"`
	StartAt          *time.Time `json:"start_at"`
	EndAt            *time.Time `json:"end_at"`
	TimeZone         *string    `json:"time_zone"`
	CourseColor      *string    `json:"course_color"`
}

type wireSubmission struct {
	Grade         *string    `json:"grade"`
	Score         *float64   `json:"score"`
	SubmittedAt   *time.Time `json:"submitted_at"`
	WorkflowState *string    `json:"workflow_state"`
}

type wireAssignment struct {
	ID                      int64           `json:"id"`
	CourseID                *int64          `json:"course_id"`
	Name                    *string         `json:"name"`
	Description             *string         `json:"description"`
	DueAt                   *time.Time      `json:"due_at"`
	LockAt                  *time.Time      `json:"lock_at"`
	PointsPossible          *float64        `json:"points_possible"`
	SubmissionTypes         []string        `json:"submission_types"`
	HTMLURL                 *string         `json:"html_url"`
	Published               *bool           `json:"published"`
	HasSubmittedSubmissions *bool           `json:"has_submitted_submissions"`
	Submission              *wireSubmission `json:"submission"`
}

type wireModuleItem struct {
	ID          int64   `json:"id"`
	ModuleID    *int64  `json:"module_id"`
	Title       *string `json:"title"`
	Type        *string `json:"type"`
	Position    *int    `json:"position"`
	Indent      *int    `json:"indent"`
	ContentID   *int64  `json:"content_id"`
	HTMLURL     *string `json:"html_url"`
	ExternalURL *string `json:"external_url"`
}

type wireModule struct {
	ID          int64            `json:"id"`
	Name        *string          `json:"name"`
	Position    *int             `json:"position"`
	UnlockAt    *time.Time       `json:"unlock_at"`
	CompletedAt *time.Time       `json:"completed_at"`
	State       *string          `json:"state"`
	ItemsCount  *int             `json:"items_count"`
	Items       []wireModuleItem `json:"items"`
}

type wireAuthor struct {
	DisplayName *string `json:"display_name"`
}

type wireAnnouncement struct {
	ID       int64       `json:"id"`
	Title    *string     `json:"title"`
	Message  *string     `json:"message"`
	PostedAt *time.Time  `json:"posted_at"`
	Author   *wireAuthor `json:"author"`
	HTMLURL  *string     `json:"html_url"`
}
