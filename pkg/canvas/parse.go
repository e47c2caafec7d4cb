package canvas

import (
	"strings"

	"easy-canvas-go/internal/model"
)

const defaultTimeZone = "UTC"

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func parseUser(w wireUser) model.CanvasUser {
	u := model.CanvasUser{
		ID:        w.ID,
		Name:      str(w.Name),
		FirstName: str(w.FirstName),
		LastName:  str(w.LastName),
		AvatarURL: str(w.AvatarURL),
		Email:     str(w.Email),
	}
	if u.Email == "" {
		u.Email = str(w.PrimaryEmail)
	}
	if u.Name == "" {
		u.Name = str(w.ShortName)
	}
	// 旧版本 Canvas 不返回 first_name/last_name，从 "Last, First" 格式中拆分
	if u.FirstName == "" && u.LastName == "" {
		if last, first, ok := strings.Cut(str(w.SortableName), ","); ok {
			u.LastName = strings.TrimSpace(last)
			u.FirstName = strings.TrimSpace(first)
		}
	}
	return u
}

func parseCourse(w wireCourse) model.Course {
	c := model.Course{
		ID:            w.ID,
		Name:          str(w.Name),
		Code:          str(w.CourseCode),
		StartAt:       w.StartAt,
		EndAt:         w.EndAt,
		TimeZone:      str(w.TimeZone),
		Color:         str(w.CourseColor),
		WorkflowState: str(w.WorkflowState),
		Assignments:   []model.Assignment{},
		Modules:       []model.Module{},
		Announcements: []model.Announcement{},
	}
	if w.EnrollmentTermID != nil {
		c.TermID = *w.EnrollmentTermID
	}
	if c.TimeZone == "" {
		c.TimeZone = defaultTimeZone
	}
	return c
}

func parseSubmission(w *wireSubmission) model.Submission {
	s := model.Submission{Grade: model.DefaultGrade}
	if w == nil {
		return s
	}
	if g := str(w.Grade); g != "" {
		s.Grade = g
	}
	s.Score = w.Score
	s.SubmittedAt = w.SubmittedAt
	s.WorkflowState = str(w.WorkflowState)
	return s
}

func parseAssignment(w wireAssignment, courseID int64) model.Assignment {
	a := model.Assignment{
		ID:              w.ID,
		CourseID:        courseID,
		Name:            str(w.Name),
		Description:     str(w.Description),
		DueAt:           w.DueAt,
		LockAt:          w.LockAt,
		SubmissionTypes: w.SubmissionTypes,
		HTMLURL:         str(w.HTMLURL),
		Grade:           model.DefaultGrade,
	}
	if w.CourseID != nil {
		a.CourseID = *w.CourseID
	}
	if w.PointsPossible != nil {
		a.PointsPossible = *w.PointsPossible
	}
	if w.Published != nil {
		a.Published = *w.Published
	}
	if w.HasSubmittedSubmissions != nil {
		a.HasSubmittedSubmissions = *w.HasSubmittedSubmissions
	}
	if a.SubmissionTypes == nil {
		a.SubmissionTypes = []string{}
	}
	if w.Submission != nil {
		ApplySubmission(&a, parseSubmission(w.Submission))
	}
	return a
}

// ApplySubmission 把提交信息写入作业，空成绩保持 DefaultGrade。
func ApplySubmission(a *model.Assignment, s model.Submission) {
	if s.Grade != "" {
		a.Grade = s.Grade
	}
	if a.Grade == "" {
		a.Grade = model.DefaultGrade
	}
	a.Score = s.Score
	a.SubmittedAt = s.SubmittedAt
	a.SubmissionState = s.WorkflowState
}

func parseModuleItem(w wireModuleItem, moduleID int64) model.ModuleItem {
	it := model.ModuleItem{
		ID:          w.ID,
		ModuleID:    moduleID,
		Title:       str(w.Title),
		Type:        str(w.Type),
		HTMLURL:     str(w.HTMLURL),
		ExternalURL: str(w.ExternalURL),
	}
	if w.ModuleID != nil {
		it.ModuleID = *w.ModuleID
	}
	if w.Position != nil {
		it.Position = *w.Position
	}
	if w.Indent != nil {
		it.Indent = *w.Indent
	}
	if w.ContentID != nil {
		it.ContentID = *w.ContentID
	}
	return it
}

func parseModule(w wireModule) model.Module {
	m := model.Module{
		ID:          w.ID,
		Name:        str(w.Name),
		UnlockAt:    w.UnlockAt,
		CompletedAt: w.CompletedAt,
		State:       str(w.State),
		Items:       make([]model.ModuleItem, 0, len(w.Items)),
	}
	if w.Position != nil {
		m.Position = *w.Position
	}
	for _, it := range w.Items {
		m.Items = append(m.Items, parseModuleItem(it, w.ID))
	}
	m.ItemsCount = len(m.Items)
	if w.ItemsCount != nil {
		m.ItemsCount = *w.ItemsCount
	}
	return m
}

func parseAnnouncement(w wireAnnouncement) model.Announcement {
	a := model.Announcement{
		ID:       w.ID,
		Title:    str(w.Title),
		Message:  str(w.Message),
		PostedAt: w.PostedAt,
		HTMLURL:  str(w.HTMLURL),
	}
	if w.Author != nil {
		a.Author = str(w.Author.DisplayName)
	}
	return a
}
