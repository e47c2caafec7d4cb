package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"easy-canvas-go/internal/model"
)

func newTestRegistry(t *testing.T) (*toolRegistry, *testRepos) {
	t.Helper()
	repos := newTestRepos()
	ctx := context.Background()
	if err := repos.courses.SaveSnapshot(ctx, "u1", sampleCourses(), testNow); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := repos.users.Save(ctx, "u1", &model.User{
		CanvasURL: "https://canvas.example.edu", APIToken: "secret-ciphertext", CanvasUserID: 42,
		Name: "Ada Lovelace", FirstName: "Ada", LastName: "Lovelace",
	}); err != nil {
		t.Fatalf("Save user: %v", err)
	}
	r := NewToolRegistry(repos.courses, repos.users).(*toolRegistry)
	r.now = func() time.Time { return testNow }
	return r, repos
}

func decodeToolOutput(t *testing.T, out string, v interface{}) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("tool output is not valid JSON: %v\n%s", err, out)
	}
}

func toolError(t *testing.T, out string) string {
	t.Helper()
	var e struct {
		Error string `json:"error"`
	}
	decodeToolOutput(t, out, &e)
	return e.Error
}

func TestToolDefinitionsAreStrict(t *testing.T) {
	r, _ := newTestRegistry(t)
	defs := r.Definitions()
	if len(defs) != 8 {
		t.Fatalf("expected 8 tools, got %d", len(defs))
	}
	for _, d := range defs {
		if d.Type != "function" || !d.Strict {
			t.Errorf("%s must be a strict function tool", d.Name)
		}
		if d.Parameters["additionalProperties"] != false {
			t.Errorf("%s must forbid additional properties", d.Name)
		}
		if _, ok := r.funcs[d.Name]; !ok {
			t.Errorf("%s has no implementation", d.Name)
		}
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r, _ := newTestRegistry(t)
	out := r.Execute(context.Background(), "delete_everything", "{}", "u1")
	if got := toolError(t, out); got != "delete_everything not found" {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestExecuteRecoversFromPanics(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.funcs["get_courses"] = func(context.Context, string, json.RawMessage) (interface{}, error) {
		panic("boom")
	}
	out := r.Execute(context.Background(), "get_courses", "", "u1")
	if got := toolError(t, out); !strings.Contains(got, "boom") {
		t.Fatalf("panic should be reported as tool error, got %q", got)
	}
}

func TestGetCourses(t *testing.T) {
	r, _ := newTestRegistry(t)
	var courses []courseSummary
	decodeToolOutput(t, r.Execute(context.Background(), "get_courses", "", "u1"), &courses)
	if len(courses) != 2 || courses[0].Code != "CS 4650" {
		t.Fatalf("unexpected courses: %+v", courses)
	}

	out := r.Execute(context.Background(), "get_courses", "{}", "nobody")
	if got := toolError(t, out); !strings.HasPrefix(got, "Failed to retrieve courses") {
		t.Fatalf("missing snapshot should be a tool error, got %q", got)
	}
}

func TestGetAssignmentsFilterAndOrder(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	var all []assignmentSummary
	decodeToolOutput(t, r.Execute(ctx, "get_assignments", `{"course_id":null,"days_due":null}`, "u1"), &all)
	if len(all) != 5 {
		t.Fatalf("expected 5 assignments, got %d", len(all))
	}
	if all[0].Name != "Old Quiz" || all[len(all)-1].Name != "Reading Log" {
		t.Fatalf("assignments should be sorted by due date with undated last: %s ... %s", all[0].Name, all[len(all)-1].Name)
	}
	if all[0].CourseName != "World History" {
		t.Fatalf("summary should carry the course name, got %+v", all[0])
	}

	var week []assignmentSummary
	decodeToolOutput(t, r.Execute(ctx, "get_assignments", `{"course_id":null,"days_due":7}`, "u1"), &week)
	names := []string{}
	for _, a := range week {
		names = append(names, a.Name)
	}
	if strings.Join(names, ",") != "Essay,Tokenizer" {
		t.Fatalf("days_due=7 should keep Essay and Tokenizer, got %v", names)
	}

	var nlp []assignmentSummary
	decodeToolOutput(t, r.Execute(ctx, "get_assignments", `{"course_id":101,"days_due":null}`, "u1"), &nlp)
	if len(nlp) != 3 {
		t.Fatalf("course filter should keep 3 assignments, got %d", len(nlp))
	}

	out := r.Execute(ctx, "get_assignments", `{"course_id":"abc"}`, "u1")
	if got := toolError(t, out); !strings.Contains(got, "invalid arguments") {
		t.Fatalf("bad arguments should be a tool error, got %q", got)
	}
}

func TestGetUpcomingDueDatesDefaultsToSevenDays(t *testing.T) {
	r, _ := newTestRegistry(t)
	var upcoming []assignmentSummary
	decodeToolOutput(t, r.Execute(context.Background(), "get_upcoming_due_dates", `{}`, "u1"), &upcoming)
	if len(upcoming) != 2 {
		t.Fatalf("expected 2 assignments due within a week, got %d", len(upcoming))
	}
}

func TestGetAssignment(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	var detail assignmentDetail
	decodeToolOutput(t, r.Execute(ctx, "get_assignment", `{"assignment_id":2,"course_id":null}`, "u1"), &detail)
	if detail.Name != "Parser" || detail.CourseCode != "CS 4650" || detail.Grade != "A" {
		t.Fatalf("unexpected assignment detail: %+v", detail)
	}

	out := r.Execute(ctx, "get_assignment", `{"assignment_id":2,"course_id":202}`, "u1")
	if got := toolError(t, out); got != "Assignment with ID 2 not found" {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestGetAnnouncementsSortedAndLimited(t *testing.T) {
	r, _ := newTestRegistry(t)
	var anns []announcementSummary
	decodeToolOutput(t, r.Execute(context.Background(), "get_announcements", `{"course_id":null,"limit":2}`, "u1"), &anns)
	if len(anns) != 2 {
		t.Fatalf("limit should cap announcements, got %d", len(anns))
	}
	if anns[0].Title != "Exam moved" || anns[1].Title != "Office hours" {
		t.Fatalf("announcements should be newest first, got %s, %s", anns[0].Title, anns[1].Title)
	}
	if anns[1].CourseName != "World History" {
		t.Fatalf("announcement should carry course name, got %+v", anns[1])
	}
}

func TestModulesAndItems(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	var modules []model.Module
	decodeToolOutput(t, r.Execute(ctx, "get_course_modules", `{"course_id":101}`, "u1"), &modules)
	if len(modules) != 1 || modules[0].Name != "Week 1" {
		t.Fatalf("unexpected modules: %+v", modules)
	}

	var empty []model.Module
	decodeToolOutput(t, r.Execute(ctx, "get_course_modules", `{"course_id":202}`, "u1"), &empty)
	if empty == nil || len(empty) != 0 {
		t.Fatalf("course without modules should return an empty list")
	}

	if got := toolError(t, r.Execute(ctx, "get_course_modules", `{"course_id":999}`, "u1")); got != "Course with ID 999 not found" {
		t.Fatalf("unexpected error %q", got)
	}

	var items []model.ModuleItem
	decodeToolOutput(t, r.Execute(ctx, "get_module_items", `{"course_id":101,"module_id":11}`, "u1"), &items)
	if len(items) != 1 || items[0].Title != "Intro" {
		t.Fatalf("unexpected module items: %+v", items)
	}
	if got := toolError(t, r.Execute(ctx, "get_module_items", `{"course_id":101,"module_id":12}`, "u1")); !strings.Contains(got, "Module with ID 12 not found") {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestGetUserInfoStripsCredentials(t *testing.T) {
	r, _ := newTestRegistry(t)
	out := r.Execute(context.Background(), "get_user_info", "{}", "u1")
	if strings.Contains(out, "apiToken") || strings.Contains(out, "canvas_user_id") || strings.Contains(out, "secret-ciphertext") {
		t.Fatalf("user info must not expose credentials: %s", out)
	}
	var info userInfo
	decodeToolOutput(t, out, &info)
	if info.FirstName != "Ada" {
		t.Fatalf("unexpected user info: %+v", info)
	}
}
