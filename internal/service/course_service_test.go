package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"easy-canvas-go/internal/config"
	"easy-canvas-go/internal/model"
	"easy-canvas-go/pkg/canvas"
)

func newCourseFixture(t *testing.T, fc *fakeCanvas) (*courseService, *testRepos, *fakeDialer) {
	t.Helper()
	repos := newTestRepos()
	cipher := newTestCipher(t)
	token, err := cipher.Encrypt("canvas-token")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if err := repos.users.Save(context.Background(), "u1", &model.User{CanvasURL: "https://canvas.example.edu", APIToken: token}); err != nil {
		t.Fatalf("Save user: %v", err)
	}

	dialer := &fakeDialer{client: fc}
	svc := NewCourseService(repos.users, repos.courses, dialer, cipher, config.CanvasConfig{
		CurrentTermID:    7109,
		RequestDelay:     200 * time.Millisecond,
		AnnouncementDays: 30,
	}).(*courseService)
	svc.now = func() time.Time { return testNow }
	svc.sleep = func(context.Context, time.Duration) error { return nil }
	return svc, repos, dialer
}

func canvasFixture() *fakeCanvas {
	return &fakeCanvas{
		courses: []model.Course{
			{ID: 1, Name: "Algorithms", TermID: 7109, WorkflowState: "available"},
			{ID: 2, Name: "Old Course", TermID: 7000, WorkflowState: "available"},
			{ID: 3, Name: "Unpublished", TermID: 7109, WorkflowState: "unpublished"},
			{ID: 4, Name: "Databases", TermID: 7109, WorkflowState: "available"},
		},
		assignments: map[int64][]model.Assignment{
			1: {
				{ID: 10, CourseID: 1, Name: "HW1", Grade: model.DefaultGrade, SubmissionState: "graded"},
				{ID: 11, CourseID: 1, Name: "HW2", Grade: model.DefaultGrade},
			},
			4: {{ID: 40, CourseID: 4, Name: "Schema", Grade: model.DefaultGrade, SubmissionState: "unsubmitted"}},
		},
		submissions: map[int64]*model.Submission{
			11: {Grade: "95", WorkflowState: "graded"},
		},
		modules: map[int64][]model.Module{
			1: {{ID: 100, Name: "Intro", Items: []model.ModuleItem{{ID: 1000, Title: "Syllabus"}}}},
		},
		announcements: map[int64][]model.Announcement{
			4: {{ID: 400, Title: "Welcome"}},
		},
	}
}

func TestRefreshCoursesFiltersAndSnapshots(t *testing.T) {
	svc, repos, dialer := newCourseFixture(t, canvasFixture())
	ctx := context.Background()

	courses, err := svc.RefreshCourses(ctx, "u1")
	if err != nil {
		t.Fatalf("RefreshCourses: %v", err)
	}
	if dialer.lastToken != "canvas-token" {
		t.Fatalf("dialer should receive the decrypted token, got %q", dialer.lastToken)
	}
	if len(courses) != 2 || courses[0].ID != 1 || courses[1].ID != 4 {
		t.Fatalf("expected available current-term courses 1 and 4, got %+v", courses)
	}
	if courses[0].Assignments[1].Grade != "95" {
		t.Fatalf("missing submission should be filled in, got %+v", courses[0].Assignments[1])
	}
	if len(courses[0].Modules) != 1 || len(courses[0].Modules[0].Items) != 1 {
		t.Fatalf("modules with items expected, got %+v", courses[0].Modules)
	}
	if courses[1].Modules == nil || len(courses[1].Announcements) != 1 {
		t.Fatalf("lists should never be nil: %+v", courses[1])
	}

	snap, err := repos.courses.GetSnapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if len(snap.Courses) != 2 || !snap.LastUpdated.Equal(testNow) {
		t.Fatalf("unexpected snapshot: %d courses at %v", len(snap.Courses), snap.LastUpdated)
	}
}

func TestRefreshCoursesWithoutTermFilter(t *testing.T) {
	svc, _, _ := newCourseFixture(t, canvasFixture())
	svc.cfg.CurrentTermID = 0
	courses, err := svc.RefreshCourses(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RefreshCourses: %v", err)
	}
	if len(courses) != 3 {
		t.Fatalf("term id 0 should keep every available course, got %d", len(courses))
	}
}

func TestRefreshCoursesSkipsFailingCourse(t *testing.T) {
	fc := canvasFixture()
	fc.assignErr = map[int64]error{1: &canvas.APIError{StatusCode: 500}}
	fc.modulesErr = &canvas.APIError{StatusCode: 403}
	svc, _, _ := newCourseFixture(t, fc)

	courses, err := svc.RefreshCourses(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RefreshCourses: %v", err)
	}
	if len(courses) != 1 || courses[0].ID != 4 {
		t.Fatalf("course with failing assignments should be skipped, got %+v", courses)
	}
	if len(courses[0].Modules) != 0 {
		t.Fatalf("module failures should leave an empty list")
	}
}

func TestRefreshCoursesUnauthorized(t *testing.T) {
	fc := canvasFixture()
	fc.coursesErr = &canvas.APIError{StatusCode: 401}
	svc, _, _ := newCourseFixture(t, fc)
	if _, err := svc.RefreshCourses(context.Background(), "u1"); !errors.Is(err, ErrInvalidCanvasCredentials) {
		t.Fatalf("got %v, want ErrInvalidCanvasCredentials", err)
	}

	fc = canvasFixture()
	fc.assignErr = map[int64]error{4: &canvas.APIError{StatusCode: 401}}
	svc, _, _ = newCourseFixture(t, fc)
	if _, err := svc.RefreshCourses(context.Background(), "u1"); !errors.Is(err, ErrInvalidCanvasCredentials) {
		t.Fatalf("401 inside a course: got %v, want ErrInvalidCanvasCredentials", err)
	}
}

func TestRefreshCoursesMissingUser(t *testing.T) {
	svc, _, _ := newCourseFixture(t, canvasFixture())
	if _, err := svc.RefreshCourses(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("got %v, want ErrUserNotFound", err)
	}

	svc, repos, _ := newCourseFixture(t, canvasFixture())
	if err := repos.users.Save(context.Background(), "u2", &model.User{CanvasURL: "https://canvas.example.edu"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := svc.RefreshCourses(context.Background(), "u2"); !errors.Is(err, ErrCredentialsMissing) {
		t.Fatalf("got %v, want ErrCredentialsMissing", err)
	}
}

func TestGetCoursesUsesSnapshot(t *testing.T) {
	fc := canvasFixture()
	svc, repos, _ := newCourseFixture(t, fc)
	ctx := context.Background()

	if err := repos.courses.SaveSnapshot(ctx, "u1", sampleCourses(), testNow); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	cached, err := svc.GetCourses(ctx, "u1", false)
	if err != nil || len(cached) != 2 || cached[0].ID != 101 {
		t.Fatalf("expected cached snapshot, got %d courses, %v", len(cached), err)
	}

	fresh, err := svc.GetCourses(ctx, "u1", true)
	if err != nil || len(fresh) != 2 || fresh[0].ID != 1 {
		t.Fatalf("force should refresh from Canvas, got %+v, %v", fresh, err)
	}
}

func TestCourseLookups(t *testing.T) {
	svc, repos, _ := newCourseFixture(t, canvasFixture())
	ctx := context.Background()

	if _, err := svc.GetCachedCourses(ctx, "u1"); !errors.Is(err, ErrCoursesNotFound) {
		t.Fatalf("got %v, want ErrCoursesNotFound", err)
	}
	if err := repos.courses.SaveSnapshot(ctx, "u1", sampleCourses(), testNow); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	c, err := svc.GetCourse(ctx, "u1", 202)
	if err != nil || c.Name != "World History" {
		t.Fatalf("GetCourse: %+v, %v", c, err)
	}
	if _, err := svc.GetCourse(ctx, "u1", 9); !errors.Is(err, ErrCourseNotFound) {
		t.Fatalf("got %v, want ErrCourseNotFound", err)
	}
	a, err := svc.GetAssignment(ctx, "u1", 101, 2)
	if err != nil || a.Name != "Parser" {
		t.Fatalf("GetAssignment: %+v, %v", a, err)
	}
	if _, err := svc.GetAssignment(ctx, "u1", 101, 4); !errors.Is(err, ErrAssignmentNotFound) {
		t.Fatalf("got %v, want ErrAssignmentNotFound", err)
	}

	last, err := svc.LastUpdated(ctx, "u1")
	if err != nil || !last.Equal(testNow) {
		t.Fatalf("LastUpdated: %v, %v", last, err)
	}
}
