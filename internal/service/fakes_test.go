package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"easy-canvas-go/internal/model"
	"easy-canvas-go/internal/repository"
	"easy-canvas-go/pkg/canvas"
	"easy-canvas-go/pkg/docstore"
	"easy-canvas-go/pkg/llm"
	"easy-canvas-go/pkg/secret"
	"easy-canvas-go/pkg/tasks"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// scriptedLLM 依次返回预设的回复，并记录每次请求。
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*llm.Response
	errs      []error
	requests  []llm.ResponseRequest
	repeat    *llm.Response
}

func (f *scriptedLLM) CreateResponse(_ context.Context, req llm.ResponseRequest) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	input := make([]llm.InputItem, len(req.Input))
	copy(input, req.Input)
	req.Input = input
	f.requests = append(f.requests, req)

	i := len(f.requests) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	if f.repeat != nil {
		return f.repeat, nil
	}
	return nil, errors.New("no scripted response")
}

func (f *scriptedLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeCanvas struct {
	user          *model.CanvasUser
	userErr       error
	courses       []model.Course
	coursesErr    error
	assignments   map[int64][]model.Assignment
	assignErr     map[int64]error
	modules       map[int64][]model.Module
	modulesErr    error
	announcements map[int64][]model.Announcement
	submissions   map[int64]*model.Submission
}

func (f *fakeCanvas) CurrentUser(context.Context) (*model.CanvasUser, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	return f.user, nil
}

func (f *fakeCanvas) ListCourses(context.Context) ([]model.Course, error) {
	return f.courses, f.coursesErr
}

func (f *fakeCanvas) ListAssignments(_ context.Context, courseID int64) ([]model.Assignment, error) {
	if err := f.assignErr[courseID]; err != nil {
		return nil, err
	}
	list := make([]model.Assignment, len(f.assignments[courseID]))
	copy(list, f.assignments[courseID])
	return list, nil
}

func (f *fakeCanvas) GetSubmission(_ context.Context, _, assignmentID int64) (*model.Submission, error) {
	if s, ok := f.submissions[assignmentID]; ok {
		return s, nil
	}
	return nil, &canvas.APIError{StatusCode: 404}
}

func (f *fakeCanvas) ListModules(_ context.Context, courseID int64, _ bool) ([]model.Module, error) {
	if f.modulesErr != nil {
		return nil, f.modulesErr
	}
	return f.modules[courseID], nil
}

func (f *fakeCanvas) ListModuleItems(context.Context, int64, int64) ([]model.ModuleItem, error) {
	return nil, nil
}

func (f *fakeCanvas) ListAnnouncements(_ context.Context, courseID int64, _, _ time.Time) ([]model.Announcement, error) {
	return f.announcements[courseID], nil
}

type fakeDialer struct {
	client    *fakeCanvas
	lastURL   string
	lastToken string
}

func (d *fakeDialer) Dial(baseURL, token string) (canvas.Client, error) {
	d.lastURL, d.lastToken = baseURL, token
	return d.client, nil
}

type recordingPublisher struct {
	tasks []tasks.CourseRefreshTask
}

func (p *recordingPublisher) PublishCourseRefresh(_ context.Context, task tasks.CourseRefreshTask) error {
	p.tasks = append(p.tasks, task)
	return nil
}

type memoryTranscripts struct {
	objects map[string]interface{}
}

func (m *memoryTranscripts) PutJSON(_ context.Context, key string, v interface{}) error {
	if m.objects == nil {
		m.objects = map[string]interface{}{}
	}
	m.objects[key] = v
	return nil
}

func (m *memoryTranscripts) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://minio.local/" + key, nil
}

type testRepos struct {
	store   docstore.Store
	users   repository.UserRepository
	courses repository.CourseRepository
	chats   repository.ChatRepository
	plans   repository.PlanRepository
}

func newTestRepos() *testRepos {
	store := docstore.NewMemoryStore()
	return &testRepos{
		store:   store,
		users:   repository.NewUserRepository(store),
		courses: repository.NewCourseRepository(store),
		chats:   repository.NewChatRepository(store),
		plans:   repository.NewPlanRepository(store),
	}
}

func newTestCipher(t *testing.T) *secret.Cipher {
	t.Helper()
	key, err := secret.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	c, err := secret.NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return c
}

func timePtr(t time.Time) *time.Time { return &t }

func int64Ptr(v int64) *int64 { return &v }

// sampleCourses 返回两门课程的快照数据。
func sampleCourses() []model.Course {
	return []model.Course{
		{
			ID: 101, Name: "Natural Language Processing", Code: "CS 4650",
			Assignments: []model.Assignment{
				{ID: 1, CourseID: 101, Name: "Tokenizer", DueAt: timePtr(testNow.Add(72 * time.Hour)), PointsPossible: 100, Grade: model.DefaultGrade},
				{ID: 2, CourseID: 101, Name: "Parser", DueAt: timePtr(testNow.Add(20 * 24 * time.Hour)), PointsPossible: 50, Grade: "A"},
				{ID: 3, CourseID: 101, Name: "Reading Log", PointsPossible: 10, Grade: model.DefaultGrade},
			},
			Modules: []model.Module{
				{ID: 11, Name: "Week 1", Position: 1, Items: []model.ModuleItem{{ID: 111, ModuleID: 11, Title: "Intro", Type: "Page"}}},
			},
			Announcements: []model.Announcement{
				{ID: 21, Title: "Welcome", PostedAt: timePtr(testNow.Add(-48 * time.Hour))},
				{ID: 22, Title: "Exam moved", PostedAt: timePtr(testNow.Add(-2 * time.Hour))},
			},
		},
		{
			ID: 202, Name: "World History", Code: "HIST 1020",
			Assignments: []model.Assignment{
				{ID: 4, CourseID: 202, Name: "Essay", DueAt: timePtr(testNow.Add(24 * time.Hour)), PointsPossible: 20, Grade: model.DefaultGrade},
				{ID: 5, CourseID: 202, Name: "Old Quiz", DueAt: timePtr(testNow.Add(-24 * time.Hour)), PointsPossible: 5, Grade: "B"},
			},
			Announcements: []model.Announcement{
				{ID: 23, Title: "Office hours", PostedAt: timePtr(testNow.Add(-24 * time.Hour))},
			},
		},
	}
}
