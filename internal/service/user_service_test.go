package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"easy-canvas-go/internal/model"
	"easy-canvas-go/pkg/canvas"
	"easy-canvas-go/pkg/secret"
)

type userFixture struct {
	svc       *userService
	repos     *testRepos
	canvas    *fakeCanvas
	dialer    *fakeDialer
	publisher *recordingPublisher
	cipher    *secret.Cipher
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()
	repos := newTestRepos()
	fc := &fakeCanvas{user: &model.CanvasUser{ID: 42, Name: "Ada Lovelace", FirstName: "Ada", LastName: "Lovelace", AvatarURL: "https://img/ada.png"}}
	dialer := &fakeDialer{client: fc}
	pub := &recordingPublisher{}
	cipher := newTestCipher(t)
	svc := NewUserService(repos.users, repos.courses, repos.plans, repos.chats, dialer, cipher, pub).(*userService)
	svc.now = func() time.Time { return testNow }
	return &userFixture{svc: svc, repos: repos, canvas: fc, dialer: dialer, publisher: pub, cipher: cipher}
}

func TestSaveSettingsEncryptsToken(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	profile, err := f.svc.SaveSettings(ctx, "u1", model.UserSettingsRequest{CanvasURL: "canvas.example.edu/", APIToken: " tok-123 "})
	if err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if profile.CanvasURL != "https://canvas.example.edu" || profile.CanvasUserID != 42 || profile.FirstName != "Ada" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if f.dialer.lastToken != "tok-123" {
		t.Fatalf("credentials should be validated with the trimmed token, got %q", f.dialer.lastToken)
	}

	stored, err := f.repos.users.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.APIToken == "tok-123" {
		t.Fatalf("token must be stored encrypted")
	}
	plain, err := f.cipher.Decrypt(stored.APIToken)
	if err != nil || plain != "tok-123" {
		t.Fatalf("stored token should decrypt to the original: %q, %v", plain, err)
	}

	if len(f.publisher.tasks) != 1 || f.publisher.tasks[0].UserID != "u1" {
		t.Fatalf("a course refresh should be enqueued, got %+v", f.publisher.tasks)
	}
}

func TestSaveSettingsRejectsInvalidCredentials(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SaveSettings(ctx, "u1", model.UserSettingsRequest{CanvasURL: "", APIToken: "x"}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("missing url: got %v, want ErrBadRequest", err)
	}

	f.canvas.userErr = &canvas.APIError{StatusCode: 401}
	if _, err := f.svc.SaveSettings(ctx, "u1", model.UserSettingsRequest{CanvasURL: "canvas.example.edu", APIToken: "bad"}); !errors.Is(err, ErrInvalidCanvasCredentials) {
		t.Fatalf("got %v, want ErrInvalidCanvasCredentials", err)
	}
	if _, err := f.repos.users.Get(ctx, "u1"); err == nil {
		t.Fatalf("nothing should be stored for invalid credentials")
	}
	if len(f.publisher.tasks) != 0 {
		t.Fatalf("no refresh should be enqueued")
	}
}

func TestUpdateSettings(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()
	if _, err := f.svc.UpdateSettings(ctx, "u1", model.UserSettingsUpdate{}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("got %v, want ErrUserNotFound", err)
	}

	if _, err := f.svc.SaveSettings(ctx, "u1", model.UserSettingsRequest{CanvasURL: "canvas.example.edu", APIToken: "tok-1"}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	nick := "Countess"
	profile, err := f.svc.UpdateSettings(ctx, "u1", model.UserSettingsUpdate{FirstName: &nick})
	if err != nil || profile.FirstName != "Countess" {
		t.Fatalf("UpdateSettings: %+v, %v", profile, err)
	}
	if len(f.publisher.tasks) != 1 {
		t.Fatalf("a name change should not trigger a refresh")
	}

	newToken := "tok-2"
	f.canvas.user = &model.CanvasUser{ID: 43, Name: "Ada K"}
	profile, err = f.svc.UpdateSettings(ctx, "u1", model.UserSettingsUpdate{APIToken: &newToken})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if profile.CanvasUserID != 43 || f.dialer.lastToken != "tok-2" || f.dialer.lastURL != "https://canvas.example.edu" {
		t.Fatalf("token change should revalidate against the stored url: %+v", profile)
	}
	if len(f.publisher.tasks) != 2 {
		t.Fatalf("a token change should trigger a refresh")
	}

	f.canvas.userErr = &canvas.APIError{StatusCode: 401}
	badURL := "other.example.edu"
	if _, err := f.svc.UpdateSettings(ctx, "u1", model.UserSettingsUpdate{CanvasURL: &badURL}); !errors.Is(err, ErrInvalidCanvasCredentials) {
		t.Fatalf("got %v, want ErrInvalidCanvasCredentials", err)
	}
	stored, _ := f.repos.users.Get(ctx, "u1")
	if stored.CanvasURL != "https://canvas.example.edu" {
		t.Fatalf("failed validation must not change the stored url, got %q", stored.CanvasURL)
	}
}

func TestDeleteSettingsCascades(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	if err := f.svc.DeleteSettings(ctx, "u1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("got %v, want ErrUserNotFound", err)
	}
	if _, err := f.svc.SaveSettings(ctx, "u1", model.UserSettingsRequest{CanvasURL: "canvas.example.edu", APIToken: "tok"}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if err := f.repos.courses.SaveSnapshot(ctx, "u1", sampleCourses(), testNow); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := f.repos.plans.Save(ctx, "u1", &model.PlanRecord{CourseDataHash: "h", LastUpdated: testNow}); err != nil {
		t.Fatalf("Save plan: %v", err)
	}
	chat := &model.Chat{ChatID: "c1", UserID: "u1", CreatedAt: testNow, UpdatedAt: testNow}
	if err := f.repos.chats.CreateChat(ctx, chat); err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if err := f.repos.chats.AddMessage(ctx, &model.ChatMessage{MessageID: "m1", ChatID: "c1", Role: model.RoleUser, Content: "hi", Timestamp: testNow}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	if err := f.svc.DeleteSettings(ctx, "u1"); err != nil {
		t.Fatalf("DeleteSettings: %v", err)
	}
	if _, err := f.svc.GetSettings(ctx, "u1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("settings should be gone: %v", err)
	}
	if _, err := f.repos.courses.GetSnapshot(ctx, "u1"); err == nil {
		t.Fatalf("course snapshot should be deleted")
	}
	if _, err := f.repos.plans.Get(ctx, "u1"); err == nil {
		t.Fatalf("plan cache should be deleted")
	}
	if _, err := f.repos.chats.GetChat(ctx, "c1"); err == nil {
		t.Fatalf("chats should be deleted")
	}
	msgs, _ := f.repos.chats.ListMessages(ctx, "c1")
	if len(msgs) != 0 {
		t.Fatalf("chat messages should be deleted")
	}
}
