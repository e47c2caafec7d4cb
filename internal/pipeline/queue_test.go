package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"easy-canvas-go/internal/model"
	"easy-canvas-go/internal/service"
	"easy-canvas-go/pkg/tasks"
)

type countingProcessor struct {
	mu   sync.Mutex
	uids []string
	done chan struct{}
	fail map[string]bool
}

func (p *countingProcessor) Process(_ context.Context, task tasks.CourseRefreshTask) error {
	p.mu.Lock()
	p.uids = append(p.uids, task.UserID)
	p.mu.Unlock()
	p.done <- struct{}{}
	if p.fail[task.UserID] {
		return errors.New("canvas 503")
	}
	return nil
}

func TestLocalQueueProcessesTasks(t *testing.T) {
	proc := &countingProcessor{done: make(chan struct{}, 4)}
	q := NewLocalQueue(proc, 4)

	ctx := context.Background()
	if err := q.PublishCourseRefresh(ctx, tasks.CourseRefreshTask{UserID: "u1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// 排队中的同一用户任务会被合并
	if err := q.PublishCourseRefresh(ctx, tasks.CourseRefreshTask{UserID: "u1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := q.PublishCourseRefresh(ctx, tasks.CourseRefreshTask{UserID: "u2"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	q.Start(runCtx, 1)
	for i := 0; i < 2; i++ {
		select {
		case <-proc.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("task %d was not processed", i)
		}
	}
	cancel()
	q.Wait()

	if len(proc.uids) != 2 || proc.uids[0] != "u1" || proc.uids[1] != "u2" {
		t.Fatalf("unexpected processed tasks %v", proc.uids)
	}
}

func TestLocalQueueKeepsWorkingAfterFailure(t *testing.T) {
	proc := &countingProcessor{done: make(chan struct{}, 2), fail: map[string]bool{"u1": true}}
	q := NewLocalQueue(proc, 2)
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx, 1)

	for _, uid := range []string{"u1", "u2"} {
		if err := q.PublishCourseRefresh(ctx, tasks.CourseRefreshTask{UserID: uid, Reason: "test"}); err != nil {
			t.Fatalf("Publish %s: %v", uid, err)
		}
		select {
		case <-proc.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("task %s was not processed", uid)
		}
	}
	cancel()
	q.Wait()

	if len(proc.uids) != 2 || proc.uids[1] != "u2" {
		t.Fatalf("unexpected processed tasks %v", proc.uids)
	}
}

func TestLocalQueueFull(t *testing.T) {
	q := NewLocalQueue(&countingProcessor{done: make(chan struct{}, 1)}, 1)
	ctx := context.Background()
	if err := q.PublishCourseRefresh(ctx, tasks.CourseRefreshTask{UserID: "u1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := q.PublishCourseRefresh(ctx, tasks.CourseRefreshTask{UserID: "u2"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("got %v, want ErrQueueFull", err)
	}
}

type stubCourseService struct {
	service.CourseService
	err   error
	calls int
}

func (s *stubCourseService) RefreshCourses(context.Context, string) ([]model.Course, error) {
	s.calls++
	return nil, s.err
}

func TestProcessorDropsPermanentFailures(t *testing.T) {
	ctx := context.Background()
	task := tasks.CourseRefreshTask{UserID: "u1"}

	for _, err := range []error{service.ErrUserNotFound, service.ErrCredentialsMissing, service.ErrInvalidCanvasCredentials} {
		p := NewProcessor(&stubCourseService{err: err}, time.Second)
		if got := p.Process(ctx, task); got != nil {
			t.Fatalf("%v should be dropped, got %v", err, got)
		}
	}

	p := NewProcessor(&stubCourseService{err: errors.New("canvas 503")}, 0)
	if err := p.Process(ctx, task); err == nil {
		t.Fatalf("transient errors should be returned for retry")
	}
}
