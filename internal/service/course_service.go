package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"easy-canvas-go/internal/config"
	"easy-canvas-go/internal/model"
	"easy-canvas-go/internal/repository"
	"easy-canvas-go/pkg/canvas"
	"easy-canvas-go/pkg/log"
	"easy-canvas-go/pkg/secret"
)

// CourseService 接口定义了课程快照的读取与刷新。
type CourseService interface {
	GetCourses(ctx context.Context, uid string, force bool) ([]model.Course, error)
	RefreshCourses(ctx context.Context, uid string) ([]model.Course, error)
	GetCachedCourses(ctx context.Context, uid string) ([]model.Course, error)
	GetCourse(ctx context.Context, uid string, courseID int64) (*model.Course, error)
	GetAssignment(ctx context.Context, uid string, courseID, assignmentID int64) (*model.Assignment, error)
	LastUpdated(ctx context.Context, uid string) (*time.Time, error)
}

type courseService struct {
	userRepo   repository.UserRepository
	courseRepo repository.CourseRepository
	dialer     canvas.Dialer
	cipher     *secret.Cipher
	cfg        config.CanvasConfig
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewCourseService 创建一个新的 CourseService 实例。
func NewCourseService(
	userRepo repository.UserRepository,
	courseRepo repository.CourseRepository,
	dialer canvas.Dialer,
	cipher *secret.Cipher,
	cfg config.CanvasConfig,
) CourseService {
	return &courseService{
		userRepo:   userRepo,
		courseRepo: courseRepo,
		dialer:     dialer,
		cipher:     cipher,
		cfg:        cfg,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// GetCourses 优先返回缓存快照，快照不存在或 force 为 true 时从 Canvas 刷新。
func (s *courseService) GetCourses(ctx context.Context, uid string, force bool) ([]model.Course, error) {
	if !force {
		snap, err := s.courseRepo.GetSnapshot(ctx, uid)
		if err == nil {
			return snap.Courses, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warnf("[CourseService] 读取课程快照失败, 将从 Canvas 刷新, uid: %s, error: %v", uid, err)
		}
	}
	return s.RefreshCourses(ctx, uid)
}

// RefreshCourses 从 Canvas 拉取当前学期的课程及其作业、模块和公告，整体覆盖快照。
func (s *courseService) RefreshCourses(ctx context.Context, uid string) ([]model.Course, error) {
	client, err := s.clientFor(ctx, uid)
	if err != nil {
		return nil, err
	}

	all, err := client.ListCourses(ctx)
	if err != nil {
		return nil, canvasError("list courses", err)
	}
	filtered := s.filterCourses(all)
	log.Infof("[CourseService] 用户 %s 共 %d 门课程, 当前学期 %d 门", uid, len(all), len(filtered))

	now := s.now().UTC()
	courses := make([]model.Course, 0, len(filtered))
	for i, c := range filtered {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.RequestDelay); err != nil {
				return nil, err
			}
		}
		processed, err := s.processCourse(ctx, client, c, now)
		if err != nil {
			if isUnauthorized(err) {
				return nil, canvasError("process course", err)
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Errorf("[CourseService] 处理课程失败, 跳过, courseID: %d, error: %v", c.ID, err)
			continue
		}
		courses = append(courses, processed)
	}

	if err := s.courseRepo.SaveSnapshot(ctx, uid, courses, now); err != nil {
		return nil, fmt.Errorf("save course snapshot: %w", err)
	}
	log.Infof("[CourseService] 用户 %s 课程快照已更新, 课程数: %d, 作业数: %d", uid, len(courses), model.AssignmentCount(courses))
	return courses, nil
}

func (s *courseService) filterCourses(courses []model.Course) []model.Course {
	out := make([]model.Course, 0, len(courses))
	for _, c := range courses {
		if c.WorkflowState != "available" {
			continue
		}
		if s.cfg.CurrentTermID != 0 && c.TermID != int64(s.cfg.CurrentTermID) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// processCourse 并发拉取单门课程的作业、模块和公告。作业失败时整门课程失败，模块和公告失败只记录日志。
func (s *courseService) processCourse(ctx context.Context, client canvas.Client, course model.Course, now time.Time) (model.Course, error) {
	g, gctx := errgroup.WithContext(ctx)

	var assignments []model.Assignment
	var modules []model.Module
	var announcements []model.Announcement

	g.Go(func() error {
		list, err := client.ListAssignments(gctx, course.ID)
		if err != nil {
			return fmt.Errorf("list assignments: %w", err)
		}
		for i := range list {
			if list[i].SubmissionState != "" {
				continue
			}
			sub, err := client.GetSubmission(gctx, course.ID, list[i].ID)
			if err != nil {
				log.Debugf("[CourseService] 获取提交记录失败, assignmentID: %d, error: %v", list[i].ID, err)
				continue
			}
			canvas.ApplySubmission(&list[i], *sub)
		}
		assignments = list
		return nil
	})
	g.Go(func() error {
		list, err := client.ListModules(gctx, course.ID, true)
		if err != nil {
			if isUnauthorized(err) {
				return err
			}
			log.Warnf("[CourseService] 获取课程模块失败, courseID: %d, error: %v", course.ID, err)
			return nil
		}
		modules = list
		return nil
	})
	g.Go(func() error {
		start := now.AddDate(0, 0, -s.cfg.AnnouncementDays)
		list, err := client.ListAnnouncements(gctx, course.ID, start, now)
		if err != nil {
			if isUnauthorized(err) {
				return err
			}
			log.Warnf("[CourseService] 获取课程公告失败, courseID: %d, error: %v", course.ID, err)
			return nil
		}
		announcements = list
		return nil
	})

	if err := g.Wait(); err != nil {
		return course, err
	}

	course.Assignments = nonNil(assignments)
	course.Modules = nonNil(modules)
	course.Announcements = nonNil(announcements)
	return course, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func isUnauthorized(err error) bool {
	var apiErr *canvas.APIError
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}

// canvasError 将 401 映射为 ErrInvalidCanvasCredentials。
func canvasError(op string, err error) error {
	if isUnauthorized(err) {
		return fmt.Errorf("%w: %s: %v", ErrInvalidCanvasCredentials, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *courseService) clientFor(ctx context.Context, uid string) (canvas.Client, error) {
	user, err := s.userRepo.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.CanvasURL == "" || user.APIToken == "" {
		return nil, ErrCredentialsMissing
	}
	token, err := s.cipher.Decrypt(user.APIToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt api token: %w", err)
	}
	client, err := s.dialer.Dial(user.CanvasURL, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialsMissing, err)
	}
	return client, nil
}

// GetCachedCourses 只读取快照，不会访问 Canvas。
func (s *courseService) GetCachedCourses(ctx context.Context, uid string) ([]model.Course, error) {
	snap, err := s.courseRepo.GetSnapshot(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCoursesNotFound
		}
		return nil, err
	}
	return snap.Courses, nil
}

func (s *courseService) GetCourse(ctx context.Context, uid string, courseID int64) (*model.Course, error) {
	courses, err := s.GetCachedCourses(ctx, uid)
	if err != nil {
		return nil, err
	}
	c := findCourse(courses, courseID)
	if c == nil {
		return nil, ErrCourseNotFound
	}
	return c, nil
}

func (s *courseService) GetAssignment(ctx context.Context, uid string, courseID, assignmentID int64) (*model.Assignment, error) {
	c, err := s.GetCourse(ctx, uid, courseID)
	if err != nil {
		return nil, err
	}
	for i := range c.Assignments {
		if c.Assignments[i].ID == assignmentID {
			return &c.Assignments[i], nil
		}
	}
	return nil, ErrAssignmentNotFound
}

func (s *courseService) LastUpdated(ctx context.Context, uid string) (*time.Time, error) {
	snap, err := s.courseRepo.GetSnapshot(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCoursesNotFound
		}
		return nil, err
	}
	t := snap.LastUpdated
	return &t, nil
}
