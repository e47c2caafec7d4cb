// Package pipeline 定义了课程刷新任务的后台处理流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"easy-canvas-go/internal/service"
	"easy-canvas-go/pkg/log"
	"easy-canvas-go/pkg/tasks"
)

// Processor 执行课程刷新任务，既可以挂在 Kafka 消费者上，也可以挂在进程内队列上。
type Processor struct {
	courseService service.CourseService
	timeout       time.Duration
}

// NewProcessor 创建一个新的 Processor 实例。timeout 限制单次刷新的最长时间，0 表示不限制。
func NewProcessor(courseService service.CourseService, timeout time.Duration) *Processor {
	return &Processor{courseService: courseService, timeout: timeout}
}

// Process 刷新用户的课程快照。用户已被删除或凭证失效时直接丢弃任务。
func (p *Processor) Process(ctx context.Context, task tasks.CourseRefreshTask) error {
	log.Infof("[Processor] 开始刷新课程, uid: %s, reason: %s", task.UserID, task.Reason)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	courses, err := p.courseService.RefreshCourses(ctx, task.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) ||
			errors.Is(err, service.ErrCredentialsMissing) ||
			errors.Is(err, service.ErrInvalidCanvasCredentials) {
			log.Warnf("[Processor] 放弃课程刷新任务, uid: %s, error: %v", task.UserID, err)
			return nil
		}
		return fmt.Errorf("refresh courses for %s: %w", task.UserID, err)
	}
	log.Infow("[Processor] 课程刷新完成",
		"uid", task.UserID,
		"courses", len(courses),
		"elapsed", time.Since(start).String(),
	)
	return nil
}
