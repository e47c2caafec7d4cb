package pipeline

import (
	"context"
	"errors"
	"sync"

	"easy-canvas-go/pkg/log"
	"easy-canvas-go/pkg/tasks"
)

// ErrQueueFull 表示进程内队列已满。
var ErrQueueFull = errors.New("course refresh queue is full")

// LocalQueue 是未配置 Kafka 时使用的进程内任务队列。
// 同一用户已在排队的任务会被合并。
type LocalQueue struct {
	processor tasks.Processor
	ch        chan tasks.CourseRefreshTask

	mu      sync.Mutex
	pending map[string]bool
	wg      sync.WaitGroup
}

// NewLocalQueue 创建一个容量为 size 的进程内队列。
func NewLocalQueue(processor tasks.Processor, size int) *LocalQueue {
	if size <= 0 {
		size = 64
	}
	return &LocalQueue{
		processor: processor,
		ch:        make(chan tasks.CourseRefreshTask, size),
		pending:   make(map[string]bool),
	}
}

// PublishCourseRefresh 把任务放入队列，不阻塞调用方。
func (q *LocalQueue) PublishCourseRefresh(_ context.Context, task tasks.CourseRefreshTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending[task.UserID] {
		return nil
	}
	select {
	case q.ch <- task:
		q.pending[task.UserID] = true
		return nil
	default:
		return ErrQueueFull
	}
}

// Start 启动 workers 个后台 worker，ctx 结束后 worker 退出。
func (q *LocalQueue) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
	log.Infof("进程内课程刷新队列已启动, workers: %d", workers)
}

// Wait 等待所有 worker 退出。
func (q *LocalQueue) Wait() {
	q.wg.Wait()
}

func (q *LocalQueue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.ch:
			q.mu.Lock()
			delete(q.pending, task.UserID)
			q.mu.Unlock()
			if err := q.processor.Process(ctx, task); err != nil {
				log.Errorw("处理课程刷新任务失败", "uid", task.UserID, "reason", task.Reason, "error", err)
			}
		}
	}
}
