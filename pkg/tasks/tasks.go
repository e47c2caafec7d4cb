// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import (
	"context"
	"time"
)

// CourseRefreshTask asks a worker to re-fetch a user's Canvas courses and rewrite the snapshot.
type CourseRefreshTask struct {
	UserID      string    `json:"user_id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// Publisher enqueues course refresh tasks.
type Publisher interface {
	PublishCourseRefresh(ctx context.Context, task CourseRefreshTask) error
}

// Processor handles a single course refresh task.
type Processor interface {
	Process(ctx context.Context, task CourseRefreshTask) error
}
