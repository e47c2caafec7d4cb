package repository

import (
	"context"
	"fmt"
	"time"

	"easy-canvas-go/internal/model"
	"easy-canvas-go/pkg/docstore"
)

// CourseRepository 管理 userCourses/{uid} 课程快照。
type CourseRepository interface {
	GetSnapshot(ctx context.Context, uid string) (*model.CourseSnapshot, error)
	SaveSnapshot(ctx context.Context, uid string, courses []model.Course, at time.Time) error
	Delete(ctx context.Context, uid string) error
}

type courseRepository struct {
	store docstore.Store
}

// NewCourseRepository 创建一个新的 CourseRepository 实例。
func NewCourseRepository(store docstore.Store) CourseRepository {
	return &courseRepository{store: store}
}

func (r *courseRepository) GetSnapshot(ctx context.Context, uid string) (*model.CourseSnapshot, error) {
	doc, err := r.store.Get(ctx, CollectionUserCourses, uid)
	if err != nil {
		return nil, err
	}
	var snap model.CourseSnapshot
	if err := doc.DataTo(&snap); err != nil {
		return nil, fmt.Errorf("malformed course snapshot: %w", err)
	}
	if snap.Courses == nil {
		snap.Courses = []model.Course{}
	}
	return &snap, nil
}

// SaveSnapshot 用单次写入整体替换快照，并发刷新时后写者覆盖先写者。
func (r *courseRepository) SaveSnapshot(ctx context.Context, uid string, courses []model.Course, at time.Time) error {
	if courses == nil {
		courses = []model.Course{}
	}
	return r.store.Set(ctx, CollectionUserCourses, uid, model.CourseSnapshot{
		Courses:     courses,
		LastUpdated: at.UTC(),
	})
}

func (r *courseRepository) Delete(ctx context.Context, uid string) error {
	return r.store.Delete(ctx, CollectionUserCourses, uid)
}
