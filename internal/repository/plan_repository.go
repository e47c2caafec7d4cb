package repository

import (
	"context"
	"fmt"

	"easy-canvas-go/internal/model"
	"easy-canvas-go/pkg/docstore"
)

// PlanRepository 管理 aiPlans/{uid} 学习计划缓存。
type PlanRepository interface {
	Get(ctx context.Context, uid string) (*model.PlanRecord, error)
	Save(ctx context.Context, uid string, rec *model.PlanRecord) error
	Delete(ctx context.Context, uid string) error
}

type planRepository struct {
	store docstore.Store
}

// NewPlanRepository 创建一个新的 PlanRepository 实例。
func NewPlanRepository(store docstore.Store) PlanRepository {
	return &planRepository{store: store}
}

func (r *planRepository) Get(ctx context.Context, uid string) (*model.PlanRecord, error) {
	doc, err := r.store.Get(ctx, CollectionAIPlans, uid)
	if err != nil {
		return nil, err
	}
	var rec model.PlanRecord
	if err := doc.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("malformed plan record: %w", err)
	}
	return &rec, nil
}

func (r *planRepository) Save(ctx context.Context, uid string, rec *model.PlanRecord) error {
	return r.store.Set(ctx, CollectionAIPlans, uid, rec)
}

func (r *planRepository) Delete(ctx context.Context, uid string) error {
	return r.store.Delete(ctx, CollectionAIPlans, uid)
}
