package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"easy-canvas-go/internal/model"
	"easy-canvas-go/internal/repository"
	"easy-canvas-go/pkg/log"
)

// PlanMaxAge 是缓存计划的有效期。
const PlanMaxAge = 24 * time.Hour

// ShouldRefresh 判断是否需要重新生成计划：
// 没有生成时间、哈希不一致或者已超过 24 小时都需要刷新。
func ShouldRefresh(lastUpdated *time.Time, currentHash, storedHash string, now time.Time) bool {
	if lastUpdated == nil || lastUpdated.IsZero() {
		return true
	}
	if storedHash == "" || currentHash != storedHash {
		return true
	}
	return now.Sub(*lastUpdated) >= PlanMaxAge
}

// CourseDataHash 对影响计划内容的课程字段做确定性哈希。
// 只投影 id、名称、作业关键字段和公告数量，课程和作业都按 id 排序，输入顺序不影响结果。
func CourseDataHash(courses []model.Course) string {
	sorted := make([]model.Course, len(courses))
	copy(sorted, courses)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	projection := make([]map[string]interface{}, 0, len(sorted))
	for _, c := range sorted {
		sortedAssignments := make([]model.Assignment, len(c.Assignments))
		copy(sortedAssignments, c.Assignments)
		sort.SliceStable(sortedAssignments, func(i, j int) bool { return sortedAssignments[i].ID < sortedAssignments[j].ID })

		assignments := make([]map[string]interface{}, 0, len(sortedAssignments))
		for _, a := range sortedAssignments {
			var due interface{}
			if a.DueAt != nil {
				due = a.DueAt.UTC().Format(time.RFC3339)
			}
			assignments = append(assignments, map[string]interface{}{
				"id":                        a.ID,
				"name":                      a.Name,
				"due_at":                    due,
				"points_possible":           a.PointsPossible,
				"has_submitted_submissions": a.HasSubmittedSubmissions,
			})
		}
		projection = append(projection, map[string]interface{}{
			"id":                  c.ID,
			"name":                c.Name,
			"assignments":         assignments,
			"announcements_count": len(c.Announcements),
		})
	}

	// encoding/json 对 map 的键按字典序输出
	raw, _ := json.Marshal(projection)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// PlanCache 管理 aiPlans/{uid} 中的计划缓存。
type PlanCache struct {
	repo repository.PlanRepository
}

// NewPlanCache 创建一个新的 PlanCache 实例。
func NewPlanCache(repo repository.PlanRepository) *PlanCache {
	return &PlanCache{repo: repo}
}

// Lookup 返回可以直接复用的缓存计划。未命中、过期、字段缺失或读取失败时返回 nil。
func (c *PlanCache) Lookup(ctx context.Context, uid, currentHash string, now time.Time) *model.PlanRecord {
	rec, err := c.repo.Get(ctx, uid)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warnf("[PlanCache] 读取缓存计划失败, uid: %s, error: %v", uid, err)
		}
		return nil
	}
	last := rec.LastUpdated
	if ShouldRefresh(&last, currentHash, rec.CourseDataHash, now) {
		return nil
	}
	return rec
}

// Save 写入新的缓存计划，失败只记录日志。
func (c *PlanCache) Save(ctx context.Context, uid string, plan model.Plan, hash string, courses []model.Course, now time.Time) {
	rec := &model.PlanRecord{
		Plan:            plan,
		CourseDataHash:  hash,
		LastUpdated:     now.UTC(),
		CourseCount:     len(courses),
		AssignmentCount: model.AssignmentCount(courses),
	}
	if err := c.repo.Save(ctx, uid, rec); err != nil {
		log.Errorf("[PlanCache] 保存计划缓存失败, uid: %s, error: %v", uid, err)
	}
}

// Clear 删除缓存计划，失败被吞掉并记录日志。
func (c *PlanCache) Clear(ctx context.Context, uid string) {
	if err := c.repo.Delete(ctx, uid); err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Warnf("[PlanCache] 清除计划缓存失败, uid: %s, error: %v", uid, err)
	}
}

// Metadata 返回缓存计划的元数据。
func (c *PlanCache) Metadata(ctx context.Context, uid string) (*model.PlanMetadata, error) {
	rec, err := c.repo.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &model.PlanMetadata{
		LastUpdated:      rec.LastUpdated,
		CourseDataHash:   rec.CourseDataHash,
		CourseCount:      rec.CourseCount,
		AssignmentCount:  rec.AssignmentCount,
		TodosCount:       len(rec.Plan.Todos),
		DeadlinesCount:   len(rec.Plan.Deadlines),
		StudyBlocksCount: len(rec.Plan.StudyBlocks),
		InsightsCount:    len(rec.Plan.Insights),
	}, nil
}
