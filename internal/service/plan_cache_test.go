package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"easy-canvas-go/internal/model"
	"easy-canvas-go/internal/repository"
)

func TestShouldRefresh(t *testing.T) {
	fresh := testNow.Add(-time.Hour)
	stale := testNow.Add(-25 * time.Hour)
	cases := []struct {
		name    string
		last    *time.Time
		current string
		stored  string
		want    bool
	}{
		{"never generated", nil, "h", "h", true},
		{"hash changed", &fresh, "new", "old", true},
		{"missing stored hash", &fresh, "h", "", true},
		{"older than a day", &stale, "h", "h", true},
		{"fresh and unchanged", &fresh, "h", "h", false},
	}
	for _, tc := range cases {
		if got := ShouldRefresh(tc.last, tc.current, tc.stored, testNow); got != tc.want {
			t.Errorf("%s: ShouldRefresh = %v, want %v", tc.name, got, tc.want)
		}
	}

	exact := testNow.Add(-PlanMaxAge)
	if !ShouldRefresh(&exact, "h", "h", testNow) {
		t.Errorf("a plan exactly 24h old should be refreshed")
	}
}

func TestCourseDataHash(t *testing.T) {
	courses := sampleCourses()
	base := CourseDataHash(courses)
	if len(base) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q", base)
	}

	reversed := []model.Course{courses[1], courses[0]}
	if CourseDataHash(reversed) != base {
		t.Fatalf("course order must not change the hash")
	}

	shuffled := sampleCourses()
	as := shuffled[0].Assignments
	as[0], as[len(as)-1] = as[len(as)-1], as[0]
	if CourseDataHash(shuffled) != base {
		t.Fatalf("assignment order must not change the hash")
	}

	described := sampleCourses()
	described[0].Assignments[0].Description = "new description"
	described[0].Modules = nil
	if CourseDataHash(described) != base {
		t.Fatalf("fields outside the projection must not change the hash")
	}

	moved := sampleCourses()
	moved[0].Assignments[0].DueAt = timePtr(testNow.Add(96 * time.Hour))
	if CourseDataHash(moved) == base {
		t.Fatalf("a due date change must change the hash")
	}

	announced := sampleCourses()
	announced[1].Announcements = append(announced[1].Announcements, model.Announcement{ID: 99})
	if CourseDataHash(announced) == base {
		t.Fatalf("a new announcement must change the hash")
	}
}

func TestPlanCacheLookupAndMetadata(t *testing.T) {
	repos := newTestRepos()
	cache := NewPlanCache(repos.plans)
	ctx := context.Background()
	courses := sampleCourses()
	hash := CourseDataHash(courses)

	if rec := cache.Lookup(ctx, "u1", hash, testNow); rec != nil {
		t.Fatalf("empty cache should miss")
	}
	if _, err := cache.Metadata(ctx, "u1"); err != ErrPlanNotFound {
		t.Fatalf("Metadata on empty cache: got %v, want ErrPlanNotFound", err)
	}

	plan := model.Plan{Todos: []model.TodoItem{{ID: "t1"}, {ID: "t2"}}, Insights: []model.InsightCard{{ID: "i1"}}}
	cache.Save(ctx, "u1", plan, hash, courses, testNow)

	rec := cache.Lookup(ctx, "u1", hash, testNow.Add(time.Hour))
	if rec == nil || len(rec.Plan.Todos) != 2 {
		t.Fatalf("expected cache hit, got %+v", rec)
	}
	if cache.Lookup(ctx, "u1", "other", testNow.Add(time.Hour)) != nil {
		t.Fatalf("hash mismatch should miss")
	}
	if cache.Lookup(ctx, "u1", hash, testNow.Add(25*time.Hour)) != nil {
		t.Fatalf("stale plan should miss")
	}

	meta, err := cache.Metadata(ctx, "u1")
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if meta.CourseCount != 2 || meta.AssignmentCount != 5 || meta.TodosCount != 2 || meta.InsightsCount != 1 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	cache.Clear(ctx, "u1")
	if cache.Lookup(ctx, "u1", hash, testNow) != nil {
		t.Fatalf("cleared cache should miss")
	}
}

// failingPlanRepo 模拟读写都失败的计划缓存存储。
type failingPlanRepo struct {
	repository.PlanRepository
	gets  int
	saves int
}

func (r *failingPlanRepo) Get(context.Context, string) (*model.PlanRecord, error) {
	r.gets++
	return nil, errors.New("firestore unavailable")
}

func (r *failingPlanRepo) Save(context.Context, string, *model.PlanRecord) error {
	r.saves++
	return errors.New("firestore unavailable")
}

func TestPlanCacheFailuresAreSwallowed(t *testing.T) {
	repo := &failingPlanRepo{}
	cache := NewPlanCache(repo)
	ctx := context.Background()

	if rec := cache.Lookup(ctx, "u1", "h", testNow); rec != nil {
		t.Fatalf("read failure should miss, got %+v", rec)
	}
	cache.Save(ctx, "u1", model.Plan{}, "h", sampleCourses(), testNow)
	if repo.gets != 1 || repo.saves != 1 {
		t.Fatalf("gets=%d saves=%d", repo.gets, repo.saves)
	}
}
