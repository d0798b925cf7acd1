package usecase

import (
	"context"
	"errors"
	"testing"

	"RankPulse/internal/domain/models"
	domrepo "RankPulse/internal/domain/repository"
	"RankPulse/internal/services/rankstats"
	pkgcache "RankPulse/pkg/cache"
)

func newAnalytics(store *fakeStore, cache *fakeCache, metrics *fakeMetrics) *AnalyticsUseCase {
	res := rankstats.NewResolver(store)
	var cacheSvc pkgcache.Service
	if cache != nil {
		cacheSvc = cache
	}
	var rec domrepo.Metrics
	if metrics != nil {
		rec = metrics
	}
	return NewAnalyticsUseCase(
		rankstats.NewAggregator(res),
		rankstats.NewAttributor(res),
		res,
		store,
		cacheSvc,
		rec,
		nil,
		0,
	)
}

func TestAppHistoryWindowAndRangeMutuallyExclusive(t *testing.T) {
	uc := newAnalytics(&fakeStore{}, nil, nil)

	_, err := uc.AppHistory(context.Background(), baseSpec().WithApp("a"), 30, "2025-03-01", "2025-03-05")
	if !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("want ErrInvalidParameter, got %v", err)
	}
}

func TestAppHistoryRequiresAppID(t *testing.T) {
	uc := newAnalytics(&fakeStore{}, nil, nil)

	_, err := uc.AppHistory(context.Background(), baseSpec(), 7, "", "")
	if !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("want ErrInvalidParameter, got %v", err)
	}
}

func TestAppHistoryExplicitRangeKeepsGaps(t *testing.T) {
	store := &fakeStore{rows: []models.RankingObservation{
		obs("2025-03-01", "a", intp(3)),
		obs("2025-03-03", "a", intp(5)),
	}}
	uc := newAnalytics(store, nil, nil)

	hist, err := uc.AppHistory(context.Background(), baseSpec().WithApp("a"), 0, "2025-03-01", "2025-03-04")
	if err != nil {
		t.Fatalf("AppHistory: %v", err)
	}
	if len(hist.Points) != 4 {
		t.Fatalf("want 4 calendar points, got %d", len(hist.Points))
	}
	if hist.Points[0].Rank == nil || *hist.Points[0].Rank != 3 {
		t.Fatalf("day 1 rank = %v, want 3", hist.Points[0].Rank)
	}
	if hist.Points[1].Rank != nil || hist.Points[1].Index != nil {
		t.Fatalf("day 2 should be an explicit gap, got %+v", hist.Points[1])
	}
	if hist.Points[3].Rank != nil {
		t.Fatalf("day 4 should be an explicit gap, got %+v", hist.Points[3])
	}
}

func TestAppHistoryBadDate(t *testing.T) {
	uc := newAnalytics(&fakeStore{}, nil, nil)

	_, err := uc.AppHistory(context.Background(), baseSpec().WithApp("a"), 0, "03/01/2025", "2025-03-04")
	if !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("want ErrInvalidParameter, got %v", err)
	}
}

func TestSearchAppsEmptyQuery(t *testing.T) {
	uc := newAnalytics(&fakeStore{}, nil, nil)

	_, err := uc.SearchApps(context.Background(), "", baseSpec(), 10)
	if !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("want ErrInvalidParameter, got %v", err)
	}
}

func TestTopNSecondCallServedFromCache(t *testing.T) {
	store := &fakeStore{rows: []models.RankingObservation{
		obs("2025-03-01", "a", intp(1)),
		obs("2025-03-01", "b", intp(2)),
	}}
	cache := newFakeCache()
	metrics := newFakeMetrics()
	uc := newAnalytics(store, cache, metrics)

	first, err := uc.TopN(context.Background(), baseSpec(), 2)
	if err != nil {
		t.Fatalf("first TopN: %v", err)
	}
	second, err := uc.TopN(context.Background(), baseSpec(), 2)
	if err != nil {
		t.Fatalf("second TopN: %v", err)
	}
	if metrics.misses != 1 || metrics.hits != 1 {
		t.Fatalf("cache counters = %d misses / %d hits, want 1/1", metrics.misses, metrics.hits)
	}
	if cache.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", cache.sets)
	}
	if len(first.Entries) != len(second.Entries) {
		t.Fatalf("cached result diverged: %d vs %d entries", len(first.Entries), len(second.Entries))
	}
	if metrics.queries["top_n"] != 2 {
		t.Fatalf("top_n query count = %d, want 2", metrics.queries["top_n"])
	}
}

func TestOverviewDefaultsWindow(t *testing.T) {
	store := &fakeStore{rows: []models.RankingObservation{
		obs("2025-03-01", "a", intp(1)),
	}}
	uc := newAnalytics(store, nil, nil)

	out, err := uc.Overview(context.Background(), baseSpec(), 0)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if out.Meta.WindowDays != DefaultWindowDays {
		t.Fatalf("window days = %d, want %d", out.Meta.WindowDays, DefaultWindowDays)
	}
}
