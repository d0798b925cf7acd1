package usecase

import (
	"context"
	"fmt"
	"time"

	"RankPulse/internal/domain/models"
	domrepo "RankPulse/internal/domain/repository"
	"RankPulse/internal/services/rankstats"
	"RankPulse/pkg/cache"
	applogger "RankPulse/pkg/logger"
	"RankPulse/pkg/util"
)

// DefaultWindowDays is the analytics window used when the caller does
// not specify one.
const DefaultWindowDays = 30

// AnalyticsUseCase fronts the windowed analytics with a response cache
// and query metrics. Analytics never error on data absence; empty,
// well-typed results come back instead.
type AnalyticsUseCase struct {
	agg     *rankstats.Aggregator
	attr    *rankstats.Attributor
	res     *rankstats.Resolver
	store   domrepo.RankingStore
	cache   cache.Service
	metrics domrepo.Metrics
	log     *applogger.Logger
	ttl     time.Duration
}

func NewAnalyticsUseCase(
	agg *rankstats.Aggregator,
	attr *rankstats.Attributor,
	res *rankstats.Resolver,
	store domrepo.RankingStore,
	cacheSvc cache.Service,
	metrics domrepo.Metrics,
	log *applogger.Logger,
	ttl time.Duration,
) *AnalyticsUseCase {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AnalyticsUseCase{
		agg: agg, attr: attr, res: res, store: store,
		cache: cacheSvc, metrics: metrics, log: log, ttl: ttl,
	}
}

// cachedQuery wraps one analytics computation with the response cache
// and the per-operation query timer. A cache failure is logged and
// treated as a miss; the store is the source of truth.
func cachedQuery[T any](ctx context.Context, uc *AnalyticsUseCase, op, key string, compute func() (T, error)) (T, error) {
	start := time.Now()
	defer func() {
		if uc.metrics != nil {
			uc.metrics.RecordQuery(op, time.Since(start).Seconds())
		}
	}()

	var out T
	if uc.cache != nil {
		if err := uc.cache.Get(ctx, key, &out); err == nil {
			if uc.metrics != nil {
				uc.metrics.RecordCache(op, true)
			}
			return out, nil
		}
		if uc.metrics != nil {
			uc.metrics.RecordCache(op, false)
		}
	}

	out, err := compute()
	if err != nil {
		if uc.metrics != nil {
			uc.metrics.RecordError(op)
		}
		return out, err
	}
	if uc.cache != nil {
		if err := uc.cache.Set(ctx, key, out, uc.ttl); err != nil && uc.log != nil {
			uc.log.Warn("analytics cache set failed",
				applogger.String("op", op),
				applogger.Error(err),
			)
		}
	}
	return out, nil
}

func specKey(prefix string, spec domrepo.QuerySpec, extra ...interface{}) string {
	params := append([]interface{}{spec.Country, spec.Device, string(spec.Chart), spec.Genre, spec.AppID}, extra...)
	return cache.GenerateKeyWithParams(prefix, params...)
}

func normDays(days int) int {
	if days <= 0 {
		return DefaultWindowDays
	}
	return days
}

func (uc *AnalyticsUseCase) Overview(ctx context.Context, spec domrepo.QuerySpec, days int) (models.Overview, error) {
	days = normDays(days)
	return cachedQuery(ctx, uc, "overview", specKey("analytics:overview", spec, days), func() (models.Overview, error) {
		return uc.agg.Overview(ctx, spec, days)
	})
}

func (uc *AnalyticsUseCase) TopN(ctx context.Context, spec domrepo.QuerySpec, n int) (models.TopNResult, error) {
	if n <= 0 {
		n = 20
	}
	return cachedQuery(ctx, uc, "top_n", specKey("analytics:top_n", spec, n), func() (models.TopNResult, error) {
		return uc.agg.TopN(ctx, spec, n)
	})
}

func (uc *AnalyticsUseCase) VolatilityTrend(ctx context.Context, spec domrepo.QuerySpec, days int) (models.VolatilityTrend, error) {
	days = normDays(days)
	return cachedQuery(ctx, uc, "volatility_trend", specKey("analytics:volatility", spec, days), func() (models.VolatilityTrend, error) {
		return uc.agg.VolatilityTrend(ctx, spec, days)
	})
}

func (uc *AnalyticsUseCase) Stability(ctx context.Context, spec domrepo.QuerySpec, days, k, minPresence int, volatile bool) (models.StabilityRanking, error) {
	days = normDays(days)
	if k <= 0 {
		k = 10
	}
	key := specKey("analytics:stability", spec, days, k, minPresence, volatile)
	return cachedQuery(ctx, uc, "stability", key, func() (models.StabilityRanking, error) {
		return uc.agg.StabilityTopK(ctx, spec, days, k, minPresence, volatile)
	})
}

func (uc *AnalyticsUseCase) GenreTrend(ctx context.Context, spec domrepo.QuerySpec, days int, genre string) (models.GenreTrend, error) {
	days = normDays(days)
	return cachedQuery(ctx, uc, "genre_trend", specKey("analytics:genre_trend", spec, days, genre), func() (models.GenreTrend, error) {
		return uc.agg.GenreTrend(ctx, spec, days, genre)
	})
}

func (uc *AnalyticsUseCase) GenreGrowth(ctx context.Context, spec domrepo.QuerySpec, days int) (models.GenreGrowth, error) {
	days = normDays(days)
	return cachedQuery(ctx, uc, "genre_growth", specKey("analytics:genre_growth", spec, days), func() (models.GenreGrowth, error) {
		return uc.agg.GenreGrowth(ctx, spec, days)
	})
}

func (uc *AnalyticsUseCase) FeatureImportance(ctx context.Context, spec domrepo.QuerySpec, days int) (models.FeatureImportance, error) {
	days = normDays(days)
	return cachedQuery(ctx, uc, "feature_importance", specKey("analytics:importance", spec, days), func() (models.FeatureImportance, error) {
		return uc.attr.Importance(ctx, spec, days)
	})
}

func (uc *AnalyticsUseCase) Meta(ctx context.Context) (models.MetaOptions, error) {
	return cachedQuery(ctx, uc, "meta", "analytics:meta", func() (models.MetaOptions, error) {
		return uc.store.MetaOptions(ctx)
	})
}

func (uc *AnalyticsUseCase) SearchApps(ctx context.Context, query string, spec domrepo.QuerySpec, limit int) ([]models.AppRef, error) {
	if query == "" {
		return nil, fmt.Errorf("search query required: %w", models.ErrInvalidParameter)
	}
	return uc.store.SearchApps(ctx, query, spec, limit)
}

// AppHistory returns one app's windowed rank series with explicit
// gaps. The caller supplies either a trailing window length or an
// explicit [from, to] range, never both.
func (uc *AnalyticsUseCase) AppHistory(ctx context.Context, spec domrepo.QuerySpec, windowDays int, from, to string) (models.RankHistory, error) {
	if spec.AppID == "" {
		return models.RankHistory{}, fmt.Errorf("app id required: %w", models.ErrInvalidParameter)
	}
	explicit := from != "" || to != ""
	if windowDays > 0 && explicit {
		return models.RankHistory{}, fmt.Errorf("window and explicit date range are mutually exclusive: %w", models.ErrInvalidParameter)
	}

	key := specKey("analytics:app_history", spec, windowDays, from, to)
	return cachedQuery(ctx, uc, "app_history", key, func() (models.RankHistory, error) {
		out := models.RankHistory{AppID: spec.AppID, Points: []models.RankHistoryPoint{}}

		var w *rankstats.Window
		var err error
		if explicit {
			fromD, ok := util.ParseDay(from)
			if !ok {
				return models.RankHistory{}, fmt.Errorf("bad from date %q: %w", from, models.ErrInvalidParameter)
			}
			toD, ok := util.ParseDay(to)
			if !ok {
				return models.RankHistory{}, fmt.Errorf("bad to date %q: %w", to, models.ErrInvalidParameter)
			}
			w, err = uc.res.FixedWindow(ctx, spec, fromD, toD)
		} else {
			w, err = uc.res.Window(ctx, spec, normDays(windowDays))
		}
		if err != nil {
			return models.RankHistory{}, err
		}
		if w == nil {
			return out, nil
		}

		byDay := w.RowsByDay()
		for _, d := range w.CalendarDays() {
			dayKey := util.DayString(d)
			pt := models.RankHistoryPoint{Date: dayKey}
			// Best standing of the day when the app sits on several
			// chart rows.
			rows := byDay[dayKey]
			rankstats.OrderByStanding(rows)
			if len(rows) > 0 {
				pt.Rank = rows[0].Rank
				pt.Index = rows[0].Index
			}
			out.Points = append(out.Points, pt)
		}
		out.Meta = models.SeriesMeta{Samples: len(w.Rows), LatestDate: util.DayString(w.End), WindowDays: w.Days}
		return out, nil
	})
}
