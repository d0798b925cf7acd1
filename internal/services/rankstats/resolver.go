package rankstats

import (
	"context"
	"fmt"
	"time"

	"RankPulse/internal/domain/models"
	domrepo "RankPulse/internal/domain/repository"
	"RankPulse/pkg/util"
)

// Window is a resolved contiguous calendar span with the sparse rows
// that fell inside it. Rows are ordered by date ascending; missing
// days are represented by absence, never dropped from the axis.
type Window struct {
	Start time.Time
	End   time.Time
	Days  int
	Rows  []models.RankingObservation
}

// CalendarDays returns the full date axis of the window.
func (w *Window) CalendarDays() []time.Time {
	return util.CalendarDays(w.Start, w.End)
}

// RowsByDay left-joins the sparse rows onto the calendar axis, keyed
// by the YYYY-MM-DD day string. Days with no rows have no entry.
func (w *Window) RowsByDay() map[string][]models.RankingObservation {
	byDay := make(map[string][]models.RankingObservation, w.Days)
	for _, row := range w.Rows {
		k := util.DayString(row.ChartDate)
		byDay[k] = append(byDay[k], row)
	}
	return byDay
}

// Resolver finds the latest available observation date for a filter
// set and fetches calendar windows anchored to it. "Latest" is always
// resolved per filter set, never assumed to be today.
type Resolver struct {
	store domrepo.RankingStore
}

func NewResolver(store domrepo.RankingStore) *Resolver {
	return &Resolver{store: store}
}

// LatestDate resolves the maximum observation date matching spec.
func (r *Resolver) LatestDate(ctx context.Context, spec domrepo.QuerySpec) (time.Time, bool, error) {
	return r.store.LatestDate(ctx, spec)
}

// Window fetches rows for [latest-days+1, latest]. Returns nil with no
// error when no data matches the filters; analytics callers degrade to
// empty results in that case.
func (r *Resolver) Window(ctx context.Context, spec domrepo.QuerySpec, days int) (*Window, error) {
	if days <= 0 {
		return nil, fmt.Errorf("window days must be positive: %w", models.ErrInvalidParameter)
	}
	latest, ok, err := r.store.LatestDate(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("resolve latest date: %w", err)
	}
	if !ok {
		return nil, nil
	}
	end := util.Day(latest)
	start := end.AddDate(0, 0, -(days - 1))
	return r.fetch(ctx, spec, start, end, days)
}

// PreviousWindow fetches the window of equal length immediately
// preceding cur, sharing its filters.
func (r *Resolver) PreviousWindow(ctx context.Context, spec domrepo.QuerySpec, cur *Window) (*Window, error) {
	end := cur.Start.AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(cur.Days - 1))
	return r.fetch(ctx, spec, start, end, cur.Days)
}

// FixedWindow fetches an explicitly bounded window.
func (r *Resolver) FixedWindow(ctx context.Context, spec domrepo.QuerySpec, start, end time.Time) (*Window, error) {
	start, end = util.Day(start), util.Day(end)
	if end.Before(start) {
		return nil, fmt.Errorf("window end precedes start: %w", models.ErrInvalidParameter)
	}
	return r.fetch(ctx, spec, start, end, util.DaysBetween(start, end))
}

func (r *Resolver) fetch(ctx context.Context, spec domrepo.QuerySpec, start, end time.Time, days int) (*Window, error) {
	rows, err := r.store.RowsInRange(ctx, spec.WithRange(start, end))
	if err != nil {
		return nil, fmt.Errorf("window rows [%s..%s]: %w", util.DayString(start), util.DayString(end), err)
	}
	return &Window{Start: start, End: end, Days: days, Rows: rows}, nil
}
