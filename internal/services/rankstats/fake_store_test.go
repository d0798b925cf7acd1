package rankstats

import (
	"context"
	"sort"
	"strings"
	"time"

	"RankPulse/internal/domain/models"
	domrepo "RankPulse/internal/domain/repository"
	"RankPulse/pkg/util"
)

// fakeStore is an in-memory RankingStore for exercising the window
// algorithms without a database.
type fakeStore struct {
	rows []models.RankingObservation
}

func (s *fakeStore) matches(row models.RankingObservation, spec domrepo.QuerySpec) bool {
	if spec.Country != "" && row.Country != spec.Country {
		return false
	}
	if spec.Device != "" && row.Device != spec.Device {
		return false
	}
	if spec.Chart != "" && row.Chart != spec.Chart {
		return false
	}
	if spec.Genre != "" && row.Genre != spec.Genre {
		return false
	}
	if spec.AppID != "" && row.AppID != spec.AppID {
		return false
	}
	if !spec.From.IsZero() && row.ChartDate.Before(spec.From) {
		return false
	}
	if !spec.To.IsZero() && row.ChartDate.After(spec.To) {
		return false
	}
	return true
}

func (s *fakeStore) LatestDate(_ context.Context, spec domrepo.QuerySpec) (time.Time, bool, error) {
	var latest time.Time
	found := false
	for _, row := range s.rows {
		if s.matches(row, spec) && (!found || row.ChartDate.After(latest)) {
			latest = row.ChartDate
			found = true
		}
	}
	return latest, found, nil
}

func (s *fakeStore) RowsInRange(_ context.Context, spec domrepo.QuerySpec) ([]models.RankingObservation, error) {
	var out []models.RankingObservation
	for _, row := range s.rows {
		if s.matches(row, spec) {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChartDate.Before(out[j].ChartDate) })
	return out, nil
}

func (s *fakeStore) MetaOptions(context.Context) (models.MetaOptions, error) {
	return models.MetaOptions{}, nil
}

func (s *fakeStore) SearchApps(_ context.Context, q string, spec domrepo.QuerySpec, limit int) ([]models.AppRef, error) {
	var out []models.AppRef
	seen := map[string]bool{}
	for _, row := range s.rows {
		if !s.matches(row, spec) || seen[row.AppID] {
			continue
		}
		if row.AppID == q || strings.Contains(row.AppName, q) {
			seen[row.AppID] = true
			out = append(out, models.AppRef{AppID: row.AppID, AppName: row.AppName, Publisher: row.Publisher})
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertObservations(_ context.Context, rows []models.RankingObservation) error {
	s.rows = append(s.rows, rows...)
	return nil
}

var _ domrepo.RankingStore = (*fakeStore)(nil)

func day(s string) time.Time {
	t, ok := util.ParseDay(s)
	if !ok {
		panic("bad day literal: " + s)
	}
	return t
}

func intp(v int) *int { return &v }

func floatp(v float64) *float64 { return &v }

// obs builds a minimal observation for the default cn/iphone/free chart.
func obs(date, appID string, rank, index *int) models.RankingObservation {
	return models.RankingObservation{
		ChartDate: day(date),
		Country:   "cn",
		Device:    "iphone",
		Chart:     models.ChartFree,
		AppID:     appID,
		AppName:   "app-" + appID,
		Rank:      rank,
		Index:     index,
	}
}
