package usecase

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"RankPulse/internal/domain/models"
	domrepo "RankPulse/internal/domain/repository"
	pkgcache "RankPulse/pkg/cache"
	"RankPulse/pkg/util"
)

// fakeStore is an in-memory RankingStore for exercising the use cases
// without a database.
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

// fakeMetrics counts recorder calls.
type fakeMetrics struct {
	mu      sync.Mutex
	queries map[string]int
	hits    int
	misses  int
	errors  map[string]int
	ingest  int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{queries: map[string]int{}, errors: map[string]int{}}
}

func (m *fakeMetrics) RecordQuery(op string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries[op]++
}

func (m *fakeMetrics) RecordCache(_ string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *fakeMetrics) RecordInference(float64) {}

func (m *fakeMetrics) RecordIngest(rows int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingest += rows
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

var _ domrepo.Metrics = (*fakeMetrics)(nil)

// fakeCache stores JSON blobs in memory and counts sets.
type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	c.sets++
	return nil
}

func (c *fakeCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	b, ok := c.data[key]
	c.mu.Unlock()
	if !ok {
		return pkgcache.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *fakeCache) DeleteByPattern(context.Context, string) error { return nil }

func (c *fakeCache) Exists(_ context.Context, keys ...string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if _, ok := c.data[k]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func (c *fakeCache) Increment(context.Context, string) (int64, error) { return 0, nil }

func (c *fakeCache) Expire(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}

func (c *fakeCache) MSet(context.Context, map[string]interface{}, time.Duration) error { return nil }

func (c *fakeCache) MGet(context.Context, ...string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (c *fakeCache) TryLock(context.Context, string, time.Duration) (bool, error) { return true, nil }

func (c *fakeCache) Unlock(context.Context, string) error { return nil }

var _ pkgcache.Service = (*fakeCache)(nil)

func day(s string) time.Time {
	t, ok := util.ParseDay(s)
	if !ok {
		panic("bad day literal: " + s)
	}
	return t
}

func intp(v int) *int { return &v }

// obs builds a minimal observation for the default cn/iphone/free chart.
func obs(date, appID string, rank *int) models.RankingObservation {
	return models.RankingObservation{
		ChartDate: day(date),
		Country:   "cn",
		Device:    "iphone",
		Chart:     models.ChartFree,
		AppID:     appID,
		AppName:   "app-" + appID,
		Rank:      rank,
	}
}

func baseSpec() domrepo.QuerySpec {
	return domrepo.QuerySpec{Country: "cn", Device: "iphone", Chart: models.ChartFree}
}
