package rankstats

import (
	"context"
	"sort"

	"RankPulse/internal/domain/models"
	domrepo "RankPulse/internal/domain/repository"
	"RankPulse/pkg/util"
)

// Aggregator computes the windowed descriptive analytics: top-N
// standing, volatility trend, stability rankings, genre dynamics and
// overview KPIs. All operations are pure reads; absence of data yields
// well-typed empty results, never an error.
type Aggregator struct {
	res *Resolver
}

func NewAggregator(res *Resolver) *Aggregator {
	return &Aggregator{res: res}
}

// OrderByStanding sorts rows by primary rank ascending with nulls
// last, ties broken by secondary rank under the same rule, then app id
// for reproducibility. This ordering is used everywhere a "current
// standing" must be chosen.
func OrderByStanding(rows []models.RankingObservation) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if c := compareNullable(a.Rank, b.Rank); c != 0 {
			return c < 0
		}
		if c := compareNullable(a.Index, b.Index); c != 0 {
			return c < 0
		}
		return a.AppID < b.AppID
	})
}

// compareNullable orders two optional ranks with nil sorted last.
func compareNullable(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

// TopN resolves the latest single day's chart standing.
func (a *Aggregator) TopN(ctx context.Context, spec domrepo.QuerySpec, n int) (models.TopNResult, error) {
	latest, ok, err := a.res.LatestDate(ctx, spec)
	if err != nil {
		return models.TopNResult{}, err
	}
	if !ok {
		return models.TopNResult{Entries: []models.TopNEntry{}}, nil
	}
	w, err := a.res.FixedWindow(ctx, spec, latest, latest)
	if err != nil {
		return models.TopNResult{}, err
	}
	rows := w.Rows
	OrderByStanding(rows)
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	entries := make([]models.TopNEntry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, models.TopNEntry{
			Position:  i + 1,
			AppID:     row.AppID,
			AppName:   row.AppName,
			Publisher: row.Publisher,
			Genre:     row.Genre,
			Rank:      row.Rank,
			Index:     row.Index,
			Price:     row.Price,
			IsAd:      row.IsAd,
		})
	}
	return models.TopNResult{
		Date:    util.DayString(latest),
		Entries: entries,
		Meta:    models.SeriesMeta{Samples: len(w.Rows), LatestDate: util.DayString(latest), WindowDays: 1},
	}, nil
}

// VolatilityTrend computes the per-day population standard deviation
// of primary ranks across the window. A day with zero rankable rows
// carries a nil value, not 0.
func (a *Aggregator) VolatilityTrend(ctx context.Context, spec domrepo.QuerySpec, days int) (models.VolatilityTrend, error) {
	w, err := a.res.Window(ctx, spec, days)
	if err != nil {
		return models.VolatilityTrend{}, err
	}
	if w == nil {
		return models.VolatilityTrend{Dates: []string{}, Values: []*float64{}}, nil
	}
	byDay := w.RowsByDay()
	dates := make([]string, 0, w.Days)
	values := make([]*float64, 0, w.Days)
	for _, d := range w.CalendarDays() {
		key := util.DayString(d)
		dates = append(dates, key)
		var ranks []float64
		for _, row := range byDay[key] {
			if row.Rank != nil {
				ranks = append(ranks, float64(*row.Rank))
			}
		}
		if len(ranks) == 0 {
			values = append(values, nil)
			continue
		}
		sd := PopStdDev(ranks)
		values = append(values, &sd)
	}
	return models.VolatilityTrend{
		Dates:  dates,
		Values: values,
		Meta:   models.SeriesMeta{Samples: len(w.Rows), LatestDate: util.DayString(w.End), WindowDays: w.Days},
	}, nil
}

// StabilityTopK ranks apps by effective-rank dispersion within the
// window. Apps present on fewer than minPresence days are excluded;
// minPresence <= 0 selects the default ceil(0.6 x days). Stable sorts
// by ascending stddev then ascending mean; volatile by descending
// stddev then ascending mean.
func (a *Aggregator) StabilityTopK(ctx context.Context, spec domrepo.QuerySpec, days, k, minPresence int, volatile bool) (models.StabilityRanking, error) {
	if minPresence <= 0 {
		minPresence = MinPresence(days)
	}
	out := models.StabilityRanking{
		Volatile:    volatile,
		MinPresence: minPresence,
		Entries:     []models.StabilityScore{},
	}
	w, err := a.res.Window(ctx, spec, days)
	if err != nil {
		return models.StabilityRanking{}, err
	}
	if w == nil {
		return out, nil
	}

	type appAgg struct {
		name  string
		ranks []float64
	}
	// Best effective rank per app per day; a day counts toward
	// presence once even when the app sits on several charts.
	perDay := make(map[string]map[string]int)
	names := make(map[string]string)
	for _, row := range w.Rows {
		er, ok := row.EffectiveRank()
		if !ok {
			continue
		}
		day := util.DayString(row.ChartDate)
		if perDay[row.AppID] == nil {
			perDay[row.AppID] = make(map[string]int)
		}
		if cur, seen := perDay[row.AppID][day]; !seen || er < cur {
			perDay[row.AppID][day] = er
		}
		names[row.AppID] = row.AppName
	}

	scores := make([]models.StabilityScore, 0, len(perDay))
	for appID, dayRanks := range perDay {
		if len(dayRanks) < minPresence {
			continue
		}
		ranks := make([]float64, 0, len(dayRanks))
		for _, r := range dayRanks {
			ranks = append(ranks, float64(r))
		}
		scores = append(scores, models.StabilityScore{
			AppID:    appID,
			AppName:  names[appID],
			Presence: len(dayRanks),
			MeanRank: Mean(ranks),
			StdDev:   PopStdDev(ranks),
		})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.StdDev != b.StdDev {
			if volatile {
				return a.StdDev > b.StdDev
			}
			return a.StdDev < b.StdDev
		}
		if a.MeanRank != b.MeanRank {
			return a.MeanRank < b.MeanRank
		}
		return a.AppID < b.AppID
	})
	if k > 0 && len(scores) > k {
		scores = scores[:k]
	}
	out.Entries = scores
	out.Meta = models.SeriesMeta{Samples: len(w.Rows), LatestDate: util.DayString(w.End), WindowDays: w.Days}
	return out, nil
}

// GenreTrend reports per-day distinct app counts and the average of
// per-app best effective ranks, optionally narrowed to one genre.
func (a *Aggregator) GenreTrend(ctx context.Context, spec domrepo.QuerySpec, days int, genre string) (models.GenreTrend, error) {
	spec.Genre = genre
	out := models.GenreTrend{Genre: genre, Points: []models.GenreTrendPoint{}}
	w, err := a.res.Window(ctx, spec, days)
	if err != nil {
		return models.GenreTrend{}, err
	}
	if w == nil {
		return out, nil
	}
	byDay := w.RowsByDay()
	for _, d := range w.CalendarDays() {
		key := util.DayString(d)
		apps := make(map[string]struct{})
		best := make(map[string]int)
		for _, row := range byDay[key] {
			apps[row.AppID] = struct{}{}
			er, ok := row.EffectiveRank()
			if !ok {
				continue
			}
			if cur, seen := best[row.AppID]; !seen || er < cur {
				best[row.AppID] = er
			}
		}
		pt := models.GenreTrendPoint{Date: key, AppCount: len(apps)}
		if len(best) > 0 {
			ranks := make([]float64, 0, len(best))
			for _, r := range best {
				ranks = append(ranks, float64(r))
			}
			avg := Mean(ranks)
			pt.AvgBestRank = &avg
		}
		out.Points = append(out.Points, pt)
	}
	out.Meta = models.SeriesMeta{Samples: len(w.Rows), LatestDate: util.DayString(w.End), WindowDays: w.Days}
	return out, nil
}

// GrowthPct applies the genre-growth convention: a genre absent from
// the previous window grows 100% if it has any current apps, else 0%.
func GrowthPct(cur, prev int) float64 {
	if prev == 0 {
		if cur > 0 {
			return 100.0
		}
		return 0.0
	}
	return float64(cur-prev) / float64(prev) * 100.0
}

// GenreGrowth compares per-genre distinct-app counts between the
// current window and the immediately preceding window of equal length.
func (a *Aggregator) GenreGrowth(ctx context.Context, spec domrepo.QuerySpec, days int) (models.GenreGrowth, error) {
	out := models.GenreGrowth{Entries: []models.GenreGrowthEntry{}}
	cur, err := a.res.Window(ctx, spec, days)
	if err != nil {
		return models.GenreGrowth{}, err
	}
	if cur == nil {
		return out, nil
	}
	prev, err := a.res.PreviousWindow(ctx, spec, cur)
	if err != nil {
		return models.GenreGrowth{}, err
	}

	curCounts := distinctAppsPerGenre(cur.Rows)
	prevCounts := distinctAppsPerGenre(prev.Rows)

	genres := make([]string, 0, len(curCounts)+len(prevCounts))
	seen := make(map[string]bool)
	for g := range curCounts {
		genres = append(genres, g)
		seen[g] = true
	}
	for g := range prevCounts {
		if !seen[g] {
			genres = append(genres, g)
		}
	}
	sort.Strings(genres)

	for _, g := range genres {
		c, p := curCounts[g], prevCounts[g]
		out.Entries = append(out.Entries, models.GenreGrowthEntry{
			Genre:     g,
			Current:   c,
			Previous:  p,
			GrowthPct: GrowthPct(c, p),
		})
	}
	out.Meta = models.SeriesMeta{Samples: len(cur.Rows), LatestDate: util.DayString(cur.End), WindowDays: cur.Days}
	return out, nil
}

// Overview assembles the headline KPIs for a window.
func (a *Aggregator) Overview(ctx context.Context, spec domrepo.QuerySpec, days int) (models.Overview, error) {
	cur, err := a.res.Window(ctx, spec, days)
	if err != nil {
		return models.Overview{}, err
	}
	if cur == nil {
		return models.Overview{}, nil
	}
	prev, err := a.res.PreviousWindow(ctx, spec, cur)
	if err != nil {
		return models.Overview{}, err
	}

	curApps := distinctApps(cur.Rows)
	prevApps := distinctApps(prev.Rows)
	newEntrants, dropped := 0, 0
	for id := range curApps {
		if !prevApps[id] {
			newEntrants++
		}
	}
	for id := range prevApps {
		if !curApps[id] {
			dropped++
		}
	}

	out := models.Overview{
		NewEntrants: newEntrants,
		Dropped:     dropped,
		Meta:        models.SeriesMeta{Samples: len(cur.Rows), LatestDate: util.DayString(cur.End), WindowDays: cur.Days},
	}

	counts := distinctAppsPerGenre(cur.Rows)
	total := 0
	for _, c := range counts {
		total += c
	}
	topGenre, topCount := "", 0
	for _, g := range sortedKeys(counts) {
		if counts[g] > topCount {
			topGenre, topCount = g, counts[g]
		}
	}
	if total > 0 && topGenre != "" {
		out.TopGenre = topGenre
		out.TopGenreShare = Round2(float64(topCount) / float64(total) * 100.0)
	}

	// Volatility index: primary-rank dispersion on the latest day only.
	var latest []float64
	lastKey := util.DayString(cur.End)
	for _, row := range cur.Rows {
		if util.DayString(row.ChartDate) == lastKey && row.Rank != nil {
			latest = append(latest, float64(*row.Rank))
		}
	}
	if len(latest) > 0 {
		v := PopStdDev(latest)
		out.VolatilityIndex = &v
	}
	return out, nil
}

func distinctApps(rows []models.RankingObservation) map[string]bool {
	apps := make(map[string]bool, len(rows))
	for _, row := range rows {
		apps[row.AppID] = true
	}
	return apps
}

func distinctAppsPerGenre(rows []models.RankingObservation) map[string]int {
	byGenre := make(map[string]map[string]bool)
	for _, row := range rows {
		if row.Genre == "" {
			continue
		}
		if byGenre[row.Genre] == nil {
			byGenre[row.Genre] = make(map[string]bool)
		}
		byGenre[row.Genre][row.AppID] = true
	}
	counts := make(map[string]int, len(byGenre))
	for g, apps := range byGenre {
		counts[g] = len(apps)
	}
	return counts
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
