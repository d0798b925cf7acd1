package rankstats

import (
	"context"
	"math"
	"testing"

	"RankPulse/internal/domain/models"
	domrepo "RankPulse/internal/domain/repository"
)

func newAggregator(rows []models.RankingObservation) *Aggregator {
	return NewAggregator(NewResolver(&fakeStore{rows: rows}))
}

func baseSpec() domrepo.QuerySpec {
	return domrepo.QuerySpec{Country: "cn", Device: "iphone", Chart: models.ChartFree}
}

func TestTopNNullsSortLast(t *testing.T) {
	rows := []models.RankingObservation{
		obs("2025-03-10", "c", nil, intp(2)),
		obs("2025-03-10", "a", intp(1), intp(1)),
		obs("2025-03-10", "d", nil, nil),
		obs("2025-03-10", "b", intp(2), nil),
		obs("2025-03-10", "e", nil, intp(1)),
	}
	res, err := newAggregator(rows).TopN(context.Background(), baseSpec(), 10)
	if err != nil {
		t.Fatalf("TopN: %v", err)
	}
	got := make([]string, 0, len(res.Entries))
	for _, e := range res.Entries {
		got = append(got, e.AppID)
	}
	// Non-null primary first by rank; null-primary rows after, ordered
	// by secondary with nulls last again.
	want := []string{"a", "b", "e", "c", "d"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if res.Entries[0].Position != 1 || res.Entries[4].Position != 5 {
		t.Fatalf("positions not renumbered: %+v", res.Entries)
	}
}

func TestTopNNoDataDegradesToEmpty(t *testing.T) {
	res, err := newAggregator(nil).TopN(context.Background(), baseSpec(), 10)
	if err != nil {
		t.Fatalf("TopN on empty store must not error, got %v", err)
	}
	if len(res.Entries) != 0 {
		t.Fatalf("expected empty entries, got %d", len(res.Entries))
	}
}

func TestVolatilityTrendGapDayIsNil(t *testing.T) {
	rows := []models.RankingObservation{
		obs("2025-03-08", "a", intp(1), nil),
		obs("2025-03-08", "b", intp(3), nil),
		// 2025-03-09: only a null-rank row; day must have no value.
		obs("2025-03-09", "a", nil, intp(5)),
		obs("2025-03-10", "a", intp(2), nil),
		obs("2025-03-10", "b", intp(6), nil),
	}
	res, err := newAggregator(rows).VolatilityTrend(context.Background(), baseSpec(), 3)
	if err != nil {
		t.Fatalf("VolatilityTrend: %v", err)
	}
	if len(res.Dates) != 3 || len(res.Values) != 3 {
		t.Fatalf("expected 3 calendar days, got %d/%d", len(res.Dates), len(res.Values))
	}
	if res.Values[0] == nil || math.Abs(*res.Values[0]-1.0) > 1e-12 {
		t.Fatalf("day 1 stddev = %v, want 1.0", res.Values[0])
	}
	if res.Values[1] != nil {
		t.Fatalf("day with no rankable rows must be nil, got %v", *res.Values[1])
	}
	if res.Values[2] == nil || math.Abs(*res.Values[2]-2.0) > 1e-12 {
		t.Fatalf("day 3 stddev = %v, want 2.0", res.Values[2])
	}
}

func TestStabilityScoresUsePopulationStdDev(t *testing.T) {
	// App a: effective ranks [1,2,1,3,2] across 5 days, secondary rank
	// filling a missing primary on day 3.
	rows := []models.RankingObservation{
		obs("2025-03-06", "a", intp(1), nil),
		obs("2025-03-07", "a", intp(2), nil),
		obs("2025-03-08", "a", nil, intp(1)),
		obs("2025-03-09", "a", intp(3), nil),
		obs("2025-03-10", "a", intp(2), nil),
	}
	res, err := newAggregator(rows).StabilityTopK(context.Background(), baseSpec(), 5, 10, 3, false)
	if err != nil {
		t.Fatalf("StabilityTopK: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(res.Entries))
	}
	e := res.Entries[0]
	if e.Presence != 5 {
		t.Fatalf("presence = %d, want 5", e.Presence)
	}
	if math.Abs(e.MeanRank-1.8) > 1e-12 {
		t.Fatalf("mean = %v, want 1.8", e.MeanRank)
	}
	if math.Abs(e.StdDev-math.Sqrt(0.56)) > 1e-12 {
		t.Fatalf("stddev = %v, want sqrt(0.56)", e.StdDev)
	}
}

func TestStabilityMinPresenceFilterAndDefault(t *testing.T) {
	var rows []models.RankingObservation
	days := []string{
		"2025-03-01", "2025-03-02", "2025-03-03", "2025-03-04", "2025-03-05",
		"2025-03-06", "2025-03-07", "2025-03-08", "2025-03-09", "2025-03-10",
	}
	for i, d := range days {
		rows = append(rows, obs(d, "steady", intp(5), nil))
		if i < 5 {
			rows = append(rows, obs(d, "flaky", intp(1), nil))
		}
	}
	// Default min presence for 10 days = ceil(6.0) = 6; flaky (5 days)
	// is excluded.
	res, err := newAggregator(rows).StabilityTopK(context.Background(), baseSpec(), 10, 10, 0, false)
	if err != nil {
		t.Fatalf("StabilityTopK: %v", err)
	}
	if res.MinPresence != 6 {
		t.Fatalf("default min presence = %d, want 6", res.MinPresence)
	}
	if len(res.Entries) != 1 || res.Entries[0].AppID != "steady" {
		t.Fatalf("expected only steady to survive, got %+v", res.Entries)
	}
}

func TestStabilityTieBreakByMeanRank(t *testing.T) {
	// Both apps are perfectly stable (stddev 0); the one with the
	// better mean rank sorts first.
	var rows []models.RankingObservation
	for _, d := range []string{"2025-03-08", "2025-03-09", "2025-03-10"} {
		rows = append(rows, obs(d, "worse", intp(9), nil))
		rows = append(rows, obs(d, "better", intp(2), nil))
	}
	res, err := newAggregator(rows).StabilityTopK(context.Background(), baseSpec(), 3, 10, 1, false)
	if err != nil {
		t.Fatalf("StabilityTopK: %v", err)
	}
	if len(res.Entries) != 2 || res.Entries[0].AppID != "better" {
		t.Fatalf("tie-break by mean failed: %+v", res.Entries)
	}

	// Volatile ordering keeps the same tie-break direction.
	vol, err := newAggregator(rows).StabilityTopK(context.Background(), baseSpec(), 3, 10, 1, true)
	if err != nil {
		t.Fatalf("StabilityTopK volatile: %v", err)
	}
	if vol.Entries[0].AppID != "better" {
		t.Fatalf("volatile tie-break by mean failed: %+v", vol.Entries)
	}
}

func TestGenreTrendAverageOfBestRanks(t *testing.T) {
	rows := []models.RankingObservation{
		obs("2025-03-10", "a", intp(4), nil),
		obs("2025-03-10", "a", intp(2), nil), // same app, second chart row; best = 2
		obs("2025-03-10", "b", intp(6), nil),
	}
	for i := range rows {
		rows[i].Genre = "Games"
	}
	res, err := newAggregator(rows).GenreTrend(context.Background(), baseSpec(), 1, "Games")
	if err != nil {
		t.Fatalf("GenreTrend: %v", err)
	}
	if len(res.Points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(res.Points))
	}
	pt := res.Points[0]
	if pt.AppCount != 2 {
		t.Fatalf("app count = %d, want 2", pt.AppCount)
	}
	if pt.AvgBestRank == nil || math.Abs(*pt.AvgBestRank-4.0) > 1e-12 {
		t.Fatalf("avg best rank = %v, want 4.0", pt.AvgBestRank)
	}
}

func TestGenreTrendCountsUnrankedApps(t *testing.T) {
	rows := []models.RankingObservation{
		obs("2025-03-10", "a", intp(3), nil),
		obs("2025-03-10", "b", nil, nil), // present on the chart page, no usable rank
	}
	for i := range rows {
		rows[i].Genre = "Games"
	}
	res, err := newAggregator(rows).GenreTrend(context.Background(), baseSpec(), 1, "Games")
	if err != nil {
		t.Fatalf("GenreTrend: %v", err)
	}
	pt := res.Points[0]
	if pt.AppCount != 2 {
		t.Fatalf("app count = %d, want 2", pt.AppCount)
	}
	if pt.AvgBestRank == nil || math.Abs(*pt.AvgBestRank-3.0) > 1e-12 {
		t.Fatalf("avg best rank = %v, want 3.0", pt.AvgBestRank)
	}
}

func TestGenreGrowthAgainstPreviousWindow(t *testing.T) {
	var rows []models.RankingObservation
	add := func(date, appID, genre string) {
		r := obs(date, appID, intp(1), nil)
		r.Genre = genre
		rows = append(rows, r)
	}
	// Previous window (03-06..03-07): Games has 1 app.
	add("2025-03-06", "a", "Games")
	// Current window (03-08..03-09): Games has 2 apps, Social is new.
	add("2025-03-08", "a", "Games")
	add("2025-03-09", "b", "Games")
	add("2025-03-09", "c", "Social")

	res, err := newAggregator(rows).GenreGrowth(context.Background(), baseSpec(), 2)
	if err != nil {
		t.Fatalf("GenreGrowth: %v", err)
	}
	byGenre := map[string]models.GenreGrowthEntry{}
	for _, e := range res.Entries {
		byGenre[e.Genre] = e
	}
	if g := byGenre["Games"]; g.Current != 2 || g.Previous != 1 || math.Abs(g.GrowthPct-100.0) > 1e-12 {
		t.Fatalf("Games growth = %+v", g)
	}
	if g := byGenre["Social"]; g.Current != 1 || g.Previous != 0 || math.Abs(g.GrowthPct-100.0) > 1e-12 {
		t.Fatalf("Social growth = %+v", g)
	}
}

func TestOverviewEntrantsDroppedAndVolatilityIndex(t *testing.T) {
	var rows []models.RankingObservation
	add := func(date, appID, genre string, rank int) {
		r := obs(date, appID, intp(rank), nil)
		r.Genre = genre
		rows = append(rows, r)
	}
	// Previous window (03-06..03-07).
	add("2025-03-06", "old", "Games", 1)
	add("2025-03-07", "stay", "Games", 2)
	// Current window (03-08..03-09).
	add("2025-03-08", "stay", "Games", 2)
	add("2025-03-09", "stay", "Games", 4)
	add("2025-03-09", "fresh", "Social", 8)

	res, err := newAggregator(rows).Overview(context.Background(), baseSpec(), 2)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if res.NewEntrants != 1 {
		t.Fatalf("new entrants = %d, want 1", res.NewEntrants)
	}
	if res.Dropped != 1 {
		t.Fatalf("dropped = %d, want 1", res.Dropped)
	}
	if res.TopGenre != "Games" {
		t.Fatalf("top genre = %q, want Games", res.TopGenre)
	}
	// Latest day ranks are [4, 8]: population stddev 2.0.
	if res.VolatilityIndex == nil || math.Abs(*res.VolatilityIndex-2.0) > 1e-12 {
		t.Fatalf("volatility index = %v, want 2.0", res.VolatilityIndex)
	}
}
