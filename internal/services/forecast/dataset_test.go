package forecast

import (
	"math"
	"testing"
	"time"

	"RankPulse/internal/domain/models"
	"RankPulse/pkg/util"
)

func seriesRow(date string, rank int) models.RankingObservation {
	d, _ := util.ParseDay(date)
	r := rank
	return models.RankingObservation{
		ChartDate: d,
		Country:   "cn",
		Device:    "iphone",
		Chart:     models.ChartFree,
		AppID:     "app",
		Rank:      &r,
	}
}

func TestNormalizeDenormalizeRoundTrip(t *testing.T) {
	b := NewDatasetBuilder(DefaultMaxRank)
	for r := 1; r <= DefaultMaxRank; r++ {
		if got := b.Denormalize(b.Normalize(r)); got != r {
			t.Fatalf("round trip for rank %d gave %d", r, got)
		}
	}
	// Clipping on both ends.
	if b.Normalize(0) != b.Normalize(1) {
		t.Fatalf("rank below 1 must clip to 1")
	}
	if b.Normalize(5000) != 1.0 {
		t.Fatalf("rank above max must normalize to 1.0")
	}
	if b.Denormalize(-0.5) != 1 {
		t.Fatalf("negative prediction must clip to 1")
	}
	if b.Denormalize(2.0) != DefaultMaxRank {
		t.Fatalf("overshooting prediction must clip to max rank")
	}
}

func TestFilledSeriesForwardFillAndLeadingUnknown(t *testing.T) {
	b := NewDatasetBuilder(DefaultMaxRank)
	start, _ := util.ParseDay("2025-03-01")
	end, _ := util.ParseDay("2025-03-06")
	rows := []models.RankingObservation{
		seriesRow("2025-03-03", 10),
		seriesRow("2025-03-05", 7),
	}
	series := b.FilledSeries(rows, start, end)
	if len(series) != 6 {
		t.Fatalf("expected 6 days, got %d", len(series))
	}
	if series[0].Known || series[1].Known {
		t.Fatalf("days before first observation must be unknown")
	}
	wantRanks := []int{0, 0, 10, 10, 7, 7}
	for i, want := range wantRanks[2:] {
		d := series[i+2]
		if !d.Known || d.Rank != want {
			t.Fatalf("day %d = %+v, want known rank %d", i+2, d, want)
		}
	}
}

func TestFilledSeriesKeepsBestRankPerDay(t *testing.T) {
	b := NewDatasetBuilder(DefaultMaxRank)
	day, _ := util.ParseDay("2025-03-01")
	rows := []models.RankingObservation{
		seriesRow("2025-03-01", 30),
		seriesRow("2025-03-01", 12),
	}
	series := b.FilledSeries(rows, day, day)
	if len(series) != 1 || series[0].Rank != 12 {
		t.Fatalf("expected best rank 12, got %+v", series)
	}
}

func TestBuildSamplesCountAndShape(t *testing.T) {
	b := NewDatasetBuilder(DefaultMaxRank)
	start, _ := util.ParseDay("2025-03-01")
	var series []SeriesDay
	for i := 0; i < 12; i++ {
		series = append(series, SeriesDay{Date: start.AddDate(0, 0, i), Rank: i + 1, Known: true})
	}
	samples := b.BuildSamples(series, 5, 3)
	// Offsets i in [lookback, len-horizon]: 12-5-3+1 = 5 windows.
	if len(samples) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(samples))
	}
	s := samples[0]
	if len(s.X) != 5 || len(s.X[0]) != InputDim || len(s.Y) != 3 {
		t.Fatalf("sample shape = %dx%d/%d", len(s.X), len(s.X[0]), len(s.Y))
	}
	// First window: days 1..5, targets days 6..8 normalized.
	for k := 0; k < 3; k++ {
		want := float64(6+k) / float64(DefaultMaxRank)
		if math.Abs(s.Y[k]-want) > 1e-12 {
			t.Fatalf("target[%d] = %v, want %v", k, s.Y[k], want)
		}
	}
}

func TestBuildSamplesShortSeriesYieldsNone(t *testing.T) {
	b := NewDatasetBuilder(DefaultMaxRank)
	start, _ := util.ParseDay("2025-03-01")
	var series []SeriesDay
	for i := 0; i < 20; i++ {
		series = append(series, SeriesDay{Date: start.AddDate(0, 0, i), Rank: 5, Known: true})
	}
	if got := b.BuildSamples(series, 30, 7); got != nil {
		t.Fatalf("20 days against lookback 30 must yield no samples, got %d", len(got))
	}
}

func TestBuildSamplesSkipsLeadingUnknownDays(t *testing.T) {
	b := NewDatasetBuilder(DefaultMaxRank)
	start, _ := util.ParseDay("2025-03-01")
	var series []SeriesDay
	// 3 unknown leading days, then 8 known.
	for i := 0; i < 11; i++ {
		series = append(series, SeriesDay{Date: start.AddDate(0, 0, i), Rank: 4, Known: i >= 3})
	}
	samples := b.BuildSamples(series, 5, 2)
	// Usable days = 8: 8-5-2+1 = 2 windows.
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples over the usable tail, got %d", len(samples))
	}
}

func TestDayFeaturesWeekdayCycleAndDiff(t *testing.T) {
	b := NewDatasetBuilder(DefaultMaxRank)
	// 2025-03-03 is a Monday.
	start, _ := util.ParseDay("2025-03-03")
	series := []SeriesDay{
		{Date: start, Rank: 100, Known: true},
		{Date: start.AddDate(0, 0, 1), Rank: 50, Known: true},
	}
	x, ok := b.LatestWindow(series, 2)
	if !ok {
		t.Fatalf("LatestWindow failed")
	}
	// First day of the window has no prior: diff must be 0.
	if x[0][1] != 0 {
		t.Fatalf("leading diff = %v, want 0", x[0][1])
	}
	wantDiff := b.Normalize(50) - b.Normalize(100)
	if math.Abs(x[1][1]-wantDiff) > 1e-12 {
		t.Fatalf("diff = %v, want %v", x[1][1], wantDiff)
	}
	wd := float64(time.Monday)
	if math.Abs(x[0][2]-math.Sin(2*math.Pi*wd/7)) > 1e-12 || math.Abs(x[0][3]-math.Cos(2*math.Pi*wd/7)) > 1e-12 {
		t.Fatalf("weekday cycle features wrong: %v", x[0])
	}
}

func TestLatestWindowInsufficient(t *testing.T) {
	b := NewDatasetBuilder(DefaultMaxRank)
	start, _ := util.ParseDay("2025-03-01")
	series := []SeriesDay{{Date: start, Rank: 1, Known: true}}
	if _, ok := b.LatestWindow(series, 5); ok {
		t.Fatalf("1 usable day must not produce a 5-day window")
	}
}
