package forecast

import (
	"math"
	"time"

	"RankPulse/internal/domain/models"
)

// DefaultMaxRank is the chart length used to squash ranks into [0,1].
const DefaultMaxRank = 200

// SeriesDay is one calendar day of a filled per-app series. Known is
// false only for leading days before the first observed rank; those
// days cannot participate in any training or inference window.
type SeriesDay struct {
	Date  time.Time
	Rank  int
	Known bool
}

// Sample is one supervised window: a lookback-length feature sequence
// and the next horizon days' normalized ranks.
type Sample struct {
	X [][]float64
	Y []float64
}

// InputDim is the per-day feature width: normalized rank, first
// difference, and the two weekday cycle components.
const InputDim = 4

// DatasetBuilder turns raw observations into filled daily series and
// supervised windows.
type DatasetBuilder struct {
	maxRank int
}

func NewDatasetBuilder(maxRank int) *DatasetBuilder {
	if maxRank <= 0 {
		maxRank = DefaultMaxRank
	}
	return &DatasetBuilder{maxRank: maxRank}
}

func (b *DatasetBuilder) MaxRank() int { return b.maxRank }

// Normalize squashes a rank into [0,1] after clipping to [1, maxRank].
func (b *DatasetBuilder) Normalize(rank int) float64 {
	if rank < 1 {
		rank = 1
	}
	if rank > b.maxRank {
		rank = b.maxRank
	}
	return float64(rank) / float64(b.maxRank)
}

// Denormalize maps a predicted normalized rank back to a chart
// position, clipped to [1, maxRank].
func (b *DatasetBuilder) Denormalize(pred float64) int {
	v := pred * float64(b.maxRank)
	if v < 1 {
		v = 1
	}
	if v > float64(b.maxRank) {
		v = float64(b.maxRank)
	}
	return int(math.Round(v))
}

// FilledSeries builds a contiguous daily grid over [start, end],
// forward-filling each gap day with the most recent known effective
// rank. Days before the first known rank are marked unknown. Multiple
// observations on one day keep the best (lowest) effective rank.
func (b *DatasetBuilder) FilledSeries(rows []models.RankingObservation, start, end time.Time) []SeriesDay {
	byDay := map[string]int{}
	for _, row := range rows {
		r, ok := row.EffectiveRank()
		if !ok {
			continue
		}
		key := row.ChartDate.Format("2006-01-02")
		if best, seen := byDay[key]; !seen || r < best {
			byDay[key] = r
		}
	}

	var series []SeriesDay
	last := 0
	known := false
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if r, ok := byDay[d.Format("2006-01-02")]; ok {
			last = r
			known = true
		}
		series = append(series, SeriesDay{Date: d, Rank: last, Known: known})
	}
	return series
}

// features computes the per-day input vector at position i of a
// series whose ranks were pre-normalized into norm.
func dayFeatures(day SeriesDay, norm []float64, i int) []float64 {
	rn := norm[i]
	prev := rn
	if i > 0 {
		prev = norm[i-1]
	}
	wd := float64(day.Date.Weekday())
	return []float64{
		rn,
		rn - prev,
		math.Sin(2 * math.Pi * wd / 7.0),
		math.Cos(2 * math.Pi * wd / 7.0),
	}
}

// usableFrom returns the index of the first known day, or -1 when the
// whole series is unknown.
func usableFrom(series []SeriesDay) int {
	for i, d := range series {
		if d.Known {
			return i
		}
	}
	return -1
}

// BuildSamples slides a (lookback, horizon) window over the usable
// part of the series. It returns zero samples when fewer than
// lookback+horizon usable days exist; the caller decides whether that
// is insufficient history.
func (b *DatasetBuilder) BuildSamples(series []SeriesDay, lookback, horizon int) []Sample {
	from := usableFrom(series)
	if from < 0 {
		return nil
	}
	series = series[from:]
	if len(series) < lookback+horizon {
		return nil
	}

	norm := make([]float64, len(series))
	for i, d := range series {
		norm[i] = b.Normalize(d.Rank)
	}

	var out []Sample
	for i := lookback; i <= len(series)-horizon; i++ {
		x := make([][]float64, lookback)
		for j := 0; j < lookback; j++ {
			x[j] = dayFeatures(series[i-lookback+j], norm, i-lookback+j)
		}
		y := make([]float64, horizon)
		for k := 0; k < horizon; k++ {
			y[k] = norm[i+k]
		}
		out = append(out, Sample{X: x, Y: y})
	}
	return out
}

// LatestWindow builds the single most recent lookback-length input
// sequence for inference. ok is false when the usable series is
// shorter than lookback.
func (b *DatasetBuilder) LatestWindow(series []SeriesDay, lookback int) ([][]float64, bool) {
	from := usableFrom(series)
	if from < 0 {
		return nil, false
	}
	series = series[from:]
	if len(series) < lookback {
		return nil, false
	}

	norm := make([]float64, len(series))
	for i, d := range series {
		norm[i] = b.Normalize(d.Rank)
	}
	start := len(series) - lookback
	x := make([][]float64, lookback)
	for j := 0; j < lookback; j++ {
		x[j] = dayFeatures(series[start+j], norm, start+j)
	}
	return x, true
}
