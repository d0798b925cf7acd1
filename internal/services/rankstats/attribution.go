package rankstats

import (
	"context"
	"sort"

	"RankPulse/internal/domain/models"
	domrepo "RankPulse/internal/domain/repository"
	"RankPulse/pkg/util"
)

// Attributor scores binary indicators by the share of target variance
// each explains on its own. The target is deliberately the secondary
// rank field; the rest of the analytics prefer the primary field. Both
// behaviours are intentional and independent.
type Attributor struct {
	res *Resolver
}

func NewAttributor(res *Resolver) *Attributor {
	return &Attributor{res: res}
}

// indicator is one binary feature: a label plus a membership test.
type indicator struct {
	label string
	in    func(models.RankingObservation) bool
}

// Importance computes the single-factor variance-decomposition scores
// over a window. Each indicator is scored independently; correlated
// features are not disentangled. A ~constant target yields empty
// parallel vectors.
func (at *Attributor) Importance(ctx context.Context, spec domrepo.QuerySpec, days int) (models.FeatureImportance, error) {
	empty := models.FeatureImportance{
		Features:  []string{},
		Scores:    []float64{},
		RawScores: []float64{},
	}
	w, err := at.res.Window(ctx, spec, days)
	if err != nil {
		return models.FeatureImportance{}, err
	}
	if w == nil {
		return empty, nil
	}

	// Sample: rows carrying the secondary rank target.
	sample := make([]models.RankingObservation, 0, len(w.Rows))
	target := make([]float64, 0, len(w.Rows))
	for _, row := range w.Rows {
		if row.Index == nil {
			continue
		}
		sample = append(sample, row)
		target = append(target, float64(*row.Index))
	}
	meta := models.SeriesMeta{Samples: len(sample), LatestDate: util.DayString(w.End), WindowDays: w.Days}
	empty.Meta = meta
	if len(sample) == 0 {
		return empty, nil
	}

	meanTotal := Mean(target)
	varTotal := PopVariance(target)
	if varTotal < 1e-9 {
		return empty, nil
	}

	indicators := buildIndicators(sample)

	type scored struct {
		label string
		raw   float64
	}
	survivors := make([]scored, 0, len(indicators))
	for _, ind := range indicators {
		raw := varianceExplained(sample, target, meanTotal, varTotal, ind.in)
		if Round2(raw) == 0 {
			continue
		}
		survivors = append(survivors, scored{label: ind.label, raw: raw})
	}
	if len(survivors) == 0 {
		return empty, nil
	}

	sum := 0.0
	for _, s := range survivors {
		sum += s.raw
	}
	out := models.FeatureImportance{
		Features:  make([]string, 0, len(survivors)),
		Scores:    make([]float64, 0, len(survivors)),
		RawScores: make([]float64, 0, len(survivors)),
		Meta:      meta,
	}
	for _, s := range survivors {
		out.Features = append(out.Features, s.label)
		out.Scores = append(out.Scores, s.raw/sum)
		out.RawScores = append(out.RawScores, Round2(s.raw))
	}
	return out, nil
}

// varianceExplained computes R^2 for one binary split: the weighted
// squared deviations of the two group means from the total mean, over
// the total variance. Population formula throughout.
func varianceExplained(sample []models.RankingObservation, target []float64, meanTotal, varTotal float64, in func(models.RankingObservation) bool) float64 {
	var n1, n0 int
	var sum1, sum0 float64
	for i, row := range sample {
		if in(row) {
			n1++
			sum1 += target[i]
		} else {
			n0++
			sum0 += target[i]
		}
	}
	n := float64(len(sample))
	r2 := 0.0
	if n1 > 0 {
		d := sum1/float64(n1) - meanTotal
		r2 += float64(n1) / n * d * d
	}
	if n0 > 0 {
		d := sum0/float64(n0) - meanTotal
		r2 += float64(n0) / n * d * d
	}
	return r2 / varTotal
}

// buildIndicators assembles the full indicator set in a deterministic,
// reproducible order: fixed dimensions first, then in-window genres in
// sorted order, then the price flags. All accumulators are declared up
// front and populated in one pass over the sample.
func buildIndicators(sample []models.RankingObservation) []indicator {
	countries := map[string]bool{}
	devices := map[string]bool{}
	charts := map[string]bool{}
	genres := map[string]bool{}
	for _, row := range sample {
		if row.Country != "" {
			countries[row.Country] = true
		}
		if row.Device != "" {
			devices[row.Device] = true
		}
		if row.Chart != "" {
			charts[string(row.Chart)] = true
		}
		if row.Genre != "" {
			genres[row.Genre] = true
		}
	}

	var out []indicator
	for _, c := range sortedSet(countries) {
		c := c
		out = append(out, indicator{
			label: "country=" + c,
			in:    func(r models.RankingObservation) bool { return r.Country == c },
		})
	}
	for _, d := range sortedSet(devices) {
		d := d
		out = append(out, indicator{
			label: "device=" + d,
			in:    func(r models.RankingObservation) bool { return r.Device == d },
		})
	}
	for _, ct := range sortedSet(charts) {
		ct := ct
		out = append(out, indicator{
			label: "chart=" + ct,
			in:    func(r models.RankingObservation) bool { return string(r.Chart) == ct },
		})
	}
	for _, g := range sortedSet(genres) {
		g := g
		out = append(out, indicator{
			label: "genre=" + g,
			in:    func(r models.RankingObservation) bool { return r.Genre == g },
		})
	}

	// Price flags: is_free plus mutually exclusive paid buckets.
	// Free rows never populate a bucket; unknown prices populate nothing.
	out = append(out,
		indicator{label: "is_free", in: func(r models.RankingObservation) bool {
			return r.Price != nil && *r.Price == 0
		}},
		indicator{label: "price_0_1", in: priceBucket(0, 1)},
		indicator{label: "price_1_5", in: priceBucket(1, 5)},
		indicator{label: "price_5_20", in: priceBucket(5, 20)},
		indicator{label: "price_gt_20", in: func(r models.RankingObservation) bool {
			return r.Price != nil && *r.Price > 20
		}},
	)
	return out
}

// priceBucket matches prices in (lo, hi].
func priceBucket(lo, hi float64) func(models.RankingObservation) bool {
	return func(r models.RankingObservation) bool {
		return r.Price != nil && *r.Price > lo && *r.Price <= hi
	}
}

func sortedSet(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
