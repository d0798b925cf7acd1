package rankstats

import (
	"math"
	"testing"
)

func TestPopStdDevMatchesPopulationFormula(t *testing.T) {
	// Effective ranks [1,2,1,3,2]: mean 1.8, population variance 0.56.
	xs := []float64{1, 2, 1, 3, 2}
	if m := Mean(xs); math.Abs(m-1.8) > 1e-12 {
		t.Fatalf("mean = %v, want 1.8", m)
	}
	if v := PopVariance(xs); math.Abs(v-0.56) > 1e-12 {
		t.Fatalf("population variance = %v, want 0.56", v)
	}
	sd := PopStdDev(xs)
	if math.Abs(sd-math.Sqrt(0.56)) > 1e-12 {
		t.Fatalf("population stddev = %v, want %v", sd, math.Sqrt(0.56))
	}
	// Guard against the sample formula sneaking in (0.7 vs 0.56).
	if math.Abs(sd-0.7483314773547883) > 1e-9 {
		t.Fatalf("stddev = %v, expected ~0.7483", sd)
	}
}

func TestMinPresenceDefault(t *testing.T) {
	cases := []struct {
		days, want int
	}{
		{30, 18},
		{7, 5},
		{10, 6},
		{1, 1},
	}
	for _, c := range cases {
		if got := MinPresence(c.days); got != c.want {
			t.Fatalf("MinPresence(%d) = %d, want %d", c.days, got, c.want)
		}
	}
}

func TestGrowthPct(t *testing.T) {
	cases := []struct {
		cur, prev int
		want      float64
	}{
		{0, 0, 0.0},
		{3, 0, 100.0},
		{10, 5, 100.0},
		{5, 10, -50.0},
	}
	for _, c := range cases {
		if got := GrowthPct(c.cur, c.prev); math.Abs(got-c.want) > 1e-12 {
			t.Fatalf("GrowthPct(%d,%d) = %v, want %v", c.cur, c.prev, got, c.want)
		}
	}
}
