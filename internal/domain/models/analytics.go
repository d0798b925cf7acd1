package models

// SeriesMeta describes the resolved window a result was computed over.
type SeriesMeta struct {
	Samples    int    `json:"samples"`
	LatestDate string `json:"latest_date,omitempty"`
	WindowDays int    `json:"window_days"`
}

// TopNEntry is one resolved chart position for a single day.
type TopNEntry struct {
	Position  int      `json:"position"`
	AppID     string   `json:"app_id"`
	AppName   string   `json:"app_name"`
	Publisher string   `json:"publisher,omitempty"`
	Genre     string   `json:"genre,omitempty"`
	Rank      *int     `json:"rank,omitempty"`
	Index     *int     `json:"index,omitempty"`
	Price     *float64 `json:"price,omitempty"`
	IsAd      bool     `json:"is_ad"`
}

// TopNResult is the tie-break-resolved standing on the latest day.
type TopNResult struct {
	Date    string      `json:"date,omitempty"`
	Entries []TopNEntry `json:"entries"`
	Meta    SeriesMeta  `json:"meta"`
}

// VolatilityTrend is a calendar-aligned per-day series. A day with no
// rankable rows carries a nil value, not zero.
type VolatilityTrend struct {
	Dates  []string   `json:"dates"`
	Values []*float64 `json:"values"`
	Meta   SeriesMeta `json:"meta"`
}

// StabilityScore aggregates one app's effective-rank behaviour in a window.
type StabilityScore struct {
	AppID    string  `json:"app_id"`
	AppName  string  `json:"app_name"`
	Presence int     `json:"presence"`
	MeanRank float64 `json:"mean_rank"`
	StdDev   float64 `json:"std_dev"`
}

// StabilityRanking is the filtered, sorted stable or volatile top-K.
type StabilityRanking struct {
	Volatile    bool             `json:"volatile"`
	MinPresence int              `json:"min_presence"`
	Entries     []StabilityScore `json:"entries"`
	Meta        SeriesMeta       `json:"meta"`
}

// GenreTrendPoint carries one day of genre activity: how many distinct
// apps appeared and the average of per-app best effective ranks.
type GenreTrendPoint struct {
	Date        string   `json:"date"`
	AppCount    int      `json:"app_count"`
	AvgBestRank *float64 `json:"avg_best_rank,omitempty"`
}

// GenreTrend is the calendar-aligned genre activity series.
type GenreTrend struct {
	Genre  string            `json:"genre,omitempty"`
	Points []GenreTrendPoint `json:"points"`
	Meta   SeriesMeta        `json:"meta"`
}

// GenreGrowthEntry compares distinct-app counts between the current
// window and the immediately preceding window of equal length.
type GenreGrowthEntry struct {
	Genre     string  `json:"genre"`
	Current   int     `json:"current"`
	Previous  int     `json:"previous"`
	GrowthPct float64 `json:"growth_pct"`
}

// GenreGrowth is the per-genre growth comparison for one window.
type GenreGrowth struct {
	Entries []GenreGrowthEntry `json:"entries"`
	Meta    SeriesMeta         `json:"meta"`
}

// Overview carries the headline KPIs for a window.
type Overview struct {
	NewEntrants     int        `json:"new_entrants"`
	Dropped         int        `json:"dropped"`
	TopGenre        string     `json:"top_genre,omitempty"`
	TopGenreShare   float64    `json:"top_genre_share"`
	VolatilityIndex *float64   `json:"volatility_index,omitempty"`
	Meta            SeriesMeta `json:"meta"`
}

// FeatureImportance holds parallel feature/score vectors from the
// single-factor variance decomposition. Scores are normalized to sum
// to one over the surviving features; RawScores are the rounded
// variance-explained ratios before normalization.
type FeatureImportance struct {
	Features  []string   `json:"features"`
	Scores    []float64  `json:"scores"`
	RawScores []float64  `json:"raw_scores"`
	Meta      SeriesMeta `json:"meta"`
}

// RankHistoryPoint is one day of one app's recorded standing.
type RankHistoryPoint struct {
	Date  string `json:"date"`
	Rank  *int   `json:"rank,omitempty"`
	Index *int   `json:"index,omitempty"`
}

// RankHistory is an app's windowed rank series with explicit gaps.
type RankHistory struct {
	AppID  string             `json:"app_id"`
	Points []RankHistoryPoint `json:"points"`
	Meta   SeriesMeta         `json:"meta"`
}
