package repository

import (
	"context"
	"time"

	"RankPulse/internal/domain/models"
)

// QuerySpec is the typed predicate object for ranking queries. Zero
// values mean "no filter". It is translated to a backing query in
// exactly one place by each store implementation.
type QuerySpec struct {
	Country string
	Device  string
	Chart   models.ChartType
	Genre   string
	AppID   string
	From    time.Time
	To      time.Time
}

// WithRange returns a copy of the spec bounded to [from, to].
func (q QuerySpec) WithRange(from, to time.Time) QuerySpec {
	q.From = from
	q.To = to
	return q
}

// WithApp returns a copy of the spec narrowed to one app.
func (q QuerySpec) WithApp(appID string) QuerySpec {
	q.AppID = appID
	return q
}

// RankingStore provides read access to daily ranking observations plus
// the batch upsert used by the ingestion consumer. The analytics and
// forecast engines never mutate rows.
type RankingStore interface {
	// LatestDate resolves the maximum observation date matching spec.
	// ok is false when no rows match; continuity of the underlying
	// store is never assumed.
	LatestDate(ctx context.Context, spec QuerySpec) (time.Time, bool, error)

	// RowsInRange returns matching rows ordered by date ascending.
	// Missing calendar days are not manufactured.
	RowsInRange(ctx context.Context, spec QuerySpec) ([]models.RankingObservation, error)

	// MetaOptions lists distinct dimension values and the date range.
	MetaOptions(ctx context.Context) (models.MetaOptions, error)

	// SearchApps matches app_id exactly or app_name by substring,
	// deduplicated by app id.
	SearchApps(ctx context.Context, q string, spec QuerySpec, limit int) ([]models.AppRef, error)

	// UpsertObservations idempotently writes a batch of observations
	// keyed by (date, country, device, chart, app).
	UpsertObservations(ctx context.Context, rows []models.RankingObservation) error
}

// Metrics abstracts the operational counters the engine records.
type Metrics interface {
	RecordQuery(op string, seconds float64)
	RecordCache(op string, hit bool)
	RecordInference(seconds float64)
	RecordIngest(rows int)
	RecordError(kind string)
}
