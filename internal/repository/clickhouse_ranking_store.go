package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"RankPulse/internal/domain/models"
	domrepo "RankPulse/internal/domain/repository"
	pkgch "RankPulse/pkg/clickhouse"
	applogger "RankPulse/pkg/logger"
)

const rankingsTable = "rankpulse.app_rankings"

// SchemaStatements are the idempotent DDL run at startup. The
// ReplacingMergeTree key makes re-ingesting a chart page an upsert.
var SchemaStatements = []string{
	`CREATE DATABASE IF NOT EXISTS rankpulse`,
	`CREATE TABLE IF NOT EXISTS rankpulse.app_rankings (
        chart_date Date,
        country    LowCardinality(String),
        device     LowCardinality(String),
        chart      LowCardinality(String),
        app_id     String,
        app_name   String,
        publisher  String,
        genre      LowCardinality(String),
        rank       Nullable(Int32),
        idx        Nullable(Int32),
        price      Nullable(Float64),
        is_ad      UInt8,
        ingested_at DateTime DEFAULT now()
    ) ENGINE = ReplacingMergeTree(ingested_at)
    PARTITION BY toYYYYMM(chart_date)
    ORDER BY (country, device, chart, chart_date, app_id)`,
}

// CHRankingStore implements RankingStore backed by ClickHouse.
type CHRankingStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHRankingStore(ch *pkgch.Client) *CHRankingStore {
	return &CHRankingStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHRankingStore) SetLogger(l *applogger.Logger) { s.l = l }

// whereClause is the single translation point from QuerySpec to SQL.
func whereClause(spec domrepo.QuerySpec) (string, []interface{}) {
	conds := make([]string, 0, 7)
	args := make([]interface{}, 0, 7)
	add := func(cond string, arg interface{}) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if spec.Country != "" {
		add("country = ?", spec.Country)
	}
	if spec.Device != "" {
		add("device = ?", spec.Device)
	}
	if spec.Chart != "" {
		add("chart = ?", string(spec.Chart))
	}
	if spec.Genre != "" {
		add("genre = ?", spec.Genre)
	}
	if spec.AppID != "" {
		add("app_id = ?", spec.AppID)
	}
	if !spec.From.IsZero() {
		add("chart_date >= ?", spec.From)
	}
	if !spec.To.IsZero() {
		add("chart_date <= ?", spec.To)
	}
	if len(conds) == 0 {
		return "1 = 1", args
	}
	return strings.Join(conds, " AND "), args
}

func (s *CHRankingStore) LatestDate(ctx context.Context, spec domrepo.QuerySpec) (time.Time, bool, error) {
	where, args := whereClause(spec)
	q := fmt.Sprintf("SELECT chart_date FROM %s WHERE %s ORDER BY chart_date DESC LIMIT 1", rankingsTable, where)
	var d time.Time
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&d)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse latest_date query error",
				applogger.String("country", spec.Country),
				applogger.String("device", spec.Device),
				applogger.String("chart", string(spec.Chart)),
				applogger.Error(err),
			)
		}
		return time.Time{}, false, fmt.Errorf("latest date: %w", err)
	}
	return d, true, nil
}

func (s *CHRankingStore) RowsInRange(ctx context.Context, spec domrepo.QuerySpec) ([]models.RankingObservation, error) {
	start := time.Now()
	where, args := whereClause(spec)
	q := fmt.Sprintf(`
        SELECT chart_date, country, device, chart, app_id, app_name, publisher, genre,
               rank, idx, price, is_ad
        FROM %s FINAL
        WHERE %s
        ORDER BY chart_date ASC, app_id ASC`, rankingsTable, where)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse rows_in_range query error",
				applogger.String("country", spec.Country),
				applogger.String("device", spec.Device),
				applogger.String("chart", string(spec.Chart)),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("rows in range: %w", err)
	}
	defer rows.Close()

	out := make([]models.RankingObservation, 0, 1024)
	for rows.Next() {
		var (
			o     models.RankingObservation
			chart string
			rank  sql.NullInt32
			idx   sql.NullInt32
			price sql.NullFloat64
			isAd  uint8
		)
		if err := rows.Scan(&o.ChartDate, &o.Country, &o.Device, &chart, &o.AppID, &o.AppName,
			&o.Publisher, &o.Genre, &rank, &idx, &price, &isAd); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Chart = models.ChartType(chart)
		if rank.Valid {
			v := int(rank.Int32)
			o.Rank = &v
		}
		if idx.Valid {
			v := int(idx.Int32)
			o.Index = &v
		}
		if price.Valid {
			v := price.Float64
			o.Price = &v
		}
		o.IsAd = isAd != 0
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse rows_in_range ok",
			applogger.String("country", spec.Country),
			applogger.String("device", spec.Device),
			applogger.String("chart", string(spec.Chart)),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHRankingStore) MetaOptions(ctx context.Context) (models.MetaOptions, error) {
	q := fmt.Sprintf(`
        SELECT groupUniqArray(country), groupUniqArray(device), groupUniqArray(chart),
               min(chart_date), max(chart_date), count()
        FROM %s`, rankingsTable)

	var (
		opts  models.MetaOptions
		minD  time.Time
		maxD  time.Time
		total uint64
	)
	if err := s.db.QueryRowContext(ctx, q).Scan(&opts.Countries, &opts.Devices, &opts.ChartTypes, &minD, &maxD, &total); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse meta_options query error", applogger.Error(err))
		}
		return models.MetaOptions{}, fmt.Errorf("meta options: %w", err)
	}
	if total > 0 {
		opts.MinDate = minD.Format("2006-01-02")
		opts.MaxDate = maxD.Format("2006-01-02")
	}
	return opts, nil
}

func (s *CHRankingStore) SearchApps(ctx context.Context, query string, spec domrepo.QuerySpec, limit int) ([]models.AppRef, error) {
	if limit <= 0 {
		limit = 20
	}
	where, args := whereClause(spec)
	q := fmt.Sprintf(`
        SELECT app_id, any(app_name), any(publisher)
        FROM %s
        WHERE %s AND (app_id = ? OR positionCaseInsensitive(app_name, ?) > 0)
        GROUP BY app_id
        ORDER BY app_id = ? DESC, app_id ASC
        LIMIT ?`, rankingsTable, where)
	args = append(args, query, query, query, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse search_apps query error",
				applogger.String("query", query),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("search apps: %w", err)
	}
	defer rows.Close()

	var out []models.AppRef
	for rows.Next() {
		var ref models.AppRef
		if err := rows.Scan(&ref.AppID, &ref.AppName, &ref.Publisher); err != nil {
			return nil, fmt.Errorf("scan app ref: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (s *CHRankingStore) UpsertObservations(ctx context.Context, obs []models.RankingObservation) error {
	if len(obs) == 0 {
		return nil
	}
	// Chunked multi-row VALUES insert; the table engine resolves
	// duplicate natural keys by newest ingested_at.
	const chunkSize = 2000
	for start := 0; start < len(obs); start += chunkSize {
		end := start + chunkSize
		if end > len(obs) {
			end = len(obs)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*12)
		for _, o := range obs[start:end] {
			if o.AppID == "" || o.ChartDate.IsZero() {
				continue
			}
			isAd := uint8(0)
			if o.IsAd {
				isAd = 1
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				o.ChartDate,
				o.Country,
				o.Device,
				string(o.Chart),
				o.AppID,
				o.AppName,
				o.Publisher,
				o.Genre,
				o.Rank,
				o.Index,
				o.Price,
				isAd,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf(`INSERT INTO %s
            (chart_date, country, device, chart, app_id, app_name, publisher, genre, rank, idx, price, is_ad)
            VALUES %s`, rankingsTable, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse upsert batch error",
					applogger.Int("batch", end-start),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("upsert observations: %w", err)
		}
	}
	return nil
}

func (s *CHRankingStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var _ domrepo.RankingStore = (*CHRankingStore)(nil)
