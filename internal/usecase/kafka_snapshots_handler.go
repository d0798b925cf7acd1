package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"RankPulse/internal/domain/models"
	domrepo "RankPulse/internal/domain/repository"
	pkgkafka "RankPulse/pkg/kafka"
	"RankPulse/pkg/util"
)

// ObservationSink is the write-side the consumer needs. Satisfied by
// the ranking store directly or by the ingest pipeline in front of it.
type ObservationSink interface {
	UpsertObservations(ctx context.Context, rows []models.RankingObservation) error
}

// KafkaSnapshotsHandler consumes crawler chart-page snapshots and
// upserts them into the ranking store. Re-delivery of a page is safe:
// the store's natural key makes the write idempotent.
type KafkaSnapshotsHandler struct {
	topic   string
	store   ObservationSink
	metrics domrepo.Metrics
}

func NewKafkaSnapshotsHandler(topic string, store ObservationSink, metrics domrepo.Metrics) *KafkaSnapshotsHandler {
	return &KafkaSnapshotsHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaSnapshotsHandler) Topic() string { return h.topic }

// snapshotPage is the crawler's wire schema: one chart page for one
// (date, country, device, chart) key.
type snapshotPage struct {
	ChartDate string `json:"chart_date"`
	Country   string `json:"country"`
	Device    string `json:"device"`
	Chart     string `json:"chart"`
	Apps      []struct {
		AppID     string   `json:"app_id"`
		AppName   string   `json:"app_name"`
		Publisher string   `json:"publisher"`
		Genre     string   `json:"genre"`
		Rank      *int     `json:"rank"`
		Index     *int     `json:"index"`
		Price     *float64 `json:"price"`
		IsAd      bool     `json:"is_ad"`
	} `json:"apps"`
}

func (h *KafkaSnapshotsHandler) Handle(ctx context.Context, b []byte) error {
	var page snapshotPage
	if err := json.Unmarshal(b, &page); err != nil {
		h.metrics.RecordError("snapshot_unmarshal")
		return err
	}
	date, ok := util.ParseDay(page.ChartDate)
	if !ok {
		h.metrics.RecordError("snapshot_bad_date")
		return fmt.Errorf("snapshot page has bad chart_date %q", page.ChartDate)
	}
	chart, err := models.ParseChartType(page.Chart)
	if err != nil {
		h.metrics.RecordError("snapshot_bad_chart")
		return err
	}
	if !models.IsSupportedDevice(page.Device) {
		h.metrics.RecordError("snapshot_bad_device")
		return fmt.Errorf("snapshot page has unsupported device %q", page.Device)
	}

	rows := make([]models.RankingObservation, 0, len(page.Apps))
	for _, a := range page.Apps {
		if a.AppID == "" {
			continue
		}
		rows = append(rows, models.RankingObservation{
			ChartDate: date,
			Country:   page.Country,
			Device:    page.Device,
			Chart:     chart,
			AppID:     a.AppID,
			AppName:   a.AppName,
			Publisher: a.Publisher,
			Genre:     a.Genre,
			Rank:      a.Rank,
			Index:     a.Index,
			Price:     a.Price,
			IsAd:      a.IsAd,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	if err := h.store.UpsertObservations(ctx, rows); err != nil {
		h.metrics.RecordError("snapshot_upsert")
		return err
	}
	h.metrics.RecordIngest(len(rows))
	h.metrics.RecordQuery("ingest_upsert", time.Since(start).Seconds())
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaSnapshotsHandler)(nil)
