package usecase

import (
	"context"
	"fmt"
	"time"

	"RankPulse/internal/domain/models"
	domrepo "RankPulse/internal/domain/repository"
	"RankPulse/internal/services/forecast"
	applogger "RankPulse/pkg/logger"
	"RankPulse/pkg/queue"
	"RankPulse/pkg/util"
)

// TrainParams selects the series and hyperparameters of one training
// run. AppID narrows training to a single app's history; left empty,
// every app in the dimension contributes windows.
type TrainParams struct {
	Country   string               `json:"country"`
	Device    string               `json:"device"`
	Chart     models.ChartType     `json:"chart"`
	AppID     string               `json:"app_id,omitempty"`
	ExtraDays int                  `json:"extra_days"`
	Config    forecast.TrainConfig `json:"config"`
}

// TrainUseCase runs the offline training pipeline: fetch, fill, window,
// fit, publish. Runs are exclusive per model key and are expected to
// run to completion.
type TrainUseCase struct {
	store    domrepo.RankingStore
	registry *forecast.Registry
	builder  *forecast.DatasetBuilder
	trainer  *forecast.Trainer
	log      *applogger.Logger
}

func NewTrainUseCase(
	store domrepo.RankingStore,
	registry *forecast.Registry,
	builder *forecast.DatasetBuilder,
	trainer *forecast.Trainer,
	log *applogger.Logger,
) *TrainUseCase {
	return &TrainUseCase{store: store, registry: registry, builder: builder, trainer: trainer, log: log}
}

// Train fits and publishes one model, returning the stored filename.
func (uc *TrainUseCase) Train(ctx context.Context, p TrainParams) (string, error) {
	if p.Country == "" || p.Device == "" || p.Chart == "" {
		return "", fmt.Errorf("country, device and chart are required: %w", models.ErrInvalidParameter)
	}
	if !models.IsSupportedDevice(p.Device) {
		return "", fmt.Errorf("device %q not supported: %w", p.Device, models.ErrInvalidParameter)
	}
	cfg := p.Config
	if cfg.Lookback <= 0 {
		cfg = forecast.DefaultTrainConfig()
	}
	if p.ExtraDays <= 0 {
		p.ExtraDays = 60
	}

	name := forecast.ModelName{Country: p.Country, Device: p.Device, Chart: p.Chart, Algo: forecast.AlgoGRU}
	unlock := uc.registry.LockTraining(name.Key())
	defer unlock()

	spec := domrepo.QuerySpec{Country: p.Country, Device: p.Device, Chart: p.Chart, AppID: p.AppID}
	latest, ok, err := uc.store.LatestDate(ctx, spec)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no observations for %s/%s/%s: %w", p.Country, p.Device, p.Chart, models.ErrInsufficientHistory)
	}

	end := util.Day(latest)
	days := cfg.Lookback + cfg.Horizon + p.ExtraDays
	start := end.AddDate(0, 0, -(days - 1))
	rows, err := uc.store.RowsInRange(ctx, spec.WithRange(start, end))
	if err != nil {
		return "", err
	}

	// Each app's filled series contributes its own supervised windows.
	byApp := map[string][]models.RankingObservation{}
	for _, row := range rows {
		byApp[row.AppID] = append(byApp[row.AppID], row)
	}
	var samples []forecast.Sample
	for _, appRows := range byApp {
		series := uc.builder.FilledSeries(appRows, start, end)
		samples = append(samples, uc.builder.BuildSamples(series, cfg.Lookback, cfg.Horizon)...)
	}
	if len(samples) == 0 {
		return "", fmt.Errorf("%d days across %d apps yielded no windows: %w", days, len(byApp), models.ErrInsufficientHistory)
	}

	if uc.log != nil {
		uc.log.Info("training started",
			applogger.String("model", name.Key()),
			applogger.Int("apps", len(byApp)),
			applogger.Int("samples", len(samples)),
			applogger.Int("lookback", cfg.Lookback),
			applogger.Int("horizon", cfg.Horizon),
		)
	}
	start2 := time.Now()
	model, err := uc.trainer.Train(cfg, samples)
	if err != nil {
		return "", err
	}

	stored, err := uc.registry.SaveTrained(name, model)
	if err != nil {
		return "", err
	}
	if uc.log != nil {
		uc.log.Info("training finished",
			applogger.String("filename", stored),
			applogger.Duration("elapsed", time.Since(start2)),
		)
	}
	return stored, nil
}

// TrainJob adapts TrainUseCase to the queue worker so trainings can be
// enqueued instead of run inline.
type TrainJob struct {
	uc  *TrainUseCase
	log *applogger.Logger
}

func NewTrainJob(uc *TrainUseCase, log *applogger.Logger) *TrainJob {
	return &TrainJob{uc: uc, log: log}
}

func (j *TrainJob) Name() string { return "train_model" }
func (j *TrainJob) Type() string { return "train_model" }

func (j *TrainJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[TrainParams](payload)
	if err != nil {
		return fmt.Errorf("train job payload: %w", err)
	}
	stored, err := j.uc.Train(ctx, *p)
	if err != nil {
		if j.log != nil {
			j.log.Error("queued training failed", applogger.Error(err))
		}
		return err
	}
	if j.log != nil {
		j.log.Info("queued training published", applogger.String("filename", stored))
	}
	return nil
}

var _ queue.Job = (*TrainJob)(nil)
