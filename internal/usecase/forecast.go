package usecase

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"RankPulse/internal/domain/models"
	domrepo "RankPulse/internal/domain/repository"
	svccache "RankPulse/internal/service/cache"
	"RankPulse/internal/services/forecast"
	"RankPulse/internal/services/rankstats"
	applogger "RankPulse/pkg/logger"
	"RankPulse/pkg/util"
)

// candidateFactor is how many current-standing candidates are forecast
// per requested predicted-top-N slot.
const candidateFactor = 3

// maxInferenceWorkers bounds the per-request fan-out.
const maxInferenceWorkers = 8

// ForecastAppParams identifies one single-app forecast request. When
// ModelFile is set, the dimensions are derived from it.
type ForecastAppParams struct {
	AppID     string
	Country   string
	Device    string
	Chart     models.ChartType
	Lookback  int
	Horizon   int
	ModelFile string
}

// PredictedTopNParams identifies one predicted-chart request.
type PredictedTopNParams struct {
	Country   string
	Device    string
	Chart     models.ChartType
	N         int
	ModelFile string
}

// ForecastUseCase serves model-driven rank predictions. Unlike the
// analytics path, missing models and short histories surface as
// distinct errors; a degenerate forecast is never presented as data.
type ForecastUseCase struct {
	store    domrepo.RankingStore
	registry *forecast.Registry
	builder  *forecast.DatasetBuilder
	agg      *rankstats.Aggregator
	models   *svccache.TTLCache
	modelTTL time.Duration
	metrics  domrepo.Metrics
	log      *applogger.Logger
}

func NewForecastUseCase(
	store domrepo.RankingStore,
	registry *forecast.Registry,
	builder *forecast.DatasetBuilder,
	agg *rankstats.Aggregator,
	metrics domrepo.Metrics,
	log *applogger.Logger,
	modelTTL time.Duration,
) *ForecastUseCase {
	if modelTTL <= 0 {
		modelTTL = 10 * time.Minute
	}
	return &ForecastUseCase{
		store: store, registry: registry, builder: builder, agg: agg,
		models: svccache.NewTTLCache(), modelTTL: modelTTL,
		metrics: metrics, log: log,
	}
}

// loadModel fetches weights through a short-lived in-process cache so
// a top-N fan-out reads the artifact once, not 3N times.
func (uc *ForecastUseCase) loadModel(filename string) (*forecast.Model, error) {
	if v, ok := uc.models.Get(filename); ok {
		return v.(*forecast.Model), nil
	}
	m, err := uc.registry.Load(filename)
	if err != nil {
		return nil, err
	}
	uc.models.Set(filename, m, uc.modelTTL)
	return m, nil
}

func canonicalModelFile(country, device string, chart models.ChartType) string {
	return forecast.ModelName{
		Country: country,
		Device:  device,
		Chart:   chart,
		Algo:    forecast.AlgoGRU,
		Ext:     ".json",
	}.String()
}

// ForecastApp predicts one app's next horizon days of chart standing.
func (uc *ForecastUseCase) ForecastApp(ctx context.Context, p ForecastAppParams) (models.ForecastResult, error) {
	if p.AppID == "" {
		return models.ForecastResult{}, fmt.Errorf("app id required: %w", models.ErrInvalidParameter)
	}
	file := p.ModelFile
	if file == "" {
		file = canonicalModelFile(p.Country, p.Device, p.Chart)
	} else {
		n, err := forecast.ParseModelName(file)
		if err != nil {
			return models.ForecastResult{}, err
		}
		p.Country, p.Device, p.Chart = n.Country, n.Device, n.Chart
	}

	model, err := uc.loadModel(file)
	if err != nil {
		return models.ForecastResult{}, err
	}
	lookback := model.Meta.Lookback
	if p.Lookback > 0 && p.Lookback != lookback {
		return models.ForecastResult{}, fmt.Errorf("model %q was trained with lookback %d: %w", file, lookback, models.ErrInvalidParameter)
	}
	if p.Horizon > 0 && p.Horizon != model.Meta.Horizon {
		return models.ForecastResult{}, fmt.Errorf("model %q was trained with horizon %d: %w", file, model.Meta.Horizon, models.ErrInvalidParameter)
	}

	spec := domrepo.QuerySpec{Country: p.Country, Device: p.Device, Chart: p.Chart}
	points, lastKnown, err := uc.predictPoints(ctx, spec, p.AppID, model)
	if err != nil {
		return models.ForecastResult{}, err
	}
	return models.ForecastResult{
		AppID:         p.AppID,
		Country:       p.Country,
		Device:        p.Device,
		Chart:         p.Chart,
		LastKnownDate: util.DayString(lastKnown),
		Points:        points,
	}, nil
}

// predictPoints runs the shared fetch-fill-infer-denormalize path for
// one app against an already loaded model.
func (uc *ForecastUseCase) predictPoints(ctx context.Context, spec domrepo.QuerySpec, appID string, model *forecast.Model) ([]models.ForecastPoint, time.Time, error) {
	lookback := model.Meta.Lookback
	appSpec := spec.WithApp(appID)

	latest, ok, err := uc.store.LatestDate(ctx, appSpec)
	if err != nil {
		return nil, time.Time{}, err
	}
	if !ok {
		return nil, time.Time{}, fmt.Errorf("app %s has no history: %w", appID, models.ErrInsufficientHistory)
	}
	end := util.Day(latest)
	start := end.AddDate(0, 0, -lookback)
	rows, err := uc.store.RowsInRange(ctx, appSpec.WithRange(start, end))
	if err != nil {
		return nil, time.Time{}, err
	}

	series := uc.builder.FilledSeries(rows, start, end)
	x, ok := uc.builder.LatestWindow(series, lookback)
	if !ok {
		return nil, time.Time{}, fmt.Errorf("app %s: fewer than %d usable days: %w", appID, lookback, models.ErrInsufficientHistory)
	}

	inferStart := time.Now()
	preds := model.Predict(x)
	if uc.metrics != nil {
		uc.metrics.RecordInference(time.Since(inferStart).Seconds())
	}

	points := make([]models.ForecastPoint, 0, len(preds))
	for i, p := range preds {
		rank := uc.builder.Denormalize(p)
		lower := rank - 5
		if lower < 1 {
			lower = 1
		}
		points = append(points, models.ForecastPoint{
			Date:      util.DayString(end.AddDate(0, 0, i+1)),
			Predicted: rank,
			Lower:     lower,
			Upper:     rank + 5,
		})
	}
	return points, end, nil
}

// PredictedTopN forecasts today's leading candidates and re-ranks them
// by their predicted standing at the end of the horizon.
func (uc *ForecastUseCase) PredictedTopN(ctx context.Context, p PredictedTopNParams) (models.PredictedTopN, error) {
	if p.N <= 0 {
		p.N = 10
	}
	file := p.ModelFile
	if file == "" {
		file = canonicalModelFile(p.Country, p.Device, p.Chart)
	} else {
		n, err := forecast.ParseModelName(file)
		if err != nil {
			return models.PredictedTopN{}, err
		}
		p.Country, p.Device, p.Chart = n.Country, n.Device, n.Chart
	}
	model, err := uc.loadModel(file)
	if err != nil {
		return models.PredictedTopN{}, err
	}

	spec := domrepo.QuerySpec{Country: p.Country, Device: p.Device, Chart: p.Chart}
	current, err := uc.agg.TopN(ctx, spec, candidateFactor*p.N)
	if err != nil {
		return models.PredictedTopN{}, err
	}
	if len(current.Entries) == 0 {
		return models.PredictedTopN{}, fmt.Errorf("no current standing for %s/%s/%s: %w", p.Country, p.Device, p.Chart, models.ErrNoData)
	}

	type outcome struct {
		entry     models.TopNEntry
		predicted int
	}
	results := make([]outcome, 0, len(current.Entries))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxInferenceWorkers)

	for _, entry := range current.Entries {
		if ctx.Err() != nil {
			return models.PredictedTopN{}, ctx.Err()
		}
		entry := entry
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			points, _, err := uc.predictPoints(ctx, spec, entry.AppID, model)
			if err != nil {
				// A candidate with a thin history drops out of the
				// predicted chart; the request itself still succeeds.
				if uc.log != nil {
					uc.log.Debug("candidate excluded from predicted chart",
						applogger.String("app_id", entry.AppID),
						applogger.Error(err),
					)
				}
				return
			}
			mu.Lock()
			results = append(results, outcome{entry: entry, predicted: points[len(points)-1].Predicted})
			mu.Unlock()
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return models.PredictedTopN{}, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].predicted != results[j].predicted {
			return results[i].predicted < results[j].predicted
		}
		return results[i].entry.AppID < results[j].entry.AppID
	})
	if len(results) > p.N {
		results = results[:p.N]
	}

	out := models.PredictedTopN{
		Country:  p.Country,
		Device:   p.Device,
		Chart:    p.Chart,
		Horizon:  model.Meta.Horizon,
		BaseDate: current.Date,
		Entries:  make([]models.PredictedTopNEntry, 0, len(results)),
	}
	for i, r := range results {
		baseline := 0
		if r.entry.Rank != nil {
			baseline = *r.entry.Rank
		} else if r.entry.Index != nil {
			baseline = *r.entry.Index
		}
		out.Entries = append(out.Entries, models.PredictedTopNEntry{
			Position:      i + 1,
			AppID:         r.entry.AppID,
			AppName:       r.entry.AppName,
			CurrentRank:   baseline,
			PredictedRank: r.predicted,
			Change:        baseline - r.predicted,
		})
	}
	return out, nil
}

// ListModels exposes the merged registry listing.
func (uc *ForecastUseCase) ListModels(context.Context) (forecast.ModelListing, error) {
	return uc.registry.List()
}

// UploadModel streams an externally trained artifact into the registry.
func (uc *ForecastUseCase) UploadModel(_ context.Context, filename string, body io.Reader) (*forecast.Descriptor, error) {
	return uc.registry.Upload(filename, body)
}
