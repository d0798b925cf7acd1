package usecase

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"RankPulse/internal/domain/models"
	"RankPulse/internal/services/forecast"
	"RankPulse/internal/services/rankstats"
)

func newTestRegistry(t *testing.T) *forecast.Registry {
	t.Helper()
	root := t.TempDir()
	return forecast.NewRegistry(forecast.RegistryConfig{
		TrainedDir:     filepath.Join(root, "trained"),
		LegacyDir:      filepath.Join(root, "legacy"),
		UploadDir:      filepath.Join(root, "upload"),
		MaxUploadBytes: 1 << 20,
	}, nil)
}

// publishModel stores a freshly initialized model for cn/iphone/free.
func publishModel(t *testing.T, registry *forecast.Registry, lookback, horizon int) string {
	t.Helper()
	model := forecast.NewModel(forecast.ModelMeta{
		InputDim: forecast.InputDim,
		Hidden:   6,
		Layers:   1,
		Lookback: lookback,
		Horizon:  horizon,
		MaxRank:  forecast.DefaultMaxRank,
	}, rand.New(rand.NewSource(7)))
	stored, err := registry.SaveTrained(forecast.ModelName{
		Country: "cn", Device: "iphone", Chart: models.ChartFree,
	}, model)
	if err != nil {
		t.Fatalf("SaveTrained: %v", err)
	}
	return stored
}

func newForecastUC(store *fakeStore, registry *forecast.Registry) *ForecastUseCase {
	res := rankstats.NewResolver(store)
	return NewForecastUseCase(
		store,
		registry,
		forecast.NewDatasetBuilder(0),
		rankstats.NewAggregator(res),
		newFakeMetrics(),
		nil,
		0,
	)
}

// seedHistory writes days consecutive daily ranks ending 2025-03-10
// for one app.
func seedHistory(store *fakeStore, appID string, days, rank int) {
	end := day("2025-03-10")
	for i := days - 1; i >= 0; i-- {
		d := end.AddDate(0, 0, -i)
		store.rows = append(store.rows, models.RankingObservation{
			ChartDate: d,
			Country:   "cn",
			Device:    "iphone",
			Chart:     models.ChartFree,
			AppID:     appID,
			AppName:   "app-" + appID,
			Rank:      intp(rank),
		})
	}
}

func TestForecastAppModelNotFound(t *testing.T) {
	uc := newForecastUC(&fakeStore{}, newTestRegistry(t))

	_, err := uc.ForecastApp(context.Background(), ForecastAppParams{
		AppID: "a", Country: "cn", Device: "iphone", Chart: models.ChartFree,
	})
	if !errors.Is(err, models.ErrModelNotFound) {
		t.Fatalf("want ErrModelNotFound, got %v", err)
	}
}

func TestForecastAppInsufficientHistory(t *testing.T) {
	registry := newTestRegistry(t)
	publishModel(t, registry, 5, 2)
	store := &fakeStore{}
	seedHistory(store, "a", 2, 10)
	uc := newForecastUC(store, registry)

	_, err := uc.ForecastApp(context.Background(), ForecastAppParams{
		AppID: "a", Country: "cn", Device: "iphone", Chart: models.ChartFree,
	})
	if !errors.Is(err, models.ErrInsufficientHistory) {
		t.Fatalf("want ErrInsufficientHistory, got %v", err)
	}
}

func TestForecastAppNoHistoryAtAll(t *testing.T) {
	registry := newTestRegistry(t)
	publishModel(t, registry, 5, 2)
	uc := newForecastUC(&fakeStore{}, registry)

	_, err := uc.ForecastApp(context.Background(), ForecastAppParams{
		AppID: "ghost", Country: "cn", Device: "iphone", Chart: models.ChartFree,
	})
	if !errors.Is(err, models.ErrInsufficientHistory) {
		t.Fatalf("want ErrInsufficientHistory, got %v", err)
	}
}

func TestForecastAppLookbackMismatch(t *testing.T) {
	registry := newTestRegistry(t)
	publishModel(t, registry, 5, 2)
	store := &fakeStore{}
	seedHistory(store, "a", 10, 10)
	uc := newForecastUC(store, registry)

	_, err := uc.ForecastApp(context.Background(), ForecastAppParams{
		AppID: "a", Country: "cn", Device: "iphone", Chart: models.ChartFree,
		Lookback: 9,
	})
	if !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("want ErrInvalidParameter, got %v", err)
	}
}

func TestForecastAppHorizonMismatch(t *testing.T) {
	registry := newTestRegistry(t)
	publishModel(t, registry, 5, 2)
	store := &fakeStore{}
	seedHistory(store, "a", 10, 10)
	uc := newForecastUC(store, registry)

	_, err := uc.ForecastApp(context.Background(), ForecastAppParams{
		AppID: "a", Country: "cn", Device: "iphone", Chart: models.ChartFree,
		Horizon: 7,
	})
	if !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("want ErrInvalidParameter, got %v", err)
	}
}

func TestForecastAppPoints(t *testing.T) {
	registry := newTestRegistry(t)
	publishModel(t, registry, 5, 2)
	store := &fakeStore{}
	seedHistory(store, "a", 8, 10)
	uc := newForecastUC(store, registry)

	res, err := uc.ForecastApp(context.Background(), ForecastAppParams{
		AppID: "a", Country: "cn", Device: "iphone", Chart: models.ChartFree,
	})
	if err != nil {
		t.Fatalf("ForecastApp: %v", err)
	}
	if res.LastKnownDate != "2025-03-10" {
		t.Fatalf("last known date = %q", res.LastKnownDate)
	}
	if len(res.Points) != 2 {
		t.Fatalf("want 2 horizon points, got %d", len(res.Points))
	}
	if res.Points[0].Date != "2025-03-11" || res.Points[1].Date != "2025-03-12" {
		t.Fatalf("point dates = %q, %q", res.Points[0].Date, res.Points[1].Date)
	}
	for i, p := range res.Points {
		if p.Predicted < 1 || p.Predicted > forecast.DefaultMaxRank {
			t.Fatalf("point %d predicted %d out of range", i, p.Predicted)
		}
		if p.Lower < 1 {
			t.Fatalf("point %d lower bound %d below 1", i, p.Lower)
		}
		if p.Upper != p.Predicted+5 {
			t.Fatalf("point %d upper = %d, want %d", i, p.Upper, p.Predicted+5)
		}
	}
}

func TestForecastAppModelFileOverridesDimensions(t *testing.T) {
	registry := newTestRegistry(t)
	stored := publishModel(t, registry, 5, 2)
	store := &fakeStore{}
	seedHistory(store, "a", 8, 10)
	uc := newForecastUC(store, registry)

	// Request carries no dimensions; the filename supplies them.
	res, err := uc.ForecastApp(context.Background(), ForecastAppParams{
		AppID: "a", ModelFile: stored,
	})
	if err != nil {
		t.Fatalf("ForecastApp: %v", err)
	}
	if res.Country != "cn" || res.Device != "iphone" || res.Chart != models.ChartFree {
		t.Fatalf("dimensions not derived from model file: %+v", res)
	}
}

func TestPredictedTopNDropsThinCandidates(t *testing.T) {
	registry := newTestRegistry(t)
	publishModel(t, registry, 5, 2)
	store := &fakeStore{}
	seedHistory(store, "a", 8, 1)
	seedHistory(store, "b", 8, 2)
	seedHistory(store, "c", 8, 3)
	// One candidate appears only on the latest day and cannot fill a
	// lookback window.
	seedHistory(store, "thin", 1, 4)
	uc := newForecastUC(store, registry)

	out, err := uc.PredictedTopN(context.Background(), PredictedTopNParams{
		Country: "cn", Device: "iphone", Chart: models.ChartFree, N: 3,
	})
	if err != nil {
		t.Fatalf("PredictedTopN: %v", err)
	}
	if out.BaseDate != "2025-03-10" {
		t.Fatalf("base date = %q", out.BaseDate)
	}
	if out.Horizon != 2 {
		t.Fatalf("horizon = %d, want 2", out.Horizon)
	}
	if len(out.Entries) != 3 {
		t.Fatalf("want 3 entries, got %d", len(out.Entries))
	}
	for i, e := range out.Entries {
		if e.AppID == "thin" {
			t.Fatalf("thin-history candidate should be excluded")
		}
		if e.Position != i+1 {
			t.Fatalf("entry %d position = %d", i, e.Position)
		}
		if e.Change != e.CurrentRank-e.PredictedRank {
			t.Fatalf("entry %d change = %d, want %d", i, e.Change, e.CurrentRank-e.PredictedRank)
		}
	}
}

func TestPredictedTopNNoData(t *testing.T) {
	registry := newTestRegistry(t)
	publishModel(t, registry, 5, 2)
	uc := newForecastUC(&fakeStore{}, registry)

	_, err := uc.PredictedTopN(context.Background(), PredictedTopNParams{
		Country: "cn", Device: "iphone", Chart: models.ChartFree, N: 2,
	})
	if !errors.Is(err, models.ErrNoData) {
		t.Fatalf("want ErrNoData, got %v", err)
	}
}
