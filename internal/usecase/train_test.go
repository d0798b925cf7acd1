package usecase

import (
	"context"
	"errors"
	"testing"

	"RankPulse/internal/domain/models"
	"RankPulse/internal/services/forecast"
)

func newTrainUC(store *fakeStore, registry *forecast.Registry) *TrainUseCase {
	return NewTrainUseCase(store, registry, forecast.NewDatasetBuilder(0), forecast.NewTrainer(nil), nil)
}

func TestTrainValidatesDimensions(t *testing.T) {
	uc := newTrainUC(&fakeStore{}, newTestRegistry(t))

	if _, err := uc.Train(context.Background(), TrainParams{Country: "cn"}); !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("want ErrInvalidParameter for missing dims, got %v", err)
	}
	p := TrainParams{Country: "cn", Device: "blackberry", Chart: models.ChartFree}
	if _, err := uc.Train(context.Background(), p); !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("want ErrInvalidParameter for bad device, got %v", err)
	}
}

func TestTrainInsufficientHistory(t *testing.T) {
	store := &fakeStore{}
	seedHistory(store, "a", 3, 10)
	uc := newTrainUC(store, newTestRegistry(t))

	_, err := uc.Train(context.Background(), TrainParams{
		Country: "cn", Device: "iphone", Chart: models.ChartFree,
		ExtraDays: 1,
		Config: forecast.TrainConfig{
			Lookback: 10, Horizon: 3, Epochs: 1, Batch: 4,
			Hidden: 4, Layers: 1, LearningRate: 1e-3, Seed: 1,
		},
	})
	if !errors.Is(err, models.ErrInsufficientHistory) {
		t.Fatalf("want ErrInsufficientHistory, got %v", err)
	}
}

func TestTrainPublishesLoadableModel(t *testing.T) {
	store := &fakeStore{}
	seedHistory(store, "a", 15, 10)
	seedHistory(store, "b", 15, 20)
	registry := newTestRegistry(t)
	uc := newTrainUC(store, registry)

	stored, err := uc.Train(context.Background(), TrainParams{
		Country: "cn", Device: "iphone", Chart: models.ChartFree,
		ExtraDays: 1,
		Config: forecast.TrainConfig{
			Lookback: 5, Horizon: 2, Epochs: 2, Batch: 4,
			Hidden: 4, Layers: 1, LearningRate: 1e-3,
			MaxRank: forecast.DefaultMaxRank, Seed: 1,
		},
	})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	name, err := forecast.ParseModelName(stored)
	if err != nil {
		t.Fatalf("stored filename %q does not parse: %v", stored, err)
	}
	if name.Country != "cn" || name.Device != "iphone" || name.Chart != models.ChartFree || name.Algo != forecast.AlgoGRU {
		t.Fatalf("stored name fields wrong: %+v", name)
	}

	model, err := registry.Load(stored)
	if err != nil {
		t.Fatalf("Load published model: %v", err)
	}
	if model.Meta.Lookback != 5 || model.Meta.Horizon != 2 {
		t.Fatalf("published meta = %+v", model.Meta)
	}
}
