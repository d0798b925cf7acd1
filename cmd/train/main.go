package main

import (
	"context"
	"flag"
	"log"

	"RankPulse/internal/di"
	"RankPulse/internal/domain/models"
	"RankPulse/internal/services/forecast"
	"RankPulse/internal/usecase"
	"RankPulse/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	country := flag.String("country", "", "country code (required)")
	device := flag.String("device", "", "device: iphone, ipad or android (required)")
	chart := flag.String("chart", "", "chart: free, paid or grossing (required)")
	appID := flag.String("app", "", "optional app id to narrow the training set")
	lookback := flag.Int("lookback", 30, "input window length in days")
	horizon := flag.Int("horizon", 7, "predicted days")
	extraDays := flag.Int("extra-days", 60, "history fetched beyond lookback+horizon")
	epochs := flag.Int("epochs", 50, "training epochs")
	batch := flag.Int("batch", 32, "mini-batch size")
	hidden := flag.Int("hidden", 64, "hidden units per layer")
	layers := flag.Int("layers", 2, "stacked recurrent layers")
	dropout := flag.Float64("dropout", 0.1, "dropout between layers")
	lr := flag.Float64("lr", 1e-3, "learning rate")
	seed := flag.Int64("seed", 0, "random seed (0 = time-based)")
	flag.Parse()

	if *country == "" || *device == "" || *chart == "" {
		log.Fatal("country, device and chart are required")
	}
	chartType, err := models.ParseChartType(*chart)
	if err != nil {
		log.Fatalf("invalid chart: %v", err)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	l, err := di.ProvideLogger(cfg)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	chClient, err := di.ProvideClickHouseClient(cfg)
	if err != nil {
		log.Fatalf("clickhouse init failed: %v", err)
	}
	defer chClient.Close()

	store := di.ProvideRankingStore(chClient, l)
	registry := di.ProvideRegistry(cfg, l)
	builder := di.ProvideDatasetBuilder(cfg)
	trainer := di.ProvideTrainer(l)
	uc := di.ProvideTrainUseCase(store, registry, builder, trainer, l)

	stored, err := uc.Train(context.Background(), usecase.TrainParams{
		Country:   *country,
		Device:    *device,
		Chart:     chartType,
		AppID:     *appID,
		ExtraDays: *extraDays,
		Config: forecast.TrainConfig{
			Lookback:     *lookback,
			Horizon:      *horizon,
			Epochs:       *epochs,
			Batch:        *batch,
			Hidden:       *hidden,
			Layers:       *layers,
			Dropout:      *dropout,
			LearningRate: *lr,
			MaxRank:      builder.MaxRank(),
			Seed:         *seed,
		},
	})
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	log.Printf("model published: %s", stored)
}
