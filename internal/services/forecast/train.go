package forecast

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"RankPulse/internal/domain/models"
	"RankPulse/pkg/logger"
)

// TrainConfig carries the hyperparameters of one training run.
type TrainConfig struct {
	Lookback     int
	Horizon      int
	Epochs       int
	Batch        int
	Hidden       int
	Layers       int
	Dropout      float64
	LearningRate float64
	MaxRank      int
	Seed         int64
}

func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Lookback:     30,
		Horizon:      7,
		Epochs:       50,
		Batch:        32,
		Hidden:       64,
		Layers:       2,
		Dropout:      0.1,
		LearningRate: 1e-3,
		MaxRank:      DefaultMaxRank,
	}
}

// Trainer fits a GRU regressor by mini-batch gradient descent on mean
// absolute error. Training runs to completion; there is no in-flight
// cancellation.
type Trainer struct {
	log *logger.Logger
}

func NewTrainer(log *logger.Logger) *Trainer {
	return &Trainer{log: log}
}

// Train fits a fresh model on the given supervised windows. An empty
// sample set means the underlying series was too short.
func (tr *Trainer) Train(cfg TrainConfig, samples []Sample) (*Model, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("train: %w", models.ErrInsufficientHistory)
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 32
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	model := NewModel(ModelMeta{
		InputDim: InputDim,
		Hidden:   cfg.Hidden,
		Layers:   cfg.Layers,
		Lookback: cfg.Lookback,
		Horizon:  cfg.Horizon,
		Dropout:  cfg.Dropout,
		MaxRank:  cfg.MaxRank,
	}, rng)

	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}

	start := time.Now()
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		epochLoss := 0.0
		for off := 0; off < len(order); off += cfg.Batch {
			end := off + cfg.Batch
			if end > len(order) {
				end = len(order)
			}
			batch := order[off:end]

			grads := model.newGradients()
			for _, idx := range batch {
				s := samples[idx]
				cache, out := model.forwardPass(s.X, rng)

				dOut := make([]float64, len(out))
				for k := range out {
					diff := out[k] - s.Y[k]
					epochLoss += math.Abs(diff)
					switch {
					case diff > 0:
						dOut[k] = 1.0 / float64(len(out))
					case diff < 0:
						dOut[k] = -1.0 / float64(len(out))
					}
				}
				model.backward(cache, dOut, grads)
			}
			model.applyGradients(grads, cfg.LearningRate, len(batch))
		}

		mae := epochLoss / float64(len(samples)*cfg.Horizon)
		if tr.log != nil && (epoch%10 == 0 || epoch == 1 || epoch == cfg.Epochs) {
			tr.log.Info("training epoch finished",
				logger.Int("epoch", epoch),
				logger.Int("samples", len(samples)),
				logger.Any("mae", mae),
			)
		}
	}

	if tr.log != nil {
		tr.log.Info("training run complete",
			logger.Int("epochs", cfg.Epochs),
			logger.Int("samples", len(samples)),
			logger.Duration("elapsed", time.Since(start)),
		)
	}
	return model, nil
}
