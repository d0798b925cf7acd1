package forecast

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"

	"RankPulse/internal/domain/models"
)

func tinyModel(t *testing.T, layers int) *Model {
	t.Helper()
	return NewModel(ModelMeta{
		InputDim: 3,
		Hidden:   4,
		Layers:   layers,
		Lookback: 5,
		Horizon:  2,
		MaxRank:  DefaultMaxRank,
	}, rand.New(rand.NewSource(7)))
}

func tinyInput(t *testing.T, T, dim int) [][]float64 {
	t.Helper()
	rng := rand.New(rand.NewSource(11))
	x := make([][]float64, T)
	for i := range x {
		x[i] = make([]float64, dim)
		for j := range x[i] {
			x[i][j] = rng.Float64()*2 - 1
		}
	}
	return x
}

func modelParams(m *Model) [][]float64 {
	var out [][]float64
	for _, l := range m.Stack {
		out = append(out, l.Wz, l.Uz, l.Bz, l.Wr, l.Ur, l.Br, l.Wh, l.Uh, l.Bh)
	}
	return append(out, m.HeadW, m.HeadB)
}

func gradParams(g *gradients) [][]float64 {
	var out [][]float64
	for _, l := range g.stack {
		out = append(out, l.Wz, l.Uz, l.Bz, l.Wr, l.Ur, l.Br, l.Wh, l.Uh, l.Bh)
	}
	return append(out, g.headW, g.headB)
}

// Checks every analytic gradient against a central finite difference
// of the scalar loss L = sum(output).
func TestBackwardMatchesFiniteDifference(t *testing.T) {
	m := tinyModel(t, 2)
	x := tinyInput(t, 5, 3)

	loss := func() float64 {
		sum := 0.0
		for _, v := range m.Predict(x) {
			sum += v
		}
		return sum
	}

	cache, out := m.forwardPass(x, nil)
	dOut := make([]float64, len(out))
	for i := range dOut {
		dOut[i] = 1
	}
	grads := m.newGradients()
	m.backward(cache, dOut, grads)

	const eps = 1e-6
	ps := modelParams(m)
	gs := gradParams(grads)
	for pi, p := range ps {
		// Spot-check a few positions per parameter block.
		for _, idx := range []int{0, len(p) / 2, len(p) - 1} {
			orig := p[idx]
			p[idx] = orig + eps
			up := loss()
			p[idx] = orig - eps
			down := loss()
			p[idx] = orig

			numeric := (up - down) / (2 * eps)
			analytic := gs[pi][idx]
			if math.Abs(numeric-analytic) > 1e-5*(1+math.Abs(numeric)) {
				t.Fatalf("param block %d idx %d: analytic %v vs numeric %v", pi, idx, analytic, numeric)
			}
		}
	}
}

func TestPredictShapeAndDeterminism(t *testing.T) {
	m := tinyModel(t, 2)
	x := tinyInput(t, 5, 3)
	a := m.Predict(x)
	b := m.Predict(x)
	if len(a) != 2 {
		t.Fatalf("output length = %d, want horizon 2", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("inference must be deterministic: %v vs %v", a, b)
		}
	}
}

func TestModelJSONRoundTrip(t *testing.T) {
	m := tinyModel(t, 2)
	x := tinyInput(t, 5, 3)
	want := m.Predict(x)

	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Model
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := back.Predict(x)
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-15 {
			t.Fatalf("prediction drifted after round trip: %v vs %v", got, want)
		}
	}
	if back.Meta.Algo != AlgoGRU {
		t.Fatalf("meta.algo = %q, want %q", back.Meta.Algo, AlgoGRU)
	}
}

func TestTrainRejectsEmptySampleSet(t *testing.T) {
	tr := NewTrainer(nil)
	if _, err := tr.Train(DefaultTrainConfig(), nil); !errors.Is(err, models.ErrInsufficientHistory) {
		t.Fatalf("err = %v, want ErrInsufficientHistory", err)
	}
}

func TestTrainReducesLossOnConstantSeries(t *testing.T) {
	// A constant normalized rank is trivially learnable; a few hundred
	// SGD steps must beat the random initialization by a wide margin.
	cfg := TrainConfig{
		Lookback: 5, Horizon: 2, Epochs: 200, Batch: 4,
		Hidden: 8, Layers: 1, Dropout: 0, LearningRate: 0.02,
		MaxRank: DefaultMaxRank, Seed: 42,
	}
	const target = 0.25
	var samples []Sample
	for i := 0; i < 8; i++ {
		x := make([][]float64, cfg.Lookback)
		for j := range x {
			x[j] = []float64{target, 0, 0.5, 0.5}
		}
		samples = append(samples, Sample{X: x, Y: []float64{target, target}})
	}

	tr := NewTrainer(nil)
	m, err := tr.Train(cfg, samples)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	mae := 0.0
	for _, s := range samples {
		out := m.Predict(s.X)
		for k := range out {
			mae += math.Abs(out[k] - s.Y[k])
		}
	}
	mae /= float64(len(samples) * cfg.Horizon)
	if mae > 0.05 {
		t.Fatalf("trained MAE = %v, expected near-zero on a constant series", mae)
	}
	if m.Meta.Lookback != cfg.Lookback || m.Meta.Horizon != cfg.Horizon {
		t.Fatalf("meta not propagated: %+v", m.Meta)
	}
}
