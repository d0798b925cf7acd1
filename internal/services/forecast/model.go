package forecast

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// AlgoGRU is the algorithm identifier baked into artifact names and
// descriptors. AlgoLSTM survives only as a legacy upload format.
const (
	AlgoGRU  = "gru"
	AlgoLSTM = "lstm"
)

// ModelMeta travels with the weights and is required to rebuild the
// network shape before loading them.
type ModelMeta struct {
	Algo     string  `json:"algo"`
	InputDim int     `json:"input_dim"`
	Hidden   int     `json:"hidden"`
	Layers   int     `json:"layers"`
	Lookback int     `json:"lookback"`
	Horizon  int     `json:"horizon"`
	Dropout  float64 `json:"dropout"`
	MaxRank  int     `json:"max_rank"`
}

// gruLayer holds one layer's gate weights. W* act on the layer input,
// U* on the recurrent state, all stored row-major.
type gruLayer struct {
	In     int       `json:"in"`
	Hidden int       `json:"hidden"`
	Wz     []float64 `json:"wz"`
	Uz     []float64 `json:"uz"`
	Bz     []float64 `json:"bz"`
	Wr     []float64 `json:"wr"`
	Ur     []float64 `json:"ur"`
	Br     []float64 `json:"br"`
	Wh     []float64 `json:"wh"`
	Uh     []float64 `json:"uh"`
	Bh     []float64 `json:"bh"`
}

// Model is a stacked GRU sequence-to-vector regressor: the final
// step's top hidden state feeds a linear head of width horizon.
type Model struct {
	Meta   ModelMeta   `json:"meta"`
	Stack  []*gruLayer `json:"stack"`
	HeadW  []float64   `json:"head_w"`
	HeadB  []float64   `json:"head_b"`
}

// NewModel builds a model with uniformly initialized weights in
// [-1/sqrt(hidden), 1/sqrt(hidden)].
func NewModel(meta ModelMeta, rng *rand.Rand) *Model {
	meta.Algo = AlgoGRU
	m := &Model{Meta: meta}
	bound := 1.0 / math.Sqrt(float64(meta.Hidden))
	uniform := func(n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = (rng.Float64()*2 - 1) * bound
		}
		return out
	}
	in := meta.InputDim
	for l := 0; l < meta.Layers; l++ {
		h := meta.Hidden
		m.Stack = append(m.Stack, &gruLayer{
			In: in, Hidden: h,
			Wz: uniform(h * in), Uz: uniform(h * h), Bz: uniform(h),
			Wr: uniform(h * in), Ur: uniform(h * h), Br: uniform(h),
			Wh: uniform(h * in), Uh: uniform(h * h), Bh: uniform(h),
		})
		in = h
	}
	m.HeadW = uniform(meta.Horizon * meta.Hidden)
	m.HeadB = uniform(meta.Horizon)
	return m
}

func sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

// matVecTo computes dst = M v for a rows×cols row-major matrix.
func matVecTo(dst, m []float64, rows, cols int, v []float64) {
	for i := 0; i < rows; i++ {
		dst[i] = floats.Dot(m[i*cols:(i+1)*cols], v)
	}
}

// matTVecAdd accumulates dst += Mᵀ v.
func matTVecAdd(dst, m []float64, rows, cols int, v []float64) {
	for i := 0; i < rows; i++ {
		floats.AddScaled(dst, v[i], m[i*cols:(i+1)*cols])
	}
}

// outerAdd accumulates m += a bᵀ into a len(a)×len(b) matrix.
func outerAdd(m, a, b []float64) {
	cols := len(b)
	for i, av := range a {
		if av == 0 {
			continue
		}
		floats.AddScaled(m[i*cols:(i+1)*cols], av, b)
	}
}

// stepState caches one timestep's activations for backprop.
type stepState struct {
	x, hPrev, z, r, rh, hc, h []float64
}

// step runs one GRU cell update and returns the full activation record.
func (g *gruLayer) step(x, hPrev []float64) stepState {
	h := g.Hidden
	s := stepState{
		x: x, hPrev: hPrev,
		z: make([]float64, h), r: make([]float64, h),
		rh: make([]float64, h), hc: make([]float64, h), h: make([]float64, h),
	}
	tmp := make([]float64, h)

	matVecTo(s.z, g.Wz, h, g.In, x)
	matVecTo(tmp, g.Uz, h, h, hPrev)
	floats.Add(s.z, tmp)
	floats.Add(s.z, g.Bz)
	for i := range s.z {
		s.z[i] = sigmoid(s.z[i])
	}

	matVecTo(s.r, g.Wr, h, g.In, x)
	matVecTo(tmp, g.Ur, h, h, hPrev)
	floats.Add(s.r, tmp)
	floats.Add(s.r, g.Br)
	for i := range s.r {
		s.r[i] = sigmoid(s.r[i])
	}

	floats.MulTo(s.rh, s.r, hPrev)
	matVecTo(s.hc, g.Wh, h, g.In, x)
	matVecTo(tmp, g.Uh, h, h, s.rh)
	floats.Add(s.hc, tmp)
	floats.Add(s.hc, g.Bh)
	for i := range s.hc {
		s.hc[i] = math.Tanh(s.hc[i])
	}

	// h = (1-z)*hPrev + z*hc
	for i := range s.h {
		s.h[i] = (1-s.z[i])*hPrev[i] + s.z[i]*s.hc[i]
	}
	return s
}

// forwardPass runs the stack over a sequence. When rng is non-nil,
// inverted dropout is applied to every layer output except the top
// one, and all activations are cached for backprop.
type forwardCache struct {
	steps [][]stepState // [layer][t]
	masks [][][]float64 // [layer][t], nil for the top layer
	last  []float64
}

func (m *Model) forwardPass(x [][]float64, rng *rand.Rand) (*forwardCache, []float64) {
	nl := len(m.Stack)
	cache := &forwardCache{
		steps: make([][]stepState, nl),
		masks: make([][][]float64, nl),
	}
	seq := x
	for l, layer := range m.Stack {
		hPrev := make([]float64, layer.Hidden)
		outSeq := make([][]float64, len(seq))
		cache.steps[l] = make([]stepState, len(seq))
		dropped := rng != nil && m.Meta.Dropout > 0 && l < nl-1
		if dropped {
			cache.masks[l] = make([][]float64, len(seq))
		}
		for t := range seq {
			s := layer.step(seq[t], hPrev)
			cache.steps[l][t] = s
			hPrev = s.h
			out := s.h
			if dropped {
				keep := 1 - m.Meta.Dropout
				mask := make([]float64, len(out))
				for i := range mask {
					if rng.Float64() < keep {
						mask[i] = 1 / keep
					}
				}
				cache.masks[l][t] = mask
				scaled := make([]float64, len(out))
				floats.MulTo(scaled, out, mask)
				out = scaled
			}
			outSeq[t] = out
		}
		seq = outSeq
	}
	cache.last = seq[len(seq)-1]

	out := make([]float64, m.Meta.Horizon)
	matVecTo(out, m.HeadW, m.Meta.Horizon, m.Meta.Hidden, cache.last)
	floats.Add(out, m.HeadB)
	return cache, out
}

// Predict runs inference over one lookback-length input sequence and
// returns the horizon-length normalized-rank vector.
func (m *Model) Predict(x [][]float64) []float64 {
	_, out := m.forwardPass(x, nil)
	return out
}

// gradients mirrors the model's parameter layout.
type gradients struct {
	stack []*gruLayer
	headW []float64
	headB []float64
}

func (m *Model) newGradients() *gradients {
	g := &gradients{
		headW: make([]float64, len(m.HeadW)),
		headB: make([]float64, len(m.HeadB)),
	}
	for _, l := range m.Stack {
		g.stack = append(g.stack, &gruLayer{
			In: l.In, Hidden: l.Hidden,
			Wz: make([]float64, len(l.Wz)), Uz: make([]float64, len(l.Uz)), Bz: make([]float64, len(l.Bz)),
			Wr: make([]float64, len(l.Wr)), Ur: make([]float64, len(l.Ur)), Br: make([]float64, len(l.Br)),
			Wh: make([]float64, len(l.Wh)), Uh: make([]float64, len(l.Uh)), Bh: make([]float64, len(l.Bh)),
		})
	}
	return g
}

// backward accumulates parameter gradients for one sample given
// dOut = dL/d(head output), walking the head, then each layer
// top-down with truncated-nowhere BPTT over the full sequence.
func (m *Model) backward(cache *forwardCache, dOut []float64, g *gradients) {
	hidden := m.Meta.Hidden
	nl := len(m.Stack)
	T := len(cache.steps[0])

	outerAdd(g.headW, dOut, cache.last)
	floats.Add(g.headB, dOut)

	dLast := make([]float64, hidden)
	matTVecAdd(dLast, m.HeadW, m.Meta.Horizon, hidden, dOut)

	// Per-timestep gradients flowing into each layer's output.
	outGrad := make([][]float64, T)
	for t := range outGrad {
		outGrad[t] = make([]float64, hidden)
	}
	floats.Add(outGrad[T-1], dLast)

	for l := nl - 1; l >= 0; l-- {
		layer := m.Stack[l]
		lg := g.stack[l]

		// Undo the dropout scaling applied to this layer's output.
		if cache.masks[l] != nil {
			for t := range outGrad {
				floats.Mul(outGrad[t], cache.masks[l][t])
			}
		}

		dxSeq := make([][]float64, T)
		dh := make([]float64, hidden)
		tmp := make([]float64, hidden)
		for t := T - 1; t >= 0; t-- {
			s := cache.steps[l][t]
			floats.Add(dh, outGrad[t])

			dhPrev := make([]float64, hidden)
			dah := make([]float64, hidden)
			daz := make([]float64, hidden)
			dar := make([]float64, hidden)
			for i := 0; i < hidden; i++ {
				dhc := dh[i] * s.z[i]
				dz := dh[i] * (s.hc[i] - s.hPrev[i])
				dhPrev[i] = dh[i] * (1 - s.z[i])
				dah[i] = dhc * (1 - s.hc[i]*s.hc[i])
				daz[i] = dz * s.z[i] * (1 - s.z[i])
			}

			// Candidate path: reset gate sits between Uh and hPrev.
			for i := range tmp {
				tmp[i] = 0
			}
			matTVecAdd(tmp, layer.Uh, hidden, hidden, dah) // drh
			for i := 0; i < hidden; i++ {
				dr := tmp[i] * s.hPrev[i]
				dar[i] = dr * s.r[i] * (1 - s.r[i])
				dhPrev[i] += tmp[i] * s.r[i]
			}

			outerAdd(lg.Wh, dah, s.x)
			outerAdd(lg.Uh, dah, s.rh)
			floats.Add(lg.Bh, dah)
			outerAdd(lg.Wz, daz, s.x)
			outerAdd(lg.Uz, daz, s.hPrev)
			floats.Add(lg.Bz, daz)
			outerAdd(lg.Wr, dar, s.x)
			outerAdd(lg.Ur, dar, s.hPrev)
			floats.Add(lg.Br, dar)

			matTVecAdd(dhPrev, layer.Uz, hidden, hidden, daz)
			matTVecAdd(dhPrev, layer.Ur, hidden, hidden, dar)

			dx := make([]float64, layer.In)
			matTVecAdd(dx, layer.Wz, hidden, layer.In, daz)
			matTVecAdd(dx, layer.Wr, hidden, layer.In, dar)
			matTVecAdd(dx, layer.Wh, hidden, layer.In, dah)
			dxSeq[t] = dx

			dh = dhPrev
		}

		// The layer's input gradients feed the layer below.
		if l > 0 {
			outGrad = dxSeq
		}
	}
}

// applyGradients performs one SGD step: w -= lr/batch * grad.
func (m *Model) applyGradients(g *gradients, lr float64, batch int) {
	scale := -lr / float64(batch)
	upd := func(w, gw []float64) { floats.AddScaled(w, scale, gw) }
	for l, layer := range m.Stack {
		lg := g.stack[l]
		upd(layer.Wz, lg.Wz)
		upd(layer.Uz, lg.Uz)
		upd(layer.Bz, lg.Bz)
		upd(layer.Wr, lg.Wr)
		upd(layer.Ur, lg.Ur)
		upd(layer.Br, lg.Br)
		upd(layer.Wh, lg.Wh)
		upd(layer.Uh, lg.Uh)
		upd(layer.Bh, lg.Bh)
	}
	upd(m.HeadW, g.headW)
	upd(m.HeadB, g.headB)
}
