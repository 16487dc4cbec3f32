package classifier

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// TrainOptions controls the shape of the network and the optimizer.
type TrainOptions struct {
	EmbeddingDim int     `mapstructure:"embedding_dim"`
	HiddenUnits  int     `mapstructure:"hidden_units"`
	Epochs       int     `mapstructure:"epochs"`
	BatchSize    int     `mapstructure:"batch_size"`
	LearningRate float64 `mapstructure:"learning_rate"`
	Seed         int64   `mapstructure:"seed"`
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		EmbeddingDim: 16,
		HiddenUnits:  16,
		Epochs:       100,
		BatchSize:    32,
		LearningRate: 0.01,
		Seed:         42,
	}
}

func (o TrainOptions) withDefaults() TrainOptions {
	d := DefaultTrainOptions()
	if o.EmbeddingDim <= 0 {
		o.EmbeddingDim = d.EmbeddingDim
	}
	if o.HiddenUnits <= 0 {
		o.HiddenUnits = d.HiddenUnits
	}
	if o.Epochs <= 0 {
		o.Epochs = d.Epochs
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.LearningRate <= 0 {
		o.LearningRate = d.LearningRate
	}
	return o
}

// Network is a bag-of-embeddings classifier: token embeddings are averaged
// over every position of the padded sequence, passed through one ReLU layer
// and a softmax output layer. Matrices are stored row-major.
type Network struct {
	VocabSize int
	EmbedDim  int
	Hidden    int
	Classes   int

	Embedding []float64 // VocabSize x EmbedDim
	W1        []float64 // Hidden x EmbedDim
	B1        []float64
	W2        []float64 // Classes x Hidden
	B2        []float64
}

func newNetwork(vocabSize, classes int, opts TrainOptions, rng *rand.Rand) *Network {
	n := &Network{
		VocabSize: vocabSize,
		EmbedDim:  opts.EmbeddingDim,
		Hidden:    opts.HiddenUnits,
		Classes:   classes,
		Embedding: make([]float64, vocabSize*opts.EmbeddingDim),
		W1:        make([]float64, opts.HiddenUnits*opts.EmbeddingDim),
		B1:        make([]float64, opts.HiddenUnits),
		W2:        make([]float64, classes*opts.HiddenUnits),
		B2:        make([]float64, classes),
	}
	uniform(n.Embedding, 0.05, rng)
	uniform(n.W1, math.Sqrt(6/float64(n.EmbedDim+n.Hidden)), rng)
	uniform(n.W2, math.Sqrt(6/float64(n.Hidden+n.Classes)), rng)
	return n
}

func uniform(dst []float64, limit float64, rng *rand.Rand) {
	for i := range dst {
		dst[i] = (rng.Float64()*2 - 1) * limit
	}
}

// validate checks that the parameter slices agree with the declared shape.
func (n *Network) validate() error {
	if n.VocabSize <= 0 || n.EmbedDim <= 0 || n.Hidden <= 0 || n.Classes <= 0 {
		return fmt.Errorf("network: invalid shape %dx%dx%dx%d", n.VocabSize, n.EmbedDim, n.Hidden, n.Classes)
	}
	checks := []struct {
		name string
		got  int
		want int
	}{
		{"embedding", len(n.Embedding), n.VocabSize * n.EmbedDim},
		{"w1", len(n.W1), n.Hidden * n.EmbedDim},
		{"b1", len(n.B1), n.Hidden},
		{"w2", len(n.W2), n.Classes * n.Hidden},
		{"b2", len(n.B2), n.Classes},
	}
	for _, c := range checks {
		if c.got != c.want {
			return fmt.Errorf("network: %s has %d values, want %d", c.name, c.got, c.want)
		}
	}
	return nil
}

type activations struct {
	pooled []float64
	pre    []float64
	hidden []float64
	probs  []float64
}

func (n *Network) row(m []float64, i, width int) []float64 {
	return m[i*width : (i+1)*width]
}

func (n *Network) forward(seq []int) *activations {
	a := &activations{
		pooled: make([]float64, n.EmbedDim),
		pre:    make([]float64, n.Hidden),
		hidden: make([]float64, n.Hidden),
		probs:  make([]float64, n.Classes),
	}

	for _, id := range seq {
		floats.Add(a.pooled, n.row(n.Embedding, id, n.EmbedDim))
	}
	if len(seq) > 0 {
		floats.Scale(1/float64(len(seq)), a.pooled)
	}

	for j := 0; j < n.Hidden; j++ {
		a.pre[j] = floats.Dot(n.row(n.W1, j, n.EmbedDim), a.pooled) + n.B1[j]
		a.hidden[j] = math.Max(0, a.pre[j])
	}

	for c := 0; c < n.Classes; c++ {
		a.probs[c] = floats.Dot(n.row(n.W2, c, n.Hidden), a.hidden) + n.B2[c]
	}
	lse := floats.LogSumExp(a.probs)
	for c := range a.probs {
		a.probs[c] = math.Exp(a.probs[c] - lse)
	}
	return a
}

// Probabilities returns the class distribution for a padded sequence.
func (n *Network) Probabilities(seq []int) ([]float64, error) {
	for _, id := range seq {
		if id < 0 || id >= n.VocabSize {
			return nil, fmt.Errorf("token id %d outside vocabulary of %d", id, n.VocabSize)
		}
	}
	return n.forward(seq).probs, nil
}

func (n *Network) params() [][]float64 {
	return [][]float64{n.Embedding, n.W1, n.B1, n.W2, n.B2}
}

func (n *Network) zeroLike() *Network {
	return &Network{
		VocabSize: n.VocabSize,
		EmbedDim:  n.EmbedDim,
		Hidden:    n.Hidden,
		Classes:   n.Classes,
		Embedding: make([]float64, len(n.Embedding)),
		W1:        make([]float64, len(n.W1)),
		B1:        make([]float64, len(n.B1)),
		W2:        make([]float64, len(n.W2)),
		B2:        make([]float64, len(n.B2)),
	}
}

// backprop accumulates the cross-entropy gradient of one example into g and
// returns its loss.
func (n *Network) backprop(seq []int, label int, g *Network) float64 {
	a := n.forward(seq)
	loss := -math.Log(math.Max(a.probs[label], 1e-12))

	dz := make([]float64, n.Classes)
	copy(dz, a.probs)
	dz[label] -= 1

	dh := make([]float64, n.Hidden)
	for c := 0; c < n.Classes; c++ {
		floats.AddScaled(n.row(g.W2, c, n.Hidden), dz[c], a.hidden)
		g.B2[c] += dz[c]
		floats.AddScaled(dh, dz[c], n.row(n.W2, c, n.Hidden))
	}
	for j := range dh {
		if a.pre[j] <= 0 {
			dh[j] = 0
		}
	}

	de := make([]float64, n.EmbedDim)
	for j := 0; j < n.Hidden; j++ {
		floats.AddScaled(n.row(g.W1, j, n.EmbedDim), dh[j], a.pooled)
		g.B1[j] += dh[j]
		floats.AddScaled(de, dh[j], n.row(n.W1, j, n.EmbedDim))
	}

	scale := 1 / float64(len(seq))
	for _, id := range seq {
		floats.AddScaled(n.row(g.Embedding, id, n.EmbedDim), scale, de)
	}
	return loss
}

// fit runs mini-batch Adam over x for opts.Epochs passes and returns the mean
// loss of the final epoch.
func (n *Network) fit(x [][]int, y []int, opts TrainOptions, rng *rand.Rand) float64 {
	grad := n.zeroLike()
	opt := newAdam(n.params(), opts.LearningRate)
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}

	var epochLoss float64
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		epochLoss = 0

		for start := 0; start < len(order); start += opts.BatchSize {
			end := min(start+opts.BatchSize, len(order))
			for _, p := range grad.params() {
				clear(p)
			}
			for _, i := range order[start:end] {
				epochLoss += n.backprop(x[i], y[i], grad)
			}
			for _, p := range grad.params() {
				floats.Scale(1/float64(end-start), p)
			}
			opt.step(n.params(), grad.params())
		}
		epochLoss /= float64(len(order))
	}
	return epochLoss
}

type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	m, v                  [][]float64
}

func newAdam(params [][]float64, lr float64) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7}
	for _, p := range params {
		a.m = append(a.m, make([]float64, len(p)))
		a.v = append(a.v, make([]float64, len(p)))
	}
	return a
}

func (a *adam) step(params, grads [][]float64) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, p := range params {
		g, m, v := grads[i], a.m[i], a.v[i]
		for k := range p {
			m[k] = a.beta1*m[k] + (1-a.beta1)*g[k]
			v[k] = a.beta2*v[k] + (1-a.beta2)*g[k]*g[k]
			p[k] -= a.lr * (m[k] / c1) / (math.Sqrt(v[k]/c2) + a.eps)
		}
	}
}
