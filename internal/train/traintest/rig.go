// Package traintest builds small deterministic trainers for tests.
package traintest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/pretrain/internal/checkpoint"
	"github.com/born-ml/pretrain/internal/dataset"
	"github.com/born-ml/pretrain/internal/metrics"
	"github.com/born-ml/pretrain/internal/nn"
	"github.com/born-ml/pretrain/internal/optim"
	"github.com/born-ml/pretrain/internal/parallel"
	"github.com/born-ml/pretrain/internal/tensor"
	"github.com/born-ml/pretrain/internal/train"
)

// Corpus is the default training text.
const Corpus = `a b c d
b c a
c a b d d
a a
b b c
d c a
a d
c c b a
`

// Config sizes a Rig. Zero values select defaults.
type Config struct {
	Iterations int64
	Seed       uint64
	LR         float32
	Words      []string
	Shard      dataset.Shard
}

// Rig is a bigram language model wired into a Trainer.
type Rig struct {
	Trainer   *train.Trainer
	Model     *nn.Bigram
	Objective *nn.LanguageModelLoss
	Optimizer *optim.AdamW
	Scheduler *optim.LambdaLR
	Train     *dataset.Corpus
	Eval      *dataset.Corpus
	Recorder  *metrics.Recorder
}

// New builds a rig. Rigs built from equal configs are bit-identical.
func New(t testing.TB, cfg Config) *Rig {
	t.Helper()
	if cfg.Iterations == 0 {
		cfg.Iterations = 10
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	if cfg.LR == 0 {
		cfg.LR = 0.05
	}
	if cfg.Words == nil {
		cfg.Words = []string{"a", "b", "c", "d"}
	}
	if cfg.Shard.Count == 0 {
		cfg.Shard = dataset.NoShard
	}

	vocab := dataset.NewVocab(cfg.Words)
	trainCursor, err := dataset.ReadCorpus(strings.NewReader(Corpus), vocab, 6, cfg.Shard)
	require.NoError(t, err)
	evalCursor, err := dataset.ReadCorpus(strings.NewReader(Corpus), vocab, 6, dataset.NoShard)
	require.NoError(t, err)

	model := nn.NewBigram(vocab.Len(), cfg.Seed)
	objective := nn.NewLanguageModelLoss(model, vocab.PadIndex(), parallel.Sequential)
	optimizer := optim.NewAdamW(model.Parameters(), optim.AdamWConfig{LR: cfg.LR, WeightDecay: 0.01})
	scheduler := optim.NewLambdaLR(optimizer, optim.LinearDecay(cfg.Iterations))
	recorder := metrics.NewRecorder()

	trainer, err := train.New(train.Options{
		Model:      model,
		Optimizer:  optimizer,
		Scheduler:  scheduler,
		Objective:  objective,
		Train:      trainCursor,
		Eval:       evalCursor,
		Iterations: cfg.Iterations,
		Recorder:   recorder,
		Store:      checkpoint.NewStore("traintest"),
	})
	require.NoError(t, err)

	return &Rig{
		Trainer:   trainer,
		Model:     model,
		Objective: objective,
		Optimizer: optimizer,
		Scheduler: scheduler,
		Train:     trainCursor,
		Eval:      evalCursor,
		Recorder:  recorder,
	}
}

// Weights returns a copy of the model weights.
func (r *Rig) Weights() []float32 {
	return append([]float32(nil), r.Model.Parameters()[0].Tensor().AsFloat32()...)
}

// States returns copies of the model, optimizer and scheduler state.
func (r *Rig) States() []map[string]*tensor.RawTensor {
	return []map[string]*tensor.RawTensor{
		r.Model.StateDict(),
		r.Optimizer.StateDict(),
		r.Scheduler.StateDict(),
	}
}

// RequireSameStates fails unless want and got hold bit-identical tensors.
func RequireSameStates(t testing.TB, want, got []map[string]*tensor.RawTensor) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Len(t, got[i], len(want[i]))
		for key, raw := range want[i] {
			require.Contains(t, got[i], key)
			require.True(t, raw.Equal(got[i][key]), "state %d key %s differs", i, key)
		}
	}
}
