package nn

import (
	"context"
	"errors"
	"fmt"

	"github.com/born-ml/pretrain/internal/dataset"
	"github.com/born-ml/pretrain/internal/parallel"
	"github.com/born-ml/pretrain/internal/tensor"
)

// BigramWeight is the name of the bigram logits table.
const BigramWeight = "bigram.weight"

// Bigram is a next-token model whose logits depend only on the current
// token: logits(next | cur) = W[cur]. W has shape [vocab, vocab].
type Bigram struct {
	vocab  int
	weight *Parameter
}

// NewBigram creates a bigram model with weights drawn from N(0, 0.02²).
func NewBigram(vocab int, seed uint64) *Bigram {
	if vocab <= 0 {
		panic(fmt.Sprintf("nn: invalid vocabulary size %d", vocab))
	}
	return &Bigram{
		vocab:  vocab,
		weight: NewParameter(BigramWeight, Normal(tensor.Shape{vocab, vocab}, 0.02, seed)),
	}
}

// Vocab returns the vocabulary size.
func (b *Bigram) Vocab() int {
	return b.vocab
}

// Parameters returns the logits table.
func (b *Bigram) Parameters() []*Parameter {
	return []*Parameter{b.weight}
}

// StateDict returns a copy of the weights.
func (b *Bigram) StateDict() map[string]*tensor.RawTensor {
	return ParametersStateDict(b.Parameters())
}

// LoadStateDict replaces the weights.
func (b *Bigram) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return LoadParameters(b.Parameters(), stateDict)
}

func (b *Bigram) row(tok int32) []float32 {
	return b.weight.Tensor().AsFloat32()[int(tok)*b.vocab : (int(tok)+1)*b.vocab]
}

// ErrNoForward is returned by Backward without a preceding Train-mode Loss.
var ErrNoForward = errors.New("nn: backward without forward")

// LanguageModelLoss is the mean next-token cross entropy of a bigram model,
// ignoring positions whose target is the pad index.
type LanguageModelLoss struct {
	model *Bigram
	pad   int32
	cfg   parallel.Config

	pending *dataset.Batch
	count   int
}

// NewLanguageModelLoss creates the objective for model. Rows of a batch are
// evaluated in parallel according to cfg.
func NewLanguageModelLoss(model *Bigram, pad int32, cfg parallel.Config) *LanguageModelLoss {
	return &LanguageModelLoss{model: model, pad: pad, cfg: cfg}
}

// Loss returns the mean cross entropy over the batch's non-pad targets.
func (l *LanguageModelLoss) Loss(ctx context.Context, batch dataset.Batch, mode Mode) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := l.validate(batch); err != nil {
		return 0, err
	}

	sums := make([]float64, batch.Size())
	counts := make([]int, batch.Size())
	parallel.For(batch.Size(), func(i int) {
		for j, cur := range batch.Input[i] {
			tgt := batch.Target[i][j]
			if tgt == l.pad {
				continue
			}
			sums[i] -= logSoftmaxAt(l.model.row(cur), tgt)
			counts[i]++
		}
	}, l.cfg)

	var sum float64
	var count int
	for i := range sums {
		sum += sums[i]
		count += counts[i]
	}
	if count == 0 {
		return 0, fmt.Errorf("nn: batch has no non-pad targets")
	}

	if mode == Train {
		l.pending = &batch
		l.count = count
	}
	return sum / float64(count), nil
}

// Backward accumulates the gradient of scale times the last Train-mode loss
// into the weight gradient.
func (l *LanguageModelLoss) Backward(ctx context.Context, scale float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.pending == nil {
		return ErrNoForward
	}
	batch := l.pending
	l.pending = nil

	grad := l.model.weight.EnsureGrad().AsFloat32()
	vocab := l.model.vocab
	perTarget := float64(scale) / float64(l.count)
	for i := range batch.Input {
		for j, cur := range batch.Input[i] {
			tgt := batch.Target[i][j]
			if tgt == l.pad {
				continue
			}
			softmaxGrad(grad[int(cur)*vocab:(int(cur)+1)*vocab], l.model.row(cur), tgt, perTarget)
		}
	}
	return nil
}

func (l *LanguageModelLoss) validate(batch dataset.Batch) error {
	if batch.Size() == 0 || len(batch.Target) != batch.Size() {
		return fmt.Errorf("nn: malformed batch with %d inputs and %d targets", batch.Size(), len(batch.Target))
	}
	vocab := int32(l.model.vocab) //nolint:gosec // G115: vocabulary size < 2^31
	for i := range batch.Input {
		if len(batch.Input[i]) != len(batch.Target[i]) {
			return fmt.Errorf("nn: row %d has %d inputs and %d targets", i, len(batch.Input[i]), len(batch.Target[i]))
		}
		for j := range batch.Input[i] {
			if cur, tgt := batch.Input[i][j], batch.Target[i][j]; cur < 0 || cur >= vocab || tgt < 0 || tgt >= vocab {
				return fmt.Errorf("nn: token out of range [0, %d) at row %d position %d", vocab, i, j)
			}
		}
	}
	return nil
}
