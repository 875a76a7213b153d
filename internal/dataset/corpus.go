package dataset

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/file"

	"github.com/born-ml/pretrain/internal/tensor"
)

// Corpus is a Cursor over a tokenized corpus held in memory. Each usable
// line becomes one example of exactly seqLen input and target tokens:
//
//	input:  <s> w1 w2 ... wn </s> <pad> ...
//	target: w1  w2 ... wn </s> <pad> ...
//
// Lines with more than seqLen-1 tokens are skipped. The cursor cycles over
// the examples forever.
//
// The persisted state is the number of examples consumed, not an index, so
// replicas reading different shards of the same corpus share one state.
type Corpus struct {
	seqs     [][]int32
	seqLen   int
	pad      int32
	consumed int64
}

// ReadCorpus encodes every line of r that belongs to shard.
func ReadCorpus(r io.Reader, vocab *Vocab, seqLen int, shard Shard) (*Corpus, error) {
	if seqLen < 2 {
		return nil, fmt.Errorf("sequence length %d too short", seqLen)
	}
	if shard.Count > 1 && (shard.Index < 0 || shard.Index >= shard.Count) {
		return nil, fmt.Errorf("invalid shard %d of %d", shard.Index, shard.Count)
	}

	c := &Corpus{seqLen: seqLen, pad: vocab.PadIndex()}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for line := 0; scanner.Scan(); line++ {
		if !shard.keeps(line) {
			continue
		}
		words := strings.Fields(scanner.Text())
		if len(words) == 0 || len(words)+2 > seqLen+1 {
			continue
		}
		seq := make([]int32, 0, seqLen+1)
		seq = append(seq, vocab.BosIndex())
		for _, w := range words {
			seq = append(seq, vocab.Index(w))
		}
		seq = append(seq, vocab.EosIndex())
		for len(seq) < seqLen+1 {
			seq = append(seq, c.pad)
		}
		c.seqs = append(c.seqs, seq)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	if len(c.seqs) == 0 {
		return nil, fmt.Errorf("corpus has no sequences of at most %d tokens", seqLen-1)
	}
	return c, nil
}

// LoadCorpus reads and encodes a corpus file. path may be any location
// supported by grailbio/base/file.
func LoadCorpus(ctx context.Context, path string, vocab *Vocab, seqLen int, shard Shard) (corpus *Corpus, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	corpus, err = ReadCorpus(f.Reader(ctx), vocab, seqLen, shard)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return corpus, nil
}

// Len returns the number of examples.
func (c *Corpus) Len() int {
	return len(c.seqs)
}

// Position returns the index of the next example.
func (c *Corpus) Position() int {
	return int(c.consumed % int64(len(c.seqs)))
}

// Consumed returns the number of examples handed out so far.
func (c *Corpus) Consumed() int64 {
	return c.consumed
}

// Next returns the next batchSize examples, wrapping around the corpus.
func (c *Corpus) Next(ctx context.Context, batchSize int) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if batchSize <= 0 {
		return Batch{}, fmt.Errorf("invalid batch size %d", batchSize)
	}
	batch := Batch{
		Input:  make([][]int32, batchSize),
		Target: make([][]int32, batchSize),
	}
	pos := c.Position()
	for i := range batchSize {
		seq := c.seqs[pos]
		batch.Input[i] = seq[:c.seqLen]
		batch.Target[i] = seq[1:]
		pos = (pos + 1) % len(c.seqs)
	}
	c.consumed += int64(batchSize)
	return batch, nil
}

// StateDict returns the number of consumed examples.
func (c *Corpus) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"consumed": tensor.ScalarInt64(c.consumed),
	}
}

// LoadStateDict restores the number of consumed examples.
func (c *Corpus) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	consumed, err := scalarInt64(stateDict, "consumed")
	if err != nil {
		return err
	}
	if consumed < 0 {
		return fmt.Errorf("negative consumed count %d", consumed)
	}
	c.consumed = consumed
	return nil
}

func scalarInt64(stateDict map[string]*tensor.RawTensor, key string) (int64, error) {
	raw, ok := stateDict[key]
	if !ok {
		return 0, fmt.Errorf("missing %q", key)
	}
	if raw.DType() != tensor.Int64 || raw.NumElements() != 1 {
		return 0, fmt.Errorf("%q: want int64 scalar, got %s%v", key, raw.DType(), raw.Shape())
	}
	return raw.AsInt64()[0], nil
}
