package dataset

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pretrain/internal/tensor"
)

const testCorpus = `a b c
b c
this line is far too long for the sequence
c a
a
`

func newTestCorpus(t *testing.T, shard Shard) (*Vocab, *Corpus) {
	t.Helper()
	vocab := NewVocab([]string{"a", "b", "c"})
	corpus, err := ReadCorpus(strings.NewReader(testCorpus), vocab, 5, shard)
	require.NoError(t, err)
	return vocab, corpus
}

func TestVocab(t *testing.T) {
	vocab, err := ReadVocab(strings.NewReader("a b\nc <unk>\n"))
	require.NoError(t, err)

	assert.Equal(t, 7, vocab.Len())
	assert.Equal(t, int32(0), vocab.BosIndex())
	assert.Equal(t, int32(1), vocab.EosIndex())
	assert.Equal(t, int32(2), vocab.PadIndex())
	assert.Equal(t, int32(3), vocab.Index("a"))
	assert.Equal(t, int32(6), vocab.UnkIndex())
	assert.Equal(t, vocab.UnkIndex(), vocab.Index("zzz"))
	assert.Equal(t, "c", vocab.Word(5))
	assert.Equal(t, UnkToken, vocab.Word(100))

	_, err = ReadVocab(strings.NewReader("  \n"))
	require.Error(t, err)
}

func TestCorpusEncoding(t *testing.T) {
	vocab, corpus := newTestCorpus(t, NoShard)
	require.Equal(t, 4, corpus.Len(), "long line must be skipped")

	batch, err := corpus.Next(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, batch.Size())

	bos, eos, pad := vocab.BosIndex(), vocab.EosIndex(), vocab.PadIndex()
	a, b, c := vocab.Index("a"), vocab.Index("b"), vocab.Index("c")
	assert.Equal(t, []int32{bos, a, b, c, eos}, batch.Input[0])
	assert.Equal(t, []int32{a, b, c, eos, pad}, batch.Target[0])
}

func TestCorpusCycles(t *testing.T) {
	ctx := context.Background()
	_, corpus := newTestCorpus(t, NoShard)

	var firsts [][]int32
	for range 3 {
		batch, err := corpus.Next(ctx, 3)
		require.NoError(t, err)
		firsts = append(firsts, batch.Input[0])
	}
	// 4 examples, batches of 3: starts at 0, 3, 2.
	assert.Equal(t, 1, corpus.Position())
	assert.Equal(t, corpus.seqs[0][:5], firsts[0])
	assert.Equal(t, corpus.seqs[3][:5], firsts[1])
	assert.Equal(t, corpus.seqs[2][:5], firsts[2])
}

func TestCorpusNextErrorLeavesPosition(t *testing.T) {
	_, corpus := newTestCorpus(t, NoShard)

	_, err := corpus.Next(context.Background(), 0)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = corpus.Next(ctx, 2)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 0, corpus.Position())
}

func TestCorpusStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, corpus := newTestCorpus(t, NoShard)
	_, err := corpus.Next(ctx, 3)
	require.NoError(t, err)
	state := corpus.StateDict()

	want, err := corpus.Next(ctx, 2)
	require.NoError(t, err)

	_, fresh := newTestCorpus(t, NoShard)
	require.NoError(t, fresh.LoadStateDict(state))
	got, err := fresh.Next(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCorpusLoadStateRejectsInvalid(t *testing.T) {
	_, corpus := newTestCorpus(t, NoShard)

	err := corpus.LoadStateDict(map[string]*tensor.RawTensor{"consumed": tensor.ScalarInt64(-1)})
	require.Error(t, err)

	err = corpus.LoadStateDict(map[string]*tensor.RawTensor{"position": tensor.ScalarInt64(1)})
	require.Error(t, err)

	err = corpus.LoadStateDict(map[string]*tensor.RawTensor{"consumed": tensor.ScalarFloat32(1)})
	require.Error(t, err)
	assert.Equal(t, 0, corpus.Position())
}

func TestCorpusStateSharedAcrossShards(t *testing.T) {
	ctx := context.Background()
	_, even := newTestCorpus(t, Shard{Index: 0, Count: 2})
	_, odd := newTestCorpus(t, Shard{Index: 1, Count: 2})
	_, err := even.Next(ctx, 3)
	require.NoError(t, err)

	require.NoError(t, odd.LoadStateDict(even.StateDict()))
	assert.Equal(t, int64(3), odd.Consumed())
	assert.Equal(t, 3%odd.Len(), odd.Position())
}

func TestCorpusShard(t *testing.T) {
	_, even := newTestCorpus(t, Shard{Index: 0, Count: 2})
	_, odd := newTestCorpus(t, Shard{Index: 1, Count: 2})

	// Lines 0, 2 (too long), 4 and lines 1, 3.
	assert.Equal(t, 2, even.Len())
	assert.Equal(t, 2, odd.Len())

	vocab := NewVocab([]string{"a"})
	_, err := ReadCorpus(strings.NewReader(testCorpus), vocab, 5, Shard{Index: 2, Count: 2})
	require.Error(t, err)
}

func TestCorpusEmpty(t *testing.T) {
	vocab := NewVocab([]string{"a"})
	_, err := ReadCorpus(strings.NewReader("\n\n"), vocab, 5, NoShard)
	require.Error(t, err)
}

func TestLoadFromFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	vocabPath := filepath.Join(dir, "vocab.txt")
	corpusPath := filepath.Join(dir, "corpus.txt")
	require.NoError(t, os.WriteFile(vocabPath, []byte("a\nb\nc\n"), 0o600))
	require.NoError(t, os.WriteFile(corpusPath, []byte(testCorpus), 0o600))

	vocab, err := LoadVocab(ctx, vocabPath)
	require.NoError(t, err)
	corpus, err := LoadCorpus(ctx, corpusPath, vocab, 5, NoShard)
	require.NoError(t, err)
	assert.Equal(t, 4, corpus.Len())

	_, err = LoadCorpus(ctx, filepath.Join(dir, "missing.txt"), vocab, 5, NoShard)
	require.Error(t, err)
}

type runeEncoder struct{}

func (runeEncoder) Encode(text string) []int {
	ids := make([]int, 0, len(text))
	for _, r := range text {
		if r != ' ' {
			ids = append(ids, int(r))
		}
	}
	return ids
}

func TestPrepare(t *testing.T) {
	var corpus, vocab bytes.Buffer
	stats, err := Prepare(context.Background(), runeEncoder{}, strings.NewReader("ba\n\n  cab \n"), &corpus, &vocab)
	require.NoError(t, err)

	assert.Equal(t, PrepareStats{Lines: 2, Tokens: 5, Vocab: 3}, stats)
	assert.Equal(t, "98 97\n99 97 98\n", corpus.String())
	assert.Equal(t, "97\n98\n99\n", vocab.String())
}

func TestPrepareFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw.txt")
	require.NoError(t, os.WriteFile(raw, []byte("ab\nb\n"), 0o600))

	corpusPath := filepath.Join(dir, "corpus.txt")
	vocabPath := filepath.Join(dir, "vocab.txt")
	stats, err := PrepareFiles(ctx, runeEncoder{}, raw, corpusPath, vocabPath)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Lines)

	vocab, err := LoadVocab(ctx, vocabPath)
	require.NoError(t, err)
	corpus, err := LoadCorpus(ctx, corpusPath, vocab, 8, NoShard)
	require.NoError(t, err)
	assert.Equal(t, 2, corpus.Len())
	assert.NotEqual(t, vocab.UnkIndex(), vocab.Index("97"))
}
