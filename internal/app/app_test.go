package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pretrain/internal/checkpoint"
	"github.com/born-ml/pretrain/internal/config"
	"github.com/born-ml/pretrain/internal/ctxlog"
	"github.com/born-ml/pretrain/internal/distributed"
	"github.com/born-ml/pretrain/internal/metrics"
)

const testCorpus = `a b c d
b c a
c a b d d
a a
b b c
d c a
a d
c c b a
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	vocab := filepath.Join(dir, "vocab.txt")
	corpus := filepath.Join(dir, "corpus.txt")
	require.NoError(t, os.WriteFile(vocab, []byte("a\nb\nc\nd\n"), 0o600))
	require.NoError(t, os.WriteFile(corpus, []byte(testCorpus), 0o600))

	cfg := config.Default()
	cfg.TrainCorpus = corpus
	cfg.EvalCorpus = corpus
	cfg.Vocab = vocab
	cfg.SeqLen = 6
	cfg.Heads = 1
	cfg.Dims = 8
	cfg.BatchTrain = 4
	cfg.BatchEval = 4
	cfg.BaseLR = 0.05
	cfg.Iterations = 6
	cfg.EvalIters = 2
	cfg.SaveIters = 4
	cfg.Checkpoint = filepath.Join(dir, "ckpt.born")
	cfg.ModelOut = filepath.Join(dir, "model.born")
	require.NoError(t, cfg.Validate())
	return cfg
}

func testContext(t *testing.T) (context.Context, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	return ctxlog.WithLogger(context.Background(), NewLogger("debug", "text", &logs)), &logs
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	NewLogger("bogus", "text", &buf).Info("info is the default")
	assert.Contains(t, buf.String(), "level=INFO")
}

func TestTrainWritesArtifacts(t *testing.T) {
	ctx, logs := testContext(t)
	cfg := testConfig(t)

	require.NoError(t, Train(ctx, cfg))
	assert.Contains(t, logs.String(), "Training finished.")

	store := checkpoint.NewStore(CreatedBy)
	ckpt, err := store.LoadCheckpoint(ctx, cfg.Checkpoint)
	require.NoError(t, err)
	assert.Equal(t, int64(4), ckpt.Step)
	assert.Equal(t, "6", ckpt.Metadata["iterations"])

	model, err := store.LoadModel(ctx, cfg.ModelOut)
	require.NoError(t, err)
	assert.Equal(t, int64(6), model.Step)
	assert.Len(t, model.Metrics.Series(metrics.TrainLoss), 6)
	assert.Len(t, model.Metrics.Series(metrics.EvalLoss), 3)
}

func TestTrainResumeMatchesFullRun(t *testing.T) {
	ctx, _ := testContext(t)
	cfg := testConfig(t)
	require.NoError(t, Train(ctx, cfg))

	store := checkpoint.NewStore(CreatedBy)
	full, err := store.LoadModel(ctx, cfg.ModelOut)
	require.NoError(t, err)

	resumed := cfg
	resumed.Resume = true
	resumed.ModelOut = filepath.Join(t.TempDir(), "resumed.born")
	require.NoError(t, Train(ctx, resumed))

	got, err := store.LoadModel(ctx, resumed.ModelOut)
	require.NoError(t, err)
	assert.Equal(t, full.Step, got.Step)

	assert.True(t, full.Metrics.Equal(got.Metrics), "metric history differs after resume")

	wantW := full.Records[checkpoint.RecordModel].State["bigram.weight"]
	gotW := got.Records[checkpoint.RecordModel].State["bigram.weight"]
	assert.True(t, wantW.Equal(gotW), "weights differ after resume")
	assert.Equal(t, wantW.AsFloat32(), gotW.AsFloat32())
}

func TestTrainInitFrom(t *testing.T) {
	ctx, _ := testContext(t)
	cfg := testConfig(t)
	cfg.UseAMP = true
	require.NoError(t, Train(ctx, cfg))

	next := cfg
	next.InitFrom = cfg.ModelOut
	next.Checkpoint = filepath.Join(t.TempDir(), "next.ckpt")
	next.ModelOut = filepath.Join(t.TempDir(), "next.born")
	require.NoError(t, Train(ctx, next))

	got, err := checkpoint.NewStore(CreatedBy).LoadCheckpoint(ctx, next.Checkpoint)
	require.NoError(t, err)
	assert.Contains(t, got.Records, "amp")
}

func TestTrainResumeMissingCheckpoint(t *testing.T) {
	ctx, _ := testContext(t)
	cfg := testConfig(t)
	cfg.Resume = true

	err := Train(ctx, cfg)
	require.ErrorIs(t, err, checkpoint.ErrMissing)
}

func TestTrainRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Iterations = 0
	require.Error(t, Train(context.Background(), cfg))
}

func TestTrainTwoDevices(t *testing.T) {
	provider := distributed.NewCPUDevices()
	if provider.Count() < 2 {
		t.Skip("needs two logical cores")
	}
	ctx, logs := testContext(t)
	cfg := testConfig(t)
	cfg.Devices = []int{0, 1}

	require.NoError(t, TrainOn(ctx, cfg, provider))
	assert.Contains(t, logs.String(), "rank=0")
	assert.Contains(t, logs.String(), "rank=1")

	model, err := checkpoint.NewStore(CreatedBy).LoadModel(ctx, cfg.ModelOut)
	require.NoError(t, err)
	assert.Equal(t, int64(6), model.Step)
}

func TestMetrics(t *testing.T) {
	ctx, _ := testContext(t)
	cfg := testConfig(t)
	require.NoError(t, Train(ctx, cfg))

	var out bytes.Buffer
	require.NoError(t, Metrics(ctx, cfg.ModelOut, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1+6+3)
	assert.True(t, strings.HasPrefix(lines[0], "SERIES"))
	assert.Contains(t, out.String(), "eval/loss")
	assert.Contains(t, out.String(), "train/loss")

	err := Metrics(ctx, filepath.Join(t.TempDir(), "none.born"), &out)
	require.ErrorIs(t, err, checkpoint.ErrMissing)
}

type wordEncoder struct{}

func (wordEncoder) Encode(text string) []int {
	var ids []int
	for _, w := range strings.Fields(text) {
		ids = append(ids, len(w))
	}
	return ids
}

func TestPrepare(t *testing.T) {
	ctx, logs := testContext(t)
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw.txt")
	require.NoError(t, os.WriteFile(raw, []byte("hello there\nok\n"), 0o600))

	corpus := filepath.Join(dir, "corpus.txt")
	vocab := filepath.Join(dir, "vocab.txt")
	require.NoError(t, PrepareWith(ctx, wordEncoder{}, raw, corpus, vocab))
	assert.Contains(t, logs.String(), "Corpus prepared.")
	assert.FileExists(t, corpus)
	assert.FileExists(t, vocab)

	require.Error(t, Prepare(ctx, "no_such_encoding", raw, corpus, vocab))
}
