package app

import (
	"context"

	"github.com/born-ml/pretrain/internal/ctxlog"
	"github.com/born-ml/pretrain/internal/dataset"
)

// Prepare tokenizes the raw text file with the named tiktoken encoding into
// a corpus file and its vocabulary.
func Prepare(ctx context.Context, encoding, rawPath, corpusPath, vocabPath string) error {
	enc, err := dataset.NewTikToken(encoding)
	if err != nil {
		return err
	}
	return PrepareWith(ctx, enc, rawPath, corpusPath, vocabPath)
}

// PrepareWith is Prepare with an explicit encoder.
func PrepareWith(ctx context.Context, enc dataset.Encoder, rawPath, corpusPath, vocabPath string) error {
	stats, err := dataset.PrepareFiles(ctx, enc, rawPath, corpusPath, vocabPath)
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Corpus prepared.",
		"lines", stats.Lines, "tokens", stats.Tokens, "vocab", stats.Vocab,
		"corpus", corpusPath, "vocab_file", vocabPath)
	return nil
}
