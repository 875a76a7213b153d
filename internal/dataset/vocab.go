package dataset

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/file"
)

// Special tokens. BOS, EOS and PAD are inserted before the vocabulary file's
// words; UNK is taken from the file when present and appended otherwise.
const (
	UnkToken = "<unk>"
	BosToken = "<s>"
	EosToken = "</s>"
	PadToken = "<pad>"
)

// Vocab maps tokens to indices.
type Vocab struct {
	words []string
	index map[string]int32
}

// NewVocab builds a vocabulary from the given words.
func NewVocab(words []string) *Vocab {
	v := &Vocab{index: make(map[string]int32, len(words)+4)}
	for _, w := range []string{BosToken, EosToken, PadToken} {
		v.add(w)
	}
	for _, w := range words {
		v.add(w)
	}
	v.add(UnkToken)
	return v
}

// ReadVocab reads one token per whitespace separated field from r.
func ReadVocab(r io.Reader) (*Vocab, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		words = append(words, strings.Fields(scanner.Text())...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("vocabulary is empty")
	}
	return NewVocab(words), nil
}

// LoadVocab reads a vocabulary file. path may be any location supported by
// grailbio/base/file.
func LoadVocab(ctx context.Context, path string) (vocab *Vocab, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return ReadVocab(f.Reader(ctx))
}

func (v *Vocab) add(w string) {
	if _, ok := v.index[w]; ok {
		return
	}
	v.index[w] = int32(len(v.words)) //nolint:gosec // G115: vocabulary size < 2^31
	v.words = append(v.words, w)
}

// Len returns the vocabulary size including special tokens.
func (v *Vocab) Len() int {
	return len(v.words)
}

// Index returns the index of w, or the UNK index for unknown tokens.
func (v *Vocab) Index(w string) int32 {
	if i, ok := v.index[w]; ok {
		return i
	}
	return v.index[UnkToken]
}

// Word returns the token at index i.
func (v *Vocab) Word(i int32) string {
	if i < 0 || int(i) >= len(v.words) {
		return UnkToken
	}
	return v.words[i]
}

// BosIndex returns the index of the beginning-of-sequence token.
func (v *Vocab) BosIndex() int32 { return v.index[BosToken] }

// EosIndex returns the index of the end-of-sequence token.
func (v *Vocab) EosIndex() int32 { return v.index[EosToken] }

// PadIndex returns the index of the padding token.
func (v *Vocab) PadIndex() int32 { return v.index[PadToken] }

// UnkIndex returns the index of the unknown token.
func (v *Vocab) UnkIndex() int32 { return v.index[UnkToken] }
