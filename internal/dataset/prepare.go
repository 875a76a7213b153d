package dataset

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/pkoukk/tiktoken-go"
)

// Encoder turns raw text into token ids.
type Encoder interface {
	Encode(text string) []int
}

// TikToken encodes text with an OpenAI BPE encoding such as "cl100k_base".
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTikToken loads the named tiktoken encoding.
func NewTikToken(encodingName string) (*TikToken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}
	return &TikToken{encoding: encoding, name: encodingName}, nil
}

// Name returns the encoding name.
func (t *TikToken) Name() string {
	return t.name
}

// Encode converts text to token ids.
func (t *TikToken) Encode(text string) []int {
	return t.encoding.Encode(text, nil, nil)
}

// PrepareStats summarizes a Prepare run.
type PrepareStats struct {
	Lines  int
	Tokens int
	Vocab  int
}

// Prepare encodes every non-blank line of raw with enc and writes the ids,
// space separated, one line per input line to corpus. The distinct ids, in
// ascending order, are written to vocab one per line.
func Prepare(ctx context.Context, enc Encoder, raw io.Reader, corpus, vocab io.Writer) (PrepareStats, error) {
	var stats PrepareStats
	seen := make(map[int]struct{})
	out := bufio.NewWriter(corpus)
	scanner := bufio.NewScanner(raw)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var sb strings.Builder
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		ids := enc.Encode(text)
		sb.Reset()
		for i, id := range ids {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(strconv.Itoa(id))
			seen[id] = struct{}{}
		}
		sb.WriteByte('\n')
		if _, err := out.WriteString(sb.String()); err != nil {
			return stats, fmt.Errorf("failed to write corpus: %w", err)
		}
		stats.Lines++
		stats.Tokens += len(ids)
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read raw text: %w", err)
	}
	if err := out.Flush(); err != nil {
		return stats, fmt.Errorf("failed to write corpus: %w", err)
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	vw := bufio.NewWriter(vocab)
	for _, id := range ids {
		if _, err := fmt.Fprintln(vw, id); err != nil {
			return stats, fmt.Errorf("failed to write vocabulary: %w", err)
		}
	}
	if err := vw.Flush(); err != nil {
		return stats, fmt.Errorf("failed to write vocabulary: %w", err)
	}
	stats.Vocab = len(ids)
	return stats, nil
}

// PrepareFiles runs Prepare from rawPath into corpusPath and vocabPath.
// Outputs are only committed when the whole input was encoded.
func PrepareFiles(ctx context.Context, enc Encoder, rawPath, corpusPath, vocabPath string) (stats PrepareStats, err error) {
	in, err := file.Open(ctx, rawPath)
	if err != nil {
		return stats, fmt.Errorf("failed to open %s: %w", rawPath, err)
	}
	defer in.Close(ctx) //nolint:errcheck // read-only

	corpusFile, err := file.Create(ctx, corpusPath)
	if err != nil {
		return stats, fmt.Errorf("failed to create %s: %w", corpusPath, err)
	}
	vocabFile, err := file.Create(ctx, vocabPath)
	if err != nil {
		corpusFile.Discard(ctx)
		return stats, fmt.Errorf("failed to create %s: %w", vocabPath, err)
	}

	stats, err = Prepare(ctx, enc, in.Reader(ctx), corpusFile.Writer(ctx), vocabFile.Writer(ctx))
	if err != nil {
		corpusFile.Discard(ctx)
		vocabFile.Discard(ctx)
		return stats, err
	}
	if err := corpusFile.Close(ctx); err != nil {
		vocabFile.Discard(ctx)
		return stats, fmt.Errorf("failed to commit %s: %w", corpusPath, err)
	}
	if err := vocabFile.Close(ctx); err != nil {
		return stats, fmt.Errorf("failed to commit %s: %w", vocabPath, err)
	}
	return stats, nil
}
