// Package dataset provides the batch cursors consumed by the trainer.
//
// A Cursor hands out fixed-size batches of next-token prediction examples.
// The corpus cursor in this package reads a pre-tokenized corpus (one
// sequence per line, whitespace separated tokens) through a vocabulary
// file, cycles over it forever, and can persist its position so a resumed
// run sees exactly the batches an uninterrupted run would have seen.
package dataset

import (
	"context"
)

// Batch is one mini-batch of language-modeling examples. Target[i][j] is the
// token that follows Input[i][j]; padding positions hold the pad index.
type Batch struct {
	Input  [][]int32
	Target [][]int32
}

// Size returns the number of sequences in the batch.
func (b Batch) Size() int {
	return len(b.Input)
}

// Cursor produces batches. Next consumes exactly one batch worth of
// examples on success and leaves the cursor untouched on error.
type Cursor interface {
	Next(ctx context.Context, batchSize int) (Batch, error)
}

// Shard selects the subset of a corpus read by one replica: lines whose
// index modulo Count equals Index.
type Shard struct {
	Index int
	Count int
}

// NoShard reads every line.
var NoShard = Shard{Index: 0, Count: 1}

func (s Shard) keeps(line int) bool {
	if s.Count <= 1 {
		return true
	}
	return line%s.Count == s.Index
}
