package app

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/born-ml/pretrain/internal/checkpoint"
)

// Metrics prints every metric series recorded in the model or checkpoint
// artifact at path, one point per line.
func Metrics(ctx context.Context, path string, outW io.Writer) error {
	artifact, err := checkpoint.NewStore(CreatedBy).Load(ctx, path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(outW, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "SERIES\tSTEP\tVALUE\n")
	for _, name := range artifact.Metrics.Names() {
		for _, p := range artifact.Metrics.Series(name) {
			fmt.Fprintf(w, "%s\t%d\t%s\n", name, p.Step, strconv.FormatFloat(p.Value, 'f', 6, 64))
		}
	}
	return w.Flush()
}
