// Command pretrain trains language models.
//
// Usage:
//
//	pretrain train -train_corpus train.txt -eval_corpus eval.txt -vocab vocab.txt
//	pretrain train -config run.hcl -resume
//	pretrain prepare -encoding gpt2 -raw raw.txt -corpus corpus.txt -vocab vocab.txt
//	pretrain metrics -model model.born
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/born-ml/pretrain/internal/cli"
)

func main() {
	// Minimal logger until a command configures its own.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, outW, errW io.Writer, args []string) error {
	return cli.Run(ctx, args, outW, errW)
}
