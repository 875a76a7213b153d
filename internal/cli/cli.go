package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/born-ml/pretrain/internal/app"
	"github.com/born-ml/pretrain/internal/config"
	"github.com/born-ml/pretrain/internal/ctxlog"
)

// Version is the program version.
const Version = "v0.1.0-dev"

// ExitError is an error that carries a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

const usage = `
pretrain - language model pretraining.

Usage:
  pretrain <command> [options]

Commands:
  train     Train a model, resuming or initializing from an artifact if asked.
  prepare   Tokenize a raw text file into a corpus and vocabulary.
  metrics   Print the metric series stored in a model or checkpoint.
  version   Print the version.
  help      Print this message.

Run 'pretrain <command> -h' for the options of a command.
`

// Run executes the command named by args[0]. Usage and help text go to outW,
// logs to errW.
func Run(ctx context.Context, args []string, outW, errW io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(outW, usage)
		return nil
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "train":
		return runTrain(ctx, rest, outW, errW)
	case "prepare":
		return runPrepare(ctx, rest, outW, errW)
	case "metrics":
		return runMetrics(ctx, rest, outW, errW)
	case "version":
		fmt.Fprintln(outW, "pretrain", Version)
		return nil
	case "help", "-h", "-help", "--help":
		fmt.Fprint(outW, usage)
		return nil
	default:
		return usageError("unknown command %q. Run 'pretrain help' for usage.", cmd)
	}
}

// parse parses args into fs. It reports done when help was requested.
func parse(fs *flag.FlagSet, args []string) (done bool, err error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return true, nil
		}
		return false, usageError("%s", err.Error())
	}
	if fs.NArg() > 0 {
		return false, usageError("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return false, nil
}

func newFlagSet(name string, outW io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("pretrain "+name, flag.ContinueOnError)
	fs.SetOutput(outW)
	return fs
}

func runTrain(ctx context.Context, args []string, outW, errW io.Writer) error {
	fs := newFlagSet("train", outW)
	flags := config.BindFlags(fs)
	if done, err := parse(fs, args); done || err != nil {
		return err
	}
	cfg, err := flags.Resolve()
	if err != nil {
		return usageError("invalid configuration: %v", err)
	}

	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat, errW)
	return app.Train(ctxlog.WithLogger(ctx, logger), cfg)
}

func runPrepare(ctx context.Context, args []string, outW, errW io.Writer) error {
	fs := newFlagSet("prepare", outW)
	encoding := fs.String("encoding", "gpt2", "tiktoken encoding used to tokenize the raw text")
	raw := fs.String("raw", "", "raw text file, one document per line")
	corpus := fs.String("corpus", "", "output corpus file")
	vocab := fs.String("vocab", "", "output vocabulary file")
	logLevel := fs.String("log-level", "info", "logging level: 'debug', 'info', 'warn' or 'error'")
	if done, err := parse(fs, args); done || err != nil {
		return err
	}
	if *raw == "" || *corpus == "" || *vocab == "" {
		return usageError("prepare needs -raw, -corpus and -vocab")
	}

	logger := app.NewLogger(*logLevel, "text", errW)
	return app.Prepare(ctxlog.WithLogger(ctx, logger), *encoding, *raw, *corpus, *vocab)
}

func runMetrics(ctx context.Context, args []string, outW, errW io.Writer) error {
	fs := newFlagSet("metrics", outW)
	model := fs.String("model", "", "model or checkpoint artifact to read")
	if done, err := parse(fs, args); done || err != nil {
		return err
	}
	if *model == "" {
		return usageError("metrics needs -model")
	}
	logger := app.NewLogger("info", "text", errW)
	return app.Metrics(ctxlog.WithLogger(ctx, logger), *model, outW)
}
