package train

import (
	"context"
	"fmt"

	"github.com/born-ml/pretrain/internal/ctxlog"
	"github.com/born-ml/pretrain/internal/metrics"
)

// RunConfig parameterizes Run.
type RunConfig struct {
	TrainBatch int
	EvalBatch  int
	Cadence    Cadence

	// CheckpointPath receives the rolling checkpoint on the save cadence.
	CheckpointPath string
	// ModelPath receives the final model. Empty skips the final write.
	ModelPath string
}

// Run trains t until its iteration budget is spent, evaluating and
// checkpointing on cfg.Cadence, then writes the final model. It resumes from
// whatever step t is at, so a restored trainer continues where its
// checkpoint left off. Cancelling ctx stops the loop between iterations.
func Run(ctx context.Context, t *Trainer, cfg RunConfig) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Training started.", "step", t.Step(), "iterations", t.Iterations())

	for t.Step() < t.Iterations() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("train: stopped at step %d: %w", t.Step(), err)
		}
		if _, err := t.TrainStep(ctx, cfg.TrainBatch); err != nil {
			return err
		}
		step, err := t.Advance()
		if err != nil {
			return err
		}

		if cfg.Cadence.ShouldEval(step) {
			loss, err := t.EvalStep(ctx, cfg.EvalBatch)
			if err != nil {
				return err
			}
			if t.Primary() {
				trainLoss, n := t.Recorder().Mean(metrics.TrainLoss, step-cfg.Cadence.EvalPeriod)
				logger.Info("Evaluated.", "step", step, "eval_loss", loss, "train_loss", trainLoss, "train_points", n)
			}
		}
		if cfg.Cadence.ShouldSave(step) {
			if err := t.Checkpoint(ctx, cfg.CheckpointPath); err != nil {
				return err
			}
		}
	}

	if cfg.ModelPath == "" {
		return nil
	}
	if err := t.SaveModel(ctx, cfg.ModelPath); err != nil {
		return err
	}
	logger.Info("Training finished.", "step", t.Step())
	return nil
}
