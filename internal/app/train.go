package app

import (
	"context"
	"fmt"

	"github.com/born-ml/pretrain/internal/amp"
	"github.com/born-ml/pretrain/internal/checkpoint"
	"github.com/born-ml/pretrain/internal/config"
	"github.com/born-ml/pretrain/internal/ctxlog"
	"github.com/born-ml/pretrain/internal/dataset"
	"github.com/born-ml/pretrain/internal/distributed"
	"github.com/born-ml/pretrain/internal/nn"
	"github.com/born-ml/pretrain/internal/optim"
	"github.com/born-ml/pretrain/internal/parallel"
	"github.com/born-ml/pretrain/internal/train"
)

// CreatedBy stamps the artifacts written by this program.
const CreatedBy = "pretrain"

// Train runs the configured training job: one replica per device, each
// reading its own shard of the corpus.
func Train(ctx context.Context, cfg config.Config) error {
	return TrainOn(ctx, cfg, distributed.NewCPUDevices())
}

// TrainOn is Train with an explicit device provider.
func TrainOn(ctx context.Context, cfg config.Config, provider distributed.DeviceProvider) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := ctxlog.FromContext(ctx)
	vocab, err := dataset.LoadVocab(ctx, cfg.Vocab)
	if err != nil {
		return err
	}
	devices := cfg.DeviceList()
	logger.Info("Starting training.", "vocab", vocab.Len(), "devices", devices, "amp", cfg.UseAMP, "resume", cfg.Resume)

	return distributed.Spawn(ctx, devices, provider, func(ctx context.Context, pc distributed.ProcessContext) error {
		return replica(ctx, cfg, vocab, pc)
	})
}

func replica(ctx context.Context, cfg config.Config, vocab *dataset.Vocab, pc distributed.ProcessContext) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Replica bound.", "model", pc.Device.Model, "features", len(pc.Device.Features))

	shard := dataset.Shard{Index: pc.Rank, Count: pc.Size()}
	trainCorpus, err := dataset.LoadCorpus(ctx, cfg.TrainCorpus, vocab, cfg.SeqLen, shard)
	if err != nil {
		return err
	}
	evalCorpus, err := dataset.LoadCorpus(ctx, cfg.EvalCorpus, vocab, cfg.SeqLen, shard)
	if err != nil {
		return err
	}

	loops := parallel.DefaultConfig()
	if pc.Size() > 1 {
		loops = parallel.Sequential
	}
	model := nn.NewBigram(vocab.Len(), cfg.Seed)
	optimizer := optim.NewAdamW(model.Parameters(), optim.AdamWConfig{
		LR:          float32(cfg.BaseLR),
		WeightDecay: float32(cfg.WeightDecay),
	})
	trainer, err := train.New(train.Options{
		Model:      model,
		Optimizer:  optimizer,
		Scheduler:  optim.NewLambdaLR(optimizer, optim.LinearDecay(cfg.Iterations)),
		Objective:  nn.NewLanguageModelLoss(model, vocab.PadIndex(), loops),
		Train:      trainCorpus,
		Eval:       evalCorpus,
		Iterations: cfg.Iterations,
		Store:      checkpoint.NewStore(CreatedBy),
		Metadata:   cfg.Metadata(),
	})
	if err != nil {
		return err
	}

	var decorators []train.Decorator
	if cfg.UseAMP {
		decorators = append(decorators, amp.New(amp.DefaultConfig()))
	}
	if pc.Size() > 1 {
		decorators = append(decorators, distributed.NewCoordinator(pc))
	}
	if err := trainer.Use(ctx, decorators...); err != nil {
		return err
	}

	switch {
	case cfg.Resume:
		if err := trainer.Restore(ctx, cfg.Checkpoint); err != nil {
			return fmt.Errorf("failed to resume: %w", err)
		}
	case cfg.InitFrom != "":
		if err := trainer.InitFrom(ctx, cfg.InitFrom); err != nil {
			return fmt.Errorf("failed to initialize weights: %w", err)
		}
	}

	return train.Run(ctx, trainer, train.RunConfig{
		TrainBatch:     cfg.BatchTrain,
		EvalBatch:      cfg.BatchEval,
		Cadence:        train.Cadence{EvalPeriod: cfg.EvalIters, SavePeriod: cfg.SaveIters},
		CheckpointPath: cfg.Checkpoint,
		ModelPath:      cfg.ModelOut,
	})
}
