// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package train runs language model pretraining.
//
// A [Trainer] owns a model, its optimizer and schedule, an objective and
// the train and eval cursors. It executes one step at a time and persists
// everything needed to resume bit-for-bit through a checkpoint store.
//
// Mixed precision and data-parallel replicas are decorators: they wrap the
// trainer's update path and register their own checkpointed state.
//
// # Basic Usage
//
//	trainer, err := train.New(train.Options{
//	    Model:      model,
//	    Optimizer:  optimizer,
//	    Scheduler:  scheduler,
//	    Objective:  objective,
//	    Train:      trainCorpus,
//	    Eval:       evalCorpus,
//	    Iterations: 10000,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := trainer.Use(ctx, train.NewMixedPrecision(train.DefaultScalerConfig())); err != nil {
//	    return err
//	}
//	err = train.Run(ctx, trainer, train.RunConfig{
//	    TrainBatch:     64,
//	    EvalBatch:      64,
//	    Cadence:        train.Cadence{EvalPeriod: 500, SavePeriod: 1000},
//	    CheckpointPath: "ckpt.born",
//	    ModelPath:      "model.born",
//	})
//
// # Replicas
//
// [Spawn] runs one worker per device. Each worker builds its own trainer
// over its shard of the corpus and adds [NewCoordinator] so that gradients
// are averaged and only rank 0 records metrics and writes artifacts.
package train
