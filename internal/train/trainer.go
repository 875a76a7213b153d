// Package train orchestrates language-model pretraining: it owns the
// iteration counter, runs train and eval steps, and persists and restores
// the complete training state.
//
// A Trainer is driven one operation at a time:
//
//	loss, err := t.TrainStep(ctx, batchSize) // forward, backward, update
//	step, err := t.Advance()                 // count the completed step
//	if cadence.ShouldEval(step) { t.EvalStep(ctx, evalBatchSize) }
//	if cadence.ShouldSave(step) { t.Checkpoint(ctx, path) }
//
// Run implements that loop. Mixed precision and distributed execution are
// Decorators applied with Use before the first operation.
//
// A Trainer is not safe for concurrent use. Distributed replicas each own
// one.
package train

import (
	"context"
	"fmt"
	"maps"

	"github.com/born-ml/pretrain/internal/checkpoint"
	"github.com/born-ml/pretrain/internal/ctxlog"
	"github.com/born-ml/pretrain/internal/dataset"
	"github.com/born-ml/pretrain/internal/metrics"
	"github.com/born-ml/pretrain/internal/nn"
	"github.com/born-ml/pretrain/internal/optim"
)

// Record names of the dataset cursors, registered automatically when the
// cursor is nn.Stateful.
const (
	RecordTrainCursor = "dataset.train"
	RecordEvalCursor  = "dataset.eval"
)

const builtinVersion = 1

// Options configure a Trainer.
type Options struct {
	Model     nn.Module
	Optimizer optim.Optimizer
	Scheduler optim.Scheduler
	// Objective evaluates Model. It is used in nn.Train mode by TrainStep
	// and nn.Eval mode by EvalStep.
	Objective nn.Objective

	// Train and Eval supply batches. Eval may be nil if EvalStep is never
	// called.
	Train dataset.Cursor
	Eval  dataset.Cursor

	// Iterations is the total number of train steps.
	Iterations int64

	// Recorder receives the loss series. A new one is created if nil.
	Recorder *metrics.Recorder
	// Store persists artifacts. checkpoint.NewStore("pretrain") if nil.
	Store *checkpoint.Store
	// Metadata is copied into every artifact header.
	Metadata map[string]string
}

type component struct {
	name     string
	version  int
	state    nn.Stateful
	required bool
}

// Trainer holds the training state of one replica.
type Trainer struct {
	model      nn.Module
	optimizer  optim.Optimizer
	scheduler  optim.Scheduler
	objective  nn.Objective
	train      dataset.Cursor
	eval       dataset.Cursor
	iterations int64
	recorder   *metrics.Recorder
	store      *checkpoint.Store
	metadata   map[string]string

	updater    Updater
	components []component
	primary    bool
	barrier    func(context.Context) error

	state   State
	step    int64
	pending bool
}

// New returns an uninitialized trainer.
func New(opts Options) (*Trainer, error) {
	switch {
	case opts.Model == nil:
		return nil, fmt.Errorf("train: no model")
	case opts.Optimizer == nil || opts.Scheduler == nil:
		return nil, fmt.Errorf("train: no optimizer or scheduler")
	case opts.Objective == nil:
		return nil, fmt.Errorf("train: no objective")
	case opts.Train == nil:
		return nil, fmt.Errorf("train: no train cursor")
	case opts.Iterations <= 0:
		return nil, fmt.Errorf("train: invalid iteration count %d", opts.Iterations)
	}

	t := &Trainer{
		model:      opts.Model,
		optimizer:  opts.Optimizer,
		scheduler:  opts.Scheduler,
		objective:  opts.Objective,
		train:      opts.Train,
		eval:       opts.Eval,
		iterations: opts.Iterations,
		recorder:   opts.Recorder,
		store:      opts.Store,
		metadata:   maps.Clone(opts.Metadata),
		primary:    true,
		components: []component{
			{name: checkpoint.RecordModel, version: builtinVersion, state: opts.Model, required: true},
			{name: checkpoint.RecordOptimizer, version: builtinVersion, state: opts.Optimizer, required: true},
			{name: checkpoint.RecordScheduler, version: builtinVersion, state: opts.Scheduler, required: true},
		},
	}
	if t.recorder == nil {
		t.recorder = metrics.NewRecorder()
	}
	if t.store == nil {
		t.store = checkpoint.NewStore("pretrain")
	}
	t.updater = &baseUpdater{
		params:    opts.Model.Parameters(),
		optimizer: opts.Optimizer,
		scheduler: opts.Scheduler,
	}
	if s, ok := opts.Train.(nn.Stateful); ok {
		t.components = append(t.components, component{name: RecordTrainCursor, version: builtinVersion, state: s})
	}
	if s, ok := opts.Eval.(nn.Stateful); ok {
		t.components = append(t.components, component{name: RecordEvalCursor, version: builtinVersion, state: s})
	}
	return t, nil
}

// Use applies decorators in order; each wraps the updater left by the
// previous one. It is only allowed before the first operation.
func (t *Trainer) Use(ctx context.Context, decorators ...Decorator) error {
	if t.state != Uninitialized {
		return &StateError{Op: "use", State: t.state}
	}
	for _, d := range decorators {
		if err := d.Decorate(ctx, t); err != nil {
			return fmt.Errorf("train: decorate: %w", err)
		}
	}
	return nil
}

// WrapUpdater replaces the updater with wrap(current). For decorators.
func (t *Trainer) WrapUpdater(wrap UpdaterFunc) {
	t.updater = wrap(t.updater)
}

// Register adds a component persisted in checkpoints under name. A
// checkpoint without the record restores everything else and leaves the
// component as it is.
func (t *Trainer) Register(name string, state nn.Stateful, version int) error {
	if t.state != Uninitialized {
		return &StateError{Op: "register", State: t.state}
	}
	for _, c := range t.components {
		if c.name == name {
			return fmt.Errorf("train: record %q already registered", name)
		}
	}
	t.components = append(t.components, component{name: name, version: version, state: state})
	return nil
}

// SetPrimary declares whether this replica records metrics and writes
// artifacts. barrier, if not nil, runs on every replica after each
// checkpoint and final model write.
func (t *Trainer) SetPrimary(primary bool, barrier func(context.Context) error) {
	t.primary = primary
	t.barrier = barrier
}

// Parameters returns the model parameters.
func (t *Trainer) Parameters() []*nn.Parameter {
	return t.model.Parameters()
}

// Recorder returns the metric recorder.
func (t *Trainer) Recorder() *metrics.Recorder {
	return t.recorder
}

// Step returns the number of completed and advanced train steps.
func (t *Trainer) Step() int64 {
	return t.step
}

// Iterations returns the iteration budget.
func (t *Trainer) Iterations() int64 {
	return t.iterations
}

// State returns the lifecycle state.
func (t *Trainer) State() State {
	return t.state
}

// Primary reports whether this replica writes artifacts.
func (t *Trainer) Primary() bool {
	return t.primary
}

// enter moves from Ready to next, sealing an uninitialized trainer first.
func (t *Trainer) enter(op string, next State) error {
	if t.state == Uninitialized {
		t.state = Ready
	}
	if t.state != Ready {
		return &StateError{Op: op, State: t.state}
	}
	t.state = next
	return nil
}

// TrainStep runs one optimization step on the next train batch and records
// its loss at Step()+1. The step counts once Advance is called.
func (t *Trainer) TrainStep(ctx context.Context, batchSize int) (float64, error) {
	if err := t.enter("train step", Training); err != nil {
		return 0, err
	}
	if t.pending {
		t.state = Ready
		return 0, ErrStepPending
	}
	if t.step >= t.iterations {
		t.state = Ready
		return 0, fmt.Errorf("%w: %d of %d steps done", ErrBudgetExhausted, t.step, t.iterations)
	}

	batch, err := t.train.Next(ctx, batchSize)
	if err != nil {
		t.state = Ready
		return 0, fmt.Errorf("train: next train batch: %w", err)
	}
	loss, err := t.update(ctx, batch)
	if err != nil {
		t.state = Failed
		return 0, fmt.Errorf("train: step %d: %w", t.step+1, err)
	}
	t.pending = true
	t.state = Ready
	return loss, nil
}

func (t *Trainer) update(ctx context.Context, batch dataset.Batch) (float64, error) {
	loss, err := t.objective.Loss(ctx, batch, nn.Train)
	if err != nil {
		return 0, err
	}
	if err := t.updater.Backward(ctx, t.objective, 1); err != nil {
		return 0, err
	}
	applied, err := t.updater.Apply(ctx)
	if err != nil {
		return 0, err
	}
	if !applied {
		ctxlog.FromContext(ctx).Debug("Update skipped.", "step", t.step+1, "loss", loss)
	}
	if t.primary {
		if err := t.recorder.Record(metrics.TrainLoss, t.step+1, loss); err != nil {
			return 0, err
		}
	}
	return loss, nil
}

// Advance counts the step completed by the last TrainStep and returns the
// new step.
func (t *Trainer) Advance() (int64, error) {
	if t.state != Ready && t.state != Uninitialized {
		return t.step, &StateError{Op: "advance", State: t.state}
	}
	if !t.pending {
		return t.step, ErrNoStep
	}
	t.pending = false
	t.step++
	return t.step, nil
}

// EvalStep computes the loss of the next eval batch without touching the
// model, optimizer or scheduler, and records it at Step().
func (t *Trainer) EvalStep(ctx context.Context, batchSize int) (float64, error) {
	if err := t.enter("eval step", Evaluating); err != nil {
		return 0, err
	}
	defer func() { t.state = Ready }()
	if t.pending {
		return 0, ErrStepPending
	}
	if t.eval == nil {
		return 0, fmt.Errorf("train: no eval cursor")
	}

	batch, err := t.eval.Next(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("train: next eval batch: %w", err)
	}
	loss, err := t.objective.Loss(ctx, batch, nn.Eval)
	if err != nil {
		return 0, fmt.Errorf("train: eval at step %d: %w", t.step, err)
	}
	if t.primary {
		if err := t.recorder.Record(metrics.EvalLoss, t.step, loss); err != nil {
			return 0, err
		}
	}
	return loss, nil
}

// Checkpoint atomically writes the training state and metrics to path. On
// a replica that is not primary it only waits at the barrier.
func (t *Trainer) Checkpoint(ctx context.Context, path string) error {
	if err := t.enter("checkpoint", Checkpointing); err != nil {
		return err
	}
	if t.pending {
		t.state = Ready
		return ErrStepPending
	}
	if t.primary {
		if err := t.store.Save(ctx, path, t.artifact(checkpoint.KindCheckpoint, t.components)); err != nil {
			t.state = Ready
			return err
		}
		ctxlog.FromContext(ctx).Info("Checkpoint written.", "path", path, "step", t.step)
	}
	if err := t.sync(ctx); err != nil {
		return err
	}
	t.state = Ready
	return nil
}

// SaveModel writes the final model artifact (model weights and metrics) to
// path once every iteration has run, and finishes the trainer.
func (t *Trainer) SaveModel(ctx context.Context, path string) error {
	if err := t.enter("save model", Checkpointing); err != nil {
		return err
	}
	if t.pending {
		t.state = Ready
		return ErrStepPending
	}
	if t.step != t.iterations {
		t.state = Ready
		return fmt.Errorf("%w: %d of %d steps done", ErrBudgetRemaining, t.step, t.iterations)
	}
	if t.primary {
		if err := t.store.Save(ctx, path, t.artifact(checkpoint.KindModel, t.components[:1])); err != nil {
			t.state = Ready
			return err
		}
		ctxlog.FromContext(ctx).Info("Model written.", "path", path, "step", t.step)
	}
	if err := t.sync(ctx); err != nil {
		return err
	}
	t.state = Finished
	return nil
}

func (t *Trainer) sync(ctx context.Context) error {
	if t.barrier == nil {
		return nil
	}
	if err := t.barrier(ctx); err != nil {
		t.state = Failed
		return fmt.Errorf("train: barrier at step %d: %w", t.step, err)
	}
	return nil
}

func (t *Trainer) artifact(kind string, components []component) checkpoint.Artifact {
	records := make(map[string]checkpoint.Record, len(components))
	for _, c := range components {
		records[c.name] = checkpoint.Record{Version: c.version, State: c.state.StateDict()}
	}
	return checkpoint.Artifact{
		Kind:     kind,
		Step:     t.step,
		Records:  records,
		Metrics:  t.recorder.Snapshot(),
		Metadata: t.metadata,
	}
}

// Restore loads the checkpoint at path: model, optimizer, scheduler, any
// registered component, the step counter and the metric history. Nothing is
// changed unless every record loads.
func (t *Trainer) Restore(ctx context.Context, path string) error {
	if err := t.enter("restore", Checkpointing); err != nil {
		return err
	}
	defer func() { t.state = Ready }()

	artifact, err := t.store.LoadCheckpoint(ctx, path)
	if err != nil {
		return err
	}
	if artifact.Step > t.iterations {
		return &checkpoint.CorruptError{Path: path, Reason: fmt.Sprintf("step %d is beyond %d iterations", artifact.Step, t.iterations)}
	}
	for _, c := range t.components {
		rec, ok := artifact.Records[c.name]
		if ok && rec.Version != c.version {
			return &checkpoint.CorruptError{
				Path:   path,
				Reason: fmt.Sprintf("%q record version %d, want %d", c.name, rec.Version, c.version),
			}
		}
	}

	backup := make(map[string]checkpoint.Record, len(t.components))
	for _, c := range t.components {
		backup[c.name] = checkpoint.Record{State: c.state.StateDict()}
	}
	for i, c := range t.components {
		rec, ok := artifact.Records[c.name]
		if !ok {
			ctxlog.FromContext(ctx).Warn("Checkpoint has no record, keeping current state.", "path", path, "record", c.name)
			continue
		}
		if err := c.state.LoadStateDict(rec.State); err != nil {
			t.rollback(t.components[:i], backup)
			return &checkpoint.CorruptError{Path: path, Reason: fmt.Sprintf("incompatible %q record", c.name), Err: err}
		}
	}

	t.step = artifact.Step
	t.pending = false
	t.recorder.Load(artifact.Metrics)
	ctxlog.FromContext(ctx).Info("Checkpoint restored.", "path", path, "step", t.step)
	return nil
}

func (t *Trainer) rollback(components []component, backup map[string]checkpoint.Record) {
	for _, c := range components {
		//nolint:errcheck // the state was produced by the same component
		_ = c.state.LoadStateDict(backup[c.name].State)
	}
}

// InitFrom loads model weights from the final model artifact at path. It
// is only allowed before the first train step.
func (t *Trainer) InitFrom(ctx context.Context, path string) error {
	if err := t.enter("init from", Checkpointing); err != nil {
		return err
	}
	defer func() { t.state = Ready }()
	if t.step != 0 || t.pending {
		return fmt.Errorf("%w: init from %s after step %d", ErrInvalidState, path, t.step)
	}

	artifact, err := t.store.LoadModel(ctx, path)
	if err != nil {
		return err
	}
	if err := t.model.LoadStateDict(artifact.Records[checkpoint.RecordModel].State); err != nil {
		return &checkpoint.CorruptError{Path: path, Reason: "incompatible model record", Err: err}
	}
	ctxlog.FromContext(ctx).Info("Model weights initialized.", "path", path, "trained_steps", artifact.Step)
	return nil
}
