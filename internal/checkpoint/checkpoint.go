// Package checkpoint persists training state as single self-describing
// artifacts: the rolling resumable checkpoint and the final model file.
//
// An artifact holds versioned sub-records (model, optimizer, scheduler and
// optional extras such as the loss scaler or dataset cursors), the step
// counter and every metric series. Writes go through grailbio/base/file,
// which stages data in a temporary file and renames it over the target on
// Close, so a failed or interrupted write leaves the previous artifact intact.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	gerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"

	"github.com/born-ml/pretrain/internal/metrics"
	"github.com/born-ml/pretrain/internal/serialization"
	"github.com/born-ml/pretrain/internal/tensor"
)

// Artifact kinds.
const (
	KindCheckpoint = "checkpoint"
	KindModel      = "model"
)

// Well-known record names.
const (
	RecordModel     = "model"
	RecordOptimizer = "optimizer"
	RecordScheduler = "scheduler"
	metricsPrefix   = "metrics"
)

// Record is one versioned component state.
type Record struct {
	Version int
	State   map[string]*tensor.RawTensor
}

// Artifact is the unit written and read by a Store.
type Artifact struct {
	Kind     string
	Step     int64
	Records  map[string]Record
	Metrics  metrics.Snapshot
	Metadata map[string]string
}

// Store reads and writes artifacts.
type Store struct {
	createdBy string

	// wrap, when set, wraps the artifact writer. Tests use it to inject
	// write failures.
	wrap func(io.Writer) io.Writer
}

// NewStore returns a store that stamps artifacts with createdBy.
func NewStore(createdBy string) *Store {
	return &Store{createdBy: createdBy}
}

// Save writes artifact to path. The file at path is replaced only when the
// whole artifact has been written.
func (s *Store) Save(ctx context.Context, path string, artifact Artifact) error {
	header, tensors, err := s.encode(artifact)
	if err != nil {
		return err
	}

	f, err := file.Create(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	var w io.Writer = f.Writer(ctx)
	if s.wrap != nil {
		w = s.wrap(w)
	}
	if err := serialization.Write(w, header, tensors); err != nil {
		f.Discard(ctx)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(ctx); err != nil {
		return fmt.Errorf("failed to commit %s: %w", path, err)
	}
	return nil
}

// Load reads the artifact at path. A missing file yields a *MissingError and
// any structural problem a *CorruptError.
func (s *Store) Load(ctx context.Context, path string) (artifact Artifact, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		if os.IsNotExist(err) || errors.Is(err, fs.ErrNotExist) || gerrors.Is(gerrors.NotExist, err) {
			return Artifact{}, &MissingError{Path: path, Err: err}
		}
		return Artifact{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(ctx); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, closeErr)
		}
	}()

	header, tensors, err := serialization.Read(f.Reader(ctx), serialization.ReaderOptions{})
	if err != nil {
		if serialization.IsFormatError(err) {
			return Artifact{}, &CorruptError{Path: path, Reason: "invalid container", Err: err}
		}
		return Artifact{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	artifact, reason, err := decode(header, tensors)
	if reason != "" {
		return Artifact{}, &CorruptError{Path: path, Reason: reason, Err: err}
	}
	return artifact, nil
}

// LoadKind loads the artifact at path and checks its kind and that it holds
// every named record.
func (s *Store) LoadKind(ctx context.Context, path, kind string, required ...string) (Artifact, error) {
	artifact, err := s.Load(ctx, path)
	if err != nil {
		return Artifact{}, err
	}
	if artifact.Kind != kind {
		return Artifact{}, &CorruptError{Path: path, Reason: fmt.Sprintf("kind is %q, want %q", artifact.Kind, kind)}
	}
	for _, name := range required {
		if _, ok := artifact.Records[name]; !ok {
			return Artifact{}, &CorruptError{Path: path, Reason: fmt.Sprintf("missing %q record", name)}
		}
	}
	return artifact, nil
}

// LoadCheckpoint loads a resumable checkpoint: model, optimizer and
// scheduler records are required.
func (s *Store) LoadCheckpoint(ctx context.Context, path string) (Artifact, error) {
	return s.LoadKind(ctx, path, KindCheckpoint, RecordModel, RecordOptimizer, RecordScheduler)
}

// LoadModel loads a final model artifact.
func (s *Store) LoadModel(ctx context.Context, path string) (Artifact, error) {
	return s.LoadKind(ctx, path, KindModel, RecordModel)
}

func (s *Store) encode(artifact Artifact) (serialization.Header, map[string]*tensor.RawTensor, error) {
	header := serialization.Header{
		CreatedBy: s.createdBy,
		Kind:      artifact.Kind,
		CreatedAt: time.Now().UTC(),
		Step:      artifact.Step,
		Metadata:  artifact.Metadata,
	}
	tensors := make(map[string]*tensor.RawTensor)

	names := make([]string, 0, len(artifact.Records))
	for name := range artifact.Records {
		if name == metricsPrefix || name == "" || strings.Contains(name, "..") {
			return header, nil, fmt.Errorf("invalid record name %q", name)
		}
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		record := artifact.Records[name]
		header.Records = append(header.Records, serialization.RecordMeta{Name: name, Version: record.Version})
		for key, raw := range record.State {
			full := name + "." + key
			if _, dup := tensors[full]; dup {
				return header, nil, fmt.Errorf("tensor %q is defined by two records", full)
			}
			tensors[full] = raw
		}
	}

	series, metricTensors := artifact.Metrics.Tensors()
	header.Series = series
	for key, raw := range metricTensors {
		tensors[metricsPrefix+"."+key] = raw
	}
	return header, tensors, nil
}

// decode splits the tensor table back into records. A non-empty reason means
// the artifact is corrupt.
func decode(header serialization.Header, tensors map[string]*tensor.RawTensor) (Artifact, string, error) {
	artifact := Artifact{
		Kind:     header.Kind,
		Step:     header.Step,
		Records:  make(map[string]Record, len(header.Records)),
		Metadata: header.Metadata,
	}
	if header.Step < 0 {
		return Artifact{}, fmt.Sprintf("negative step %d", header.Step), nil
	}

	// Longest names first so "dataset.train" wins over "dataset".
	records := slices.Clone(header.Records)
	slices.SortFunc(records, func(a, b serialization.RecordMeta) int {
		return len(b.Name) - len(a.Name)
	})
	for _, r := range records {
		if _, dup := artifact.Records[r.Name]; dup || r.Name == metricsPrefix {
			return Artifact{}, fmt.Sprintf("invalid record %q", r.Name), nil
		}
		artifact.Records[r.Name] = Record{Version: r.Version, State: make(map[string]*tensor.RawTensor)}
	}

	metricTensors := make(map[string]*tensor.RawTensor)
	for name, raw := range tensors {
		if key, ok := strings.CutPrefix(name, metricsPrefix+"."); ok {
			metricTensors[key] = raw
			continue
		}
		owner := ""
		for _, r := range records {
			if strings.HasPrefix(name, r.Name+".") {
				owner = r.Name
				break
			}
		}
		if owner == "" {
			return Artifact{}, fmt.Sprintf("tensor %q belongs to no record", name), nil
		}
		artifact.Records[owner].State[strings.TrimPrefix(name, owner+".")] = raw
	}

	snapshot, err := metrics.FromTensors(header.Series, metricTensors)
	if err != nil {
		return Artifact{}, "invalid metric series", err
	}
	if want := 2 * len(header.Series); len(metricTensors) != want {
		return Artifact{}, fmt.Sprintf("%d metric tensors for %d series", len(metricTensors), len(header.Series)), nil
	}
	artifact.Metrics = snapshot
	return artifact, "", nil
}

// IsMissing reports whether err means the artifact does not exist.
func IsMissing(err error) bool {
	return errors.Is(err, ErrMissing)
}
