// Package metrics records named scalar timeseries (training loss, evaluation
// loss) keyed by training step, and converts them to and from the tensors
// stored in checkpoints.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"sync"

	"github.com/born-ml/pretrain/internal/tensor"
)

// Canonical series names.
const (
	TrainLoss = "train/loss"
	EvalLoss  = "eval/loss"
)

// ErrNonMonotonic is returned when a point's step is not greater than the
// series' last step.
var ErrNonMonotonic = errors.New("metrics: step not increasing")

// Point is one sample of a series.
type Point struct {
	Step  int64
	Value float64
}

// Recorder is an append-only store of named series. It is safe for
// concurrent use.
type Recorder struct {
	mu     sync.RWMutex
	order  []string
	series map[string][]Point
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{series: make(map[string][]Point)}
}

// Record appends (step, value) to the named series, creating it if needed.
// step must be strictly greater than the series' last step.
func (r *Recorder) Record(name string, step int64, value float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	points, ok := r.series[name]
	if !ok {
		r.order = append(r.order, name)
	}
	if n := len(points); n > 0 && points[n-1].Step >= step {
		return fmt.Errorf("%w: %s at step %d after step %d", ErrNonMonotonic, name, step, points[n-1].Step)
	}
	r.series[name] = append(points, Point{Step: step, Value: value})
	return nil
}

// Series returns a copy of the named series.
func (r *Recorder) Series(name string) []Point {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.series[name])
}

// Last returns the most recent point of the named series.
func (r *Recorder) Last(name string) (Point, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	points := r.series[name]
	if len(points) == 0 {
		return Point{}, false
	}
	return points[len(points)-1], true
}

// Mean returns the mean value of the named series over points with
// Step > since, and the number of such points.
func (r *Recorder) Mean(name string, since int64) (float64, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum float64
	var n int
	for _, p := range r.series[name] {
		if p.Step > since {
			sum += p.Value
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// Snapshot returns an immutable copy of every series.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Snapshot{
		names:  slices.Clone(r.order),
		series: make(map[string][]Point, len(r.series)),
	}
	for name, points := range r.series {
		s.series[name] = slices.Clone(points)
	}
	return s
}

// Load replaces the recorder's contents with snapshot.
func (r *Recorder) Load(snapshot Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = slices.Clone(snapshot.names)
	r.series = make(map[string][]Point, len(snapshot.series))
	for name, points := range snapshot.series {
		r.series[name] = slices.Clone(points)
	}
}

// Snapshot is a point-in-time copy of a Recorder.
type Snapshot struct {
	names  []string
	series map[string][]Point
}

// Names returns the series names in creation order.
func (s Snapshot) Names() []string {
	return slices.Clone(s.names)
}

// Series returns a copy of the named series.
func (s Snapshot) Series(name string) []Point {
	return slices.Clone(s.series[name])
}

// Equal reports whether two snapshots hold the same series and points.
// NaN values compare equal to NaN.
func (s Snapshot) Equal(other Snapshot) bool {
	if !slices.Equal(s.names, other.names) {
		return false
	}
	for _, name := range s.names {
		a, b := s.series[name], other.series[name]
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i].Step != b[i].Step || !sameFloat(a[i].Value, b[i].Value) {
				return false
			}
		}
	}
	return true
}

func sameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

// Tensors encodes the snapshot as tensors "<i>.step" (int64) and
// "<i>.value" (float64), where i indexes the returned names.
func (s Snapshot) Tensors() ([]string, map[string]*tensor.RawTensor) {
	tensors := make(map[string]*tensor.RawTensor, 2*len(s.names))
	for i, name := range s.names {
		points := s.series[name]
		steps := make([]int64, len(points))
		values := make([]float64, len(points))
		for j, p := range points {
			steps[j] = p.Step
			values[j] = p.Value
		}
		key := strconv.Itoa(i)
		//nolint:errcheck // lengths match the shape by construction
		tensors[key+".step"], _ = tensor.FromInt64(tensor.Shape{len(points)}, steps)
		//nolint:errcheck // lengths match the shape by construction
		tensors[key+".value"], _ = tensor.FromFloat64(tensor.Shape{len(points)}, values)
	}
	return slices.Clone(s.names), tensors
}

// FromTensors decodes a snapshot produced by Tensors.
func FromTensors(names []string, tensors map[string]*tensor.RawTensor) (Snapshot, error) {
	s := Snapshot{series: make(map[string][]Point, len(names))}
	for i, name := range names {
		if _, dup := s.series[name]; dup {
			return Snapshot{}, fmt.Errorf("metrics: duplicate series %q", name)
		}
		key := strconv.Itoa(i)
		steps, ok := tensors[key+".step"]
		if !ok || steps.DType() != tensor.Int64 || len(steps.Shape()) != 1 {
			return Snapshot{}, fmt.Errorf("metrics: series %q: missing or malformed steps", name)
		}
		values, ok := tensors[key+".value"]
		if !ok || values.DType() != tensor.Float64 || !values.Shape().Equal(steps.Shape()) {
			return Snapshot{}, fmt.Errorf("metrics: series %q: missing or malformed values", name)
		}

		stepData, valueData := steps.AsInt64(), values.AsFloat64()
		points := make([]Point, len(stepData))
		for j := range stepData {
			if j > 0 && stepData[j] <= stepData[j-1] {
				return Snapshot{}, fmt.Errorf("%w: series %q at index %d", ErrNonMonotonic, name, j)
			}
			points[j] = Point{Step: stepData[j], Value: valueData[j]}
		}
		s.names = append(s.names, name)
		s.series[name] = points
	}
	return s, nil
}
