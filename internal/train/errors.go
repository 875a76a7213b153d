package train

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Trainer operations.
var (
	// ErrInvalidState is matched by every *StateError.
	ErrInvalidState = errors.New("train: invalid state")

	// ErrStepPending is returned when a completed train step has not been
	// advanced yet.
	ErrStepPending = errors.New("train: previous step not advanced")

	// ErrNoStep is returned by Advance without a completed train step.
	ErrNoStep = errors.New("train: no completed step to advance")

	// ErrBudgetExhausted is returned by TrainStep once every iteration has run.
	ErrBudgetExhausted = errors.New("train: iteration budget exhausted")

	// ErrBudgetRemaining is returned by SaveModel before the last iteration.
	ErrBudgetRemaining = errors.New("train: iterations remaining")
)

// StateError reports an operation attempted in a state that does not allow it.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("train: %s not allowed in state %s", e.Op, e.State)
}

// Is matches ErrInvalidState.
func (e *StateError) Is(target error) bool { return target == ErrInvalidState }
