package train

// State is the lifecycle state of a Trainer.
type State int

const (
	// Uninitialized trainers accept decorators and nothing has run yet.
	Uninitialized State = iota
	// Ready is the resting state between operations.
	Ready
	Training
	Evaluating
	Checkpointing
	// Finished is entered once the final model has been written.
	Finished
	// Failed is entered when an operation fails after it started mutating
	// training state. Only inspection is allowed afterwards.
	Failed
)

var stateNames = [...]string{
	Uninitialized: "uninitialized",
	Ready:         "ready",
	Training:      "training",
	Evaluating:    "evaluating",
	Checkpointing: "checkpointing",
	Finished:      "finished",
	Failed:        "failed",
}

// String returns the state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
