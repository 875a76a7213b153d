package train

// Cadence decides after which completed steps the driver evaluates and
// checkpoints. A period of zero or less disables the phase.
type Cadence struct {
	EvalPeriod int64
	SavePeriod int64
}

// ShouldEval reports whether an evaluation follows step.
func (c Cadence) ShouldEval(step int64) bool {
	return due(step, c.EvalPeriod)
}

// ShouldSave reports whether a checkpoint follows step.
func (c Cadence) ShouldSave(step int64) bool {
	return due(step, c.SavePeriod)
}

func due(step, period int64) bool {
	return period > 0 && step > 0 && step%period == 0
}
