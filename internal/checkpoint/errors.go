package checkpoint

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by MissingError and CorruptError.
var (
	ErrMissing = errors.New("checkpoint missing")
	ErrCorrupt = errors.New("checkpoint corrupt")
)

// MissingError reports that no artifact exists at Path.
type MissingError struct {
	Path string
	Err  error
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("checkpoint %s does not exist: %v", e.Path, e.Err)
}

// Is matches ErrMissing.
func (e *MissingError) Is(target error) bool { return target == ErrMissing }

func (e *MissingError) Unwrap() error { return e.Err }

// CorruptError reports that the artifact at Path is structurally invalid:
// truncated, failing its checksum, of the wrong kind, or missing a record.
type CorruptError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("checkpoint %s is corrupt: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("checkpoint %s is corrupt: %s: %v", e.Path, e.Reason, e.Err)
}

// Is matches ErrCorrupt.
func (e *CorruptError) Is(target error) bool { return target == ErrCorrupt }

func (e *CorruptError) Unwrap() error { return e.Err }
