package distributed

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by SyncError and DeviceError.
var (
	ErrSynchronization   = errors.New("distributed: synchronization failed")
	ErrDeviceUnavailable = errors.New("distributed: device unavailable")
)

// SyncError reports a failed collective. Once a group has failed every
// later collective on it fails too.
type SyncError struct {
	Op   string
	Rank int
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("distributed: %s on rank %d: %v", e.Op, e.Rank, e.Err)
}

// Is matches ErrSynchronization.
func (e *SyncError) Is(target error) bool { return target == ErrSynchronization }

func (e *SyncError) Unwrap() error { return e.Err }

// DeviceError reports that a device could not be bound.
type DeviceError struct {
	Device int
	Reason string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("distributed: device %d unavailable: %s", e.Device, e.Reason)
}

// Is matches ErrDeviceUnavailable.
func (e *DeviceError) Is(target error) bool { return target == ErrDeviceUnavailable }
