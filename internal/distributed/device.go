package distributed

import (
	"fmt"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// Device is a compute device bound to one replica.
type Device struct {
	Index    int
	Model    string
	Features []string
}

// String returns "cpu:<index>".
func (d Device) String() string {
	return fmt.Sprintf("cpu:%d", d.Index)
}

// DeviceProvider hands out exclusive devices.
type DeviceProvider interface {
	// Bind reserves device id. It fails with a *DeviceError if the device
	// does not exist or is already bound.
	Bind(id int) (Device, error)

	// Release returns a bound device.
	Release(id int)
}

// CPUDevices exposes one device per logical core of the host.
type CPUDevices struct {
	mu       sync.Mutex
	count    int
	model    string
	features []string
	bound    map[int]bool
}

// NewCPUDevices describes the host CPU with cpuid.
func NewCPUDevices() *CPUDevices {
	return newCPUDevices(max(cpuid.CPU.LogicalCores, 1))
}

func newCPUDevices(count int) *CPUDevices {
	return &CPUDevices{
		count:    count,
		model:    cpuid.CPU.BrandName,
		features: cpuid.CPU.FeatureSet(),
		bound:    make(map[int]bool),
	}
}

// Count returns the number of devices.
func (c *CPUDevices) Count() int {
	return c.count
}

// Bind reserves logical core id.
func (c *CPUDevices) Bind(id int) (Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id < 0 || id >= c.count {
		return Device{}, &DeviceError{Device: id, Reason: fmt.Sprintf("host has %d logical cores", c.count)}
	}
	if c.bound[id] {
		return Device{}, &DeviceError{Device: id, Reason: "already bound"}
	}
	c.bound[id] = true
	return Device{Index: id, Model: c.model, Features: c.features}, nil
}

// Release frees core id.
func (c *CPUDevices) Release(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bound, id)
}
