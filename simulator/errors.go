package simulator

import (
	"errors"
	"fmt"
)

// ErrSimulatorDestroyed is returned by every operation after Destroy.
var ErrSimulatorDestroyed = errors.New("simulator destroyed")

// ErrInvalidOrientation is returned for orientations other than portrait and landscape.
var ErrInvalidOrientation = errors.New("invalid orientation")

// UnknownDeviceError is returned when a device name is not in the catalog.
type UnknownDeviceError struct {
	Name string
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("unknown device %q", e.Name)
}

// InvalidBatteryLevelError is returned for battery levels outside [0, 1].
type InvalidBatteryLevelError struct {
	Level float64
}

func (e *InvalidBatteryLevelError) Error() string {
	return fmt.Sprintf("invalid battery level %v: must be between 0 and 1", e.Level)
}
