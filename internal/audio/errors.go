// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is; the typed errors below match them.
var (
	ErrDeviceOpen      = errors.New("audio: device open failed")
	ErrStreamDropped   = errors.New("audio: stream dropped")
	ErrNoDefaultDevice = errors.New("audio: no default device")
	ErrDeviceNotFound  = errors.New("audio: device not found")
)

// DeviceOpenError reports that the host could not open the requested
// device/format/rate combination. The engine stays Stopped.
type DeviceOpenError struct {
	DeviceID int
	Err      error
}

func (e *DeviceOpenError) Error() string {
	return fmt.Sprintf("audio: cannot open device %d: %v", e.DeviceID, e.Err)
}

func (e *DeviceOpenError) Unwrap() error        { return e.Err }
func (e *DeviceOpenError) Is(target error) bool { return target == ErrDeviceOpen }

// StreamDroppedError reports that a running stream was terminated by the
// host (device unplugged, driver reset, callbacks stalled).
type StreamDroppedError struct {
	Stream uint64 // Stream instance that was dropped
	Err    error
}

func (e *StreamDroppedError) Error() string {
	return fmt.Sprintf("audio: stream %d dropped: %v", e.Stream, e.Err)
}

func (e *StreamDroppedError) Unwrap() error        { return e.Err }
func (e *StreamDroppedError) Is(target error) bool { return target == ErrStreamDropped }

// NoDefaultDeviceError is returned when the host designates no default
// device for a direction.
type NoDefaultDeviceError struct {
	Direction Direction
	Err       error
}

func (e *NoDefaultDeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio: no default %s device: %v", e.Direction, e.Err)
	}
	return fmt.Sprintf("audio: no default %s device", e.Direction)
}

func (e *NoDefaultDeviceError) Unwrap() error        { return e.Err }
func (e *NoDefaultDeviceError) Is(target error) bool { return target == ErrNoDefaultDevice }

// DeviceNotFoundError is returned by name lookups with no match.
type DeviceNotFoundError struct {
	Name      string
	Direction Direction
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("audio: no %s device named %q", e.Direction, e.Name)
}

func (e *DeviceNotFoundError) Is(target error) bool { return target == ErrDeviceNotFound }
