// SPDX-License-Identifier: MIT
package audio

import "time"

// Direction is the capability of a device, input and/or output.
type Direction uint8

const (
	Input Direction = 1 << iota
	Output
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	case Input | Output:
		return "input/output"
	default:
		return "none"
	}
}

// Device is an immutable snapshot of a host audio device taken at enumeration
// time. Re-enumerating produces new values; existing ones are never mutated.
type Device struct {
	ID                int     // Host enumeration index
	Name              string  // Human-readable display name
	InputChannels     int     // Max input channels (0 = not an input)
	OutputChannels    int     // Max output channels (0 = not an output)
	DefaultSampleRate float64 // Native sample rate in Hz

	LowInputLatency   time.Duration
	HighInputLatency  time.Duration
	LowOutputLatency  time.Duration
	HighOutputLatency time.Duration
}

// Direction reports the capabilities derived from the channel counts.
func (d Device) Direction() Direction {
	var dir Direction
	if d.InputChannels > 0 {
		dir |= Input
	}
	if d.OutputChannels > 0 {
		dir |= Output
	}
	return dir
}

// Supports reports whether the device has the given capability.
func (d Device) Supports(dir Direction) bool {
	return d.Direction()&dir == dir
}

// InputLatency returns the suggested input latency for the latency mode.
func (d Device) InputLatency(low bool) time.Duration {
	if low {
		return d.LowInputLatency
	}
	return d.HighInputLatency
}

// OutputLatency returns the suggested output latency for the latency mode.
func (d Device) OutputLatency(low bool) time.Duration {
	if low {
		return d.LowOutputLatency
	}
	return d.HighOutputLatency
}
