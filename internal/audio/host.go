// SPDX-License-Identifier: MIT
package audio

import "time"

// StreamStatus carries the per-period health flags reported by the host.
type StreamStatus uint8

const (
	InputUnderflow StreamStatus = 1 << iota
	InputOverflow
	OutputUnderflow
	OutputOverflow
)

// ProcessFunc is invoked on the host's audio thread once per period with
// exactly FramesPerBuffer frames of interleaved input. out is nil for
// capture-only streams. Implementations must not block.
type ProcessFunc func(in, out []int16, status StreamStatus)

// StreamCallbacks bundles the hooks a Host drives for an open stream.
// Dropped is called at most once, from any goroutine, when the host
// terminates the stream without being asked to.
type StreamCallbacks struct {
	Process ProcessFunc
	Dropped func(err error)
}

// StreamParams describes the stream a Host should open.
type StreamParams struct {
	Input           Device
	InputChannels   int
	Output          *Device // nil for capture-only
	OutputChannels  int
	SampleRate      float64
	FramesPerBuffer int
	LowLatency      bool
}

// Duplex reports whether the stream writes to an output device.
func (p StreamParams) Duplex() bool {
	return p.Output != nil && p.OutputChannels > 0
}

// Period is the wall-clock duration of one buffer.
func (p StreamParams) Period() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(p.FramesPerBuffer) / p.SampleRate * float64(time.Second))
}

// Stream is an opened host stream. Stop must not return while a Process
// call is executing, and no Process call may begin after it returns.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Host is a platform audio subsystem: device enumeration plus streams.
type Host interface {
	Name() string
	Devices() ([]Device, error)
	DefaultInputDevice() (Device, error)
	DefaultOutputDevice() (Device, error)
	OpenStream(params StreamParams, callbacks StreamCallbacks) (Stream, error)
	Close() error
}
