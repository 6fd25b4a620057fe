// SPDX-License-Identifier: MIT
package audio

import "time"

// NoDevice marks an absent output device (capture-only stream).
const NoDevice = -1

// Sample format is fixed to signed 16-bit, mono capture.
const (
	BitDepth      = 16
	InputChannels = 1
)

// StreamConfig is built when a stream is (re)started and is immutable for
// the lifetime of that stream instance.
type StreamConfig struct {
	InputDevice  int     // Host device index to capture from
	OutputDevice int     // Host device index for loopback, or NoDevice
	SampleRate   float64 // Hz
	BlockSize    int     // Frames per period, every SampleBlock has this length
	LowLatency   bool    // Ask the host for its low-latency suggestion
}

// NewStreamConfig returns a capture-only configuration.
func NewStreamConfig(input int, sampleRate float64, blockSize int) StreamConfig {
	return StreamConfig{
		InputDevice:  input,
		OutputDevice: NoDevice,
		SampleRate:   sampleRate,
		BlockSize:    blockSize,
	}
}

// WithLoopback returns a copy that mirrors captured audio to output.
func (c StreamConfig) WithLoopback(output int) StreamConfig {
	c.OutputDevice = output
	return c
}

// Loopback reports whether an output device is configured.
func (c StreamConfig) Loopback() bool {
	return c.OutputDevice != NoDevice
}

// BlockDuration is the wall-clock length of one block.
func (c StreamConfig) BlockDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(c.BlockSize) / c.SampleRate * float64(time.Second))
}

// SampleBlock is one period of captured mono audio. It is logically
// immutable once published; readers must not modify Samples.
type SampleBlock struct {
	Stream     uint64  // Stream instance that produced the block
	Seq        uint64  // Strictly increasing within Stream, starting at 1
	SampleRate float64 // Rate the block was captured at
	Samples    []int16
}

// Len returns the number of frames in the block.
func (b *SampleBlock) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Samples)
}
