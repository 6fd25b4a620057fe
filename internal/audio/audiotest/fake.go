// SPDX-License-Identifier: MIT

// Package audiotest provides an in-memory audio host and signal generators
// for exercising the engine without sound hardware.
package audiotest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"linein/internal/audio"
)

// DefaultInterval is how often a FakeStream delivers a period. It is far
// faster than real time so tests do not wait on wall-clock audio.
const DefaultInterval = time.Millisecond

// Signal fills one period of input. seq starts at 1 for each stream.
type Signal func(seq uint64, in []int16)

// InputDevice returns a mono capture device.
func InputDevice(id int, name string) audio.Device {
	return audio.Device{ID: id, Name: name, InputChannels: 1, DefaultSampleRate: 44100}
}

// OutputDevice returns a stereo playback device.
func OutputDevice(id int, name string) audio.Device {
	return audio.Device{ID: id, Name: name, OutputChannels: 2, DefaultSampleRate: 44100}
}

// DuplexDevice returns a device with both directions.
func DuplexDevice(id int, name string) audio.Device {
	return audio.Device{ID: id, Name: name, InputChannels: 2, OutputChannels: 2, DefaultSampleRate: 44100}
}

// FakeHost implements audio.Host over a scripted device list.
type FakeHost struct {
	mu         sync.Mutex
	devices    []audio.Device
	defaultIn  int
	defaultOut int

	// DevicesErr, when set, fails every enumeration.
	DevicesErr error
	// OpenErr, when set, fails every OpenStream.
	OpenErr error
	// OpenDelay blocks OpenStream before returning.
	OpenDelay time.Duration
	// Interval overrides DefaultInterval for new streams.
	Interval time.Duration
	// Signal generates input for new streams; nil yields silence.
	Signal Signal
	// CallAfterStop makes streams deliver one more period after Stop
	// returns, imitating a host that violates its stop contract.
	CallAfterStop bool

	opened  []audio.StreamParams
	streams []*FakeStream
	closed  bool
}

var _ audio.Host = (*FakeHost)(nil)

// NewFakeHost creates a host whose defaults are the first input-capable
// and first output-capable devices.
func NewFakeHost(devices ...audio.Device) *FakeHost {
	h := &FakeHost{
		devices:    devices,
		defaultIn:  audio.NoDevice,
		defaultOut: audio.NoDevice,
	}
	for _, d := range devices {
		if h.defaultIn == audio.NoDevice && d.Supports(audio.Input) {
			h.defaultIn = d.ID
		}
		if h.defaultOut == audio.NoDevice && d.Supports(audio.Output) {
			h.defaultOut = d.ID
		}
	}
	return h
}

// SetDefaults overrides the reported defaults. audio.NoDevice makes the
// corresponding query fail.
func (h *FakeHost) SetDefaults(in, out int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.defaultIn, h.defaultOut = in, out
}

func (h *FakeHost) Name() string { return "fake" }

func (h *FakeHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Closed reports whether Close was called.
func (h *FakeHost) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *FakeHost) Devices() ([]audio.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.DevicesErr != nil {
		return nil, h.DevicesErr
	}
	return append([]audio.Device(nil), h.devices...), nil
}

func (h *FakeHost) DefaultInputDevice() (audio.Device, error) {
	return h.lookupDefault(h.defaultIn, "input")
}

func (h *FakeHost) DefaultOutputDevice() (audio.Device, error) {
	return h.lookupDefault(h.defaultOut, "output")
}

func (h *FakeHost) lookupDefault(id int, dir string) (audio.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.DevicesErr != nil {
		return audio.Device{}, h.DevicesErr
	}
	for _, d := range h.devices {
		if d.ID == id {
			return d, nil
		}
	}
	return audio.Device{}, fmt.Errorf("no default %s device", dir)
}

func (h *FakeHost) OpenStream(params audio.StreamParams, callbacks audio.StreamCallbacks) (audio.Stream, error) {
	if h.OpenDelay > 0 {
		time.Sleep(h.OpenDelay)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened = append(h.opened, params)
	if h.OpenErr != nil {
		return nil, h.OpenErr
	}

	interval := h.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &FakeStream{
		params:        params,
		callbacks:     callbacks,
		interval:      interval,
		signal:        h.Signal,
		callAfterStop: h.CallAfterStop,
		in:            make([]int16, params.FramesPerBuffer*params.InputChannels),
	}
	if params.Duplex() {
		s.out = make([]int16, params.FramesPerBuffer*params.OutputChannels)
	}
	h.streams = append(h.streams, s)
	return s, nil
}

// Opened returns the parameters of every OpenStream call so far.
func (h *FakeHost) Opened() []audio.StreamParams {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]audio.StreamParams(nil), h.opened...)
}

// Streams returns every stream opened so far, oldest first.
func (h *FakeHost) Streams() []*FakeStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*FakeStream(nil), h.streams...)
}

// LastStream returns the most recently opened stream, or nil.
func (h *FakeHost) LastStream() *FakeStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.streams) == 0 {
		return nil
	}
	return h.streams[len(h.streams)-1]
}

// FakeStream calls Process from its own goroutine every interval.
type FakeStream struct {
	params        audio.StreamParams
	callbacks     audio.StreamCallbacks
	interval      time.Duration
	signal        Signal
	callAfterStop bool

	mu      sync.Mutex
	quit    chan struct{}
	wg      sync.WaitGroup
	seq     uint64
	in, out []int16
	lastOut []int16

	stalled atomic.Bool
	status  atomic.Uint32
	started atomic.Bool
	stopped atomic.Bool
	closed  atomic.Bool
	calls   atomic.Uint64
}

// Params returns the parameters the stream was opened with.
func (s *FakeStream) Params() audio.StreamParams { return s.params }

func (s *FakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return errors.New("stream closed")
	}
	if s.quit != nil {
		return nil
	}
	s.started.Store(true)
	s.stopped.Store(false)
	s.quit = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.quit)
	return nil
}

func (s *FakeStream) run(quit chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			if !s.stalled.Load() {
				s.tick()
			}
		}
	}
}

func (s *FakeStream) tick() {
	s.seq++
	if s.signal != nil {
		s.signal(s.seq, s.in)
	} else {
		clear(s.in)
	}
	status := audio.StreamStatus(s.status.Swap(0))
	s.calls.Add(1)
	s.callbacks.Process(s.in, s.out, status)
	if s.out != nil {
		s.mu.Lock()
		s.lastOut = append(s.lastOut[:0], s.out...)
		s.mu.Unlock()
	}
}

// Stop waits for the delivery goroutine to exit.
func (s *FakeStream) Stop() error {
	s.mu.Lock()
	quit := s.quit
	s.quit = nil
	s.mu.Unlock()
	if quit == nil {
		return nil
	}
	close(quit)
	s.wg.Wait()
	s.stopped.Store(true)

	if s.callAfterStop {
		s.tick()
	}
	return nil
}

func (s *FakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

// Stall suspends delivery while the stream stays open.
func (s *FakeStream) Stall() { s.stalled.Store(true) }

// Resume undoes Stall.
func (s *FakeStream) Resume() { s.stalled.Store(false) }

// Drop simulates the host terminating the stream.
func (s *FakeStream) Drop(err error) {
	s.Stall()
	if s.callbacks.Dropped != nil {
		s.callbacks.Dropped(err)
	}
}

// SetStatus attaches status flags to the next delivered period.
func (s *FakeStream) SetStatus(status audio.StreamStatus) {
	s.status.Store(uint32(status))
}

// LastOutput returns a copy of the most recent loopback output buffer.
func (s *FakeStream) LastOutput() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int16(nil), s.lastOut...)
}

// Calls counts delivered periods.
func (s *FakeStream) Calls() uint64 { return s.calls.Load() }

func (s *FakeStream) Started() bool { return s.started.Load() }
func (s *FakeStream) Stopped() bool { return s.stopped.Load() }
func (s *FakeStream) Closed() bool  { return s.closed.Load() }
