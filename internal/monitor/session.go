// SPDX-License-Identifier: MIT

// Package monitor ties the engine, the analyzer and the frame sinks into
// the operations a front end drives: pick devices, toggle monitoring and
// loopback, move the visible window, read the latest frame.
package monitor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"linein/internal/analysis"
	"linein/internal/audio"
	"linein/internal/log"
	"linein/internal/transport"
)

// DefaultInterval is the analysis tick period.
const DefaultInterval = 10 * time.Millisecond

// ErrNoInput is returned when monitoring is requested with no input device.
var ErrNoInput = errors.New("no input device selected")

// ErrNoOutput is returned when loopback is requested with no output device.
var ErrNoOutput = errors.New("no output device selected")

// Options configure a Session.
type Options struct {
	SampleRate float64
	BlockSize  int
	LowLatency bool
	Interval   time.Duration

	// Device preselection: an id >= 0 wins over a name; neither means the
	// host default.
	InputDevice  int
	InputName    string
	OutputDevice int
	OutputName   string
	Loopback     bool

	// Analysis tuning. SampleRate and BlockSize are taken from above.
	Analysis analysis.Config
}

// DefaultOptions returns options for the host default devices.
func DefaultOptions(sampleRate float64, blockSize int) Options {
	return Options{
		SampleRate:   sampleRate,
		BlockSize:    blockSize,
		Interval:     DefaultInterval,
		InputDevice:  audio.NoDevice,
		OutputDevice: audio.NoDevice,
		Analysis:     analysis.DefaultConfig(sampleRate, blockSize),
	}
}

// Status is a point-in-time view of a session.
type Status struct {
	Monitoring bool
	Loopback   bool
	Input      *audio.Device
	Output     *audio.Device
	Stats      audio.Stats
	Frames     uint64
	Err        error // Parked stream failure, if any
}

// Session owns one engine and one analyzer. Lifecycle methods are
// serialized; LatestFrame and SetVisibleWindow never wait on them.
type Session struct {
	registry *audio.Registry
	engine   *audio.Engine
	analyzer *analysis.Analyzer
	sink     transport.Transport
	opts     Options

	mu         sync.Mutex
	input      *audio.Device
	output     *audio.Device
	loopback   bool
	monitoring bool
	tickDone   chan struct{}
	tickWG     sync.WaitGroup
	onsets     analysis.OnsetDetector // Owned by the tick goroutine.

	latest       atomic.Pointer[analysis.Frame]
	frames       atomic.Uint64
	sendFailures *log.Once
}

// New creates a stopped session on host. sink may be nil.
func New(host audio.Host, opts Options, sink transport.Transport, engineOpts ...audio.EngineOption) (*Session, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	acfg := opts.Analysis
	acfg.SampleRate = opts.SampleRate
	acfg.BlockSize = opts.BlockSize
	analyzer, err := analysis.New(acfg)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	s := &Session{
		registry:     audio.NewRegistry(host),
		engine:       audio.NewEngine(host, engineOpts...),
		analyzer:     analyzer,
		sink:         sink,
		opts:         opts,
		sendFailures: log.NewOnce(log.LevelWarn, "Monitor: sink"),
	}

	in, err := s.preselect(audio.Input, opts.InputDevice, opts.InputName)
	if err != nil {
		return nil, err
	}
	s.input = in
	out, err := s.preselect(audio.Output, opts.OutputDevice, opts.OutputName)
	if err != nil {
		return nil, err
	}
	s.output = out
	s.loopback = opts.Loopback && out != nil
	return s, nil
}

// preselect resolves an explicit id or name, else the host default. A
// missing default is not an error; the front end may pick later.
func (s *Session) preselect(dir audio.Direction, id int, name string) (*audio.Device, error) {
	switch {
	case id >= 0:
		d, err := s.registry.Device(id)
		if err != nil {
			return nil, err
		}
		if !d.Supports(dir) {
			return nil, fmt.Errorf("device %d (%s) does not support %s", d.ID, d.Name, dir)
		}
		return &d, nil
	case name != "":
		d, err := s.registry.ResolveByName(name, dir)
		if err != nil {
			return nil, err
		}
		return &d, nil
	}

	var d audio.Device
	var err error
	if dir == audio.Input {
		d, err = s.registry.DefaultInputDevice()
	} else {
		d, err = s.registry.DefaultOutputDevice()
	}
	if err != nil {
		log.Warnf("Monitor: %v", err)
		return nil, nil
	}
	return &d, nil
}

// Registry exposes device listings to the front end.
func (s *Session) Registry() *audio.Registry { return s.registry }

// Analyzer exposes bin mapping to the front end.
func (s *Session) Analyzer() *analysis.Analyzer { return s.analyzer }

// Start begins monitoring the selected input, with loopback if enabled.
// Calling it while monitoring restarts the stream.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restartLocked()
}

// Stop ends monitoring and loopback. It is a no-op when stopped.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loopback = false
	return s.stopLocked()
}

func (s *Session) stopLocked() error {
	s.stopTickLocked()
	s.monitoring = false
	s.latest.Store(nil)
	return s.engine.Stop()
}

func (s *Session) streamConfigLocked() (audio.StreamConfig, error) {
	if s.input == nil {
		return audio.StreamConfig{}, ErrNoInput
	}
	cfg := audio.NewStreamConfig(s.input.ID, s.opts.SampleRate, s.opts.BlockSize)
	cfg.LowLatency = s.opts.LowLatency
	if s.loopback {
		if s.output == nil {
			return audio.StreamConfig{}, ErrNoOutput
		}
		cfg = cfg.WithLoopback(s.output.ID)
	}
	return cfg, nil
}

// restartLocked (re)opens the stream for the current selection. When the
// engine rejects the new configuration but keeps the old stream, ticking
// resumes on it and the error is returned.
func (s *Session) restartLocked() error {
	cfg, err := s.streamConfigLocked()
	if err != nil {
		return err
	}

	s.stopTickLocked()
	if err := s.engine.Start(cfg); err != nil {
		if s.engine.IsRunning() {
			s.startTickLocked()
		} else {
			s.monitoring = false
			s.latest.Store(nil)
		}
		return err
	}
	s.monitoring = true
	s.startTickLocked()
	return nil
}

func (s *Session) startTickLocked() {
	done := make(chan struct{})
	s.tickDone = done
	s.tickWG.Add(1)
	go s.tick(done)
}

func (s *Session) stopTickLocked() {
	if s.tickDone == nil {
		return
	}
	close(s.tickDone)
	s.tickDone = nil
	s.tickWG.Wait()
}

// tick runs the analyzer on the engine's latest block every interval and
// hands the frame to the sink. It ends on its own once the stream drops.
func (s *Session) tick(done <-chan struct{}) {
	defer s.tickWG.Done()
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		frame := s.analyzer.Tick(s.engine)
		s.onsets.Mark(&frame)
		s.latest.Store(&frame)
		s.frames.Add(1)
		if s.sink != nil {
			if err := s.sink.Send(frame); err != nil {
				s.sendFailures.Report(err)
			} else {
				s.sendFailures.Reset()
			}
		}

		if err := s.engine.Err(); err != nil {
			log.Errorf("Monitor: stream lost, analysis stopped: %v", err)
			return
		}
	}
}

// SelectInput switches capture to the named input device, restarting the
// stream if monitoring. On failure the previous device stays selected.
func (s *Session) SelectInput(name string) error {
	d, err := s.registry.ResolveByName(name, audio.Input)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.input
	s.input = &d
	if !s.monitoring {
		return nil
	}
	if err := s.restartLocked(); err != nil {
		s.input = prev
		return err
	}
	return nil
}

// SelectOutput switches the loopback target. The stream restarts only if
// loopback is active.
func (s *Session) SelectOutput(name string) error {
	d, err := s.registry.ResolveByName(name, audio.Output)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.output
	s.output = &d
	if !s.monitoring || !s.loopback {
		return nil
	}
	if err := s.restartLocked(); err != nil {
		s.output = prev
		return err
	}
	return nil
}

// SetLoopback turns input->output passthrough on or off. Turning it on
// starts monitoring if needed; turning it off keeps capture running.
func (s *Session) SetLoopback(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if on && s.output == nil {
		return ErrNoOutput
	}
	if s.loopback == on && (s.monitoring || !on) {
		return nil
	}
	prev := s.loopback
	s.loopback = on
	if !s.monitoring && !on {
		return nil
	}
	if err := s.restartLocked(); err != nil {
		s.loopback = prev
		return err
	}
	return nil
}

// SetVisibleWindow sets the peak search range for the next tick.
func (s *Session) SetVisibleWindow(low, high float64) error {
	return s.analyzer.SetVisibleWindow(low, high)
}

// VisibleWindow returns the peak search range.
func (s *Session) VisibleWindow() (low, high float64) {
	return s.analyzer.VisibleWindow()
}

// LatestFrame returns the most recent analysis, false before the first
// tick of a monitoring run.
func (s *Session) LatestFrame() (analysis.Frame, bool) {
	f := s.latest.Load()
	if f == nil {
		return analysis.Frame{}, false
	}
	return *f, true
}

// Status reports the selection, stream health and any parked failure.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Monitoring: s.monitoring && s.engine.IsRunning(),
		Loopback:   s.loopback,
		Stats:      s.engine.Stats(),
		Frames:     s.frames.Load(),
		Err:        s.engine.Err(),
	}
	if s.input != nil {
		d := *s.input
		st.Input = &d
	}
	if s.output != nil {
		d := *s.output
		st.Output = &d
	}
	return st
}

// Close stops monitoring and closes the sink. The host is left open.
func (s *Session) Close() error {
	err := s.Stop()
	if s.sink != nil {
		err = errors.Join(err, s.sink.Close())
	}
	return err
}
