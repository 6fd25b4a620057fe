// SPDX-License-Identifier: MIT
/*
Package audio implements the capture side of the line-in monitor:
- Device enumeration over a pluggable Host (PortAudio, miniaudio, WAV file)
- A single-stream engine with optional input->output loopback
- Replace-not-queue publication of the freshest SampleBlock

Thread Safety:
- Start/Stop/drop are serialized by a mutex that the audio callback never takes
- The latest block is handed off through an atomic pointer swap
- Published blocks are immutable; readers never block the callback
*/
package audio

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"linein/internal/log"
)

const (
	DefaultStallTimeout = 2 * time.Second
	DefaultOpenTimeout  = 5 * time.Second

	// Stall detection never fires faster than this many block periods.
	minStallPeriods = 4
)

// Stats is a snapshot of the running stream's health counters.
type Stats struct {
	Stream           uint64
	Blocks           uint64
	InputOverflows   uint64
	InputUnderflows  uint64
	OutputOverflows  uint64
	OutputUnderflows uint64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithStallTimeout sets how long a running stream may go without a callback
// before it is treated as dropped. Zero disables the watchdog.
func WithStallTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.stallTimeout = d }
}

// WithOpenTimeout bounds how long Start waits for the host to open a stream.
func WithOpenTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.openTimeout = d }
}

// Engine owns at most one audio stream. The state machine is
// Stopped -> Start -> Running -> Stop -> Stopped; a host failure moves it
// to Stopped and parks a StreamDroppedError for the next observer.
type Engine struct {
	host         Host
	stallTimeout time.Duration
	openTimeout  time.Duration

	mu      sync.Mutex // Serializes lifecycle transitions.
	current *stream
	nextID  uint64

	running   atomic.Bool
	currentID atomic.Uint64 // 0 while stopped
	latest    atomic.Pointer[SampleBlock]
	dropped   atomic.Pointer[StreamDroppedError]
}

// NewEngine creates a stopped engine on host.
func NewEngine(host Host, opts ...EngineOption) *Engine {
	e := &Engine{
		host:         host,
		stallTimeout: DefaultStallTimeout,
		openTimeout:  DefaultOpenTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start opens a stream for cfg, implicitly stopping any running stream.
// An invalid configuration or unknown device is rejected before the
// running stream is touched. Host failures return a *DeviceOpenError and
// leave the engine Stopped.
func (e *Engine) Start(cfg StreamConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	params, err := e.streamParams(cfg)
	if err != nil {
		return &DeviceOpenError{DeviceID: cfg.InputDevice, Err: err}
	}

	if e.current != nil {
		if err := e.teardownLocked(e.current); err != nil {
			log.Warnf("Engine: error releasing stream before restart: %v", err)
		}
	}
	e.dropped.Store(nil)

	e.nextID++
	s := &stream{
		engine:      e,
		id:          e.nextID,
		cfg:         cfg,
		outChannels: params.OutputChannels,
		done:        make(chan struct{}),
	}
	s.lastTick.Store(time.Now().UnixNano())

	hs, err := e.open(s, params)
	if err != nil {
		return &DeviceOpenError{DeviceID: cfg.InputDevice, Err: err}
	}
	s.hs = hs

	e.current = s
	e.currentID.Store(s.id)
	e.running.Store(true)
	go s.watch(e.effectiveStallTimeout(cfg))

	if cfg.Loopback() {
		log.Infof("Engine: stream %d running (input %d -> output %d, %.0f Hz, %d frames)",
			s.id, cfg.InputDevice, cfg.OutputDevice, cfg.SampleRate, cfg.BlockSize)
	} else {
		log.Infof("Engine: stream %d running (input %d, %.0f Hz, %d frames)",
			s.id, cfg.InputDevice, cfg.SampleRate, cfg.BlockSize)
	}
	return nil
}

// open asks the host for a started stream, giving up after openTimeout.
// A stream that finishes opening after the deadline is released in the
// background and never publishes.
func (e *Engine) open(s *stream, params StreamParams) (Stream, error) {
	type result struct {
		hs  Stream
		err error
	}
	ch := make(chan result, 1)
	go func() {
		hs, err := e.host.OpenStream(params, StreamCallbacks{
			Process: s.process,
			Dropped: s.hostDropped,
		})
		if err == nil {
			if err = hs.Start(); err != nil {
				_ = hs.Close()
				hs = nil
			}
		}
		ch <- result{hs, err}
	}()

	if e.openTimeout <= 0 {
		r := <-ch
		return r.hs, r.err
	}

	timer := time.NewTimer(e.openTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.hs, r.err
	case <-timer.C:
		s.closed.Store(true)
		go func() {
			if r := <-ch; r.hs != nil {
				_ = r.hs.Stop()
				_ = r.hs.Close()
			}
		}()
		return nil, fmt.Errorf("host did not open the stream within %s", e.openTimeout)
	}
}

// streamParams validates cfg against a fresh enumeration.
func (e *Engine) streamParams(cfg StreamConfig) (StreamParams, error) {
	if cfg.SampleRate <= 0 {
		return StreamParams{}, fmt.Errorf("invalid sample rate: %v", cfg.SampleRate)
	}
	if cfg.BlockSize <= 0 {
		return StreamParams{}, fmt.Errorf("invalid block size: %d", cfg.BlockSize)
	}

	devices, err := e.host.Devices()
	if err != nil {
		return StreamParams{}, err
	}
	find := func(id int) (Device, bool) {
		for _, d := range devices {
			if d.ID == id {
				return d, true
			}
		}
		return Device{}, false
	}

	in, ok := find(cfg.InputDevice)
	if !ok {
		return StreamParams{}, fmt.Errorf("invalid device ID: %d", cfg.InputDevice)
	}
	if !in.Supports(Input) {
		return StreamParams{}, fmt.Errorf("device %d (%s) does not support input", in.ID, in.Name)
	}

	params := StreamParams{
		Input:           in,
		InputChannels:   InputChannels,
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.BlockSize,
		LowLatency:      cfg.LowLatency,
	}

	if cfg.Loopback() {
		out, ok := find(cfg.OutputDevice)
		if !ok {
			return StreamParams{}, fmt.Errorf("invalid output device ID: %d", cfg.OutputDevice)
		}
		if !out.Supports(Output) {
			return StreamParams{}, fmt.Errorf("device %d (%s) does not support output", out.ID, out.Name)
		}
		params.Output = &out
		params.OutputChannels = min(out.OutputChannels, 2)
	}
	return params, nil
}

func (e *Engine) effectiveStallTimeout(cfg StreamConfig) time.Duration {
	if e.stallTimeout <= 0 {
		return 0
	}
	return max(e.stallTimeout, minStallPeriods*cfg.BlockDuration())
}

// Stop halts the callback, releases host resources and discards the
// published block. It is a no-op when already stopped and may be called
// from any goroutine. After it returns the prior stream never publishes.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return nil
	}
	id := e.current.id
	err := e.teardownLocked(e.current)
	log.Infof("Engine: stream %d stopped", id)
	return err
}

// Close stops the engine. The host is owned by the caller.
func (e *Engine) Close() error {
	return e.Stop()
}

// teardownLocked stops and releases s. Callers hold e.mu.
func (e *Engine) teardownLocked(s *stream) error {
	s.closed.Store(true)
	s.stopWatch()

	e.current = nil
	e.running.Store(false)
	e.currentID.Store(0)

	var errs []error
	if err := s.hs.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop stream %d: %w", s.id, err))
	}
	s.drain()
	if err := s.hs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stream %d: %w", s.id, err))
	}

	e.latest.Store(nil)
	return errors.Join(errs...)
}

// drop moves the engine to Stopped after a host failure on s.
func (e *Engine) drop(s *stream, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != s {
		return // Already stopped or replaced.
	}
	if err := e.teardownLocked(s); err != nil {
		log.Debugf("Engine: releasing dropped stream %d: %v", s.id, err)
	}
	e.dropped.Store(&StreamDroppedError{Stream: s.id, Err: cause})
	log.Warnf("Engine: stream %d dropped: %v", s.id, cause)
}

// LatestBlock returns the most recently published block without blocking.
// It returns nil before the first period of a stream, and never returns a
// block from an earlier stream instance. After a host failure it returns
// the parked *StreamDroppedError until the next Start.
func (e *Engine) LatestBlock() (*SampleBlock, error) {
	if d := e.dropped.Load(); d != nil {
		return nil, d
	}
	b := e.latest.Load()
	if b == nil || b.Stream != e.currentID.Load() {
		return nil, nil
	}
	return b, nil
}

// Err reports a parked stream failure, if any.
func (e *Engine) Err() error {
	if d := e.dropped.Load(); d != nil {
		return d
	}
	return nil
}

// IsRunning reports whether a stream is open and started.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Config returns the running stream's configuration.
func (e *Engine) Config() (StreamConfig, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return StreamConfig{}, false
	}
	return e.current.cfg, true
}

// Stats returns the running stream's counters, zero when stopped.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.current
	if s == nil {
		return Stats{}
	}
	return Stats{
		Stream:           s.id,
		Blocks:           s.blocks.Load(),
		InputOverflows:   s.inOverflows.Load(),
		InputUnderflows:  s.inUnderflows.Load(),
		OutputOverflows:  s.outOverflows.Load(),
		OutputUnderflows: s.outUnderflows.Load(),
	}
}

// stream is one instance of an open host stream.
type stream struct {
	engine      *Engine
	id          uint64
	cfg         StreamConfig
	outChannels int
	hs          Stream

	seq      uint64 // Touched only by the audio callback.
	closed   atomic.Bool
	inflight atomic.Int32
	lastTick atomic.Int64

	blocks        atomic.Uint64
	inOverflows   atomic.Uint64
	inUnderflows  atomic.Uint64
	outOverflows  atomic.Uint64
	outUnderflows atomic.Uint64

	done     chan struct{}
	doneOnce sync.Once
}

// process is the audio callback.
// Performance Critical:
// - No locks, no logging, no I/O
// - One fixed-size allocation for the published block
func (s *stream) process(in, out []int16, status StreamStatus) {
	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	if s.closed.Load() {
		clear(out)
		return
	}
	s.lastTick.Store(time.Now().UnixNano())
	if status != 0 {
		s.countStatus(status)
	}

	if out != nil {
		passthrough(out, in, s.outChannels)
	}

	samples := make([]int16, s.cfg.BlockSize)
	copy(samples, in)
	s.seq++
	s.engine.latest.Store(&SampleBlock{
		Stream:     s.id,
		Seq:        s.seq,
		SampleRate: s.cfg.SampleRate,
		Samples:    samples,
	})
	s.blocks.Add(1)
}

func (s *stream) countStatus(status StreamStatus) {
	if status&InputOverflow != 0 {
		s.inOverflows.Add(1)
	}
	if status&InputUnderflow != 0 {
		s.inUnderflows.Add(1)
	}
	if status&OutputOverflow != 0 {
		s.outOverflows.Add(1)
	}
	if status&OutputUnderflow != 0 {
		s.outUnderflows.Add(1)
	}
}

// hostDropped runs on whatever thread the host reports from, possibly the
// audio thread, so teardown happens on its own goroutine.
func (s *stream) hostDropped(err error) {
	if s.closed.Load() {
		return
	}
	if err == nil {
		err = errors.New("stopped by host")
	}
	go s.engine.drop(s, err)
}

// watch treats a stream that stops calling back as dropped.
func (s *stream) watch(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	ticker := time.NewTicker(timeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			last := time.Unix(0, s.lastTick.Load())
			if time.Since(last) > timeout {
				s.engine.drop(s, fmt.Errorf("no audio callback for %s", timeout))
				return
			}
		}
	}
}

func (s *stream) stopWatch() {
	s.doneOnce.Do(func() { close(s.done) })
}

// drain waits for a callback that passed the closed check to finish.
func (s *stream) drain() {
	for s.inflight.Load() > 0 {
		runtime.Gosched()
	}
}

// passthrough copies mono input to every output channel.
func passthrough(out, in []int16, channels int) {
	if channels <= 0 {
		clear(out)
		return
	}
	frames := min(len(in), len(out)/channels)
	for i := 0; i < frames; i++ {
		v := in[i]
		for c := 0; c < channels; c++ {
			out[i*channels+c] = v
		}
	}
	clear(out[frames*channels:])
}
