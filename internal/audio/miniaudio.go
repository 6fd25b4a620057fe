// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

const (
	miniaudioFallbackChannels = 2
	miniaudioFallbackRate     = 48000
)

// MiniaudioHost drives devices through miniaudio. Unlike PortAudio it
// reports a device that stops on its own, which is surfaced as Dropped.
//
// miniaudio enumerates capture and playback devices separately; IDs are
// the capture list positions followed by the playback list positions.
type MiniaudioHost struct {
	ctx *malgo.AllocatedContext
	mu  sync.Mutex
}

var _ Host = (*MiniaudioHost)(nil)

// NewMiniaudioHost initializes a miniaudio context on the platform's
// preferred backend.
func NewMiniaudioHost() (*MiniaudioHost, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio: %w", err)
	}
	return &MiniaudioHost{ctx: ctx}, nil
}

func (h *MiniaudioHost) Name() string { return "miniaudio" }

// Close releases the miniaudio context.
func (h *MiniaudioHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx == nil {
		return nil
	}
	err := h.ctx.Uninit()
	h.ctx.Free()
	h.ctx = nil
	return err
}

type miniaudioEntry struct {
	device Device
	id     malgo.DeviceID
	kind   malgo.DeviceType
	def    bool
}

func (h *MiniaudioHost) enumerate() ([]miniaudioEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx == nil {
		return nil, errors.New("miniaudio context is closed")
	}

	var entries []miniaudioEntry
	for _, kind := range []malgo.DeviceType{malgo.Capture, malgo.Playback} {
		infos, err := h.ctx.Devices(kind)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate %s devices: %w", kindName(kind), err)
		}
		for _, info := range infos {
			channels, rate := h.nativeFormat(kind, info)
			d := Device{
				ID:                len(entries),
				Name:              info.Name(),
				DefaultSampleRate: rate,
			}
			if kind == malgo.Capture {
				d.InputChannels = channels
			} else {
				d.OutputChannels = channels
			}
			entries = append(entries, miniaudioEntry{
				device: d,
				id:     info.ID,
				kind:   kind,
				def:    info.IsDefault != 0,
			})
		}
	}
	return entries, nil
}

// nativeFormat reports the widest native channel count and its rate.
func (h *MiniaudioHost) nativeFormat(kind malgo.DeviceType, info malgo.DeviceInfo) (int, float64) {
	full, err := h.ctx.DeviceInfo(kind, info.ID, malgo.Shared)
	if err != nil {
		return miniaudioFallbackChannels, miniaudioFallbackRate
	}
	channels, rate := 0, 0.0
	for i := 0; i < int(full.FormatCount) && i < len(full.Formats); i++ {
		f := full.Formats[i]
		if int(f.Channels) > channels {
			channels = int(f.Channels)
			rate = float64(f.SampleRate)
		}
	}
	if channels == 0 {
		channels = miniaudioFallbackChannels
	}
	if rate == 0 {
		rate = miniaudioFallbackRate
	}
	return channels, rate
}

func (h *MiniaudioHost) Devices() ([]Device, error) {
	entries, err := h.enumerate()
	if err != nil {
		return nil, err
	}
	devices := make([]Device, len(entries))
	for i, e := range entries {
		devices[i] = e.device
	}
	return devices, nil
}

func (h *MiniaudioHost) DefaultInputDevice() (Device, error) {
	return h.defaultDevice(malgo.Capture)
}

func (h *MiniaudioHost) DefaultOutputDevice() (Device, error) {
	return h.defaultDevice(malgo.Playback)
}

func (h *MiniaudioHost) defaultDevice(kind malgo.DeviceType) (Device, error) {
	entries, err := h.enumerate()
	if err != nil {
		return Device{}, err
	}
	for _, e := range entries {
		if e.kind == kind && e.def {
			return e.device, nil
		}
	}
	return Device{}, fmt.Errorf("no default %s device reported", kindName(kind))
}

// OpenStream initializes a capture or duplex miniaudio device.
func (h *MiniaudioHost) OpenStream(params StreamParams, callbacks StreamCallbacks) (Stream, error) {
	entries, err := h.enumerate()
	if err != nil {
		return nil, err
	}
	lookup := func(id int, kind malgo.DeviceType) (miniaudioEntry, error) {
		if id < 0 || id >= len(entries) || entries[id].kind != kind {
			return miniaudioEntry{}, fmt.Errorf("invalid %s device ID: %d", kindName(kind), id)
		}
		return entries[id], nil
	}

	in, err := lookup(params.Input.ID, malgo.Capture)
	if err != nil {
		return nil, err
	}

	kind := malgo.Capture
	if params.Duplex() {
		kind = malgo.Duplex
	}
	cfg := malgo.DefaultDeviceConfig(kind)
	cfg.SampleRate = uint32(params.SampleRate)
	cfg.PeriodSizeInFrames = uint32(params.FramesPerBuffer)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(params.InputChannels)
	cfg.Capture.DeviceID = in.id.Pointer()
	cfg.Alsa.NoMMap = 1

	s := &miniaudioStream{
		process: callbacks.Process,
		dropped: callbacks.Dropped,
		in:      make([]int16, params.FramesPerBuffer*params.InputChannels),
		inCh:    params.InputChannels,
		block:   params.FramesPerBuffer,
	}

	if params.Duplex() {
		out, err := lookup(params.Output.ID, malgo.Playback)
		if err != nil {
			return nil, err
		}
		cfg.Playback.Format = malgo.FormatS16
		cfg.Playback.Channels = uint32(params.OutputChannels)
		cfg.Playback.DeviceID = out.id.Pointer()
		s.outCh = params.OutputChannels
		s.out = make([]int16, params.FramesPerBuffer*params.OutputChannels)
	}

	h.mu.Lock()
	if h.ctx == nil {
		h.mu.Unlock()
		return nil, errors.New("miniaudio context is closed")
	}
	device, err := malgo.InitDevice(h.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.device = device
	return s, nil
}

func kindName(kind malgo.DeviceType) string {
	switch kind {
	case malgo.Capture:
		return "capture"
	case malgo.Playback:
		return "playback"
	default:
		return "duplex"
	}
}

// miniaudioStream re-blocks miniaudio periods into exactly block frames
// per Process call. Output for a block is played while the next block is
// captured, one block of added latency.
type miniaudioStream struct {
	device  *malgo.Device
	process ProcessFunc
	dropped func(error)

	block int
	inCh  int
	outCh int
	in    []int16 // Accumulating input block
	out   []int16 // Output produced for the previous block
	pos   int     // Frame position within the current block

	stopping atomic.Bool
}

func (s *miniaudioStream) Start() error {
	s.stopping.Store(false)
	return s.device.Start()
}

func (s *miniaudioStream) Stop() error {
	s.stopping.Store(true)
	return s.device.Stop()
}

func (s *miniaudioStream) Close() error {
	s.device.Uninit()
	return nil
}

// onData runs on the miniaudio thread with interleaved S16LE buffers.
func (s *miniaudioStream) onData(pOut, pIn []byte, frames uint32) {
	for f := 0; f < int(frames); f++ {
		for c := 0; c < s.inCh; c++ {
			src := (f*s.inCh + c) * 2
			if src+2 <= len(pIn) {
				s.in[s.pos*s.inCh+c] = int16(binary.LittleEndian.Uint16(pIn[src:]))
			}
		}
		for c := 0; c < s.outCh; c++ {
			dst := (f*s.outCh + c) * 2
			if dst+2 <= len(pOut) {
				binary.LittleEndian.PutUint16(pOut[dst:], uint16(s.out[s.pos*s.outCh+c]))
			}
		}

		s.pos++
		if s.pos == s.block {
			s.pos = 0
			if s.outCh > 0 {
				s.process(s.in, s.out, 0)
			} else {
				s.process(s.in, nil, 0)
			}
		}
	}
}

// onStop fires whenever the device stops; only unrequested stops matter.
func (s *miniaudioStream) onStop() {
	if s.stopping.Load() || s.dropped == nil {
		return
	}
	s.dropped(errors.New("device stopped by miniaudio"))
}
