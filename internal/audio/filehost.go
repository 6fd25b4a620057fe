// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// File host device IDs.
const (
	FileInputDevice   = 0
	FileDiscardDevice = 1
)

// FileHost replays a WAV file as if it were a live line-in, paced in real
// time and looping at the end. Loopback output is discarded.
type FileHost struct {
	path       string
	sampleRate float64
	samples    []int16 // Mono
}

var _ Host = (*FileHost)(nil)

// NewFileHost decodes path into memory.
func NewFileHost(path string) (*FileHost, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%s has no usable format", path)
	}

	samples := downmix(buf)
	if len(samples) == 0 {
		return nil, fmt.Errorf("%s contains no samples", path)
	}
	return &FileHost{
		path:       path,
		sampleRate: float64(buf.Format.SampleRate),
		samples:    samples,
	}, nil
}

// downmix averages interleaved channels into 16-bit mono.
func downmix(buf *goaudio.IntBuffer) []int16 {
	channels := buf.Format.NumChannels
	depth := buf.SourceBitDepth
	frames := len(buf.Data) / channels

	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += toInt16(buf.Data[i*channels+c], depth)
		}
		out[i] = int16(sum / channels)
	}
	return out
}

func toInt16(v, depth int) int {
	switch {
	case depth == 8:
		return (v - 128) << 8
	case depth > 16:
		return v >> (depth - 16)
	default:
		return v
	}
}

func (h *FileHost) Name() string { return "file" }

// SampleRate is the rate the file was recorded at.
func (h *FileHost) SampleRate() float64 { return h.sampleRate }

func (h *FileHost) Close() error { return nil }

func (h *FileHost) Devices() ([]Device, error) {
	in, _ := h.DefaultInputDevice()
	out, _ := h.DefaultOutputDevice()
	return []Device{in, out}, nil
}

func (h *FileHost) DefaultInputDevice() (Device, error) {
	return Device{
		ID:                FileInputDevice,
		Name:              filepath.Base(h.path),
		InputChannels:     1,
		DefaultSampleRate: h.sampleRate,
	}, nil
}

func (h *FileHost) DefaultOutputDevice() (Device, error) {
	return Device{
		ID:                FileDiscardDevice,
		Name:              "discard",
		OutputChannels:    2,
		DefaultSampleRate: h.sampleRate,
	}, nil
}

func (h *FileHost) OpenStream(params StreamParams, callbacks StreamCallbacks) (Stream, error) {
	if params.Input.ID != FileInputDevice {
		return nil, fmt.Errorf("invalid device ID: %d", params.Input.ID)
	}
	if params.SampleRate != h.sampleRate {
		return nil, fmt.Errorf("file is %.0f Hz, stream requested %.0f Hz", h.sampleRate, params.SampleRate)
	}
	if params.FramesPerBuffer <= 0 {
		return nil, errors.New("invalid block size")
	}

	s := &fileStream{
		samples: h.samples,
		process: callbacks.Process,
		period:  params.Period(),
		in:      make([]int16, params.FramesPerBuffer),
	}
	if params.Duplex() {
		s.out = make([]int16, params.FramesPerBuffer*params.OutputChannels)
	}
	return s, nil
}

type fileStream struct {
	samples []int16
	process ProcessFunc
	period  time.Duration
	in, out []int16
	pos     int

	mu   sync.Mutex
	quit chan struct{}
	wg   sync.WaitGroup
}

func (s *fileStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quit != nil {
		return nil
	}
	s.quit = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.quit)
	return nil
}

func (s *fileStream) run(quit chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			for i := range s.in {
				s.in[i] = s.samples[s.pos]
				s.pos = (s.pos + 1) % len(s.samples)
			}
			s.process(s.in, s.out, 0)
		}
	}
}

// Stop returns once the pacing goroutine has exited.
func (s *fileStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quit == nil {
		return nil
	}
	close(s.quit)
	s.wg.Wait()
	s.quit = nil
	return nil
}

func (s *fileStream) Close() error {
	return s.Stop()
}
