// SPDX-License-Identifier: MIT

// Package analysis turns captured sample blocks into display-ready magnitude
// spectra and picks the dominant frequency inside a visible window.
package analysis

import (
	"fmt"
	"math/cmplx"
	"sync"
	"sync/atomic"

	"linein/internal/audio"
	"linein/internal/log"
	"linein/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Reference tuning. Threshold is on the normalized magnitude scale
// (|X[k]| / N of raw 16-bit samples) and must be recalibrated if the
// normalization or the window function changes.
const (
	DefaultFloorHz     = 10.0
	DefaultThreshold   = 100.0
	DefaultVisibleLow  = 0.0
	DefaultVisibleHigh = 5000.0
)

// Config is fixed for the life of an Analyzer; only the visible window
// can change afterwards.
type Config struct {
	SampleRate  float64
	BlockSize   int
	FloorHz     float64
	Threshold   float64
	Window      WindowFunc
	VisibleLow  float64
	VisibleHigh float64
}

// DefaultConfig returns the reference tuning for a stream.
func DefaultConfig(sampleRate float64, blockSize int) Config {
	return Config{
		SampleRate:  sampleRate,
		BlockSize:   blockSize,
		FloorHz:     DefaultFloorHz,
		Threshold:   DefaultThreshold,
		Window:      Rectangular,
		VisibleLow:  DefaultVisibleLow,
		VisibleHigh: DefaultVisibleHigh,
	}
}

// Bin is one point of the magnitude spectrum.
type Bin struct {
	Frequency float64 `json:"f"`
	Magnitude float64 `json:"m"`
}

// Peak is the dominant bin within the visible window.
type Peak struct {
	Frequency float64 `json:"frequency"`
	Magnitude float64 `json:"magnitude"`
}

// Frame is the analysis of one block. It is built fresh per tick and never
// shared with the analyzer afterwards.
type Frame struct {
	Stream     uint64       `json:"stream"`
	Seq        uint64       `json:"seq"`
	SampleRate float64      `json:"sample_rate"`
	Samples    []int16      `json:"-"`
	Spectrum   []Bin        `json:"spectrum"`
	Bands      []BandEnergy `json:"bands,omitempty"`
	Peak       *Peak        `json:"peak"`  // nil: no peak
	Level      float64      `json:"level"` // Block RMS, 0..1 of full scale
	Onset      bool         `json:"onset"` // Set by an OnsetDetector
	VisibleLow float64      `json:"visible_low"`
	VisibleHi  float64      `json:"visible_high"`
}

// Empty reports whether the frame carries no spectrum.
func (f Frame) Empty() bool {
	return len(f.Spectrum) == 0
}

// BlockSource is the engine side of the replace-not-queue handoff.
type BlockSource interface {
	LatestBlock() (*audio.SampleBlock, error)
}

type visibleWindow struct {
	low, high float64
}

// Analyzer computes spectra for blocks of one fixed size and rate.
// Analyze may be called from several goroutines; the FFT workspace is
// serialized by a mutex that the audio callback never touches.
type Analyzer struct {
	cfg      Config
	binWidth float64
	firstBin int // First bin at or above the floor.

	mu        sync.Mutex
	fft       *fourier.FFT
	input     []float64
	fftOutput []complex128
	window    []float64

	visible  atomic.Pointer[visibleWindow]
	failures *log.Once
}

// New validates cfg and pre-allocates the FFT workspace.
func New(cfg Config) (*Analyzer, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", cfg.SampleRate)
	}
	if cfg.BlockSize < 2 || !bitint.IsPowerOfTwo(cfg.BlockSize) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", cfg.BlockSize)
	}
	if cfg.FloorHz < 0 {
		return nil, fmt.Errorf("frequency floor must not be negative, got %f", cfg.FloorHz)
	}
	if err := validateWindow(cfg.VisibleLow, cfg.VisibleHigh); err != nil {
		return nil, err
	}

	a := &Analyzer{
		cfg:       cfg,
		binWidth:  cfg.SampleRate / float64(cfg.BlockSize),
		fft:       fourier.NewFFT(cfg.BlockSize),
		input:     make([]float64, cfg.BlockSize),
		fftOutput: make([]complex128, cfg.BlockSize/2+1),
		window:    windowCoefficients(cfg.BlockSize, cfg.Window),
		failures:  log.NewOnce(log.LevelWarn, "Analysis"),
	}
	for a.firstBin < cfg.BlockSize/2 && a.FrequencyForBin(a.firstBin) < cfg.FloorHz {
		a.firstBin++
	}
	a.visible.Store(&visibleWindow{cfg.VisibleLow, cfg.VisibleHigh})

	log.Debugf("Analysis: analyzer ready (N=%d, %.1f Hz, %.2f Hz/bin, window %s)",
		cfg.BlockSize, cfg.SampleRate, a.binWidth, cfg.Window)
	return a, nil
}

func validateWindow(low, high float64) error {
	if low < 0 {
		return fmt.Errorf("visible window low bound must not be negative, got %f", low)
	}
	if high < low {
		return fmt.Errorf("visible window is inverted: [%f, %f]", low, high)
	}
	return nil
}

// Config returns the configuration the analyzer was built with. The
// visible window reflects construction time; see VisibleWindow.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// SetVisibleWindow changes the peak search range. It takes effect on the
// next analysis and may be called from any goroutine.
func (a *Analyzer) SetVisibleWindow(low, high float64) error {
	if err := validateWindow(low, high); err != nil {
		return err
	}
	a.visible.Store(&visibleWindow{low, high})
	return nil
}

// VisibleWindow returns the current inclusive peak search range.
func (a *Analyzer) VisibleWindow() (low, high float64) {
	w := a.visible.Load()
	return w.low, w.high
}

// BinWidth is the frequency spacing between bins in Hz.
func (a *Analyzer) BinWidth() float64 {
	return a.binWidth
}

// FrequencyForBin returns the frequency (Hz) of a bin in the reported
// half-spectrum, or 0 when out of range.
func (a *Analyzer) FrequencyForBin(binIndex int) float64 {
	if binIndex < 0 || binIndex >= a.cfg.BlockSize/2 {
		return 0.0
	}
	return float64(binIndex) * a.binWidth
}

// Analyze computes the frame for block. A nil block yields an empty frame.
// Blocks whose length or rate differ from the configuration are rejected
// with a *MalformedBlockError rather than truncated or padded.
func (a *Analyzer) Analyze(block *audio.SampleBlock) (Frame, error) {
	low, high := a.VisibleWindow()
	frame := Frame{SampleRate: a.cfg.SampleRate, VisibleLow: low, VisibleHi: high}
	if block == nil {
		return frame, nil
	}
	if block.Len() != a.cfg.BlockSize || (block.SampleRate != 0 && block.SampleRate != a.cfg.SampleRate) {
		return frame, &MalformedBlockError{
			Len:        block.Len(),
			Want:       a.cfg.BlockSize,
			SampleRate: block.SampleRate,
			WantRate:   a.cfg.SampleRate,
		}
	}

	frame.Stream = block.Stream
	frame.Seq = block.Seq
	frame.Samples = block.Samples
	frame.Spectrum = a.spectrum(block.Samples)
	frame.Bands = bandEnergies(frame.Spectrum, a.cfg.SampleRate/2)
	frame.Peak = findPeak(frame.Spectrum, low, high, a.cfg.Threshold)
	frame.Level = blockLevel(block.Samples)
	return frame, nil
}

// spectrum returns the floor-filtered half-spectrum normalized by N.
func (a *Analyzer) spectrum(samples []int16) []Bin {
	n := a.cfg.BlockSize
	half := n / 2
	norm := 1.0 / float64(n)

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, s := range samples {
		a.input[i] = float64(s) * a.window[i]
	}
	a.fft.Coefficients(a.fftOutput, a.input)

	bins := make([]Bin, 0, half-a.firstBin)
	for i := a.firstBin; i < half; i++ {
		bins = append(bins, Bin{
			Frequency: float64(i) * a.binWidth,
			Magnitude: cmplx.Abs(a.fftOutput[i]) * norm,
		})
	}
	return bins
}

// findPeak returns the largest bin in [low, high] if it exceeds threshold.
func findPeak(spectrum []Bin, low, high, threshold float64) *Peak {
	best := -1
	for i, b := range spectrum {
		if b.Frequency < low || b.Frequency > high {
			continue
		}
		if best < 0 || b.Magnitude > spectrum[best].Magnitude {
			best = i
		}
	}
	if best < 0 || spectrum[best].Magnitude <= threshold {
		return nil
	}
	return &Peak{Frequency: spectrum[best].Frequency, Magnitude: spectrum[best].Magnitude}
}

// Tick analyzes whatever block src currently holds. Failures never
// propagate: the frame is empty and each distinct failure is logged once.
func (a *Analyzer) Tick(src BlockSource) Frame {
	block, err := src.LatestBlock()
	if err != nil {
		a.failures.Report(err)
		low, high := a.VisibleWindow()
		return Frame{SampleRate: a.cfg.SampleRate, VisibleLow: low, VisibleHi: high}
	}
	frame, err := a.Analyze(block)
	if err != nil {
		a.failures.Report(err)
		return frame
	}
	if block != nil {
		a.failures.Reset()
	}
	return frame
}
