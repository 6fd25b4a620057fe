// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linein/internal/audio"
	"linein/internal/audio/audiotest"
)

// 20480 Hz over 1024 samples gives 20 Hz bins, so 440 Hz lands on bin 22.
const (
	testRate  = 20480
	testSize  = 1024
	testTone  = 440.0
	toneLevel = 0.5
)

func newTestAnalyzer(t *testing.T, mutate ...func(*Config)) *Analyzer {
	t.Helper()
	cfg := DefaultConfig(testRate, testSize)
	for _, m := range mutate {
		m(&cfg)
	}
	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

func toneBlock(freq, amp float64) *audio.SampleBlock {
	return &audio.SampleBlock{
		Stream:     1,
		Seq:        7,
		SampleRate: testRate,
		Samples:    audiotest.GenerateSineWave(testSize, testRate, freq, amp),
	}
}

type stubSource struct {
	block *audio.SampleBlock
	err   error
}

func (s stubSource) LatestBlock() (*audio.SampleBlock, error) { return s.block, s.err }

func TestBinMapping(t *testing.T) {
	a := newTestAnalyzer(t)

	assert.Equal(t, 20.0, a.BinWidth())
	assert.Equal(t, testTone, a.FrequencyForBin(22))
	assert.Equal(t, 0.0, a.FrequencyForBin(-1))
	assert.Equal(t, 0.0, a.FrequencyForBin(testSize/2))

	// The mapping follows the configured rate rather than a fixed width.
	b, err := New(DefaultConfig(44100, 2048))
	require.NoError(t, err)
	assert.InDelta(t, 21.533, b.BinWidth(), 0.001)
}

func TestAnalyzeReportsTonePeak(t *testing.T) {
	a := newTestAnalyzer(t)

	frame, err := a.Analyze(toneBlock(testTone, toneLevel))
	require.NoError(t, err)
	require.NotNil(t, frame.Peak)
	assert.GreaterOrEqual(t, frame.Peak.Frequency, 420.0)
	assert.LessOrEqual(t, frame.Peak.Frequency, 460.0)
	assert.Equal(t, testTone, frame.Peak.Frequency)

	// A full-bin tone of amplitude A normalizes to roughly A/2.
	assert.InDelta(t, toneLevel*32767/2, frame.Peak.Magnitude, 50)

	assert.Equal(t, uint64(1), frame.Stream)
	assert.Equal(t, uint64(7), frame.Seq)
	assert.Len(t, frame.Samples, testSize)
	assert.Equal(t, 0.0, frame.VisibleLow)
	assert.Equal(t, DefaultVisibleHigh, frame.VisibleHi)
}

func TestAnalyzeFloorDropsDC(t *testing.T) {
	a := newTestAnalyzer(t)
	frame, err := a.Analyze(toneBlock(testTone, toneLevel))
	require.NoError(t, err)

	require.Len(t, frame.Spectrum, testSize/2-1)
	assert.Equal(t, 20.0, frame.Spectrum[0].Frequency)
	for _, b := range frame.Spectrum {
		assert.GreaterOrEqual(t, b.Frequency, DefaultFloorHz)
	}
	assert.Equal(t, 10220.0, frame.Spectrum[len(frame.Spectrum)-1].Frequency)

	noFloor := newTestAnalyzer(t, func(c *Config) { c.FloorHz = 0 })
	frame, err = noFloor.Analyze(toneBlock(testTone, toneLevel))
	require.NoError(t, err)
	require.Len(t, frame.Spectrum, testSize/2)
	assert.Equal(t, 0.0, frame.Spectrum[0].Frequency)
}

func TestAnalyzeSilenceHasNoPeak(t *testing.T) {
	windows := [][2]float64{{0, 5000}, {0, 0}, {0, 20000}, {400, 500}}
	a := newTestAnalyzer(t)
	silent := &audio.SampleBlock{Stream: 1, Seq: 1, SampleRate: testRate, Samples: audiotest.Silence(testSize)}

	for _, w := range windows {
		require.NoError(t, a.SetVisibleWindow(w[0], w[1]))
		frame, err := a.Analyze(silent)
		require.NoError(t, err)
		assert.Nil(t, frame.Peak, "window %v", w)
		for _, b := range frame.Spectrum {
			assert.Zero(t, b.Magnitude)
		}
	}
}

func TestAnalyzeVisibleWindow(t *testing.T) {
	tests := []struct {
		name      string
		low, high float64
		wantPeak  bool
	}{
		{"Default", 0, 5000, true},
		{"Below tone", 0, 300, false},
		{"Above tone", 1000, 5000, false},
		{"Around tone", 400, 500, true},
		{"Exactly tone", testTone, testTone, true},
		{"Empty range", 10005, 10010, false},
	}

	a := newTestAnalyzer(t)
	block := toneBlock(testTone, toneLevel)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, a.SetVisibleWindow(tt.low, tt.high))
			low, high := a.VisibleWindow()
			assert.Equal(t, tt.low, low)
			assert.Equal(t, tt.high, high)

			frame, err := a.Analyze(block)
			require.NoError(t, err)
			if !tt.wantPeak {
				assert.Nil(t, frame.Peak)
				return
			}
			require.NotNil(t, frame.Peak)
			assert.Equal(t, testTone, frame.Peak.Frequency)
			// The full spectrum is reported regardless of the window.
			assert.Len(t, frame.Spectrum, testSize/2-1)
		})
	}
}

func TestSetVisibleWindowRejectsInvalid(t *testing.T) {
	a := newTestAnalyzer(t)
	assert.Error(t, a.SetVisibleWindow(-1, 100))
	assert.Error(t, a.SetVisibleWindow(500, 100))

	low, high := a.VisibleWindow()
	assert.Equal(t, DefaultVisibleLow, low)
	assert.Equal(t, DefaultVisibleHigh, high)
}

func TestAnalyzeThreshold(t *testing.T) {
	// Amplitude 0.004 of full scale normalizes to about 65, under 100.
	quiet := toneBlock(testTone, 0.004)

	a := newTestAnalyzer(t)
	frame, err := a.Analyze(quiet)
	require.NoError(t, err)
	assert.Nil(t, frame.Peak)
	assert.NotZero(t, frame.Spectrum[21].Magnitude)

	sensitive := newTestAnalyzer(t, func(c *Config) { c.Threshold = 10 })
	frame, err = sensitive.Analyze(quiet)
	require.NoError(t, err)
	require.NotNil(t, frame.Peak)
	assert.Equal(t, testTone, frame.Peak.Frequency)
}

func TestAnalyzeWithWindowFunction(t *testing.T) {
	a := newTestAnalyzer(t, func(c *Config) { c.Window = Hann })

	frame, err := a.Analyze(toneBlock(testTone, toneLevel))
	require.NoError(t, err)
	require.NotNil(t, frame.Peak)
	assert.Equal(t, testTone, frame.Peak.Frequency)
	assert.Less(t, frame.Peak.Magnitude, toneLevel*32767/2)
}

func TestAnalyzeMalformedBlock(t *testing.T) {
	a := newTestAnalyzer(t)

	short := &audio.SampleBlock{Stream: 1, Seq: 1, SampleRate: testRate, Samples: make([]int16, 512)}
	frame, err := a.Analyze(short)
	assert.ErrorIs(t, err, ErrMalformedBlock)
	var malformed *MalformedBlockError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 512, malformed.Len)
	assert.Equal(t, testSize, malformed.Want)
	assert.True(t, frame.Empty())
	assert.Nil(t, frame.Peak)

	wrongRate := toneBlock(testTone, toneLevel)
	wrongRate.SampleRate = 44100
	_, err = a.Analyze(wrongRate)
	assert.ErrorIs(t, err, ErrMalformedBlock)
	assert.ErrorContains(t, err, "44100 Hz")
}

func TestAnalyzeNilBlock(t *testing.T) {
	frame, err := newTestAnalyzer(t).Analyze(nil)
	assert.NoError(t, err)
	assert.True(t, frame.Empty())
	assert.Nil(t, frame.Peak)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"Zero rate", func(c *Config) { c.SampleRate = 0 }},
		{"Odd size", func(c *Config) { c.BlockSize = 1000 }},
		{"Tiny size", func(c *Config) { c.BlockSize = 1 }},
		{"Negative floor", func(c *Config) { c.FloorHz = -1 }},
		{"Inverted window", func(c *Config) { c.VisibleLow, c.VisibleHigh = 100, 50 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(testRate, testSize)
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestTickHandlesFailuresLocally(t *testing.T) {
	a := newTestAnalyzer(t)

	frame := a.Tick(stubSource{})
	assert.True(t, frame.Empty())

	frame = a.Tick(stubSource{err: &audio.StreamDroppedError{Stream: 3, Err: errors.New("unplugged")}})
	assert.True(t, frame.Empty())
	assert.Nil(t, frame.Peak)

	frame = a.Tick(stubSource{block: &audio.SampleBlock{Samples: make([]int16, 3)}})
	assert.True(t, frame.Empty())

	frame = a.Tick(stubSource{block: toneBlock(testTone, toneLevel)})
	require.NotNil(t, frame.Peak)
	assert.Equal(t, testTone, frame.Peak.Frequency)
}

func TestTickFromEngine(t *testing.T) {
	host := audiotest.NewFakeHost(audiotest.InputDevice(0, "Line In"))
	host.Signal = audiotest.SineSignal(testRate, testTone, toneLevel)
	e := audio.NewEngine(host)
	require.NoError(t, e.Start(audio.NewStreamConfig(0, testRate, testSize)))
	defer e.Stop()

	a := newTestAnalyzer(t)
	require.Eventually(t, func() bool {
		f := a.Tick(e)
		return f.Peak != nil && f.Peak.Frequency == testTone
	}, 2*time.Second, time.Millisecond)
}

func TestBandEnergies(t *testing.T) {
	a := newTestAnalyzer(t)
	frame, err := a.Analyze(toneBlock(testTone, toneLevel))
	require.NoError(t, err)

	require.Len(t, frame.Bands, len(defaultBands))
	loudest := frame.Bands[0]
	for _, b := range frame.Bands {
		if b.Level > loudest.Level {
			loudest = b
		}
	}
	assert.Equal(t, "lowMid", loudest.Name)
	assert.Equal(t, float64(testRate)/2, frame.Bands[len(frame.Bands)-1].HighHz)

	assert.Nil(t, bandEnergies(nil, testRate/2))
}

func TestAnalyzeConcurrent(t *testing.T) {
	a := newTestAnalyzer(t)
	block := toneBlock(testTone, toneLevel)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if i == 0 {
					_ = a.SetVisibleWindow(0, float64(1000+j*100))
				}
				frame, err := a.Analyze(block)
				if err != nil || frame.Peak == nil || frame.Peak.Frequency != testTone {
					t.Errorf("concurrent analyze: %+v, %v", frame.Peak, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		in      string
		want    WindowFunc
		wantErr bool
	}{
		{"", Rectangular, false},
		{"Rectangular", Rectangular, false},
		{"hanning", Hann, false},
		{"HAMMING", Hamming, false},
		{"blackmannuttall", BlackmanNuttall, false},
		{"triangle", Rectangular, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
	assert.Equal(t, "hann", Hann.String())
}
