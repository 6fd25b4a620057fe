// SPDX-License-Identifier: MIT
package audiotest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSineWave(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		sampleRate float64
		frequency  float64
	}{
		{"A4 Note", 1024, 44100, 440.0},
		{"Middle C", 1024, 44100, 261.63},
		{"High Sample Rate", 1024, 192000, 440.0},
		{"Low Sample Rate", 1024, 8000, 440.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GenerateSineWave(tt.size, tt.sampleRate, tt.frequency, 0.9)
			require.Len(t, result, tt.size)

			// Two zero crossings per cycle, give or take phase alignment.
			samplesPerCycle := tt.sampleRate / tt.frequency
			if samplesPerCycle <= 2 || float64(tt.size) <= samplesPerCycle {
				return
			}
			crossCount := 0
			for i := 1; i < tt.size; i++ {
				if (result[i-1] < 0 && result[i] >= 0) || (result[i-1] >= 0 && result[i] < 0) {
					crossCount++
				}
			}
			expected := float64(tt.size) / (samplesPerCycle / 2)
			assert.InDelta(t, expected, float64(crossCount), 0.2*expected)
		})
	}
}

func TestGenerateComplexWave(t *testing.T) {
	result := GenerateComplexWave(1024, 44100)
	require.Len(t, result, 1024)
	assert.NotEqual(t, Silence(1024), result)
}

func TestSineSignalIsPhaseContinuous(t *testing.T) {
	const n = 256
	sig := SineSignal(8000, 100, 0.5)

	first := make([]int16, n)
	second := make([]int16, n)
	sig(1, first)
	sig(2, second)

	whole := GenerateSineWave(2*n, 8000, 100, 0.5)
	assert.Equal(t, whole[:n], first)
	assert.Equal(t, whole[n:], second)
}

func TestCounterSignal(t *testing.T) {
	in := make([]int16, 4)
	CounterSignal()(7, in)
	assert.Equal(t, []int16{7, 7, 7, 7}, in)
}

func TestFindPeakBin(t *testing.T) {
	const size = 1024
	hill := make([]float64, size)
	for i := range hill {
		hill[i] = math.Exp(-0.01 * math.Pow(float64(i-size/4), 2))
	}

	tests := []struct {
		name     string
		mags     []float64
		start    int
		end      int
		expected int
	}{
		{"Full Range", hill, 0, size - 1, size / 4},
		{"Partial Range Start", hill, size / 8, size - 1, size / 4},
		{"Negative Start", hill, -10, size - 1, size / 4},
		{"Out of Range End", hill, 0, size * 2, size / 4},
		{"Empty Slice", []float64{}, 0, 10, 0},
		{"Single Value", []float64{1.0}, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FindPeakBin(tt.mags, tt.start, tt.end))
		})
	}
}
