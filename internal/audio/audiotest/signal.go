// SPDX-License-Identifier: MIT
package audiotest

import "math"

// GenerateSineWave returns size samples of a tone at amplitude amp
// (0..1 of full scale).
func GenerateSineWave(size int, sampleRate, frequency, amp float64) []int16 {
	buffer := make([]int16, size)
	fillSine(buffer, 0, sampleRate, frequency, amp)
	return buffer
}

// GenerateComplexWave returns a 440 Hz fundamental with two harmonics.
func GenerateComplexWave(size int, sampleRate float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = int16(signal * math.MaxInt16 * 0.9)
	}
	return buffer
}

// Silence returns size zero samples.
func Silence(size int) []int16 {
	return make([]int16, size)
}

// SineSignal produces a phase-continuous tone across periods.
func SineSignal(sampleRate, frequency, amp float64) Signal {
	return func(seq uint64, in []int16) {
		fillSine(in, int(seq-1)*len(in), sampleRate, frequency, amp)
	}
}

// CounterSignal fills every sample of a period with its sequence number,
// which lets tests tell periods apart.
func CounterSignal() Signal {
	return func(seq uint64, in []int16) {
		v := int16(seq % math.MaxInt16)
		for i := range in {
			in[i] = v
		}
	}
}

func fillSine(buffer []int16, offset int, sampleRate, frequency, amp float64) {
	for i := range buffer {
		t := float64(offset+i) / sampleRate
		buffer[i] = int16(math.Sin(2*math.Pi*frequency*t) * math.MaxInt16 * amp)
	}
}

// FindPeakBin returns the index of the largest magnitude in
// [startBin, endBin], clamped to the slice.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
