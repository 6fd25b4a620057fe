// SPDX-License-Identifier: MIT
package analysis

import "math"

// A frame is an onset when its level exceeds onsetMinLevel and has risen
// by onsetMinRatio over the previous block.
const (
	onsetMinLevel = 0.05
	onsetMinRatio = 1.5
)

// blockLevel returns the RMS of samples relative to int16 full scale.
func blockLevel(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	var sumSquare float64
	for _, sample := range samples {
		s := float64(sample) / math.MaxInt16
		sumSquare += s * s
	}
	return math.Sqrt(sumSquare / float64(len(samples)))
}

// OnsetDetector flags sudden level rises across a sequence of frames. It
// keeps the level of the previous distinct block, so the same block seen
// on two ticks keeps its first verdict. Not safe for concurrent use.
type OnsetDetector struct {
	stream, seq uint64
	prev, last  float64
	lastOnset   bool
}

// Mark sets f.Onset. Empty frames are never onsets and leave the history
// alone.
func (d *OnsetDetector) Mark(f *Frame) {
	if f.Empty() {
		f.Onset = false
		return
	}
	if f.Stream == d.stream && f.Seq == d.seq {
		f.Onset = d.lastOnset
		return
	}
	if f.Stream != d.stream {
		d.last = 0
	}
	d.prev, d.last = d.last, f.Level
	d.stream, d.seq = f.Stream, f.Seq

	d.lastOnset = f.Level > onsetMinLevel && (d.prev == 0 || f.Level/d.prev > onsetMinRatio)
	f.Onset = d.lastOnset
}
