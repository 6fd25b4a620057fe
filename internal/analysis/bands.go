// SPDX-License-Identifier: MIT
package analysis

import "math"

// BandEnergy is the RMS magnitude of the bins inside one frequency band.
type BandEnergy struct {
	Name   string  `json:"name"`
	LowHz  float64 `json:"low"`
	HighHz float64 `json:"high"`
	Level  float64 `json:"level"`
}

// Bands used for the coarse level meters. The top band runs to Nyquist.
var defaultBands = []struct {
	name      string
	low, high float64
}{
	{"sub", 20, 60},
	{"bass", 60, 250},
	{"lowMid", 250, 500},
	{"mid", 500, 2000},
	{"highMid", 2000, 4000},
	{"treble", 4000, math.Inf(1)},
}

// bandEnergies groups spectrum into the default bands. Levels are on the
// same normalized scale as the spectrum.
func bandEnergies(spectrum []Bin, nyquist float64) []BandEnergy {
	if len(spectrum) == 0 {
		return nil
	}
	out := make([]BandEnergy, len(defaultBands))
	counts := make([]int, len(defaultBands))
	for i, b := range defaultBands {
		out[i] = BandEnergy{Name: b.name, LowHz: b.low, HighHz: math.Min(b.high, nyquist)}
	}

	for _, bin := range spectrum {
		for i := range out {
			if bin.Frequency >= out[i].LowHz && bin.Frequency < out[i].HighHz {
				out[i].Level += bin.Magnitude * bin.Magnitude
				counts[i]++
				break
			}
		}
	}
	for i := range out {
		if counts[i] > 0 {
			out[i].Level = math.Sqrt(out[i].Level / float64(counts[i]))
		}
	}
	return out
}
