// SPDX-License-Identifier: MIT
package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPassthrough(t *testing.T) {
	tests := []struct {
		name     string
		in       []int16
		out      []int16
		channels int
		want     []int16
	}{
		{"Mono", []int16{1, 2, 3}, make([]int16, 3), 1, []int16{1, 2, 3}},
		{"Stereo", []int16{1, 2}, make([]int16, 4), 2, []int16{1, 1, 2, 2}},
		{"Short input", []int16{7}, []int16{9, 9, 9, 9}, 2, []int16{7, 7, 0, 0}},
		{"No channels", []int16{1}, []int16{5, 5}, 0, []int16{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passthrough(tt.out, tt.in, tt.channels)
			assert.Equal(t, tt.want, tt.out)
		})
	}
}

func TestEffectiveStallTimeout(t *testing.T) {
	e := NewEngine(nil, WithStallTimeout(DefaultStallTimeout))
	short := NewStreamConfig(0, 44100, 1024)
	assert.Equal(t, DefaultStallTimeout, e.effectiveStallTimeout(short))

	// Very long blocks stretch the timeout to several periods.
	long := NewStreamConfig(0, 1000, 1000)
	assert.Equal(t, minStallPeriods*long.BlockDuration(), e.effectiveStallTimeout(long))

	e = NewEngine(nil, WithStallTimeout(0))
	assert.Zero(t, e.effectiveStallTimeout(short))
}

func TestMiniaudioStreamReblocks(t *testing.T) {
	var got [][]int16
	s := &miniaudioStream{
		process: func(in, out []int16, _ StreamStatus) {
			got = append(got, append([]int16(nil), in...))
			for i := range out {
				out[i] = in[0]
			}
		},
		block: 4,
		inCh:  1,
		outCh: 1,
		in:    make([]int16, 4),
		out:   make([]int16, 4),
	}

	le := func(vs ...int16) []byte {
		b := make([]byte, 0, 2*len(vs))
		for _, v := range vs {
			b = append(b, byte(uint16(v)), byte(uint16(v)>>8))
		}
		return b
	}

	// Periods of 3 frames regroup into blocks of 4.
	out := make([]byte, 6)
	s.onData(out, le(1, 2, 3), 3)
	assert.Empty(t, got)
	s.onData(out, le(4, 5, 6), 3)
	assert.Equal(t, [][]int16{{1, 2, 3, 4}}, got)
	s.onData(out, le(7, 8, -1), 3)
	assert.Equal(t, [][]int16{{1, 2, 3, 4}, {5, 6, 7, 8}}, got)

	// Output trails input by one block: frames 7 and 8 play the first
	// block's output, the next frame starts the second block's.
	assert.Equal(t, le(1, 1, 5), out)
}
