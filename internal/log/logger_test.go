// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureJSON(t *testing.T, level LogLevel) *bytes.Buffer {
	t.Helper()
	orig := GetLevel()
	var buf bytes.Buffer
	SetLevel(level)
	SetJSONOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(orig)
	})
	return &buf
}

func lines(buf *bytes.Buffer) []map[string]any {
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(l), &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarn, true},
		{"error", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureJSON(t, LevelWarn)

	Debugf("hidden %d", 1)
	Infof("hidden %d", 2)
	Warnf("shown %d", 3)
	Error("shown ", 4)

	got := lines(buf)
	require.Len(t, got, 2)
	assert.Equal(t, "warn", got[0]["level"])
	assert.Equal(t, "shown 3", got[0]["message"])
	assert.Equal(t, "error", got[1]["level"])
	assert.Equal(t, LevelWarn, GetLevel())
}

func TestOnceReportsDistinctErrors(t *testing.T) {
	buf := captureJSON(t, LevelDebug)
	o := NewOnce(LevelWarn, "Analysis")

	assert.True(t, o.Report(errors.New("empty block")))
	assert.False(t, o.Report(errors.New("empty block")))
	assert.True(t, o.Report(errors.New("stream dropped")))
	assert.False(t, o.Report(nil))

	o.Reset()
	assert.True(t, o.Report(errors.New("stream dropped")))

	got := lines(buf)
	require.Len(t, got, 3)
	assert.Equal(t, "Analysis: empty block", got[0]["message"])
}
