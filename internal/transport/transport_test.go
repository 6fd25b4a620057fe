// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linein/internal/analysis"
	"linein/internal/log"
)

type recorder struct {
	sent   []any
	err    error
	closed bool
}

func (r *recorder) Send(data any) error { r.sent = append(r.sent, data); return r.err }
func (r *recorder) Close() error        { r.closed = true; return r.err }

func peakFrame(freq float64) analysis.Frame {
	f := analysis.Frame{
		Stream:   2,
		Seq:      5,
		Spectrum: []analysis.Bin{{Frequency: 20, Magnitude: 1}, {Frequency: freq, Magnitude: 500}},
	}
	if freq > 0 {
		f.Peak = &analysis.Peak{Frequency: freq, Magnitude: 500}
	}
	return f
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{err: errors.New("b failed")}
	m := Multi{a, b}

	err := m.Send(1)
	assert.ErrorContains(t, err, "b failed")
	assert.Equal(t, []any{1}, a.sent)
	assert.Equal(t, []any{1}, b.sent)

	assert.Error(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestLoggingTransportLogsPeakChanges(t *testing.T) {
	var buf bytes.Buffer
	log.SetJSONOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	lt := NewLoggingTransport()
	require.NoError(t, lt.Send(peakFrame(440)))
	require.NoError(t, lt.Send(peakFrame(440)))
	require.NoError(t, lt.Send(peakFrame(0)))
	require.NoError(t, lt.Send(peakFrame(880)))
	require.NoError(t, lt.Close())

	out := strings.TrimSpace(buf.String())
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"frequency":440`)
	assert.Contains(t, lines[1], `"message":"no peak"`)
	assert.Contains(t, lines[2], `"frequency":880`)
}

func TestWebSocketTransportBroadcasts(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer wst.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+wst.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return wst.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, wst.Send(peakFrame(440)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got struct {
		Stream   uint64         `json:"stream"`
		Seq      uint64         `json:"seq"`
		Spectrum []analysis.Bin `json:"spectrum"`
		Peak     *analysis.Peak `json:"peak"`
	}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, uint64(2), got.Stream)
	assert.Equal(t, uint64(5), got.Seq)
	assert.Len(t, got.Spectrum, 2)
	require.NotNil(t, got.Peak)
	assert.Equal(t, 440.0, got.Peak.Frequency)
}

func TestWebSocketTransportClose(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+wst.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return wst.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, wst.Close())
	assert.NoError(t, wst.Close())
	assert.Error(t, wst.Send(peakFrame(440)))
	assert.Zero(t, wst.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocketTransportListenError(t *testing.T) {
	_, err := NewWebSocketTransport("256.0.0.1:-1")
	assert.Error(t, err)
}
