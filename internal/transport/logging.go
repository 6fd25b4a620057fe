// SPDX-License-Identifier: MIT
package transport

import (
	"sync"

	"linein/internal/analysis"
	"linein/internal/log"
)

// LoggingTransport logs peak changes instead of sending frames anywhere.
// Frames whose peak matches the previous one are not logged; onsets are
// logged at debug level.
type LoggingTransport struct {
	mu      sync.Mutex
	last    float64 // -1: no peak
	started bool
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	log.Debugf("Transport: Using LoggingTransport")
	return &LoggingTransport{last: -1}
}

// Send logs frame peaks; other values are logged at debug level.
func (lt *LoggingTransport) Send(data any) error {
	frame, ok := data.(analysis.Frame)
	if !ok {
		log.Debugf("LOG_TRANSPORT: Received (%T): %+v", data, data)
		return nil
	}

	if frame.Onset {
		log.Logger().Debug().Uint64("seq", frame.Seq).Float64("level", frame.Level).Msg("onset")
	}

	peak := -1.0
	if frame.Peak != nil {
		peak = frame.Peak.Frequency
	}

	lt.mu.Lock()
	changed := !lt.started || peak != lt.last
	lt.last, lt.started = peak, true
	lt.mu.Unlock()
	if !changed {
		return nil
	}

	ev := log.Logger().Info().Uint64("stream", frame.Stream).Uint64("seq", frame.Seq)
	if frame.Peak == nil {
		ev.Msg("no peak")
		return nil
	}
	ev.Float64("frequency", frame.Peak.Frequency).
		Float64("magnitude", frame.Peak.Magnitude).
		Msg("peak")
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	log.Debugf("LOG_TRANSPORT: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
