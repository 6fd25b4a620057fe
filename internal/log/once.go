// SPDX-License-Identifier: MIT
package log

import "sync"

// Once reports a repeating error a single time. The same error is logged
// again only after a Reset or after a different error was seen.
type Once struct {
	mu     sync.Mutex
	level  LogLevel
	prefix string
	last   string
}

// NewOnce returns a reporter that logs at level with prefix.
func NewOnce(level LogLevel, prefix string) *Once {
	return &Once{level: level, prefix: prefix}
}

// Report logs err unless it matches the last reported error. It returns
// whether anything was logged.
func (o *Once) Report(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()

	o.mu.Lock()
	if msg == o.last {
		o.mu.Unlock()
		return false
	}
	o.last = msg
	o.mu.Unlock()

	switch o.level {
	case LevelDebug:
		Debugf("%s: %s", o.prefix, msg)
	case LevelInfo:
		Infof("%s: %s", o.prefix, msg)
	case LevelError:
		Errorf("%s: %s", o.prefix, msg)
	default:
		Warnf("%s: %s", o.prefix, msg)
	}
	return true
}

// Reset forgets the last error, typically after a success.
func (o *Once) Reset() {
	o.mu.Lock()
	o.last = ""
	o.mu.Unlock()
}
