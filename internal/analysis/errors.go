// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
)

// ErrMalformedBlock matches any *MalformedBlockError.
var ErrMalformedBlock = errors.New("malformed block")

// MalformedBlockError reports a block that does not match the analyzer's
// configuration. It signals a wiring bug, never a transient condition.
type MalformedBlockError struct {
	Len        int
	Want       int
	SampleRate float64
	WantRate   float64
}

func (e *MalformedBlockError) Error() string {
	if e.Len != e.Want {
		return fmt.Sprintf("malformed block: %d samples, analyzer expects %d", e.Len, e.Want)
	}
	return fmt.Sprintf("malformed block: captured at %.0f Hz, analyzer expects %.0f Hz", e.SampleRate, e.WantRate)
}

func (e *MalformedBlockError) Is(target error) bool { return target == ErrMalformedBlock }
