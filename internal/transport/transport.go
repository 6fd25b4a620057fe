// SPDX-License-Identifier: MIT
package transport

import "errors"

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe, and Send must not block the caller
// for longer than a local write.
type Transport interface {
	Send(data any) error
	Close() error
}

// Multi fans every Send out to all transports. Errors are joined; one
// failing transport does not stop the others.
type Multi []Transport

func (m Multi) Send(data any) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Transport = Multi(nil)
