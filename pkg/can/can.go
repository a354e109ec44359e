// Package can provides the CAN-bus seam that startup's "init CAN (optional)"
// step needs to be real code. A full CAN driver is out of scope (spec §1
// non-goals); this package gives the step somewhere to call.
package can

import "errors"

// ErrNotAvailable is returned by NullBus.Open: no CAN hardware is wired up.
var ErrNotAvailable = errors.New("can: bus not available")

// Bus is the contract startup's CAN step depends on.
type Bus interface {
	Open(channel int, baudrate int) error
	Close() error
}

// NullBus always reports that CAN hardware is unavailable. Its failure is
// logged as a warning by the caller, never fatal (§4.H).
type NullBus struct{}

func (NullBus) Open(channel int, baudrate int) error { return ErrNotAvailable }
func (NullBus) Close() error                         { return nil }
