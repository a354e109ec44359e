// Package nerr defines the error taxonomy shared across the NENet core:
// sentinel errors for each failure category, and typed errors carrying
// context that unwrap to the relevant sentinel.
package nerr

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per failure category.
var (
	ErrConfig        = errors.New("configuration error")
	ErrStore         = errors.New("persistent store error")
	ErrBind          = errors.New("port bind error")
	ErrProtocol      = errors.New("protocol error")
	ErrLink          = errors.New("jf plate link error")
	ErrSecondInstance = errors.New("another instance is already running")
)

// ConfigError wraps a failure to load or validate the INI configuration.
type ConfigError struct {
	Path    string
	Section string
	Details string
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config error in %s", e.Path)
	if e.Section != "" {
		msg += fmt.Sprintf(" [%s]", e.Section)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// StoreError wraps a failed query or transaction against the relational store.
type StoreError struct {
	Op      string
	Table   string
	Details string
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("store error during %s on %s", e.Op, e.Table)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

func (e *StoreError) Unwrap() error { return ErrStore }

// BindError reports that the metadata manager could not bind one of its UDP
// ports (for example the port is already in use or permission is denied).
type BindError struct {
	PlateID int
	Reason  string
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind error for plate %d: %s", e.PlateID, e.Reason)
}

func (e *BindError) Unwrap() error { return ErrBind }

// ProtocolError wraps a failure to parse or validate a JSON message envelope.
type ProtocolError struct {
	Raw     string
	Details string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s (raw=%q)", e.Details, e.Raw)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocol }

// LinkError wraps a transport failure: on a JF plate TCP link (dial, login,
// or frame I/O) or in the UDP multiplexer (bind or send).
type LinkError struct {
	Controller string
	Op         string
	Details    string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link error on %s during %s: %s", e.Controller, e.Op, e.Details)
}

func (e *LinkError) Unwrap() error { return ErrLink }

// SecondInstanceError reports that the process guard's lock was already held.
type SecondInstanceError struct {
	LockPath string
}

func (e *SecondInstanceError) Error() string {
	return fmt.Sprintf("second instance detected: lock %s already held", e.LockPath)
}

func (e *SecondInstanceError) Unwrap() error { return ErrSecondInstance }
