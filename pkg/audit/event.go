// Package audit provides append-only logging of metadata mutations and
// JF plate link lifecycle transitions.
package audit

import (
	"fmt"
	"time"
)

// ValueChange records a single metadata value transition.
type ValueChange struct {
	MDID     int    `json:"md_id"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// Event represents an auditable mutation or link lifecycle transition.
type Event struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Principal  string        `json:"principal"` // sender ip:port, "nec", or the station name for JF plate link events
	Controller string        `json:"controller,omitempty"` // JF plate station name
	Operation  string        `json:"operation"`
	MDID       int           `json:"md_id,omitempty"`
	Changes    []ValueChange `json:"changes,omitempty"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Operation values recorded by the metadata manager and the JF plate link.
const (
	OpSetValue      = "setValue"
	OpAddRegListen  = "addRegListen"
	OpLinkConnect   = "link.connect"
	OpLinkDisconnect = "link.disconnect"
	OpLinkLogin     = "link.login"
	OpBind          = "bind"
	OpUnbind        = "unbind"
)

// Filter defines criteria for querying audit events.
type Filter struct {
	Principal   string
	Controller  string
	Operation   string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event.
func NewEvent(principal, operation string) *Event {
	return &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		Principal: principal,
		Operation: operation,
	}
}

// WithController sets the JF plate controller name.
func (e *Event) WithController(controller string) *Event {
	e.Controller = controller
	return e
}

// WithMDID sets the affected metadata id.
func (e *Event) WithMDID(id int) *Event {
	e.MDID = id
	return e
}

// WithChanges sets the value changes applied by this event.
func (e *Event) WithChanges(changes []ValueChange) *Event {
	e.Changes = changes
	return e
}

// WithSuccess marks the event as successful.
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed.
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

func generateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
