package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/ems-client/internal/notify"
)

// EventType distinguishes events on the manager's event stream.
type EventType int

const (
	// EventStatus carries the status notification of an attempt.
	EventStatus EventType = iota + 1

	// EventConfigChanged signals a new configuration snapshot. It has no
	// notification.
	EventConfigChanged
)

func (t EventType) String() string {
	switch t {
	case EventStatus:
		return "status"
	case EventConfigChanged:
		return "config_changed"
	default:
		return "unknown"
	}
}

// Event is pushed on Manager.Events.
type Event struct {
	Type         EventType
	Notification notify.Notification
	Attempt      uuid.UUID
	At           time.Time
}

// Status messages.
const (
	MsgLoggedIn   = "Logged in as %s."
	MsgAuthFailed = "No connection: authentication failed."
	MsgConnError  = "Connection error."
	MsgConnEnded  = "Connection ended."
	MsgTimeout    = "No connection: timeout"
)
