package session

import (
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/rickgao/ems-client/internal/model"
)

// Phase is the position of the manager in its state machine.
type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Authenticating
	Connected
	Closing
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is a snapshot of the session as seen by the client.
type State struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Username  string    `json:"username,omitempty"`
	Connected bool      `json:"connected"`
	Phase     Phase     `json:"phase"`
	Attempt   uuid.UUID `json:"attempt"`

	Config    model.Config    `json:"-"`
	Telemetry model.Telemetry `json:"telemetry"`
}

// Devices returns the sorted device ids of the current config.
func (s State) Devices() []string {
	return slices.Sorted(maps.Keys(s.Config.Devices))
}

// sessionState is the mutable state owned by the Manager.
type sessionState struct {
	username  string
	connected bool
	phase     Phase
	attempt   uuid.UUID
	config    model.Config
	telemetry model.Telemetry
}

func newSessionState() sessionState {
	var s sessionState
	s.reset()
	return s
}

// reset wipes identity and both snapshots. Every path into Disconnected
// goes through here.
func (s *sessionState) reset() {
	s.username = ""
	s.connected = false
	s.phase = Disconnected
	s.attempt = uuid.Nil
	s.config = model.NewConfig()
	s.telemetry = model.Telemetry{}
}

// snapshot returns a deep copy for readers outside the manager.
func (s *sessionState) snapshot(name, url string) State {
	return State{
		Name:      name,
		URL:       url,
		Username:  s.username,
		Connected: s.connected,
		Phase:     s.phase,
		Attempt:   s.attempt,
		Config:    s.config.Clone(),
		Telemetry: s.telemetry.Clone(),
	}
}
