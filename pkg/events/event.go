package events

import "github.com/crystal-mush/kmud/pkg/gamedb"

// EventType classifies session lifecycle events.
type EventType int

const (
	EvConnect    EventType = iota // Channel opened
	EvDisconnect                  // Channel closed
	EvLogin                       // Session logged into an account
	EvPuppet                      // Session switched character
	EvAccount                     // Account created
	EvCharacter                   // Character created or deleted
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvConnect:
		return "connect"
	case EvDisconnect:
		return "disconnect"
	case EvLogin:
		return "login"
	case EvPuppet:
		return "puppet"
	case EvAccount:
		return "account"
	case EvCharacter:
		return "character"
	default:
		return "unknown"
	}
}

// Event is a structured event that flows through the bus.
type Event struct {
	Type    EventType
	Account int             // Recipient account id (0 = none)
	Session *gamedb.Session // Session that caused the event
	Text    string          // Pre-formatted text
	Data    map[string]any  // Structured details
}

// SessionName returns the display name of the event's session.
func (ev Event) SessionName() string {
	if ev.Session == nil {
		return ""
	}
	if ev.Session.Puppeting() {
		return ev.Session.Character.Name
	}
	if ev.Session.LoggedIn() {
		return ev.Session.Account.Login
	}
	return ""
}
