package session

import (
	"errors"
	"time"

	"github.com/vietddude/botkeeper/internal/core/domain"
)

// State is an alias for domain.Status for internal use.
type State = domain.Status

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// error, kicked and disconnected are left only by replacing the handle.
var ValidTransitions = map[State][]State{
	domain.StatusConnecting: {
		domain.StatusOnline,
		domain.StatusError,
		domain.StatusKicked,
		domain.StatusDisconnected,
	},
	domain.StatusOnline: {
		domain.StatusDisconnected,
		domain.StatusKicked,
		domain.StatusError,
	},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to State, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case domain.StatusConnecting:
		return "Connecting - waiting for the server to confirm the session"
	case domain.StatusOnline:
		return "Online - spawned on the server"
	case domain.StatusDisconnected:
		return "Disconnected - connection ended"
	case domain.StatusError:
		return "Error - connect-level failure"
	case domain.StatusKicked:
		return "Kicked - removed by the server"
	default:
		return "Unknown state"
	}
}
