package domain

// Event is one lifecycle signal produced by an underlying game session.
type Event struct {
	Type EventType

	// Reason carries the end reason or the kick message.
	Reason string

	// Err is set for EventTypeError.
	Err error

	// Health and Food are set for EventTypeVitals.
	Health float64
	Food   int
}

type EventType string

const (
	EventTypeSpawn  EventType = "spawn"
	EventTypeEnd    EventType = "end"
	EventTypeError  EventType = "error"
	EventTypeKicked EventType = "kicked"
	EventTypeVitals EventType = "vitals"
)

// EndReasonSocketClosed is the end reason reported for an ordinary socket close.
const EndReasonSocketClosed = "socketClosed"
