package domain

// Status is the runtime state of one managed session. It is never persisted.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusOnline       Status = "online"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
	StatusKicked       Status = "kicked"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{
	StatusConnecting,
	StatusOnline,
	StatusDisconnected,
	StatusError,
	StatusKicked,
}

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}
