package types

import "time"

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	// Height is the sequence number of the transaction that emitted the event.
	Height uint64    `json:"height,omitempty"`
	Time   time.Time `json:"time,omitempty"`
}

// Attr returns the named attribute or the empty string.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
