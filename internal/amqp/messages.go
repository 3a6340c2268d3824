package amqp

import (
	"encoding/json"
	"time"
)

const (
	EventRolloverCompleted = "rollover.completed"
	EventResetCompleted    = "reset.completed"
)

// LedgerEvent is published after a heavy ledger operation finishes.
// Consumers refetch period data through the API; the event only carries
// identifiers and counters.
type LedgerEvent struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Label     string    `json:"label,omitempty"`
	NewSeed   string    `json:"new_seed,omitempty"`
	Archived  int       `json:"archived"`
	Created   int       `json:"created"`
	Rebuilt   int       `json:"rebuilt"`
	Chained   int       `json:"chained"`
	Deleted   int       `json:"deleted,omitempty"`
	FullWipe  bool      `json:"full_wipe,omitempty"`
	Backup    string    `json:"backup,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(eventType string) *LedgerEvent {
	return &LedgerEvent{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event published by Client.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
