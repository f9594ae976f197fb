package models

import (
	"encoding/json"
	"time"
)

// Announcement is the broker envelope published by the relay and consumed by
// workers. The payload travels as raw bytes so a relay-side encoding problem
// degrades to the default notification instead of dropping the event.
type Announcement struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
