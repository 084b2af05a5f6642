package types

import "time"

// Message is the record the bundled tools push through a spill directory.
type Message struct {
	ID        string    `json:"id"`
	Payload   string    `json:"payload"`
	Key       string    `json:"key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (m Message) String() string {
	return m.Payload
}
