package domain

import "time"

// Record is a chat message as kept in the server's message log.
type Record struct {
	Room      string    `json:"room"`
	User      string    `json:"user"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
