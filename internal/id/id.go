package id

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUID string. UUIDv7 keeps primary key
// inserts roughly sequential, which matters for the append-heavy events table.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
