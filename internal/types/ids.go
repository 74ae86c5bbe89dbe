package types

import (
	"time"

	"github.com/google/uuid"
)

// FetchID identifies one recorded backend fetch (UUIDv7).
type FetchID string

// NewFetchID generates a UUIDv7 fetch identifier.
// Time-ordered IDs keep fetch log inserts clustered in B-tree pages.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewFetchID() FetchID {
	return FetchID(uuid.Must(uuid.NewV7()).String())
}

// ParseFetchID validates and converts a string to FetchID.
func ParseFetchID(s string) (FetchID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return FetchID(s), nil
}

// FetchIDTime extracts the timestamp embedded in a UUIDv7 ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func FetchIDTime(id FetchID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
