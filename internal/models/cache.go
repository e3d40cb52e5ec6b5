package models

import "time"

// Cache is a physical geocache. CacheID is the human-facing number printed
// on the cache; Code is the 5-digit cable-tie code a finder must enter to
// prove they located it.
type Cache struct {
	CacheID     string    `json:"id"`
	Code        string    `json:"-"` // never serialized to clients
	Location    string    `json:"location"` // three-word address
	Coordinates string    `json:"coordinates"`
	Found       int       `json:"stats"`
	Suspended   bool      `json:"suspended"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modified_at"`
}
