// Package models defines the data structures stored in the record store.
package models

import "time"

// IdentityRecord is an anonymous device identity. It is created when a
// pairing handshake completes and is never deleted by this service.
//
// TokenIDs is the allow-list: a bearer token is only accepted while its
// token id appears here. Removing an id revokes the token regardless of
// its signed expiry. BackupTokenIDs is the equivalent allow-list for
// QR/backup hand-off tokens.
type IdentityRecord struct {
	RecordID       string      `json:"record_id"`
	DisplayID      string      `json:"display_id"`
	TokenIDs       []string    `json:"token_ids"`
	BackupTokenIDs []string    `json:"backup_token_ids"`
	FoundCaches    []FoundItem `json:"found_caches"`
	Total          int         `json:"total"`
	CreatedAt      time.Time   `json:"created_at"`
	ModifiedAt     time.Time   `json:"modified_at"`
}

// FoundItem records a single cache find.
type FoundItem struct {
	CacheID string    `json:"id"`
	Date    time.Time `json:"date"`
}

// HasTokenID reports whether id is in the bearer-token allow-list.
func (r *IdentityRecord) HasTokenID(id string) bool {
	for _, t := range r.TokenIDs {
		if t == id {
			return true
		}
	}
	return false
}

// HasBackupTokenID reports whether id is in the backup-token allow-list.
func (r *IdentityRecord) HasBackupTokenID(id string) bool {
	for _, t := range r.BackupTokenIDs {
		if t == id {
			return true
		}
	}
	return false
}

// HasFound reports whether the identity has already recorded a find for cacheID.
func (r *IdentityRecord) HasFound(cacheID string) bool {
	for _, f := range r.FoundCaches {
		if f.CacheID == cacheID {
			return true
		}
	}
	return false
}

// LeaderboardEntry is one row of the ranked leaderboard.
type LeaderboardEntry struct {
	DisplayID string `json:"deviceId"`
	Score     int    `json:"score"`
	Position  int    `json:"position"`
}
