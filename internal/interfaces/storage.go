// Package interfaces defines service and storage contracts for GeoScout
package interfaces

import (
	"context"
	"errors"

	"github.com/geoscout/geoscout/internal/models"
)

// ErrNotFound is returned by stores when a record does not exist.
// Implementations wrap it so callers can test with errors.Is.
var ErrNotFound = errors.New("record not found")

// StorageManager coordinates the record-store backends.
type StorageManager interface {
	IdentityStore() IdentityStore
	CacheStore() CacheStore
	Close() error
}

// IdentityStore manages identity records.
//
// Create assigns RecordID and returns the stored record. The Append* methods
// are the allow-list patch operations: they load, append, and persist in one
// call so the service layer never writes whole records back.
type IdentityStore interface {
	Create(ctx context.Context, record *models.IdentityRecord) (*models.IdentityRecord, error)
	GetByID(ctx context.Context, recordID string) (*models.IdentityRecord, error)
	GetByDisplayID(ctx context.Context, displayID string) (*models.IdentityRecord, error)
	AppendTokenID(ctx context.Context, recordID, tokenID string) error
	AppendBackupTokenID(ctx context.Context, recordID, tokenID string) error
	RecordFound(ctx context.Context, recordID string, item models.FoundItem) error
	List(ctx context.Context) ([]*models.IdentityRecord, error)
	Close() error
}

// CacheStore manages geocache records.
type CacheStore interface {
	Get(ctx context.Context, cacheID string) (*models.Cache, error)
	List(ctx context.Context) ([]*models.Cache, error)
	Save(ctx context.Context, cache *models.Cache) error
	IncrementFound(ctx context.Context, cacheID string) error
	Close() error
}
