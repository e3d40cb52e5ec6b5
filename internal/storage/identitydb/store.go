// Package identitydb implements interfaces.IdentityStore using BadgerHold.
// It is the local record-store backend; production deployments can swap in
// the Graph-backed store without touching the service layer.
package identitydb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"

	"github.com/geoscout/geoscout/internal/common"
	"github.com/geoscout/geoscout/internal/interfaces"
	"github.com/geoscout/geoscout/internal/models"
)

// Store implements interfaces.IdentityStore using BadgerHold.
type Store struct {
	db     *badgerhold.Store
	logger *common.Logger

	// guards read-modify-write cycles in the Append*/RecordFound patches
	mu sync.Mutex
}

// NewStore creates a new IdentityStore backed by BadgerHold.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create identity db path %s: %w", path, err)
	}
	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil
	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open identity db at %s: %w", path, err)
	}
	logger.Info().Str("path", path).Msg("Identity store opened")
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Create(_ context.Context, record *models.IdentityRecord) (*models.IdentityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.RecordID == "" {
		record.RecordID = uuid.NewString()
	}
	now := time.Now()
	record.CreatedAt = now
	record.ModifiedAt = now
	if record.Total != len(record.FoundCaches) {
		record.Total = len(record.FoundCaches)
	}

	if err := s.db.Insert(record.RecordID, record); err != nil {
		return nil, fmt.Errorf("failed to create identity '%s': %w", record.DisplayID, err)
	}
	s.logger.Debug().Str("display_id", record.DisplayID).Str("record_id", record.RecordID).Msg("Identity created")
	return record, nil
}

func (s *Store) GetByID(_ context.Context, recordID string) (*models.IdentityRecord, error) {
	var record models.IdentityRecord
	if err := s.db.Get(recordID, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("identity '%s': %w", recordID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get identity '%s': %w", recordID, err)
	}
	return &record, nil
}

func (s *Store) GetByDisplayID(_ context.Context, displayID string) (*models.IdentityRecord, error) {
	var records []models.IdentityRecord
	if err := s.db.Find(&records, badgerhold.Where("DisplayID").Eq(displayID)); err != nil {
		return nil, fmt.Errorf("failed to find identity '%s': %w", displayID, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("identity '%s': %w", displayID, interfaces.ErrNotFound)
	}
	return &records[0], nil
}

func (s *Store) AppendTokenID(ctx context.Context, recordID, tokenID string) error {
	return s.patch(ctx, recordID, func(r *models.IdentityRecord) {
		r.TokenIDs = append(r.TokenIDs, tokenID)
	})
}

func (s *Store) AppendBackupTokenID(ctx context.Context, recordID, tokenID string) error {
	return s.patch(ctx, recordID, func(r *models.IdentityRecord) {
		r.BackupTokenIDs = append(r.BackupTokenIDs, tokenID)
	})
}

func (s *Store) RecordFound(ctx context.Context, recordID string, item models.FoundItem) error {
	return s.patch(ctx, recordID, func(r *models.IdentityRecord) {
		r.FoundCaches = append(r.FoundCaches, item)
		r.Total = len(r.FoundCaches)
	})
}

func (s *Store) List(_ context.Context) ([]*models.IdentityRecord, error) {
	var records []models.IdentityRecord
	if err := s.db.Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	out := make([]*models.IdentityRecord, len(records))
	for i := range records {
		out[i] = &records[i]
	}
	return out, nil
}

// patch applies fn to the record under the store mutex and persists it.
func (s *Store) patch(ctx context.Context, recordID string, fn func(*models.IdentityRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.GetByID(ctx, recordID)
	if err != nil {
		return err
	}
	fn(record)
	record.ModifiedAt = time.Now()

	if err := s.db.Upsert(record.RecordID, record); err != nil {
		return fmt.Errorf("failed to update identity '%s': %w", recordID, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
