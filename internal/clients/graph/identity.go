package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/geoscout/geoscout/internal/interfaces"
	"github.com/geoscout/geoscout/internal/models"
)

const identityFieldSelect = "Title,Username,BackupTokenIDs,FoundCaches,Total"

// identityFields maps the identity SharePoint list columns. The token
// allow-lists and the find history are stored as JSON text because
// SharePoint has no native array column.
type identityFields struct {
	Title          string `json:"Title"`
	Username       string `json:"Username,omitempty"`
	BackupTokenIDs string `json:"BackupTokenIDs,omitempty"`
	FoundCaches    string `json:"FoundCaches,omitempty"`
	Total          int    `json:"Total"`
	Created        string `json:"Created,omitempty"`
	Modified       string `json:"Modified,omitempty"`
}

func (f *identityFields) toRecord(itemID string) (*models.IdentityRecord, error) {
	record := &models.IdentityRecord{
		RecordID:  itemID,
		DisplayID: f.Title,
		Total:     f.Total,
	}
	if f.Username != "" {
		if err := json.Unmarshal([]byte(f.Username), &record.TokenIDs); err != nil {
			return nil, fmt.Errorf("invalid token list for %s: %w", f.Title, err)
		}
	}
	if f.BackupTokenIDs != "" {
		if err := json.Unmarshal([]byte(f.BackupTokenIDs), &record.BackupTokenIDs); err != nil {
			return nil, fmt.Errorf("invalid backup token list for %s: %w", f.Title, err)
		}
	}
	if f.FoundCaches != "" {
		if err := json.Unmarshal([]byte(f.FoundCaches), &record.FoundCaches); err != nil {
			return nil, fmt.Errorf("invalid find history for %s: %w", f.Title, err)
		}
	}
	if f.Created != "" {
		record.CreatedAt, _ = time.Parse(time.RFC3339, f.Created)
	}
	if f.Modified != "" {
		record.ModifiedAt, _ = time.Parse(time.RFC3339, f.Modified)
	}
	return record, nil
}

func encodeIdentityFields(record *models.IdentityRecord) (*identityFields, error) {
	tokens, err := json.Marshal(record.TokenIDs)
	if err != nil {
		return nil, err
	}
	backups, err := json.Marshal(record.BackupTokenIDs)
	if err != nil {
		return nil, err
	}
	finds, err := json.Marshal(record.FoundCaches)
	if err != nil {
		return nil, err
	}
	return &identityFields{
		Title:          record.DisplayID,
		Username:       string(tokens),
		BackupTokenIDs: string(backups),
		FoundCaches:    string(finds),
		Total:          len(record.FoundCaches),
	}, nil
}

// IdentityStore adapts the Graph client to the identity record-store contract.
type IdentityStore struct {
	client *Client
}

// NewIdentityStore returns the identity list view of the client.
func NewIdentityStore(client *Client) *IdentityStore {
	return &IdentityStore{client: client}
}

// Create inserts a new list item and assigns the Graph item id as RecordID.
func (s *IdentityStore) Create(ctx context.Context, record *models.IdentityRecord) (*models.IdentityRecord, error) {
	fields, err := encodeIdentityFields(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode identity: %w", err)
	}

	var created listItem
	path := s.client.itemsPath(s.client.identityListID)
	if err := s.client.do(ctx, http.MethodPost, path, map[string]interface{}{"fields": fields}, &created); err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	now := time.Now().UTC()
	record.RecordID = created.ID
	record.CreatedAt = now
	record.ModifiedAt = now

	s.client.logger.Info().
		Str("record_id", record.RecordID).
		Str("display_id", record.DisplayID).
		Msg("Identity created")
	return record, nil
}

// GetByID fetches a record by its Graph item id.
func (s *IdentityStore) GetByID(ctx context.Context, recordID string) (*models.IdentityRecord, error) {
	query := url.Values{}
	query.Set("expand", "fields(select="+identityFieldSelect+")")

	var item listItem
	path := fmt.Sprintf("%s/%s?%s", s.client.itemsPath(s.client.identityListID), url.PathEscape(recordID), query.Encode())
	if err := s.client.do(ctx, http.MethodGet, path, nil, &item); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("identity %s: %w", recordID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return decodeIdentityItem(&item)
}

// GetByDisplayID fetches a record by its display id (the Title column).
func (s *IdentityStore) GetByDisplayID(ctx context.Context, displayID string) (*models.IdentityRecord, error) {
	item, err := s.client.getItemByTitle(ctx, s.client.identityListID, identityFieldSelect, displayID)
	if err != nil {
		return nil, fmt.Errorf("failed to query identity: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("identity %s: %w", displayID, interfaces.ErrNotFound)
	}
	return decodeIdentityItem(item)
}

// AppendTokenID adds a token id to the bearer allow-list.
func (s *IdentityStore) AppendTokenID(ctx context.Context, recordID, tokenID string) error {
	return s.patch(ctx, recordID, func(record *models.IdentityRecord) {
		record.TokenIDs = append(record.TokenIDs, tokenID)
	})
}

// AppendBackupTokenID adds a token id to the backup allow-list.
func (s *IdentityStore) AppendBackupTokenID(ctx context.Context, recordID, tokenID string) error {
	return s.patch(ctx, recordID, func(record *models.IdentityRecord) {
		record.BackupTokenIDs = append(record.BackupTokenIDs, tokenID)
	})
}

// RecordFound appends one find to the history and keeps Total consistent.
func (s *IdentityStore) RecordFound(ctx context.Context, recordID string, item models.FoundItem) error {
	return s.patch(ctx, recordID, func(record *models.IdentityRecord) {
		record.FoundCaches = append(record.FoundCaches, item)
	})
}

// List returns every identity record. Used by the leaderboard.
func (s *IdentityStore) List(ctx context.Context) ([]*models.IdentityRecord, error) {
	query := url.Values{}
	query.Set("expand", "fields(select="+identityFieldSelect+")")
	query.Set("$select", "id,fields")

	var page listItemPage
	path := s.client.itemsPath(s.client.identityListID) + "?" + query.Encode()
	if err := s.client.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}

	records := make([]*models.IdentityRecord, 0, len(page.Value))
	for i := range page.Value {
		record, err := decodeIdentityItem(&page.Value[i])
		if err != nil {
			s.client.logger.Warn().Err(err).Str("item_id", page.Value[i].ID).Msg("Skipping malformed identity item")
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Close is a no-op; the underlying HTTP client holds no resources.
func (s *IdentityStore) Close() error {
	return nil
}

// patch is read-modify-write against the list item's fields. Graph has no
// conditional update for list items, so concurrent patches are last-write-wins
// the same as the local store's mutex serialization within one process.
func (s *IdentityStore) patch(ctx context.Context, recordID string, mutate func(*models.IdentityRecord)) error {
	record, err := s.GetByID(ctx, recordID)
	if err != nil {
		return err
	}

	mutate(record)
	fields, err := encodeIdentityFields(record)
	if err != nil {
		return fmt.Errorf("failed to encode identity: %w", err)
	}

	path := fmt.Sprintf("%s/%s/fields", s.client.itemsPath(s.client.identityListID), url.PathEscape(recordID))
	if err := s.client.do(ctx, http.MethodPatch, path, fields, nil); err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}
	return nil
}

func decodeIdentityItem(item *listItem) (*models.IdentityRecord, error) {
	var fields identityFields
	if err := json.Unmarshal(item.Fields, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode identity fields: %w", err)
	}
	return fields.toRecord(item.ID)
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
