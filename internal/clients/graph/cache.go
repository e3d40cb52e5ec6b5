package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/geoscout/geoscout/internal/interfaces"
	"github.com/geoscout/geoscout/internal/models"
)

const cacheFieldSelect = "Title,CableTieCode,Coordinates,W3WLocation,Found,Suspended"

// cacheFields maps the cache SharePoint list columns.
type cacheFields struct {
	Title        string `json:"Title"`
	CableTieCode string `json:"CableTieCode,omitempty"`
	Coordinates  string `json:"Coordinates,omitempty"`
	W3WLocation  string `json:"W3WLocation,omitempty"`
	Found        int    `json:"Found"`
	Suspended    bool   `json:"Suspended"`
	Created      string `json:"Created,omitempty"`
	Modified     string `json:"Modified,omitempty"`
}

func (f *cacheFields) toCache() *models.Cache {
	cache := &models.Cache{
		CacheID:     f.Title,
		Code:        f.CableTieCode,
		Location:    f.W3WLocation,
		Coordinates: f.Coordinates,
		Found:       f.Found,
		Suspended:   f.Suspended,
	}
	if f.Created != "" {
		cache.CreatedAt, _ = time.Parse(time.RFC3339, f.Created)
	}
	if f.Modified != "" {
		cache.ModifiedAt, _ = time.Parse(time.RFC3339, f.Modified)
	}
	return cache
}

func encodeCacheFields(cache *models.Cache) *cacheFields {
	return &cacheFields{
		Title:        cache.CacheID,
		CableTieCode: cache.Code,
		Coordinates:  cache.Coordinates,
		W3WLocation:  cache.Location,
		Found:        cache.Found,
		Suspended:    cache.Suspended,
	}
}

// CacheStore adapts the Graph client to the cache record-store contract.
// Caches are keyed by their Title column, so mutations resolve the Graph
// item id with a filter query first.
type CacheStore struct {
	client *Client
}

// NewCacheStore returns the cache list view of the client.
func NewCacheStore(client *Client) *CacheStore {
	return &CacheStore{client: client}
}

// Get fetches a cache by its cache id.
func (s *CacheStore) Get(ctx context.Context, cacheID string) (*models.Cache, error) {
	item, err := s.client.getItemByTitle(ctx, s.client.cacheListID, cacheFieldSelect, cacheID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("cache %s: %w", cacheID, interfaces.ErrNotFound)
	}
	return decodeCacheItem(item)
}

// List returns every cache, suspended ones included. Callers filter.
func (s *CacheStore) List(ctx context.Context) ([]*models.Cache, error) {
	query := url.Values{}
	query.Set("expand", "fields(select="+cacheFieldSelect+")")
	query.Set("$select", "id,fields")

	var page listItemPage
	path := s.client.itemsPath(s.client.cacheListID) + "?" + query.Encode()
	if err := s.client.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}

	caches := make([]*models.Cache, 0, len(page.Value))
	for i := range page.Value {
		cache, err := decodeCacheItem(&page.Value[i])
		if err != nil {
			s.client.logger.Warn().Err(err).Str("item_id", page.Value[i].ID).Msg("Skipping malformed cache item")
			continue
		}
		caches = append(caches, cache)
	}
	return caches, nil
}

// Save creates or replaces the cache item with the matching Title.
func (s *CacheStore) Save(ctx context.Context, cache *models.Cache) error {
	item, err := s.client.getItemByTitle(ctx, s.client.cacheListID, cacheFieldSelect, cache.CacheID)
	if err != nil {
		return fmt.Errorf("failed to query cache: %w", err)
	}

	fields := encodeCacheFields(cache)
	if item == nil {
		path := s.client.itemsPath(s.client.cacheListID)
		if err := s.client.do(ctx, http.MethodPost, path, map[string]interface{}{"fields": fields}, nil); err != nil {
			return fmt.Errorf("failed to create cache: %w", err)
		}
		return nil
	}

	path := fmt.Sprintf("%s/%s/fields", s.client.itemsPath(s.client.cacheListID), url.PathEscape(item.ID))
	if err := s.client.do(ctx, http.MethodPatch, path, fields, nil); err != nil {
		return fmt.Errorf("failed to update cache: %w", err)
	}
	return nil
}

// IncrementFound bumps the cache's find counter by one.
func (s *CacheStore) IncrementFound(ctx context.Context, cacheID string) error {
	item, err := s.client.getItemByTitle(ctx, s.client.cacheListID, cacheFieldSelect, cacheID)
	if err != nil {
		return fmt.Errorf("failed to query cache: %w", err)
	}
	if item == nil {
		return fmt.Errorf("cache %s: %w", cacheID, interfaces.ErrNotFound)
	}

	cache, err := decodeCacheItem(item)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("%s/%s/fields", s.client.itemsPath(s.client.cacheListID), url.PathEscape(item.ID))
	update := map[string]interface{}{"Found": cache.Found + 1}
	if err := s.client.do(ctx, http.MethodPatch, path, update, nil); err != nil {
		return fmt.Errorf("failed to update cache: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *CacheStore) Close() error {
	return nil
}

func decodeCacheItem(item *listItem) (*models.Cache, error) {
	var fields cacheFields
	if err := json.Unmarshal(item.Fields, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode cache fields: %w", err)
	}
	return fields.toCache(), nil
}
