// Package storage provides the top-level StorageManager that selects and
// coordinates the record-store backend: local BadgerHold databases, or the
// Microsoft Graph SharePoint lists in production.
package storage

import (
	"fmt"

	"github.com/geoscout/geoscout/internal/clients/graph"
	"github.com/geoscout/geoscout/internal/common"
	"github.com/geoscout/geoscout/internal/interfaces"
	"github.com/geoscout/geoscout/internal/storage/cachedb"
	"github.com/geoscout/geoscout/internal/storage/identitydb"
)

// Manager implements interfaces.StorageManager for both backends.
type Manager struct {
	identity interfaces.IdentityStore
	cache    interfaces.CacheStore
	logger   *common.Logger
}

// NewManager creates a StorageManager for the configured backend.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	switch config.Storage.Backend {
	case "", "local":
		return newLocalManager(logger, config)
	case "graph":
		return newGraphManager(logger, config)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", config.Storage.Backend)
	}
}

func newLocalManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	identityStore, err := identitydb.NewStore(logger, config.Storage.Identity.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity store: %w", err)
	}

	cacheStore, err := cachedb.NewStore(logger, config.Storage.Cache.Path)
	if err != nil {
		identityStore.Close()
		return nil, fmt.Errorf("failed to create cache store: %w", err)
	}

	logger.Info().
		Str("backend", "local").
		Str("identity", config.Storage.Identity.Path).
		Str("cache", config.Storage.Cache.Path).
		Msg("Storage manager initialized")

	return &Manager{
		identity: identityStore,
		cache:    cacheStore,
		logger:   logger,
	}, nil
}

func newGraphManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	if config.Graph.TenantID == "" || config.Graph.ClientID == "" || config.Graph.ClientSecret == "" {
		return nil, fmt.Errorf("graph backend requires tenant_id, client_id and client_secret")
	}
	if config.Graph.SiteID == "" || config.Graph.IdentityListID == "" || config.Graph.CacheListID == "" {
		return nil, fmt.Errorf("graph backend requires site_id, identity_list_id and cache_list_id")
	}

	client := graph.NewClient(&config.Graph, graph.WithLogger(logger))

	logger.Info().
		Str("backend", "graph").
		Str("site_id", config.Graph.SiteID).
		Msg("Storage manager initialized")

	return &Manager{
		identity: graph.NewIdentityStore(client),
		cache:    graph.NewCacheStore(client),
		logger:   logger,
	}, nil
}

// IdentityStore returns the identity record store.
func (m *Manager) IdentityStore() interfaces.IdentityStore {
	return m.identity
}

// CacheStore returns the cache record store.
func (m *Manager) CacheStore() interfaces.CacheStore {
	return m.cache
}

// Close closes both stores, returning the first error encountered.
func (m *Manager) Close() error {
	var firstErr error
	if err := m.identity.Close(); err != nil {
		firstErr = err
	}
	if err := m.cache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
