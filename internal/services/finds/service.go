// Package finds records cache finds against identities and builds the
// leaderboard.
package finds

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/geoscout/geoscout/internal/auth"
	"github.com/geoscout/geoscout/internal/common"
	"github.com/geoscout/geoscout/internal/interfaces"
	"github.com/geoscout/geoscout/internal/models"
)

// ErrInvalidCode is returned when the supplied cable-tie code does not match
// the cache, or the cache is unknown or suspended. The three cases are
// deliberately indistinguishable to the caller.
var ErrInvalidCode = errors.New("invalid cache code")

// ErrAlreadyFound is returned when the identity has already logged the cache.
var ErrAlreadyFound = errors.New("cache already found")

var codePattern = regexp.MustCompile(`^[0-9]{5}$`)

// Service validates and records finds over the two record stores.
type Service struct {
	identities interfaces.IdentityStore
	caches     interfaces.CacheStore
	logger     *common.Logger
}

// NewService creates a finds service.
func NewService(logger *common.Logger, identities interfaces.IdentityStore, caches interfaces.CacheStore) *Service {
	return &Service{
		identities: identities,
		caches:     caches,
		logger:     logger,
	}
}

// RecordFound logs a find for the identity after checking the 5-digit
// cable-tie code. Appends to the identity's history (Total follows the
// history length) and bumps the cache's find counter.
func (s *Service) RecordFound(ctx context.Context, recordID, cacheID, code string) error {
	if cacheID == "" || !codePattern.MatchString(code) {
		return ErrInvalidCode
	}

	cache, err := s.caches.Get(ctx, cacheID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return ErrInvalidCode
		}
		return fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}
	if cache.Suspended || cache.Code != code {
		return ErrInvalidCode
	}

	record, err := s.identities.GetByID(ctx, recordID)
	if err != nil {
		return fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}
	if record.HasFound(cacheID) {
		return ErrAlreadyFound
	}

	item := models.FoundItem{CacheID: cacheID, Date: time.Now().UTC()}
	if err := s.identities.RecordFound(ctx, recordID, item); err != nil {
		return fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}
	if err := s.caches.IncrementFound(ctx, cacheID); err != nil {
		// the find is already on the identity; the cache counter is
		// advisory, so log and carry on
		s.logger.Warn().Err(err).Str("cache_id", cacheID).Msg("Failed to bump cache counter")
	}

	s.logger.Info().
		Str("record_id", recordID).
		Str("cache_id", cacheID).
		Msg("Find recorded")
	return nil
}

// FoundList returns the identity's find history.
func (s *Service) FoundList(ctx context.Context, recordID string) ([]models.FoundItem, error) {
	record, err := s.identities.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, auth.ErrInvalidUserID
		}
		return nil, fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}
	if record.FoundCaches == nil {
		return []models.FoundItem{}, nil
	}
	return record.FoundCaches, nil
}

// ListCaches returns all caches that are not suspended.
func (s *Service) ListCaches(ctx context.Context) ([]*models.Cache, error) {
	caches, err := s.caches.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}

	active := make([]*models.Cache, 0, len(caches))
	for _, c := range caches {
		if !c.Suspended {
			active = append(active, c)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CacheID < active[j].CacheID })
	return active, nil
}

// GetCache returns one cache by id. Suspended caches are hidden.
func (s *Service) GetCache(ctx context.Context, cacheID string) (*models.Cache, error) {
	cache, err := s.caches.Get(ctx, cacheID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}
	if cache.Suspended {
		return nil, interfaces.ErrNotFound
	}
	return cache, nil
}

// AddCache creates the next cache on the trail at the given three-word
// location. Ids are sequential zero-padded numbers; the returned code is
// the freshly generated 5-digit cable-tie code, handed back exactly once
// so the admin can print it before fitting the cache.
func (s *Service) AddCache(ctx context.Context, location, coordinates string) (*models.Cache, string, error) {
	caches, err := s.caches.List(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}

	highest := 0
	for _, c := range caches {
		if n, err := strconv.Atoi(c.CacheID); err == nil && n > highest {
			highest = n
		}
	}

	code := newCacheCode()
	cache := &models.Cache{
		CacheID:     fmt.Sprintf("%03d", highest+1),
		Code:        code,
		Location:    location,
		Coordinates: coordinates,
	}
	if err := s.caches.Save(ctx, cache); err != nil {
		return nil, "", fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}

	s.logger.Info().
		Str("cache_id", cache.CacheID).
		Str("location", location).
		Msg("Cache added")
	return cache, code, nil
}

// newCacheCode generates a random 5-digit cable-tie code.
func newCacheCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(100000))
	if err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return fmt.Sprintf("%05d", n.Int64())
}

// Leaderboard ranks identities by find count, descending. Ties share a
// position and the following position skips the tied entries (competition
// ranking); display id breaks ties for a stable order.
func (s *Service) Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	records, err := s.identities.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
	}

	entries := make([]models.LeaderboardEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, models.LeaderboardEntry{
			DisplayID: r.DisplayID,
			Score:     len(r.FoundCaches),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].DisplayID < entries[j].DisplayID
	})

	for i := range entries {
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Position = entries[i-1].Position
		} else {
			entries[i].Position = i + 1
		}
	}
	return entries, nil
}
