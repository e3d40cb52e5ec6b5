package cachedb

import (
	"context"
	"errors"
	"testing"

	"github.com/geoscout/geoscout/internal/common"
	"github.com/geoscout/geoscout/internal/interfaces"
	"github.com/geoscout/geoscout/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(common.NewSilentLogger(), t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cache := &models.Cache{
		CacheID:     "12",
		Code:        "48213",
		Location:    "filled.count.soap",
		Coordinates: "51.5007,-0.1246",
	}
	if err := store.Save(ctx, cache); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get(ctx, "12")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Code != "48213" {
		t.Errorf("Code = %q, want 48213", got.Code)
	}
	if got.Location != "filled.count.soap" {
		t.Errorf("Location = %q, want filled.count.soap", got.Location)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "99")
	if !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSavePreservesCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cache := &models.Cache{CacheID: "7", Code: "11111"}
	if err := store.Save(ctx, cache); err != nil {
		t.Fatalf("Save: %v", err)
	}
	first, err := store.Get(ctx, "7")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	first.Suspended = true
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save update: %v", err)
	}

	got, err := store.Get(ctx, "7")
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if !got.Suspended {
		t.Error("expected Suspended to be updated")
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v != %v", got.CreatedAt, first.CreatedAt)
	}
}

func TestIncrementFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, &models.Cache{CacheID: "3", Code: "70219"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := store.IncrementFound(ctx, "3"); err != nil {
			t.Fatalf("IncrementFound: %v", err)
		}
	}

	got, err := store.Get(ctx, "3")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Found != 3 {
		t.Errorf("Found = %d, want 3", got.Found)
	}

	if err := store.IncrementFound(ctx, "99"); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown cache, got %v", err)
	}
}

func TestListReturnsAllCaches(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		if err := store.Save(ctx, &models.Cache{CacheID: id, Code: "12345"}); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}

	caches, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(caches) != 3 {
		t.Errorf("len(caches) = %d, want 3", len(caches))
	}
}
