// Package testutil provides shared fixtures for categorization tests.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/storage"
)

// BasicCategories is a small taxonomy most tests seed.
var BasicCategories = []model.CategoryRef{
	{Category: "Food", Subcategory: "Groceries"},
	{Category: "Food", Subcategory: "Restaurants"},
	{Category: "Transport", Subcategory: "Rideshare"},
	{Category: "Shopping", Subcategory: "Online"},
	{Category: "Entertainment", Subcategory: "Streaming"},
}

// TestDB is a migrated in-memory SQLite database.
type TestDB struct {
	Storage    *storage.SQLiteStorage
	Categories map[model.CategoryRef]model.Category
	t          *testing.T
}

// SetupTestDB creates an in-memory database seeded with the given categories.
// Cleanup is registered on t.
func SetupTestDB(t *testing.T, refs ...model.CategoryRef) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	db := &TestDB{
		Storage:    store,
		Categories: make(map[model.CategoryRef]model.Category, len(refs)),
		t:          t,
	}
	for _, ref := range refs {
		cat, err := store.CreateCategory(ctx, ref, false, true)
		if err != nil {
			t.Fatalf("failed to seed category %s: %v", ref, err)
		}
		db.Categories[ref] = *cat
	}

	return db
}

// MustCategoryID returns the id of a seeded category or fails the test.
func (db *TestDB) MustCategoryID(ref model.CategoryRef) int64 {
	db.t.Helper()
	cat, ok := db.Categories[ref]
	if !ok {
		db.t.Fatalf("category %s was not seeded", ref)
	}
	return cat.ID
}
