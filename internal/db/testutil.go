package db

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
)

var testStoreSeq atomic.Int64

// NewTestStore opens a private in-memory SQLite database that lives as long as the
// test. Every connection of the returned store sees the same data.
func NewTestStore(t testing.TB) *Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, testStoreSeq.Add(1))

	store, err := Connect(context.Background(), Options{Driver: "sqlite3", ConnectionString: dsn})
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	// keep one connection open so the shared in-memory database survives idle pool churn
	keeper, err := store.DB().Conn(context.Background())
	if err != nil {
		t.Fatalf("failed to pin test store: %v", err)
	}

	t.Cleanup(func() {
		keeper.Close()
		store.Close()
	})
	return store
}

// MustExec runs setup statements against the store.
func MustExec(t testing.TB, store *Store, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		if _, err := store.DB().Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}
