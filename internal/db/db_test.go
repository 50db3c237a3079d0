package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// Test Plan for Store:
// - Sessions scan rows into column-keyed maps with native value types
// - Statement arguments are bound
// - Empty results are an empty, non-nil slice
// - Invalid statements return an error
// - Closing a session twice is harmless
// - Connect fails fast on an unknown driver

func TestSession_Query(t *testing.T) {
	t.Parallel()

	store := NewTestStore(t)
	MustExec(t, store,
		`CREATE TABLE Items (id INTEGER PRIMARY KEY, name TEXT, price REAL, payload BLOB)`,
		`INSERT INTO Items VALUES (1, 'bolt', 0.25, x'0102'), (2, 'nut', 0.1, NULL)`,
	)

	ctx := context.Background()
	session, err := store.Acquire(ctx)
	require.NoError(t, err)
	defer session.Close()

	rows, err := session.Query(ctx, cdc.Statement{SQL: "SELECT * FROM Items ORDER BY id"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, "bolt", rows[0]["name"])
	assert.Equal(t, 0.25, rows[0]["price"])
	assert.Equal(t, []byte{1, 2}, rows[0]["payload"])
	assert.Nil(t, rows[1]["payload"])

	rows, err = session.Query(ctx, cdc.Statement{SQL: "SELECT name FROM Items WHERE id > ?", Args: []any{int64(1)}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, cdc.Row{"name": "nut"}, rows[0])

	rows, err = session.Query(ctx, cdc.Statement{SQL: "SELECT * FROM Items WHERE id > 10"})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	_, err = session.Query(ctx, cdc.Statement{SQL: "SELECT * FROM Missing"})
	assert.Error(t, err)
}

func TestSession_CloseTwice(t *testing.T) {
	t.Parallel()

	store := NewTestStore(t)
	session, err := store.Acquire(context.Background())
	require.NoError(t, err)

	assert.NoError(t, session.Close())
	assert.NoError(t, session.Close())
}

func TestConnect_UnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Connect(context.Background(), Options{Driver: "nope", ConnectionString: "x"})
	assert.Error(t, err)
}

func TestStore_Driver(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sqlite3", NewTestStore(t).Driver())
}
