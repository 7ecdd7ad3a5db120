package undo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rewind/internal/store"
)

// createTestStore creates a store over a fresh database in a temp dir.
func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// setupSession creates an activated session tracking tbl1(a).
func setupSession(t *testing.T, opts ...Option) (*store.Store, *Session) {
	t.Helper()
	st := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.Exec(ctx, "CREATE TABLE tbl1(a)"))

	s := New(st, opts...)
	require.NoError(t, s.Activate(ctx, "tbl1"))
	return st, s
}

// tableValues reads column a of tbl1 in rowid order.
func tableValues(t *testing.T, st *store.Store) []string {
	t.Helper()
	got, err := st.QueryStrings(context.Background(), "SELECT a FROM tbl1 ORDER BY rowid")
	require.NoError(t, err)
	return got
}
