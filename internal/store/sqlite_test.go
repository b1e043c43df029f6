package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_OpenBadPath(t *testing.T) {
	_, err := NewSQLite(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite:")
}

func TestSQLite_SaveRunWithoutYears(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id, err := st.SaveRun(ctx, &RunRecord{Kind: RunKindMulti, Latitude: 1, Longitude: 2, Result: []byte(`{}`)})
	require.NoError(t, err)

	got, err := st.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got.Years)
	assert.Nil(t, got.RequestedYears)
}

func TestSQLite_SaveRunDuplicateYearRollsBack(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := &RunRecord{
		Kind:   RunKindMulti,
		Result: []byte(`{}`),
		Years:  []YearRow{{Year: 2010, OK: true}, {Year: 2010, OK: true}},
	}
	_, err := st.SaveRun(ctx, rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert year 2010")

	runs, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs, "failed save must not leave a partial run")
}

func TestSQLite_ClosedStore(t *testing.T) {
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = st.ListRuns(context.Background(), RunFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite: list runs")
}
