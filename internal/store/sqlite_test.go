package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesto-app/tenk/internal/model"
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

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_Companies(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CompanyID(ctx, "AAPL")
	assert.ErrorIs(t, err, ErrCompanyNotFound)

	id, err := st.UpsertCompany(ctx, "AAPL", "Apple Inc.")
	require.NoError(t, err)
	assert.Positive(t, id)

	again, err := st.UpsertCompany(ctx, "AAPL", "")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	got, err := st.CompanyID(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestSQLite_SaveAndRead(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	companyID, err := st.UpsertCompany(ctx, "AAPL", "Apple Inc.")
	require.NoError(t, err)

	require.NoError(t, st.SaveRecord(ctx, testRecord("AAPL", "0000320193-24-000123", 7)))

	latest, err := st.LatestSections(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.NotNil(t, latest.CompanyID)
	assert.Equal(t, companyID, *latest.CompanyID)
	assert.Equal(t, string(model.StatusCompleted), latest.ExtractionStatus)
	assert.Equal(t, 7, latest.SectionsExtracted)
	assert.Equal(t, 7, latest.APICallsUsed)
	require.NotNil(t, latest.FiledDate)
	assert.Equal(t, "2025-10-31", *latest.FiledDate)
	require.NotNil(t, latest.FiscalYear)
	assert.Equal(t, 2025, *latest.FiscalYear)
	assert.Len(t, latest.Sections, 7)
	assert.True(t, testExtractedAt.Equal(latest.ExtractedAt))
}

func TestSQLite_UpsertLastWriteWins(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveRecord(ctx, testRecord("MSFT", "0000950170-25-100235", 7)))

	// A later partial run updates counts but keeps earlier section text.
	partial := testRecord("MSFT", "0000950170-25-100235", 3)
	require.NoError(t, st.SaveRecord(ctx, partial))

	all, err := st.AllSections(ctx, "MSFT")
	require.NoError(t, err)
	require.Len(t, all, 1)
	row := all[0]
	assert.Nil(t, row.CompanyID)
	assert.Equal(t, string(model.StatusPartial), row.ExtractionStatus)
	assert.Equal(t, 3, row.SectionsExtracted)
	assert.Len(t, row.Sections, 7)
}

func TestSQLite_AllSectionsOrdersByFiscalYear(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	older := testRecord("NVDA", "0001045810-24-000029", 7)
	older.FiledDate = "2024-02-21 00:00:00"
	require.NoError(t, st.SaveRecord(ctx, older))
	require.NoError(t, st.SaveRecord(ctx, testRecord("NVDA", "0001045810-25-000023", 5)))

	all, err := st.AllSections(ctx, "NVDA")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "0001045810-25-000023", all[0].AccessNumber)
	assert.Equal(t, "0001045810-24-000029", all[1].AccessNumber)

	latest, err := st.LatestSections(ctx, "NVDA")
	require.NoError(t, err)
	assert.Equal(t, "0001045810-25-000023", latest.AccessNumber)
}

func TestSQLite_LatestMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	row, err := st.LatestSections(context.Background(), "ZZZZ")
	require.NoError(t, err)
	assert.Nil(t, row)

	all, err := st.AllSections(context.Background(), "ZZZZ")
	require.NoError(t, err)
	assert.Empty(t, all)
}
