package db

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sectionsTable = UpsertConfig{
	Table:        "public.company_10k_sections",
	Columns:      []string{"symbol", "access_number", "business_description"},
	ConflictKeys: []string{"symbol", "access_number"},
}

func TestUpsertSQL(t *testing.T) {
	got, err := UpsertSQL(sectionsTable)
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "public"."company_10k_sections" ("symbol", "access_number", "business_description") VALUES ($1, $2, $3) `+
			`ON CONFLICT ("symbol", "access_number") DO UPDATE SET "business_description" = EXCLUDED."business_description"`,
		got)
}

func TestUpsertSQL_ExplicitUpdateCols(t *testing.T) {
	cfg := sectionsTable
	cfg.UpdateCols = []string{}
	got, err := UpsertSQL(cfg)
	require.NoError(t, err)
	assert.Contains(t, got, "DO NOTHING")
}

func TestUpsertSQL_NoColumns(t *testing.T) {
	_, err := UpsertSQL(UpsertConfig{Table: "t", ConflictKeys: []string{"id"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestUpsertSQL_NoConflictKeys(t *testing.T) {
	_, err := UpsertSQL(UpsertConfig{Table: "t", Columns: []string{"id"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestUpsert_Exec(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO "public"."company_10k_sections" .* ON CONFLICT`).
		WithArgs("AAPL", "0000320193-25-000079", "Apple designs...").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	n, err := Upsert(context.Background(), mock, sectionsTable, []any{"AAPL", "0000320193-25-000079", "Apple designs..."})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_ExecError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("relation does not exist"))

	_, err = Upsert(context.Background(), mock, sectionsTable, []any{"AAPL", "x", "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "company_10k_sections")
	assert.Contains(t, err.Error(), "relation does not exist")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_ArityMismatch(t *testing.T) {
	_, err := Upsert(context.Background(), nil, sectionsTable, []any{"AAPL"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 values for 3 columns")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"public.companies", `"public"."companies"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestUpsertSQL_Positional(t *testing.T) {
	cfg := sectionsTable
	cfg.Table = "company_10k_sections"
	cfg.Positional = true
	got, err := UpsertSQL(cfg)
	require.NoError(t, err)
	assert.Contains(t, got, `INSERT INTO "company_10k_sections"`)
	assert.Contains(t, got, "VALUES (?, ?, ?)")
}
