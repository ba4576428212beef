package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/vesto-app/tenk/internal/db"
	"github.com/vesto-app/tenk/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Records are kept
// even when the company is unknown; company_id is left NULL.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol     TEXT NOT NULL UNIQUE,
	name       TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS company_10k_sections (
	id                             INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id                     INTEGER REFERENCES companies(id) ON DELETE CASCADE,
	symbol                         TEXT NOT NULL,
	filing_url                     TEXT NOT NULL,
	access_number                  TEXT NOT NULL DEFAULT '',
	filed_date                     TEXT,
	fiscal_year                    INTEGER,
	section_1_business             TEXT,
	section_1a_risk_factors        TEXT,
	section_1c_cybersecurity       TEXT,
	section_7_mda                  TEXT,
	section_7a_market_risk         TEXT,
	section_8_financial_statements TEXT,
	section_9a_controls            TEXT,
	extracted_at                   DATETIME NOT NULL DEFAULT (datetime('now')),
	extraction_status              TEXT NOT NULL DEFAULT 'completed',
	sections_extracted             INTEGER NOT NULL DEFAULT 0,
	api_calls_used                 INTEGER NOT NULL DEFAULT 0,
	created_at                     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at                     DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (symbol, access_number)
);

CREATE INDEX IF NOT EXISTS idx_company_10k_sections_symbol_year
	ON company_10k_sections(symbol, fiscal_year DESC);
`

var sqliteSectionsSelect = `SELECT ` + strings.Join(selectColumns("filed_date"), ", ") +
	` FROM company_10k_sections WHERE symbol = ? ORDER BY fiscal_year IS NULL, fiscal_year DESC, extracted_at DESC`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertCompany(ctx context.Context, symbol, name string) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (symbol, name) VALUES (?, ?)
		 ON CONFLICT (symbol) DO UPDATE SET name = COALESCE(NULLIF(excluded.name, ''), companies.name), updated_at = datetime('now')`,
		symbol, name,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: upsert company %s", symbol)
	}
	return s.CompanyID(ctx, symbol)
}

func (s *SQLiteStore) CompanyID(ctx context.Context, symbol string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM companies WHERE symbol = ? LIMIT 1`, symbol).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrCompanyNotFound
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: company id %s", symbol)
	}
	return id, nil
}

func (s *SQLiteStore) SaveRecord(ctx context.Context, rec *model.EntityRecord) error {
	var companyID *int64
	id, err := s.CompanyID(ctx, rec.Symbol)
	switch {
	case err == nil:
		companyID = &id
	case !errors.Is(err, ErrCompanyNotFound):
		return err
	}

	cols, vals := recordRow(rec, companyID, time.Now().UTC())
	query, err := db.UpsertSQL(db.UpsertConfig{
		Table:        sectionsTable,
		Columns:      cols,
		ConflictKeys: []string{"symbol", "access_number"},
		Positional:   true,
	})
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, vals...); err != nil {
		return eris.Wrapf(err, "sqlite: save %s", rec.Symbol)
	}
	return nil
}

func (s *SQLiteStore) LatestSections(ctx context.Context, symbol string) (*SectionRow, error) {
	row, err := scanSectionRow(s.db.QueryRowContext(ctx, sqliteSectionsSelect+` LIMIT 1`, symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest sections %s", symbol)
	}
	return row, nil
}

func (s *SQLiteStore) AllSections(ctx context.Context, symbol string) ([]SectionRow, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSectionsSelect, symbol)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: all sections %s", symbol)
	}
	defer rows.Close() //nolint:errcheck

	var out []SectionRow
	for rows.Next() {
		r, err := scanSectionRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sections")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate sections")
}
