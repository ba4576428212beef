package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vesto-app/tenk/internal/db"
	"github.com/vesto-app/tenk/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	pgCompanyIDSQL     = `SELECT id FROM companies WHERE symbol = $1 LIMIT 1`
	pgUpsertCompanySQL = `INSERT INTO companies (symbol, name) VALUES ($1, $2)
ON CONFLICT (symbol) DO UPDATE SET name = COALESCE(NULLIF(EXCLUDED.name, ''), companies.name), updated_at = now()
RETURNING id`
)

var (
	pgSectionsSelect = `SELECT ` + strings.Join(selectColumns("to_char(filed_date, 'YYYY-MM-DD')"), ", ") +
		` FROM company_10k_sections WHERE symbol = $1 ORDER BY fiscal_year DESC NULLS LAST, extracted_at DESC`
	pgLatestSQL = pgSectionsSelect + ` LIMIT 1`
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id         BIGSERIAL PRIMARY KEY,
	symbol     TEXT NOT NULL UNIQUE,
	name       TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS company_10k_sections (
	id                             BIGSERIAL PRIMARY KEY,
	company_id                     BIGINT REFERENCES companies(id) ON DELETE CASCADE,
	symbol                         TEXT NOT NULL,
	filing_url                     TEXT NOT NULL,
	access_number                  TEXT NOT NULL DEFAULT '',
	filed_date                     DATE,
	fiscal_year                    INTEGER,
	section_1_business             TEXT,
	section_1a_risk_factors        TEXT,
	section_1c_cybersecurity       TEXT,
	section_7_mda                  TEXT,
	section_7a_market_risk         TEXT,
	section_8_financial_statements TEXT,
	section_9a_controls            TEXT,
	extracted_at                   TIMESTAMPTZ NOT NULL DEFAULT now(),
	extraction_status              TEXT NOT NULL DEFAULT 'completed'
		CHECK (extraction_status IN ('completed', 'partial', 'failed')),
	sections_extracted             INTEGER NOT NULL DEFAULT 0,
	api_calls_used                 INTEGER NOT NULL DEFAULT 0,
	created_at                     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (symbol, access_number)
);

CREATE INDEX IF NOT EXISTS idx_company_10k_sections_symbol_year
	ON company_10k_sections(symbol, fiscal_year DESC);
CREATE INDEX IF NOT EXISTS idx_company_10k_sections_company_id
	ON company_10k_sections(company_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertCompany(ctx context.Context, symbol, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, pgUpsertCompanySQL, symbol, name).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert company %s", symbol)
	}
	return id, nil
}

func (s *PostgresStore) CompanyID(ctx context.Context, symbol string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, pgCompanyIDSQL, symbol).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrCompanyNotFound
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: company id %s", symbol)
	}
	return id, nil
}

// SaveRecord upserts rec keyed by (symbol, access_number). Companies missing
// from the companies table are skipped with ErrCompanyNotFound.
func (s *PostgresStore) SaveRecord(ctx context.Context, rec *model.EntityRecord) error {
	companyID, err := s.CompanyID(ctx, rec.Symbol)
	if errors.Is(err, ErrCompanyNotFound) {
		zap.L().Warn("postgres: company not in companies table, skipping upsert",
			zap.String("symbol", rec.Symbol))
		return eris.Wrapf(err, "postgres: save %s", rec.Symbol)
	}
	if err != nil {
		return err
	}

	cols, vals := recordRow(rec, &companyID, time.Now().UTC())
	_, err = db.Upsert(ctx, s.pool, db.UpsertConfig{
		Table:        sectionsTable,
		Columns:      cols,
		ConflictKeys: []string{"symbol", "access_number"},
	}, vals)
	if err != nil {
		return eris.Wrapf(err, "postgres: save %s", rec.Symbol)
	}
	return nil
}

func (s *PostgresStore) LatestSections(ctx context.Context, symbol string) (*SectionRow, error) {
	row, err := scanSectionRow(s.pool.QueryRow(ctx, pgLatestSQL, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest sections %s", symbol)
	}
	return row, nil
}

func (s *PostgresStore) AllSections(ctx context.Context, symbol string) ([]SectionRow, error) {
	rows, err := s.pool.Query(ctx, pgSectionsSelect, symbol)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: all sections %s", symbol)
	}
	defer rows.Close()

	var out []SectionRow
	for rows.Next() {
		r, err := scanSectionRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan sections")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sections")
}
