// Package store persists extracted 10-K sections.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/vesto-app/tenk/internal/model"
)

// Table names.
const (
	companiesTable = "companies"
	sectionsTable  = "company_10k_sections"
)

// ErrCompanyNotFound is returned when a symbol has no companies row.
var ErrCompanyNotFound = errors.New("company not found")

// SectionRow is one row of company_10k_sections.
type SectionRow struct {
	ID                int64             `json:"id"`
	CompanyID         *int64            `json:"company_id"`
	Symbol            string            `json:"symbol"`
	FilingURL         string            `json:"filing_url"`
	AccessNumber      string            `json:"access_number"`
	FiledDate         *string           `json:"filed_date"`
	FiscalYear        *int              `json:"fiscal_year"`
	Sections          map[string]string `json:"sections"`
	ExtractedAt       time.Time         `json:"extracted_at"`
	ExtractionStatus  string            `json:"extraction_status"`
	SectionsExtracted int               `json:"sections_extracted"`
	APICallsUsed      int               `json:"api_calls_used"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Store defines the persistence interface for extraction results.
type Store interface {
	// Companies
	UpsertCompany(ctx context.Context, symbol, name string) (int64, error)
	CompanyID(ctx context.Context, symbol string) (int64, error)

	// Sections
	SaveRecord(ctx context.Context, rec *model.EntityRecord) error
	LatestSections(ctx context.Context, symbol string) (*SectionRow, error)
	AllSections(ctx context.Context, symbol string) ([]SectionRow, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// sectionColumns are the content columns of company_10k_sections.
func sectionColumns() []string {
	return model.DefaultCatalog().Columns()
}

// recordRow flattens rec into upsert columns and values. Only sections with
// content are included so a narrower run never blanks earlier text.
func recordRow(rec *model.EntityRecord, companyID *int64, now time.Time) ([]string, []any) {
	var filed any
	if d, ok := model.NormalizeFiledDate(rec.FiledDate); ok {
		filed = d
	}
	var fiscal any
	if y, ok := model.FiscalYear(rec.FiledDate, rec.AccessNumber); ok {
		fiscal = y
	}
	var company any
	if companyID != nil {
		company = *companyID
	}

	cols := []string{
		"company_id", "symbol", "filing_url", "access_number", "filed_date", "fiscal_year",
		"extraction_status", "sections_extracted", "api_calls_used", "extracted_at", "updated_at",
	}
	vals := []any{
		company, rec.Symbol, rec.FilingURL, rec.AccessNumber, filed, fiscal,
		string(rec.Status), rec.Completed, rec.Attempted, rec.ExtractedAt, now,
	}

	content := rec.Content()
	for _, col := range sectionColumns() {
		if text, ok := content[col]; ok {
			cols = append(cols, col)
			vals = append(vals, text)
		}
	}
	return cols, vals
}

// selectColumns is the column list read back by both stores. filedDate is
// the expression yielding filed_date as YYYY-MM-DD text.
func selectColumns(filedDate string) []string {
	cols := []string{
		"id", "company_id", "symbol", "filing_url", "access_number", filedDate, "fiscal_year",
		"extracted_at", "extraction_status", "sections_extracted", "api_calls_used", "created_at", "updated_at",
	}
	return append(cols, sectionColumns()...)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSectionRow(row scannable) (*SectionRow, error) {
	var r SectionRow
	content := make([]*string, len(sectionColumns()))
	dest := []any{
		&r.ID, &r.CompanyID, &r.Symbol, &r.FilingURL, &r.AccessNumber, &r.FiledDate, &r.FiscalYear,
		&r.ExtractedAt, &r.ExtractionStatus, &r.SectionsExtracted, &r.APICallsUsed, &r.CreatedAt, &r.UpdatedAt,
	}
	for i := range content {
		dest = append(dest, &content[i])
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	r.Sections = make(map[string]string)
	for i, col := range sectionColumns() {
		if content[i] != nil {
			r.Sections[col] = *content[i]
		}
	}
	return &r, nil
}
