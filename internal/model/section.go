// Package model defines the records produced by the 10-K section extraction pipeline.
package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Section is one extractable 10-K item with a fixed output column.
type Section struct {
	Code   string `json:"item_code" yaml:"code"`
	Name   string `json:"section_name" yaml:"name"`
	Column string `json:"db_column" yaml:"column"`
}

// Catalog is the ordered set of sections extracted for every filing.
type Catalog []Section

// DefaultCatalog returns the seven highest-leverage 10-K sections in
// extraction order.
func DefaultCatalog() Catalog {
	return Catalog{
		{Code: "1", Name: "Business Description", Column: "section_1_business"},
		{Code: "1A", Name: "Risk Factors", Column: "section_1a_risk_factors"},
		{Code: "1C", Name: "Cybersecurity", Column: "section_1c_cybersecurity"},
		{Code: "7", Name: "MD&A", Column: "section_7_mda"},
		{Code: "7A", Name: "Market Risk", Column: "section_7a_market_risk"},
		{Code: "8", Name: "Financial Statements", Column: "section_8_financial_statements"},
		{Code: "9A", Name: "Controls and Procedures", Column: "section_9a_controls"},
	}
}

// Lookup returns the section with the given item code. Codes are matched
// case-insensitively.
func (c Catalog) Lookup(code string) (Section, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, s := range c {
		if s.Code == code {
			return s, true
		}
	}
	return Section{}, false
}

// Codes returns the item codes in catalog order.
func (c Catalog) Codes() []string {
	codes := make([]string, len(c))
	for i, s := range c {
		codes[i] = s.Code
	}
	return codes
}

// Columns returns the output column names in catalog order.
func (c Catalog) Columns() []string {
	cols := make([]string, len(c))
	for i, s := range c {
		cols[i] = s.Column
	}
	return cols
}

// Subset returns the sections matching codes, kept in catalog order.
// An empty codes list returns the full catalog.
func (c Catalog) Subset(codes []string) (Catalog, error) {
	if len(codes) == 0 {
		return c, nil
	}
	want := make(map[string]bool, len(codes))
	for _, code := range codes {
		s, ok := c.Lookup(code)
		if !ok {
			return nil, eris.Errorf("model: unknown section %q", code)
		}
		want[s.Code] = true
	}
	var out Catalog
	for _, s := range c {
		if want[s.Code] {
			out = append(out, s)
		}
	}
	return out, nil
}
