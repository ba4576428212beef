package model

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/rotisserie/eris"
)

// ExtractionStatus is the overall outcome for one company.
type ExtractionStatus string

const (
	StatusCompleted ExtractionStatus = "completed"
	StatusPartial   ExtractionStatus = "partial"
	StatusFailed    ExtractionStatus = "failed"
)

// previewLen is the number of content bytes copied into a section preview.
const previewLen = 500

// Entity is one company to extract, with the filing it is addressed by.
type Entity struct {
	Symbol       string `json:"symbol" yaml:"symbol"`
	FilingURL    string `json:"filing_url" yaml:"filing_url"`
	AccessNumber string `json:"access_number,omitempty" yaml:"access_number"`
	FiledDate    string `json:"filed_date,omitempty" yaml:"filed_date"`
}

// SectionOutcome pairs a catalog section with its extraction result.
type SectionOutcome struct {
	Section Section
	Result  StepResult
}

// EntityRecord aggregates the section results for one company.
type EntityRecord struct {
	Symbol       string
	FilingURL    string
	AccessNumber string
	FiledDate    string
	ExtractedAt  time.Time
	Sections     []SectionOutcome
	Completed    int
	Attempted    int
	Status       ExtractionStatus
	Error        string
}

// NewEntityRecord starts an empty record for e.
func NewEntityRecord(e Entity, at time.Time) *EntityRecord {
	return &EntityRecord{
		Symbol:       e.Symbol,
		FilingURL:    e.FilingURL,
		AccessNumber: e.AccessNumber,
		FiledDate:    e.FiledDate,
		ExtractedAt:  at,
		Status:       StatusFailed,
	}
}

// Add records the result of one attempted section.
func (r *EntityRecord) Add(s Section, res StepResult) {
	r.Sections = append(r.Sections, SectionOutcome{Section: s, Result: res})
	r.Attempted++
	if Succeeded(res) {
		r.Completed++
	}
}

// Finalize derives Status against a catalog of total sections.
func (r *EntityRecord) Finalize(total int) {
	r.Status = DeriveStatus(r.Completed, r.Attempted, total)
}

// Result returns the result recorded for an item code.
func (r *EntityRecord) Result(code string) (StepResult, bool) {
	for _, o := range r.Sections {
		if o.Section.Code == code {
			return o.Result, true
		}
	}
	return nil, false
}

// Content returns the extracted text keyed by output column. Sections without
// content are omitted.
func (r *EntityRecord) Content() map[string]string {
	out := make(map[string]string)
	for _, o := range r.Sections {
		if c, ok := o.Result.(Content); ok {
			out[o.Section.Column] = c.Text
		}
	}
	return out
}

// FailedSections lists "Item <code> (<name>)" for every section without content.
func (r *EntityRecord) FailedSections() []string {
	var out []string
	for _, o := range r.Sections {
		if !Succeeded(o.Result) {
			out = append(out, "Item "+o.Section.Code+" ("+o.Section.Name+")")
		}
	}
	return out
}

// DeriveStatus maps completed/attempted counts to a status. Zero completed
// sections is always failed; every section of the catalog attempted and
// succeeded is completed; anything else is partial.
func DeriveStatus(completed, attempted, total int) ExtractionStatus {
	switch {
	case completed == 0:
		return StatusFailed
	case attempted == total && completed == total:
		return StatusCompleted
	default:
		return StatusPartial
	}
}

type sectionJSON struct {
	Section
	Status        ResultKind `json:"status"`
	Content       string     `json:"content,omitempty"`
	ContentLength int        `json:"content_length,omitempty"`
	Preview       string     `json:"preview,omitempty"`
	Error         string     `json:"error,omitempty"`
}

type recordJSON struct {
	Symbol       string                 `json:"symbol"`
	FilingURL    string                 `json:"filing_url,omitempty"`
	AccessNumber string                 `json:"access_number,omitempty"`
	FiledDate    string                 `json:"filed_date,omitempty"`
	ExtractedAt  time.Time              `json:"extracted_at"`
	Order        []string               `json:"section_order,omitempty"`
	Sections     map[string]sectionJSON `json:"sections"`
	Completed    int                    `json:"sections_extracted"`
	Attempted    int                    `json:"api_calls_made"`
	Errors       []string               `json:"errors,omitempty"`
	Status       ExtractionStatus       `json:"extraction_status"`
	Error        string                 `json:"error,omitempty"`
}

// MarshalJSON writes the record in the run-artifact layout.
func (r EntityRecord) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		Symbol:       r.Symbol,
		FilingURL:    r.FilingURL,
		AccessNumber: r.AccessNumber,
		FiledDate:    r.FiledDate,
		ExtractedAt:  r.ExtractedAt,
		Sections:     make(map[string]sectionJSON, len(r.Sections)),
		Completed:    r.Completed,
		Attempted:    r.Attempted,
		Errors:       r.FailedSections(),
		Status:       r.Status,
		Error:        r.Error,
	}
	for _, o := range r.Sections {
		sj := sectionJSON{Section: o.Section, Status: o.Result.Kind()}
		switch res := o.Result.(type) {
		case Content:
			sj.Content = res.Text
			sj.ContentLength = res.Length
			sj.Preview = preview(res.Text)
		case Empty:
			sj.ContentLength = res.Length
			sj.Error = "section empty"
		case Failed:
			sj.Error = res.Reason
		}
		out.Order = append(out.Order, o.Section.Code)
		out.Sections[o.Section.Code] = sj
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a record written by MarshalJSON.
func (r *EntityRecord) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return eris.Wrap(err, "model: decode record")
	}
	*r = EntityRecord{
		Symbol:       in.Symbol,
		FilingURL:    in.FilingURL,
		AccessNumber: in.AccessNumber,
		FiledDate:    in.FiledDate,
		ExtractedAt:  in.ExtractedAt,
		Completed:    in.Completed,
		Attempted:    in.Attempted,
		Status:       in.Status,
		Error:        in.Error,
	}
	order := in.Order
	if len(order) == 0 {
		order = catalogOrder(in.Sections)
	}
	for _, code := range order {
		sj, ok := in.Sections[code]
		if !ok {
			return eris.Errorf("model: section %q listed but missing", code)
		}
		r.Sections = append(r.Sections, SectionOutcome{Section: sj.Section, Result: sj.result()})
	}
	return nil
}

// catalogOrder lists the section codes in default catalog order. Codes the
// catalog does not know follow, sorted.
func catalogOrder(sections map[string]sectionJSON) []string {
	pos := make(map[string]int)
	for i, code := range DefaultCatalog().Codes() {
		pos[code] = i
	}
	order := make([]string, 0, len(sections))
	for code := range sections {
		order = append(order, code)
	}
	sort.Slice(order, func(i, j int) bool {
		pi, iok := pos[order[i]]
		pj, jok := pos[order[j]]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return order[i] < order[j]
		}
	})
	return order
}

func (sj sectionJSON) result() StepResult {
	switch sj.Status {
	case KindContent:
		return Content{Text: sj.Content, Length: sj.ContentLength}
	case KindEmpty:
		return Empty{Length: sj.ContentLength}
	default:
		return Failed{Reason: sj.Error}
	}
}

func preview(text string) string {
	if len(text) <= previewLen {
		return text
	}
	return text[:previewLen] + "..."
}
