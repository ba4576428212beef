package model

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// BatchSummary is the set of records produced by one pipeline run.
type BatchSummary struct {
	RunID       string
	ExtractedAt time.Time
	Records     []*EntityRecord
}

// NewBatchSummary starts a summary with a fresh run ID.
func NewBatchSummary(at time.Time) *BatchSummary {
	return &BatchSummary{RunID: uuid.New().String(), ExtractedAt: at}
}

// Add appends a finished record.
func (s *BatchSummary) Add(r *EntityRecord) {
	s.Records = append(s.Records, r)
}

// TotalAPICalls sums section attempts across all records.
func (s *BatchSummary) TotalAPICalls() int {
	n := 0
	for _, r := range s.Records {
		n += r.Attempted
	}
	return n
}

// Record returns the record for symbol, if present.
func (s *BatchSummary) Record(symbol string) (*EntityRecord, bool) {
	for _, r := range s.Records {
		if r.Symbol == symbol {
			return r, true
		}
	}
	return nil, false
}

// CountByStatus tallies records per extraction status.
func (s *BatchSummary) CountByStatus() map[ExtractionStatus]int {
	out := make(map[ExtractionStatus]int, 3)
	for _, r := range s.Records {
		out[r.Status]++
	}
	return out
}

type summaryJSON struct {
	RunID          string                   `json:"run_id"`
	ExtractedAt    time.Time                `json:"extracted_at"`
	TotalCompanies int                      `json:"total_companies"`
	TotalAPICalls  int                      `json:"total_api_calls"`
	Symbols        []string                 `json:"symbols"`
	Results        map[string]*EntityRecord `json:"results"`
}

// MarshalJSON writes the run output artifact.
func (s BatchSummary) MarshalJSON() ([]byte, error) {
	out := summaryJSON{
		RunID:          s.RunID,
		ExtractedAt:    s.ExtractedAt,
		TotalCompanies: len(s.Records),
		TotalAPICalls:  s.TotalAPICalls(),
		Results:        make(map[string]*EntityRecord, len(s.Records)),
	}
	for _, r := range s.Records {
		out.Symbols = append(out.Symbols, r.Symbol)
		out.Results[r.Symbol] = r
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a run output artifact. Record order follows the
// "symbols" list when present, otherwise symbols sort alphabetically.
func (s *BatchSummary) UnmarshalJSON(data []byte) error {
	var in summaryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return eris.Wrap(err, "model: decode summary")
	}
	order := in.Symbols
	if len(order) == 0 {
		for sym := range in.Results {
			order = append(order, sym)
		}
		sort.Strings(order)
	}
	*s = BatchSummary{RunID: in.RunID, ExtractedAt: in.ExtractedAt}
	for _, sym := range order {
		r, ok := in.Results[sym]
		if !ok || r == nil {
			return eris.Errorf("model: summary lists %q without a result", sym)
		}
		s.Records = append(s.Records, r)
	}
	return nil
}
