// Package locator resolves a company symbol to the 10-K filing it should be
// extracted from.
package locator

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/vesto-app/tenk/pkg/finnhub"
)

// DefaultSourceFile is the file name of the harvested filings artifact.
const DefaultSourceFile = "vesto_finnhub_20_companies.json"

// CompanyFilings is one company entry of the source artifact. The market
// datasets are only present for harvests run with market data; a dataset
// that could not be fetched is absent and its error is kept in DatasetErrors.
type CompanyFilings struct {
	Symbol          string                  `json:"symbol"`
	Name            string                  `json:"name,omitempty"`
	Fundamentals    *finnhub.Fundamentals   `json:"fundamentals,omitempty"`
	Filings         FilingHistory           `json:"filings"`
	Financials      *finnhub.Financials     `json:"financials,omitempty"`
	Profile         *finnhub.Profile        `json:"profile,omitempty"`
	Quote           *finnhub.Quote          `json:"quote,omitempty"`
	Recommendations *finnhub.Recommendation `json:"recommendations,omitempty"`
	News            *finnhub.News           `json:"news,omitempty"`
	DatasetErrors   map[string]string       `json:"dataset_errors,omitempty"`
	Error           string                  `json:"error,omitempty"`
}

// FilingHistory lists a company's 10-K filings, newest first.
type FilingHistory struct {
	Symbol          string           `json:"symbol"`
	Total10KFilings int              `json:"total_10k_filings"`
	Filings         []finnhub.Filing `json:"filings"`
}

// Source is the harvested filings artifact. Symbols keeps the order the
// companies appear in the file.
type Source struct {
	ExtractedAt time.Time
	Symbols     []string
	Companies   map[string]CompanyFilings
}

// NewSource returns an empty source stamped with at.
func NewSource(at time.Time) *Source {
	return &Source{ExtractedAt: at, Companies: make(map[string]CompanyFilings)}
}

// Put adds or replaces a company, keeping its first position.
func (s *Source) Put(c CompanyFilings) {
	if _, ok := s.Companies[c.Symbol]; !ok {
		s.Symbols = append(s.Symbols, c.Symbol)
	}
	s.Companies[c.Symbol] = c
}

// Latest returns the first filing listed for symbol.
func (s *Source) Latest(symbol string) (finnhub.Filing, bool) {
	c, ok := s.Companies[symbol]
	if !ok || len(c.Filings.Filings) == 0 {
		return finnhub.Filing{}, false
	}
	return c.Filings.Filings[0], true
}

func (s *Source) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"extracted_at":`)
	at, err := json.Marshal(s.ExtractedAt)
	if err != nil {
		return nil, err
	}
	buf.Write(at)
	buf.WriteString(`,"companies":{`)
	for i, sym := range s.Symbols {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(sym)
		val, err := json.Marshal(s.Companies[sym])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

func (s *Source) UnmarshalJSON(data []byte) error {
	var raw struct {
		ExtractedAt string          `json:"extracted_at"`
		Companies   json.RawMessage `json:"companies"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Companies = make(map[string]CompanyFilings)
	s.Symbols = nil
	// The producer writes naive ISO timestamps; keep zero time when it does not parse.
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, raw.ExtractedAt); err == nil {
			s.ExtractedAt = t
			break
		}
	}
	if len(raw.Companies) == 0 || string(raw.Companies) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw.Companies))
	if _, err := dec.Token(); err != nil {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		sym, _ := tok.(string)
		var c CompanyFilings
		if err := dec.Decode(&c); err != nil {
			return eris.Wrapf(err, "company %s", sym)
		}
		if c.Symbol == "" {
			c.Symbol = sym
		}
		if _, dup := s.Companies[sym]; !dup {
			s.Symbols = append(s.Symbols, sym)
		}
		s.Companies[sym] = c
	}
	return nil
}

// LoadSource reads the source artifact at path.
func LoadSource(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "locator: read source %s", path)
	}
	var s Source
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrapf(err, "locator: parse source %s", path)
	}
	return &s, nil
}

// WriteSource writes s to path as indented JSON, creating parent dirs.
func WriteSource(path string, s *Source) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return eris.Wrap(err, "locator: marshal source")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "locator: create %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "locator: write source %s", path)
	}
	return nil
}
