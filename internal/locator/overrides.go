package locator

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Override pins a symbol to a specific filing.
type Override struct {
	FilingURL    string `yaml:"filing_url"`
	AccessNumber string `yaml:"access_number"`
	FiledDate    string `yaml:"filed_date"`
}

// Overrides maps upper-case symbols to manually chosen filings.
type Overrides map[string]Override

// LoadOverrides reads a YAML override table. A missing file yields an
// empty table.
//
//	GOOGL:
//	  filing_url: https://www.sec.gov/Archives/edgar/data/...
//	  access_number: 0001652044-25-000014
//	  filed_date: 2025-02-05
func LoadOverrides(path string) (Overrides, error) {
	if path == "" {
		return Overrides{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Overrides{}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "locator: read overrides %s", path)
	}

	var raw map[string]Override
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(err, "locator: parse overrides %s", path)
	}

	out := make(Overrides, len(raw))
	for sym, o := range raw {
		if strings.TrimSpace(o.FilingURL) == "" {
			return nil, eris.Errorf("locator: override %s has no filing_url", sym)
		}
		out[strings.ToUpper(strings.TrimSpace(sym))] = o
	}
	return out, nil
}
