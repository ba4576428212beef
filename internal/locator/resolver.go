package locator

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/vesto-app/tenk/internal/model"
)

// ErrNotFound is returned when neither the overrides nor the source know a
// filing for the symbol.
var ErrNotFound = errors.New("no filing URL found")

// Resolver turns a symbol into the entity to extract.
type Resolver interface {
	Resolve(symbol string) (model.Entity, error)
}

// TableResolver consults the override table first and the source artifact
// second. Either may be nil.
type TableResolver struct {
	Overrides Overrides
	Source    *Source
}

// Resolve implements Resolver.
func (r *TableResolver) Resolve(symbol string) (model.Entity, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if o, ok := r.Overrides[symbol]; ok {
		zap.L().Debug("locator: using manual override", zap.String("symbol", symbol))
		return model.Entity{
			Symbol:       symbol,
			FilingURL:    o.FilingURL,
			AccessNumber: o.AccessNumber,
			FiledDate:    o.FiledDate,
		}, nil
	}

	if r.Source == nil {
		return model.Entity{Symbol: symbol}, ErrNotFound
	}
	f, ok := r.Source.Latest(symbol)
	if !ok {
		return model.Entity{Symbol: symbol}, ErrNotFound
	}

	url := f.ReportURL
	if url == "" {
		url = f.FilingURL
	}
	if url == "" {
		return model.Entity{Symbol: symbol}, ErrNotFound
	}
	return model.Entity{
		Symbol:       symbol,
		FilingURL:    url,
		AccessNumber: f.AccessNumber,
		FiledDate:    f.FiledDate,
	}, nil
}

// Symbols returns the symbols known to the source in file order.
func (r *TableResolver) Symbols() []string {
	if r.Source == nil {
		return nil
	}
	return append([]string(nil), r.Source.Symbols...)
}
