// Package filings harvests 10-K filing metadata, and optionally the
// company's market data, from Finnhub into the source artifact read by the
// locator.
package filings

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vesto-app/tenk/internal/locator"
	"github.com/vesto-app/tenk/internal/resilience"
	"github.com/vesto-app/tenk/pkg/finnhub"
)

// Company is a symbol to harvest with its display name.
type Company struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Name   string `json:"name" yaml:"name"`
}

// TopCompanies is the default harvest list.
func TopCompanies() []Company {
	return []Company{
		{"AAPL", "Apple Inc."},
		{"MSFT", "Microsoft Corporation"},
		{"GOOGL", "Alphabet Inc."},
		{"AMZN", "Amazon.com Inc."},
		{"NVDA", "NVIDIA Corporation"},
		{"META", "Meta Platforms Inc."},
		{"TSLA", "Tesla Inc."},
		{"JPM", "JPMorgan Chase & Co."},
		{"V", "Visa Inc."},
		{"JNJ", "Johnson & Johnson"},
		{"WMT", "Walmart Inc."},
		{"PG", "Procter & Gamble Co."},
		{"UNH", "UnitedHealth Group"},
		{"HD", "The Home Depot, Inc."},
		{"KO", "The Coca-Cola Company"},
		{"NFLX", "Netflix, Inc."},
		{"DIS", "The Walt Disney Company"},
		{"ADBE", "Adobe Inc."},
		{"CRM", "Salesforce, Inc."},
		{"XOM", "Exxon Mobil Corp."},
	}
}

// Registrar records harvested companies so the sink can link sections to
// them.
type Registrar interface {
	UpsertCompany(ctx context.Context, symbol, name string) (int64, error)
}

// Options tunes a harvest run.
type Options struct {
	// Years of filings to request, counted back from January 1st.
	Years int
	// Concurrency bounds in-flight Finnhub calls. The client limiter still
	// applies across all of them.
	Concurrency int
	// Market also fetches fundamentals, annual financials, profile, quote,
	// recommendations and news for each company with filings.
	Market bool
}

// DefaultOptions mirrors the free-tier friendly defaults.
func DefaultOptions() Options {
	return Options{Years: 3, Concurrency: 4}
}

// Harvester fetches filing histories for a list of companies.
type Harvester struct {
	client    finnhub.Client
	registrar Registrar
	opts      Options
	retry     resilience.RetryConfig
	now       func() time.Time
}

// NewHarvester creates a Harvester. registrar may be nil.
func NewHarvester(client finnhub.Client, registrar Registrar, opts Options) *Harvester {
	def := DefaultOptions()
	if opts.Years <= 0 {
		opts.Years = def.Years
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("finnhub", "stock filings")
	return &Harvester{client: client, registrar: registrar, opts: opts, retry: retry, now: time.Now}
}

// Window returns the [from, to] filing date range for a run at now.
func (h *Harvester) Window(now time.Time) (time.Time, time.Time) {
	from := time.Date(now.Year()-h.opts.Years, time.January, 1, 0, 0, 0, 0, time.UTC)
	return from, now
}

// Run harvests every company. A failed company is kept in the source with
// its error and no filings; only context cancellation fails the run.
func (h *Harvester) Run(ctx context.Context, companies []Company) (*locator.Source, error) {
	if len(companies) == 0 {
		return nil, eris.New("filings: no companies to harvest")
	}

	now := h.now()
	from, to := h.Window(now)
	log := zap.L().With(
		zap.Int("companies", len(companies)),
		zap.String("from", from.Format("2006-01-02")),
	)
	log.Info("filings: harvest starting")

	results := make([]locator.CompanyFilings, len(companies))
	var (
		mu     sync.Mutex
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.opts.Concurrency)

	for i, c := range companies {
		g.Go(func() error {
			sym := strings.ToUpper(strings.TrimSpace(c.Symbol))
			entry := locator.CompanyFilings{
				Symbol:  sym,
				Name:    c.Name,
				Filings: locator.FilingHistory{Symbol: sym, Filings: []finnhub.Filing{}},
			}

			filings, err := resilience.DoVal(gctx, h.retry, func(ctx context.Context) ([]finnhub.Filing, error) {
				return h.client.TenKFilings(ctx, sym, from, to)
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("filings: fetch failed", zap.String("symbol", sym), zap.Error(err))
				entry.Error = err.Error()
				mu.Lock()
				failed++
				mu.Unlock()
				results[i] = entry
				return nil
			}
			entry.Filings.Filings = filings
			entry.Filings.Total10KFilings = len(filings)

			if h.opts.Market {
				if err := h.market(gctx, &entry, now); err != nil {
					return err
				}
			}

			if h.registrar != nil {
				if _, err := h.registrar.UpsertCompany(gctx, sym, c.Name); err != nil {
					log.Warn("filings: register company failed", zap.String("symbol", sym), zap.Error(err))
				}
			}
			results[i] = entry
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	src := locator.NewSource(now)
	for _, r := range results {
		src.Put(r)
	}
	log.Info("filings: harvest complete",
		zap.Int("failed", failed),
		zap.Int("harvested", len(companies)-failed),
	)
	return src, nil
}

// market fills the market datasets of entry one endpoint at a time. A failed
// dataset is logged and recorded; only cancellation is returned.
func (h *Harvester) market(ctx context.Context, entry *locator.CompanyFilings, now time.Time) error {
	sym := entry.Symbol
	newsFrom, newsTo := NewsWindow(now)
	steps := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{"fundamentals", func(ctx context.Context) (err error) {
			entry.Fundamentals, err = h.client.Fundamentals(ctx, sym)
			return err
		}},
		{"financials", func(ctx context.Context) (err error) {
			entry.Financials, err = h.client.Financials(ctx, sym, "annual")
			return err
		}},
		{"profile", func(ctx context.Context) (err error) {
			entry.Profile, err = h.client.Profile(ctx, sym)
			return err
		}},
		{"quote", func(ctx context.Context) (err error) {
			entry.Quote, err = h.client.Quote(ctx, sym)
			return err
		}},
		{"recommendations", func(ctx context.Context) (err error) {
			entry.Recommendations, err = h.client.Recommendations(ctx, sym)
			return err
		}},
		{"news", func(ctx context.Context) (err error) {
			entry.News, err = h.client.News(ctx, sym, newsFrom, newsTo)
			return err
		}},
	}

	for _, step := range steps {
		retry := h.retry
		retry.OnRetry = resilience.RetryLogger("finnhub", step.name)
		err := resilience.Do(ctx, retry, step.run)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		zap.L().Warn("filings: market dataset failed",
			zap.String("symbol", sym),
			zap.String("dataset", step.name),
			zap.Error(err),
		)
		if entry.DatasetErrors == nil {
			entry.DatasetErrors = make(map[string]string)
		}
		entry.DatasetErrors[step.name] = err.Error()
	}
	return nil
}

// NewsWindow returns the company news range for a run at now: from the first
// day of the previous month through now.
func NewsWindow(now time.Time) (time.Time, time.Time) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -1, 0), now
}

// RunToFile harvests and writes the source artifact to path.
func (h *Harvester) RunToFile(ctx context.Context, companies []Company, path string) (*locator.Source, error) {
	src, err := h.Run(ctx, companies)
	if err != nil {
		return nil, err
	}
	if err := locator.WriteSource(path, src); err != nil {
		return nil, err
	}
	return src, nil
}

// ParseCompanies turns "AAPL,MSFT" style input into companies, dropping
// blanks and duplicates. Names come from TopCompanies when known.
func ParseCompanies(symbols []string) []Company {
	names := make(map[string]string)
	for _, c := range TopCompanies() {
		names[c.Symbol] = c.Name
	}
	seen := make(map[string]bool)
	var out []Company
	for _, s := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(s))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, Company{Symbol: sym, Name: names[sym]})
	}
	return out
}
