package filings

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vesto-app/tenk/internal/resilience"
	"github.com/vesto-app/tenk/pkg/finnhub"
)

// ComparedCompany is one side of a comparison. Errors holds the failed
// datasets by name.
type ComparedCompany struct {
	Profile      *finnhub.Profile      `json:"profile,omitempty"`
	Fundamentals *finnhub.Fundamentals `json:"fundamentals,omitempty"`
	Errors       map[string]string     `json:"errors,omitempty"`
}

// Comparison lines up profile and fundamentals for several companies.
type Comparison struct {
	Symbols   []string                   `json:"symbols"`
	Timestamp time.Time                  `json:"timestamp"`
	Companies map[string]ComparedCompany `json:"companies"`
}

// Compare fetches the profile and fundamentals of each symbol, in order.
// Per-company failures are recorded in the result; only cancellation fails.
func Compare(ctx context.Context, client finnhub.Client, symbols []string) (*Comparison, error) {
	syms := normalizeSymbols(symbols)
	if len(syms) < 2 {
		return nil, eris.New("filings: compare needs at least two symbols")
	}

	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("finnhub", "compare")

	out := &Comparison{Symbols: syms, Timestamp: time.Now().UTC(), Companies: make(map[string]ComparedCompany, len(syms))}
	for _, sym := range syms {
		var c ComparedCompany
		record := func(dataset string, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zap.L().Warn("filings: compare dataset failed", zap.String("symbol", sym), zap.String("dataset", dataset), zap.Error(err))
			if c.Errors == nil {
				c.Errors = make(map[string]string)
			}
			c.Errors[dataset] = err.Error()
			return nil
		}

		profile, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*finnhub.Profile, error) {
			return client.Profile(ctx, sym)
		})
		if err != nil {
			if err := record("profile", err); err != nil {
				return nil, err
			}
		}
		c.Profile = profile

		fundamentals, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*finnhub.Fundamentals, error) {
			return client.Fundamentals(ctx, sym)
		})
		if err != nil {
			if err := record("fundamentals", err); err != nil {
				return nil, err
			}
		}
		c.Fundamentals = fundamentals

		out.Companies[sym] = c
	}
	return out, nil
}

// Holding is a position to value. BuyPrice is per share.
type Holding struct {
	Symbol   string  `json:"symbol" yaml:"symbol"`
	Shares   float64 `json:"shares" yaml:"shares"`
	BuyPrice float64 `json:"buyPrice" yaml:"buyPrice"`
}

// Position is a valued holding. A position whose quote failed carries Error
// and is left out of the portfolio totals.
type Position struct {
	Symbol          string  `json:"symbol"`
	Shares          float64 `json:"shares"`
	BuyPrice        float64 `json:"buyPrice"`
	CurrentPrice    float64 `json:"currentPrice"`
	CostBasis       float64 `json:"costBasis"`
	CurrentValue    float64 `json:"currentValue"`
	GainLoss        float64 `json:"gainLoss"`
	GainLossPercent float64 `json:"gainLossPercent"`
	Error           string  `json:"error,omitempty"`
}

// Portfolio is the valuation of a set of holdings at Timestamp.
type Portfolio struct {
	Timestamp            time.Time  `json:"timestamp"`
	Holdings             []Position `json:"holdings"`
	TotalValue           float64    `json:"totalValue"`
	TotalCost            float64    `json:"totalCost"`
	TotalGainLoss        float64    `json:"totalGainLoss"`
	TotalGainLossPercent float64    `json:"totalGainLossPercent"`
}

// ValuePortfolio prices each holding at its current quote.
func ValuePortfolio(ctx context.Context, client finnhub.Client, holdings []Holding) (*Portfolio, error) {
	if len(holdings) == 0 {
		return nil, eris.New("filings: no holdings to value")
	}

	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("finnhub", "quote")

	p := &Portfolio{Timestamp: time.Now().UTC(), Holdings: make([]Position, 0, len(holdings))}
	for _, h := range holdings {
		pos := Position{
			Symbol:    strings.ToUpper(strings.TrimSpace(h.Symbol)),
			Shares:    h.Shares,
			BuyPrice:  h.BuyPrice,
			CostBasis: h.Shares * h.BuyPrice,
		}

		q, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*finnhub.Quote, error) {
			return client.Quote(ctx, pos.Symbol)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			zap.L().Warn("filings: quote failed", zap.String("symbol", pos.Symbol), zap.Error(err))
			pos.Error = err.Error()
			p.Holdings = append(p.Holdings, pos)
			continue
		}

		pos.CurrentPrice = q.CurrentPrice
		pos.CurrentValue = pos.Shares * q.CurrentPrice
		pos.GainLoss = pos.CurrentValue - pos.CostBasis
		pos.GainLossPercent = percentOf(pos.GainLoss, pos.CostBasis)
		p.Holdings = append(p.Holdings, pos)

		p.TotalValue += pos.CurrentValue
		p.TotalCost += pos.CostBasis
	}

	p.TotalGainLoss = p.TotalValue - p.TotalCost
	p.TotalGainLossPercent = percentOf(p.TotalGainLoss, p.TotalCost)
	return p, nil
}

// percentOf is gain as a percentage of cost, or 0 without a cost basis.
func percentOf(gain, cost float64) float64 {
	if cost <= 0 {
		return 0
	}
	return gain / cost * 100
}

func normalizeSymbols(symbols []string) []string {
	var out []string
	for _, c := range ParseCompanies(symbols) {
		out = append(out, c.Symbol)
	}
	return out
}
