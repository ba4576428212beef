package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNoData is returned when Finnhub answers 200 with an empty payload, which
// is how it reports symbols it does not cover.
var ErrNoData = errors.New("finnhub: no data")

const (
	// MaxFinancialReports is how many reported statements Financials keeps.
	MaxFinancialReports = 3
	// MaxNewsArticles is how many articles News keeps.
	MaxNewsArticles = 10
)

// Fundamentals groups the /stock/metric figures used for ratio questions.
// A nil field means Finnhub did not report the metric.
type Fundamentals struct {
	Symbol        string        `json:"symbol"`
	Valuation     Valuation     `json:"valuation"`
	Profitability Profitability `json:"profitability"`
	Leverage      Leverage      `json:"leverage"`
	Growth        Growth        `json:"growth"`
	Market        MarketData    `json:"market"`
}

type Valuation struct {
	PERatio   *float64 `json:"peRatio"`
	PBRatio   *float64 `json:"pbRatio"`
	PSRatio   *float64 `json:"psRatio"`
	PEGRatio  *float64 `json:"pegRatio"`
	ForwardPE *float64 `json:"forwardPE"`
}

type Profitability struct {
	ROE             *float64 `json:"roe"`
	ROA             *float64 `json:"roa"`
	GrossMargin     *float64 `json:"grossMargin"`
	OperatingMargin *float64 `json:"operatingMargin"`
	NetProfitMargin *float64 `json:"netProfitMargin"`
	// EBITDA is per share.
	EBITDA *float64 `json:"ebitda"`
}

type Leverage struct {
	DebtToEquity         *float64 `json:"debtToEquity"`
	CurrentRatio         *float64 `json:"currentRatio"`
	QuickRatio           *float64 `json:"quickRatio"`
	LongTermDebtToEquity *float64 `json:"longTermDebtToEquity"`
}

type Growth struct {
	EPSGrowthYoY     *float64 `json:"epsGrowthYoY"`
	RevenueGrowthYoY *float64 `json:"revenueGrowthYoY"`
	EPSGrowth5Y      *float64 `json:"epsGrowth5Y"`
	RevenueGrowth5Y  *float64 `json:"revenueGrowth5Y"`
}

type MarketData struct {
	Beta       *float64 `json:"beta"`
	MarketCap  *float64 `json:"marketCap"`
	Week52High *float64 `json:"week52High"`
	Week52Low  *float64 `json:"week52Low"`
}

// LineItem is one reported statement line, keyed by its XBRL concept.
type LineItem struct {
	Label string `json:"label"`
	Value any    `json:"value"`
	Unit  string `json:"unit"`
}

// Report is one reported 10-K or 10-Q with its key statement lines.
type Report struct {
	Year            int                 `json:"year"`
	Quarter         int                 `json:"quarter"`
	Form            string              `json:"form"`
	FiledDate       string              `json:"filedDate"`
	StartDate       string              `json:"startDate"`
	EndDate         string              `json:"endDate"`
	AccessNumber    string              `json:"accessNumber"`
	BalanceSheet    map[string]LineItem `json:"balanceSheet"`
	IncomeStatement map[string]LineItem `json:"incomeStatement"`
	CashFlow        map[string]LineItem `json:"cashFlow"`
}

// Financials holds the most recent reported statements.
type Financials struct {
	Symbol       string   `json:"symbol"`
	Frequency    string   `json:"frequency"`
	TotalReports int      `json:"total_reports"`
	Reports      []Report `json:"reports"`
}

type Profile struct {
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Industry          string  `json:"industry"`
	Sector            string  `json:"sector"`
	MarketCap         float64 `json:"marketCap"`
	SharesOutstanding float64 `json:"sharesOutstanding"`
	Exchange          string  `json:"exchange"`
	Country           string  `json:"country"`
	Currency          string  `json:"currency"`
	IPO               string  `json:"ipo"`
	Website           string  `json:"website"`
	Logo              string  `json:"logo"`
	Phone             string  `json:"phone"`
}

type Quote struct {
	Symbol          string   `json:"symbol"`
	CurrentPrice    float64  `json:"currentPrice"`
	Change          *float64 `json:"change"`
	PercentChange   *float64 `json:"percentChange"`
	High            float64  `json:"high"`
	Low             float64  `json:"low"`
	Open            float64  `json:"open"`
	PreviousClose   float64  `json:"previousClose"`
	MarketTimestamp int64    `json:"marketTimestamp"`
}

// Recommendation is the latest analyst recommendation trend.
type Recommendation struct {
	Symbol     string `json:"symbol"`
	Period     string `json:"period"`
	StrongBuy  int    `json:"strongBuy"`
	Buy        int    `json:"buy"`
	Hold       int    `json:"hold"`
	Sell       int    `json:"sell"`
	StrongSell int    `json:"strongSell"`
	Consensus  string `json:"consensus"`
}

type Article struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	Source   string `json:"source"`
	URL      string `json:"url"`
	Datetime int64  `json:"datetime"`
	Category string `json:"category"`
}

type News struct {
	Symbol        string    `json:"symbol"`
	TotalArticles int       `json:"total_articles"`
	Articles      []Article `json:"articles"`
}

func (c *httpClient) Fundamentals(ctx context.Context, symbol string) (*Fundamentals, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("metric", "all")

	op := "finnhub: metrics for " + symbol
	body, err := c.get(ctx, "/stock/metric", params, op)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Metric map[string]json.RawMessage `json:"metric"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrapf(err, "%s: decode", op)
	}
	if len(raw.Metric) == 0 {
		return nil, eris.Wrap(ErrNoData, op)
	}

	m := metrics(raw.Metric)
	return &Fundamentals{
		Symbol: symbol,
		Valuation: Valuation{
			PERatio:   m.get("peBasicExclExtraTTM"),
			PBRatio:   m.get("pbQuarterly"),
			PSRatio:   m.get("psAnnual"),
			PEGRatio:  m.get("pegBasic"),
			ForwardPE: m.get("forwardPE"),
		},
		Profitability: Profitability{
			ROE:             m.get("roeTTM"),
			ROA:             m.get("roaTTM"),
			GrossMargin:     m.get("grossMarginTTM"),
			OperatingMargin: m.get("operatingMarginTTM"),
			NetProfitMargin: m.get("netProfitMarginTTM"),
			EBITDA:          m.get("ebitdPerShareTTM"),
		},
		Leverage: Leverage{
			DebtToEquity:         m.get("totalDebt/totalEquityQuarterly"),
			CurrentRatio:         m.get("currentRatioQuarterly"),
			QuickRatio:           m.get("quickRatioQuarterly"),
			LongTermDebtToEquity: m.get("longTermDebt/equityQuarterly"),
		},
		Growth: Growth{
			EPSGrowthYoY:     m.get("epsGrowthQuarterlyYoy"),
			RevenueGrowthYoY: m.get("revenueGrowthQuarterlyYoy"),
			EPSGrowth5Y:      m.get("epsGrowth5Y"),
			RevenueGrowth5Y:  m.get("revenueGrowth5Y"),
		},
		Market: MarketData{
			Beta:       m.get("beta"),
			MarketCap:  m.get("marketCapitalization"),
			Week52High: m.get("52WeekHigh"),
			Week52Low:  m.get("52WeekLow"),
		},
	}, nil
}

type metrics map[string]json.RawMessage

// get returns nil for missing, null or non-numeric metrics.
func (m metrics) get(key string) *float64 {
	raw, ok := m[key]
	if !ok {
		return nil
	}
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

type reportedLine struct {
	Label   string `json:"label"`
	Concept string `json:"concept"`
	Unit    string `json:"unit"`
	Value   any    `json:"value"`
}

var (
	balanceSheetKeys    = []string{"asset", "liability", "equity", "cash", "debt"}
	incomeStatementKeys = []string{"revenue", "sales", "income", "expense", "cost", "margin", "eps"}
	cashFlowKeys        = []string{"cash", "operating", "investing", "financing"}
)

// Financials returns the latest reported statements at freq ("annual" or
// "quarterly"), keeping only the lines whose label names a key figure.
func (c *httpClient) Financials(ctx context.Context, symbol, freq string) (*Financials, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("freq", freq)

	op := "finnhub: financials for " + symbol
	body, err := c.get(ctx, "/stock/financials-reported", params, op)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Data []struct {
			Year         int    `json:"year"`
			Quarter      int    `json:"quarter"`
			Form         string `json:"form"`
			FiledDate    string `json:"filedDate"`
			StartDate    string `json:"startDate"`
			EndDate      string `json:"endDate"`
			AccessNumber string `json:"accessNumber"`
			Report       struct {
				BS []reportedLine `json:"bs"`
				IC []reportedLine `json:"ic"`
				CF []reportedLine `json:"cf"`
			} `json:"report"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrapf(err, "%s: decode", op)
	}
	if raw.Data == nil {
		return nil, eris.Wrap(ErrNoData, op)
	}

	out := &Financials{Symbol: symbol, Frequency: freq, TotalReports: len(raw.Data), Reports: []Report{}}
	for i, d := range raw.Data {
		if i == MaxFinancialReports {
			break
		}
		out.Reports = append(out.Reports, Report{
			Year:            d.Year,
			Quarter:         d.Quarter,
			Form:            d.Form,
			FiledDate:       d.FiledDate,
			StartDate:       d.StartDate,
			EndDate:         d.EndDate,
			AccessNumber:    d.AccessNumber,
			BalanceSheet:    keyLines(d.Report.BS, balanceSheetKeys),
			IncomeStatement: keyLines(d.Report.IC, incomeStatementKeys),
			CashFlow:        keyLines(d.Report.CF, cashFlowKeys),
		})
	}
	return out, nil
}

func keyLines(lines []reportedLine, keys []string) map[string]LineItem {
	out := make(map[string]LineItem)
	for _, l := range lines {
		label := strings.ToLower(l.Label)
		for _, k := range keys {
			if strings.Contains(label, k) {
				unit := l.Unit
				if unit == "" {
					unit = "USD"
				}
				out[l.Concept] = LineItem{Label: l.Label, Value: l.Value, Unit: unit}
				break
			}
		}
	}
	return out
}

func (c *httpClient) Profile(ctx context.Context, symbol string) (*Profile, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	op := "finnhub: profile for " + symbol
	body, err := c.get(ctx, "/stock/profile2", params, op)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Name             string  `json:"name"`
		Ticker           string  `json:"ticker"`
		FinnhubIndustry  string  `json:"finnhubIndustry"`
		MarketCap        float64 `json:"marketCapitalization"`
		ShareOutstanding float64 `json:"shareOutstanding"`
		Exchange         string  `json:"exchange"`
		Country          string  `json:"country"`
		Currency         string  `json:"currency"`
		IPO              string  `json:"ipo"`
		WebURL           string  `json:"weburl"`
		Logo             string  `json:"logo"`
		Phone            string  `json:"phone"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrapf(err, "%s: decode", op)
	}
	if raw.Name == "" && raw.Ticker == "" {
		return nil, eris.Wrap(ErrNoData, op)
	}

	return &Profile{
		Symbol:            symbol,
		Name:              raw.Name,
		Industry:          raw.FinnhubIndustry,
		Sector:            raw.FinnhubIndustry,
		MarketCap:         raw.MarketCap,
		SharesOutstanding: raw.ShareOutstanding,
		Exchange:          raw.Exchange,
		Country:           raw.Country,
		Currency:          raw.Currency,
		IPO:               raw.IPO,
		Website:           raw.WebURL,
		Logo:              raw.Logo,
		Phone:             raw.Phone,
	}, nil
}

func (c *httpClient) Quote(ctx context.Context, symbol string) (*Quote, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	op := "finnhub: quote for " + symbol
	body, err := c.get(ctx, "/quote", params, op)
	if err != nil {
		return nil, err
	}

	var raw struct {
		C  float64  `json:"c"`
		D  *float64 `json:"d"`
		DP *float64 `json:"dp"`
		H  float64  `json:"h"`
		L  float64  `json:"l"`
		O  float64  `json:"o"`
		PC float64  `json:"pc"`
		T  int64    `json:"t"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrapf(err, "%s: decode", op)
	}
	// Unknown symbols come back as all zeros.
	if raw.T == 0 && raw.C == 0 {
		return nil, eris.Wrap(ErrNoData, op)
	}

	return &Quote{
		Symbol:          symbol,
		CurrentPrice:    raw.C,
		Change:          raw.D,
		PercentChange:   raw.DP,
		High:            raw.H,
		Low:             raw.L,
		Open:            raw.O,
		PreviousClose:   raw.PC,
		MarketTimestamp: raw.T,
	}, nil
}

func (c *httpClient) Recommendations(ctx context.Context, symbol string) (*Recommendation, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	op := "finnhub: recommendations for " + symbol
	body, err := c.get(ctx, "/stock/recommendation", params, op)
	if err != nil {
		return nil, err
	}

	var trends []Recommendation
	if err := json.Unmarshal(body, &trends); err != nil {
		return nil, eris.Wrapf(err, "%s: decode", op)
	}
	if len(trends) == 0 {
		return nil, eris.Wrap(ErrNoData, op)
	}

	latest := trends[0]
	latest.Symbol = symbol
	latest.Consensus = consensus(latest)
	return &latest, nil
}

// consensus is "Buy" when buy ratings outnumber sell ratings, else "Sell".
func consensus(r Recommendation) string {
	if r.StrongBuy+r.Buy > r.Sell+r.StrongSell {
		return "Buy"
	}
	return "Sell"
}

// News returns the company articles published in [from, to], keeping the
// first MaxNewsArticles.
func (c *httpClient) News(ctx context.Context, symbol string, from, to time.Time) (*News, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("from", from.Format(time.DateOnly))
	params.Set("to", to.Format(time.DateOnly))

	op := "finnhub: news for " + symbol
	body, err := c.get(ctx, "/company-news", params, op)
	if err != nil {
		return nil, err
	}

	var all []Article
	if err := json.Unmarshal(body, &all); err != nil {
		return nil, eris.Wrapf(err, "%s: decode", op)
	}

	out := &News{Symbol: symbol, TotalArticles: len(all), Articles: all}
	if len(all) > MaxNewsArticles {
		out.Articles = all[:MaxNewsArticles]
	}
	if out.Articles == nil {
		out.Articles = []Article{}
	}
	return out, nil
}
