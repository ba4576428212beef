// Package finnhub provides a client for the Finnhub filings and market data
// endpoints.
package finnhub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/vesto-app/tenk/internal/resilience"
)

// DefaultBaseURL is the Finnhub REST root.
const DefaultBaseURL = "https://finnhub.io/api/v1"

// FormAnnualReport is the form type kept by TenKFilings.
const FormAnnualReport = "10-K"

// Filing is one entry of /stock/filings.
type Filing struct {
	AccessNumber string `json:"accessNumber"`
	Symbol       string `json:"symbol,omitempty"`
	CIK          string `json:"cik"`
	Form         string `json:"form"`
	FiledDate    string `json:"filedDate"`
	AcceptedDate string `json:"acceptedDate"`
	ReportDate   string `json:"reportDate"`
	ReportURL    string `json:"reportUrl"`
	FilingURL    string `json:"filingUrl"`
}

// Client defines the Finnhub operations.
type Client interface {
	// TenKFilings returns the 10-K filings for symbol filed in [from, to],
	// newest first as returned by Finnhub.
	TenKFilings(ctx context.Context, symbol string, from, to time.Time) ([]Filing, error)
	// Fundamentals returns the grouped /stock/metric figures.
	Fundamentals(ctx context.Context, symbol string) (*Fundamentals, error)
	Financials(ctx context.Context, symbol, freq string) (*Financials, error)
	Profile(ctx context.Context, symbol string) (*Profile, error)
	Quote(ctx context.Context, symbol string) (*Quote, error)
	// Recommendations returns the latest analyst trend with its consensus.
	Recommendations(ctx context.Context, symbol string) (*Recommendation, error)
	News(ctx context.Context, symbol string, from, to time.Time) (*News, error)
}

// Option configures the Finnhub client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithLimiter replaces the default free-tier limiter. A nil limiter disables
// client-side rate limiting.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *httpClient) {
		c.limiter = l
	}
}

// FreeTierLimiter allows 60 calls per minute.
func FreeTierLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Second), 1)
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new Finnhub client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: FreeTierLimiter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) TenKFilings(ctx context.Context, symbol string, from, to time.Time) ([]Filing, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("from", from.Format(time.DateOnly))
	params.Set("to", to.Format(time.DateOnly))

	body, err := c.get(ctx, "/stock/filings", params, "finnhub: filings for "+symbol)
	if err != nil {
		return nil, err
	}

	all, err := decodeFilings(body)
	if err != nil {
		return nil, eris.Wrapf(err, "finnhub: decode filings for %s", symbol)
	}

	var out []Filing
	for _, f := range all {
		if f.Form == FormAnnualReport {
			out = append(out, f)
		}
	}
	return out, nil
}

// decodeFilings accepts either a bare array or an object with a "result" array.
func decodeFilings(body []byte) ([]Filing, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []Filing
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var wrapped struct {
		Result []Filing `json:"result"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Result, nil
}

// get issues one GET. Errors are prefixed with op; transient failures come
// back as *resilience.TransientError at the top of the chain.
func (c *httpClient) get(ctx context.Context, path string, params url.Values, op string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "%s: rate limit wait", op)
		}
	}

	params.Set("token", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: create request", op)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, resilience.NewTransientError(eris.Wrapf(err, "%s: request failed", op), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: read response body", op)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}
	return body, nil
}
