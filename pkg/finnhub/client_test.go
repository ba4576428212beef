package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesto-app/tenk/internal/resilience"
)

const filingsJSON = `[
	{"accessNumber":"0000320193-25-000079","symbol":"AAPL","cik":"320193","form":"10-K","filedDate":"2025-10-31 00:00:00","acceptedDate":"2025-10-31 06:01:26","reportDate":"2025-09-27 00:00:00","filingUrl":"https://www.sec.gov/Archives/edgar/data/320193/000032019325000079/0000320193-25-000079-index.html","reportUrl":"https://www.sec.gov/Archives/edgar/data/320193/000032019325000079/aapl-20250927.htm"},
	{"accessNumber":"0000320193-25-000073","symbol":"AAPL","cik":"320193","form":"10-Q","filedDate":"2025-08-01 00:00:00"},
	{"accessNumber":"0000320193-24-000123","symbol":"AAPL","cik":"320193","form":"10-K","filedDate":"2024-11-01 00:00:00"}
]`

func TestTenKFilings_FiltersAnnualReports(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/filings", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "AAPL", q.Get("symbol"))
		assert.Equal(t, "2023-01-01", q.Get("from"))
		assert.Equal(t, "2026-10-19", q.Get("to"))
		assert.Equal(t, "fh-key", q.Get("token"))
		w.Write([]byte(filingsJSON))
	}))
	defer srv.Close()

	client := NewClient("fh-key", WithBaseURL(srv.URL), WithLimiter(nil))
	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	got, err := client.TenKFilings(context.Background(), "AAPL", from, to)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0000320193-25-000079", got[0].AccessNumber)
	assert.Contains(t, got[0].ReportURL, "aapl-20250927.htm")
	assert.Equal(t, "0000320193-24-000123", got[1].AccessNumber)
}

func TestTenKFilings_WrappedResult(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":[{"accessNumber":"1","form":"10-K"}]}`))
	}))
	defer srv.Close()

	got, err := NewClient("k", WithBaseURL(srv.URL), WithLimiter(nil)).
		TenKFilings(context.Background(), "MSFT", time.Now(), time.Now())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].AccessNumber)
}

func TestTenKFilings_RateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"API limit reached"}`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL), WithLimiter(nil)).
		TenKFilings(context.Background(), "MSFT", time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.True(t, resilience.IsTransient(err))
}

func TestTenKFilings_BadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL), WithLimiter(nil)).
		TenKFilings(context.Background(), "MSFT", time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode filings")
}
