package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesto-app/tenk/internal/store"
)

type fakeReader struct {
	rows    map[string][]store.SectionRow
	err     error
	pingErr error
	asked   []string
}

func (f *fakeReader) LatestSections(_ context.Context, symbol string) (*store.SectionRow, error) {
	f.asked = append(f.asked, symbol)
	if f.err != nil {
		return nil, f.err
	}
	rows := f.rows[symbol]
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (f *fakeReader) AllSections(_ context.Context, symbol string) ([]store.SectionRow, error) {
	f.asked = append(f.asked, symbol)
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[symbol], nil
}

func (f *fakeReader) Ping(context.Context) error { return f.pingErr }

func sampleRows() map[string][]store.SectionRow {
	y25, y24 := 2025, 2024
	at := time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)
	return map[string][]store.SectionRow{
		"AAPL": {
			{ID: 2, Symbol: "AAPL", FiscalYear: &y25, ExtractionStatus: "completed", ExtractedAt: at,
				Sections: map[string]string{"section_1_business": "Apple designs..."}},
			{ID: 1, Symbol: "AAPL", FiscalYear: &y24, ExtractionStatus: "partial", ExtractedAt: at},
		},
	}
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	reader := &fakeReader{}
	rr := serve(t, NewRouter(reader, Config{}), "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	reader.pingErr = errors.New("connection refused")
	rr = serve(t, NewRouter(reader, Config{}), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouter_LatestSections(t *testing.T) {
	reader := &fakeReader{rows: sampleRows()}
	rr := serve(t, NewRouter(reader, Config{}), "/api/companies/aapl/sections")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"AAPL"}, reader.asked)

	var row store.SectionRow
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &row))
	assert.Equal(t, int64(2), row.ID)
	require.NotNil(t, row.FiscalYear)
	assert.Equal(t, 2025, *row.FiscalYear)
	assert.Equal(t, "Apple designs...", row.Sections["section_1_business"])
}

func TestRouter_LatestSectionsNotFound(t *testing.T) {
	rr := serve(t, NewRouter(&fakeReader{}, Config{}), "/api/companies/ZZZZ/sections")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "ZZZZ")
}

func TestRouter_AllSections(t *testing.T) {
	h := NewRouter(&fakeReader{rows: sampleRows()}, Config{})

	rr := serve(t, h, "/api/companies/AAPL/sections/all")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Symbol  string             `json:"symbol"`
		Count   int                `json:"count"`
		Filings []store.SectionRow `json:"filings"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "AAPL", body.Symbol)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "partial", body.Filings[1].ExtractionStatus)

	rr = serve(t, h, "/api/companies/MSFT/sections/all")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"symbol":"MSFT","count":0,"filings":[]}`, rr.Body.String())
}

func TestRouter_StoreError(t *testing.T) {
	rr := serve(t, NewRouter(&fakeReader{err: errors.New("boom")}, Config{}), "/api/companies/AAPL/sections")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "boom")
}

func TestRouter_CORS(t *testing.T) {
	h := NewRouter(&fakeReader{}, Config{AllowedOrigins: []string{"https://vesto.app"}})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://vesto.app")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "https://vesto.app", rr.Header().Get("Access-Control-Allow-Origin"))
}
