package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchSummary_RoundTrip(t *testing.T) {
	t.Parallel()

	cat := DefaultCatalog()
	at := time.Date(2025, 11, 2, 9, 30, 0, 0, time.UTC)
	summary := NewBatchSummary(at)

	full := NewEntityRecord(Entity{Symbol: "MSFT", FilingURL: "https://sec.gov/msft"}, at)
	for _, s := range cat {
		full.Add(s, NewContent(strings.Repeat("m", 300)))
	}
	full.Finalize(len(cat))

	missing := NewEntityRecord(Entity{Symbol: "GOOGL"}, at)
	missing.Error = "no filing URL found"
	missing.Finalize(len(cat))

	partial := NewEntityRecord(Entity{Symbol: "AAPL", FilingURL: "https://sec.gov/aapl"}, at)
	for i, s := range cat {
		if i%2 == 0 {
			partial.Add(s, NewContent(strings.Repeat("a", 120)))
		} else {
			partial.Add(s, Empty{Length: 3})
		}
	}
	partial.Finalize(len(cat))

	summary.Add(full)
	summary.Add(missing)
	summary.Add(partial)

	data, err := json.Marshal(summary)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, 3, raw["total_companies"])
	assert.EqualValues(t, 14, raw["total_api_calls"])

	var got BatchSummary
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, summary.RunID, got.RunID)
	assert.True(t, at.Equal(got.ExtractedAt))
	require.Len(t, got.Records, 3)
	for i, want := range summary.Records {
		g := got.Records[i]
		assert.Equal(t, want.Symbol, g.Symbol)
		assert.Equal(t, want.Status, g.Status)
		assert.Equal(t, want.Completed, g.Completed)
		assert.Equal(t, want.Attempted, g.Attempted)
	}

	rec, ok := got.Record("GOOGL")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, 0, rec.Attempted)
	assert.Equal(t, "no filing URL found", rec.Error)

	counts := got.CountByStatus()
	assert.Equal(t, 1, counts[StatusCompleted])
	assert.Equal(t, 1, counts[StatusPartial])
	assert.Equal(t, 1, counts[StatusFailed])
}

func TestBatchSummary_UnmarshalWithoutSymbolList(t *testing.T) {
	t.Parallel()

	doc := `{
		"extracted_at": "2025-01-01T00:00:00Z",
		"total_companies": 2,
		"total_api_calls": 0,
		"results": {
			"ZM": {"symbol": "ZM", "sections": {}, "sections_extracted": 0, "api_calls_made": 0, "extraction_status": "failed"},
			"AMZN": {"symbol": "AMZN", "sections": {}, "sections_extracted": 0, "api_calls_made": 0, "extraction_status": "failed"}
		}
	}`

	var got BatchSummary
	require.NoError(t, json.Unmarshal([]byte(doc), &got))
	require.Len(t, got.Records, 2)
	assert.Equal(t, "AMZN", got.Records[0].Symbol)
	assert.Equal(t, "ZM", got.Records[1].Symbol)
}

func TestBatchSummary_NewHasRunID(t *testing.T) {
	t.Parallel()

	a := NewBatchSummary(time.Now())
	b := NewBatchSummary(time.Now())
	assert.NotEmpty(t, a.RunID)
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Zero(t, a.TotalAPICalls())
}
