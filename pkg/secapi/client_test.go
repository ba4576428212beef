package secapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesto-app/tenk/internal/resilience"
)

func TestExtract_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "https://www.sec.gov/Archives/aapl-20250927.htm", q.Get("url"))
		assert.Equal(t, "1A", q.Get("item"))
		assert.Equal(t, "text", q.Get("type"))
		assert.Equal(t, "test-token", q.Get("token"))
		w.Write([]byte("Item 1A. Risk Factors\nThe Company's business..."))
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	got, err := client.Extract(context.Background(), "https://www.sec.gov/Archives/aapl-20250927.htm", "1A")

	require.NoError(t, err)
	assert.Equal(t, "Item 1A. Risk Factors\nThe Company's business...", got)
}

func TestExtract_ProcessingBodyIsReturnedVerbatim(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("processing"))
	}))
	defer srv.Close()

	got, err := NewClient("k", WithBaseURL(srv.URL)).Extract(context.Background(), "u", "7")
	require.NoError(t, err)
	assert.Equal(t, "processing", got)
}

func TestExtract_ServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("bad gateway"))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Extract(context.Background(), "u", "7")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestExtract_ClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Extract(context.Background(), "u", "7")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.False(t, resilience.IsTransient(err))
}

func TestExtract_TransportErrorRedactsToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewClient("super-secret", WithBaseURL(srv.URL)).Extract(context.Background(), "u", "1")

	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.NotContains(t, err.Error(), "super-secret")
}

func TestExtract_CancelledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(1, 1)).Extract(ctx, "u", "1")
	require.Error(t, err)
}
