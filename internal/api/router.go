// Package api serves stored 10-K sections over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/vesto-app/tenk/internal/store"
)

// SectionReader is the read side of store.Store.
type SectionReader interface {
	LatestSections(ctx context.Context, symbol string) (*store.SectionRow, error)
	AllSections(ctx context.Context, symbol string) ([]store.SectionRow, error)
	Ping(ctx context.Context) error
}

// Config controls router behavior.
type Config struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter builds the read API.
func NewRouter(reader SectionReader, cfg Config) http.Handler {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	h := &handler{reader: reader}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Route("/api/companies/{symbol}", func(r chi.Router) {
		r.Get("/sections", h.latest)
		r.Get("/sections/all", h.all)
	})
	return r
}

type handler struct {
	reader SectionReader
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.reader.Ping(r.Context()); err != nil {
		zap.L().Warn("api: store ping failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) latest(w http.ResponseWriter, r *http.Request) {
	sym := symbolParam(r)
	row, err := h.reader.LatestSections(r.Context(), sym)
	if err != nil {
		h.fail(w, sym, err)
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, "no 10-K sections for "+sym)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *handler) all(w http.ResponseWriter, r *http.Request) {
	sym := symbolParam(r)
	rows, err := h.reader.AllSections(r.Context(), sym)
	if err != nil {
		h.fail(w, sym, err)
		return
	}
	if rows == nil {
		rows = []store.SectionRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":  sym,
		"count":   len(rows),
		"filings": rows,
	})
}

func (h *handler) fail(w http.ResponseWriter, sym string, err error) {
	zap.L().Error("api: read sections failed", zap.String("symbol", sym), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func symbolParam(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
