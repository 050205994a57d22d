package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/trogers1052/stock-dashboard/internal/database"
	"github.com/trogers1052/stock-dashboard/internal/export"
	"github.com/trogers1052/stock-dashboard/internal/marketdata"
	"github.com/trogers1052/stock-dashboard/internal/models"
	"github.com/trogers1052/stock-dashboard/internal/notice"
	"github.com/trogers1052/stock-dashboard/internal/upsert"
	"go.mongodb.org/mongo-driver/bson"
)

// QuoteReader reads stored rows back from a quote table
type QuoteReader interface {
	GetQuotesRange(ctx context.Context, t database.Table, symbol string, start, end time.Time) ([]models.Quote, error)
}

// Upserter appends quotes that are not yet stored
type Upserter interface {
	Upsert(ctx context.Context, table database.Table, quotes []models.Quote) (upsert.Result, error)
}

// DocumentStore is the document collection holding saved history
type DocumentStore interface {
	InsertHistory(ctx context.Context, quotes []models.Quote) (int, error)
	All(ctx context.Context) ([]bson.D, error)
}

// LatestCache serves the newest stored quote per symbol
type LatestCache interface {
	Latest(ctx context.Context, symbol string) (*models.Quote, bool, error)
}

// Dependencies wires a Handler. Documents and Cache are optional.
type Dependencies struct {
	Watchlist    models.Watchlist
	Fetcher      marketdata.Fetcher
	Store        QuoteReader
	QuotesTable  database.Table
	History      Upserter
	HistoryTable database.Table
	Documents    DocumentStore
	Cache        LatestCache
	CSVPath      string
	Notices      *notice.Board
	Logger       logrus.FieldLogger
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	deps Dependencies
}

// NewHandler creates a new Handler
func NewHandler(deps Dependencies) *Handler {
	if deps.Notices == nil {
		deps.Notices = notice.NewBoard(notice.DefaultCapacity)
	}
	return &Handler{deps: deps}
}

type rangeRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// GetWatchlist handles GET /watchlist
func (h *Handler) GetWatchlist(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
		Label  string `json:"label"`
	}
	out := make([]entry, 0, len(h.deps.Watchlist))
	for _, e := range h.deps.Watchlist {
		out = append(out, entry{Symbol: e.Symbol, Name: e.Name, Label: e.Label()})
	}
	respondJSON(w, http.StatusOK, out)
}

// GetLatest handles GET /quotes/{symbol}/latest
func (h *Handler) GetLatest(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbol(w, r)
	if !ok {
		return
	}

	if h.deps.Cache != nil {
		q, found, err := h.deps.Cache.Latest(r.Context(), symbol)
		if err != nil {
			h.deps.Logger.WithError(err).WithField("symbol", symbol).Warn("Quote cache lookup failed")
		} else if found {
			respondJSON(w, http.StatusOK, q)
			return
		}
	}

	quotes, err := h.deps.Fetcher.Latest(r.Context(), symbol)
	if err != nil {
		h.fetchError(w, symbol, err)
		return
	}
	if len(quotes) == 0 {
		http.Error(w, "no data for "+symbol, http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, quotes[len(quotes)-1])
}

// GetHistory handles GET /quotes/{symbol}/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbol(w, r)
	if !ok {
		return
	}
	start, end, err := parseRange(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	quotes, err := h.deps.Fetcher.History(r.Context(), symbol, start, end)
	if err != nil {
		h.fetchError(w, symbol, err)
		return
	}
	respondJSON(w, http.StatusOK, quotes)
}

// GetStored handles GET /quotes/{symbol}/stored
func (h *Handler) GetStored(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbol(w, r)
	if !ok {
		return
	}
	start, end, err := parseRange(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	quotes, err := h.deps.Store.GetQuotesRange(r.Context(), h.deps.QuotesTable, symbol, start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if quotes == nil {
		quotes = []models.Quote{}
	}
	respondJSON(w, http.StatusOK, quotes)
}

// Compare handles GET /compare
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a, b := q.Get("a"), q.Get("b")
	for _, s := range []string{a, b} {
		if s == "" {
			http.Error(w, "a and b are required", http.StatusBadRequest)
			return
		}
		if !h.deps.Watchlist.Contains(s) {
			http.Error(w, "unknown symbol: "+s, http.StatusNotFound)
			return
		}
	}

	fields, err := ParseFields(q.Get("fields"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	startA, endA, err := parseRange(q.Get("start_a"), q.Get("end_a"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	startB, endB, err := parseRange(q.Get("start_b"), q.Get("end_b"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	quotesA, err := h.deps.Fetcher.History(r.Context(), a, startA, endA)
	if err != nil {
		h.fetchError(w, a, err)
		return
	}
	quotesB, err := h.deps.Fetcher.History(r.Context(), b, startB, endB)
	if err != nil {
		h.fetchError(w, b, err)
		return
	}

	respondJSON(w, http.StatusOK, BuildComparison(a, quotesA, b, quotesB, fields))
}

// SaveDocuments handles POST /quotes/{symbol}/history/documents
func (h *Handler) SaveDocuments(w http.ResponseWriter, r *http.Request) {
	if h.deps.Documents == nil {
		http.Error(w, "document store is not configured", http.StatusServiceUnavailable)
		return
	}
	symbol, quotes, ok := h.fetchRequestedHistory(w, r)
	if !ok {
		return
	}

	n, err := h.deps.Documents.InsertHistory(r.Context(), quotes)
	if err != nil {
		h.deps.Notices.Error(symbol, err.Error())
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.deps.Notices.Success(symbol, "Data saved to MongoDB successfully!")
	respondJSON(w, http.StatusCreated, map[string]interface{}{"symbol": symbol, "inserted": n})
}

// SaveSQL handles POST /quotes/{symbol}/history/sql
func (h *Handler) SaveSQL(w http.ResponseWriter, r *http.Request) {
	symbol, quotes, ok := h.fetchRequestedHistory(w, r)
	if !ok {
		return
	}

	result, err := h.deps.History.Upsert(r.Context(), h.deps.HistoryTable, quotes)
	if err != nil {
		h.deps.Logger.WithError(err).WithField("symbol", symbol).Error("History upsert failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if len(result.Inserted) > 0 {
		h.deps.Notices.Success(symbol, "New data inserted into the SQL table successfully!")
	} else {
		h.deps.Notices.Info(symbol, "No new data to insert.")
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   symbol,
		"inserted": len(result.Inserted),
		"skipped":  result.Skipped,
	})
}

// ExportCSV handles POST /exports/csv
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	if h.deps.Documents == nil {
		http.Error(w, "document store is not configured", http.StatusServiceUnavailable)
		return
	}

	docs, err := h.deps.Documents.All(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	n, err := export.WriteCSV(h.deps.CSVPath, docs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.deps.Notices.Success("", "Data exported to CSV successfully!")
	respondJSON(w, http.StatusOK, map[string]interface{}{"path": h.deps.CSVPath, "rows": n})
}

// GetNotices handles GET /notices
func (h *Handler) GetNotices(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	respondJSON(w, http.StatusOK, h.deps.Notices.Recent(limit))
}

func (h *Handler) symbol(w http.ResponseWriter, r *http.Request) (string, bool) {
	symbol := mux.Vars(r)["symbol"]
	if !h.deps.Watchlist.Contains(symbol) {
		http.Error(w, "unknown symbol: "+symbol, http.StatusNotFound)
		return "", false
	}
	return symbol, true
}

func (h *Handler) fetchRequestedHistory(w http.ResponseWriter, r *http.Request) (string, []models.Quote, bool) {
	symbol, ok := h.symbol(w, r)
	if !ok {
		return "", nil, false
	}

	var req rangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return "", nil, false
	}
	start, end, err := parseRange(req.Start, req.End)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", nil, false
	}

	quotes, err := h.deps.Fetcher.History(r.Context(), symbol, start, end)
	if err != nil {
		h.fetchError(w, symbol, err)
		return "", nil, false
	}
	return symbol, quotes, true
}

func (h *Handler) fetchError(w http.ResponseWriter, symbol string, err error) {
	h.deps.Notices.Error(symbol, fmt.Sprintf("Error fetching data for %s: %v", symbol, err))
	switch {
	case errors.Is(err, marketdata.ErrSymbolNotFound), errors.Is(err, marketdata.ErrNoData):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

func parseRange(startStr, endStr string) (time.Time, time.Time, error) {
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, errors.New("start and end are required")
	}
	start, err := models.ParseDay(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q", startStr)
	}
	end, err := models.ParseDay(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q", endStr)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, errors.New("start must be before end")
	}
	return start, end, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
