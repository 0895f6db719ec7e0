package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Orko24/fintech-document-intelligence-sub000/internal/models"
)

// AggregateReader exposes the windowed-aggregate query surface
type AggregateReader interface {
	ListAccountAggregates(ctx context.Context, accountID string, metric string, limit int32) ([]*models.WindowedAggregate, error)
}

// Handler serves the read-side HTTP API over persisted aggregates
type Handler struct {
	repo AggregateReader
	log  zerolog.Logger
}

// NewHandler creates a new API handler
func NewHandler(repo AggregateReader, log zerolog.Logger) *Handler {
	return &Handler{repo: repo, log: log}
}

// ListAccountAggregates handles GET /api/v1/accounts/{accountID}/aggregates
func (h *Handler) ListAccountAggregates(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "account ID is required")
		return
	}

	metric := r.URL.Query().Get("metric")
	if metric != "" &&
		metric != string(models.MetricTransactionCount) &&
		metric != string(models.MetricTotalAmount) {
		writeError(w, http.StatusBadRequest, "unknown metric: "+metric)
		return
	}

	limit := int32(100)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = int32(n)
	}

	aggregates, err := h.repo.ListAccountAggregates(r.Context(), accountID, metric, limit)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("failed to list aggregates")
		writeError(w, http.StatusInternalServerError, "failed to list aggregates")
		return
	}

	events := make([]models.WindowedAggregateEvent, 0, len(aggregates))
	for _, agg := range aggregates {
		events = append(events, agg.ToEvent())
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"aggregates": events,
	})
}

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
