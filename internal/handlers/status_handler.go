package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/Vogeltak/reading-addiction/internal/interfaces"
	"github.com/Vogeltak/reading-addiction/internal/models"
)

// StatusHandler serves pipeline counts as JSON
type StatusHandler struct {
	storage interfaces.ArticleStorage
	logger  arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(storage interfaces.ArticleStorage, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		storage: storage,
		logger:  logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	stats, err := h.storage.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to compute stats")
		WriteError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{
		"total":        stats.Total,
		"pending":      stats.Pending,
		"fetched":      stats.Fetched,
		"failed":       stats.Failed,
		"embedded":     stats.Embedded,
		"embed_failed": stats.EmbedFailed,
	})
}

// GetHistogramHandler handles GET /api/histogram?by=status|kind, same shape as the histogram command's JSON
func (h *StatusHandler) GetHistogramHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	by := r.URL.Query().Get("by")
	if by == "" {
		by = string(models.GroupByStatus)
	}
	grouping, err := models.ParseHistogramGrouping(by)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	histogram, err := h.storage.ExportHistogram(r.Context(), grouping)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to build histogram")
		WriteError(w, http.StatusInternalServerError, "failed to build histogram")
		return
	}
	WriteJSON(w, http.StatusOK, histogram)
}
