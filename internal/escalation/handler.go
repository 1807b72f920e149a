package escalation

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/reliefgrid/sos-engine/internal/pkg/ctxlog"
	"github.com/reliefgrid/sos-engine/internal/pkg/httputil"
)

// Handler exposes the on-demand escalation trigger and stats endpoints.
type Handler struct {
	engine *Engine
	stats  *StatsReporter
}

// NewHandler creates a new escalation handler.
func NewHandler(engine *Engine, stats *StatsReporter) *Handler {
	return &Handler{engine: engine, stats: stats}
}

// RegisterRoutes registers escalation routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/escalations/run", h.runPass)
	r.Get("/escalations/stats", h.getStats)
}

// runPass triggers one escalation pass outside the scheduler. Safe to call
// repeatedly: a pass with no eligible candidates escalates nothing.
func (h *Handler) runPass(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.RunPass(r.Context())
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("on-demand escalation pass failed", "error", err)
		httputil.Error(w, http.StatusServiceUnavailable, "escalation pass failed")
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

var statsErrorMappings = []httputil.ErrorMapping{
	{Error: ErrUnknownRange, Status: http.StatusBadRequest},
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	timeRange, err := ParseTimeRange(r.URL.Query().Get("range"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, statsErrorMappings)
		return
	}

	stats, err := h.stats.Stats(r.Context(), timeRange)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, statsErrorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, stats)
}
